// Package settings implements the process-wide user configuration service:
// a file-backed key/value cache guarded by a single mutex held across the
// whole read-modify-write cycle so concurrent writers cannot lose updates.
//
// There is deliberately no package-level singleton. Callers construct a
// Service and pass it to every component that needs it.
package settings

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Version identifies the settings schema written to disk.
const Version = "1.0"

// defaults returns a fresh copy of the default user settings.
func defaults() map[string]any {
	return map[string]any{
		"api_key":            "",
		"provider":           "openai",
		"model":              "gpt-4o-mini",
		"temperature":        0.7,
		"top_p":              0.9,
		"embedding_model":    "bge-small",
		"web_search_enabled": true,
		"updated_at":         time.Now().UTC().Format(time.RFC3339),
		"version":            Version,
	}
}

// ModelConfig is the typed view of the model-related settings handed to the
// provider adapters.
type ModelConfig struct {
	APIKey      string
	Provider    string
	Model       string
	Temperature float64
	TopP        float64
}

// Service manages dynamic user settings with persistent storage and an
// in-memory cache. Safe for concurrent use.
type Service struct {
	mu   sync.Mutex
	path string
	data map[string]any
}

// New loads (or creates) the settings file at path. A missing or corrupt
// file falls back to defaults; defaults are merged in so new keys appear for
// settings files written by older versions.
func New(path string) (*Service, error) {
	s := &Service{path: path, data: defaults()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	var fileData map[string]any
	if err := json.Unmarshal(raw, &fileData); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	merged := defaults()
	maps.Copy(merged, fileData)
	merged["version"] = Version
	s.data = merged
	return nil
}

// saveLocked persists the cache atomically. Caller holds s.mu.
func (s *Service) saveLocked() error {
	s.data["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename settings: %w", err)
	}
	return nil
}

// Get returns a setting value or nil when absent.
func (s *Service) Get(key string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key]
}

// GetString returns a string setting, or def when absent or non-string.
func (s *Service) GetString(key, def string) string {
	if v, ok := s.Get(key).(string); ok {
		return v
	}
	return def
}

// GetFloat returns a numeric setting, or def when absent or non-numeric.
func (s *Service) GetFloat(key string, def float64) float64 {
	if v, ok := s.Get(key).(float64); ok {
		return v
	}
	return def
}

// GetBool returns a boolean setting, or def when absent or non-boolean.
func (s *Service) GetBool(key string, def bool) bool {
	if v, ok := s.Get(key).(bool); ok {
		return v
	}
	return def
}

// Set stores a single value and persists the full cache.
func (s *Service) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s.saveLocked()
}

// Update merges multiple values in one locked read-modify-write cycle.
func (s *Service) Update(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.data, values)
	return s.saveLocked()
}

// All returns a copy of the full cache.
func (s *Service) All() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.data))
	maps.Copy(out, s.data)
	return out
}

// Reset restores the defaults and persists them.
func (s *Service) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = defaults()
	return s.saveLocked()
}

// IsValidAPIKey reports whether the stored (or provided) API key looks
// usable. Length-based only; the provider rejects bad keys authoritatively.
func (s *Service) IsValidAPIKey(key string) bool {
	if key == "" {
		key = s.GetString("api_key", "")
	}
	return len(key) > 20
}

// ModelConfig returns the typed model configuration.
func (s *Service) ModelConfig() ModelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := ModelConfig{
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		TopP:        0.9,
	}
	if v, ok := s.data["api_key"].(string); ok {
		cfg.APIKey = v
	}
	if v, ok := s.data["provider"].(string); ok && v != "" {
		cfg.Provider = v
	}
	if v, ok := s.data["model"].(string); ok && v != "" {
		cfg.Model = v
	}
	if v, ok := s.data["temperature"].(float64); ok {
		cfg.Temperature = v
	}
	if v, ok := s.data["top_p"].(float64); ok {
		cfg.TopP = v
	}
	return cfg
}
