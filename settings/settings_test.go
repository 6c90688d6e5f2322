package settings

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	return s
}

func TestNewWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := New(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, "openai", s.GetString("provider", ""))
	assert.Equal(t, "gpt-4o-mini", s.GetString("model", ""))
	assert.InDelta(t, 0.7, s.GetFloat("temperature", 0), 0.001)
	assert.True(t, s.GetBool("web_search_enabled", false))
}

func TestSetPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("model", "llama-3.3-70b-versatile"))

	reloaded, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, "llama-3.3-70b-versatile", reloaded.GetString("model", ""))
}

func TestLoadMergesNewDefaultKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api_key": "k", "model": "custom"}`), 0o644))

	s, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", s.GetString("model", ""))
	assert.Equal(t, "openai", s.GetString("provider", ""))
	assert.Equal(t, Version, s.GetString("version", ""))
}

func TestUpdateIsAtomicUnderConcurrency(t *testing.T) {
	s := newService(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, s.Update(map[string]any{"temperature": float64(n)}))
		}(i)
	}
	wg.Wait()

	temp := s.GetFloat("temperature", -1)
	assert.GreaterOrEqual(t, temp, 0.0)
	assert.LessOrEqual(t, temp, 9.0)
}

func TestReset(t *testing.T) {
	s := newService(t)
	require.NoError(t, s.Set("model", "custom"))
	require.NoError(t, s.Reset())
	assert.Equal(t, "gpt-4o-mini", s.GetString("model", ""))
}

func TestIsValidAPIKey(t *testing.T) {
	s := newService(t)
	assert.False(t, s.IsValidAPIKey(""))
	assert.False(t, s.IsValidAPIKey("short"))
	assert.True(t, s.IsValidAPIKey("gsk_abcdefghijklmnopqrstuvwxyz"))

	require.NoError(t, s.Set("api_key", "gsk_abcdefghijklmnopqrstuvwxyz"))
	assert.True(t, s.IsValidAPIKey(""))
}

func TestModelConfig(t *testing.T) {
	s := newService(t)
	require.NoError(t, s.Update(map[string]any{
		"api_key":     "gsk_abcdefghijklmnopqrstuvwxyz",
		"provider":    "groq",
		"model":       "llama-3.3-70b-versatile",
		"temperature": 0.2,
	}))

	cfg := s.ModelConfig()
	assert.Equal(t, "groq", cfg.Provider)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Model)
	assert.InDelta(t, 0.2, cfg.Temperature, 0.001)
	assert.InDelta(t, 0.9, cfg.TopP, 0.001)
}
