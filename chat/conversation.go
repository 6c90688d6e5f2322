// Package chat owns conversation transcripts and the turn-taking state
// machine that connects users, the completion model, and the tool agents.
package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oss-labs/datalab/core"
)

const conversationFileName = "main_conversation.json"

// Hidden system-message markers encoding per-conversation state in the
// transcript itself, so state survives restarts with no extra storage.
const (
	markerReferenceDoc      = "[REFERENCE_DOC]:"
	markerWebSearchEnabled  = "[WEB_SEARCH_ENABLED]:"
	markerWebSearchDisabled = "[WEB_SEARCH_DISABLED]:"
)

// Message is one transcript entry. Hidden messages carry internal state and
// are excluded from the API view and from user-facing listings.
type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Hidden    bool           `json:"hidden,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation is the durable transcript of one chat session.
type Conversation struct {
	ID                 string    `json:"conversation_id"`
	CreatedAt          time.Time `json:"created_at"`
	Folder             string    `json:"conversation_folder"`
	SystemInstructions string    `json:"system_instructions"`
	History            []Message `json:"chat_history"`
	UpdatedAt          time.Time `json:"updated_at"`
	Version            string    `json:"version"`
}

// append adds a message to the history and stamps the conversation.
func (c *Conversation) append(role, content string, hidden bool, metadata map[string]any) Message {
	msg := Message{
		ID:        core.ShortID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Hidden:    hidden,
		Metadata:  metadata,
	}
	c.History = append(c.History, msg)
	c.UpdatedAt = msg.Timestamp
	return msg
}

// referenceDocs extracts the reference-document index from hidden markers.
func (c *Conversation) referenceDocs() []string {
	var docs []string
	for _, m := range c.History {
		if m.Hidden && strings.HasPrefix(m.Content, markerReferenceDoc) {
			docs = append(docs, strings.TrimPrefix(m.Content, markerReferenceDoc))
		}
	}
	return docs
}

// webSearchEnabled reports the latest search-toggle marker; the default with
// no marker present is disabled.
func (c *Conversation) webSearchEnabled() bool {
	enabled := false
	for _, m := range c.History {
		if !m.Hidden {
			continue
		}
		switch {
		case strings.HasPrefix(m.Content, markerWebSearchEnabled):
			enabled = true
		case strings.HasPrefix(m.Content, markerWebSearchDisabled):
			enabled = false
		}
	}
	return enabled
}

// save writes the conversation to its folder atomically.
func (c *Conversation) save() error {
	if err := os.MkdirAll(c.Folder, 0o755); err != nil {
		return fmt.Errorf("cannot create conversation folder: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode conversation: %w", err)
	}
	path := filepath.Join(c.Folder, conversationFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cannot write conversation file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cannot replace conversation file: %w", err)
	}
	return nil
}

// loadConversation reads a persisted transcript, returning os.ErrNotExist
// when none was saved for the folder.
func loadConversation(folder string) (*Conversation, error) {
	data, err := os.ReadFile(filepath.Join(folder, conversationFileName))
	if err != nil {
		return nil, err
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("cannot decode conversation file: %w", err)
	}
	conv.Folder = folder
	return &conv, nil
}
