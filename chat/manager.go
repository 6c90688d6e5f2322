package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oss-labs/datalab/broadcast"
	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/logging"
	"github.com/oss-labs/datalab/model"
	"github.com/oss-labs/datalab/orchestrator"
	"github.com/oss-labs/datalab/settings"
	"github.com/oss-labs/datalab/tool"
)

// Turn result types.
const (
	TurnToolCallProcessed  = "tool_call_processed"
	TurnTextResponse       = "text_response"
	TurnToolError          = "tool_error"
	TurnAPIError           = "api_error"
	TurnConfigurationError = "configuration_error"
)

const fallbackIdentity = "I'm OSS Labs, here to help with your data analysis needs."

const mainInstructions = `You are OSS Labs, an AI data analysis assistant.
You can read datasets, run comprehensive analyses in live notebooks, search
the web, and answer questions about uploaded reference documents.

Workflow:
- The first comprehensive request in a session calls dataset_metadata_analysis.
- After metadata is known, comprehensive requests call full_dataset_analysis
  with a granular task list covering data foundation, exploratory analysis,
  advanced analytics, modeling, and business insights.
- When the user confirms with "proceed", "good", or "continue", call
  full_dataset_analysis immediately.
- Remember every dataset path the user mentions; tool calls must carry the
  exact path.
- Never call metadata analysis twice in one session, and never run the full
  analysis before metadata is known.

Use web_search only when current external information is needed and search is
enabled. Use rag_knowledge_retrieval for questions about uploaded documents.
Always identify as OSS Labs.`

// TurnResult is the outcome of one ProcessTurn call.
type TurnResult struct {
	Type            string         `json:"type"`
	ChatID          string         `json:"chat_id"`
	Message         *Message       `json:"message,omitempty"`
	ToolCallMessage *Message       `json:"tool_call_message,omitempty"`
	AgentResponse   *Message       `json:"agent_response,omitempty"`
	AgentMetadata   map[string]any `json:"agent_metadata,omitempty"`
}

// ModelFactory builds a configured completion model for the active settings.
type ModelFactory func() (model.Model, error)

// Manager owns conversation transcripts and turn processing.
type Manager struct {
	settings *settings.Service
	models   ModelFactory
	orch     *orchestrator.Orchestrator
	hub      *broadcast.Hub
	chatDir  string
	logger   logging.Logger

	mu            sync.Mutex
	conversations map[string]*Conversation
	locks         map[string]*sync.Mutex
}

// NewManager constructs the conversation manager.
func NewManager(sv *settings.Service, models ModelFactory, orch *orchestrator.Orchestrator, hub *broadcast.Hub, chatDir string, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Manager{
		settings:      sv,
		models:        models,
		orch:          orch,
		hub:           hub,
		chatDir:       chatDir,
		logger:        logger,
		conversations: map[string]*Conversation{},
		locks:         map[string]*sync.Mutex{},
	}
}

// CreateConversation starts a new conversation, returning its ID. A provided
// ID is honored; an empty one is generated.
func (m *Manager) CreateConversation(chatID string) (string, error) {
	if chatID == "" {
		chatID = core.ShortID()
	}
	conv := &Conversation{
		ID:                 chatID,
		CreatedAt:          time.Now().UTC(),
		Folder:             filepath.Join(m.chatDir, chatID),
		SystemInstructions: mainInstructions,
		Version:            "1.0",
	}
	if err := conv.save(); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.conversations[chatID] = conv
	m.mu.Unlock()

	m.publish(chatID, "conversation_created", map[string]any{"chat_id": chatID})
	return chatID, nil
}

// conversation returns the in-memory transcript, loading it from disk or
// creating it on first use, plus its per-conversation lock.
func (m *Manager) conversation(chatID string) (*Conversation, *sync.Mutex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[chatID] = lock
	}

	if conv, ok := m.conversations[chatID]; ok {
		return conv, lock, nil
	}

	folder := filepath.Join(m.chatDir, chatID)
	conv, err := loadConversation(folder)
	if err != nil {
		conv = &Conversation{
			ID:                 chatID,
			CreatedAt:          time.Now().UTC(),
			Folder:             folder,
			SystemInstructions: mainInstructions,
			Version:            "1.0",
		}
		if err := conv.save(); err != nil {
			return nil, nil, err
		}
	}
	m.conversations[chatID] = conv
	return conv, lock, nil
}

// ProcessTurn runs one full user turn. The result is always populated; every
// branch leaves the transcript persisted before returning.
func (m *Manager) ProcessTurn(ctx context.Context, chatID, userText string) TurnResult {
	if !m.settings.IsValidAPIKey("") {
		return TurnResult{
			Type:   TurnConfigurationError,
			ChatID: chatID,
			Message: &Message{
				Role:    "assistant",
				Content: "No valid API key configured. Please set your API key in settings.",
			},
		}
	}

	conv, lock, err := m.conversation(chatID)
	if err != nil {
		return TurnResult{Type: TurnConfigurationError, ChatID: chatID, Message: &Message{
			Role: "assistant", Content: fmt.Sprintf("Conversation storage error: %v", err)}}
	}

	lock.Lock()
	defer lock.Unlock()

	m.appendAndSave(conv, "user", userText, false, nil)

	mdl, err := m.models()
	if err != nil {
		msg := m.appendAndSave(conv, "assistant", "The assistant is not configured correctly. Please check your settings.", false, nil)
		return m.finish(conv, TurnResult{Type: TurnConfigurationError, ChatID: conv.ID, Message: &msg})
	}

	resp, err := mdl.Generate(ctx, model.Request{
		Instructions: m.augmentedInstructions(conv),
		Contents:     apiView(conv),
		Tools:        tool.Definitions(),
		ToolChoice:   model.ToolChoiceAuto,
	})
	if err != nil {
		msg := m.appendAndSave(conv, "assistant", classifyAPIError(err), false, nil)
		return m.finish(conv, TurnResult{Type: TurnAPIError, ChatID: conv.ID, Message: &msg})
	}

	if call, ok := resp.ToolCall(); ok {
		return m.processToolCall(ctx, conv, call)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		content = fallbackIdentity
	}
	msg := m.appendAndSave(conv, "assistant", content, false, nil)
	return m.finish(conv, TurnResult{Type: TurnTextResponse, ChatID: conv.ID, Message: &msg})
}

// processToolCall records the tool intention, dispatches the agent, and
// records the normalized outcome. Agent crashes surface as tool_error turns.
func (m *Manager) processToolCall(ctx context.Context, conv *Conversation, call core.FunctionCall) TurnResult {
	invocation, err := call.Invocation()
	if err != nil {
		msg := m.appendAndSave(conv, "assistant", fmt.Sprintf("Tool execution failed: %v", err), false, nil)
		return m.finish(conv, TurnResult{Type: TurnToolError, ChatID: conv.ID, Message: &msg})
	}

	intention := m.appendAndSave(conv, "assistant",
		fmt.Sprintf("I'll analyze that for you using %s...", invocation.FunctionName), false, nil)

	result := m.orch.Invoke(ctx, invocation, conv.ID)

	content := result.Text()
	if content == "" {
		content = "Analysis completed."
	}
	if result.Status == core.StatusFailed {
		errText := result.Error
		if errText == "" {
			errText = "Unknown error"
		}
		content = "Analysis failed: " + errText
	}

	response := m.appendAndSave(conv, "assistant", content, false, map[string]any{
		"agent_id": result.AgentID,
		"status":   result.Status,
	})

	return m.finish(conv, TurnResult{
		Type:            TurnToolCallProcessed,
		ChatID:          conv.ID,
		ToolCallMessage: &intention,
		AgentResponse:   &response,
		AgentMetadata: map[string]any{
			"agent_id":                result.AgentID,
			"status":                  result.Status,
			"notebook_path":           result.NotebookPath,
			"agent_conversation_file": result.ConversationFile,
		},
	})
}

// appendAndSave adds a message and flushes the transcript before returning.
// Persistence failures are logged; the in-memory transcript stays ahead of
// disk rather than losing the message entirely.
func (m *Manager) appendAndSave(conv *Conversation, role, content string, hidden bool, metadata map[string]any) Message {
	msg := conv.append(role, content, hidden, metadata)
	if err := conv.save(); err != nil {
		m.logger.Error("failed to persist conversation", "chat_id", conv.ID, "error", err)
	}
	return msg
}

func (m *Manager) finish(conv *Conversation, result TurnResult) TurnResult {
	m.publish(conv.ID, "message_processed", result)
	return result
}

func (m *Manager) publish(chatID, eventType string, payload any) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(broadcast.Event{Topic: "chat:" + chatID, Type: eventType, Payload: payload})
	m.hub.Publish(broadcast.Event{Topic: "global", Type: eventType, Payload: payload})
}

// augmentedInstructions extends the base system instructions with the
// reference-document index and the web-search flag derived from hidden
// transcript markers.
func (m *Manager) augmentedInstructions(conv *Conversation) string {
	var sb strings.Builder
	sb.WriteString(conv.SystemInstructions)

	if docs := conv.referenceDocs(); len(docs) > 0 {
		sb.WriteString("\n\nReference documents available for rag_knowledge_retrieval:\n")
		for _, d := range docs {
			sb.WriteString("- " + d + "\n")
		}
	}
	if conv.webSearchEnabled() {
		sb.WriteString("\n\nWeb search is enabled. Use the web_search tool when current external information would improve the answer.")
	} else {
		sb.WriteString("\n\nWeb search is disabled. Do not call the web_search tool.")
	}
	return sb.String()
}

// apiView builds the completion-API transcript: visible messages only, in
// order.
func apiView(conv *Conversation) []core.Content {
	contents := make([]core.Content, 0, len(conv.History))
	for _, msg := range conv.History {
		if msg.Hidden {
			continue
		}
		switch msg.Role {
		case "system", "user", "assistant":
			contents = append(contents, core.TextContent(msg.Role, msg.Content))
		}
	}
	return contents
}

// AddReferenceDoc records an uploaded document path as a hidden marker.
func (m *Manager) AddReferenceDoc(chatID, path string) error {
	conv, lock, err := m.conversation(chatID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()
	conv.append("system", markerReferenceDoc+path, true, nil)
	return conv.save()
}

// SetWebSearchEnabled toggles web search for the conversation.
func (m *Manager) SetWebSearchEnabled(chatID string, enabled bool) error {
	conv, lock, err := m.conversation(chatID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()
	if enabled {
		conv.append("system", markerWebSearchEnabled+"Use web search agent tool for enhanced responses with current information", true, nil)
	} else {
		conv.append("system", markerWebSearchDisabled+"Disable web search agent tool", true, nil)
	}
	return conv.save()
}

// HiddenReferenceDocs lists the document paths registered for retrieval.
func (m *Manager) HiddenReferenceDocs(chatID string) ([]string, error) {
	conv, lock, err := m.conversation(chatID)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()
	return conv.referenceDocs(), nil
}

// WebSearchEnabled reports the conversation's current search toggle.
func (m *Manager) WebSearchEnabled(chatID string) (bool, error) {
	conv, lock, err := m.conversation(chatID)
	if err != nil {
		return false, err
	}
	lock.Lock()
	defer lock.Unlock()
	return conv.webSearchEnabled(), nil
}

// History returns the visible transcript for UI rendering.
func (m *Manager) History(chatID string) ([]Message, error) {
	conv, lock, err := m.conversation(chatID)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()
	out := make([]Message, 0, len(conv.History))
	for _, msg := range conv.History {
		if !msg.Hidden {
			out = append(out, msg)
		}
	}
	return out, nil
}

// classifyAPIError maps completion-API failures to fixed user-facing
// messages. Raw provider errors never reach the UI.
func classifyAPIError(err error) string {
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "401") || strings.Contains(text, "unauthorized") || strings.Contains(text, "invalid api key") || strings.Contains(text, "authentication"):
		return "Your API key was rejected. Please verify it in settings."
	case strings.Contains(text, "429") || strings.Contains(text, "rate limit") || strings.Contains(text, "quota"):
		return "The model provider is rate limiting requests. Please wait a moment and try again."
	case strings.Contains(text, "model") && (strings.Contains(text, "not found") || strings.Contains(text, "does not exist") || strings.Contains(text, "decommissioned")):
		return "The configured model is not available. Please choose a different model in settings."
	default:
		return "The completion service returned an error. Please try again."
	}
}
