// Package core defines the shared value types exchanged between the chat
// manager, the tool orchestrator and the specialized agents: role-based
// content parts, the tool invocation envelope and the normalized agent
// result. It has no dependencies on any concrete provider or agent.
package core

import (
	"time"

	"github.com/google/uuid"
)

// Status values reported by agents and analysis runs.
const (
	StatusStarted        = "started"
	StatusProcessing     = "processing"
	StatusErrorRecovered = "error_recovered"
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusUnavailable    = "unavailable"
	StatusIncomplete     = "incomplete"
)

// NewID generates a new unique identifier (messages, cells, run sessions).
func NewID() string { return uuid.NewString() }

// ShortID returns a compact 8 character identifier used for chat folders and
// agent session files where a full UUID is unwieldy.
func ShortID() string {
	id := uuid.NewString()
	return id[:8]
}

// ToolInvocation is the envelope passed from the conversation turn handler to
// the orchestrator: a function name proposed by the model plus its decoded
// arguments.
type ToolInvocation struct {
	FunctionName string         `json:"function_name"`
	Arguments    map[string]any `json:"arguments"`
}

// StringArg returns the named argument as a string, or def when absent or of
// a different type.
func (t ToolInvocation) StringArg(name, def string) string {
	if v, ok := t.Arguments[name].(string); ok {
		return v
	}
	return def
}

// StringSliceArg returns the named argument as a string slice. JSON decoding
// yields []any, so elements are converted individually; non-string elements
// are skipped.
func (t ToolInvocation) StringSliceArg(name string) []string {
	raw, ok := t.Arguments[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// IntArg returns the named argument as an int, or def when absent. JSON
// numbers decode as float64.
func (t ToolInvocation) IntArg(name string, def int) int {
	if v, ok := t.Arguments[name].(float64); ok {
		return int(v)
	}
	return def
}

// AgentResult is the normalized envelope every specialized agent returns to
// the orchestrator. Exactly one of Summary/Conclusion carries the
// human-facing text: Summary for single-shot agents (metadata, search,
// retrieval), Conclusion for full analysis runs.
type AgentResult struct {
	AgentID          string    `json:"agent_id"`
	Summary          string    `json:"summary,omitempty"`
	Conclusion       string    `json:"conclusion,omitempty"`
	Status           string    `json:"status"`
	Error            string    `json:"error,omitempty"`
	NotebookPath     string    `json:"notebook_path,omitempty"`
	ConversationFile string    `json:"agent_conversation_file,omitempty"`
	CellsExecuted    int       `json:"cells_executed,omitempty"`
	StepsProcessed   int       `json:"steps_processed,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Text returns the human-facing text of the result regardless of which
// field the producing agent populated.
func (r AgentResult) Text() string {
	if r.Summary != "" {
		return r.Summary
	}
	return r.Conclusion
}

// FailedResult builds a failed AgentResult with the given error text.
func FailedResult(agentID, errText string) AgentResult {
	return AgentResult{
		AgentID:   agentID,
		Status:    StatusFailed,
		Error:     errText,
		Summary:   "Analysis failed: " + errText,
		Timestamp: time.Now().UTC(),
	}
}

// UnavailableResult builds an AgentResult for an optional capability that
// failed to initialize. Callers must not retry automatically; the user-facing
// message explains "not enabled" rather than "crashed".
func UnavailableResult(agentID, summary, errText string) AgentResult {
	return AgentResult{
		AgentID:   agentID,
		Status:    StatusUnavailable,
		Summary:   summary,
		Error:     errText,
		Timestamp: time.Now().UTC(),
	}
}
