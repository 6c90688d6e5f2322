// Package model defines the normalized completion-API boundary. Agents and
// the chat manager depend only on the Model interface; provider packages
// (model/openai, model/anthropic) adapt their SDK wire formats into the
// strict Request/Response structs decoded once at this boundary, so internal
// code never probes provider objects for optional fields.
package model

import (
	"context"
	"fmt"

	"github.com/oss-labs/datalab/core"
)

// ToolChoice policies accepted by providers.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the
// model. Parameters is a minimal JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input.
type Request struct {
	Instructions string           `json:"instructions"` // system instructions
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice   string           `json:"tool_choice,omitempty"`
	MaxTokens    int64            `json:"max_tokens,omitempty"`
	Temperature  *float64         `json:"temperature,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the complete reply to one Request: either plain text content
// or a single proposed tool invocation, never an undecoded provider object.
type Response struct {
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Text returns the concatenated text parts of the response content.
func (r Response) Text() string { return r.Content.Text() }

// ToolCall returns the first proposed function call, if any.
func (r Response) ToolCall() (core.FunctionCall, bool) {
	calls := r.Content.FunctionCalls()
	if len(calls) == 0 {
		return core.FunctionCall{}, false
	}
	return calls[0], true
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
// Responses are keyed by the text of the last content in the request.
type MockModel struct {
	info      Info
	responses map[string]string
	calls     int
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider, SupportsTools: true},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Calls returns the number of Generate invocations observed.
func (m *MockModel) Calls() int { return m.calls }

// Generate implements Model.
func (m *MockModel) Generate(_ context.Context, req Request) (*Response, error) {
	m.calls++
	if len(req.Contents) == 0 {
		return nil, fmt.Errorf("no contents provided")
	}
	last := req.Contents[len(req.Contents)-1]
	full, ok := m.responses[last.Text()]
	if !ok {
		full = fmt.Sprintf("Mock response to: %s", last.Text())
	}
	return &Response{
		Content:      core.TextContent("assistant", full),
		FinishReason: "stop",
	}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
