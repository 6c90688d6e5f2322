package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortID(t *testing.T) {
	a := ShortID()
	b := ShortID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}

func TestToolInvocationArgHelpers(t *testing.T) {
	inv := ToolInvocation{
		FunctionName: "full_dataset_analysis",
		Arguments: map[string]any{
			"file_path":     "/data/sales.csv",
			"tasks":         []any{"load", 42, "profile"},
			"max_documents": float64(7),
		},
	}

	assert.Equal(t, "/data/sales.csv", inv.StringArg("file_path", ""))
	assert.Equal(t, "fallback", inv.StringArg("missing", "fallback"))
	assert.Equal(t, []string{"load", "profile"}, inv.StringSliceArg("tasks"))
	assert.Nil(t, inv.StringSliceArg("missing"))
	assert.Equal(t, 7, inv.IntArg("max_documents", 5))
	assert.Equal(t, 5, inv.IntArg("missing", 5))
}

func TestFunctionCallInvocation(t *testing.T) {
	call := FunctionCall{
		ID:        "call_1",
		Name:      "web_search",
		Arguments: `{"query": "go 1.24", "categories": "general"}`,
	}

	inv, err := call.Invocation()
	require.NoError(t, err)
	assert.Equal(t, "web_search", inv.FunctionName)
	assert.Equal(t, "go 1.24", inv.StringArg("query", ""))
}

func TestFunctionCallInvocationBadPayload(t *testing.T) {
	call := FunctionCall{Name: "web_search", Arguments: `not json`}
	_, err := call.Invocation()
	assert.Error(t, err)
}

func TestFunctionCallInvocationEmptyPayload(t *testing.T) {
	inv, err := FunctionCall{Name: "web_search"}.Invocation()
	require.NoError(t, err)
	assert.Empty(t, inv.Arguments)
}

func TestContentTextAndFunctionCalls(t *testing.T) {
	c := Content{
		Role: "assistant",
		Parts: []Part{
			TextPart{Text: "calling a tool"},
			FunctionCallPart{FunctionCall: FunctionCall{Name: "web_search"}},
		},
	}
	assert.Equal(t, "calling a tool", c.Text())
	require.Len(t, c.FunctionCalls(), 1)
	assert.Equal(t, "web_search", c.FunctionCalls()[0].Name)
}

func TestAgentResultText(t *testing.T) {
	assert.Equal(t, "sum", AgentResult{Summary: "sum", Conclusion: "conc"}.Text())
	assert.Equal(t, "conc", AgentResult{Conclusion: "conc"}.Text())
}

func TestFailedAndUnavailableResults(t *testing.T) {
	failed := FailedResult("agent_x", "broken pipe")
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "broken pipe", failed.Error)
	assert.Contains(t, failed.Summary, "Analysis failed")

	unavailable := UnavailableResult("agent_y", "Capability disabled.", "no backend")
	assert.Equal(t, StatusUnavailable, unavailable.Status)
	assert.Equal(t, "Capability disabled.", unavailable.Summary)
}
