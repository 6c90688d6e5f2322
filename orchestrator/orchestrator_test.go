package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/tool"
)

type stubAgent struct {
	id        string
	result    core.AgentResult
	panicWith any
	calls     int
}

func (s *stubAgent) ID() string { return s.id }

func (s *stubAgent) Process(_ context.Context, _ core.ToolInvocation, _ string) core.AgentResult {
	s.calls++
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.result
}

type stubOptionalAgent struct {
	stubAgent
	available bool
}

func (s *stubOptionalAgent) Available() bool { return s.available }

func TestInvokeRoutesToRegisteredAgent(t *testing.T) {
	analysis := &stubAgent{id: "full_analysis_agent", result: core.AgentResult{
		AgentID: "full_analysis_agent",
		Status:  core.StatusCompleted,
		Summary: "done",
	}}
	o := New(Options{Analysis: analysis})

	result := o.Invoke(context.Background(), core.ToolInvocation{
		FunctionName: tool.FuncFullAnalysis,
	}, "chat1")

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, 1, analysis.calls)
}

func TestInvokeUnknownFunction(t *testing.T) {
	o := New(Options{})
	result := o.Invoke(context.Background(), core.ToolInvocation{
		FunctionName: "delete_everything",
	}, "chat1")

	assert.Equal(t, core.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "No agent found for function 'delete_everything'")
}

func TestInvokeUnconfiguredAgent(t *testing.T) {
	o := New(Options{})
	result := o.Invoke(context.Background(), core.ToolInvocation{
		FunctionName: tool.FuncWebSearch,
	}, "chat1")

	assert.Equal(t, core.StatusUnavailable, result.Status)
}

func TestInvokeUnavailableAgent(t *testing.T) {
	search := &stubOptionalAgent{stubAgent: stubAgent{id: "web_search_agent"}}
	o := New(Options{WebSearch: search})

	result := o.Invoke(context.Background(), core.ToolInvocation{
		FunctionName: tool.FuncWebSearch,
	}, "chat1")

	assert.Equal(t, core.StatusUnavailable, result.Status)
	assert.Equal(t, 0, search.calls)
}

func TestInvokeRecoversAgentPanic(t *testing.T) {
	metadata := &stubAgent{id: "metadata_agent", panicWith: "nil pointer"}
	o := New(Options{Metadata: metadata})

	result := o.Invoke(context.Background(), core.ToolInvocation{
		FunctionName: tool.FuncMetadataAnalysis,
	}, "chat1")

	assert.Equal(t, core.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "nil pointer")
}

func TestAvailableTools(t *testing.T) {
	search := &stubOptionalAgent{stubAgent: stubAgent{id: "web_search_agent"}}
	o := New(Options{
		Metadata:  &stubAgent{id: "metadata_agent"},
		Analysis:  &stubAgent{id: "full_analysis_agent"},
		WebSearch: search,
	})

	tools := o.AvailableTools()
	assert.True(t, tools[tool.FuncMetadataAnalysis])
	assert.True(t, tools[tool.FuncFullAnalysis])
	assert.False(t, tools[tool.FuncWebSearch])
	assert.False(t, tools[tool.FuncRetrieval])
}
