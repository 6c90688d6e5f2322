package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/internal/testutil"
	"github.com/oss-labs/datalab/kernel"
	"github.com/oss-labs/datalab/model"
	"github.com/oss-labs/datalab/tool"
)

func analysisCall(t *testing.T, dir string) core.ToolInvocation {
	t.Helper()
	dataFile := filepath.Join(dir, "sales.csv")
	require.NoError(t, os.WriteFile(dataFile, []byte("region,amount\nnorth,10\n"), 0o644))
	return core.ToolInvocation{
		FunctionName: tool.FuncFullAnalysis,
		Arguments: map[string]any{
			"file_path":    dataFile,
			"tasks":        []any{"load the data", "profile columns"},
			"instructions": "keep it brief",
		},
	}
}

func factoryFor(m model.Model) ModelFactory {
	return func() (model.Model, error) { return m, nil }
}

func TestAnalysisRunCompletesOnConclusion(t *testing.T) {
	dir := t.TempDir()
	mdl := testutil.NewScriptedModel(
		`{"python": "fmt.Println(2+2)"}`,
		`{"markdown": "### Data loaded"}`,
		`{"conclusion": "The analysis finished with consistent results."}`,
	)
	session := testutil.NewFakeSession(kernel.ExecResult{Success: true, Output: "4\n"})

	var states []RunState
	a := NewAnalysisAgent(factoryFor(mdl), session.Factory(), dir, nil,
		WithRunObserver(func(s RunState) { states = append(states, s) }))

	result := a.Process(context.Background(), analysisCall(t, dir), "chat1")

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, "The analysis finished with consistent results.", result.Conclusion)
	assert.Equal(t, 1, result.CellsExecuted)
	assert.Equal(t, 3, result.StepsProcessed)
	assert.Equal(t, 3, mdl.Calls())
	assert.True(t, session.WasShutdown())

	require.NotEmpty(t, states)
	assert.Equal(t, core.StatusStarted, states[0].Status)
	final := states[len(states)-1]
	assert.Equal(t, core.StatusCompleted, final.Status)

	// Execution feedback is fed back into the transcript.
	var sawOutput bool
	for _, msg := range final.AgentFlow {
		if msg.Role == "user" && strings.Contains(msg.Content, "Output: 4") {
			sawOutput = true
		}
	}
	assert.True(t, sawOutput)

	assert.FileExists(t, result.NotebookPath)
	assert.FileExists(t, result.ConversationFile)
}

func TestAnalysisRunRecoversFromMalformedReply(t *testing.T) {
	dir := t.TempDir()
	mdl := testutil.NewScriptedModel(
		"I think we should load the data first.",
		`{"conclusion": "Done after recovery."}`,
	)
	session := testutil.NewFakeSession()

	a := NewAnalysisAgent(factoryFor(mdl), session.Factory(), dir, nil)
	result := a.Process(context.Background(), analysisCall(t, dir), "chat1")

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, 2, mdl.Calls())

	// The corrective reminder is the message immediately after the malformed
	// assistant reply.
	reqs := mdl.Requests()
	require.Len(t, reqs, 2)
	second := reqs[1].Contents
	last := second[len(second)-1]
	assert.Contains(t, last.Text(), "malformed")
}

func TestAnalysisRunStopsAtMaxSteps(t *testing.T) {
	dir := t.TempDir()
	mdl := testutil.NewScriptedModel(`{"python": "fmt.Println(1)"}`)
	session := testutil.NewFakeSession(kernel.ExecResult{Success: true, Output: "1\n"})

	a := NewAnalysisAgent(factoryFor(mdl), session.Factory(), dir, nil, WithMaxSteps(3))
	result := a.Process(context.Background(), analysisCall(t, dir), "chat1")

	assert.Equal(t, core.StatusIncomplete, result.Status)
	assert.Equal(t, "Analysis incomplete - reached maximum steps (3)", result.Conclusion)
	assert.Equal(t, 3, mdl.Calls())
	assert.Equal(t, 3, result.CellsExecuted)
}

func TestAnalysisRunConclusionOnFinalStepCompletes(t *testing.T) {
	dir := t.TempDir()
	mdl := testutil.NewScriptedModel(
		`{"python": "fmt.Println(1)"}`,
		`{"conclusion": "Wrapped up on the last allowed step."}`,
	)
	session := testutil.NewFakeSession(kernel.ExecResult{Success: true, Output: "1\n"})

	a := NewAnalysisAgent(factoryFor(mdl), session.Factory(), dir, nil, WithMaxSteps(2))
	result := a.Process(context.Background(), analysisCall(t, dir), "chat1")

	// A conclusion delivered exactly on the step limit still counts.
	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Equal(t, "Wrapped up on the last allowed step.", result.Conclusion)
	assert.Equal(t, 2, result.StepsProcessed)
}

func TestAnalysisRunFailureConclusion(t *testing.T) {
	dir := t.TempDir()
	mdl := testutil.NewScriptedModel(`{"conclusion": "Analysis failed: the file could not be parsed."}`)
	session := testutil.NewFakeSession()

	a := NewAnalysisAgent(factoryFor(mdl), session.Factory(), dir, nil)
	result := a.Process(context.Background(), analysisCall(t, dir), "chat1")

	assert.Equal(t, core.StatusFailed, result.Status)
}

func TestAnalysisRunMissingFileFailsBeforeModelCall(t *testing.T) {
	dir := t.TempDir()
	mdl := testutil.NewScriptedModel(`{"conclusion": "never reached"}`)
	session := testutil.NewFakeSession()

	a := NewAnalysisAgent(factoryFor(mdl), session.Factory(), dir, nil)
	call := core.ToolInvocation{
		FunctionName: tool.FuncFullAnalysis,
		Arguments:    map[string]any{"file_path": filepath.Join(dir, "missing.csv")},
	}
	result := a.Process(context.Background(), call, "chat1")

	assert.Equal(t, core.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "not found")
	assert.Equal(t, 0, mdl.Calls())
}

func TestAnalysisRunConfigFaultIsFatal(t *testing.T) {
	dir := t.TempDir()
	session := testutil.NewFakeSession()
	factory := func() (model.Model, error) { return nil, fmt.Errorf("no valid API key configured") }

	a := NewAnalysisAgent(factory, session.Factory(), dir, nil)
	result := a.Process(context.Background(), analysisCall(t, dir), "chat1")

	assert.Equal(t, core.StatusFailed, result.Status)
	assert.Contains(t, result.Conclusion, "Analysis failed")
	assert.True(t, session.WasShutdown())
}

func TestConclusionSignalsFailure(t *testing.T) {
	assert.True(t, conclusionSignalsFailure("Analysis failed: corrupt file"))
	assert.True(t, conclusionSignalsFailure("The import FAILED early"))
	assert.False(t, conclusionSignalsFailure("All checks passed"))
}

func TestCodeFeedback(t *testing.T) {
	assert.Equal(t, "Code executed successfully with no output.",
		codeFeedback(kernel.ExecResult{Success: true}))
	assert.Equal(t, "Output: 4",
		codeFeedback(kernel.ExecResult{Success: true, Output: "4\n"}))
	assert.Equal(t, "Visualization generated successfully in notebook.",
		codeFeedback(kernel.ExecResult{Success: true, IsGraph: true}))
	assert.Contains(t,
		codeFeedback(kernel.ExecResult{Success: false, Error: "boom"}),
		"Execution failed: boom")
}
