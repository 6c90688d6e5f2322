package agent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/internal/testutil"
	"github.com/oss-labs/datalab/kernel"
	"github.com/oss-labs/datalab/tool"
)

func TestMetadataAgentMissingFileFailsWithoutModelCall(t *testing.T) {
	dir := t.TempDir()
	mdl := testutil.NewScriptedModel("should never be called")
	session := testutil.NewFakeSession()

	a := NewMetadataAgent(factoryFor(mdl), session.Factory(), dir, nil)
	call := core.ToolInvocation{
		FunctionName: tool.FuncMetadataAnalysis,
		Arguments:    map[string]any{"file_path": filepath.Join(dir, "nope.csv")},
	}
	result := a.Process(context.Background(), call, "chat1")

	assert.Equal(t, core.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "not found")
	assert.Equal(t, 0, mdl.Calls())
	assert.Empty(t, session.Executed())
}

func TestMetadataAgentHappyPath(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "orders.csv")
	require.NoError(t, os.WriteFile(dataFile, []byte("id,total\n1,9.5\n"), 0o644))

	mdl := testutil.NewScriptedModel(
		"```go\nfmt.Println(\"rows: 1\")\n```",
		"The dataset has 1 row and 2 columns: id, total.",
	)
	session := testutil.NewFakeSession(kernel.ExecResult{Success: true, Output: "rows: 1\n"})

	a := NewMetadataAgent(factoryFor(mdl), session.Factory(), dir, nil)
	call := core.ToolInvocation{
		FunctionName: tool.FuncMetadataAnalysis,
		Arguments:    map[string]any{"file_path": dataFile, "instructions": "just the shape"},
	}
	result := a.Process(context.Background(), call, "chat1")

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Contains(t, result.Summary, "1 row")
	assert.Empty(t, result.Conclusion)
	assert.Equal(t, 2, mdl.Calls())
	assert.True(t, session.WasShutdown())

	// The fence was stripped before execution.
	executed := session.Executed()
	require.Len(t, executed, 1)
	assert.Equal(t, `fmt.Println("rows: 1")`, executed[0])

	assert.FileExists(t, result.ConversationFile)
}

func TestMetadataAgentExecutionFailure(t *testing.T) {
	dir := t.TempDir()
	dataFile := filepath.Join(dir, "orders.csv")
	require.NoError(t, os.WriteFile(dataFile, []byte("id\n1\n"), 0o644))

	mdl := testutil.NewScriptedModel("fmt.Println(undefinedVar)")
	session := testutil.NewFakeSession(kernel.ExecResult{Success: false, Error: "undefined: undefinedVar"})

	a := NewMetadataAgent(factoryFor(mdl), session.Factory(), dir, nil)
	call := core.ToolInvocation{
		FunctionName: tool.FuncMetadataAnalysis,
		Arguments:    map[string]any{"file_path": dataFile},
	}
	result := a.Process(context.Background(), call, "chat1")

	assert.Equal(t, core.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "undefined")
}
