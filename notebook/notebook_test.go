package notebook

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oss-labs/datalab/internal/testutil"
	"github.com/oss-labs/datalab/kernel"
)

func tempNotebook(t *testing.T) *Store {
	t.Helper()
	store, err := Create(filepath.Join(t.TempDir(), "analysis_abc123.ipynb"), nil)
	require.NoError(t, err)
	return store
}

func TestCreatePersistsEmptyDocument(t *testing.T) {
	store := tempNotebook(t)

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.EqualValues(t, 4, doc["nbformat"])
	assert.Contains(t, doc, "cells")
	assert.Contains(t, doc, "metadata")
}

func TestCreateLoadsExistingDocument(t *testing.T) {
	store := tempNotebook(t)
	require.NoError(t, store.AppendMarkdown("## Existing analysis"))

	reopened, err := Create(store.Path(), nil)
	require.NoError(t, err)

	cells := reopened.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, "## Existing analysis", cells[0].Source)
}

func TestAppendCodeAndAttachOutput(t *testing.T) {
	store := tempNotebook(t)

	cellID, err := store.AppendCode(`fmt.Println("hi")`, 1)
	require.NoError(t, err)
	require.NotEmpty(t, cellID)

	require.NoError(t, store.AttachOutput(cellID, []string{"hi\n"}, nil))

	cells := store.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, CellCode, cells[0].Type)
	assert.Equal(t, 1, cells[0].ExecutionCount)
	require.Len(t, cells[0].Outputs, 1)
	assert.Equal(t, "stdout", cells[0].Outputs[0].Name)
	assert.Equal(t, "hi\n", cells[0].Outputs[0].Text)
}

func TestAttachOutputRewritesErrors(t *testing.T) {
	store := tempNotebook(t)
	cellID, err := store.AppendCode(`broken`, 1)
	require.NoError(t, err)

	require.NoError(t, store.AttachOutput(cellID, nil, []string{"undefined: broken"}))
	require.NoError(t, store.AttachOutput(cellID, nil, []string{"still broken"}))

	cells := store.Cells()
	require.Len(t, cells[0].Outputs, 1)
	assert.Equal(t, "stderr", cells[0].Outputs[0].Name)
	assert.Equal(t, "still broken", cells[0].Outputs[0].Text)
}

func TestAttachOutputUnknownCell(t *testing.T) {
	store := tempNotebook(t)
	assert.Error(t, store.AttachOutput("nope", []string{"x"}, nil))
}

func TestEngineRunCodeCellRecordsResult(t *testing.T) {
	store := tempNotebook(t)
	session := testutil.NewFakeSession(kernel.ExecResult{Success: true, Output: "4\n"})
	engine := NewEngine(store, session, nil)

	res := engine.RunCodeCell(context.Background(), "fmt.Println(2+2)", 1)
	assert.True(t, res.Success)

	cells := store.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, "fmt.Println(2+2)", cells[0].Source)
	require.Len(t, cells[0].Outputs, 1)
	assert.Equal(t, "4\n", cells[0].Outputs[0].Text)
}

func TestEngineRunCodeCellKeepsCellOnFailure(t *testing.T) {
	store := tempNotebook(t)
	session := testutil.NewFakeSession(kernel.ExecResult{Success: false, Error: "boom"})
	engine := NewEngine(store, session, nil)

	res := engine.RunCodeCell(context.Background(), "explode()", 1)
	assert.False(t, res.Success)

	cells := store.Cells()
	require.Len(t, cells, 1)
	require.Len(t, cells[0].Outputs, 1)
	assert.Equal(t, "stderr", cells[0].Outputs[0].Name)
}

func TestReexecuteAllRefreshesOutputs(t *testing.T) {
	store := tempNotebook(t)
	require.NoError(t, store.AppendMarkdown("## Analysis"))
	id1, err := store.AppendCode("x := 1", 1)
	require.NoError(t, err)
	id2, err := store.AppendCode("fmt.Println(x)", 2)
	require.NoError(t, err)
	require.NoError(t, store.AttachOutput(id1, []string{"stale"}, nil))
	require.NoError(t, store.AttachOutput(id2, []string{"stale"}, nil))

	session := testutil.NewFakeSession(
		kernel.ExecResult{Success: true},
		kernel.ExecResult{Success: true, Output: "1\n"},
	)
	require.NoError(t, ReexecuteAll(context.Background(), store, session.Factory(), nil, 0))

	assert.Equal(t, []string{"x := 1", "fmt.Println(x)"}, session.Executed())
	assert.True(t, session.WasShutdown())

	cells := store.Cells()
	require.Len(t, cells, 3)
	assert.Empty(t, cells[1].Outputs)
	assert.Equal(t, 1, cells[1].ExecutionCount)
	require.Len(t, cells[2].Outputs, 1)
	assert.Equal(t, "1\n", cells[2].Outputs[0].Text)
	assert.Equal(t, 2, cells[2].ExecutionCount)
}

func TestReexecuteAllToleratesFailingCell(t *testing.T) {
	store := tempNotebook(t)
	_, err := store.AppendCode("broken", 1)
	require.NoError(t, err)
	_, err = store.AppendCode("fmt.Println(1)", 2)
	require.NoError(t, err)

	session := testutil.NewFakeSession(
		kernel.ExecResult{Success: false, Error: "undefined: broken"},
		kernel.ExecResult{Success: true, Output: "1\n"},
	)
	require.NoError(t, ReexecuteAll(context.Background(), store, session.Factory(), nil, 0))

	assert.Len(t, session.Executed(), 2)
	cells := store.Cells()
	require.Len(t, cells[0].Outputs, 1)
	assert.Equal(t, "stderr", cells[0].Outputs[0].Name)
}

func TestCellSourceStringOrListDecoding(t *testing.T) {
	raw := `{
 "cells": [
  {"cell_type": "markdown", "id": "m1", "metadata": {}, "source": ["line one\n", "line two"]},
  {"cell_type": "code", "id": "c1", "metadata": {}, "execution_count": 1, "outputs": [], "source": "x := 1"}
 ],
 "metadata": {},
 "nbformat": 4,
 "nbformat_minor": 5
}`
	path := filepath.Join(t.TempDir(), "imported.ipynb")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	store, err := Create(path, nil)
	require.NoError(t, err)

	cells := store.Cells()
	require.Len(t, cells, 2)
	assert.Equal(t, "line one\nline two", cells[0].Source)
	assert.Equal(t, "x := 1", cells[1].Source)
}
