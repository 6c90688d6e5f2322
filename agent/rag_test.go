package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/internal/testutil"
	"github.com/oss-labs/datalab/tool"
)

type staticRetriever struct {
	chunks []Chunk
	err    error
}

func (r staticRetriever) Query(_ context.Context, _, _ string, _ int) ([]Chunk, error) {
	return r.chunks, r.err
}

func TestRetrievalAgentUnavailableWithoutBackend(t *testing.T) {
	a := NewRetrievalAgent(factoryFor(testutil.NewScriptedModel("unused")), nil, nil)
	assert.False(t, a.Available())

	result := a.Process(context.Background(), core.ToolInvocation{
		FunctionName: tool.FuncRetrieval,
		Arguments:    map[string]any{"query": "payment terms"},
	}, "chat1")
	assert.Equal(t, core.StatusUnavailable, result.Status)
}

func TestRetrievalAgentAnswersFromChunks(t *testing.T) {
	retriever := staticRetriever{chunks: []Chunk{
		{Source: "contract.pdf", Content: "Payment is due within 30 days."},
	}}
	mdl := testutil.NewScriptedModel("Payment is due within 30 days [1].")

	a := NewRetrievalAgent(factoryFor(mdl), retriever, nil)
	result := a.Process(context.Background(), core.ToolInvocation{
		FunctionName: tool.FuncRetrieval,
		Arguments:    map[string]any{"query": "when is payment due", "max_documents": float64(3)},
	}, "chat1")

	assert.Equal(t, core.StatusCompleted, result.Status)
	assert.Contains(t, result.Summary, "30 days")
	assert.Empty(t, result.Conclusion)

	// The retrieved passage reached the model.
	reqs := mdl.Requests()
	assert.Contains(t, reqs[0].Contents[0].Text(), "contract.pdf")
}

func TestRetrievalAgentNoMatches(t *testing.T) {
	a := NewRetrievalAgent(factoryFor(testutil.NewScriptedModel("unused")), staticRetriever{}, nil)
	result := a.Process(context.Background(), core.ToolInvocation{
		FunctionName: tool.FuncRetrieval,
		Arguments:    map[string]any{"query": "nothing indexed"},
	}, "chat1")
	assert.Equal(t, core.StatusFailed, result.Status)
	assert.Contains(t, result.Error, "no relevant documents")
}
