package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/logging"
	"github.com/oss-labs/datalab/model"
)

// Chunk is one retrieved passage with its source reference.
type Chunk struct {
	Source  string
	Content string
}

// Retriever answers similarity queries over the documents indexed for a
// conversation.
type Retriever interface {
	Query(ctx context.Context, chatID, query string, maxDocs int) ([]Chunk, error)
}

// RetrievalAgent composes a retriever with the model to answer questions
// grounded in previously uploaded reference documents.
type RetrievalAgent struct {
	id        string
	models    ModelFactory
	retriever Retriever
	logger    logging.Logger
}

// NewRetrievalAgent constructs the knowledge retrieval agent. A nil
// retriever yields an agent that reports itself unavailable.
func NewRetrievalAgent(models ModelFactory, retriever Retriever, logger logging.Logger) *RetrievalAgent {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &RetrievalAgent{
		id:        "rag_agent",
		models:    models,
		retriever: retriever,
		logger:    logger,
	}
}

// ID implements Agent.
func (a *RetrievalAgent) ID() string { return a.id }

// Available reports whether a retriever backend was configured.
func (a *RetrievalAgent) Available() bool { return a.retriever != nil }

// Process retrieves matching chunks and synthesizes a grounded answer.
func (a *RetrievalAgent) Process(ctx context.Context, call core.ToolInvocation, parentID string) core.AgentResult {
	if a.retriever == nil {
		return core.UnavailableResult(a.id,
			"Knowledge retrieval is not enabled. No document index is configured.",
			"retrieval backend unavailable")
	}
	query := strings.TrimSpace(call.StringArg("query", ""))
	if query == "" {
		return core.FailedResult(a.id, "invalid tool call arguments: query is required")
	}
	maxDocs := call.IntArg("max_documents", 5)
	if maxDocs <= 0 {
		maxDocs = 5
	}

	chunks, err := a.retriever.Query(ctx, parentID, query, maxDocs)
	if err != nil {
		return core.FailedResult(a.id, fmt.Sprintf("retrieval failed: %v", err))
	}
	if len(chunks) == 0 {
		return core.FailedResult(a.id, fmt.Sprintf("no relevant documents found for %q", query))
	}

	answer, err := a.answer(ctx, query, chunks)
	if err != nil {
		return core.FailedResult(a.id, fmt.Sprintf("answer synthesis failed: %v", err))
	}

	return core.AgentResult{
		AgentID:   a.id,
		Summary:   answer,
		Status:    core.StatusCompleted,
		Timestamp: time.Now().UTC(),
	}
}

func (a *RetrievalAgent) answer(ctx context.Context, query string, chunks []Chunk) (string, error) {
	mdl, err := a.models()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nContext passages:\n", query)
	for i, c := range chunks {
		fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, c.Source, excerpt(c.Content, 2000))
	}
	sb.WriteString("Answer the question using only the passages above. Cite passage numbers.")

	temp := 0.3
	resp, err := mdl.Generate(ctx, model.Request{
		Contents:    []core.Content{core.TextContent("user", sb.String())},
		MaxTokens:   1000,
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
