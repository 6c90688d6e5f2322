package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/kernel"
	"github.com/oss-labs/datalab/logging"
	"github.com/oss-labs/datalab/model"
)

// metadataExecTimeout bounds the single profiling snippet execution.
const metadataExecTimeout = 15 * time.Second

// MetadataAgent produces a lightweight structural profile of a dataset:
// one generated code snippet, one kernel execution, one summary call. It
// never opens a notebook.
type MetadataAgent struct {
	id       string
	models   ModelFactory
	sessions kernel.SessionFactory
	chatDir  string
	logger   logging.Logger
}

// NewMetadataAgent constructs the metadata analysis agent.
func NewMetadataAgent(models ModelFactory, sessions kernel.SessionFactory, chatDir string, logger logging.Logger) *MetadataAgent {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &MetadataAgent{
		id:       "metadata_agent",
		models:   models,
		sessions: sessions,
		chatDir:  chatDir,
		logger:   logger,
	}
}

// ID implements Agent.
func (a *MetadataAgent) ID() string { return a.id }

// Process profiles the dataset named by the tool call. Validation failures
// are reported before any model call is made.
func (a *MetadataAgent) Process(ctx context.Context, call core.ToolInvocation, parentID string) core.AgentResult {
	sessionID := core.ShortID()
	if parentID == "" {
		parentID = core.ShortID()
	}

	filePath := call.StringArg("file_path", "")
	if filePath == "" {
		return core.FailedResult(a.id, "invalid tool call arguments: file_path is required")
	}
	if abs, err := filepath.Abs(filePath); err == nil {
		filePath = abs
	}
	if _, err := os.Stat(filePath); err != nil {
		return core.FailedResult(a.id, fmt.Sprintf("file not found: %s", filePath))
	}
	instructions := call.StringArg("instructions", "")

	mdl, err := a.models()
	if err != nil {
		return core.FailedResult(a.id, fmt.Sprintf("model configuration error: %v", err))
	}

	code, err := a.generateCode(ctx, mdl, filePath, instructions)
	if err != nil {
		return core.FailedResult(a.id, fmt.Sprintf("code generation failed: %v", err))
	}

	res, err := a.execute(ctx, code)
	if err != nil {
		return core.FailedResult(a.id, err.Error())
	}
	if !res.Success {
		return core.FailedResult(a.id, "metadata extraction failed: "+excerpt(res.Error, 300))
	}

	summary, err := a.summarize(ctx, mdl, filePath, res.Output)
	if err != nil {
		// The raw profile is still useful; degrade instead of failing.
		a.logger.Warn("metadata summary call failed, returning raw output", "error", err)
		summary = res.Output
	}

	convFile := filepath.Join(a.chatDir, parentID, fmt.Sprintf("%s_%s.json", a.id, sessionID))
	state := RunState{
		SessionID: sessionID,
		ParentID:  parentID,
		AgentID:   a.id,
		Timestamp: time.Now().UTC(),
		ToolCall:  call,
		AgentFlow: []FlowMessage{
			{Role: "system", Content: metadataInstructions},
			{Role: "assistant", Content: code},
			{Role: "user", Content: "Execution output:\n" + res.Output},
			{Role: "assistant", Content: summary},
		},
		Status:     core.StatusCompleted,
		Conclusion: summary,
	}
	if err := os.MkdirAll(filepath.Dir(convFile), 0o755); err == nil {
		if err := state.Checkpoint(convFile); err != nil {
			a.logger.Error("failed to persist metadata conversation", "error", err)
		}
	}

	return core.AgentResult{
		AgentID:          a.id,
		Summary:          summary,
		Status:           core.StatusCompleted,
		ConversationFile: convFile,
		CellsExecuted:    1,
		StepsProcessed:   1,
		Timestamp:        time.Now().UTC(),
	}
}

// generateCode asks the model for a single profiling snippet and strips any
// code fence it wrapped the snippet in.
func (a *MetadataAgent) generateCode(ctx context.Context, mdl model.Model, filePath, instructions string) (string, error) {
	temp := 0.1
	prompt := fmt.Sprintf("Write code that profiles the dataset at %s: shape, column names, types, and a small sample.", filePath)
	if instructions != "" {
		prompt += "\nAdditional instructions: " + instructions
	}
	resp, err := mdl.Generate(ctx, model.Request{
		Instructions: metadataInstructions,
		Contents:     []core.Content{core.TextContent("user", prompt)},
		MaxTokens:    600,
		Temperature:  &temp,
	})
	if err != nil {
		return "", err
	}
	code := stripCodeFence(resp.Text())
	if code == "" {
		return "", fmt.Errorf("model returned no code")
	}
	return code, nil
}

// execute runs the snippet in a throwaway kernel session.
func (a *MetadataAgent) execute(ctx context.Context, code string) (kernel.ExecResult, error) {
	session := a.sessions()
	if err := session.Start(); err != nil {
		return kernel.ExecResult{}, fmt.Errorf("kernel failed to start: %w", err)
	}
	defer session.Shutdown()
	return session.Execute(ctx, code, metadataExecTimeout), nil
}

func (a *MetadataAgent) summarize(ctx context.Context, mdl model.Model, filePath, output string) (string, error) {
	resp, err := mdl.Generate(ctx, model.Request{
		Instructions: summaryInstructions,
		Contents: []core.Content{core.TextContent("user", fmt.Sprintf(
			"Dataset: %s\n\nProfiling output:\n%s\n\nSummarize the dataset structure.",
			filePath, excerpt(output, 4000)))},
		MaxTokens: 800,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
