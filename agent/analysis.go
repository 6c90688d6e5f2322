package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/kernel"
	"github.com/oss-labs/datalab/logging"
	"github.com/oss-labs/datalab/model"
	"github.com/oss-labs/datalab/notebook"
)

// DefaultMaxSteps bounds the number of completion-API calls per run.
const DefaultMaxSteps = 100

// AnalysisAgent drives the bounded, turn-based directive loop that
// progressively builds an analysis notebook: model reply -> parsed directive
// -> kernel execution -> synthesized feedback -> next model reply. Protocol
// violations and step-level failures are recoverable; the loop prefers
// continuing over aborting.
type AnalysisAgent struct {
	id          string
	models      ModelFactory
	sessions    kernel.SessionFactory
	chatDir     string
	maxSteps    int
	execTimeout time.Duration
	observer    RunObserver
	logger      logging.Logger
}

// AnalysisOption customizes the analysis agent.
type AnalysisOption func(*AnalysisAgent)

// WithMaxSteps overrides the step bound (mostly for tests).
func WithMaxSteps(n int) AnalysisOption {
	return func(a *AnalysisAgent) { a.maxSteps = n }
}

// WithExecTimeout overrides the per-cell kernel timeout.
func WithExecTimeout(d time.Duration) AnalysisOption {
	return func(a *AnalysisAgent) { a.execTimeout = d }
}

// WithRunObserver registers an observer notified after every checkpoint.
func WithRunObserver(obs RunObserver) AnalysisOption {
	return func(a *AnalysisAgent) { a.observer = obs }
}

// NewAnalysisAgent constructs the full-analysis agent. chatDir is the root
// folder under which per-conversation run artifacts (notebook, checkpoints)
// are stored.
func NewAnalysisAgent(
	models ModelFactory,
	sessions kernel.SessionFactory,
	chatDir string,
	logger logging.Logger,
	opts ...AnalysisOption,
) *AnalysisAgent {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	a := &AnalysisAgent{
		id:          "full_analysis_agent",
		models:      models,
		sessions:    sessions,
		chatDir:     chatDir,
		maxSteps:    DefaultMaxSteps,
		execTimeout: kernel.DefaultExecTimeout,
		logger:      logger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ID implements Agent.
func (a *AnalysisAgent) ID() string { return a.id }

// run carries the mutable state of one analysis run.
type run struct {
	state      RunState
	convFile   string
	store      *notebook.Store
	engine     *notebook.Engine
	mdl        model.Model
	cellCount  int
	stepCount  int
	done       bool
	conclusion string
}

// Process executes one full analysis run. The returned result is always
// populated; failures are reported in it, never panicked.
func (a *AnalysisAgent) Process(ctx context.Context, call core.ToolInvocation, parentID string) (result core.AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("analysis run panicked", "panic", r)
			result = core.FailedResult(a.id, fmt.Sprintf("analysis crashed: %v", r))
		}
	}()
	sessionID := core.ShortID()
	if parentID == "" {
		parentID = core.ShortID()
	}
	folder := filepath.Join(a.chatDir, parentID)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return core.FailedResult(a.id, fmt.Sprintf("cannot create run folder: %v", err))
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

	store, err := a.openRunNotebook(folder, sessionID)
	if err != nil {
		return core.FailedResult(a.id, fmt.Sprintf("notebook creation failed: %v", err))
	}

	session := a.sessions()
	if err := session.Start(); err != nil {
		return core.FailedResult(a.id, fmt.Sprintf("kernel failed to start: %v", err))
	}
	defer session.Shutdown()

	r := &run{
		convFile: filepath.Join(folder, fmt.Sprintf("%s_%s.json", a.id, sessionID)),
		store:    store,
		engine:   notebook.NewEngine(store, session, a.logger, notebook.WithExecTimeout(a.execTimeout)),
		state: RunState{
			SessionID:    sessionID,
			ParentID:     parentID,
			AgentID:      a.id,
			Timestamp:    time.Now().UTC(),
			ToolCall:     call,
			NotebookPath: store.Path(),
		},
	}

	tasks := call.StringSliceArg("tasks")
	instructions := call.StringArg("instructions", "")
	r.state.AgentFlow = []FlowMessage{
		{Role: "system", Content: analysisInstructions},
		{Role: "user", Content: criticalReminder("") + fmt.Sprintf(
			"Analyze dataset at %s\nTasks: %s\nInstructions: %s",
			filePath, strings.Join(tasks, ", "), instructions)},
	}

	a.checkpoint(r, core.StatusStarted)
	a.loop(ctx, r)

	status := a.finalize(r)

	r.state.Status = status
	r.state.Conclusion = r.conclusion
	r.state.CellsExecuted = r.cellCount
	r.state.StepsProcessed = r.stepCount
	if err := r.state.Checkpoint(r.convFile); err != nil {
		a.logger.Error("failed to save final run state", "error", err)
	}
	a.notify(r)

	return core.AgentResult{
		AgentID:          a.id,
		Conclusion:       r.conclusion,
		Status:           status,
		NotebookPath:     store.Path(),
		ConversationFile: r.convFile,
		CellsExecuted:    r.cellCount,
		StepsProcessed:   r.stepCount,
		Timestamp:        time.Now().UTC(),
	}
}

// openRunNotebook reuses an existing analysis notebook for the run folder if
// one is present (never clobbering an in-progress document), otherwise
// creates one with the run's naming convention.
func (a *AnalysisAgent) openRunNotebook(folder, sessionID string) (*notebook.Store, error) {
	matches, _ := filepath.Glob(filepath.Join(folder, "analysis_*.ipynb"))
	path := filepath.Join(folder, fmt.Sprintf("analysis_%s.ipynb", sessionID))
	if len(matches) > 0 {
		path = matches[0]
	}
	return notebook.Create(path, a.logger)
}

// loop runs directive steps until a terminal condition: conclusion, soft
// stop on an empty reply, configuration fault, or step exhaustion.
func (a *AnalysisAgent) loop(ctx context.Context, r *run) {
	for !r.done && r.stepCount < a.maxSteps {
		r.stepCount++
		a.logger.Info("processing step", "step", r.stepCount, "max_steps", a.maxSteps)

		stop := a.step(ctx, r)
		if stop {
			return
		}
	}
}

// step performs one loop iteration. It returns true when the loop must stop
// immediately (terminal directive, soft failure or fatal fault). Any panic
// inside the step is recovered into a corrective reminder so a single bad
// step never aborts the run.
func (a *AnalysisAgent) step(ctx context.Context, r *run) (stop bool) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("step panicked", "step", r.stepCount, "panic", rec)
			a.recoverStep(r, fmt.Sprintf("%v", rec))
			stop = false
		}
	}()

	if r.mdl == nil {
		mdl, err := a.models()
		if err != nil {
			// Configuration fault: fatal for the run, no retry.
			r.conclusion = fmt.Sprintf("Analysis failed: %v", err)
			r.done = true
			return true
		}
		r.mdl = mdl
	}

	resp, err := r.mdl.Generate(ctx, model.Request{
		Contents:   flowContents(r.state.AgentFlow),
		ToolChoice: model.ToolChoiceNone,
		MaxTokens:  20000,
	})
	if err != nil {
		a.recoverStep(r, fmt.Sprintf("completion call failed: %v", err))
		return false
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		// Soft failure: stop without transitioning to done.
		a.logger.Warn("empty completion reply, stopping loop", "step", r.stepCount)
		return true
	}

	r.state.AgentFlow = append(r.state.AgentFlow, FlowMessage{Role: "assistant", Content: content})
	a.checkpoint(r, core.StatusProcessing)

	directive, fault := ParseDirective(content)
	if fault != nil {
		a.logger.Warn("malformed directive", "step", r.stepCount, "reason", fault.Message())
		a.noteMarkdown(r, "### Malformed Response\n```\n"+content+"\n```")
		a.appendReminder(r, "Previous response was malformed ("+fault.Message()+"). Provide valid JSON with ONE key only.")
		a.checkpoint(r, core.StatusProcessing)
		return false
	}

	a.dispatch(ctx, r, directive)
	a.checkpoint(r, core.StatusProcessing)
	return r.done
}

// dispatch applies one parsed directive to the notebook and appends the
// feedback message that becomes the model's only signal about what happened.
func (a *AnalysisAgent) dispatch(ctx context.Context, r *run, d Directive) {
	switch d.Kind {
	case KindConclusion:
		r.done = true
		r.conclusion = d.Text
		a.noteMarkdown(r, "## Final Conclusion\n\n"+d.Text)
		a.logger.Info("analysis completed with conclusion")

	case KindCode:
		r.cellCount++
		res := a.runCell(ctx, r, d.Text)
		a.appendReminder(r, codeFeedback(res))

	case KindVisualization:
		r.cellCount++
		res := a.runCell(ctx, r, d.Text)
		if res.Success {
			a.appendReminder(r, "Visualization generated successfully in notebook")
		} else {
			a.appendReminder(r, "Visualization failed: "+excerpt(res.Error, 300))
		}

	case KindMarkdown:
		if err := r.engine.RunMarkdownCell(d.Text); err != nil {
			a.logger.Error("failed to append markdown cell", "error", err)
		}
		a.appendReminder(r, "Continue with next step")

	case KindUnknown:
		a.logger.Warn("unknown directive key", "key", d.Key)
		a.noteMarkdown(r, "### Unknown Response Type\n```\n"+d.Key+"\n```")
		a.appendReminder(r, fmt.Sprintf("Unknown key %q. Use only: python, markdown, visualization, conclusion", d.Key))
	}
}

func (a *AnalysisAgent) runCell(ctx context.Context, r *run, code string) kernel.ExecResult {
	a.logger.Info("executing code cell", "cell", r.cellCount)
	return r.engine.RunCodeCell(ctx, code, r.cellCount)
}

// recoverStep records a step-level failure in the notebook and injects a
// corrective reminder so the loop can continue.
func (a *AnalysisAgent) recoverStep(r *run, errText string) {
	a.noteMarkdown(r, fmt.Sprintf("### Error in Step %d\n```\n%s\n```", r.stepCount, errText))
	a.appendReminder(r, fmt.Sprintf("Error occurred: %s. Please continue with next step.", errText))
	a.checkpoint(r, core.StatusErrorRecovered)
}

// noteMarkdown records loop bookkeeping (malformed replies, warnings,
// errors) as markdown cells so the notebook reflects everything the loop
// believed it created.
func (a *AnalysisAgent) noteMarkdown(r *run, text string) {
	if err := r.store.AppendMarkdown(text); err != nil {
		a.logger.Error("failed to append note cell", "error", err)
	}
}

func (a *AnalysisAgent) appendReminder(r *run, feedback string) {
	r.state.AgentFlow = append(r.state.AgentFlow, FlowMessage{
		Role:    "user",
		Content: criticalReminder(feedback),
	})
}

func (a *AnalysisAgent) checkpoint(r *run, status string) {
	r.state.Status = status
	r.state.CellsExecuted = r.cellCount
	r.state.StepsProcessed = r.stepCount
	if err := r.state.Checkpoint(r.convFile); err != nil {
		a.logger.Error("failed to save checkpoint", "error", err)
	}
	a.notify(r)
}

func (a *AnalysisAgent) notify(r *run) {
	if a.observer != nil {
		a.observer(r.state)
	}
}

// finalize derives the terminal status from how the loop ended.
func (a *AnalysisAgent) finalize(r *run) string {
	switch {
	case r.stepCount >= a.maxSteps && !r.done:
		r.conclusion = fmt.Sprintf("Analysis incomplete - reached maximum steps (%d)", a.maxSteps)
		return core.StatusIncomplete
	case !r.done && r.conclusion == "":
		r.conclusion = "Analysis incomplete - ended without conclusion"
		return core.StatusIncomplete
	case conclusionSignalsFailure(r.conclusion):
		return core.StatusFailed
	default:
		return core.StatusCompleted
	}
}

// conclusionSignalsFailure reports whether the conclusion text itself
// indicates a failed analysis. String matching is a heuristic: a successful
// conclusion discussing "failed experiments" in the data is a false
// positive, and a failure phrased without the marker is a false negative.
func conclusionSignalsFailure(conclusion string) bool {
	return strings.Contains(strings.ToLower(conclusion), "failed")
}

// codeFeedback synthesizes the transcript feedback for a code cell result.
func codeFeedback(res kernel.ExecResult) string {
	if !res.Success {
		errText := res.Error
		if errText == "" {
			errText = "unknown error"
		}
		return "Execution failed: " + excerpt(errText, 300)
	}
	if res.IsGraph {
		return "Visualization generated successfully in notebook."
	}
	if out := strings.TrimSpace(res.Output); out != "" {
		return "Output: " + excerpt(out, 500)
	}
	return "Code executed successfully with no output."
}

// flowContents converts the persisted agent flow into model contents.
func flowContents(flow []FlowMessage) []core.Content {
	contents := make([]core.Content, 0, len(flow))
	for _, m := range flow {
		contents = append(contents, core.TextContent(m.Role, m.Content))
	}
	return contents
}
