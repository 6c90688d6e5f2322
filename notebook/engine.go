package notebook

import (
	"context"
	"fmt"
	"time"

	"github.com/oss-labs/datalab/kernel"
	"github.com/oss-labs/datalab/logging"
)

// Engine glues kernel output to notebook cells for one run. The cell is
// appended before execution so a crash mid-execution still leaves a code
// record; raw panics never propagate past this boundary.
type Engine struct {
	store       *Store
	session     kernel.Session
	logger      logging.Logger
	execTimeout time.Duration
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithExecTimeout overrides the per-cell execution timeout.
func WithExecTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.execTimeout = d }
}

// NewEngine composes a store and a kernel session.
func NewEngine(store *Store, session kernel.Session, logger logging.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	e := &Engine{
		store:       store,
		session:     session,
		logger:      logger,
		execTimeout: kernel.DefaultExecTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RunCodeCell appends the code as a new cell, executes it against the
// session, attaches the observed output and returns the result. Unexpected
// panics are converted into failure results carrying the panic text.
func (e *Engine) RunCodeCell(ctx context.Context, code string, index int) (res kernel.ExecResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("code cell execution panicked", "panic", r)
			res = kernel.ExecResult{Success: false, Error: fmt.Sprintf("execution exception: %v", r)}
		}
	}()

	cellID, err := e.store.AppendCode(code, index)
	if err != nil {
		return kernel.ExecResult{Success: false, Error: fmt.Sprintf("failed to add cell to notebook: %v", err)}
	}

	res = e.session.Execute(ctx, code, e.execTimeout)

	var outputs, errs []string
	if res.Output != "" {
		outputs = append(outputs, res.Output)
	}
	if res.Error != "" {
		errs = append(errs, res.Error)
	}
	if err := e.store.AttachOutput(cellID, outputs, errs); err != nil {
		e.logger.Error("failed to attach cell output", "cell_id", cellID, "error", err)
	}
	return res
}

// RunMarkdownCell appends markdown only; nothing is executed.
func (e *Engine) RunMarkdownCell(text string) error {
	return e.store.AppendMarkdown(text)
}
