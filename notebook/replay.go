package notebook

import (
	"context"
	"fmt"
	"time"

	"github.com/oss-labs/datalab/kernel"
	"github.com/oss-labs/datalab/logging"
)

// ReexecuteAll clears every cell's outputs and execution index, then runs
// each code cell in original order inside one fresh kernel session, and
// persists the fully re-executed document. This exists for "replay on view"
// semantics and is distinct from the per-cell incremental execution done
// during a live run.
//
// A failing cell does not abort the replay; its error is recorded and the
// next cell runs. Cell sources are never modified, so replaying twice yields
// byte-identical sources (outputs may differ for non-deterministic code).
func ReexecuteAll(
	ctx context.Context,
	store *Store,
	factory kernel.SessionFactory,
	logger logging.Logger,
	execTimeout time.Duration,
) error {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if execTimeout <= 0 {
		execTimeout = kernel.DefaultExecTimeout
	}

	session := factory()
	if err := session.Start(); err != nil {
		return fmt.Errorf("notebook replay: %w", err)
	}
	defer session.Shutdown()

	if err := store.clearOutputs(); err != nil {
		return err
	}

	execCount := 0
	for _, cell := range store.Cells() {
		if cell.Type != CellCode {
			continue
		}
		execCount++

		res := session.Execute(ctx, cell.Source, execTimeout)

		var outputs, errs []string
		if res.Output != "" {
			outputs = append(outputs, res.Output)
		}
		if res.Error != "" {
			errs = append(errs, res.Error)
			logger.Warn("replay cell failed", "cell_id", cell.ID, "error", res.Error)
		}
		if err := store.attachReplayResult(cell.ID, execCount, outputs, errs); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("notebook replay: %w", ctx.Err())
		}
	}

	logger.Info("notebook replay finished", "path", store.Path(), "code_cells", execCount)
	return nil
}

// clearOutputs wipes outputs and execution indices from every cell and
// persists the cleared document before replay starts.
func (s *Store) clearOutputs() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.doc.Cells {
		s.doc.Cells[i].Outputs = nil
		s.doc.Cells[i].ExecutionCount = 0
	}
	return s.saveLocked()
}

// attachReplayResult rewrites one cell's outputs and execution index during
// replay, persisted immediately like every other structural mutation.
func (s *Store) attachReplayResult(cellID string, execCount int, outputs, errs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findCellLocked(cellID)
	if idx < 0 {
		return fmt.Errorf("notebook: no code cell with id %s", cellID)
	}
	cell := &s.doc.Cells[idx]
	cell.ExecutionCount = execCount
	cell.Outputs = nil
	for _, text := range outputs {
		cell.Outputs = append(cell.Outputs, Output{OutputType: "stream", Name: "stdout", Text: text})
	}
	for _, text := range errs {
		cell.Outputs = append(cell.Outputs, Output{OutputType: "stream", Name: "stderr", Text: text})
	}
	return s.saveLocked()
}
