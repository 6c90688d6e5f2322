package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oss-labs/datalab/logging"
)

// Store is the durable cell document for one run. Every structural mutation
// is flushed to disk before the caller proceeds, so a crash never loses
// agent-generated content and a concurrently viewing client always reads a
// consistent, monotonically advancing document.
type Store struct {
	mu     sync.Mutex
	path   string
	doc    *Document
	logger logging.Logger
}

// Create opens the notebook at path, creating an empty document if none
// exists. Idempotent: an existing file is loaded, never clobbered, so an
// in-progress notebook survives re-entry with the run's naming convention.
func Create(path string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &Store{path: path, logger: logger}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		doc := new(Document)
		if err := json.Unmarshal(raw, doc); err != nil {
			return nil, fmt.Errorf("notebook: decode %s: %w", path, err)
		}
		s.doc = doc
		return s, nil
	case os.IsNotExist(err):
		s.doc = NewDocument()
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
		logger.Info("notebook created", "path", path)
		return s, nil
	default:
		return nil, fmt.Errorf("notebook: read %s: %w", path, err)
	}
}

// Path returns the on-disk location of the document.
func (s *Store) Path() string { return s.path }

// AppendMarkdown appends a markdown cell and persists immediately.
func (s *Store) AppendMarkdown(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Cells = append(s.doc.Cells, newMarkdownCell(text))
	return s.saveLocked()
}

// AppendCode appends a code cell with the given execution index, persists
// immediately and returns the cell id. Output attachment happens after the
// append; cells are matched by id, not position.
func (s *Store) AppendCode(code string, index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell := newCodeCell(code, index)
	s.doc.Cells = append(s.doc.Cells, cell)
	if err := s.saveLocked(); err != nil {
		return "", err
	}
	return cell.ID, nil
}

// AttachOutput clears and rewrites the named cell's outputs, persisted
// immediately.
func (s *Store) AttachOutput(cellID string, outputs, errors []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findCellLocked(cellID)
	if idx < 0 {
		return fmt.Errorf("notebook: no code cell with id %s", cellID)
	}

	cell := &s.doc.Cells[idx]
	cell.Outputs = nil
	for _, text := range outputs {
		if text == "" {
			continue
		}
		cell.Outputs = append(cell.Outputs, Output{OutputType: "stream", Name: "stdout", Text: text})
	}
	for _, text := range errors {
		if text == "" {
			continue
		}
		cell.Outputs = append(cell.Outputs, Output{OutputType: "stream", Name: "stderr", Text: text})
	}
	return s.saveLocked()
}

// Cells returns a defensive copy of the current cell sequence.
func (s *Store) Cells() []Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Cell, len(s.doc.Cells))
	copy(out, s.doc.Cells)
	return out
}

// findCellLocked returns the index of the code cell with the given id, or -1.
func (s *Store) findCellLocked(cellID string) int {
	for i := range s.doc.Cells {
		if s.doc.Cells[i].ID == cellID && s.doc.Cells[i].Type == CellCode {
			return i
		}
	}
	return -1
}

// saveLocked writes the document atomically (temp then rename) so readers
// never observe a partially written file. Caller holds s.mu.
func (s *Store) saveLocked() error {
	raw, err := json.MarshalIndent(s.doc, "", " ")
	if err != nil {
		return fmt.Errorf("notebook: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("notebook: dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("notebook: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("notebook: rename: %w", err)
	}
	return nil
}
