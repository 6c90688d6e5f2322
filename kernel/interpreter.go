package kernel

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/oss-labs/datalab/logging"
)

// DefaultExecTimeout bounds a single Execute call when the caller passes
// zero.
const DefaultExecTimeout = 30 * time.Second

// InterpreterSession implements Session on top of an embedded yaegi
// interpreter. Interpreting instead of shelling out to a compiler avoids
// per-cell build latency and keeps variables alive between cells, which is
// the whole point of a kernel.
//
// A timed-out Eval cannot be forcibly stopped; its goroutine is abandoned
// and keeps running against the interpreter and capture buffers it was
// started with. After a timeout the session discards that interpreter and
// its buffers and builds fresh ones, so the abandoned goroutine only ever
// touches orphaned state. Cell variables accumulated before the timeout are
// lost with the old interpreter.
type InterpreterSession struct {
	logger logging.Logger

	mu      sync.Mutex
	interp  *interp.Interpreter
	stdout  *lockedBuffer
	stderr  *lockedBuffer
	started bool
}

// lockedBuffer is a capture buffer shared between the session and abandoned
// Eval goroutines. bytes.Buffer is not safe for concurrent use, so every
// access takes the lock.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// NewInterpreterSession constructs an unstarted session.
func NewInterpreterSession(logger logging.Logger) *InterpreterSession {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &InterpreterSession{logger: logger}
}

// NewSessionFactory returns a SessionFactory producing interpreter sessions
// sharing the given logger.
func NewSessionFactory(logger logging.Logger) SessionFactory {
	return func() Session { return NewInterpreterSession(logger) }
}

// Start implements Session.
func (s *InterpreterSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if err := s.rebuild(); err != nil {
		return err
	}
	s.started = true
	s.logger.Info("kernel started")
	return nil
}

// rebuild replaces the interpreter and capture buffers. Callers hold s.mu.
func (s *InterpreterSession) rebuild() error {
	s.stdout = &lockedBuffer{}
	s.stderr = &lockedBuffer{}
	i := interp.New(interp.Options{Stdout: s.stdout, Stderr: s.stderr})
	if err := i.Use(stdlib.Symbols); err != nil {
		s.interp = nil
		return fmt.Errorf("kernel: load stdlib symbols: %w", err)
	}
	s.interp = i
	return nil
}

// Execute implements Session.
func (s *InterpreterSession) Execute(ctx context.Context, code string, timeout time.Duration) ExecResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.interp == nil {
		return ExecResult{Success: false, Error: "kernel not available"}
	}
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}

	s.stdout.Reset()
	s.stderr.Reset()

	// Capture the interpreter and buffers locally so a later rebuild or
	// Shutdown cannot swap them out from under an abandoned goroutine.
	ip := s.interp
	out, errOut := s.stdout, s.stderr
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("interpreter panic: %v", r)
			}
		}()
		_, err := ip.Eval(code)
		done <- err
	}()

	select {
	case err := <-done:
		output := out.String()
		if err != nil {
			errText := err.Error()
			if stderrText := errOut.String(); stderrText != "" {
				errText = errText + "\n" + stderrText
			}
			return ExecResult{Success: false, Output: output, Error: errText}
		}
		return ExecResult{Success: true, Output: output, IsGraph: LooksLikePlot(code)}

	case <-ctx.Done():
		output := out.String()
		s.abandon()
		return ExecResult{
			Success:  false,
			Output:   output,
			Error:    fmt.Sprintf("execution canceled: %v", ctx.Err()),
			TimedOut: true,
		}

	case <-time.After(timeout):
		s.logger.Warn("kernel execution timed out", "timeout", timeout)
		output := out.String()
		s.abandon()
		return ExecResult{
			Success:  false,
			Output:   output,
			Error:    fmt.Sprintf("execution timed out after %s", timeout),
			TimedOut: true,
		}
	}
}

// abandon discards the interpreter owned by a still-running Eval goroutine
// and prepares a fresh one for the next cell. Callers hold s.mu.
func (s *InterpreterSession) abandon() {
	if err := s.rebuild(); err != nil {
		s.logger.Error("kernel rebuild after abandoned cell failed", "error", err)
		s.started = false
	}
}

// Shutdown implements Session. Dropping the interpreter reference releases
// its state; abandoned Eval goroutines keep their own reference until they
// finish.
func (s *InterpreterSession) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.interp = nil
	s.started = false
	s.logger.Info("kernel shut down")
}
