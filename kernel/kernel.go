// Package kernel owns the stateful, interactive code-execution process
// backing one notebook run. A Session accumulates interpreter state
// (variables, imports) across Execute calls, which is why cells must never
// be reordered or re-executed out of sequence against the same session.
package kernel

import (
	"context"
	"strings"
	"time"
)

// ExecResult is produced per submitted code string. It is never partially
// valid: either Success with Output, or failure with Error. Output collected
// before a timeout is preserved as informational only.
type ExecResult struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	Error    string `json:"error"`
	IsGraph  bool   `json:"is_graph"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Session is one interactive execution context. One session serves one
// notebook run at a time and is never shared across runs.
type Session interface {
	// Start launches the backing execution process. A failure here is fatal
	// for the run: it is reported, not retried.
	Start() error

	// Execute submits code and drains its output until completion or
	// timeout. Interpreter state persists across calls.
	Execute(ctx context.Context, code string, timeout time.Duration) ExecResult

	// Shutdown stops the process. Idempotent; failures are best-effort
	// cleanup, logged not raised.
	Shutdown()
}

// SessionFactory produces a fresh Session. The analysis loop takes a factory
// rather than a session so each run owns exactly one session lifecycle, and
// notebook replay can spin up an independent one.
type SessionFactory func() Session

// plotPatterns are substrings of known plotting-library invocations. The
// classification is a heuristic, not a structural guarantee: code mentioning
// a pattern in a string literal is a false positive, and an aliased import
// is a false negative.
var plotPatterns = []string{
	"plot.new",
	"gonum.org/v1/plot",
	"charts.new",
	"go-echarts",
	"chart.render",
	"vgimg.",
}

// LooksLikePlot reports whether the submitted code text matches known
// plotting-library invocation patterns.
func LooksLikePlot(code string) bool {
	lowered := strings.ToLower(code)
	for _, p := range plotPatterns {
		if strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
