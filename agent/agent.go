// Package agent implements the specialized handlers bound to tool
// invocations: the directive-driven full analysis loop, the one-shot
// metadata agent, the web search agent and the retrieval (RAG) agent. Every
// agent normalizes its outcome into a core.AgentResult; raw errors never
// cross the package boundary.
package agent

import (
	"strings"

	"github.com/oss-labs/datalab/model"
)

// Agent is a specialized handler bound to one tool-invocation type.
type Agent interface {
	ID() string
}

// ModelFactory returns a completion model configured from the current user
// settings. It fails (rather than returning a broken model) when the stored
// credentials are missing or invalid, so callers surface a configuration
// fault before any API call is attempted.
type ModelFactory func() (model.Model, error)

// excerpt truncates s to at most n bytes, marking the cut. Feedback fed back
// into the model transcript must stay short or it crowds out the working
// context.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// stripCodeFence unwraps a markdown-fenced code block if the model wrapped
// its reply in one despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// drop the language tag line
		if lang := strings.TrimSpace(s[:idx]); lang == "" || !strings.ContainsAny(lang, " \t") {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
