// Package orchestrator routes tool invocations from the chat layer to the
// worker agent registered for each tool function.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/oss-labs/datalab/core"
	"github.com/oss-labs/datalab/logging"
	"github.com/oss-labs/datalab/tool"
)

// Processor is a worker agent capable of handling a tool invocation.
type Processor interface {
	ID() string
	Process(ctx context.Context, call core.ToolInvocation, parentID string) core.AgentResult
}

// availabler is implemented by agents whose backend may be absent.
type availabler interface {
	Available() bool
}

// Orchestrator maps tool function names to worker agents and dispatches
// invocations with panic isolation, so a crashing agent surfaces as a
// failed result instead of taking down the chat turn.
type Orchestrator struct {
	agents map[string]Processor
	logger logging.Logger
}

// Options configures the orchestrator's agent registry.
type Options struct {
	Metadata  Processor
	Analysis  Processor
	WebSearch Processor
	Retrieval Processor
	Logger    logging.Logger
}

// New builds the orchestrator. Nil entries leave their tool function
// registered but permanently unavailable.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	o := &Orchestrator{
		agents: map[string]Processor{},
		logger: logger,
	}
	o.register(tool.FuncMetadataAnalysis, opts.Metadata)
	o.register(tool.FuncFullAnalysis, opts.Analysis)
	o.register(tool.FuncWebSearch, opts.WebSearch)
	o.register(tool.FuncRetrieval, opts.Retrieval)
	return o
}

func (o *Orchestrator) register(fn string, p Processor) {
	o.agents[fn] = p
}

// Invoke dispatches one tool invocation and always returns a populated
// result.
func (o *Orchestrator) Invoke(ctx context.Context, call core.ToolInvocation, parentID string) (result core.AgentResult) {
	fn := call.FunctionName

	agent, ok := o.agents[fn]
	if !ok {
		return core.FailedResult("orchestrator", fmt.Sprintf("No agent found for function '%s'", fn))
	}
	if agent == nil {
		return core.UnavailableResult(fn,
			fmt.Sprintf("The %s capability is not enabled.", fn),
			fmt.Sprintf("agent for function '%s' is not configured", fn))
	}
	if av, ok := agent.(availabler); ok && !av.Available() {
		return core.UnavailableResult(agent.ID(),
			fmt.Sprintf("The %s capability is not enabled.", fn),
			fmt.Sprintf("agent for function '%s' is not available", fn))
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("agent panicked", "function", fn, "agent", agent.ID(), "panic", r)
			result = core.FailedResult(agent.ID(), fmt.Sprintf("agent crashed: %v", r))
		}
	}()

	o.logger.Info("dispatching tool invocation", "function", fn, "agent", agent.ID())
	return agent.Process(ctx, call, parentID)
}

// AvailableTools reports, per registered tool function, whether its agent
// can currently serve invocations.
func (o *Orchestrator) AvailableTools() map[string]bool {
	out := make(map[string]bool, len(o.agents))
	for fn, agent := range o.agents {
		if agent == nil {
			out[fn] = false
			continue
		}
		if av, ok := agent.(availabler); ok {
			out[fn] = av.Available()
			continue
		}
		out[fn] = true
	}
	return out
}
