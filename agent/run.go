package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/logging"
	"github.com/hupe1980/reactmesh/prompt"
	"github.com/hupe1980/reactmesh/tool"
)

// outcome is the terminal decision of a run.
type outcome struct {
	status core.Status
	result string
	err    error
}

// run holds the state of one execution. It is owned by a single goroutine.
type run struct {
	agent   *Agent
	ctx     context.Context
	info    core.RunInfo
	trace   *core.Trace
	conv    *core.Conversation
	prefix  []core.Message
	invoker *tool.Invoker
	limiter *core.ModelLimiter
	log     logging.Logger
	started time.Time

	iterations int
	retries    int
	planned    bool
}

// start prepares a run over conv: it notifies the observer, renders the system
// prompt and consults memory. The returned run is usable even when err is set.
func (a *Agent) start(ctx context.Context, conv *core.Conversation, in Input) (*run, error) {
	info := core.RunInfo{
		RunID:    uuid.NewString(),
		Agent:    a.name,
		Strategy: string(a.opts.Strategy),
		Depth:    core.DepthFrom(ctx),
	}

	ctx = a.observer.RunStarted(ctx, info)
	ctx = core.WithRunInfo(ctx, info)

	r := &run{
		agent:   a,
		ctx:     ctx,
		info:    info,
		trace:   core.NewTrace(),
		conv:    conv,
		limiter: core.NewModelLimiter(a.opts.MaxModelCalls),
		log:     a.logger,
		started: time.Now(),
	}

	a.logger.Info("agent.run.start",
		"run_id", info.RunID,
		"agent", a.name,
		"strategy", info.Strategy,
		"depth", info.Depth,
	)

	registry, err := a.registry.With(in.Tools...)
	if err != nil {
		r.invoker = tool.NewInvoker(a.registry)
		return r, err
	}

	r.invoker = tool.NewInvoker(registry, func(o *tool.InvokerOptions) {
		o.Timeout = a.opts.ToolTimeout
		o.Logger = a.logger
	})

	system, err := a.template.Render(prompt.Vars{
		AgentName:         a.name,
		Role:              a.opts.SystemPrompt,
		Tools:             registry.Describe(),
		ToolNames:         registry.Names(),
		TerminationMarker: a.parser.TerminationMarker(),
		Extra:             map[string]any{"schema": a.schemaText},
	})
	if err != nil {
		return r, err
	}

	r.prefix = append(r.prefix, core.NewSystemMessage(system))

	if a.opts.Memory != nil {
		recalled, err := a.opts.Memory.Retrieve(ctx, in.Instruction, a.opts.MemoryLimit)
		if err != nil {
			a.logger.Warn("agent.memory.failed", "run_id", info.RunID, "error", err.Error())
		}

		r.prefix = append(r.prefix, recalled...)
	}

	r.prefix = append(r.prefix, in.Context...)

	return r, nil
}

// messages returns the model input: the run prefix followed by the
// conversation as seen by this agent. Messages authored by other agents are
// rendered as user messages prefixed with the author's name; their system
// notes are hidden.
func (r *run) messages() []core.Message {
	history := r.conv.Messages()
	out := make([]core.Message, 0, len(r.prefix)+len(history))
	out = append(out, r.prefix...)

	for _, m := range history {
		if m.Name == "" || m.Name == r.agent.name {
			out = append(out, m)
			continue
		}

		if m.Role == core.RoleSystem {
			continue
		}

		out = append(out, core.NewUserMessage(m.Name+": "+m.Content))
	}

	return out
}

// record appends steps to the trace and notifies the observer.
func (r *run) record(steps ...core.Step) {
	if err := r.trace.Append(steps...); err != nil {
		r.log.Error("agent.trace.frozen", "run_id", r.info.RunID, "error", err.Error())
		return
	}

	for _, s := range steps {
		r.agent.observer.StepRecorded(r.ctx, r.info, s)
	}
}

// say appends a message authored by this agent to the conversation.
func (r *run) say(msg core.Message) {
	msg.Name = r.agent.name
	r.conv.Append(msg)
}

// invoke executes action through the invoker and records the Observation.
func (r *run) invoke(ctx context.Context, action core.Action) core.Observation {
	if action.Tool == "" && r.invoker.Registry().Len() == 1 {
		action.Tool = r.invoker.Registry().Names()[0]
	}

	r.record(action)

	started := time.Now()
	obs := r.invoker.Invoke(ctx, action)

	r.agent.observer.ToolInvoked(ctx, r.info, core.ToolCall{
		Tool:        action.Tool,
		Args:        action.Args,
		Started:     started,
		Duration:    time.Since(started),
		Observation: obs,
	})

	r.record(obs)
	r.say(core.NewToolMessage(obs.String()))

	return obs
}

// cancelled ends the run after ctx was cancelled. A pending Action receives an
// error Observation so that every Action in the trace stays answered.
func (r *run) cancelled(ctx context.Context) outcome {
	cerr := core.NewCancellationError(ctx)

	if action, ok := r.trace.PendingAction(); ok {
		r.record(core.Observation{Tool: action.Tool, Text: core.FormatError(cerr), IsError: true, Err: cerr})
	}

	return outcome{status: core.StatusFailed, err: cerr}
}

// finish freezes the trace and produces the result.
func (r *run) finish(ctx context.Context, out outcome) *core.AgentResult {
	if err := r.trace.Finish(out.status); err != nil && !errors.Is(err, core.ErrTraceFrozen) {
		r.log.Error("agent.trace.finish_failed", "run_id", r.info.RunID, "error", err.Error())
	}

	result := &core.AgentResult{
		RunID:  r.info.RunID,
		Agent:  r.agent.name,
		Trace:  r.trace,
		Result: out.result,
		Status: r.trace.Status(),
		Err:    out.err,
	}

	args := []any{
		"run_id", r.info.RunID,
		"agent", r.agent.name,
		"status", string(result.Status),
		"steps", r.trace.Len(),
		"model_calls", r.limiter.Count(),
		"duration_ms", time.Since(r.started).Milliseconds(),
	}

	if out.err != nil {
		args = append(args, "kind", string(core.KindOf(out.err)), "error", out.err.Error())
		r.log.Error("agent.run.end", args...)
	} else {
		r.log.Info("agent.run.end", args...)
	}

	r.agent.observer.RunFinished(ctx, r.info, result)

	return result
}
