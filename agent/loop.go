package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/parser"
	"github.com/hupe1980/reactmesh/prompt"
)

// ErrPlanRequired marks an Action proposed before any Plan was recorded under
// a strategy that requires one.
var ErrPlanRequired = errors.New("an Action was proposed before a Plan")

// loop drives turns until one of them ends the run.
//
// Termination conditions:
//  1. A FinalAnswer is produced (completed)
//  2. An Action beyond MaxIterations is proposed, or the model-call ceiling
//     is reached (max_iterations)
//  3. Parse retries are exhausted, the provider fails or ctx is cancelled (failed)
func (r *run) loop(ctx context.Context) outcome {
	for {
		if out, done := r.turn(ctx); done {
			return out
		}
	}
}

// turn performs one model call and processes the response. done reports
// whether the run reached a terminal outcome.
func (r *run) turn(ctx context.Context) (outcome, bool) {
	if ctx.Err() != nil {
		return r.cancelled(ctx), true
	}

	if err := r.limiter.Acquire(); err != nil {
		r.log.Warn("agent.model.limit", "run_id", r.info.RunID, "calls", r.limiter.Count())
		return outcome{status: core.StatusMaxIterations}, true
	}

	text, err := r.generate(ctx)
	if err != nil {
		if core.KindOf(err) == core.KindCancellation {
			return r.cancelled(ctx), true
		}

		return outcome{status: core.StatusFailed, err: err}, true
	}

	r.say(core.NewAssistantMessage(r.agent.name, text))

	return r.process(ctx, text)
}

// process consumes the steps of one response. A response whose termination
// marker precedes any Action is a FinalAnswer outright. Otherwise steps are
// consumed top to bottom until the first Action (executed, the rest of the
// response discarded) or FinalAnswer. A response with reasoning only ends the
// turn.
func (r *run) process(ctx context.Context, text string) (outcome, bool) {
	p := r.agent.parser

	if answer, ok := p.Terminal(text); ok {
		r.record(answer)
		return outcome{status: core.StatusCompleted, result: answer.Text}, true
	}

	remaining := text
	consumed := false

	for strings.TrimSpace(remaining) != "" {
		step, rest, err := p.Next(remaining)
		if err != nil {
			if consumed && errors.Is(err, parser.ErrNoLabel) {
				break
			}

			return r.correct(err, text)
		}

		consumed = true
		remaining = rest

		switch s := step.(type) {
		case core.Plan:
			r.planned = true
			r.record(s)
		case core.Thought:
			r.record(s)
		case core.Observation:
			// Imagined by the model; only the invoker produces Observations.
		case core.FinalAnswer:
			r.record(s)
			return outcome{status: core.StatusCompleted, result: s.Text}, true
		case core.Action:
			if r.agent.opts.Strategy.RequiresPlan() && !r.planned {
				return r.correct(ErrPlanRequired, text)
			}

			if r.iterations >= r.agent.opts.MaxIterations {
				r.log.Warn("agent.iterations.exhausted", "run_id", r.info.RunID, "max", r.agent.opts.MaxIterations)
				return outcome{status: core.StatusMaxIterations}, true
			}

			r.iterations++

			obs := r.invoke(ctx, s)
			if core.KindOf(obs.Err) == core.KindCancellation || ctx.Err() != nil {
				return r.cancelled(ctx), true
			}

			return outcome{}, false
		}
	}

	return outcome{}, false
}

// correct records a corrective retry and re-prompts the model with a system
// note, or fails the run once the retry budget is spent.
func (r *run) correct(cause error, raw string) (outcome, bool) {
	var perr *core.ParseError
	if !errors.As(cause, &perr) {
		perr = &core.ParseError{Reason: "invalid step order", Raw: raw, Err: cause}
	}

	if r.retries >= r.agent.opts.MaxParseRetries {
		return outcome{status: core.StatusFailed, err: perr}, true
	}

	r.retries++

	correction := core.Correction{Attempt: r.retries, Reason: perr.Reason, Raw: raw}
	if err := r.trace.AddCorrection(correction); err != nil {
		return outcome{status: core.StatusFailed, err: perr}, true
	}

	r.agent.observer.Corrected(r.ctx, r.info, correction)
	r.log.Warn("agent.parse.corrective_retry",
		"run_id", r.info.RunID,
		"attempt", r.retries,
		"reason", perr.Reason,
	)

	tmpl := prompt.CorrectiveNote
	if r.agent.opts.Strategy.Structured() {
		tmpl = prompt.JSONCorrectiveNote
	}

	note, err := tmpl.Render(prompt.Vars{
		AgentName:         r.agent.name,
		TerminationMarker: r.agent.parser.TerminationMarker(),
		Extra: map[string]any{
			"reason": perr.Reason,
			"plan":   r.agent.opts.Strategy.RequiresPlan() && !r.planned,
			"schema": r.agent.schemaText,
		},
	})
	if err != nil {
		return outcome{status: core.StatusFailed, err: err}, true
	}

	r.say(core.NewSystemMessage(note))

	return outcome{}, false
}
