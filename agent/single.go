package agent

import (
	"context"

	"github.com/hupe1980/reactmesh/core"
)

// single performs a single-response run: exactly one model generation whose
// full step sequence is replayed against the tools. Every Action is executed
// for real and its Observation takes the place of the one the model wrote.
//
// Status rules:
//   - a FinalAnswer completes the run with its text
//   - Actions without a FinalAnswer complete the run with the last successful
//     Observation as result
//   - an Action beyond MaxIterations stops replay with max_iterations
//   - neither Actions nor a FinalAnswer fails the run with a ParseError
func (r *run) single(ctx context.Context) outcome {
	text, out, done := r.ask(ctx)
	if done {
		return out
	}

	steps, err := r.agent.parser.ParseAll(text)
	if err != nil {
		return outcome{status: core.StatusFailed, err: err}
	}

	var (
		actions int
		last    string
	)

	for _, step := range steps {
		switch s := step.(type) {
		case core.Plan:
			r.planned = true
			r.record(s)
		case core.Thought:
			r.record(s)
		case core.FinalAnswer:
			r.record(s)
			return outcome{status: core.StatusCompleted, result: s.Text}
		case core.Action:
			if r.agent.opts.Strategy.RequiresPlan() && !r.planned {
				return outcome{status: core.StatusFailed, err: &core.ParseError{
					Reason: "invalid step order",
					Raw:    text,
					Err:    ErrPlanRequired,
				}}
			}

			if actions >= r.agent.opts.MaxIterations {
				return outcome{status: core.StatusMaxIterations, result: last}
			}

			actions++

			obs := r.invoke(ctx, s)
			if core.KindOf(obs.Err) == core.KindCancellation || ctx.Err() != nil {
				return r.cancelled(ctx)
			}

			if !obs.IsError {
				last = obs.Text
			}
		}
	}

	if actions == 0 {
		return outcome{status: core.StatusFailed, err: &core.ParseError{
			Reason: "response contains neither an Action nor a final answer",
			Raw:    text,
		}}
	}

	return outcome{status: core.StatusCompleted, result: last}
}
