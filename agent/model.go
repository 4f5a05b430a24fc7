package agent

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/model"
)

// generate performs one model call with bounded exponential-backoff retries.
// Cancellation of ctx is never retried.
func (r *run) generate(ctx context.Context) (string, error) {
	opts := r.agent.opts
	info := r.agent.model.Info()

	req := model.Request{
		Messages: r.messages(),
		Config: model.Config{
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			Stream:      opts.Stream,
		},
	}

	attempt := 0

	operation := func() (string, error) {
		attempt++
		started := time.Now()

		resp, err := model.Collect(ctx, r.agent.model, req)

		call := core.ModelCall{
			Model:    info.Name,
			Attempt:  attempt,
			Started:  started,
			Duration: time.Since(started),
			Err:      err,
		}

		if resp != nil && resp.Usage != nil {
			call.InputTokens = resp.Usage.InputTokens
			call.OutputTokens = resp.Usage.OutputTokens
		}

		r.agent.observer.ModelCalled(ctx, r.info, call)

		r.log.Debug("agent.model.call",
			"run_id", r.info.RunID,
			"model", info.Name,
			"attempt", attempt,
			"duration_ms", call.Duration.Milliseconds(),
			"error", err != nil,
		)

		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}

			return "", err
		}

		return resp.Text, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = opts.ProviderBackoff
	expo.MaxInterval = opts.ProviderMaxBackoff

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(opts.ProviderRetries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Warn("agent.model.retry",
				"run_id", r.info.RunID,
				"model", info.Name,
				"attempt", attempt,
				"next_in", next.String(),
				"error", err.Error(),
			)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", core.NewCancellationError(ctx)
		}

		return "", &core.ProviderError{Model: info.Name, Attempts: attempt, Err: err}
	}

	return text, nil
}
