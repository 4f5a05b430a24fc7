package coordinator

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/core"
)

type outcome struct {
	index  int
	result *core.AgentResult
}

// broadcast fans the instruction out to every agent concurrently, bounded by
// the fan-out limit. Individual failures do not stop siblings unless the plan
// is fail-fast; once the quorum is reached the remaining agents are cancelled.
func (c *Coordinator) broadcast(ctx context.Context, plan Plan, instruction string, res *Result) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	n := len(plan.Agents)
	sem := semaphore.NewWeighted(int64(c.fanOut(n)))
	outcomes := make(chan outcome, n)

	var wg sync.WaitGroup

	for i, a := range plan.Agents {
		wg.Go(func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes <- outcome{index: i, result: notRun(a.Name(), core.NewCancellationError(ctx))}
				return
			}
			defer sem.Release(1)

			outcomes <- outcome{index: i, result: a.Run(ctx, agent.Input{Instruction: instruction})}
		})
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	res.Results = make([]*core.AgentResult, n)

	var (
		completed, failed int
		stopped           error
	)

	for o := range outcomes {
		res.Results[o.index] = o.result

		if stopped != nil {
			continue
		}

		if o.result.Succeeded() {
			completed++
		} else {
			failed++
		}

		switch {
		case plan.FailFast && !o.result.Succeeded():
			stopped = agentError(o.result)
		case plan.Quorum > 0 && completed >= plan.Quorum:
			stopped = errQuorumReached
		case plan.Quorum > 0 && n-failed < plan.Quorum:
			stopped = ErrQuorumNotReached
		}

		if stopped != nil {
			c.logger.Debug("coordinator.broadcast.stop",
				"completed", completed,
				"failed", failed,
				"reason", stopped.Error(),
			)
			cancel(stopped)
		}
	}

	switch {
	case errors.Is(stopped, errQuorumReached):
		res.Status = core.StatusCompleted
	case stopped != nil:
		res.Status = core.StatusFailed
		res.Err = stopped
	case completed > 0:
		res.Status = core.StatusCompleted
	default:
		res.Status = core.StatusFailed
		res.Err = ErrQuorumNotReached
	}
}
