package coordinator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/core"
)

// independent runs every agent in isolation. Agent failures stay local to the
// agent; the workflow completes with the set of results.
func (c *Coordinator) independent(ctx context.Context, plan Plan, instruction string, res *Result) {
	results := make([]*core.AgentResult, len(plan.Agents))

	var g errgroup.Group
	g.SetLimit(c.fanOut(len(plan.Agents)))

	for i, a := range plan.Agents {
		g.Go(func() error {
			results[i] = a.Run(ctx, agent.Input{Instruction: instruction})
			return nil
		})
	}

	_ = g.Wait()

	res.Results = results
	res.Status = core.StatusCompleted
}
