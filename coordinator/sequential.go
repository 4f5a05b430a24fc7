package coordinator

import (
	"context"
	"fmt"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/core"
)

// sequential runs agents one after another. Each agent receives the previous
// agent's result as a context message ahead of the instruction. The first
// agent that does not complete ends the workflow with its status.
func (c *Coordinator) sequential(ctx context.Context, plan Plan, instruction string, res *Result) {
	var handoff []core.Message

	for _, a := range plan.Agents {
		r := a.Run(ctx, agent.Input{Instruction: instruction, Context: handoff})
		res.Results = append(res.Results, r)

		if !r.Succeeded() {
			res.Status = r.Status
			res.Err = agentError(r)

			return
		}

		handoff = []core.Message{core.NewUserMessage(fmt.Sprintf("Result from %s:\n%s", a.Name(), r.Result))}
		res.Final = r.Result
	}

	res.Status = core.StatusCompleted
}
