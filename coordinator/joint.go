package coordinator

import (
	"context"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/core"
)

// joint lets the agents take turns on one shared conversation in plan order,
// one model call per turn. The first participant to answer ends the
// collaboration for everyone; a participant that fails ends it as failed.
func (c *Coordinator) joint(ctx context.Context, plan Plan, instruction string, res *Result) {
	rounds := plan.MaxRounds
	if rounds == 0 {
		rounds = DefaultMaxRounds
	}

	conv := core.NewConversation(core.NewUserMessage(instruction))
	sessions := make([]*agent.Session, len(plan.Agents))

	for i, a := range plan.Agents {
		sessions[i] = a.(Participant).NewSession(ctx, conv, agent.Input{Instruction: instruction})
	}

	closeAll := func(status core.Status, result string) {
		res.Results = make([]*core.AgentResult, len(sessions))
		for i, s := range sessions {
			res.Results[i] = s.Close(status, result)
		}

		res.Transcript = conv.Messages()
	}

	for _, s := range sessions {
		if r := s.Result(); r != nil {
			res.Status = core.StatusFailed
			res.Err = agentError(r)
			closeAll(core.StatusFailed, "")

			return
		}
	}

	for round := 1; round <= rounds; round++ {
		for _, s := range sessions {
			done, err := s.Turn(ctx)
			if err != nil || !done {
				continue
			}

			r := s.Result()

			c.logger.Debug("coordinator.joint.ended",
				"agent", s.Agent(),
				"round", round,
				"status", string(r.Status),
			)

			if r.Succeeded() {
				res.Status = core.StatusCompleted
				res.Final = r.Result
				closeAll(core.StatusCompleted, r.Result)

				return
			}

			res.Status = r.Status
			res.Err = agentError(r)
			closeAll(r.Status, "")

			return
		}
	}

	res.Status = core.StatusMaxIterations
	closeAll(core.StatusMaxIterations, "")
}
