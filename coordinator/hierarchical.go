package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/tool"
)

var errChildIncomplete = errors.New("agent did not produce a final answer")

// AgentToolOptions configures NewAgentTool.
type AgentToolOptions struct {
	// MaxDepth bounds nesting; a call that would run deeper fails with
	// core.ErrDepthExceeded.
	MaxDepth int
	// OnResult receives the result of every child run.
	OnResult func(r *core.AgentResult)
	// OnFailure is called when a child run ends failed, before the call
	// returns its error.
	OnFailure func(r *core.AgentResult)
}

// NewAgentTool exposes r as a tool taking a single "instruction" argument.
// The child runs its full execution loop one level deeper than the caller and
// its final answer becomes the observation.
func NewAgentTool(r Runner, optFns ...func(o *AgentToolOptions)) tool.Tool {
	opts := AgentToolOptions{MaxDepth: DefaultMaxDepth}

	for _, fn := range optFns {
		fn(&opts)
	}

	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"instruction": map[string]any{
				"type":        "string",
				"description": "The task to delegate to " + r.Name(),
			},
		},
		"required": []string{"instruction"},
	}

	return tool.NewFunctionTool(r.Name(), r.Description(), params, func(ctx context.Context, args map[string]any) (any, error) {
		depth := core.DepthFrom(ctx) + 1
		if depth > opts.MaxDepth {
			return nil, fmt.Errorf("%w: %s at depth %d", core.ErrDepthExceeded, r.Name(), depth)
		}

		instruction, _ := args["instruction"].(string)

		res := r.Run(core.WithDepth(ctx, depth), agent.Input{Instruction: instruction})
		if opts.OnResult != nil {
			opts.OnResult(res)
		}

		switch res.Status {
		case core.StatusCompleted:
			return res.Result, nil
		case core.StatusFailed:
			if opts.OnFailure != nil {
				opts.OnFailure(res)
			}

			return nil, agentError(res)
		default:
			return nil, fmt.Errorf("%s: %w (status %s)", r.Name(), errChildIncomplete, res.Status)
		}
	})
}

// hierarchical runs the first agent as root with the remaining agents exposed
// as tools. A child that fails cancels the root and fails the workflow.
func (c *Coordinator) hierarchical(ctx context.Context, plan Plan, instruction string, res *Result) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		mu       sync.Mutex
		children []*core.AgentResult
		failure  error
	)

	root := plan.Agents[0]
	tools := make([]tool.Tool, 0, len(plan.Agents)-1)

	for _, child := range plan.Agents[1:] {
		tools = append(tools, NewAgentTool(child, func(o *AgentToolOptions) {
			o.MaxDepth = c.opts.MaxDepth
			o.OnResult = func(r *core.AgentResult) {
				mu.Lock()
				children = append(children, r)
				mu.Unlock()
			}
			o.OnFailure = func(r *core.AgentResult) {
				c.logger.Warn("coordinator.hierarchical.child_failed",
					"agent", r.Agent,
					"run_id", r.RunID,
				)
				err := agentError(r)

				mu.Lock()
				if failure == nil {
					failure = err
				}
				mu.Unlock()

				cancel(err)
			}
		}))
	}

	r := root.Run(ctx, agent.Input{Instruction: instruction, Tools: tools})

	mu.Lock()
	defer mu.Unlock()

	res.Results = append([]*core.AgentResult{r}, children...)

	if failure != nil {
		res.Status = core.StatusFailed
		res.Err = failure

		return
	}

	res.Status = r.Status
	if r.Succeeded() {
		res.Final = r.Result
		return
	}

	res.Err = agentError(r)
}
