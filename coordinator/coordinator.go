package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/logging"
)

var (
	// ErrInvalidPlan is returned for plans that cannot run.
	ErrInvalidPlan = errors.New("invalid collaboration plan")
	// ErrQuorumNotReached is returned when a Broadcast can no longer reach its quorum.
	ErrQuorumNotReached = errors.New("quorum not reached")
	// ErrAgentFailed wraps the failure of an agent a workflow depends on.
	ErrAgentFailed = errors.New("agent failed")

	errQuorumReached = errors.New("quorum reached")
)

// DefaultMaxDepth bounds Hierarchical nesting.
const DefaultMaxDepth = 3

// Options configures a Coordinator.
type Options struct {
	// FanOut bounds concurrently running agents in Independent and Broadcast
	// workflows and concurrently running tasks in Graph workflows; zero or
	// negative means one slot per agent or task.
	FanOut int
	// MaxDepth bounds nested agent-as-tool calls.
	MaxDepth int
	Logger   logging.Logger
}

// Coordinator realizes collaboration plans. It holds no per-run state and is
// safe for concurrent use.
type Coordinator struct {
	opts   Options
	logger logging.Logger
}

// New creates a Coordinator.
func New(optFns ...func(o *Options)) *Coordinator {
	opts := Options{MaxDepth: DefaultMaxDepth}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Coordinator{opts: opts, logger: opts.Logger}
}

// Run executes plan for instruction. The returned Result is never nil; err is
// set when the workflow failed or did not reach completion.
func (c *Coordinator) Run(ctx context.Context, plan Plan, instruction string) (*Result, error) {
	id := plan.ID
	if id == "" {
		id = uuid.NewString()
	}

	res := &Result{ID: id, Pattern: plan.Pattern}
	started := time.Now()

	if err := plan.validate(); err != nil {
		res.Status = core.StatusFailed
		res.Err = err

		return res, err
	}

	c.logger.Info("coordinator.pattern.start",
		"workflow_id", res.ID,
		"pattern", string(plan.Pattern),
		"agents", len(plan.Agents),
	)

	switch plan.Pattern {
	case PatternIndependent:
		c.independent(ctx, plan, instruction, res)
	case PatternSequential:
		c.sequential(ctx, plan, instruction, res)
	case PatternJoint:
		c.joint(ctx, plan, instruction, res)
	case PatternHierarchical:
		c.hierarchical(ctx, plan, instruction, res)
	case PatternBroadcast:
		c.broadcast(ctx, plan, instruction, res)
	case PatternGraph:
		c.graph(ctx, plan, instruction, res)
	}

	if res.Status == core.StatusCompleted && ctx.Err() != nil {
		res.Status = core.StatusFailed
		res.Err = core.NewCancellationError(ctx)
	}

	res.Duration = time.Since(started)
	c.logPattern(res, len(plan.Agents))

	return res, res.Err
}

func (c *Coordinator) logPattern(res *Result, agents int) {
	if sl, ok := c.logger.(*logging.StructuredLogger); ok {
		sl.With("workflow_id", res.ID, "status", string(res.Status)).
			LogPatternExecution(string(res.Pattern), agents, res.Duration, res.Succeeded(), res.Err)

		return
	}

	args := []any{
		"workflow_id", res.ID,
		"pattern", string(res.Pattern),
		"status", string(res.Status),
		"duration_ms", res.Duration.Milliseconds(),
	}

	if res.Err != nil {
		c.logger.Error("coordinator.pattern.completed", append(args, "error", res.Err.Error())...)
		return
	}

	c.logger.Info("coordinator.pattern.completed", args...)
}

func (c *Coordinator) fanOut(n int) int {
	if c.opts.FanOut <= 0 || c.opts.FanOut > n {
		return n
	}

	return c.opts.FanOut
}

// agentError wraps the error of a result that ended the workflow.
func agentError(r *core.AgentResult) error {
	if r.Err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAgentFailed, r.Agent, r.Err)
	}

	return fmt.Errorf("%w: %s ended with status %s", ErrAgentFailed, r.Agent, r.Status)
}
