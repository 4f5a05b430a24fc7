package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/core"
)

// Runner is one agent as seen by the coordinator. *agent.Agent implements it.
type Runner interface {
	Name() string
	Description() string
	Run(ctx context.Context, in agent.Input) *core.AgentResult
}

// Participant is a Runner that can take turns in a shared conversation.
// Required by the Joint pattern.
type Participant interface {
	Runner
	NewSession(ctx context.Context, conv *core.Conversation, in agent.Input) *agent.Session
}

// Pattern is a collaboration topology.
type Pattern string

const (
	PatternIndependent  Pattern = "independent"
	PatternSequential   Pattern = "sequential"
	PatternJoint        Pattern = "joint"
	PatternHierarchical Pattern = "hierarchical"
	PatternBroadcast    Pattern = "broadcast"
	PatternGraph        Pattern = "graph"
)

// ParsePattern resolves a pattern name case-insensitively.
func ParsePattern(s string) (Pattern, error) {
	p := Pattern(strings.ToLower(strings.TrimSpace(s)))

	switch p {
	case PatternIndependent, PatternSequential, PatternJoint, PatternHierarchical, PatternBroadcast, PatternGraph:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown pattern %q", ErrInvalidPlan, s)
	}
}

// DefaultMaxRounds bounds Joint collaborations when Plan.MaxRounds is zero.
const DefaultMaxRounds = 5

// Plan describes which agents run and how their results feed into each other.
type Plan struct {
	// ID names the workflow; Run generates one when empty.
	ID      string
	Pattern Pattern
	// Agents in speaking / execution order. For Hierarchical the first agent
	// is the root and the others are offered to it as tools.
	Agents []Runner
	// Quorum is the number of completed agents a Broadcast waits for before
	// cancelling the rest. Zero waits for every agent and requires at least
	// one of them to complete.
	Quorum int
	// FailFast cancels a Broadcast on the first failed agent.
	FailFast bool
	// MaxRounds bounds a Joint collaboration.
	MaxRounds int
	// Tasks are the nodes of a Graph workflow.
	Tasks []Task
}

func (p Plan) validate() error {
	if _, err := ParsePattern(string(p.Pattern)); err != nil {
		return err
	}

	if len(p.Agents) == 0 {
		return fmt.Errorf("%w: no agents", ErrInvalidPlan)
	}

	seen := make(map[string]struct{}, len(p.Agents))

	for _, a := range p.Agents {
		if a == nil {
			return fmt.Errorf("%w: nil agent", ErrInvalidPlan)
		}

		if _, dup := seen[a.Name()]; dup {
			return fmt.Errorf("%w: duplicate agent %q", ErrInvalidPlan, a.Name())
		}

		seen[a.Name()] = struct{}{}
	}

	switch p.Pattern {
	case PatternHierarchical:
		if len(p.Agents) < 2 {
			return fmt.Errorf("%w: hierarchical needs a root and at least one child", ErrInvalidPlan)
		}
	case PatternBroadcast:
		if p.Quorum < 0 || p.Quorum > len(p.Agents) {
			return fmt.Errorf("%w: quorum %d out of range 0..%d", ErrInvalidPlan, p.Quorum, len(p.Agents))
		}
	case PatternGraph:
		return p.validateTasks()
	case PatternJoint:
		if p.MaxRounds < 0 {
			return fmt.Errorf("%w: negative max rounds", ErrInvalidPlan)
		}

		for _, a := range p.Agents {
			if _, ok := a.(Participant); !ok {
				return fmt.Errorf("%w: agent %q cannot join a shared conversation", ErrInvalidPlan, a.Name())
			}
		}
	}

	return nil
}
