package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/internal/testutil"
	"github.com/hupe1980/reactmesh/model"
)

var errUpstream = errors.New("upstream unavailable")

func newAgent(t *testing.T, name string, m model.Model, optFns ...func(o *agent.Options)) *agent.Agent {
	t.Helper()

	a, err := agent.New(name, m, append([]func(o *agent.Options){func(o *agent.Options) {
		o.ProviderRetries = 0
		o.ProviderBackoff = time.Millisecond
	}}, optFns...)...)
	require.NoError(t, err)

	return a
}

func answering(t *testing.T, name, answer string) *agent.Agent {
	t.Helper()
	return newAgent(t, name, model.NewMockModel(name, final(answer)))
}

func failing(t *testing.T, name string) *agent.Agent {
	t.Helper()
	return newAgent(t, name, model.NewMockModel(name).AddError(errUpstream))
}

func blocking(t *testing.T, name string) *agent.Agent {
	t.Helper()

	return newAgent(t, name, model.NewFunc(name, func(ctx context.Context, _ model.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
}

func final(answer string) string {
	return testutil.NewResponseBuilder().Final(answer).String()
}

func thought(text string) string {
	return testutil.NewResponseBuilder().Thought(text).String()
}

func delegate(child, instruction string) string {
	return testutil.NewResponseBuilder().
		Thought("I will delegate.").
		Action(child, map[string]any{"instruction": instruction}).
		String()
}

func TestRun_InvalidPlan(t *testing.T) {
	c := New()
	a := answering(t, "a", "x")

	tests := []struct {
		name string
		plan Plan
	}{
		{"unknown pattern", Plan{Pattern: "round_robin", Agents: []Runner{a}}},
		{"no agents", Plan{Pattern: PatternSequential}},
		{"duplicate agents", Plan{Pattern: PatternIndependent, Agents: []Runner{a, a}}},
		{"hierarchical without children", Plan{Pattern: PatternHierarchical, Agents: []Runner{a}}},
		{"quorum out of range", Plan{Pattern: PatternBroadcast, Agents: []Runner{a}, Quorum: 2}},
		{"negative rounds", Plan{Pattern: PatternJoint, Agents: []Runner{a}, MaxRounds: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Run(context.Background(), tt.plan, "task")
			require.ErrorIs(t, err, ErrInvalidPlan)
			assert.Equal(t, core.StatusFailed, res.Status)
			assert.NotEmpty(t, res.ID)
		})
	}
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern(" Broadcast ")
	require.NoError(t, err)
	assert.Equal(t, PatternBroadcast, p)

	_, err = ParsePattern("mesh")
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestRun_WorkflowID(t *testing.T) {
	c := New()
	a := answering(t, "a", "x")

	res, err := c.Run(context.Background(), Plan{ID: "wf-1", Pattern: PatternIndependent, Agents: []Runner{a}}, "task")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", res.ID)

	res, err = c.Run(context.Background(), Plan{Pattern: PatternIndependent, Agents: []Runner{answering(t, "b", "y")}}, "task")
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
}

func TestIndependent(t *testing.T) {
	c := New(func(o *Options) { o.FanOut = 1 })

	res, err := c.Run(context.Background(), Plan{
		Pattern: PatternIndependent,
		Agents:  []Runner{answering(t, "a", "1"), failing(t, "b"), answering(t, "c", "3")},
	}, "task")
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	require.Len(t, res.Results, 3)
	assert.Equal(t, "1", res.Results[0].Result)
	assert.Equal(t, core.StatusFailed, res.Results[1].Status)
	assert.Equal(t, core.KindProvider, res.Results[1].ErrorKind())
	assert.Len(t, res.Completed(), 2)
}

func TestSequential_PassesResultForward(t *testing.T) {
	researcher := answering(t, "researcher", "Paris")
	writerModel := model.NewMockModel("writer", final("The capital of France is Paris."))
	writer := newAgent(t, "writer", writerModel)

	res, err := New().Run(context.Background(), Plan{
		Pattern: PatternSequential,
		Agents:  []Runner{researcher, writer},
	}, "What is the capital of France?")
	require.NoError(t, err)

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "The capital of France is Paris.", res.Final)
	require.Len(t, res.Results, 2)

	reqs := writerModel.Requests()
	require.Len(t, reqs, 1)

	var contents []string
	for _, m := range reqs[0].Messages {
		contents = append(contents, m.Content)
	}

	assert.Contains(t, contents, "Result from researcher:\nParis")
	assert.Contains(t, contents, "What is the capital of France?")
}

func TestSequential_StopsOnFailure(t *testing.T) {
	next := model.NewMockModel("next", final("unused"))

	res, err := New().Run(context.Background(), Plan{
		Pattern: PatternSequential,
		Agents:  []Runner{failing(t, "first"), newAgent(t, "next", next)},
	}, "task")
	require.ErrorIs(t, err, ErrAgentFailed)

	var perr *core.ProviderError
	assert.ErrorAs(t, err, &perr)
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, 0, next.Calls())
}

func TestJoint(t *testing.T) {
	t.Run("first answer ends the collaboration", func(t *testing.T) {
		critic := newAgent(t, "critic", model.NewMockModel("critic", thought("The draft needs a number.")))
		solverModel := model.NewMockModel("solver", final("42"))
		solver := newAgent(t, "solver", solverModel)

		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternJoint,
			Agents:  []Runner{critic, solver},
		}, "What is six times seven?")
		require.NoError(t, err)

		assert.Equal(t, core.StatusCompleted, res.Status)
		assert.Equal(t, "42", res.Final)
		require.Len(t, res.Results, 2)

		for _, r := range res.Results {
			assert.Equal(t, core.StatusCompleted, r.Status)
			assert.Equal(t, "42", r.Result)
		}

		require.Len(t, res.Transcript, 3)
		assert.Equal(t, core.RoleUser, res.Transcript[0].Role)
		assert.Equal(t, "critic", res.Transcript[1].Name)
		assert.Equal(t, "solver", res.Transcript[2].Name)

		// The solver sees the critic's turn as a named user message.
		reqs := solverModel.Requests()
		require.Len(t, reqs, 1)

		last := reqs[0].Messages[len(reqs[0].Messages)-1]
		assert.Equal(t, core.RoleUser, last.Role)
		assert.Equal(t, "critic: Thought: The draft needs a number.", last.Content)
	})

	t.Run("rounds exhausted", func(t *testing.T) {
		a := newAgent(t, "a", model.NewMockModel("a", thought("hmm"), thought("hmm")))
		b := newAgent(t, "b", model.NewMockModel("b", thought("well"), thought("well")))

		res, err := New().Run(context.Background(), Plan{
			Pattern:   PatternJoint,
			Agents:    []Runner{a, b},
			MaxRounds: 2,
		}, "task")
		require.NoError(t, err)

		assert.Equal(t, core.StatusMaxIterations, res.Status)
		assert.Len(t, res.Transcript, 5)

		for _, r := range res.Results {
			assert.Equal(t, core.StatusMaxIterations, r.Status)
		}
	})

	t.Run("failed participant fails the workflow", func(t *testing.T) {
		b := newAgent(t, "b", model.NewMockModel("b", final("unused")))

		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternJoint,
			Agents:  []Runner{failing(t, "a"), b},
		}, "task")
		require.ErrorIs(t, err, ErrAgentFailed)
		assert.Equal(t, core.StatusFailed, res.Status)
	})
}

func TestHierarchical(t *testing.T) {
	t.Run("child answer becomes the observation", func(t *testing.T) {
		root := newAgent(t, "manager", model.NewMockModel("manager",
			delegate("researcher", "Find the capital of France."),
			final("It is Paris."),
		))
		child := answering(t, "researcher", "Paris")

		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternHierarchical,
			Agents:  []Runner{root, child},
		}, "What is the capital of France?")
		require.NoError(t, err)

		assert.Equal(t, core.StatusCompleted, res.Status)
		assert.Equal(t, "It is Paris.", res.Final)
		require.Len(t, res.Results, 2)
		assert.Equal(t, "manager", res.Results[0].Agent)
		assert.Equal(t, "researcher", res.Results[1].Agent)

		steps := res.Results[0].Trace.Steps()
		assert.Equal(t, []core.StepKind{
			core.StepThought, core.StepAction, core.StepObservation, core.StepFinalAnswer,
		}, testutil.Kinds(steps))

		obs, ok := steps[2].(core.Observation)
		require.True(t, ok)
		assert.False(t, obs.IsError)
		assert.Contains(t, obs.Text, "Paris")
	})

	t.Run("child without answer is an error observation", func(t *testing.T) {
		root := newAgent(t, "manager", model.NewMockModel("manager",
			delegate("researcher", "Find it."),
			final("I could not find it."),
		))
		child := newAgent(t, "researcher",
			model.NewMockModel("researcher", thought("a"), thought("b"), thought("c")),
			func(o *agent.Options) { o.MaxIterations = 1 },
		)

		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternHierarchical,
			Agents:  []Runner{root, child},
		}, "task")
		require.NoError(t, err)

		assert.Equal(t, core.StatusCompleted, res.Status)
		require.Len(t, res.Results, 2)
		assert.Equal(t, core.StatusMaxIterations, res.Results[1].Status)

		obs, ok := res.Results[0].Trace.Steps()[2].(core.Observation)
		require.True(t, ok)
		assert.True(t, obs.IsError)
	})

	t.Run("failed child cancels the root", func(t *testing.T) {
		rootModel := model.NewMockModel("manager", delegate("researcher", "Find it."), final("unused"))
		root := newAgent(t, "manager", rootModel)

		res, err := New().Run(context.Background(), Plan{
			Pattern: PatternHierarchical,
			Agents:  []Runner{root, failing(t, "researcher")},
		}, "task")
		require.ErrorIs(t, err, ErrAgentFailed)
		require.ErrorIs(t, err, errUpstream)

		assert.Equal(t, core.StatusFailed, res.Status)
		require.Len(t, res.Results, 2)
		assert.Equal(t, core.KindCancellation, res.Results[0].ErrorKind())
		assert.Equal(t, 1, rootModel.Calls())
	})
}

func TestAgentTool_DepthBound(t *testing.T) {
	at := NewAgentTool(answering(t, "deep", "x"), func(o *AgentToolOptions) { o.MaxDepth = 1 })

	_, err := at.Call(core.WithDepth(context.Background(), 1), map[string]any{"instruction": "go"})
	require.ErrorIs(t, err, core.ErrDepthExceeded)

	out, err := at.Call(context.Background(), map[string]any{"instruction": "go"})
	require.NoError(t, err)
	assert.Equal(t, "x", out)

	assert.Equal(t, []any{"instruction"}, toAny(at.Parameters()["required"]))
}

func toAny(v any) []any {
	switch s := v.(type) {
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}

		return out
	case []any:
		return s
	default:
		return nil
	}
}

func TestCoordinator_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New().Run(ctx, Plan{
		Pattern: PatternIndependent,
		Agents:  []Runner{answering(t, "a", "1")},
	}, "task")

	var cerr *core.CancellationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, core.StatusFailed, res.Status)
}
