package reactmesh

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/config"
	"github.com/hupe1980/reactmesh/coordinator"
	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/history"
	"github.com/hupe1980/reactmesh/internal/testutil"
	"github.com/hupe1980/reactmesh/model"
	"github.com/hupe1980/reactmesh/tool"
)

func newAgent(t *testing.T, name string, m model.Model, tools ...tool.Tool) *agent.Agent {
	t.Helper()

	a, err := agent.New(name, m, func(o *agent.Options) {
		o.Tools = tools
		o.ProviderRetries = 0
	})
	require.NoError(t, err)

	return a
}

func blockingAgent(t *testing.T, name string) *agent.Agent {
	t.Helper()

	return newAgent(t, name, model.NewFunc(name, func(ctx context.Context, _ model.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}))
}

func TestOrchestrator_Registry(t *testing.T) {
	o := New()

	require.NoError(t, o.Register(newAgent(t, "b", model.NewMockModel("b")), newAgent(t, "a", model.NewMockModel("a"))))
	assert.ErrorIs(t, o.Register(newAgent(t, "a", model.NewMockModel("a"))), ErrDuplicateRunner)
	assert.Equal(t, []string{"a", "b"}, o.Names())

	_, err := o.Run(context.Background(), "ghost", "task")
	assert.ErrorIs(t, err, ErrRunnerNotFound)

	_, err = o.Collaborate(context.Background(), coordinator.PatternSequential, []string{"a", "ghost"}, "task")
	assert.ErrorIs(t, err, ErrRunnerNotFound)

	_, err = o.RunWorkflow(context.Background(), "missing", "task")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = o.InvokeWorkflow(context.Background(), "missing", "task")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = o.InvokeCollaboration(context.Background(), coordinator.PatternIndependent, []string{"ghost"}, "task")
	assert.ErrorIs(t, err, ErrRunnerNotFound)

	assert.ErrorIs(t, o.Register(nil), ErrNilRunner)
	assert.Equal(t, []string{"a", "b"}, o.Names())
}

func TestOrchestrator_Run(t *testing.T) {
	m := model.NewMockModel("mock",
		testutil.NewResponseBuilder().Action("add", map[string]any{"a": 2, "b": 2}).String(),
		testutil.NewResponseBuilder().Final("4").String(),
	)

	o := New()
	require.NoError(t, o.Register(newAgent(t, "calc", m, testutil.AddTool())))

	res, err := o.Run(context.Background(), "calc", "compute 2+2")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "4", res.Result)
	assert.Equal(t, 0, o.Active())
}

func TestOrchestrator_InvokeAndStop(t *testing.T) {
	o := New()
	require.NoError(t, o.Register(blockingAgent(t, "slow")))

	inv, err := o.Invoke(context.Background(), "slow", "wait")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return o.Active() == 1 }, time.Second, time.Millisecond)
	assert.True(t, o.Stop(inv.ID))
	assert.False(t, o.Stop("unknown"))

	res := <-inv.Result
	require.NotNil(t, res)
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, core.KindCancellation, res.ErrorKind())

	_, open := <-inv.Result
	assert.False(t, open)
}

func TestOrchestrator_StopCollaboration(t *testing.T) {
	o := New()
	require.NoError(t, o.Register(blockingAgent(t, "slow1"), blockingAgent(t, "slow2")))

	inv, err := o.InvokeCollaboration(context.Background(), coordinator.PatternIndependent, []string{"slow1", "slow2"}, "wait")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return o.Active() == 1 }, time.Second, time.Millisecond)
	assert.True(t, o.Stop(inv.ID))

	res := <-inv.Result
	require.NotNil(t, res)
	assert.Equal(t, inv.ID, res.ID)
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, core.KindCancellation, core.KindOf(res.Err))

	for _, r := range res.Results {
		assert.Equal(t, core.StatusFailed, r.Status)
	}

	assert.Equal(t, 0, o.Active())
}

func TestOrchestrator_StopWorkflow(t *testing.T) {
	o := New(func(opts *Options) {
		opts.Workflows = []config.Workflow{{Name: "wait", Pattern: "sequential", Agents: []string{"slow"}}}
	})
	require.NoError(t, o.Register(blockingAgent(t, "slow")))

	inv, err := o.InvokeWorkflow(context.Background(), "wait", "task")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return o.Active() == 1 }, time.Second, time.Millisecond)
	assert.True(t, o.Stop(inv.ID))

	res := <-inv.Result
	assert.Equal(t, inv.ID, res.ID)
	assert.Equal(t, core.StatusFailed, res.Status)
	assert.Equal(t, core.KindCancellation, core.KindOf(res.Err))

	_, open := <-inv.Result
	assert.False(t, open)
}

func TestOrchestrator_ConcurrencyBound(t *testing.T) {
	o := New(func(opts *Options) { opts.MaxConcurrentRuns = 1 })
	require.NoError(t, o.Register(blockingAgent(t, "slow")))
	require.NoError(t, o.Register(newAgent(t, "fast", model.NewMockModel("fast", "FINAL ANSWER: done"))))

	inv, err := o.Invoke(context.Background(), "slow", "wait")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return o.Active() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = o.Run(ctx, "fast", "task")

	var cerr *core.CancellationError
	require.ErrorAs(t, err, &cerr)

	o.Stop(inv.ID)
	<-inv.Result

	res, err := o.Run(context.Background(), "fast", "task")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Result)
}

func TestOrchestrator_Collaborate(t *testing.T) {
	o := New()
	require.NoError(t, o.Register(
		newAgent(t, "a", model.NewMockModel("a", "FINAL ANSWER: A")),
		newAgent(t, "b", model.NewMockModel("b").AddError(errors.New("boom"))),
		newAgent(t, "c", model.NewMockModel("c", "FINAL ANSWER: C")),
	))

	res, err := o.Collaborate(context.Background(), coordinator.PatternBroadcast, []string{"a", "b", "c"}, "task",
		func(p *coordinator.Plan) { p.Quorum = 2 })
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Len(t, res.Completed(), 2)
}

func TestOrchestrator_History(t *testing.T) {
	store := history.NewInMemoryStore(10)

	o := New(func(opts *Options) { opts.History = store })
	require.NoError(t, o.Register(
		newAgent(t, "a", model.NewMockModel("a", "FINAL ANSWER: A", "FINAL ANSWER: again")),
		newAgent(t, "b", model.NewMockModel("b", "FINAL ANSWER: B")),
	))

	res, err := o.Run(context.Background(), "a", "task")
	require.NoError(t, err)

	got, err := o.History().Run(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Result)

	wf, err := o.Collaborate(context.Background(), coordinator.PatternIndependent, []string{"a", "b"}, "task")
	require.NoError(t, err)

	_, err = store.Workflow(wf.ID)
	require.NoError(t, err)
	assert.Len(t, store.RunsOf("a"), 2)

	runs, workflows := store.Len()
	assert.Equal(t, 3, runs)
	assert.Equal(t, 1, workflows)

	assert.Nil(t, New().History())
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Provider.Name = "mock"
	cfg.Logging.Level = "error"
	cfg.Cache.Enabled = true
	cfg.Agents = []config.AgentSpec{
		{Name: "researcher", Tools: []string{"math.add", "datetime.now"}},
		{Name: "writer", Strategy: "single_response"},
	}
	cfg.Workflows = []config.Workflow{
		{Name: "pipeline", Pattern: "sequential", Agents: []string{"researcher", "writer"}},
	}
	require.NoError(t, cfg.Validate())

	o, err := NewFromConfig(&cfg)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	assert.Equal(t, []string{"researcher", "writer"}, o.Names())

	r, ok := o.Runner("researcher")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"math.add", "datetime.now"}, r.(*agent.Agent).Registry().Names())

	res, err := o.RunWorkflow(context.Background(), "pipeline", "hello")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "hello", res.Final)

	stored, err := o.History().Workflow(res.ID)
	require.NoError(t, err)
	assert.Same(t, res, stored)

	cfg.Agents[0].Tools = []string{"unknown.tool"}
	_, err = NewFromConfig(&cfg)
	assert.ErrorContains(t, err, `unknown tool "unknown.tool"`)
}

func TestNewModel(t *testing.T) {
	for _, name := range []string{"openai", "anthropic", "mock"} {
		m, err := NewModel(config.Provider{Name: name, APIKey: "test", Model: ""})
		require.NoError(t, err, name)

		if name == "mock" {
			assert.Equal(t, "func", m.Info().Provider)
		} else {
			assert.Equal(t, name, m.Info().Provider)
		}
	}

	_, err := NewModel(config.Provider{Name: "llama"})
	assert.Error(t, err)

	m, err := NewModel(config.Provider{Name: "mock"})
	require.NoError(t, err)

	resp, err := model.Collect(context.Background(), m, model.Request{Messages: []core.Message{
		core.NewSystemMessage("sys"),
		core.NewUserMessage("echo me"),
	}})
	require.NoError(t, err)
	assert.Equal(t, "FINAL ANSWER: echo me", resp.Text)
}

func TestOrchestrator_PlanAndExecute(t *testing.T) {
	plan := `{"tasks": [
		{"id": "research", "description": "collect facts", "agent": "researcher"},
		{"id": "write", "description": "write the post", "agent": "writer", "dependencies": ["research"]}
	]}`

	newPlanner := func(t *testing.T, responses ...string) (*agent.Agent, *model.MockModel) {
		t.Helper()

		m := model.NewMockModel("planner", responses...)
		a, err := agent.New("planner", m, func(o *agent.Options) {
			o.Strategy = agent.StrategyPlanner
			o.ProviderRetries = 0
		})
		require.NoError(t, err)

		return a, m
	}

	t.Run("plan runs as a graph", func(t *testing.T) {
		planner, pm := newPlanner(t, plan)
		writer := model.NewMockModel("writer", "FINAL ANSWER: the post")

		store := history.NewInMemoryStore(10)

		o := New(func(opts *Options) { opts.History = store })
		require.NoError(t, o.Register(
			planner,
			newAgent(t, "researcher", model.NewMockModel("researcher", "FINAL ANSWER: the facts")),
			newAgent(t, "writer", writer),
		))

		res, err := o.PlanAndExecute(context.Background(), "planner", []string{"researcher", "writer"}, "blog about Go")
		require.NoError(t, err)

		assert.Equal(t, core.StatusCompleted, res.Status)
		assert.Equal(t, coordinator.PatternGraph, res.Pattern)
		assert.Equal(t, "the post", res.Final)
		require.Len(t, res.Tasks, 2)

		research, ok := res.Task("research")
		require.True(t, ok)
		assert.Equal(t, "researcher", research.Agent)
		assert.Equal(t, "the facts", research.Result)

		prompt := pm.Requests()[0].Messages
		assert.Contains(t, prompt[len(prompt)-1].Content, "Available agents:\n- researcher: Agent researcher\n- writer: Agent writer")

		var seen []string
		for _, msg := range writer.Requests()[0].Messages {
			seen = append(seen, msg.Content)
		}
		assert.Contains(t, strings.Join(seen, "\n"), "Result from task research:\nthe facts")

		assert.Len(t, store.RunsOf("planner"), 1)
	})

	t.Run("unknown worker", func(t *testing.T) {
		planner, pm := newPlanner(t, plan)

		o := New()
		require.NoError(t, o.Register(planner))

		_, err := o.PlanAndExecute(context.Background(), "planner", []string{"ghost"}, "x")
		require.ErrorIs(t, err, ErrRunnerNotFound)
		assert.Equal(t, 0, pm.Calls())
	})

	t.Run("planner fails", func(t *testing.T) {
		planner, _ := newPlanner(t, "no plan", "still no plan")

		o := New()
		require.NoError(t, o.Register(planner, newAgent(t, "researcher", model.NewMockModel("researcher"))))

		_, err := o.PlanAndExecute(context.Background(), "planner", []string{"researcher"}, "x")
		require.ErrorIs(t, err, coordinator.ErrAgentFailed)
		assert.Equal(t, core.KindParse, core.KindOf(err))
	})

	t.Run("plan names an agent outside the workers", func(t *testing.T) {
		planner, _ := newPlanner(t, `{"tasks": [{"id": "t", "description": "d", "agent": "editor"}]}`)

		o := New()
		require.NoError(t, o.Register(planner, newAgent(t, "researcher", model.NewMockModel("researcher"))))

		res, err := o.PlanAndExecute(context.Background(), "planner", []string{"researcher"}, "x")
		require.ErrorIs(t, err, coordinator.ErrInvalidPlan)
		assert.Equal(t, core.StatusFailed, res.Status)
	})
}

func TestNewFromConfig_Tools(t *testing.T) {
	cfg := config.Defaults()
	cfg.Provider.Name = "mock"
	cfg.Logging.Level = "error"
	cfg.Tools.FileRoot = t.TempDir()
	cfg.Agents = []config.AgentSpec{
		{Name: "clerk", ToolPattern: `^(file|dir)\.`, ExcludeTools: []string{"file.delete", "dir.delete"}},
		{Name: "calc", Tools: []string{"math.add"}},
	}
	require.NoError(t, cfg.Validate())

	o, err := NewFromConfig(&cfg, testutil.EchoTool("math.add"))
	require.NoError(t, err)
	t.Cleanup(o.Close)

	clerk, ok := o.Runner("clerk")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{
		"file.read", "file.write", "file.exists", "file.size", "file.copy", "file.move",
		"dir.create", "dir.exists", "dir.list",
	}, clerk.(*agent.Agent).Registry().Names())

	calc, ok := o.Runner("calc")
	require.True(t, ok)

	add, ok := calc.(*agent.Agent).Registry().Lookup("math.add")
	require.True(t, ok)
	assert.Equal(t, "Echo the input text", add.Description(), "extra tools replace built-ins")

	cfg.Tools.FileRoot = ""
	cfg.Agents = cfg.Agents[:1]

	o, err = NewFromConfig(&cfg)
	require.NoError(t, err)
	t.Cleanup(o.Close)

	clerk, _ = o.Runner("clerk")
	assert.Empty(t, clerk.(*agent.Agent).Registry().Names(), "file tools need a root")
}
