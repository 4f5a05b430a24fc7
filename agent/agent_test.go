package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/internal/testutil"
	"github.com/hupe1980/reactmesh/logging"
	"github.com/hupe1980/reactmesh/memory"
	"github.com/hupe1980/reactmesh/model"
	"github.com/hupe1980/reactmesh/tool"
)

func fastRetries(o *Options) {
	o.ProviderBackoff = time.Millisecond
	o.ProviderMaxBackoff = 2 * time.Millisecond
}

func newAgent(t *testing.T, m model.Model, optFns ...func(o *Options)) *Agent {
	t.Helper()

	a, err := New("calc", m, append([]func(o *Options){fastRetries}, optFns...)...)
	require.NoError(t, err)

	return a
}

func withTools(tools ...tool.Tool) func(o *Options) {
	return func(o *Options) { o.Tools = tools }
}

func addAction(a, b float64) *testutil.ResponseBuilder {
	return testutil.NewResponseBuilder().Action("add", map[string]any{"a": a, "b": b})
}

func TestNew_Validation(t *testing.T) {
	m := model.NewMockModel("mock")

	_, err := New("", m)
	assert.ErrorIs(t, err, ErrNoName)

	_, err = New("a", nil)
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = New("a", m, func(o *Options) { o.MaxIterations = 0 })
	assert.Error(t, err)

	_, err = New("a", m, func(o *Options) { o.Strategy = "tree_of_thought" })
	assert.Error(t, err)

	_, err = New("a", m, withTools(testutil.AddTool(), testutil.AddTool()))
	assert.ErrorIs(t, err, tool.ErrDuplicateTool)

	a, err := New("a", m, func(o *Options) { o.Strategy = "Plan-ReAct" })
	require.NoError(t, err)
	assert.Equal(t, StrategyPlanReAct, a.Strategy())
	assert.Equal(t, "Agent a", a.Description())
	assert.Equal(t, 30, a.opts.MaxModelCalls)
}

func TestRun_ComputesTwoPlusTwo(t *testing.T) {
	m := model.NewMockModel("mock",
		testutil.NewResponseBuilder().
			Thought("I need to add 2 and 2.").
			Action("add", map[string]any{"a": 2, "b": 2}).
			String(),
		testutil.NewResponseBuilder().Thought("The sum is 4.").Final("4").String(),
	)
	a := newAgent(t, m, withTools(testutil.AddTool()))

	res := a.Run(context.Background(), Input{Instruction: "compute 2+2 then tell me the answer"})

	require.NoError(t, res.Err)
	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "4", res.Result)
	assert.Equal(t, 4, res.Trace.Len())
	assert.Equal(t,
		[]core.StepKind{core.StepThought, core.StepAction, core.StepObservation, core.StepFinalAnswer},
		testutil.Kinds(res.Trace.Steps()),
	)

	obs := res.Trace.Steps()[2].(core.Observation)
	assert.Equal(t, "4", obs.Text)
	assert.False(t, obs.IsError)

	// The Observation is fed back as a tool message before the second call.
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, "Observation: 4", last.Content)

	// System prompt carries the tool list and the marker.
	system := reqs[0].Messages[0]
	assert.Equal(t, core.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "1. add: Add two numbers")
	assert.Contains(t, system.Content, "FINAL ANSWER:")
}

func TestRun_MaxIterations(t *testing.T) {
	m := model.NewMockModel("mock")
	for i := 0; i < 5; i++ {
		m.AddResponse(addAction(1, 1).String())
	}

	a := newAgent(t, m, withTools(testutil.AddTool()), func(o *Options) { o.MaxIterations = 2 })

	res := a.Run(context.Background(), Input{Instruction: "loop forever"})

	assert.Equal(t, core.StatusMaxIterations, res.Status)
	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.Trace.Count(core.StepAction))
	assert.Equal(t, 2, res.Trace.Count(core.StepObservation))
	assert.Equal(t, 3, m.Calls())
	assert.True(t, res.Trace.Status().Terminal())
}

func TestRun_UnknownToolIsRecoverable(t *testing.T) {
	m := model.NewMockModel("mock",
		testutil.NewResponseBuilder().Action("multiply", map[string]any{"a": 2, "b": 3}).String(),
		testutil.NewResponseBuilder().Final("I cannot multiply.").String(),
	)
	a := newAgent(t, m, withTools(testutil.AddTool()))

	res := a.Run(context.Background(), Input{Instruction: "2*3"})

	assert.Equal(t, core.StatusCompleted, res.Status)

	obs := res.Trace.Steps()[1].(core.Observation)
	assert.True(t, obs.IsError)
	assert.Equal(t, core.KindUnknownTool, core.KindOf(obs.Err))
	assert.Contains(t, obs.Text, `tool "multiply" not found; available tools: add`)
}

func TestRun_ToolFailuresAreObservations(t *testing.T) {
	m := model.NewMockModel("mock",
		testutil.NewResponseBuilder().Action("broken", nil).String(),
		testutil.NewResponseBuilder().Action("add", map[string]any{"a": 1}).String(),
		testutil.NewResponseBuilder().Final("done").String(),
	)
	a := newAgent(t, m, withTools(testutil.AddTool(), testutil.FailingTool("broken", errors.New("disk full"))))

	res := a.Run(context.Background(), Input{Instruction: "try"})

	require.Equal(t, core.StatusCompleted, res.Status)

	steps := res.Trace.Steps()
	assert.Equal(t, core.KindToolExecution, core.KindOf(steps[1].(core.Observation).Err))
	assert.Equal(t, core.KindInvalidArguments, core.KindOf(steps[3].(core.Observation).Err))
}

func TestRun_ThoughtOnlyResponseReinvokesModel(t *testing.T) {
	m := model.NewMockModel("mock",
		"Thought: let me think about it",
		testutil.NewResponseBuilder().Final("42").String(),
	)
	a := newAgent(t, m)

	res := a.Run(context.Background(), Input{Instruction: "meaning of life"})

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "42", res.Result)
	assert.Equal(t, []core.StepKind{core.StepThought, core.StepFinalAnswer}, testutil.Kinds(res.Trace.Steps()))
	assert.Equal(t, 2, m.Calls())
}

func TestRun_TrailingTextAfterActionIsDiscarded(t *testing.T) {
	m := model.NewMockModel("mock",
		addAction(2, 3).Observation("6").Thought("so it is 6").String(),
		testutil.NewResponseBuilder().Final("5").String(),
	)
	a := newAgent(t, m, withTools(testutil.AddTool()))

	res := a.Run(context.Background(), Input{Instruction: "2+3"})

	assert.Equal(t, []core.StepKind{core.StepAction, core.StepObservation, core.StepFinalAnswer}, testutil.Kinds(res.Trace.Steps()))
	assert.Equal(t, "5", res.Trace.Steps()[1].(core.Observation).Text)
}

func TestRun_ModelCallCeiling(t *testing.T) {
	m := model.NewMockModel("mock", "Thought: a", "Thought: b", "Thought: c")
	a := newAgent(t, m, func(o *Options) { o.MaxModelCalls = 2 })

	res := a.Run(context.Background(), Input{Instruction: "ponder"})

	assert.Equal(t, core.StatusMaxIterations, res.Status)
	assert.Equal(t, 2, m.Calls())
	assert.Equal(t, 2, res.Trace.Count(core.StepThought))
}

func TestRun_ParseErrorCorrectiveRetry(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		m := model.NewMockModel("mock",
			"I am not following the format.",
			testutil.NewResponseBuilder().Final("ok").String(),
		)
		a := newAgent(t, m)

		res := a.Run(context.Background(), Input{Instruction: "answer"})

		assert.Equal(t, core.StatusCompleted, res.Status)
		require.Len(t, res.Trace.Corrections(), 1)
		assert.Equal(t, "I am not following the format.", res.Trace.Corrections()[0].Raw)

		second := m.Requests()[1].Messages
		note := second[len(second)-1]
		assert.Equal(t, core.RoleSystem, note.Role)
		assert.Contains(t, note.Content, "could not be processed")
	})

	t.Run("fails after retries", func(t *testing.T) {
		m := model.NewMockModel("mock", "nonsense", "more nonsense", "unused")
		a := newAgent(t, m)

		res := a.Run(context.Background(), Input{Instruction: "answer"})

		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Equal(t, core.KindParse, res.ErrorKind())
		assert.Len(t, res.Trace.Corrections(), 1)
		assert.Equal(t, 2, m.Calls())

		var perr *core.ParseError
		require.ErrorAs(t, res.Err, &perr)
		assert.Equal(t, "more nonsense", perr.Raw)
	})

	t.Run("retries disabled", func(t *testing.T) {
		m := model.NewMockModel("mock", "nonsense")
		a := newAgent(t, m, func(o *Options) { o.MaxParseRetries = 0 })

		res := a.Run(context.Background(), Input{Instruction: "answer"})

		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Empty(t, res.Trace.Corrections())
	})
}

func TestRun_PlanReActRequiresPlan(t *testing.T) {
	t.Run("corrective retry then plan", func(t *testing.T) {
		m := model.NewMockModel("mock",
			addAction(2, 2).String(),
			testutil.NewResponseBuilder().Plan("1. add the numbers 2. answer").String(),
			addAction(2, 2).String(),
			testutil.NewResponseBuilder().Final("4").String(),
		)
		a := newAgent(t, m, withTools(testutil.AddTool()), func(o *Options) { o.Strategy = StrategyPlanReAct })

		res := a.Run(context.Background(), Input{Instruction: "2+2"})

		assert.Equal(t, core.StatusCompleted, res.Status)
		require.Len(t, res.Trace.Corrections(), 1)
		assert.Equal(t,
			[]core.StepKind{core.StepPlan, core.StepAction, core.StepObservation, core.StepFinalAnswer},
			testutil.Kinds(res.Trace.Steps()),
		)

		note := m.Requests()[1].Messages
		assert.Contains(t, note[len(note)-1].Content, "Plan:")
	})

	t.Run("fails without plan", func(t *testing.T) {
		m := model.NewMockModel("mock", addAction(2, 2).String(), addAction(2, 2).String())
		a := newAgent(t, m, withTools(testutil.AddTool()), func(o *Options) { o.Strategy = StrategyPlanReAct })

		res := a.Run(context.Background(), Input{Instruction: "2+2"})

		assert.Equal(t, core.StatusFailed, res.Status)
		assert.ErrorIs(t, res.Err, ErrPlanRequired)
		assert.Equal(t, 0, res.Trace.Count(core.StepAction))
		assert.Len(t, res.Trace.Corrections(), 1)
	})
}

func TestRun_ProviderErrors(t *testing.T) {
	t.Run("retried with backoff", func(t *testing.T) {
		m := model.NewMockModel("mock").
			AddError(errors.New("503")).
			AddError(errors.New("503")).
			AddResponse(testutil.NewResponseBuilder().Final("up again").String())
		a := newAgent(t, m)

		res := a.Run(context.Background(), Input{Instruction: "hi"})

		assert.Equal(t, core.StatusCompleted, res.Status)
		assert.Equal(t, 3, m.Calls())
	})

	t.Run("fatal after retries", func(t *testing.T) {
		boom := errors.New("503")
		m := model.NewMockModel("mock")
		for i := 0; i < 4; i++ {
			m.AddError(boom)
		}

		a := newAgent(t, m)

		res := a.Run(context.Background(), Input{Instruction: "hi"})

		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Equal(t, core.KindProvider, res.ErrorKind())
		assert.ErrorIs(t, res.Err, boom)

		var perr *core.ProviderError
		require.ErrorAs(t, res.Err, &perr)
		assert.Equal(t, 4, perr.Attempts)
		assert.Equal(t, "mock", perr.Model)
	})
}

func TestRun_Cancellation(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		m := model.NewMockModel("mock", "unused")
		res := newAgent(t, m).Run(ctx, Input{Instruction: "hi"})

		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Equal(t, core.KindCancellation, res.ErrorKind())
		assert.Equal(t, 0, m.Calls())
	})

	t.Run("during tool call", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		stopper := tool.NewFunctionTool("stop", "Cancels the run", nil, func(toolCtx context.Context, _ map[string]any) (any, error) {
			cancel()
			<-toolCtx.Done()
			return nil, toolCtx.Err()
		})

		m := model.NewMockModel("mock", testutil.NewResponseBuilder().Action("stop", nil).String(), "unused")
		a := newAgent(t, m, withTools(stopper), func(o *Options) { o.ToolTimeout = 0 })

		res := a.Run(ctx, Input{Instruction: "stop"})

		assert.Equal(t, core.StatusFailed, res.Status)
		assert.Equal(t, core.KindCancellation, res.ErrorKind())

		steps := res.Trace.Steps()
		require.Len(t, steps, 2)
		obs := steps[1].(core.Observation)
		assert.True(t, obs.IsError)
		_, pending := res.Trace.PendingAction()
		assert.False(t, pending)
		assert.Equal(t, 1, m.Calls())
	})
}

func TestRun_InfersSingleTool(t *testing.T) {
	add := testutil.Record(testutil.AddTool())
	m := model.NewMockModel("mock",
		`Action: {"args": {"a": 1, "b": 2}}`,
		testutil.NewResponseBuilder().Final("3").String(),
	)
	a := newAgent(t, m, withTools(add))

	res := a.Run(context.Background(), Input{Instruction: "1+2"})

	assert.Equal(t, core.StatusCompleted, res.Status)
	assert.Equal(t, "add", res.Trace.Steps()[0].(core.Action).Tool)
	assert.Len(t, add.Calls(), 1)
}

func TestRun_SeedsContextMemoryAndRunTools(t *testing.T) {
	store := memory.NewInMemoryStore()
	store.Store("The user lives in Paris", nil)

	m := model.NewMockModel("mock",
		testutil.NewResponseBuilder().Action("echo", map[string]any{"text": "hi"}).String(),
		testutil.NewResponseBuilder().Final("hi").String(),
	)
	a := newAgent(t, m, func(o *Options) {
		o.Memory = store
		o.SystemPrompt = "You are terse."
	})

	res := a.Run(context.Background(), Input{
		Instruction: "Where does the user live?",
		Context:     []core.Message{core.NewUserMessage("Result from scout:\nParis")},
		Tools:       []tool.Tool{testutil.EchoTool("echo")},
	})

	require.Equal(t, core.StatusCompleted, res.Status)
	assert.False(t, res.Trace.Steps()[1].(core.Observation).IsError)

	first := m.Requests()[0].Messages
	require.Len(t, first, 4)
	assert.True(t, strings.HasPrefix(first[0].Content, "You are terse."))
	assert.Contains(t, first[0].Content, "echo: Echo the input text")
	assert.Equal(t, "Relevant memory: The user lives in Paris", first[1].Content)
	assert.Equal(t, "Result from scout:\nParis", first[2].Content)
	assert.Equal(t, "Where does the user live?", first[3].Content)

	// Run tools do not leak into the agent registry.
	assert.Equal(t, 0, a.Registry().Len())
}

func TestRun_DuplicateRunToolFails(t *testing.T) {
	m := model.NewMockModel("mock", "unused")
	a := newAgent(t, m, withTools(testutil.AddTool()))

	res := a.Run(context.Background(), Input{Instruction: "x", Tools: []tool.Tool{testutil.AddTool()}})

	assert.Equal(t, core.StatusFailed, res.Status)
	assert.ErrorIs(t, res.Err, tool.ErrDuplicateTool)
	assert.Equal(t, 0, m.Calls())
}

type recordingObserver struct {
	core.NoOpObserver

	mu       sync.Mutex
	started  []core.RunInfo
	steps    []core.StepKind
	models   int
	tools    []string
	finished []core.Status
}

func (o *recordingObserver) RunStarted(ctx context.Context, info core.RunInfo) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.started = append(o.started, info)

	return ctx
}

func (o *recordingObserver) StepRecorded(_ context.Context, _ core.RunInfo, s core.Step) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.steps = append(o.steps, s.Kind())
}

func (o *recordingObserver) ModelCalled(context.Context, core.RunInfo, core.ModelCall) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.models++
}

func (o *recordingObserver) ToolInvoked(_ context.Context, _ core.RunInfo, c core.ToolCall) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.tools = append(o.tools, c.Tool)
}

func (o *recordingObserver) RunFinished(_ context.Context, _ core.RunInfo, r *core.AgentResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.finished = append(o.finished, r.Status)
}

func TestRun_NotifiesObserverAndLogger(t *testing.T) {
	obs := &recordingObserver{}

	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelDebug, Format: "json", Output: &buf})

	m := model.NewMockModel("mock",
		addAction(2, 2).String(),
		testutil.NewResponseBuilder().Final("4").String(),
	)
	a := newAgent(t, m, withTools(testutil.AddTool()), func(o *Options) {
		o.Observer = obs
		o.Logger = logger
	})

	res := a.Run(context.Background(), Input{Instruction: "2+2"})
	require.Equal(t, core.StatusCompleted, res.Status)

	require.Len(t, obs.started, 1)
	assert.Equal(t, res.RunID, obs.started[0].RunID)
	assert.Equal(t, "react", obs.started[0].Strategy)
	assert.Equal(t, []core.StepKind{core.StepAction, core.StepObservation, core.StepFinalAnswer}, obs.steps)
	assert.Equal(t, 2, obs.models)
	assert.Equal(t, []string{"add"}, obs.tools)
	assert.Equal(t, []core.Status{core.StatusCompleted}, obs.finished)

	out := buf.String()
	for _, event := range []string{"agent.run.start", "agent.model.call", "tool.call.executed", "agent.run.end"} {
		assert.Contains(t, out, `"msg":"`+event+`"`)
	}
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	var calls sync.Map

	m := model.NewFunc("echo", func(_ context.Context, req model.Request) (string, error) {
		instruction := req.Messages[len(req.Messages)-1].Content
		calls.Store(instruction, true)

		return "FINAL ANSWER: " + instruction, nil
	})
	a := newAgent(t, m)

	var wg sync.WaitGroup
	results := make([]*core.AgentResult, 8)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = a.Run(context.Background(), Input{Instruction: string(rune('a' + i))})
		}(i)
	}

	wg.Wait()

	for i, res := range results {
		assert.Equal(t, core.StatusCompleted, res.Status)
		assert.Equal(t, string(rune('a'+i)), res.Result)
	}
}
