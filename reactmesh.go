// Package reactmesh provides a high-level façade over agents and the
// coordinator. Most applications interact with this package by:
//  1. Creating an Orchestrator via New() or NewFromConfig()
//  2. Registering agents (any coordinator.Runner)
//  3. Running one agent (Run, Invoke) or a collaboration (Collaborate,
//     RunWorkflow, InvokeCollaboration, InvokeWorkflow, PlanAndExecute)
//
// The Orchestrator bounds the number of concurrently executing runs and keeps
// track of asynchronous invocations so they can be stopped by id.
package reactmesh

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/config"
	"github.com/hupe1980/reactmesh/coordinator"
	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/history"
	"github.com/hupe1980/reactmesh/logging"
)

var (
	// ErrRunnerNotFound is returned for names that are not registered.
	ErrRunnerNotFound = errors.New("runner not found")
	// ErrDuplicateRunner is returned when registering a name twice.
	ErrDuplicateRunner = errors.New("runner already registered")
	// ErrWorkflowNotFound is returned for workflow names that are not configured.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrNilRunner is returned when registering a nil runner.
	ErrNilRunner = errors.New("runner is nil")
)

// DefaultMaxConcurrentRuns bounds concurrently executing runs.
const DefaultMaxConcurrentRuns = 8

// Options configures the Orchestrator.
type Options struct {
	// MaxConcurrentRuns limits runs and collaborations executing at the same
	// time; callers beyond the limit wait for a slot.
	MaxConcurrentRuns int
	// Coordinator options applied to every collaboration.
	Coordinator func(o *coordinator.Options)
	// Workflows are named collaborations available to RunWorkflow.
	Workflows []config.Workflow
	// MaxRounds is the Joint round bound used when a workflow sets none.
	MaxRounds int
	// History records finished runs and collaborations when set.
	History history.Store
	Logger  logging.Logger
}

// Orchestrator is a registry of named runners with bounded concurrent execution.
type Orchestrator struct {
	opts        Options
	coordinator *coordinator.Coordinator
	sem         *semaphore.Weighted
	logger      logging.Logger

	mu      sync.RWMutex
	runners map[string]coordinator.Runner

	activeMu sync.Mutex
	active   map[string]context.CancelFunc

	closers []func()
}

// New creates an Orchestrator.
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		MaxConcurrentRuns: DefaultMaxConcurrentRuns,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentRuns < 1 {
		opts.MaxConcurrentRuns = DefaultMaxConcurrentRuns
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Orchestrator{
		opts: opts,
		coordinator: coordinator.New(func(o *coordinator.Options) {
			if opts.Coordinator != nil {
				opts.Coordinator(o)
			}

			o.Logger = opts.Logger
		}),
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrentRuns)),
		logger:  opts.Logger,
		runners: make(map[string]coordinator.Runner),
		active:  make(map[string]context.CancelFunc),
	}
}

// Register adds runners by name.
func (o *Orchestrator) Register(runners ...coordinator.Runner) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, r := range runners {
		if r == nil {
			return ErrNilRunner
		}

		if _, dup := o.runners[r.Name()]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRunner, r.Name())
		}

		o.runners[r.Name()] = r
	}

	return nil
}

// Runner returns a registered runner.
func (o *Orchestrator) Runner(name string) (coordinator.Runner, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	r, ok := o.runners[name]

	return r, ok
}

// Names returns the registered runner names in sorted order.
func (o *Orchestrator) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := make([]string, 0, len(o.runners))
	for name := range o.runners {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

func (o *Orchestrator) lookup(names []string) ([]coordinator.Runner, error) {
	runners := make([]coordinator.Runner, 0, len(names))

	for _, name := range names {
		r, ok := o.Runner(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRunnerNotFound, name)
		}

		runners = append(runners, r)
	}

	return runners, nil
}

// track acquires an execution slot and registers a cancellable context under
// id. The returned release must be called when the run ends.
func (o *Orchestrator) track(ctx context.Context, id string) (context.Context, func(), error) {
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, core.NewCancellationError(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)

	o.activeMu.Lock()
	o.active[id] = cancel
	o.activeMu.Unlock()

	return ctx, func() {
		o.activeMu.Lock()
		delete(o.active, id)
		o.activeMu.Unlock()

		cancel()
		o.sem.Release(1)
	}, nil
}

// Run executes the named runner. The error is the run's fatal error, if any;
// a max_iterations outcome is reported through the result status. Use Invoke
// for a run that can be stopped by id.
func (o *Orchestrator) Run(ctx context.Context, name, instruction string) (*core.AgentResult, error) {
	return o.run(ctx, uuid.NewString(), name, instruction)
}

func (o *Orchestrator) run(ctx context.Context, id, name, instruction string) (*core.AgentResult, error) {
	r, ok := o.Runner(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunnerNotFound, name)
	}

	ctx, release, err := o.track(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	o.logger.Debug("orchestrator.run.start", "invocation_id", id, "runner", name)

	res := r.Run(ctx, agent.Input{Instruction: instruction})
	o.record(func(h history.Store) error { return h.SaveRun(res) })

	return res, res.Err
}

func (o *Orchestrator) record(save func(h history.Store) error) {
	if o.opts.History == nil {
		return
	}

	if err := save(o.opts.History); err != nil {
		o.logger.Warn("orchestrator.history.save_failed", "error", err)
	}
}

// History returns the configured history store, or nil.
func (o *Orchestrator) History() history.Store {
	return o.opts.History
}

// Invocation is the handle of an asynchronous run.
type Invocation struct {
	ID     string
	Result <-chan *core.AgentResult
}

// Invoke starts the named runner asynchronously. The result channel receives
// exactly one result and is then closed. The run can be cancelled with Stop.
func (o *Orchestrator) Invoke(ctx context.Context, name, instruction string) (*Invocation, error) {
	if _, ok := o.Runner(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunnerNotFound, name)
	}

	id := uuid.NewString()
	out := make(chan *core.AgentResult, 1)

	go func() {
		defer close(out)

		res, err := o.run(ctx, id, name, instruction)
		if res == nil {
			res = &core.AgentResult{RunID: id, Agent: name, Status: core.StatusFailed, Err: err}
		}

		out <- res
	}()

	return &Invocation{ID: id, Result: out}, nil
}

// Stop cancels an asynchronous run or collaboration by the id of its handle
// (Invoke, InvokeCollaboration, InvokeWorkflow). It reports whether id was
// active. Synchronous calls are cancelled through their context.
func (o *Orchestrator) Stop(id string) bool {
	o.activeMu.Lock()
	cancel, ok := o.active[id]
	o.activeMu.Unlock()

	if ok {
		cancel()
	}

	return ok
}

// Active returns the number of in-flight runs and collaborations.
func (o *Orchestrator) Active() int {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()

	return len(o.active)
}

// Collaborate runs the named agents under pattern. optFns adjust the plan
// (quorum, fail-fast, rounds) before it runs.
func (o *Orchestrator) Collaborate(
	ctx context.Context,
	pattern coordinator.Pattern,
	names []string,
	instruction string,
	optFns ...func(p *coordinator.Plan),
) (*coordinator.Result, error) {
	plan, err := o.collaborationPlan(pattern, names, optFns)
	if err != nil {
		return nil, err
	}

	return o.collaborate(ctx, plan, instruction)
}

// WorkflowInvocation is the handle of an asynchronous collaboration. ID is
// also the ID of the resulting coordinator.Result.
type WorkflowInvocation struct {
	ID     string
	Result <-chan *coordinator.Result
}

// InvokeCollaboration starts Collaborate asynchronously. The result channel
// receives exactly one result and is then closed. The workflow can be
// cancelled with Stop.
func (o *Orchestrator) InvokeCollaboration(
	ctx context.Context,
	pattern coordinator.Pattern,
	names []string,
	instruction string,
	optFns ...func(p *coordinator.Plan),
) (*WorkflowInvocation, error) {
	plan, err := o.collaborationPlan(pattern, names, optFns)
	if err != nil {
		return nil, err
	}

	return o.invokePlan(ctx, plan, instruction), nil
}

func (o *Orchestrator) collaborationPlan(
	pattern coordinator.Pattern,
	names []string,
	optFns []func(p *coordinator.Plan),
) (coordinator.Plan, error) {
	runners, err := o.lookup(names)
	if err != nil {
		return coordinator.Plan{}, err
	}

	plan := coordinator.Plan{Pattern: pattern, Agents: runners, MaxRounds: o.opts.MaxRounds}
	for _, fn := range optFns {
		fn(&plan)
	}

	return plan, nil
}

func (o *Orchestrator) invokePlan(ctx context.Context, plan coordinator.Plan, instruction string) *WorkflowInvocation {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}

	out := make(chan *coordinator.Result, 1)

	go func() {
		defer close(out)

		res, err := o.collaborate(ctx, plan, instruction)
		if res == nil {
			res = &coordinator.Result{ID: plan.ID, Pattern: plan.Pattern, Status: core.StatusFailed, Err: err}
		}

		out <- res
	}()

	return &WorkflowInvocation{ID: plan.ID, Result: out}
}

// collaborate runs plan under its ID so that Stop can reach it.
func (o *Orchestrator) collaborate(ctx context.Context, plan coordinator.Plan, instruction string) (*coordinator.Result, error) {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}

	ctx, release, err := o.track(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := o.coordinator.Run(ctx, plan, instruction)
	o.record(func(h history.Store) error { return h.SaveWorkflow(res) })

	return res, err
}

// RunWorkflow runs a configured workflow by name.
func (o *Orchestrator) RunWorkflow(ctx context.Context, name, instruction string) (*coordinator.Result, error) {
	plan, err := o.workflowPlan(name)
	if err != nil {
		return nil, err
	}

	return o.collaborate(ctx, plan, instruction)
}

// InvokeWorkflow starts a configured workflow asynchronously; see InvokeCollaboration.
func (o *Orchestrator) InvokeWorkflow(ctx context.Context, name, instruction string) (*WorkflowInvocation, error) {
	plan, err := o.workflowPlan(name)
	if err != nil {
		return nil, err
	}

	return o.invokePlan(ctx, plan, instruction), nil
}

func (o *Orchestrator) workflowPlan(name string) (coordinator.Plan, error) {
	idx := slices.IndexFunc(o.opts.Workflows, func(w config.Workflow) bool { return w.Name == name })
	if idx < 0 {
		return coordinator.Plan{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}

	w := o.opts.Workflows[idx]

	runners, err := o.lookup(w.Agents)
	if err != nil {
		return coordinator.Plan{}, err
	}

	return w.Plan(runners, o.opts.MaxRounds)
}

// PlanAndExecute asks the planner to break instruction into tasks and runs
// them as a Graph collaboration over workers. The planner is told the names
// and descriptions of the workers and must answer with the task list of
// agent.PlannerSchema; an agent with the planner strategy does. The planner
// run is recorded in the history like any other run.
func (o *Orchestrator) PlanAndExecute(ctx context.Context, planner string, workers []string, instruction string) (*coordinator.Result, error) {
	runners, err := o.lookup(workers)
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	b.WriteString(instruction)
	b.WriteString("\n\nAvailable agents:")

	for _, r := range runners {
		fmt.Fprintf(&b, "\n- %s: %s", r.Name(), r.Description())
	}

	planned, err := o.Run(ctx, planner, b.String())
	if planned == nil {
		return nil, err
	}

	if !planned.Succeeded() {
		if planned.Err != nil {
			return nil, fmt.Errorf("%w: planner %s: %w", coordinator.ErrAgentFailed, planner, planned.Err)
		}

		return nil, fmt.Errorf("%w: planner %s ended with status %s", coordinator.ErrAgentFailed, planner, planned.Status)
	}

	tasks, err := coordinator.ParseTasks(planned.Result)
	if err != nil {
		return nil, err
	}

	o.logger.Info("orchestrator.plan.ready", "planner", planner, "run_id", planned.RunID, "tasks", len(tasks))

	return o.collaborate(ctx, coordinator.Plan{
		Pattern: coordinator.PatternGraph,
		Agents:  runners,
		Tasks:   tasks,
	}, instruction)
}

// Close releases resources acquired by NewFromConfig, such as the tool cache.
func (o *Orchestrator) Close() {
	for _, fn := range o.closers {
		fn()
	}

	o.closers = nil
}
