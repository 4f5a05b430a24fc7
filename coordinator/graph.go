package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/reactmesh/agent"
	"github.com/hupe1980/reactmesh/core"
)

// ErrTaskFailed wraps the failure of a Graph task that exhausted its retries.
var ErrTaskFailed = errors.New("task failed")

// Task is one node of a Graph workflow. The JSON shape matches the answer of
// an agent running the planner strategy.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	// Agent names the runner in Plan.Agents; empty uses the first one.
	Agent string `json:"agent,omitempty"`
	// DependsOn lists the tasks whose results this task receives.
	DependsOn []string `json:"dependencies,omitempty"`
	// MaxRetries re-runs a failed task before it counts as failed.
	MaxRetries int `json:"max_retries,omitempty"`
}

// TaskStatus is the final state of a Graph task.
type TaskStatus string

const (
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	// TaskSkipped marks a task that never ran because a dependency failed or
	// the workflow was cancelled.
	TaskSkipped TaskStatus = "skipped"
)

// TaskResult is the outcome of one Graph task.
type TaskResult struct {
	ID       string     `json:"id"`
	Agent    string     `json:"agent"`
	Status   TaskStatus `json:"status"`
	Attempts int        `json:"attempts"`
	Result   string     `json:"result,omitempty"`
	Err      error      `json:"-"`
}

// ParseTasks decodes a planner answer, {"tasks": [...]}, into Graph tasks.
func ParseTasks(answer string) ([]Task, error) {
	var doc struct {
		Tasks []Task `json:"tasks"`
	}

	if err := json.Unmarshal([]byte(answer), &doc); err != nil {
		return nil, fmt.Errorf("%w: decode tasks: %w", ErrInvalidPlan, err)
	}

	if len(doc.Tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks", ErrInvalidPlan)
	}

	return doc.Tasks, nil
}

func (p Plan) validateTasks() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("%w: graph without tasks", ErrInvalidPlan)
	}

	ids := make(map[string]struct{}, len(p.Tasks))

	for _, t := range p.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("%w: task without id", ErrInvalidPlan)
		}

		if _, dup := ids[t.ID]; dup {
			return fmt.Errorf("%w: duplicate task %q", ErrInvalidPlan, t.ID)
		}

		ids[t.ID] = struct{}{}

		if t.MaxRetries < 0 {
			return fmt.Errorf("%w: task %q has negative max retries", ErrInvalidPlan, t.ID)
		}

		if t.Agent != "" && !slices.ContainsFunc(p.Agents, func(r Runner) bool { return r.Name() == t.Agent }) {
			return fmt.Errorf("%w: task %q names unknown agent %q", ErrInvalidPlan, t.ID, t.Agent)
		}
	}

	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := ids[dep]; !ok {
				return fmt.Errorf("%w: task %q depends on unknown task %q", ErrInvalidPlan, t.ID, dep)
			}
		}
	}

	if cycle := findCycle(p.Tasks); cycle != "" {
		return fmt.Errorf("%w: tasks form a cycle through %q", ErrInvalidPlan, cycle)
	}

	return nil
}

// findCycle returns a task on a dependency cycle, or "" for an acyclic graph.
func findCycle(tasks []Task) string {
	const (
		unseen = iota
		visiting
		done
	)

	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.DependsOn
	}

	state := make(map[string]int, len(tasks))

	var visit func(id string) string

	visit = func(id string) string {
		switch state[id] {
		case visiting:
			return id
		case done:
			return ""
		}

		state[id] = visiting

		for _, dep := range deps[id] {
			if c := visit(dep); c != "" {
				return c
			}
		}

		state[id] = done

		return ""
	}

	for _, t := range tasks {
		if c := visit(t.ID); c != "" {
			return c
		}
	}

	return ""
}

// taskDone is the report of one finished task goroutine.
type taskDone struct {
	index    int
	result   *core.AgentResult
	attempts int
}

// graph runs tasks in dependency order. A task starts once every dependency
// completed and receives their results as context messages; up to FanOut
// tasks run at the same time. A task that still fails after its retries
// skips everything that depends on it, while independent branches continue.
// The workflow completes when every task completed.
func (c *Coordinator) graph(ctx context.Context, plan Plan, instruction string, res *Result) {
	tasks := plan.Tasks

	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		index[t.ID] = i
	}

	waiting := make([]int, len(tasks))
	dependents := make([][]int, len(tasks))

	var ready []int

	for i, t := range tasks {
		waiting[i] = len(t.DependsOn)

		for _, dep := range t.DependsOn {
			dependents[index[dep]] = append(dependents[index[dep]], i)
		}

		if waiting[i] == 0 {
			ready = append(ready, i)
		}
	}

	outcomes := make([]*TaskResult, len(tasks))
	finals := make([]*core.AgentResult, len(tasks))
	done := make(chan taskDone)
	limit := c.fanOut(len(tasks))
	running := 0

	for len(ready) > 0 || running > 0 {
		for len(ready) > 0 && running < limit && ctx.Err() == nil {
			i := ready[0]
			ready = ready[1:]
			running++

			runner := c.taskRunner(plan, tasks[i])
			in := taskInput(tasks, i, instruction, outcomes, index)

			go func() {
				r, attempts := c.runTask(ctx, res.ID, runner, tasks[i], in)
				done <- taskDone{index: i, result: r, attempts: attempts}
			}()
		}

		if running == 0 {
			break
		}

		d := <-done
		running--

		t := tasks[d.index]
		finals[d.index] = d.result

		out := &TaskResult{
			ID:       t.ID,
			Agent:    d.result.Agent,
			Attempts: d.attempts,
			Result:   d.result.Result,
		}

		if d.result.Succeeded() {
			out.Status = TaskCompleted

			for _, j := range dependents[d.index] {
				waiting[j]--
				if waiting[j] == 0 {
					ready = append(ready, j)
				}
			}
		} else {
			out.Status = TaskFailed
			out.Err = fmt.Errorf("%w: %s: %w", ErrTaskFailed, t.ID, agentError(d.result))
		}

		outcomes[d.index] = out
	}

	var failure error

	for i, t := range tasks {
		if outcomes[i] == nil {
			outcomes[i] = &TaskResult{ID: t.ID, Agent: c.taskRunner(plan, t).Name(), Status: TaskSkipped}
		}

		if finals[i] != nil {
			res.Results = append(res.Results, finals[i])
		}

		if outcomes[i].Status == TaskFailed && failure == nil {
			failure = outcomes[i].Err
		}

		res.Tasks = append(res.Tasks, *outcomes[i])
	}

	switch {
	case failure != nil:
		res.Status = core.StatusFailed
		res.Err = failure
	case ctx.Err() != nil:
		res.Status = core.StatusFailed
		res.Err = core.NewCancellationError(ctx)
	default:
		res.Status = core.StatusCompleted
		res.Final = sinkAnswer(tasks, dependents, outcomes)
	}
}

func (c *Coordinator) taskRunner(plan Plan, t Task) Runner {
	for _, r := range plan.Agents {
		if r.Name() == t.Agent {
			return r
		}
	}

	return plan.Agents[0]
}

// runTask runs t until it completes, its retries are spent or ctx ends.
func (c *Coordinator) runTask(ctx context.Context, workflowID string, runner Runner, t Task, in agent.Input) (*core.AgentResult, int) {
	var r *core.AgentResult

	attempts := 0

	for attempts <= t.MaxRetries {
		attempts++

		c.logger.Debug("coordinator.task.start",
			"workflow_id", workflowID,
			"task", t.ID,
			"agent", runner.Name(),
			"attempt", attempts,
		)

		r = runner.Run(ctx, in)
		if r.Succeeded() || ctx.Err() != nil {
			break
		}

		if attempts <= t.MaxRetries {
			c.logger.Warn("coordinator.task.retry",
				"workflow_id", workflowID,
				"task", t.ID,
				"attempt", attempts,
				"status", string(r.Status),
			)
		}
	}

	return r, attempts
}

// taskInput builds the input of task i: the task description as instruction,
// preceded by the overall goal and the results of its dependencies.
func taskInput(tasks []Task, i int, instruction string, outcomes []*TaskResult, index map[string]int) agent.Input {
	t := tasks[i]

	var msgs []core.Message

	if strings.TrimSpace(instruction) != "" {
		msgs = append(msgs, core.NewUserMessage("Overall goal:\n"+instruction))
	}

	for _, dep := range t.DependsOn {
		msgs = append(msgs, core.NewUserMessage(fmt.Sprintf("Result from task %s:\n%s", dep, outcomes[index[dep]].Result)))
	}

	return agent.Input{Instruction: t.Description, Context: msgs}
}

// sinkAnswer is the result of the only task nothing depends on, or the
// labelled results of all such tasks in plan order.
func sinkAnswer(tasks []Task, dependents [][]int, outcomes []*TaskResult) string {
	var sinks []int

	for i := range tasks {
		if len(dependents[i]) == 0 {
			sinks = append(sinks, i)
		}
	}

	if len(sinks) == 1 {
		return outcomes[sinks[0]].Result
	}

	parts := make([]string, 0, len(sinks))
	for _, i := range sinks {
		parts = append(parts, fmt.Sprintf("%s:\n%s", tasks[i].ID, outcomes[i].Result))
	}

	return strings.Join(parts, "\n\n")
}
