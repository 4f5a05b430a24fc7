package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/reactmesh/core"
)

// Result is the outcome of one workflow run.
type Result struct {
	ID      string              `json:"id"`
	Pattern Pattern             `json:"pattern"`
	Status  core.Status         `json:"status"`
	Results []*core.AgentResult `json:"results"`
	// Final is the workflow answer: the last agent's result (Sequential), the
	// root's result (Hierarchical), the answering participant's (Joint) or the
	// result of the tasks nothing depends on (Graph). Independent and
	// Broadcast leave it empty; see Completed.
	Final string `json:"final,omitempty"`
	// Transcript is the shared conversation of a Joint run.
	Transcript []core.Message `json:"transcript,omitempty"`
	// Tasks holds one entry per task of a Graph run, in plan order.
	Tasks    []TaskResult  `json:"tasks,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Succeeded reports whether the workflow completed.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == core.StatusCompleted
}

// Completed returns the completed agent results in plan order.
func (r *Result) Completed() []*core.AgentResult {
	var out []*core.AgentResult

	for _, res := range r.Results {
		if res.Succeeded() {
			out = append(out, res)
		}
	}

	return out
}

// ByAgent returns the first result of the named agent.
func (r *Result) ByAgent(name string) (*core.AgentResult, bool) {
	for _, res := range r.Results {
		if res != nil && res.Agent == name {
			return res, true
		}
	}

	return nil, false
}

// Task returns the outcome of the Graph task with the given id.
func (r *Result) Task(id string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.ID == id {
			return t, true
		}
	}

	return TaskResult{}, false
}

// notRun is the result of an agent that never started.
func notRun(name string, err error) *core.AgentResult {
	trace := core.NewTrace()
	_ = trace.Finish(core.StatusFailed)

	return &core.AgentResult{
		RunID:  uuid.NewString(),
		Agent:  name,
		Trace:  trace,
		Status: core.StatusFailed,
		Err:    err,
	}
}
