package core

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Status is the lifecycle state of an execution trace.
type Status string

const (
	StatusRunning       Status = "running"
	StatusCompleted     Status = "completed"
	StatusMaxIterations Status = "max_iterations"
	StatusFailed        Status = "failed"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusMaxIterations || s == StatusFailed
}

// Correction records a corrective re-prompt issued after unusable model output.
type Correction struct {
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason"`
	Raw     string `json:"raw"`
}

// Trace is the ordered record of Steps produced by one run. It is created in the
// running state, appended to by the execution loop and frozen once a terminal
// status is set; afterwards every mutation returns ErrTraceFrozen.
type Trace struct {
	mu          sync.RWMutex
	steps       []Step
	corrections []Correction
	status      Status
}

// NewTrace creates an empty running trace.
func NewTrace() *Trace {
	return &Trace{status: StatusRunning}
}

// Append adds steps to the trace.
func (t *Trace) Append(steps ...Step) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return ErrTraceFrozen
	}

	t.steps = append(t.steps, steps...)

	return nil
}

// AddCorrection records a corrective retry attempt.
func (t *Trace) AddCorrection(c Correction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return ErrTraceFrozen
	}

	t.corrections = append(t.corrections, c)

	return nil
}

// Finish freezes the trace with a terminal status.
func (t *Trace) Finish(status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return ErrTraceFrozen
	}

	t.status = status

	return nil
}

// Status returns the current status.
func (t *Trace) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// Steps returns a copy of the recorded steps.
func (t *Trace) Steps() []Step {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Step, len(t.steps))
	copy(out, t.steps)

	return out
}

// Corrections returns a copy of the recorded corrective retries.
func (t *Trace) Corrections() []Correction {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Correction, len(t.corrections))
	copy(out, t.corrections)

	return out
}

// Len returns the number of steps.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.steps)
}

// Count returns the number of steps of the given kind.
func (t *Trace) Count(kind StepKind) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0

	for _, s := range t.steps {
		if s.Kind() == kind {
			n++
		}
	}

	return n
}

// PendingAction reports whether the last step is an Action without its Observation.
func (t *Trace) PendingAction() (Action, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.steps) == 0 {
		return Action{}, false
	}

	a, ok := t.steps[len(t.steps)-1].(Action)

	return a, ok
}

// MarshalJSON renders the trace as {"status": ..., "steps": [{"kind": ..., ...}]}.
func (t *Trace) MarshalJSON() ([]byte, error) {
	type stepJSON struct {
		Kind StepKind `json:"kind"`
		Step Step     `json:"step"`
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	steps := make([]stepJSON, 0, len(t.steps))
	for _, s := range t.steps {
		steps = append(steps, stepJSON{Kind: s.Kind(), Step: s})
	}

	return json.Marshal(struct {
		Status      Status       `json:"status"`
		Steps       []stepJSON   `json:"steps"`
		Corrections []Correction `json:"corrections,omitempty"`
	}{t.status, steps, t.corrections})
}

// AgentResult is the outcome of one agent run. Status always mirrors the frozen
// trace status; Err carries the fatal error for failed runs.
type AgentResult struct {
	RunID  string `json:"run_id"`
	Agent  string `json:"agent"`
	Trace  *Trace `json:"trace"`
	Result string `json:"result"`
	Status Status `json:"status"`
	Err    error  `json:"-"`
}

// Succeeded reports whether the run completed.
func (r *AgentResult) Succeeded() bool {
	return r != nil && r.Status == StatusCompleted
}

// ErrorKind returns the taxonomy tag of the fatal error, if any.
func (r *AgentResult) ErrorKind() ErrorKind {
	if r == nil {
		return KindNone
	}

	return KindOf(r.Err)
}
