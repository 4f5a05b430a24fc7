package core

import (
	"encoding/json"
	"fmt"
)

// StepKind discriminates the Step variants.
type StepKind string

const (
	StepPlan        StepKind = "plan"
	StepThought     StepKind = "thought"
	StepAction      StepKind = "action"
	StepObservation StepKind = "observation"
	StepFinalAnswer StepKind = "final_answer"
)

// Step is a closed tagged variant over the units of an execution trace. The set of
// implementations is fixed to the types in this file (enforced by the unexported
// marker method), so a type switch over Step is exhaustive.
type Step interface {
	Kind() StepKind
	String() string
	isStep()
}

// Plan is an up-front outline of how the agent intends to solve the task.
type Plan struct {
	Text string `json:"text"`
}

// Thought is free-form reasoning produced by the model.
type Thought struct {
	Text string `json:"text"`
}

// Action is a request to invoke a tool with arguments.
type Action struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
	// Raw holds the JSON span the action was decoded from.
	Raw string `json:"-"`
}

// Observation is the result of executing an Action. Observations are always
// produced by the Tool Invoker, never taken from model output.
type Observation struct {
	Tool    string `json:"tool,omitempty"`
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
	// Err holds the typed error behind an error-flagged observation.
	Err error `json:"-"`
}

// FinalAnswer terminates a run with the answer text.
type FinalAnswer struct {
	Text string `json:"text"`
}

func (Plan) Kind() StepKind        { return StepPlan }
func (Thought) Kind() StepKind     { return StepThought }
func (Action) Kind() StepKind      { return StepAction }
func (Observation) Kind() StepKind { return StepObservation }
func (FinalAnswer) Kind() StepKind { return StepFinalAnswer }

func (Plan) isStep()        {}
func (Thought) isStep()     {}
func (Action) isStep()      {}
func (Observation) isStep() {}
func (FinalAnswer) isStep() {}

func (p Plan) String() string    { return "Plan: " + p.Text }
func (t Thought) String() string { return "Thought: " + t.Text }

func (a Action) String() string {
	payload := map[string]any{"tool": a.Tool}
	if len(a.Args) > 0 {
		payload["args"] = a.Args
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("Action: {\"tool\": %q}", a.Tool)
	}

	return "Action: " + string(b)
}

func (o Observation) String() string { return "Observation: " + o.Text }
func (f FinalAnswer) String() string { return "Final Answer: " + f.Text }
