package testutil

import (
	"github.com/hupe1980/reactmesh/core"
)

// TraceBuilder helps construct traces with fluent chaining for tests.
// Example:
//
//	trace := NewTraceBuilder().Thought("t").Action("add", nil).Observation("4", false).Build(core.StatusCompleted)
type TraceBuilder struct {
	steps []core.Step
}

// NewTraceBuilder creates an empty builder.
func NewTraceBuilder() *TraceBuilder { return &TraceBuilder{} }

// Plan appends a Plan step (chainable).
func (b *TraceBuilder) Plan(text string) *TraceBuilder {
	b.steps = append(b.steps, core.Plan{Text: text})
	return b
}

// Thought appends a Thought step (chainable).
func (b *TraceBuilder) Thought(text string) *TraceBuilder {
	b.steps = append(b.steps, core.Thought{Text: text})
	return b
}

// Action appends an Action step (chainable).
func (b *TraceBuilder) Action(tool string, args map[string]any) *TraceBuilder {
	b.steps = append(b.steps, core.Action{Tool: tool, Args: args})
	return b
}

// Observation appends an Observation step (chainable).
func (b *TraceBuilder) Observation(text string, isError bool) *TraceBuilder {
	b.steps = append(b.steps, core.Observation{Text: text, IsError: isError})
	return b
}

// Final appends a FinalAnswer step (chainable).
func (b *TraceBuilder) Final(text string) *TraceBuilder {
	b.steps = append(b.steps, core.FinalAnswer{Text: text})
	return b
}

// Build returns a trace holding the steps. A terminal status freezes it.
func (b *TraceBuilder) Build(status core.Status) *core.Trace {
	t := core.NewTrace()
	if err := t.Append(b.steps...); err != nil {
		panic(err)
	}

	if status.Terminal() {
		if err := t.Finish(status); err != nil {
			panic(err)
		}
	}

	return t
}

// Kinds returns the kinds of steps, handy for compact assertions.
func Kinds(steps []core.Step) []core.StepKind {
	kinds := make([]core.StepKind, len(steps))
	for i, s := range steps {
		kinds[i] = s.Kind()
	}

	return kinds
}
