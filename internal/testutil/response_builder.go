package testutil

import (
	"encoding/json"
	"strings"
)

// ResponseBuilder provides a fluent helper for scripting model output in the
// label format the parser understands.
// Example:
//
//	text := NewResponseBuilder().Thought("add").Action("add", map[string]any{"a": 2, "b": 2}).String()
//
// Chain only the parts you need.
type ResponseBuilder struct {
	marker string
	lines  []string
}

// NewResponseBuilder creates a builder using the default "FINAL ANSWER:" marker.
func NewResponseBuilder() *ResponseBuilder { return &ResponseBuilder{marker: "FINAL ANSWER:"} }

// Marker overrides the termination marker (chainable).
func (b *ResponseBuilder) Marker(m string) *ResponseBuilder { b.marker = m; return b }

// Plan appends a Plan section (chainable).
func (b *ResponseBuilder) Plan(text string) *ResponseBuilder { return b.line("Plan: " + text) }

// Thought appends a Thought section (chainable).
func (b *ResponseBuilder) Thought(text string) *ResponseBuilder { return b.line("Thought: " + text) }

// Observation appends an Observation section as a model would imagine it (chainable).
func (b *ResponseBuilder) Observation(text string) *ResponseBuilder {
	return b.line("Observation: " + text)
}

// Action appends an Action with a JSON payload (chainable). A nil args map omits "args".
func (b *ResponseBuilder) Action(tool string, args map[string]any) *ResponseBuilder {
	payload := map[string]any{"tool": tool}
	if args != nil {
		payload["args"] = args
	}

	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}

	return b.line("Action: " + string(data))
}

// Final appends the termination marker followed by answer (chainable).
func (b *ResponseBuilder) Final(answer string) *ResponseBuilder {
	return b.line(b.marker + " " + answer)
}

// Raw appends text verbatim (chainable).
func (b *ResponseBuilder) Raw(text string) *ResponseBuilder { return b.line(text) }

// String returns the scripted response.
func (b *ResponseBuilder) String() string { return strings.Join(b.lines, "\n") }

func (b *ResponseBuilder) line(s string) *ResponseBuilder {
	b.lines = append(b.lines, s)
	return b
}
