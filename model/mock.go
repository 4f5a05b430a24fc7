package model

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by MockModel once every scripted turn was used.
var ErrScriptExhausted = errors.New("mock model: no scripted response left")

type turn struct {
	text string
	err  error
}

// MockModel is a lightweight in-memory Model useful for tests & examples. It
// replays scripted responses (or errors) in order and records every request.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	script   []turn
	requests []Request
}

// NewMockModel constructs a MockModel that answers with responses in order.
func NewMockModel(name string, responses ...string) *MockModel {
	m := &MockModel{info: Info{Name: name, Provider: "mock"}}

	for _, r := range responses {
		m.AddResponse(r)
	}

	return m
}

// AddResponse appends a scripted completion.
func (m *MockModel) AddResponse(text string) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, turn{text: text})

	return m
}

// AddError appends a scripted failure.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, turn{err: err})

	return m
}

// Requests returns a copy of every request received.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// Calls returns the number of Generate calls received.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// Generate implements Model. Streaming requests receive the text as a single
// partial chunk before the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 2)
	errCh := make(chan error, 1)

	defer close(respCh)
	defer close(errCh)

	if err := ctx.Err(); err != nil {
		errCh <- err
		return respCh, errCh
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)

	var next turn
	if len(m.script) == 0 {
		next = turn{err: ErrScriptExhausted}
	} else {
		next, m.script = m.script[0], m.script[1:]
	}
	m.mu.Unlock()

	if next.err != nil {
		errCh <- next.err
		return respCh, errCh
	}

	if req.Config.Stream {
		respCh <- Response{Text: next.text, Partial: true}
	}

	respCh <- Response{Text: next.text, FinishReason: "stop"}

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// Func adapts a plain function to the Model interface.
type Func struct {
	info Info
	fn   func(ctx context.Context, req Request) (string, error)
}

// NewFunc wraps fn as a Model named name.
func NewFunc(name string, fn func(ctx context.Context, req Request) (string, error)) *Func {
	return &Func{info: Info{Name: name, Provider: "func"}, fn: fn}
}

// Generate implements Model.
func (f *Func) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	defer close(respCh)
	defer close(errCh)

	text, err := f.fn(ctx, req)
	if err != nil {
		errCh <- err
		return respCh, errCh
	}

	respCh <- Response{Text: text, FinishReason: "stop"}

	return respCh, errCh
}

// Info implements Model.
func (f *Func) Info() Info { return f.info }
