package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/reactmesh/tool"
)

// NumberPair is the parameter schema {a: number, b: number}, both required.
var NumberPair = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"a": map[string]any{"type": "number", "description": "first operand"},
		"b": map[string]any{"type": "number", "description": "second operand"},
	},
	"required": []string{"a", "b"},
}

// AddTool returns an "add" tool summing a and b.
func AddTool() *tool.FunctionTool {
	return tool.NewFunctionTool("add", "Add two numbers", NumberPair, func(_ context.Context, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})
}

// EchoTool returns a tool named name that echoes its "text" argument.
func EchoTool(name string) *tool.FunctionTool {
	return tool.NewFunctionTool(name, "Echo the input text", map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
	}, func(_ context.Context, args map[string]any) (any, error) {
		text, _ := args["text"].(string)
		return text, nil
	})
}

// FailingTool returns a tool that always fails with err.
func FailingTool(name string, err error) *tool.FunctionTool {
	return tool.NewFunctionTool(name, "Always fails", nil, func(context.Context, map[string]any) (any, error) {
		return nil, err
	})
}

// BlockingTool returns a tool that blocks until ctx is done or d elapsed.
func BlockingTool(name string, d time.Duration) *tool.FunctionTool {
	return tool.NewFunctionTool(name, "Blocks", nil, func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
			return "done", nil
		}
	})
}

// Recorder wraps a tool and records the arguments of every call.
type Recorder struct {
	tool.Tool

	mu    sync.Mutex
	calls []map[string]any
}

// Record wraps t.
func Record(t tool.Tool) *Recorder { return &Recorder{Tool: t} }

// Call implements tool.Tool.
func (r *Recorder) Call(ctx context.Context, args map[string]any) (any, error) {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()

	return r.Tool.Call(ctx, args)
}

// Calls returns the recorded arguments.
func (r *Recorder) Calls() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]map[string]any, len(r.calls))
	copy(out, r.calls)

	return out
}
