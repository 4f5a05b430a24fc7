package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/reactmesh/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a Tool.
//
// A FunctionTool has no internal mutable state after construction and is safe for
// concurrent use by multiple goroutines.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	add := tool.NewFunctionTool(
//	  "add",
//	  "Add two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewTypedTool derives the parameter schema from T and decodes validated
// arguments into a T before calling fn. Field descriptions come from the
// `jsonschema` struct tag; fields without omitempty are required.
//
//	type sumArgs struct {
//	  A float64 `json:"a" jsonschema:"first addend"`
//	  B float64 `json:"b" jsonschema:"second addend"`
//	}
//
//	add, err := tool.NewTypedTool("add", "Add two numbers",
//	  func(ctx context.Context, in sumArgs) (any, error) { return in.A + in.B, nil })
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) (*FunctionTool, error) {
	schema, _, err := util.SchemaFor[T]()
	if err != nil {
		return nil, fmt.Errorf("infer schema for tool %q: %w", name, err)
	}

	return NewFunctionTool(name, description, schema, func(ctx context.Context, args map[string]any) (any, error) {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}

		var in T
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}

		return fn(ctx, in)
	}), nil
}

// Result is the outcome delivered by an asynchronous tool.
type Result struct {
	Value any
	Err   error
}

// AsyncFunc starts work and delivers exactly one Result on the returned channel.
type AsyncFunc func(ctx context.Context, args map[string]any) <-chan Result

var errNoResult = errors.New("async tool closed its result channel without a result")

// NewAsyncTool adapts an asynchronous function to the synchronous Tool contract.
// The call waits for the Result or for ctx to be done, whichever comes first.
func NewAsyncTool(name, description string, parameters map[string]any, fn AsyncFunc) *FunctionTool {
	return NewFunctionTool(name, description, parameters, func(ctx context.Context, args map[string]any) (any, error) {
		select {
		case res, ok := <-fn(ctx, args):
			if !ok {
				return nil, errNoResult
			}

			return res.Value, res.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// Name returns the unique tool name.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call invokes the wrapped function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}
