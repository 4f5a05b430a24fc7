// Package tool implements the tool subsystem: a uniform capability interface,
// adapters for plain, typed and asynchronous Go functions, a read-only Registry
// and the Invoker that validates and executes parsed Actions.
package tool

import (
	"context"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are trusted callables: the Invoker validates arguments and bounds execution
// time, but does not sandbox what the tool does. Implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define a JSON schema for their parameters
//   - Honor ctx cancellation so timeouts release resources promptly
//   - Be safe for concurrent use when shared between agents
type Tool interface {
	// Name returns the unique identifier for this tool within a registry.
	Name() string

	// Description returns a human-readable description shown to the model.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments. A nil
	// schema accepts any arguments.
	Parameters() map[string]any

	// Call executes the tool. args have already been coerced and validated.
	// The context carries the caller's deadline and, when invoked by an agent,
	// the calling run (core.RunInfoFrom) and nesting depth (core.DepthFrom).
	Call(ctx context.Context, args map[string]any) (any, error)
}
