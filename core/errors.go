package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the taxonomy tag reported for a failure.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindParse            ErrorKind = "ParseError"
	KindUnknownTool      ErrorKind = "UnknownToolError"
	KindInvalidArguments ErrorKind = "InvalidArgumentsError"
	KindToolExecution    ErrorKind = "ToolExecutionError"
	KindProvider         ErrorKind = "ProviderError"
	KindCancellation     ErrorKind = "CancellationError"
	KindUnknown          ErrorKind = "Error"
)

var (
	// ErrTimeout is wrapped by ToolExecutionError when a tool exceeds its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrDepthExceeded is returned when nested agent invocations exceed the depth bound.
	ErrDepthExceeded = errors.New("maximum agent nesting depth exceeded")
	// ErrTraceFrozen is returned when appending to a terminated trace.
	ErrTraceFrozen = errors.New("trace is frozen")
	// ErrModelCallLimit is returned by ModelLimiter once the call budget is spent.
	ErrModelCallLimit = errors.New("model call limit exceeded")
)

// ParseError reports model output that could not be turned into a Step.
type ParseError struct {
	Reason string
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}

	return "parse error: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnknownToolError reports an Action naming a tool that is not registered.
type UnknownToolError struct {
	Tool      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("tool %q not found; no tools are available", e.Tool)
	}

	return fmt.Sprintf("tool %q not found; available tools: %s", e.Tool, strings.Join(e.Available, ", "))
}

// InvalidArgumentsError reports Action arguments that fail schema validation or coercion.
type InvalidArgumentsError struct {
	Tool   string
	Reason string
	Err    error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, e.Reason)
}

func (e *InvalidArgumentsError) Unwrap() error { return e.Err }

// ToolExecutionError reports a tool callable that returned an error, panicked or timed out.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// Timeout reports whether the tool exceeded its deadline.
func (e *ToolExecutionError) Timeout() bool { return errors.Is(e.Err, ErrTimeout) }

// ProviderError reports a model-generation failure after retries were exhausted.
type ProviderError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("model %q failed after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CancellationError reports a caller-initiated abort (context cancellation or deadline).
type CancellationError struct {
	Err error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("run cancelled: %v", e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// NewCancellationError builds a CancellationError from a done context, preferring
// the cancellation cause when one was recorded.
func NewCancellationError(ctx context.Context) *CancellationError {
	if cause := context.Cause(ctx); cause != nil {
		return &CancellationError{Err: cause}
	}

	return &CancellationError{Err: ctx.Err()}
}

// KindOf returns the taxonomy tag of the outermost typed error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var (
		parseErr    *ParseError
		unknownErr  *UnknownToolError
		argsErr     *InvalidArgumentsError
		execErr     *ToolExecutionError
		providerErr *ProviderError
		cancelErr   *CancellationError
	)

	switch {
	case errors.As(err, &cancelErr):
		return KindCancellation
	case errors.As(err, &providerErr):
		return KindProvider
	case errors.As(err, &parseErr):
		return KindParse
	case errors.As(err, &unknownErr):
		return KindUnknownTool
	case errors.As(err, &argsErr):
		return KindInvalidArguments
	case errors.As(err, &execErr):
		return KindToolExecution
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancellation
	default:
		return KindUnknown
	}
}

// FormatError renders err the way it is shown to a model inside an Observation.
func FormatError(err error) string {
	return fmt.Sprintf("Error (%s): %v", KindOf(err), err)
}
