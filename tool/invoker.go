package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/internal/util"
	"github.com/hupe1980/reactmesh/logging"
)

// DefaultTimeout bounds a single tool call unless configured otherwise.
const DefaultTimeout = 30 * time.Second

// InvokerOptions configures an Invoker.
type InvokerOptions struct {
	// Timeout bounds each call. Zero or negative disables the bound.
	Timeout time.Duration
	Logger  logging.Logger
}

// Invoker validates Actions against a Registry and executes them. Every failure
// (unknown tool, invalid arguments, error, panic, timeout) becomes an
// error-flagged Observation; Invoke never returns an error and never panics.
type Invoker struct {
	registry *Registry
	timeout  time.Duration
	logger   logging.Logger
}

// NewInvoker creates an Invoker over registry.
func NewInvoker(registry *Registry, optFns ...func(o *InvokerOptions)) *Invoker {
	opts := InvokerOptions{Timeout: DefaultTimeout}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Invoker{registry: registry, timeout: opts.Timeout, logger: opts.Logger}
}

// Registry returns the registry the invoker dispatches to.
func (inv *Invoker) Registry() *Registry { return inv.registry }

// Invoke executes action and returns its Observation.
func (inv *Invoker) Invoke(ctx context.Context, action core.Action) core.Observation {
	e, ok := inv.registry.lookup(action.Tool)
	if !ok {
		return inv.fail(action.Tool, &core.UnknownToolError{Tool: action.Tool, Available: inv.registry.Names()})
	}

	name := e.tool.Name()
	schema := e.tool.Parameters()
	args := util.CoerceArguments(action.Args, schema)

	if missing := util.MissingRequired(args, schema); len(missing) > 0 {
		return inv.fail(name, &core.InvalidArgumentsError{
			Tool:   name,
			Reason: "missing required parameter(s): " + strings.Join(missing, ", "),
		})
	}

	if err := util.ValidateArguments(e.schema, args); err != nil {
		return inv.fail(name, &core.InvalidArgumentsError{Tool: name, Reason: err.Error(), Err: err})
	}

	start := time.Now()
	value, err := inv.execute(ctx, e.tool, args)

	inv.logger.Info(
		"tool.call.executed",
		"tool", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		return inv.fail(name, &core.ToolExecutionError{Tool: name, Err: err})
	}

	return core.Observation{Tool: name, Text: FormatResult(value)}
}

func (inv *Invoker) fail(name string, err error) core.Observation {
	inv.logger.Warn("tool.call.failed", "tool", name, "kind", string(core.KindOf(err)), "error", err.Error())

	return core.Observation{Tool: name, Text: core.FormatError(err), IsError: true, Err: err}
}

// execute runs the tool on its own goroutine so a callable that ignores its
// context cannot hold the caller past the deadline. Panics are recovered.
func (inv *Invoker) execute(ctx context.Context, t Tool, args map[string]any) (any, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if inv.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
	}
	defer cancel()

	done := make(chan Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				inv.logger.Error("tool.call.panic", "tool", t.Name(), "recover", r)
				done <- Result{Err: panicError(r)}
			}
		}()

		value, err := t.Call(callCtx, args)
		done <- Result{Value: value, Err: err}
	}()

	select {
	case res := <-done:
		switch {
		case res.Err == nil:
			return res.Value, nil
		case ctx.Err() != nil:
			return nil, core.NewCancellationError(ctx)
		case callCtx.Err() != nil && errors.Is(res.Err, context.DeadlineExceeded):
			return nil, inv.timeoutError()
		default:
			return nil, res.Err
		}
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, core.NewCancellationError(ctx)
		}

		return nil, inv.timeoutError()
	}
}

func (inv *Invoker) timeoutError() error {
	return fmt.Errorf("%w after %s", core.ErrTimeout, inv.timeout)
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic: %v", p.val) }

// FormatResult renders a tool result as Observation text. Strings are used
// verbatim; other values are JSON encoded (so 4.0 renders as "4").
func FormatResult(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}

	return string(b)
}
