package observe

import (
	"context"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/logging"
)

var _ core.Observer = (*LogObserver)(nil)

// LogObserver writes run lifecycle events to a StructuredLogger. Steps are
// logged at debug level, model and tool calls through the logger's domain
// helpers.
type LogObserver struct {
	logger *logging.StructuredLogger
}

// NewLogObserver creates a LogObserver. A nil logger uses the default JSON
// logger with the "observer" component.
func NewLogObserver(logger *logging.StructuredLogger) *LogObserver {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	return &LogObserver{logger: logger.WithComponent("observer")}
}

func (o *LogObserver) run(info core.RunInfo) *logging.StructuredLogger {
	return o.logger.WithRun(info.RunID, info.Agent)
}

func (o *LogObserver) RunStarted(ctx context.Context, info core.RunInfo) context.Context {
	o.run(info).Debug("observe.run.started", "strategy", info.Strategy, "depth", info.Depth)
	return ctx
}

func (o *LogObserver) StepRecorded(_ context.Context, info core.RunInfo, step core.Step) {
	args := []any{"kind", string(step.Kind())}

	switch s := step.(type) {
	case core.Action:
		args = append(args, "tool", s.Tool)
	case core.Observation:
		args = append(args, "is_error", s.IsError)
	}

	o.run(info).Debug("observe.step", args...)
}

func (o *LogObserver) ModelCalled(_ context.Context, info core.RunInfo, call core.ModelCall) {
	o.run(info).LogModelCall(call.Model, call.Attempt, call.InputTokens+call.OutputTokens, call.Duration, call.Err == nil, call.Err)
}

func (o *LogObserver) ToolInvoked(_ context.Context, info core.RunInfo, call core.ToolCall) {
	var err error
	if call.Observation.IsError {
		err = observationError(call.Observation.Text)
	}

	o.run(info).LogToolCall(call.Tool, call.Duration, err == nil, err)
}

func (o *LogObserver) Corrected(_ context.Context, info core.RunInfo, c core.Correction) {
	o.run(info).Warn("observe.correction", "attempt", c.Attempt, "reason", c.Reason)
}

func (o *LogObserver) RunFinished(_ context.Context, info core.RunInfo, result *core.AgentResult) {
	args := []any{
		"status", string(result.Status),
		"steps", result.Trace.Len(),
	}

	if result.Err != nil {
		o.run(info).Error("observe.run.finished", append(args, "error_kind", string(result.ErrorKind()), "error", result.Err.Error())...)
		return
	}

	o.run(info).Info("observe.run.finished", args...)
}

type observationError string

func (e observationError) Error() string { return string(e) }
