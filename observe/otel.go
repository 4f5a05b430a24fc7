package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/reactmesh/core"
)

const instrumentationName = "github.com/hupe1980/reactmesh"

var _ core.Observer = (*OTel)(nil)

// OTelOptions configures the OpenTelemetry observer.
type OTelOptions struct {
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider
}

// OTel records every run as a span with child spans for model and tool calls,
// and maintains run, call and correction metrics.
type OTel struct {
	tracer trace.Tracer

	runs        metric.Int64Counter
	modelCalls  metric.Int64Counter
	toolCalls   metric.Int64Counter
	corrections metric.Int64Counter
	tokens      metric.Int64Counter
	runDuration metric.Float64Histogram
	toolLatency metric.Float64Histogram

	mu     sync.Mutex
	active map[string]activeRun
}

type activeRun struct {
	span    trace.Span
	started time.Time
}

// NewOTel creates the observer and its metric instruments.
func NewOTel(optFns ...func(o *OTelOptions)) (*OTel, error) {
	opts := OTelOptions{}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}

	meter := opts.MeterProvider.Meter(instrumentationName)
	o := &OTel{
		tracer: opts.TracerProvider.Tracer(instrumentationName),
		active: make(map[string]activeRun),
	}

	var err error

	o.runs, err = meter.Int64Counter("reactmesh.agent.runs",
		metric.WithDescription("Number of finished agent runs"))
	if err != nil {
		return nil, err
	}

	o.modelCalls, err = meter.Int64Counter("reactmesh.model.calls",
		metric.WithDescription("Number of model generation attempts"))
	if err != nil {
		return nil, err
	}

	o.toolCalls, err = meter.Int64Counter("reactmesh.tool.calls",
		metric.WithDescription("Number of tool invocations"))
	if err != nil {
		return nil, err
	}

	o.corrections, err = meter.Int64Counter("reactmesh.agent.corrections",
		metric.WithDescription("Number of corrective re-prompts"))
	if err != nil {
		return nil, err
	}

	o.tokens, err = meter.Int64Counter("reactmesh.model.tokens",
		metric.WithDescription("Tokens consumed by model calls"))
	if err != nil {
		return nil, err
	}

	o.runDuration, err = meter.Float64Histogram("reactmesh.agent.run.duration_seconds",
		metric.WithDescription("Agent run duration in seconds"))
	if err != nil {
		return nil, err
	}

	o.toolLatency, err = meter.Float64Histogram("reactmesh.tool.duration_seconds",
		metric.WithDescription("Tool invocation duration in seconds"))
	if err != nil {
		return nil, err
	}

	return o, nil
}

func runAttrs(info core.RunInfo) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("agent.name", info.Agent),
		attribute.String("agent.strategy", info.Strategy),
	}
}

// parent returns ctx carrying the span of the run, so spans nest correctly
// even when the notifying context is not the one returned by RunStarted.
func (o *OTel) parent(ctx context.Context, info core.RunInfo) context.Context {
	o.mu.Lock()
	a, ok := o.active[info.RunID]
	o.mu.Unlock()

	if !ok {
		return ctx
	}

	return trace.ContextWithSpan(ctx, a.span)
}

func (o *OTel) RunStarted(ctx context.Context, info core.RunInfo) context.Context {
	ctx, span := o.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(append(runAttrs(info),
			attribute.String("run.id", info.RunID),
			attribute.Int("run.depth", info.Depth),
		)...),
	)

	o.mu.Lock()
	o.active[info.RunID] = activeRun{span: span, started: time.Now()}
	o.mu.Unlock()

	return ctx
}

func (o *OTel) StepRecorded(ctx context.Context, info core.RunInfo, step core.Step) {
	attrs := []attribute.KeyValue{attribute.String("step.kind", string(step.Kind()))}

	switch s := step.(type) {
	case core.Action:
		attrs = append(attrs, attribute.String("tool.name", s.Tool))
	case core.Observation:
		attrs = append(attrs, attribute.Bool("observation.error", s.IsError))
	}

	trace.SpanFromContext(o.parent(ctx, info)).AddEvent("step", trace.WithAttributes(attrs...))
}

func (o *OTel) ModelCalled(ctx context.Context, info core.RunInfo, call core.ModelCall) {
	_, span := o.tracer.Start(o.parent(ctx, info), "model.generate",
		trace.WithTimestamp(call.Started),
		trace.WithAttributes(
			attribute.String("model.name", call.Model),
			attribute.Int("model.attempt", call.Attempt),
			attribute.Int64("model.input_tokens", call.InputTokens),
			attribute.Int64("model.output_tokens", call.OutputTokens),
		),
	)

	if call.Err != nil {
		span.RecordError(call.Err)
		span.SetStatus(codes.Error, call.Err.Error())
	}

	span.End(trace.WithTimestamp(call.Started.Add(call.Duration)))

	attrs := metric.WithAttributes(
		attribute.String("model.name", call.Model),
		attribute.Bool("error", call.Err != nil),
	)
	o.modelCalls.Add(ctx, 1, attrs)

	if n := call.InputTokens + call.OutputTokens; n > 0 {
		o.tokens.Add(ctx, n, metric.WithAttributes(attribute.String("model.name", call.Model)))
	}
}

func (o *OTel) ToolInvoked(ctx context.Context, info core.RunInfo, call core.ToolCall) {
	_, span := o.tracer.Start(o.parent(ctx, info), "tool.call",
		trace.WithTimestamp(call.Started),
		trace.WithAttributes(attribute.String("tool.name", call.Tool)),
	)

	if call.Observation.IsError {
		span.SetAttributes(attribute.String("error.kind", string(core.KindOf(call.Observation.Err))))
		span.SetStatus(codes.Error, call.Observation.Text)
	}

	span.End(trace.WithTimestamp(call.Started.Add(call.Duration)))

	attrs := metric.WithAttributes(
		attribute.String("tool.name", call.Tool),
		attribute.Bool("error", call.Observation.IsError),
	)
	o.toolCalls.Add(ctx, 1, attrs)
	o.toolLatency.Record(ctx, call.Duration.Seconds(), attrs)
}

func (o *OTel) Corrected(ctx context.Context, info core.RunInfo, c core.Correction) {
	trace.SpanFromContext(o.parent(ctx, info)).AddEvent("correction", trace.WithAttributes(
		attribute.Int("correction.attempt", c.Attempt),
		attribute.String("correction.reason", c.Reason),
	))

	o.corrections.Add(ctx, 1, metric.WithAttributes(attribute.String("agent.name", info.Agent)))
}

func (o *OTel) RunFinished(ctx context.Context, info core.RunInfo, result *core.AgentResult) {
	o.mu.Lock()
	a, ok := o.active[info.RunID]
	delete(o.active, info.RunID)
	o.mu.Unlock()

	attrs := append(runAttrs(info), attribute.String("run.status", string(result.Status)))
	o.runs.Add(ctx, 1, metric.WithAttributes(attrs...))

	if !ok {
		return
	}

	o.runDuration.Record(ctx, time.Since(a.started).Seconds(), metric.WithAttributes(attrs...))

	a.span.SetAttributes(
		attribute.String("run.status", string(result.Status)),
		attribute.Int("run.steps", result.Trace.Len()),
	)

	if result.Err != nil {
		a.span.RecordError(result.Err)
		a.span.SetStatus(codes.Error, string(result.ErrorKind()))
	} else {
		a.span.SetStatus(codes.Ok, "")
	}

	a.span.End()
}
