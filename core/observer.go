package core

import (
	"context"
	"time"
)

// RunInfo identifies one agent run for observers and tools.
type RunInfo struct {
	RunID    string
	Agent    string
	Strategy string
	Depth    int
}

// ModelCall describes one model-generation attempt.
type ModelCall struct {
	Model        string
	Attempt      int
	Started      time.Time
	Duration     time.Duration
	InputTokens  int64
	OutputTokens int64
	Err          error
}

// ToolCall describes one completed tool invocation.
type ToolCall struct {
	Tool        string
	Args        map[string]any
	Started     time.Time
	Duration    time.Duration
	Observation Observation
}

// Observer receives lifecycle notifications from execution loops and the
// coordinator. Observers are passed explicitly at construction; there is no
// process-wide hook. Implementations must be safe for concurrent use because
// independent and broadcast runs notify the same observer from several goroutines.
type Observer interface {
	// RunStarted is called before the first model call. The returned context is
	// used for the rest of the run, which lets tracing observers attach spans.
	RunStarted(ctx context.Context, info RunInfo) context.Context
	StepRecorded(ctx context.Context, info RunInfo, step Step)
	ModelCalled(ctx context.Context, info RunInfo, call ModelCall)
	ToolInvoked(ctx context.Context, info RunInfo, call ToolCall)
	Corrected(ctx context.Context, info RunInfo, correction Correction)
	RunFinished(ctx context.Context, info RunInfo, result *AgentResult)
}

// NoOpObserver ignores every notification. Embed it to implement a subset of Observer.
type NoOpObserver struct{}

func (NoOpObserver) RunStarted(ctx context.Context, _ RunInfo) context.Context { return ctx }
func (NoOpObserver) StepRecorded(context.Context, RunInfo, Step)               {}
func (NoOpObserver) ModelCalled(context.Context, RunInfo, ModelCall)           {}
func (NoOpObserver) ToolInvoked(context.Context, RunInfo, ToolCall)            {}
func (NoOpObserver) Corrected(context.Context, RunInfo, Correction)            {}
func (NoOpObserver) RunFinished(context.Context, RunInfo, *AgentResult)        {}

type multiObserver []Observer

// Observers fans notifications out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))

	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}

	switch len(out) {
	case 0:
		return NoOpObserver{}
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m multiObserver) RunStarted(ctx context.Context, info RunInfo) context.Context {
	for _, o := range m {
		ctx = o.RunStarted(ctx, info)
	}

	return ctx
}

func (m multiObserver) StepRecorded(ctx context.Context, info RunInfo, step Step) {
	for _, o := range m {
		o.StepRecorded(ctx, info, step)
	}
}

func (m multiObserver) ModelCalled(ctx context.Context, info RunInfo, call ModelCall) {
	for _, o := range m {
		o.ModelCalled(ctx, info, call)
	}
}

func (m multiObserver) ToolInvoked(ctx context.Context, info RunInfo, call ToolCall) {
	for _, o := range m {
		o.ToolInvoked(ctx, info, call)
	}
}

func (m multiObserver) Corrected(ctx context.Context, info RunInfo, c Correction) {
	for _, o := range m {
		o.Corrected(ctx, info, c)
	}
}

func (m multiObserver) RunFinished(ctx context.Context, info RunInfo, result *AgentResult) {
	for _, o := range m {
		o.RunFinished(ctx, info, result)
	}
}
