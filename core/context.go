package core

import "context"

type (
	depthKey   struct{}
	runInfoKey struct{}
)

// WithDepth returns a context carrying the nesting depth of agent invocations.
// Depth 0 is a top-level run; every agent invoked as a tool runs one level deeper.
func WithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// DepthFrom returns the nesting depth stored in ctx (0 if absent).
func DepthFrom(ctx context.Context) int {
	if d, ok := ctx.Value(depthKey{}).(int); ok {
		return d
	}

	return 0
}

// WithRunInfo attaches the calling run to ctx so tools can correlate their work.
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the run attached to ctx.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
