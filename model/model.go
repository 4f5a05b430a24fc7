package model

import (
	"context"
	"errors"
	"strings"

	"github.com/hupe1980/reactmesh/core"
)

// ErrEmptyResponse is returned by Collect when a model finishes without output.
var ErrEmptyResponse = errors.New("model returned no response")

// Config carries per-request generation settings. Zero values defer to the
// provider adapter's defaults.
type Config struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int64    `json:"max_tokens,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

// Request is the normalized model input: the ordered conversation plus settings.
type Request struct {
	Messages []core.Message `json:"messages"`
	Config   Config         `json:"config"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Partial chunks carry
// text deltas; the final chunk carries the complete text.
type Response struct {
	Text         string      `json:"text"`
	Partial      bool        `json:"partial"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the minimal interface required by agents to drive generation.
//
// Generate emits zero or more partial Responses followed by one final Response
// on the first channel, or an error on the second. Implementations close both
// channels when done and must stop early when ctx is cancelled.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call into its final Response. If the provider only
// streamed partial chunks, their concatenation becomes the final text.
func Collect(ctx context.Context, m Model, req Request) (*Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final  *Response
		deltas strings.Builder
	)

	for respCh != nil || errCh != nil {
		select {
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			if r.Partial {
				deltas.WriteString(r.Text)
				continue
			}

			final = &r
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}

			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if final == nil {
		if deltas.Len() == 0 {
			return nil, ErrEmptyResponse
		}

		final = &Response{Text: deltas.String()}
	}

	return final, nil
}
