// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/model"
)

// Options configures the Anthropic model adapter (model id, sampling and
// credentials).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions(optFns []func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions(optFns)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{
		client: client,
		opts:   defaultOptions(optFns),
	}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)

		if req.Config.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		out <- finalResponse(resp)
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	temperature := m.opts.Temperature
	if req.Config.Temperature != nil {
		temperature = *req.Config.Temperature
	}

	maxTokens := m.opts.MaxTokens
	if req.Config.MaxTokens > 0 {
		maxTokens = req.Config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}

	if system := systemBlocks(req.Messages); len(system) > 0 {
		params.System = system
	}

	return params
}

func (m *Model) handleStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	message := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
			return
		}

		if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				out <- model.Response{Text: delta.Text, Partial: true}
			}
		}
	}

	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		return
	}

	out <- finalResponse(&message)
}

func finalResponse(msg *anthropic.Message) model.Response {
	var text strings.Builder

	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	finishReason := "stop"
	if msg.StopReason != "" {
		finishReason = string(msg.StopReason)
	}

	var usage *model.TokenUsage
	if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
		usage = &model.TokenUsage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		}
	}

	return model.Response{
		Text:         text.String(),
		FinishReason: finishReason,
		Usage:        usage,
	}
}

// buildMessages converts the conversation into Anthropic messages. System
// messages travel separately, tool observations become user turns and
// consecutive turns of the same role are merged since the API expects
// alternation.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var (
		messages []anthropic.MessageParam
		lastRole core.Role
		pending  []string
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}

		block := anthropic.NewTextBlock(strings.Join(pending, "\n\n"))
		if lastRole == core.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}

		pending = nil
	}

	for _, msg := range msgs {
		if msg.Role == core.RoleSystem || msg.Content == "" {
			continue
		}

		role := core.RoleUser
		if msg.Role == core.RoleAssistant {
			role = core.RoleAssistant
		}

		if role != lastRole {
			flush()
			lastRole = role
		}

		pending = append(pending, msg.Content)
	}

	flush()

	return messages
}

func systemBlocks(msgs []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	for _, msg := range msgs {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}

	return blocks
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     string(m.opts.Model),
		Provider: "anthropic",
	}
}
