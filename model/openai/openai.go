// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (streaming and non-streaming). It adapts the normalized
// text conversation into the SDK's message format and back.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/model"
)

var errNoChoices = errors.New("no choices returned")

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// APIKey overrides OPENAI_API_KEY when set.
	APIKey string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client. Credentials
// are read from OPENAI_API_KEY by the SDK unless Options.APIKey is set.
func NewModel(optFns ...func(o *Options)) *Model {
	m := NewModelFromClient(nil, optFns...)

	var clientOpts []option.RequestOption
	if m.opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(m.opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)
	m.client = &client

	return m
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := m.buildParams(req, buildMessages(req.Messages))
		if req.Config.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts the conversation into OpenAI chat messages. Tool
// observations are replayed as user turns since the loop drives tools through
// text rather than native function calling.
func buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			if msg.Content != "" {
				messages = append(messages, openai.UserMessage(msg.Content))
			}
		}
	}
	return messages
}

// buildParams assembles the OpenAI request parameters. Per-request settings
// override the adapter defaults.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	temperature := m.opts.Temperature
	if req.Config.Temperature != nil {
		temperature = *req.Config.Temperature
	}
	maxTokens := m.opts.MaxCompletionTokens
	if req.Config.MaxTokens > 0 {
		maxTokens = req.Config.MaxTokens
	}
	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}

// handleStreaming processes streaming responses and forwards partial / final events.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var textBuilder strings.Builder
	for stream.Next() {
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				textBuilder.WriteString(ch.Delta.Content)
				out <- model.Response{Text: ch.Delta.Content, Partial: true}
			}
			if ch.FinishReason != "" {
				out <- model.Response{
					Text:         textBuilder.String(),
					FinishReason: ch.FinishReason,
					Usage:        usageOf(ck.Usage),
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- errNoChoices
		return
	}
	ch0 := resp.Choices[0]
	out <- model.Response{
		Text:         ch0.Message.Content,
		FinishReason: ch0.FinishReason,
		Usage:        usageOf(resp.Usage),
	}
}

func usageOf(u openai.CompletionUsage) *model.TokenUsage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return nil
	}
	return &model.TokenUsage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: "openai",
	}
}
