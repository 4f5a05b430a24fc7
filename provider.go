package reactmesh

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/reactmesh/config"
	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/model"
	anthropicmodel "github.com/hupe1980/reactmesh/model/anthropic"
	openaimodel "github.com/hupe1980/reactmesh/model/openai"
)

// NewModel constructs the model backend described by p. The "mock" provider
// answers every request with the last user message, which is handy for dry
// runs of workflow wiring.
func NewModel(p config.Provider) (model.Model, error) {
	switch strings.ToLower(p.Name) {
	case "openai":
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if p.Model != "" {
				o.Model = p.Model
			}

			o.Temperature = p.Temperature
			o.APIKey = p.APIKey

			if p.MaxTokens > 0 {
				o.MaxCompletionTokens = p.MaxTokens
			}
		}), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if p.Model != "" {
				o.Model = anthropic.Model(p.Model)
			}

			o.Temperature = p.Temperature
			o.APIKey = p.APIKey

			if p.MaxTokens > 0 {
				o.MaxTokens = p.MaxTokens
			}
		}), nil
	case "mock":
		return model.NewFunc("echo", echo), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Name)
	}
}

func echo(_ context.Context, req model.Request) (string, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if m := req.Messages[i]; m.Role == core.RoleUser {
			return "FINAL ANSWER: " + m.Content, nil
		}
	}

	return "FINAL ANSWER:", nil
}
