package openai

import (
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/reactmesh/core"
	"github.com/hupe1980/reactmesh/model"
)

func TestBuildMessages_Roles(t *testing.T) {
	out := buildMessages([]core.Message{
		core.NewSystemMessage("sys"),
		core.NewUserMessage("hi"),
		core.NewAssistantMessage("a", "Thought: x"),
		core.NewToolMessage("Observation: y"),
	})

	assert.Len(t, out, 4)
	assert.NotNil(t, out[0].OfSystem)
	assert.NotNil(t, out[1].OfUser)
	assert.NotNil(t, out[2].OfAssistant)
	assert.NotNil(t, out[3].OfUser)
}

func TestBuildParams_Overrides(t *testing.T) {
	client := openai.NewClient(option.WithAPIKey("test"))
	m := NewModelFromClient(&client, func(o *Options) { o.Model = "gpt-test" })

	temp := 0.1
	params := m.buildParams(model.Request{Config: model.Config{Temperature: &temp, MaxTokens: 64}}, nil)
	assert.Equal(t, "gpt-test", params.Model)
	assert.InDelta(t, 0.1, params.Temperature.Value, 1e-9)
	assert.Equal(t, int64(64), params.MaxCompletionTokens.Value)

	assert.Equal(t, model.Info{Name: "gpt-test", Provider: "openai"}, m.Info())
}
