package openai

import (
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	call := core.FunctionCall{ID: "c1", Name: "random_number", Arguments: `{"max":10}`}
	items := []core.Item{
		core.NewUserMessage("draw"),
		core.NewToolCallItem("Start", call),
		core.NewToolResultItem("Start", call, 4, ""),
		core.NewAssistantMessage("Start", "4"),
	}

	msgs := buildMessages(model.Request{Instructions: "be brief", Contents: core.ItemsToContents(items)})
	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "random_number", msgs[2].OfAssistant.ToolCalls[0].Function.Name)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfAssistant)
}

func TestBuildParams_ToolChoice(t *testing.T) {
	m := NewModelFromClient(nil, func(o *Options) { o.Model = "deepseek-chat" })
	tools := []model.ToolDefinition{model.NewFunctionDefinition("get_weather", "weather", map[string]any{"type": "object"})}

	p := m.buildParams(model.Request{Tools: tools, Settings: model.Settings{ToolChoice: model.ToolChoiceRequired}}, nil)
	require.Len(t, p.Tools, 1)
	assert.Equal(t, "get_weather", p.Tools[0].Function.Name)
	assert.Equal(t, "required", p.ToolChoice.OfAuto.Value)
	assert.Equal(t, "deepseek-chat", p.Model)

	p = m.buildParams(model.Request{Tools: tools, Settings: model.Settings{ToolChoice: "get_weather"}}, nil)
	require.NotNil(t, p.ToolChoice.OfChatCompletionNamedToolChoice)
	assert.Equal(t, "get_weather", p.ToolChoice.OfChatCompletionNamedToolChoice.Function.Name)

	p = m.buildParams(model.Request{}, nil)
	assert.Empty(t, p.Tools)
}

func TestProvider_ResolvesModelName(t *testing.T) {
	p := NewProvider(func(o *Options) { o.APIKey = "test"; o.BaseURL = "http://localhost:0" })
	m, err := p.Model("deepseek-chat")
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", m.Info().Name)
	assert.Equal(t, "openai", m.Info().Provider)

	def, err := p.Model("")
	require.NoError(t, err)
	assert.NotEmpty(t, def.Info().Name)
}
