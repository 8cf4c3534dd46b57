package anthropic

import (
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_ToolResultsBecomeUserBlocks(t *testing.T) {
	call := core.FunctionCall{ID: "toolu_1", Name: "get_weather", Arguments: `{"city":"Tokyo"}`}
	contents := core.ItemsToContents([]core.Item{
		core.NewUserMessage("weather?"),
		core.NewToolCallItem("Weather", call),
		core.NewToolResultItem("Weather", call, "sunny", ""),
	})

	msgs := buildMessages(contents)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
	require.Len(t, msgs[2].Content, 1)
	assert.NotNil(t, msgs[2].Content[0].OfToolResult)
}

func TestBuildParams_SystemAndToolChoice(t *testing.T) {
	m := NewModelFromClient(nil)
	tools := []model.ToolDefinition{model.NewFunctionDefinition("get_weather", "Look up weather", map[string]any{
		"type":       "object",
		"properties": map[string]any{"city": map[string]any{"type": "string"}},
		"required":   []any{"city"},
	})}

	p := m.buildParams(model.Request{
		Instructions: "be brief",
		Contents:     []core.Content{{Role: core.RoleUser, Parts: []core.Part{core.TextPart{Text: "hi"}}}},
		Tools:        tools,
		Settings:     model.Settings{ToolChoice: model.ToolChoiceRequired},
	})
	require.Len(t, p.System, 1)
	assert.Equal(t, "be brief", p.System[0].Text)
	require.Len(t, p.Tools, 1)
	require.NotNil(t, p.Tools[0].OfTool)
	assert.Equal(t, []string{"city"}, p.Tools[0].OfTool.InputSchema.Required)
	assert.NotNil(t, p.ToolChoice.OfAny)

	p = m.buildParams(model.Request{Tools: tools, Settings: model.Settings{ToolChoice: model.ToolChoiceNone}})
	assert.Empty(t, p.Tools)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"a"}, requiredFields([]string{"a"}))
	assert.Equal(t, []string{"a", "b"}, requiredFields([]any{"a", 1, "b"}))
	assert.Nil(t, requiredFields(nil))
}
