package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

func TestItemBuilder(t *testing.T) {
	items := NewItemBuilder().
		User("hi").
		As("triage").Assistant("hello").
		ToolCall("c1", "random_number", `{"max":10}`).
		ToolResult("c1", "", 7).
		ToolError("c2", "lookup", errors.New("not found")).
		Handoff("c3", "spanish_agent").
		Assistant("hola").
		Build()

	require.Len(t, items, 8)

	assert.Equal(t, core.ItemUserMessage, items[0].Kind)
	assert.Empty(t, items[0].Agent)
	assert.Equal(t, "triage", items[1].Agent)

	fr, ok := items[3].FunctionResponse()
	require.True(t, ok)
	assert.Equal(t, "random_number", fr.Name)
	assert.Equal(t, "7", fr.Response)

	fr, ok = items[4].FunctionResponse()
	require.True(t, ok)
	assert.Equal(t, "not found", fr.Error)

	assert.Equal(t, core.ItemHandoffCall, items[5].Kind)
	assert.Equal(t, core.ItemHandoffResult, items[6].Kind)
	assert.Equal(t, "triage", items[6].SourceAgent)
	assert.Equal(t, "spanish_agent", items[6].TargetAgent)
	assert.Equal(t, "spanish_agent", items[7].Agent)
}

func TestItemBuilder_BuildCopies(t *testing.T) {
	b := NewItemBuilder().User("a")
	first := b.Build()
	b.User("b")

	assert.Len(t, first, 1)
	assert.Equal(t, 2, b.Len())
}
