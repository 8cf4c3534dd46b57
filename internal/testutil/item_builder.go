package testutil

import (
	"github.com/hupe1980/agentrelay/core"
)

// ItemBuilder provides a fluent helper for constructing conversation
// histories in tests. Example:
//
//	items := testutil.NewItemBuilder().
//		User("hi").
//		As("triage").Assistant("hello").
//		ToolCall("c1", "random_number", `{"max":10}`).
//		ToolResult("c1", "random_number", 7).
//		Build()
//
// Items are authored by the agent set with As; caller items have no author.
type ItemBuilder struct {
	agent string
	items []core.Item
	calls map[string]core.FunctionCall
}

// NewItemBuilder creates a builder with default author "agent".
func NewItemBuilder() *ItemBuilder {
	return &ItemBuilder{agent: "agent", calls: make(map[string]core.FunctionCall)}
}

// As sets the author of the items added next (chainable).
func (b *ItemBuilder) As(agent string) *ItemBuilder { b.agent = agent; return b }

// User appends a caller message (chainable).
func (b *ItemBuilder) User(text string) *ItemBuilder {
	b.items = append(b.items, core.NewUserMessage(text))
	return b
}

// Assistant appends a message by the current author (chainable).
func (b *ItemBuilder) Assistant(text string) *ItemBuilder {
	b.items = append(b.items, core.NewAssistantMessage(b.agent, text))
	return b
}

// ToolCall appends a tool call with the given ID and JSON arguments (chainable).
func (b *ItemBuilder) ToolCall(id, name, args string) *ItemBuilder {
	fc := core.FunctionCall{ID: id, Name: name, Arguments: args}
	b.calls[id] = fc
	b.items = append(b.items, core.NewToolCallItem(b.agent, fc))
	return b
}

// ToolResult appends the result of the call with the given ID (chainable).
// A call that was not added before is synthesized from id and name.
func (b *ItemBuilder) ToolResult(id, name string, output any) *ItemBuilder {
	b.items = append(b.items, core.NewToolResultItem(b.agent, b.call(id, name), output, ""))
	return b
}

// ToolError appends a failed tool result (chainable).
func (b *ItemBuilder) ToolError(id, name string, err error) *ItemBuilder {
	b.items = append(b.items, core.NewToolResultItem(b.agent, b.call(id, name), err.Error(), err.Error()))
	return b
}

// Handoff appends a handoff call and its completed transfer from the current
// author to target, then switches the author to target (chainable).
func (b *ItemBuilder) Handoff(id, target string) *ItemBuilder {
	fc := core.FunctionCall{ID: id, Name: "transfer_to_" + target}
	b.items = append(b.items,
		core.NewHandoffCallItem(b.agent, fc),
		core.NewHandoffResultItem(b.agent, target, fc),
	)
	b.agent = target
	return b
}

// Add appends arbitrary items (chainable).
func (b *ItemBuilder) Add(items ...core.Item) *ItemBuilder {
	b.items = append(b.items, items...)
	return b
}

// Len returns the number of items added so far.
func (b *ItemBuilder) Len() int { return len(b.items) }

// Build returns a copy of the accumulated items.
func (b *ItemBuilder) Build() []core.Item {
	return append([]core.Item(nil), b.items...)
}

func (b *ItemBuilder) call(id, name string) core.FunctionCall {
	if fc, ok := b.calls[id]; ok {
		return fc
	}
	return core.FunctionCall{ID: id, Name: name}
}
