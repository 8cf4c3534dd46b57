package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a new random identifier.
func NewID() string { return uuid.NewString() }

// ItemKind discriminates the variants of Item.
type ItemKind string

const (
	// ItemUserMessage is caller supplied input.
	ItemUserMessage ItemKind = "user_message"
	// ItemAssistantMessage is text produced by an agent.
	ItemAssistantMessage ItemKind = "message_output"
	// ItemToolCall is a tool invocation requested by an agent.
	ItemToolCall ItemKind = "tool_call"
	// ItemToolResult is the result of a tool invocation.
	ItemToolResult ItemKind = "tool_call_output"
	// ItemHandoffCall is a handoff requested by an agent.
	ItemHandoffCall ItemKind = "handoff_call"
	// ItemHandoffResult records that control moved from one agent to another.
	ItemHandoffResult ItemKind = "handoff_output"
)

// Item is one entry of the append-only conversation history. Exactly one
// variant is represented, selected by Kind. Agent names the author; it is
// empty for items supplied by the caller.
type Item struct {
	ID        string    `json:"id"`
	Kind      ItemKind  `json:"kind"`
	Agent     string    `json:"agent,omitempty"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// Output holds the raw (unserialized) tool result for ItemToolResult.
	Output any `json:"-"`

	// SourceAgent and TargetAgent are set on ItemHandoffResult.
	SourceAgent string `json:"source_agent,omitempty"`
	TargetAgent string `json:"target_agent,omitempty"`
}

func newItem(kind ItemKind, agent string, content Content) Item {
	return Item{
		ID:        NewID(),
		Kind:      kind,
		Agent:     agent,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// NewUserMessage creates a caller authored text item.
func NewUserMessage(text string) Item {
	return newItem(ItemUserMessage, "", Content{Role: RoleUser, Parts: []Part{TextPart{Text: text}}})
}

// NewAssistantMessage creates an agent authored text item.
func NewAssistantMessage(agent, text string) Item {
	return newItem(ItemAssistantMessage, agent, Content{Role: RoleAssistant, Parts: []Part{TextPart{Text: text}}})
}

// NewToolCallItem records a tool call requested by agent.
func NewToolCallItem(agent string, fc FunctionCall) Item {
	return newItem(ItemToolCall, agent, Content{Role: RoleAssistant, Parts: []Part{FunctionCallPart{FunctionCall: fc}}})
}

// NewToolResultItem records the outcome of a tool call. output is kept raw on
// the item and stringified into the content for the model.
func NewToolResultItem(agent string, fc FunctionCall, output any, errText string) Item {
	it := newItem(ItemToolResult, agent, Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{FunctionResponse: FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: Stringify(output),
		Error:    errText,
	}}}})
	it.Output = output
	return it
}

// NewHandoffCallItem records a handoff requested by agent.
func NewHandoffCallItem(agent string, fc FunctionCall) Item {
	return newItem(ItemHandoffCall, agent, Content{Role: RoleAssistant, Parts: []Part{FunctionCallPart{FunctionCall: fc}}})
}

// NewHandoffResultItem records the completed transfer from source to target.
// It is authored by the source agent.
func NewHandoffResultItem(source, target string, fc FunctionCall) Item {
	msg := fmt.Sprintf(`{"assistant": %q}`, target)
	it := newItem(ItemHandoffResult, source, Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{FunctionResponse: FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: msg,
	}}}})
	it.Output = msg
	it.SourceAgent = source
	it.TargetAgent = target
	return it
}

// Text returns the concatenated text parts of the item.
func (it Item) Text() string { return it.Content.Text() }

// FunctionCall returns the call carried by a tool or handoff call item.
func (it Item) FunctionCall() (FunctionCall, bool) {
	if it.Kind != ItemToolCall && it.Kind != ItemHandoffCall {
		return FunctionCall{}, false
	}
	calls := it.Content.FunctionCalls()
	if len(calls) == 0 {
		return FunctionCall{}, false
	}
	return calls[0], true
}

// FunctionResponse returns the response carried by a tool or handoff result item.
func (it Item) FunctionResponse() (FunctionResponse, bool) {
	if it.Kind != ItemToolResult && it.Kind != ItemHandoffResult {
		return FunctionResponse{}, false
	}
	for _, p := range it.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			return fr.FunctionResponse, true
		}
	}
	return FunctionResponse{}, false
}

// IsToolRelated reports whether the item belongs to a tool or handoff exchange.
func (it Item) IsToolRelated() bool {
	switch it.Kind {
	case ItemToolCall, ItemToolResult, ItemHandoffCall, ItemHandoffResult:
		return true
	}
	return false
}

// ItemsToContents converts history into model contents. Consecutive call
// items are merged into one assistant content and consecutive result items
// into one tool content, which is the grouping chat APIs expect.
func ItemsToContents(items []Item) []Content {
	contents := make([]Content, 0, len(items))
	prevGroup := ""
	for _, it := range items {
		group := itemGroup(it)
		if group != "" && group == prevGroup {
			last := &contents[len(contents)-1]
			last.Parts = append(last.Parts, it.Content.Parts...)
			continue
		}
		contents = append(contents, Content{Role: it.Content.Role, Parts: append([]Part(nil), it.Content.Parts...)})
		prevGroup = group
	}
	return contents
}

func itemGroup(it Item) string {
	switch it.Kind {
	case ItemToolCall, ItemHandoffCall:
		return "calls"
	case ItemToolResult, ItemHandoffResult:
		return "results"
	}
	return ""
}

// Stringify renders a tool output for inclusion in model input.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	case int, int32, int64, float32, float64, bool:
		return fmt.Sprintf("%v", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
