package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// Step produces the response for one scripted turn. It may inspect the
// request (for example the latest tool result) to decide what to answer.
type Step func(req Request) (Response, error)

// ScriptedModel is a deterministic Model that replays a list of steps, one
// per Generate call. Once the script is exhausted the last step repeats.
// It is safe for concurrent use.
type ScriptedModel struct {
	info  Info
	steps []Step

	mu       sync.Mutex
	requests []Request
}

// NewScriptedModel creates a ScriptedModel replaying steps.
func NewScriptedModel(name string, steps ...Step) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: name, Provider: "scripted", SupportsTools: true},
		steps: steps,
	}
}

// Reply answers with a final text message.
func Reply(text string) Step {
	return func(Request) (Response, error) {
		return TextResponse(text), nil
	}
}

// CallTools answers with the given tool calls. Calls without an ID are
// assigned one.
func CallTools(calls ...core.FunctionCall) Step {
	return func(Request) (Response, error) {
		return ToolCallResponse(calls...), nil
	}
}

// Fail answers with err.
func Fail(err error) Step {
	return func(Request) (Response, error) { return Response{}, err }
}

// TextResponse builds a final assistant text response.
func TextResponse(text string) Response {
	return Response{
		ID:           core.NewID(),
		Content:      core.Content{Role: core.RoleAssistant, Parts: []core.Part{core.TextPart{Text: text}}},
		FinishReason: "stop",
	}
}

// ToolCallResponse builds a final response requesting tool calls.
func ToolCallResponse(calls ...core.FunctionCall) Response {
	parts := make([]core.Part, 0, len(calls))
	for _, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + core.NewID()
		}
		if c.Arguments == "" {
			c.Arguments = "{}"
		}
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}
	return Response{
		ID:           core.NewID(),
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: "tool_calls",
	}
}

// Calls returns how many times Generate was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model. With req.Stream set the final text is also
// emitted rune by rune as partial responses.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if len(m.steps) == 0 {
			errCh <- fmt.Errorf("scripted model %s has no steps", m.info.Name)
			return
		}
		if idx >= len(m.steps) {
			idx = len(m.steps) - 1
		}

		resp, err := m.steps[idx](req)
		if err != nil {
			errCh <- err
			return
		}
		if resp.Usage == nil {
			resp.Usage = &TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
		}

		if req.Stream {
			for _, r := range resp.Content.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					ID:      resp.ID,
					Partial: true,
					Content: core.Content{Role: core.RoleAssistant, Parts: []core.Part{core.TextPart{Text: string(r)}}},
				}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- resp:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
