package model

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewFunctionDefinition builds a function ToolDefinition.
func NewFunctionDefinition(name, description string, parameters map[string]any) ToolDefinition {
	return ToolDefinition{Type: "function", Function: FunctionDefinition{
		Name:        name,
		Description: description,
		Parameters:  parameters,
	}}
}

// Tool choice values understood by every adapter. Any other non-empty value
// names a specific tool.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
	ToolChoiceNone     = "none"
)

// Settings tunes a single generation. Nil fields fall back to adapter defaults.
type Settings struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int64   `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	ToolChoice  string   `json:"tool_choice,omitempty" yaml:"tool_choice,omitempty"`
}

// Merge returns s overlaid with the non-zero fields of o.
func (s Settings) Merge(o Settings) Settings {
	if o.Temperature != nil {
		s.Temperature = o.Temperature
	}
	if o.MaxTokens != nil {
		s.MaxTokens = o.MaxTokens
	}
	if o.ToolChoice != "" {
		s.ToolChoice = o.ToolChoice
	}
	return s
}

// Request is the normalized input for one turn.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Settings     Settings         `json:"settings"`
	Stream       bool             `json:"stream,omitempty"`
	// OutputSchema asks for a JSON response matching the schema when the
	// backend supports structured output.
	OutputSchema *OutputSchema `json:"output_schema,omitempty"`
}

// OutputSchema names a JSON schema for structured responses.
type OutputSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a partial or final chunk emitted by a model. Partial chunks
// carry text deltas; exactly one non-partial response ends a generation.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"`
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the turn producer driven by the runner.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Provider resolves a model by name. An empty name selects the provider
// default.
type Provider interface {
	Model(name string) (Model, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(name string) (Model, error)

// Model implements Provider.
func (f ProviderFunc) Model(name string) (Model, error) { return f(name) }

// Collect drains a generation and returns its final response. onPartial, if
// set, receives every partial chunk in arrival order.
func Collect(ctx context.Context, m Model, req Request, onPartial func(Response)) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		final    Response
		gotFinal bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if r.Partial {
				if onPartial != nil {
					onPartial(r)
				}
				continue
			}
			final, gotFinal = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return Response{}, err
			}
		}
	}

	if !gotFinal {
		return Response{}, fmt.Errorf("model %s returned no final response", m.Info().Name)
	}

	return final, nil
}
