package agent

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/hupe1980/agentrelay/internal/util"
)

// OutputType describes the final output an agent produces.
type OutputType interface {
	// Name identifies the type, e.g. for structured output requests.
	Name() string
	// IsPlainText reports whether the output is the raw message text.
	IsPlainText() bool
	// Schema returns the JSON schema of structured output, nil for text.
	Schema() map[string]any
	// Decode converts the model's final text into the output value.
	Decode(text string) (any, error)
}

type textOutput struct{}

// TextOutput keeps the final message text as the output. This is the default.
func TextOutput() OutputType { return textOutput{} }

func (textOutput) Name() string                    { return "str" }
func (textOutput) IsPlainText() bool               { return true }
func (textOutput) Schema() map[string]any          { return nil }
func (textOutput) Decode(text string) (any, error) { return text, nil }

type jsonOutput[T any] struct {
	name   string
	schema map[string]any
}

// JSONOutput decodes the final message as JSON into a T. The schema is
// reflected from T and sent to models that support structured output.
func JSONOutput[T any]() OutputType {
	var zero T
	name := "output"
	if t := reflect.TypeOf(zero); t != nil && t.Name() != "" {
		name = t.Name()
	}
	return jsonOutput[T]{name: name, schema: util.CreateSchema(zero)}
}

func (o jsonOutput[T]) Name() string           { return o.name }
func (jsonOutput[T]) IsPlainText() bool        { return false }
func (o jsonOutput[T]) Schema() map[string]any { return o.schema }

func (o jsonOutput[T]) Decode(text string) (any, error) {
	var v T
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &v); err != nil {
		return nil, fmt.Errorf("decode %s output: %w", o.name, err)
	}
	return v, nil
}

// stripCodeFence removes a surrounding ```json fence some models add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
