package runner

import (
	"strings"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/model"
)

// RunResult is the outcome of a completed run. It is not modified after the
// run returns it.
type RunResult struct {
	RunID string
	// Input is the caller input the run started from.
	Input []core.Item
	// NewItems holds every item the run produced, in causal order.
	NewItems []core.Item
	// FinalOutput is typed per the last agent's output type.
	FinalOutput any
	LastAgent   *agent.Agent
	// RawResponses holds every final model response, one per turn.
	RawResponses           []model.Response
	InputGuardrailResults  []guardrail.Outcome
	OutputGuardrailResults []guardrail.Outcome
	Usage                  core.Usage
	Turns                  int
}

// ToInputList returns Input followed by NewItems, ready to seed the next run.
func (r *RunResult) ToInputList() []core.Item {
	out := make([]core.Item, 0, len(r.Input)+len(r.NewItems))
	out = append(out, r.Input...)
	return append(out, r.NewItems...)
}

// FinalOutputText renders the final output as text.
func (r *RunResult) FinalOutputText() string { return core.Stringify(r.FinalOutput) }

// FinalOutputAs returns the final output converted to T.
func FinalOutputAs[T any](r *RunResult) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	v, ok := r.FinalOutput.(T)
	return v, ok
}

// TextMessageOutput returns the text of an assistant message item, or "" for
// any other item.
func TextMessageOutput(it core.Item) string {
	if it.Kind != core.ItemAssistantMessage {
		return ""
	}
	return it.Text()
}

// TextMessageOutputs concatenates the text of every assistant message item.
func TextMessageOutputs(items []core.Item) string {
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString(TextMessageOutput(it))
	}
	return sb.String()
}
