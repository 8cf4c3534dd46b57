package agent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/model"
)

// HandoffToolPrefix prefixes the default tool name of every handoff edge.
const HandoffToolPrefix = "transfer_to_"

// Handoff is a directed edge from an agent to a target agent. The model
// takes the edge by calling the tool named ToolName.
type Handoff struct {
	// Target is the agent that receives control. A nil target makes the edge
	// unavailable at run time.
	Target *Agent
	// ToolName overrides the default "transfer_to_<target>" tool name.
	ToolName string
	// ToolDescription overrides the default tool description.
	ToolDescription string
	// InputFilter edits the history the target receives.
	InputFilter handoff.Filter
	// OnHandoff runs when the edge is taken, before the target starts.
	OnHandoff func(rc *core.RunContext, args string) error
}

// NewHandoff creates an edge to target.
func NewHandoff(target *Agent, optFns ...func(h *Handoff)) Handoff {
	h := Handoff{Target: target}
	for _, fn := range optFns {
		fn(&h)
	}
	return h
}

// HandoffsTo creates default edges to every target.
func HandoffsTo(targets ...*Agent) []Handoff {
	out := make([]Handoff, len(targets))
	for i, t := range targets {
		out[i] = NewHandoff(t)
	}
	return out
}

// Name returns the tool name exposed to the model.
func (h Handoff) Name() string {
	if h.ToolName != "" {
		return h.ToolName
	}
	if h.Target == nil {
		return ""
	}
	return DefaultHandoffToolName(h.Target.Name())
}

// Description returns the tool description exposed to the model.
func (h Handoff) Description() string {
	if h.ToolDescription != "" {
		return h.ToolDescription
	}
	if h.Target == nil {
		return ""
	}
	desc := fmt.Sprintf("Handoff to the %s agent to handle the request.", h.Target.Name())
	if hd := h.Target.HandoffDescription(); hd != "" {
		desc += " " + hd
	}
	return desc
}

// Definition returns the model facing tool definition. Handoff tools take no
// arguments.
func (h Handoff) Definition() model.ToolDefinition {
	return model.NewFunctionDefinition(h.Name(), h.Description(), map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	})
}

var nonIdentChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DefaultHandoffToolName returns "transfer_to_" followed by the agent name in
// snake case.
func DefaultHandoffToolName(agentName string) string {
	return HandoffToolPrefix + SnakeName(agentName)
}

// SnakeName lowercases s and replaces everything outside [a-z0-9_] with '_'.
func SnakeName(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
	return strings.ToLower(nonIdentChars.ReplaceAllString(s, "_"))
}
