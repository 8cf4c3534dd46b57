package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
)

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	// HandoffDescription tells other agents' models when to hand off to this one.
	HandoffDescription string
	Instruction        Instruction
	Tools              []tool.Tool
	Handoffs           []Handoff
	InputGuardrails    []guardrail.Input
	OutputGuardrails   []guardrail.Output
	OutputType         OutputType
	ToolUseBehavior    ToolUseBehavior
	Hooks              Hooks

	// Model takes precedence over ModelName, which is resolved through the
	// run's model.Provider.
	Model     model.Model
	ModelName string
	Settings  model.Settings

	// ResetToolChoice clears a forced tool choice after a tool turn so the
	// model can produce a final answer.
	ResetToolChoice bool
}

// Agent is a named, reusable configuration driven by the runner.
//
// An Agent is read-only once a run uses it and may be shared between
// concurrent runs.
type Agent struct {
	name string
	opts Options

	tools    *tool.Registry
	toolsErr error

	mu       sync.RWMutex
	handoffs []Handoff
}

// New creates an agent. Defaults: empty instructions, text output, the
// RunLLMAgain behaviour, no-op hooks and tool choice reset enabled.
//
// Configuration errors (duplicate tool names, clashes between tool and
// handoff names) are reported by Validate and fail any run using the agent.
func New(name string, optFns ...func(o *Options)) *Agent {
	opts := Options{
		OutputType:      TextOutput(),
		ToolUseBehavior: RunLLMAgain(),
		Hooks:           NoOpHooks{},
		ResetToolChoice: true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return newAgent(name, opts)
}

func newAgent(name string, opts Options) *Agent {
	if opts.OutputType == nil {
		opts.OutputType = TextOutput()
	}
	if opts.ToolUseBehavior == nil {
		opts.ToolUseBehavior = RunLLMAgain()
	}
	if opts.Hooks == nil {
		opts.Hooks = NoOpHooks{}
	}

	reg, err := tool.NewRegistry(opts.Tools...)

	a := &Agent{
		name:     name,
		opts:     opts,
		tools:    reg,
		toolsErr: err,
		handoffs: append([]Handoff(nil), opts.Handoffs...),
	}
	a.opts.Handoffs = nil

	return a
}

// Clone returns a new agent with the same configuration, modified by optFns.
func (a *Agent) Clone(optFns ...func(o *Options)) *Agent {
	opts := a.opts
	opts.Tools = append([]tool.Tool(nil), a.opts.Tools...)
	opts.Handoffs = a.Handoffs()
	opts.InputGuardrails = append([]guardrail.Input(nil), a.opts.InputGuardrails...)
	opts.OutputGuardrails = append([]guardrail.Output(nil), a.opts.OutputGuardrails...)

	for _, fn := range optFns {
		fn(&opts)
	}

	return newAgent(a.name, opts)
}

// AddHandoffs appends handoff edges. It exists to close cycles between agents
// and must not be called once the agent takes part in a run.
func (a *Agent) AddHandoffs(h ...Handoff) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handoffs = append(a.handoffs, h...)
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// HandoffDescription returns the description used by handoff tools targeting this agent.
func (a *Agent) HandoffDescription() string { return a.opts.HandoffDescription }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *tool.Registry { return a.tools }

// Handoffs returns a copy of the agent's handoff edges.
func (a *Agent) Handoffs() []Handoff {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Handoff(nil), a.handoffs...)
}

// LookupHandoff finds the edge whose tool is named name.
func (a *Agent) LookupHandoff(name string) (Handoff, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, h := range a.handoffs {
		if h.Name() == name {
			return h, true
		}
	}
	return Handoff{}, false
}

// InputGuardrails returns the agent's input guardrails.
func (a *Agent) InputGuardrails() []guardrail.Input { return a.opts.InputGuardrails }

// OutputGuardrails returns the agent's output guardrails.
func (a *Agent) OutputGuardrails() []guardrail.Output { return a.opts.OutputGuardrails }

// OutputType returns the agent's output type.
func (a *Agent) OutputType() OutputType { return a.opts.OutputType }

// ToolUseBehavior returns the policy applied after tool turns.
func (a *Agent) ToolUseBehavior() ToolUseBehavior { return a.opts.ToolUseBehavior }

// Hooks returns the agent's lifecycle hooks.
func (a *Agent) Hooks() Hooks { return a.opts.Hooks }

// Settings returns the agent's model settings.
func (a *Agent) Settings() model.Settings { return a.opts.Settings }

// ResetToolChoice reports whether a forced tool choice is cleared after a tool turn.
func (a *Agent) ResetToolChoice() bool { return a.opts.ResetToolChoice }

// Instructions resolves the system prompt for one turn.
func (a *Agent) Instructions(rc *core.RunContext) (string, error) {
	return a.opts.Instruction.Resolve(rc, a)
}

// ResolveModel returns the agent's model, asking provider when the agent
// only names one.
func (a *Agent) ResolveModel(provider model.Provider) (model.Model, error) {
	if a.opts.Model != nil {
		return a.opts.Model, nil
	}
	if provider == nil {
		return nil, fmt.Errorf("agent %s has no model and no model provider is configured", a.name)
	}
	m, err := provider.Model(a.opts.ModelName)
	if err != nil {
		return nil, fmt.Errorf("resolve model %q for agent %s: %w", a.opts.ModelName, a.name, err)
	}
	return m, nil
}

// ToolDefinitions returns the tool and handoff definitions offered to the model.
func (a *Agent) ToolDefinitions() []model.ToolDefinition {
	defs := a.tools.Definitions()
	for _, h := range a.Handoffs() {
		if h.Name() == "" {
			continue
		}
		defs = append(defs, h.Definition())
	}
	return defs
}

// Validate reports configuration errors.
func (a *Agent) Validate() error {
	if a.name == "" {
		return fmt.Errorf("agent name must not be empty")
	}
	if a.toolsErr != nil {
		return fmt.Errorf("agent %s: %w", a.name, a.toolsErr)
	}
	seen := map[string]bool{}
	for _, h := range a.Handoffs() {
		name := h.Name()
		if name == "" {
			continue
		}
		if _, clash := a.tools.Lookup(name); clash {
			return fmt.Errorf("agent %s: handoff %q clashes with a tool of the same name", a.name, name)
		}
		if seen[name] {
			return fmt.Errorf("agent %s: duplicate handoff %q", a.name, name)
		}
		seen[name] = true
	}
	return nil
}
