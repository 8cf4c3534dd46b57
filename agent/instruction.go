package agent

import (
	"text/template"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the caller state, the agent, etc.
type Provider interface {
	Instruction(rc *core.RunContext, a *Agent) (string, error)
}

// InstructionFunc is a functional adapter to allow ordinary functions to be used as Providers.
type InstructionFunc func(rc *core.RunContext, a *Agent) (string, error)

// Instruction implements Provider.
func (f InstructionFunc) Instruction(rc *core.RunContext, a *Agent) (string, error) { return f(rc, a) }

// Instruction represents either a static instruction string, a template
// rendered against the caller state, or a dynamic provider.
type Instruction struct {
	text     string
	tmpl     *template.Template
	tmplErr  error
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromTemplate creates an Instruction rendered with text/template
// against the run's caller state on every turn. Text without template markers
// behaves like NewInstructionFromText.
func NewInstructionFromTemplate(text string) Instruction {
	tmpl, err := util.ParseTemplate("instruction", text)
	return Instruction{text: text, tmpl: tmpl, tmplErr: err}
}

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(rc *core.RunContext, a *Agent) (string, error)) Instruction {
	return Instruction{provider: InstructionFunc(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil && i.tmpl == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(rc *core.RunContext, a *Agent) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(rc, a)
	}
	if i.tmplErr != nil {
		return "", i.tmplErr
	}
	var state any
	if rc != nil {
		state = rc.State
	}
	return util.RenderTemplate(i.tmpl, i.text, state)
}
