package agent

import (
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tool"
)

// Hooks receives lifecycle callbacks for one agent, whichever run it is part of.
// Embed NoOpHooks to implement only the callbacks you need.
type Hooks interface {
	// OnStart fires when the agent becomes the active agent.
	OnStart(rc *core.RunContext, a *Agent)
	// OnEnd fires when the agent produced the run's final output.
	OnEnd(rc *core.RunContext, a *Agent, output any)
	// OnHandoff fires on the target agent when control is handed to it.
	OnHandoff(rc *core.RunContext, a *Agent, source *Agent)
	// OnToolStart fires before one of the agent's tools runs.
	OnToolStart(rc *core.RunContext, a *Agent, t tool.Tool)
	// OnToolEnd fires after one of the agent's tools finished.
	OnToolEnd(rc *core.RunContext, a *Agent, t tool.Tool, result any)
}

// NoOpHooks implements Hooks with empty methods.
type NoOpHooks struct{}

func (NoOpHooks) OnStart(*core.RunContext, *Agent)                   {}
func (NoOpHooks) OnEnd(*core.RunContext, *Agent, any)                {}
func (NoOpHooks) OnHandoff(*core.RunContext, *Agent, *Agent)         {}
func (NoOpHooks) OnToolStart(*core.RunContext, *Agent, tool.Tool)    {}
func (NoOpHooks) OnToolEnd(*core.RunContext, *Agent, tool.Tool, any) {}

var _ Hooks = NoOpHooks{}
