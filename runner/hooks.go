package runner

import (
	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tool"
)

// RunHooks receives lifecycle callbacks for every agent of a run.
// Embed NoOpRunHooks to implement only the callbacks you need.
//
// Callbacks run on the run's goroutine, except tool callbacks, which are
// serialized but may come from tool goroutines.
type RunHooks interface {
	OnAgentStart(rc *core.RunContext, a *agent.Agent)
	OnAgentEnd(rc *core.RunContext, a *agent.Agent, output any)
	OnHandoff(rc *core.RunContext, from, to *agent.Agent)
	OnToolStart(rc *core.RunContext, a *agent.Agent, t tool.Tool)
	OnToolEnd(rc *core.RunContext, a *agent.Agent, t tool.Tool, result any)
}

// NoOpRunHooks implements RunHooks with empty methods.
type NoOpRunHooks struct{}

func (NoOpRunHooks) OnAgentStart(*core.RunContext, *agent.Agent)              {}
func (NoOpRunHooks) OnAgentEnd(*core.RunContext, *agent.Agent, any)           {}
func (NoOpRunHooks) OnHandoff(*core.RunContext, *agent.Agent, *agent.Agent)   {}
func (NoOpRunHooks) OnToolStart(*core.RunContext, *agent.Agent, tool.Tool)    {}
func (NoOpRunHooks) OnToolEnd(*core.RunContext, *agent.Agent, tool.Tool, any) {}

var _ RunHooks = NoOpRunHooks{}
