package core

import (
	"context"

	"github.com/hupe1980/agentrelay/logging"
)

// ToolContext is the narrow view of a run handed to a tool invocation. It
// exposes the run state, the originating call and a logger pre-tagged with
// the tool and call identifiers.
type ToolContext struct {
	runCtx    *RunContext
	call      FunctionCall
	agentName string

	*loggerAdapter
}

// NewToolContext binds a tool invocation to its run and originating call.
func NewToolContext(runCtx *RunContext, agentName string, call FunctionCall) *ToolContext {
	return &ToolContext{
		runCtx:        runCtx,
		call:          call,
		agentName:     agentName,
		loggerAdapter: runCtx.loggerAdapter.with("agent", agentName, "tool", call.Name, "fc_id", call.ID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RunContext returns the owning run context.
func (tc *ToolContext) RunContext() *RunContext { return tc.runCtx }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// State returns the caller supplied run state.
func (tc *ToolContext) State() any { return tc.runCtx.State }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the ID of the originating function call.
func (tc *ToolContext) FunctionCallID() string { return tc.call.ID }

// ToolName returns the name of the tool being invoked.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// AgentName returns the name of the agent that requested the call.
func (tc *ToolContext) AgentName() string { return tc.agentName }
