package agent

import (
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/tool"
)

// ToolsToFinalOutput is the decision taken after a tool turn.
type ToolsToFinalOutput struct {
	// IsFinalOutput ends the run with FinalOutput when true. Otherwise the
	// model runs again with the tool results in its history.
	IsFinalOutput bool
	FinalOutput   any
}

// ToolUseFunc decides from a turn's tool results whether the run is done.
type ToolUseFunc func(rc *core.RunContext, results []tool.Result) (ToolsToFinalOutput, error)

// ToolUseBehavior is the policy applied after tool calls complete. The
// variants are RunLLMAgain, StopOnFirstTool, StopAtTools and CustomToolUse.
type ToolUseBehavior interface {
	// Decide applies the policy to the results of one turn, in request order.
	Decide(rc *core.RunContext, results []tool.Result) (ToolsToFinalOutput, error)
	String() string
}

type runLLMAgain struct{}

// RunLLMAgain feeds tool results back to the model. This is the default.
func RunLLMAgain() ToolUseBehavior { return runLLMAgain{} }

func (runLLMAgain) Decide(*core.RunContext, []tool.Result) (ToolsToFinalOutput, error) {
	return ToolsToFinalOutput{}, nil
}

func (runLLMAgain) String() string { return "run_llm_again" }

type stopOnFirstTool struct{}

// StopOnFirstTool ends the run with the output of the first tool call.
func StopOnFirstTool() ToolUseBehavior { return stopOnFirstTool{} }

func (stopOnFirstTool) Decide(_ *core.RunContext, results []tool.Result) (ToolsToFinalOutput, error) {
	if len(results) == 0 {
		return ToolsToFinalOutput{}, nil
	}
	return ToolsToFinalOutput{IsFinalOutput: true, FinalOutput: results[0].Output}, nil
}

func (stopOnFirstTool) String() string { return "stop_on_first_tool" }

type stopAtTools struct{ names map[string]struct{} }

// StopAtTools ends the run when one of the named tools was called, using
// that call's output. Other tools behave as with RunLLMAgain.
func StopAtTools(names ...string) ToolUseBehavior {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return stopAtTools{names: set}
}

func (s stopAtTools) Decide(_ *core.RunContext, results []tool.Result) (ToolsToFinalOutput, error) {
	for _, r := range results {
		if _, ok := s.names[r.Call.Name]; ok {
			return ToolsToFinalOutput{IsFinalOutput: true, FinalOutput: r.Output}, nil
		}
	}
	return ToolsToFinalOutput{}, nil
}

func (stopAtTools) String() string { return "stop_at_tools" }

type customToolUse struct{ fn ToolUseFunc }

// CustomToolUse delegates the decision to fn.
func CustomToolUse(fn ToolUseFunc) ToolUseBehavior { return customToolUse{fn: fn} }

func (c customToolUse) Decide(rc *core.RunContext, results []tool.Result) (ToolsToFinalOutput, error) {
	if c.fn == nil {
		return ToolsToFinalOutput{}, nil
	}
	return c.fn(rc, results)
}

func (customToolUse) String() string { return "custom" }
