package runner

import (
	"fmt"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/tool"
)

// AgentToolOptions configure AgentAsTool.
type AgentToolOptions struct {
	// Runner executes the nested run. Defaults to the package runner.
	Runner *Runner
	// RunOptions apply to every nested run.
	RunOptions []func(o *Options)
	// Output extracts the tool result from the nested run. Defaults to the
	// final output.
	Output func(res *RunResult) (any, error)
	tool.FunctionOptions
}

type agentToolArgs struct {
	Input string `json:"input" jsonschema:"description=The input to send to the agent"`
}

// AgentAsTool exposes a as a tool. Calling the tool runs a nested run of a
// with the tool's input as user message; the caller state, logger and usage
// are shared with the calling run. The calling agent keeps control, unlike a
// handoff.
func AgentAsTool(a *agent.Agent, name, description string, optFns ...func(o *AgentToolOptions)) *tool.FunctionTool {
	opts := AgentToolOptions{Runner: defaultRunner}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Runner == nil {
		opts.Runner = defaultRunner
	}
	if name == "" {
		name = agent.SnakeName(a.Name())
	}

	return tool.NewTypedTool(name, description, func(tc *core.ToolContext, in agentToolArgs) (any, error) {
		res, err := opts.Runner.Run(tc.Context(), a, Text(in.Input), nestedOptions(tc.RunContext(), opts.RunOptions)...)
		if res != nil {
			tc.RunContext().AddUsage(res.Usage)
		} else if re, ok := err.(*core.RunError); ok && re.Details != nil {
			tc.RunContext().AddUsage(re.Details.Usage)
		}
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
		}
		if opts.Output != nil {
			return opts.Output(res)
		}
		return res.FinalOutput, nil
	}, func(o *tool.FunctionOptions) { *o = opts.FunctionOptions })
}

// AgentGuardrail builds an input guardrail backed by a nested run of a over
// the guarded input. reduce maps the nested result to the guardrail result.
func AgentGuardrail(name string, a *agent.Agent, reduce func(res *RunResult) (guardrail.Result, error), optFns ...func(o *Options)) guardrail.Input {
	return guardrail.NewInput(name, func(rc *core.RunContext, _ string, input []core.Item) (guardrail.Result, error) {
		res, err := Run(rc.Context, a, Items(input), nestedOptions(rc, optFns)...)
		if err != nil {
			return guardrail.Result{}, fmt.Errorf("guardrail agent %s: %w", a.Name(), err)
		}
		rc.AddUsage(res.Usage)
		return reduce(res)
	})
}

// AgentOutputGuardrail builds an output guardrail backed by a nested run of a
// over the stringified candidate output.
func AgentOutputGuardrail(name string, a *agent.Agent, reduce func(res *RunResult) (guardrail.Result, error), optFns ...func(o *Options)) guardrail.Output {
	return guardrail.NewOutput(name, func(rc *core.RunContext, _ string, output any) (guardrail.Result, error) {
		res, err := Run(rc.Context, a, Text(core.Stringify(output)), nestedOptions(rc, optFns)...)
		if err != nil {
			return guardrail.Result{}, fmt.Errorf("guardrail agent %s: %w", a.Name(), err)
		}
		rc.AddUsage(res.Usage)
		return reduce(res)
	})
}

// nestedOptions inherits caller state, logger, model provider and telemetry
// from the parent run, then applies optFns.
func nestedOptions(parent *core.RunContext, optFns []func(o *Options)) []func(o *Options) {
	inherit := func(o *Options) {
		o.Context = parent.State
		o.Logger = parent.Logger()
		if p, ok := parent.Context.Value(runOptionsKey{}).(Options); ok {
			if o.ModelProvider == nil {
				o.ModelProvider = p.ModelProvider
			}
			if o.Metrics == nil {
				o.Metrics = p.Metrics
			}
			if o.Tracer == nil {
				o.Tracer = p.Tracer
			}
		}
	}
	return append([]func(o *Options){inherit}, optFns...)
}
