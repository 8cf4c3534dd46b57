package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/tool"
)

var scenarioNames = []string{
	"random-number", "guardrails", "forcing-tool-use", "agents-as-tools", "language-triage",
	"parallelization", "llm-as-a-judge", "deterministic",
}

type scenario struct {
	entry  *agent.Agent
	prompt string

	// workflow chains several runs. Without one, entry runs once.
	workflow func(ctx context.Context, a *app, prompt string) error
	// helpers are agents used by workflow besides entry.
	helpers  []*agent.Agent
}

func (sc scenario) agents() []*agent.Agent {
	return append([]*agent.Agent{sc.entry}, sc.helpers...)
}

func buildScenario(name, toolUseBehavior string) (scenario, error) {
	switch name {
	case "random-number":
		return randomNumberScenario(), nil
	case "guardrails":
		return guardrailScenario(), nil
	case "forcing-tool-use":
		return forcingToolUseScenario(toolUseBehavior)
	case "agents-as-tools":
		return agentsAsToolsScenario(), nil
	case "language-triage":
		return languageTriageScenario(), nil
	case "parallelization":
		return parallelizationScenario(), nil
	case "llm-as-a-judge":
		return judgeScenario(), nil
	case "deterministic":
		return deterministicScenario(), nil
	}
	return scenario{}, fmt.Errorf("unknown scenario %q", name)
}

// validateGraph validates every agent reachable through handoffs.
func validateGraph(entry *agent.Agent) error {
	seen := map[*agent.Agent]bool{}
	queue := []*agent.Agent{entry}
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		if seen[a] {
			continue
		}
		seen[a] = true
		if err := a.Validate(); err != nil {
			return err
		}
		for _, h := range a.Handoffs() {
			if h.Target != nil {
				queue = append(queue, h.Target)
			}
		}
	}
	return nil
}

func assistant(instructions string) *agent.Agent {
	return agent.New("assistant", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText(instructions)
	})
}

type randomNumberArgs struct {
	Max int `json:"max" jsonschema:"description=The inclusive upper bound"`
}

func randomNumberTool() tool.Tool {
	return tool.NewTypedTool("random_number", "Generate a random number up to the provided maximum.", func(_ *core.ToolContext, in randomNumberArgs) (int, error) {
		if in.Max < 0 {
			return 0, errors.New("max must not be negative")
		}
		return rand.IntN(in.Max + 1), nil
	})
}

func randomNumberScenario() scenario {
	multiply := agent.New("multiply_agent", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("Multiply the number by 2 and then return the final result.")
		o.HandoffDescription = "Multiplies numbers by 2."
	})

	start := agent.New("start_agent", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("Generate a random number. If it's even, stop. If it's odd, hand off to the multiply agent.")
		o.Tools = []tool.Tool{randomNumberTool()}
		o.Handoffs = agent.HandoffsTo(multiply)
	})

	return scenario{entry: start, prompt: "Generate a random number between 0 and 250."}
}

func guardrailScenario() scenario {
	checker := agent.New("guardrail_check", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("Decide whether the user asks you to solve a math problem or do their math homework.\n" +
			"Answer with a single line, either\nis_math_question=true\nor\nis_math_question=false\nand nothing else.")
	})

	mathHomework := runner.AgentGuardrail("math_homework", checker, func(res *runner.RunResult) (guardrail.Result, error) {
		raw := res.FinalOutputText()
		normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
		return guardrail.Result{
			TripwireTriggered: normalized == "is_math_question=true",
			OutputInfo:        map[string]string{"raw_output": raw},
		}, nil
	})

	support := agent.New("customer_support_agent", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("You are a customer support agent. You help customers with their questions.")
		o.InputGuardrails = []guardrail.Input{mathHomework}
		o.OutputGuardrails = []guardrail.Output{guardrail.Regexp("phone_number", regexp.MustCompile(`\d{5,}`))}
	})

	return scenario{entry: support, prompt: "Hello, can you help me solve for x: 2x + 3 = 11?"}
}

type weather struct {
	City             string `json:"city"`
	TemperatureRange string `json:"temperature_range"`
	Conditions       string `json:"conditions"`
}

type weatherArgs struct {
	City string `json:"city" jsonschema:"description=The city to look up"`
}

func weatherTool() tool.Tool {
	return tool.NewTypedTool("get_weather", "Get the current weather for a city.", func(_ *core.ToolContext, in weatherArgs) (weather, error) {
		return weather{City: in.City, TemperatureRange: "14-20C", Conditions: "Sunny with wind."}, nil
	})
}

func forcingToolUseScenario(behavior string) (scenario, error) {
	var (
		tub        agent.ToolUseBehavior
		toolChoice string
	)

	switch behavior {
	case "", "default":
		tub = agent.RunLLMAgain()
	case "first_tool":
		tub = agent.StopOnFirstTool()
		toolChoice = model.ToolChoiceRequired
	case "custom":
		tub = agent.CustomToolUse(func(_ *core.RunContext, results []tool.Result) (agent.ToolsToFinalOutput, error) {
			w, ok := results[0].Output.(weather)
			if !ok {
				return agent.ToolsToFinalOutput{}, nil
			}
			return agent.ToolsToFinalOutput{
				IsFinalOutput: true,
				FinalOutput:   fmt.Sprintf("%s is %s", w.City, w.Conditions),
			}, nil
		})
		toolChoice = model.ToolChoiceRequired
	default:
		return scenario{}, fmt.Errorf("unknown tool use behavior %q", behavior)
	}

	weatherAgent := agent.New("weather_agent", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("You are a helpful agent.")
		o.Tools = []tool.Tool{weatherTool()}
		o.ToolUseBehavior = tub
		o.Settings = model.Settings{ToolChoice: toolChoice}
	})

	return scenario{entry: weatherAgent, prompt: "What's the weather in Tokyo?"}, nil
}

func translator(name, language string) *agent.Agent {
	return agent.New(name, func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("You translate the user's message to " + language + ".")
	})
}

func agentsAsToolsScenario() scenario {
	orchestrator := agent.New("orchestrator_agent", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("You are a translation agent. You use the tools given to you to translate. " +
			"If asked for multiple translations, you call the relevant tools in order. You never translate on your own.")
		o.Tools = []tool.Tool{
			runner.AgentAsTool(translator("spanish_agent", "Spanish"), "translate_to_spanish", "Translate the user's message to Spanish"),
			runner.AgentAsTool(translator("french_agent", "French"), "translate_to_french", "Translate the user's message to French"),
			runner.AgentAsTool(translator("italian_agent", "Italian"), "translate_to_italian", "Translate the user's message to Italian"),
		}
	})

	return scenario{entry: orchestrator, prompt: "Translate 'Good morning, how are you?' to Spanish and French."}
}

func languageTriageScenario() scenario {
	respond := func(name, language string) *agent.Agent {
		return agent.New(name, func(o *agent.Options) {
			o.Instruction = agent.NewInstructionFromText("You only speak " + language + ". Keep your answers short.")
		})
	}

	spanish := respond("spanish_agent", "Spanish")
	french := respond("french_agent", "French")
	english := respond("english_agent", "English")

	triage := agent.New("triage_agent", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("Hand off to the appropriate agent based on the language of the request.")
		o.Handoffs = []agent.Handoff{
			agent.NewHandoff(spanish, func(h *agent.Handoff) {
				h.InputFilter = handoff.Chain(handoff.RemoveAllTools, handoff.KeepLast(4))
			}),
			agent.NewHandoff(french),
			agent.NewHandoff(english),
		}
	})

	return scenario{entry: triage, prompt: "Hola, ¿cómo estás?"}
}
