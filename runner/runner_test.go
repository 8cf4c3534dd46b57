package runner

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
)

// lastToolResult returns the newest function response in req.
func lastToolResult(req model.Request) (core.FunctionResponse, bool) {
	for i := len(req.Contents) - 1; i >= 0; i-- {
		parts := req.Contents[i].Parts
		for j := len(parts) - 1; j >= 0; j-- {
			if fr, ok := parts[j].(core.FunctionResponsePart); ok {
				return fr.FunctionResponse, true
			}
		}
	}
	return core.FunctionResponse{}, false
}

func countFunctionCalls(req model.Request) int {
	n := 0
	for _, c := range req.Contents {
		n += len(c.FunctionCalls())
	}
	return n
}

type drawArgs struct {
	Max int `json:"max"`
}

func fixedNumberTool(v int) tool.Tool {
	return tool.NewTypedTool("random_number", "Generate a random number up to the provided max.", func(_ *core.ToolContext, in drawArgs) (int, error) {
		return v, nil
	})
}

func echoTool(name string) tool.Tool {
	return tool.NewFunctionTool(name, "echo", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		return name + " result", nil
	})
}

func requireKind(t *testing.T, err error, kind core.ErrorKind) *core.RunError {
	t.Helper()

	require.Error(t, err)
	var re *core.RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, kind, re.Kind)
	require.NotNil(t, re.Details)
	return re
}

// -------------------- Basic turn loop --------------------

func TestRun_SingleTurnWithoutTools(t *testing.T) {
	m := model.NewScriptedModel("scripted", model.Reply("4"))
	a := agent.New("math", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("You are a math tutor.")
		o.Model = m
		o.OutputGuardrails = []guardrail.Output{guardrail.Regexp("phone_number", regexp.MustCompile(`\d{5,}`))}
	})

	res, err := Run(context.Background(), a, Text("what is 2+2"))
	require.NoError(t, err)

	assert.Equal(t, "4", res.FinalOutput)
	assert.Equal(t, 1, res.Turns)
	assert.Same(t, a, res.LastAgent)
	require.Len(t, res.NewItems, 1)
	assert.Equal(t, core.ItemAssistantMessage, res.NewItems[0].Kind)
	assert.Equal(t, "math", res.NewItems[0].Agent)
	require.Len(t, res.OutputGuardrailResults, 1)
	assert.False(t, res.OutputGuardrailResults[0].Tripped())
	assert.Equal(t, core.Usage{Requests: 1, InputTokens: 10, OutputTokens: 5, TotalTokens: 15}, res.Usage)
	assert.Len(t, res.RawResponses, 1)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "You are a math tutor.", reqs[0].Instructions)
	assert.False(t, reqs[0].Stream)
	require.Len(t, reqs[0].Contents, 1)
	assert.Equal(t, "what is 2+2", reqs[0].Contents[0].Text())
}

func TestRun_NilAgent(t *testing.T) {
	_, err := Run(context.Background(), nil, Text("hi"))
	assert.ErrorIs(t, err, core.ErrUserError)
}

func TestRun_InvalidAgent(t *testing.T) {
	a := agent.New("dup", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("m", model.Reply("x"))
		o.Tools = []tool.Tool{echoTool("a"), echoTool("a")}
	})

	_, err := Run(context.Background(), a, Text("hi"))
	requireKind(t, err, core.KindUserError)
}

func TestRun_MissingModel(t *testing.T) {
	a := agent.New("nomodel", func(o *agent.Options) { o.ModelName = "gpt" })

	_, err := Run(context.Background(), a, Text("hi"))
	requireKind(t, err, core.KindUserError)
}

func TestRun_ModelProvider(t *testing.T) {
	m := model.NewScriptedModel("deepseek-chat", model.Reply("ok"))
	var asked string
	provider := model.ProviderFunc(func(name string) (model.Model, error) {
		asked = name
		return m, nil
	})
	a := agent.New("named", func(o *agent.Options) { o.ModelName = "deepseek-chat" })

	res, err := Run(context.Background(), a, Text("hi"), func(o *Options) { o.ModelProvider = provider })
	require.NoError(t, err)
	assert.Equal(t, "ok", res.FinalOutput)
	assert.Equal(t, "deepseek-chat", asked)
}

func TestRun_ModelFailure(t *testing.T) {
	boom := errors.New("backend down")
	a := agent.New("a", func(o *agent.Options) { o.Model = model.NewScriptedModel("m", model.Fail(boom)) })

	_, err := Run(context.Background(), a, Text("hi"))
	requireKind(t, err, core.KindModelFailed)
	assert.ErrorIs(t, err, boom)
}

func TestRun_DynamicInstructions(t *testing.T) {
	type user struct{ Name string }

	m := model.NewScriptedModel("m", model.Reply("hi John"))
	a := agent.New("greeter", func(o *agent.Options) {
		o.Model = m
		o.Instruction = agent.NewInstructionFromFunc(func(rc *core.RunContext, a *agent.Agent) (string, error) {
			u, _ := core.StateAs[user](rc)
			return "The user's name is " + u.Name + ". Help them with their questions.", nil
		})
	})

	_, err := Run(context.Background(), a, Text("hello"), func(o *Options) { o.Context = user{Name: "John"} })
	require.NoError(t, err)
	assert.Equal(t, "The user's name is John. Help them with their questions.", m.Requests()[0].Instructions)
}

func TestRun_InstructionError(t *testing.T) {
	a := agent.New("a", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("m", model.Reply("x"))
		o.Instruction = agent.NewInstructionFromFunc(func(*core.RunContext, *agent.Agent) (string, error) {
			return "", errors.New("no state")
		})
	})

	_, err := Run(context.Background(), a, Text("hi"))
	requireKind(t, err, core.KindUserError)
}

func TestRun_StructuredOutput(t *testing.T) {
	type weather struct {
		City string `json:"city"`
		Temp int    `json:"temp"`
	}

	m := model.NewScriptedModel("m", model.Reply(`{"city":"Tokyo","temp":21}`))
	a := agent.New("forecaster", func(o *agent.Options) {
		o.Model = m
		o.OutputType = agent.JSONOutput[weather]()
	})

	res, err := Run(context.Background(), a, Text("weather in tokyo"))
	require.NoError(t, err)

	w, ok := FinalOutputAs[weather](res)
	require.True(t, ok)
	assert.Equal(t, weather{City: "Tokyo", Temp: 21}, w)

	req := m.Requests()[0]
	require.NotNil(t, req.OutputSchema)
	assert.Equal(t, "weather", req.OutputSchema.Name)

	bad := agent.New("bad", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("m", model.Reply("sunny"))
		o.OutputType = agent.JSONOutput[weather]()
	})
	_, err = Run(context.Background(), bad, Text("weather"))
	requireKind(t, err, core.KindModelBehavior)
}

func TestRun_EmptyResponseRunsAgain(t *testing.T) {
	m := model.NewScriptedModel("m", model.Reply(""), model.Reply("done"))
	a := agent.New("a", func(o *agent.Options) { o.Model = m })

	res, err := Run(context.Background(), a, Text("hi"))
	require.NoError(t, err)
	assert.Equal(t, "done", res.FinalOutput)
	assert.Equal(t, 2, res.Turns)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := agent.New("a", func(o *agent.Options) { o.Model = model.NewScriptedModel("m", model.Reply("x")) })

	_, err := Run(ctx, a, Text("hi"))
	requireKind(t, err, core.KindCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

// -------------------- Tools --------------------

func TestRun_ToolThenFinal(t *testing.T) {
	m := model.NewScriptedModel("m",
		model.CallTools(core.FunctionCall{Name: "random_number", Arguments: `{"max":10}`}),
		func(req model.Request) (model.Response, error) {
			fr, ok := lastToolResult(req)
			if !ok {
				return model.Response{}, errors.New("no tool result")
			}
			return model.TextResponse("The number is " + fr.Response.(string)), nil
		},
	)
	a := agent.New("a", func(o *agent.Options) {
		o.Model = m
		o.Tools = []tool.Tool{fixedNumberTool(7)}
	})

	res, err := Run(context.Background(), a, Text("draw"))
	require.NoError(t, err)

	assert.Equal(t, "The number is 7", res.FinalOutput)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, 2, res.Usage.Requests)
	assert.Equal(t, 30, res.Usage.TotalTokens)

	kinds := make([]core.ItemKind, len(res.NewItems))
	for i, it := range res.NewItems {
		kinds[i] = it.Kind
	}
	assert.Equal(t, []core.ItemKind{core.ItemToolCall, core.ItemToolResult, core.ItemAssistantMessage}, kinds)
	assert.Equal(t, 7, res.NewItems[1].Output)

	defs := m.Requests()[0].Tools
	require.Len(t, defs, 1)
	assert.Equal(t, "random_number", defs[0].Function.Name)
}

func TestRun_StopOnFirstTool(t *testing.T) {
	m := model.NewScriptedModel("m", model.CallTools(
		core.FunctionCall{Name: "get_weather"},
		core.FunctionCall{Name: "get_time"},
	))
	a := agent.New("a", func(o *agent.Options) {
		o.Model = m
		o.Tools = []tool.Tool{echoTool("get_weather"), echoTool("get_time")}
		o.ToolUseBehavior = agent.StopOnFirstTool()
	})

	res, err := Run(context.Background(), a, Text("weather?"))
	require.NoError(t, err)

	assert.Equal(t, "get_weather result", res.FinalOutput)
	assert.Equal(t, 1, m.Calls())
	assert.Equal(t, 1, res.Turns)
}

func TestRun_StopAtTools(t *testing.T) {
	m := model.NewScriptedModel("m",
		model.CallTools(core.FunctionCall{Name: "lookup"}),
		model.CallTools(core.FunctionCall{Name: "submit"}),
	)
	a := agent.New("a", func(o *agent.Options) {
		o.Model = m
		o.Tools = []tool.Tool{echoTool("lookup"), echoTool("submit")}
		o.ToolUseBehavior = agent.StopAtTools("submit")
	})

	res, err := Run(context.Background(), a, Text("go"))
	require.NoError(t, err)
	assert.Equal(t, "submit result", res.FinalOutput)
	assert.Equal(t, 2, res.Turns)
}

func TestRun_MaxTurnsExceeded(t *testing.T) {
	m := model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "random_number", Arguments: `{"max":10}`}))
	a := agent.New("looper", func(o *agent.Options) {
		o.Model = m
		o.Tools = []tool.Tool{fixedNumberTool(1)}
	})

	_, err := Run(context.Background(), a, Text("loop"), func(o *Options) { o.MaxTurns = 3 })

	re := requireKind(t, err, core.KindMaxTurnsExceeded)
	assert.ErrorIs(t, err, core.ErrMaxTurnsExceeded)
	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, 3, re.Details.Turns)
	assert.Equal(t, "looper", re.Details.LastAgent)
	assert.Len(t, re.Details.NewItems, 6)
}

func TestRun_DefaultMaxTurns(t *testing.T) {
	m := model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "random_number", Arguments: `{"max":10}`}))
	a := agent.New("looper", func(o *agent.Options) {
		o.Model = m
		o.Tools = []tool.Tool{fixedNumberTool(1)}
	})

	_, err := Run(context.Background(), a, Text("loop"))
	assert.ErrorIs(t, err, core.ErrMaxTurnsExceeded)
	assert.Equal(t, DefaultMaxTurns, m.Calls())
}

func TestRun_UnknownTool(t *testing.T) {
	a := agent.New("a", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "does_not_exist"}))
	})

	_, err := Run(context.Background(), a, Text("hi"))
	re := requireKind(t, err, core.KindUnknownTool)
	require.Len(t, re.Details.NewItems, 1)
	assert.Equal(t, core.ItemToolCall, re.Details.NewItems[0].Kind)
}

func TestRun_ToolExecutionFailed(t *testing.T) {
	boom := errors.New("database unreachable")
	failing := func(optFns ...func(o *tool.FunctionOptions)) tool.Tool {
		return tool.NewFunctionTool("query", "", nil, func(*core.ToolContext, map[string]any) (any, error) {
			return nil, boom
		}, optFns...)
	}

	t.Run("fatal by default", func(t *testing.T) {
		a := agent.New("a", func(o *agent.Options) {
			o.Model = model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "query"}))
			o.Tools = []tool.Tool{failing()}
		})

		_, err := Run(context.Background(), a, Text("hi"))
		requireKind(t, err, core.KindToolExecutionFailed)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("fault tolerant", func(t *testing.T) {
		m := model.NewScriptedModel("m",
			model.CallTools(core.FunctionCall{Name: "query"}),
			func(req model.Request) (model.Response, error) {
				fr, _ := lastToolResult(req)
				return model.TextResponse("recovered from: " + fr.Error), nil
			},
		)
		a := agent.New("a", func(o *agent.Options) {
			o.Model = m
			o.Tools = []tool.Tool{failing(func(o *tool.FunctionOptions) { o.FaultTolerant = true })}
		})

		res, err := Run(context.Background(), a, Text("hi"))
		require.NoError(t, err)
		assert.Contains(t, res.FinalOutput, "database unreachable")
	})
}

func TestRun_ToolChoiceReset(t *testing.T) {
	m := model.NewScriptedModel("m",
		model.CallTools(core.FunctionCall{Name: "get_weather"}),
		model.Reply("sunny"),
	)
	forced := agent.New("a", func(o *agent.Options) {
		o.Model = m
		o.Tools = []tool.Tool{echoTool("get_weather")}
		o.Settings = model.Settings{ToolChoice: model.ToolChoiceRequired}
	})

	res, err := Run(context.Background(), forced, Text("weather"))
	require.NoError(t, err)
	assert.Equal(t, "sunny", res.FinalOutput)

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, model.ToolChoiceRequired, reqs[0].Settings.ToolChoice)
	assert.Empty(t, reqs[1].Settings.ToolChoice)
}

func TestRun_RunSettingsOverrideAgent(t *testing.T) {
	temp := 0.1
	m := model.NewScriptedModel("m", model.Reply("ok"))
	a := agent.New("a", func(o *agent.Options) {
		o.Model = m
		o.Settings = model.Settings{ToolChoice: model.ToolChoiceAuto}
	})

	_, err := Run(context.Background(), a, Text("hi"), func(o *Options) {
		o.Settings = model.Settings{Temperature: &temp}
	})
	require.NoError(t, err)

	s := m.Requests()[0].Settings
	require.NotNil(t, s.Temperature)
	assert.Equal(t, 0.1, *s.Temperature)
	assert.Equal(t, model.ToolChoiceAuto, s.ToolChoice)
}

// -------------------- Guardrails --------------------

func TestRun_InputGuardrailTripsBeforeProduction(t *testing.T) {
	m := model.NewScriptedModel("m", model.Reply("never"))
	var seen []core.Item
	a := agent.New("a", func(o *agent.Options) {
		o.Model = m
		o.InputGuardrails = []guardrail.Input{
			guardrail.NewInput("math_homework", func(_ *core.RunContext, _ string, input []core.Item) (guardrail.Result, error) {
				seen = input
				return guardrail.Result{TripwireTriggered: true, OutputInfo: "homework"}, nil
			}),
		}
	})

	_, err := Run(context.Background(), a, Text("solve 2x+3=11"))

	requireKind(t, err, core.KindInputGuardrailTripped)
	assert.ErrorIs(t, err, core.ErrInputGuardrailTripped)
	var tripErr *guardrail.TripwireError
	require.ErrorAs(t, err, &tripErr)
	assert.Equal(t, "homework", tripErr.First().Result.OutputInfo)

	assert.Equal(t, 0, m.Calls())
	require.Len(t, seen, 1)
	assert.Equal(t, "solve 2x+3=11", seen[0].Text())
}

func TestRun_OutputGuardrailTrips(t *testing.T) {
	a := agent.New("a", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("m", model.Reply("My phone number is 650-123-4567 or 6501234567"))
		o.OutputGuardrails = []guardrail.Output{guardrail.Regexp("phone_number", regexp.MustCompile(`\d{5,}`))}
	})

	_, err := Run(context.Background(), a, Text("what is your number?"))

	re := requireKind(t, err, core.KindOutputGuardrailTripped)
	var tripErr *guardrail.TripwireError
	require.ErrorAs(t, err, &tripErr)
	assert.Equal(t, "6501234567", tripErr.First().Result.OutputInfo)
	require.Len(t, re.Details.NewItems, 1)
}

func TestRun_GuardrailPurity(t *testing.T) {
	g := guardrail.Regexp("digits", regexp.MustCompile(`\d{5,}`))
	rc := core.NewRunContext(context.Background(), "r", nil, nil)

	for _, payload := range []string{"4", "123456", "no digits"} {
		first, err := g.Fn(rc, "a", payload)
		require.NoError(t, err)
		second, err := g.Fn(rc, "a", payload)
		require.NoError(t, err)
		assert.Equal(t, first.TripwireTriggered, second.TripwireTriggered, payload)
	}
}

func TestRun_GuardrailFunctionError(t *testing.T) {
	a := agent.New("a", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("m", model.Reply("x"))
		o.InputGuardrails = []guardrail.Input{
			guardrail.NewInput("broken", func(*core.RunContext, string, []core.Item) (guardrail.Result, error) {
				return guardrail.Result{}, errors.New("classifier offline")
			}),
		}
	})

	_, err := Run(context.Background(), a, Text("hi"))
	requireKind(t, err, core.KindUserError)
	assert.ErrorContains(t, err, "classifier offline")
}

func TestRun_GuardrailTripWinsOverSiblingError(t *testing.T) {
	m := model.NewScriptedModel("m", model.Reply("x"))
	a := agent.New("a", func(o *agent.Options) {
		o.Model = m
		o.InputGuardrails = []guardrail.Input{
			guardrail.NewInput("trips", func(*core.RunContext, string, []core.Item) (guardrail.Result, error) {
				return guardrail.Result{TripwireTriggered: true}, nil
			}),
			guardrail.NewInput("broken", func(*core.RunContext, string, []core.Item) (guardrail.Result, error) {
				return guardrail.Result{}, errors.New("offline")
			}),
		}
	})

	_, err := Run(context.Background(), a, Text("hi"))
	requireKind(t, err, core.KindInputGuardrailTripped)
	assert.Equal(t, 0, m.Calls())
	assert.ErrorContains(t, err, "offline")

	var tripErr *guardrail.TripwireError
	require.ErrorAs(t, err, &tripErr)
	assert.Equal(t, "trips", tripErr.First().Guardrail)
	assert.Len(t, tripErr.Tripped, 1)
}

// -------------------- Handoffs --------------------

// evenOddAgents builds the random number scenario: the start agent draws a
// number and requests a handoff in the same turn. Even numbers end the run
// with the number itself; odd numbers are handed to the multiply agent.
func evenOddAgents(v int) (*agent.Agent, *model.ScriptedModel, *model.ScriptedModel) {
	multModel := model.NewScriptedModel("mult", func(req model.Request) (model.Response, error) {
		for _, c := range req.Contents {
			for _, p := range c.Parts {
				r, ok := p.(core.FunctionResponsePart)
				if !ok || r.FunctionResponse.Name != "random_number" {
					continue
				}
				n, err := strconv.Atoi(r.FunctionResponse.Response.(string))
				if err != nil {
					return model.Response{}, err
				}
				return model.TextResponse(strconv.Itoa(n * 2)), nil
			}
		}
		return model.Response{}, errors.New("no number in history")
	})
	multiply := agent.New("multiply_agent", func(o *agent.Options) {
		o.Model = multModel
		o.HandoffDescription = "Multiplies the number by 2."
	})

	startModel := model.NewScriptedModel("start", model.CallTools(
		core.FunctionCall{Name: "random_number", Arguments: `{"max":10}`},
		core.FunctionCall{Name: "transfer_to_multiply_agent"},
	))
	start := agent.New("start_agent", func(o *agent.Options) {
		o.Model = startModel
		o.Tools = []tool.Tool{fixedNumberTool(v)}
		o.Handoffs = agent.HandoffsTo(multiply)
		o.ToolUseBehavior = agent.CustomToolUse(func(_ *core.RunContext, results []tool.Result) (agent.ToolsToFinalOutput, error) {
			n, _ := results[0].Output.(int)
			if n%2 == 0 {
				return agent.ToolsToFinalOutput{IsFinalOutput: true, FinalOutput: n}, nil
			}
			return agent.ToolsToFinalOutput{}, nil
		})
	})

	return start, startModel, multModel
}

func TestRun_EvenNumberStopsAtStartAgent(t *testing.T) {
	start, _, multModel := evenOddAgents(4)

	res, err := Run(context.Background(), start, Text("Generate a random number between 0 and 10."))
	require.NoError(t, err)

	assert.Equal(t, 4, res.FinalOutput)
	assert.Equal(t, 1, res.Turns)
	assert.Equal(t, "start_agent", res.LastAgent.Name())
	assert.Equal(t, 0, multModel.Calls())

	for _, it := range res.NewItems {
		assert.NotEqual(t, core.ItemHandoffResult, it.Kind)
		assert.Equal(t, "start_agent", it.Agent)
	}
}

func TestRun_OddNumberHandsOff(t *testing.T) {
	start, _, multModel := evenOddAgents(7)

	res, err := Run(context.Background(), start, Text("Generate a random number between 0 and 10."))
	require.NoError(t, err)

	assert.Equal(t, "14", res.FinalOutput)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, "multiply_agent", res.LastAgent.Name())
	assert.Equal(t, 1, multModel.Calls())

	// Items before the handoff record belong to the source, items after it
	// to the target.
	idx := -1
	for i, it := range res.NewItems {
		if it.Kind == core.ItemHandoffResult {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "start_agent", res.NewItems[idx].SourceAgent)
	assert.Equal(t, "multiply_agent", res.NewItems[idx].TargetAgent)
	for i, it := range res.NewItems {
		if i <= idx {
			assert.Equal(t, "start_agent", it.Agent, "item %d", i)
		} else {
			assert.Equal(t, "multiply_agent", it.Agent, "item %d", i)
		}
	}
}

func TestRun_HandoffCarriesFullHistoryByDefault(t *testing.T) {
	start, _, multModel := evenOddAgents(3)

	_, err := Run(context.Background(), start, Items([]core.Item{
		core.NewUserMessage("earlier question"),
		core.NewAssistantMessage("start_agent", "earlier answer"),
		core.NewUserMessage("draw"),
	}))
	require.NoError(t, err)

	req := multModel.Requests()[0]
	assert.Equal(t, "earlier question", req.Contents[0].Text())
	assert.Equal(t, 2, countFunctionCalls(req))
}

func TestRun_HandoffInputFilter(t *testing.T) {
	targetModel := model.NewScriptedModel("target", model.Reply("hola"))
	spanish := agent.New("spanish_agent", func(o *agent.Options) { o.Model = targetModel })

	startModel := model.NewScriptedModel("start", model.CallTools(core.FunctionCall{Name: "transfer_to_spanish_agent"}))
	triage := agent.New("triage", func(o *agent.Options) {
		o.Model = startModel
		o.Handoffs = []agent.Handoff{agent.NewHandoff(spanish, func(h *agent.Handoff) {
			h.InputFilter = handoff.Chain(handoff.RemoveAllTools, handoff.DropOldest(1))
		})}
	})

	res, err := Run(context.Background(), triage, Items([]core.Item{
		core.NewUserMessage("first message"),
		core.NewUserMessage("Hola, ¿cómo estás?"),
	}))
	require.NoError(t, err)
	assert.Equal(t, "hola", res.FinalOutput)

	req := targetModel.Requests()[0]
	assert.Equal(t, 0, countFunctionCalls(req))
	require.Len(t, req.Contents, 1)
	assert.Equal(t, "Hola, ¿cómo estás?", req.Contents[0].Text())

	// The audit trail is not affected by the filter.
	assert.Len(t, res.NewItems, 3)
}

func TestRun_OnHandoffCallback(t *testing.T) {
	var args string
	target := agent.New("target", func(o *agent.Options) { o.Model = model.NewScriptedModel("t", model.Reply("done")) })
	a := agent.New("source", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("s", model.CallTools(core.FunctionCall{Name: "transfer_to_target", Arguments: `{"reason":"x"}`}))
		o.Handoffs = []agent.Handoff{agent.NewHandoff(target, func(h *agent.Handoff) {
			h.OnHandoff = func(_ *core.RunContext, a string) error {
				args = a
				return nil
			}
		})}
	})

	_, err := Run(context.Background(), a, Text("hi"))
	require.NoError(t, err)
	assert.Equal(t, `{"reason":"x"}`, args)
}

func TestRun_MultipleHandoffsFirstWins(t *testing.T) {
	first := agent.New("first", func(o *agent.Options) { o.Model = model.NewScriptedModel("f", model.Reply("from first")) })
	second := agent.New("second", func(o *agent.Options) { o.Model = model.NewScriptedModel("s", model.Reply("from second")) })
	triage := agent.New("triage", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("t", model.CallTools(
			core.FunctionCall{Name: "transfer_to_first"},
			core.FunctionCall{Name: "transfer_to_second"},
		))
		o.Handoffs = agent.HandoffsTo(first, second)
	})

	res, err := Run(context.Background(), triage, Text("hi"))
	require.NoError(t, err)
	assert.Equal(t, "from first", res.FinalOutput)

	var ignored int
	for _, it := range res.NewItems {
		if it.Kind == core.ItemToolResult && it.Output == multipleHandoffsMessage {
			ignored++
		}
	}
	assert.Equal(t, 1, ignored)
}

func TestRun_HandoffTargetUnavailable(t *testing.T) {
	t.Run("unknown handoff name", func(t *testing.T) {
		a := agent.New("a", func(o *agent.Options) {
			o.Model = model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "transfer_to_ghost"}))
		})

		_, err := Run(context.Background(), a, Text("hi"))
		requireKind(t, err, core.KindHandoffTargetUnavailable)
	})

	t.Run("edge without target", func(t *testing.T) {
		a := agent.New("a", func(o *agent.Options) {
			o.Model = model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "escalate"}))
			o.Handoffs = []agent.Handoff{{ToolName: "escalate"}}
		})

		_, err := Run(context.Background(), a, Text("hi"))
		assert.ErrorIs(t, err, core.ErrHandoffTargetUnavailable)
	})

	t.Run("custom handoff name of another agent", func(t *testing.T) {
		support := agent.New("support")
		billing := agent.New("billing", func(o *agent.Options) {
			o.Model = model.NewScriptedModel("b", model.CallTools(core.FunctionCall{Name: "escalate"}))
		})
		triage := agent.New("triage", func(o *agent.Options) {
			o.Model = model.NewScriptedModel("t", model.CallTools(core.FunctionCall{Name: "transfer_to_billing"}))
			o.Handoffs = []agent.Handoff{
				agent.NewHandoff(billing),
				agent.NewHandoff(support, func(h *agent.Handoff) { h.ToolName = "escalate" }),
			}
		})

		_, err := Run(context.Background(), triage, Text("hi"))
		re := requireKind(t, err, core.KindHandoffTargetUnavailable)
		assert.Equal(t, "billing", re.Details.LastAgent)
	})
}

func TestRun_HandoffGuardrailRerunPolicy(t *testing.T) {
	build := func() *agent.Agent {
		guarded := agent.New("guarded", func(o *agent.Options) {
			o.Model = model.NewScriptedModel("g", model.Reply("guarded answer"))
			o.InputGuardrails = []guardrail.Input{
				guardrail.NewInput("no_transfers", func(_ *core.RunContext, _ string, items []core.Item) (guardrail.Result, error) {
					for _, it := range items {
						if it.Kind == core.ItemHandoffResult {
							return guardrail.Result{TripwireTriggered: true}, nil
						}
					}
					return guardrail.Result{}, nil
				}),
			}
		})
		return agent.New("entry", func(o *agent.Options) {
			o.Model = model.NewScriptedModel("e", model.CallTools(core.FunctionCall{Name: "transfer_to_guarded"}))
			o.Handoffs = agent.HandoffsTo(guarded)
		})
	}

	_, err := Run(context.Background(), build(), Text("hi"))
	re := requireKind(t, err, core.KindInputGuardrailTripped)
	assert.Equal(t, "guarded", re.Details.LastAgent)

	res, err := Run(context.Background(), build(), Text("hi"), func(o *Options) { o.RerunHandoffGuardrails = RerunNever })
	require.NoError(t, err)
	assert.Equal(t, "guarded answer", res.FinalOutput)
}

func TestRun_HandoffCycleIsBoundedByMaxTurns(t *testing.T) {
	ping := agent.New("ping", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("p", model.CallTools(core.FunctionCall{Name: "transfer_to_pong"}))
	})
	pong := agent.New("pong", func(o *agent.Options) {
		o.Model = model.NewScriptedModel("q", model.CallTools(core.FunctionCall{Name: "transfer_to_ping"}))
		o.Handoffs = agent.HandoffsTo(ping)
	})
	ping.AddHandoffs(agent.NewHandoff(pong))

	_, err := Run(context.Background(), ping, Text("hi"), func(o *Options) { o.MaxTurns = 5 })
	assert.ErrorIs(t, err, core.ErrMaxTurnsExceeded)
}

// -------------------- Hooks --------------------

type recordingHooks struct {
	NoOpRunHooks
	mu     sync.Mutex
	events []string
}

func (h *recordingHooks) add(ev string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHooks) OnAgentStart(_ *core.RunContext, a *agent.Agent) { h.add("start:" + a.Name()) }
func (h *recordingHooks) OnAgentEnd(_ *core.RunContext, a *agent.Agent, out any) {
	h.add("end:" + a.Name() + ":" + core.Stringify(out))
}
func (h *recordingHooks) OnHandoff(_ *core.RunContext, from, to *agent.Agent) {
	h.add("handoff:" + from.Name() + "->" + to.Name())
}
func (h *recordingHooks) OnToolStart(_ *core.RunContext, a *agent.Agent, t tool.Tool) {
	h.add("tool_start:" + t.Name())
}
func (h *recordingHooks) OnToolEnd(_ *core.RunContext, a *agent.Agent, t tool.Tool, out any) {
	h.add("tool_end:" + t.Name() + ":" + core.Stringify(out))
}

type recordingAgentHooks struct {
	agent.NoOpHooks
	events []string
}

func (h *recordingAgentHooks) OnStart(_ *core.RunContext, a *agent.Agent) {
	h.events = append(h.events, "start")
}
func (h *recordingAgentHooks) OnHandoff(_ *core.RunContext, a *agent.Agent, source *agent.Agent) {
	h.events = append(h.events, "handoff_from:"+source.Name())
}
func (h *recordingAgentHooks) OnEnd(_ *core.RunContext, a *agent.Agent, out any) {
	h.events = append(h.events, "end")
}

func TestRun_Hooks(t *testing.T) {
	start, _, _ := evenOddAgents(5)
	targetHooks := &recordingAgentHooks{}
	h, _ := start.LookupHandoff("transfer_to_multiply_agent")
	target := h.Target.Clone(func(o *agent.Options) { o.Hooks = targetHooks })
	start = start.Clone(func(o *agent.Options) { o.Handoffs = agent.HandoffsTo(target) })

	hooks := &recordingHooks{}
	_, err := Run(context.Background(), start, Text("draw"), func(o *Options) { o.Hooks = hooks })
	require.NoError(t, err)

	assert.Equal(t, []string{
		"start:start_agent",
		"tool_start:random_number",
		"tool_end:random_number:5",
		"handoff:start_agent->multiply_agent",
		"start:multiply_agent",
		"end:multiply_agent:10",
	}, hooks.events)
	assert.Equal(t, []string{"handoff_from:start_agent", "start", "end"}, targetHooks.events)
}

// -------------------- Multi-run conversations --------------------

func TestRun_ConcurrentRunsShareAgent(t *testing.T) {
	m := model.NewScriptedModel("m", func(req model.Request) (model.Response, error) {
		if _, ok := lastToolResult(req); ok {
			return model.TextResponse("done: " + req.Contents[0].Text()), nil
		}
		return model.ToolCallResponse(
			core.FunctionCall{Name: "lookup"},
			core.FunctionCall{Name: "random_number", Arguments: `{"max":10}`},
		), nil
	})
	a := agent.New("worker", func(o *agent.Options) {
		o.Model = m
		o.Tools = []tool.Tool{echoTool("lookup"), fixedNumberTool(3)}
	})

	const runs = 8

	var wg sync.WaitGroup
	results := make([]*RunResult, runs)
	errs := make([]error, runs)
	for i := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = Run(context.Background(), a, Text("job "+strconv.Itoa(i)))
		}()
	}
	wg.Wait()

	for i := range runs {
		require.NoError(t, errs[i])
		assert.Equal(t, "done: job "+strconv.Itoa(i), results[i].FinalOutput)
		assert.Equal(t, 2, results[i].Turns)
		assert.Len(t, results[i].NewItems, 5)
	}
	assert.Equal(t, 2*runs, m.Calls())
}

func TestRunResult_ToInputList(t *testing.T) {
	m := model.NewScriptedModel("m", model.Reply("San Francisco"), model.Reply("California"))
	a := agent.New("a", func(o *agent.Options) { o.Model = m })

	first, err := Run(context.Background(), a, Text("What city is the Golden Gate Bridge in?"))
	require.NoError(t, err)

	next := append(first.ToInputList(), core.NewUserMessage("What state is it in?"))
	second, err := Run(context.Background(), a, Items(next))
	require.NoError(t, err)
	assert.Equal(t, "California", second.FinalOutput)

	req := m.Requests()[1]
	require.Len(t, req.Contents, 3)
	assert.Equal(t, "San Francisco", req.Contents[1].Text())
	assert.Len(t, second.ToInputList(), 4)
	assert.Equal(t, "San Francisco", TextMessageOutputs(first.NewItems))
	assert.Empty(t, TextMessageOutput(core.NewUserMessage("x")))
}

func TestRunner_Defaults(t *testing.T) {
	m := model.NewScriptedModel("m", model.CallTools(core.FunctionCall{Name: "random_number", Arguments: `{"max":10}`}))
	a := agent.New("a", func(o *agent.Options) {
		o.Model = m
		o.Tools = []tool.Tool{fixedNumberTool(1)}
	})

	r := New(func(o *Options) { o.MaxTurns = 2 })

	_, err := r.Run(context.Background(), a, Text("hi"))
	assert.ErrorIs(t, err, core.ErrMaxTurnsExceeded)
	assert.Equal(t, 2, m.Calls())

	_, err = r.Run(context.Background(), a, Text("hi"), func(o *Options) { o.MaxTurns = 1 })
	assert.ErrorIs(t, err, core.ErrMaxTurnsExceeded)
	assert.Equal(t, 3, m.Calls())
}
