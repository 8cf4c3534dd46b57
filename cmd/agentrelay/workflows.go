package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/runner"
)

const (
	parallelTranslations = 3
	maxJudgeRounds       = 5
)

// parallelizationScenario translates the prompt several times concurrently
// and lets a picker agent choose the best translation.
func parallelizationScenario() scenario {
	spanish := translator("spanish_agent", "Spanish")
	picker := agent.New("translation_picker", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("You are given a user message and several Spanish translations of it. " +
			"Pick the most accurate and natural one and output it verbatim, without any explanation.")
	})

	workflow := func(ctx context.Context, a *app, prompt string) error {
		outputs := make([]string, parallelTranslations)

		g, gctx := errgroup.WithContext(ctx)
		for i := range outputs {
			g.Go(func() error {
				res, err := a.runner.Run(gctx, spanish, runner.Text(prompt))
				if err != nil {
					return err
				}
				outputs[i] = runner.TextMessageOutputs(res.NewItems)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return describeError(err)
		}

		fmt.Fprintln(a.out, "Translations:")
		for i, out := range outputs {
			fmt.Fprintf(a.out, "%d. %s\n", i+1, out)
		}

		best, err := a.runner.Run(ctx, picker, runner.Text(fmt.Sprintf("Input: %s\n\nTranslations:\n%s", prompt, strings.Join(outputs, "\n\n"))))
		if err != nil {
			return describeError(err)
		}
		fmt.Fprintf(a.out, "Best translation: %s\n", best.FinalOutputText())
		return nil
	}

	return scenario{
		entry:    spanish,
		helpers:  []*agent.Agent{picker},
		prompt:   "Good morning, how are you today?",
		workflow: workflow,
	}
}

type evaluationFeedback struct {
	Feedback string `json:"feedback" jsonschema:"description=What to improve"`
	Score    string `json:"score" jsonschema:"enum=pass,enum=needs_improvement,enum=fail"`
}

// judgeScenario refines a story outline until a judge agent accepts it.
func judgeScenario() scenario {
	generator := agent.New("story_outline_generator", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("You generate a very short story outline based on the user's input. " +
			"If there is any feedback provided, use it to improve the outline.")
	})
	judge := agent.New("evaluator", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("You evaluate a story outline and decide if it's good enough. " +
			"If it's not good enough, you provide feedback on what needs to be improved. " +
			"Never give it a pass on the first try.")
		o.OutputType = agent.JSONOutput[evaluationFeedback]()
	})

	workflow := func(ctx context.Context, a *app, prompt string) error {
		input := []core.Item{core.NewUserMessage(prompt)}

		for round := 1; round <= maxJudgeRounds; round++ {
			res, err := a.runner.Run(ctx, generator, runner.Items(input))
			if err != nil {
				return describeError(err)
			}
			input = res.ToInputList()
			outline := runner.TextMessageOutputs(res.NewItems)
			fmt.Fprintf(a.out, "Outline (round %d):\n%s\n", round, outline)

			verdict, err := a.runner.Run(ctx, judge, runner.Items(input))
			if err != nil {
				return describeError(err)
			}
			fb, ok := runner.FinalOutputAs[evaluationFeedback](verdict)
			if !ok {
				return fmt.Errorf("evaluator returned %T", verdict.FinalOutput)
			}
			fmt.Fprintf(a.out, "Evaluator score: %s\n", fb.Score)

			if fb.Score == "pass" {
				fmt.Fprintf(a.out, "Final story outline:\n%s\n", outline)
				return nil
			}
			input = append(input, core.NewUserMessage("Feedback: "+fb.Feedback))
		}

		return fmt.Errorf("outline not accepted after %d rounds", maxJudgeRounds)
	}

	return scenario{
		entry:    generator,
		helpers:  []*agent.Agent{judge},
		prompt:   "A detective story set on Mars.",
		workflow: workflow,
	}
}

type outlineCheck struct {
	GoodQuality bool `json:"good_quality"`
	IsSciFi     bool `json:"is_scifi"`
}

var errOutlineRejected = errors.New("outline rejected")

// deterministicScenario chains outline, check and story runs, stopping when
// the check fails.
func deterministicScenario() scenario {
	outliner := agent.New("story_outline_agent", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("Generate a very short story outline based on the user's input.")
	})
	checker := agent.New("outline_checker_agent", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("Read the given story outline, and judge the quality. Also, determine if it is a scifi story.")
		o.OutputType = agent.JSONOutput[outlineCheck]()
	})
	writer := agent.New("story_agent", func(o *agent.Options) {
		o.Instruction = agent.NewInstructionFromText("Write a short story based on the given outline.")
	})

	workflow := func(ctx context.Context, a *app, prompt string) error {
		outline, err := a.runner.Run(ctx, outliner, runner.Text(prompt))
		if err != nil {
			return describeError(err)
		}
		fmt.Fprintln(a.out, "Outline generated")

		checked, err := a.runner.Run(ctx, checker, runner.Text(outline.FinalOutputText()))
		if err != nil {
			return describeError(err)
		}
		check, ok := runner.FinalOutputAs[outlineCheck](checked)
		if !ok {
			return fmt.Errorf("outline checker returned %T", checked.FinalOutput)
		}
		if !check.GoodQuality {
			return fmt.Errorf("%w: quality is not good enough", errOutlineRejected)
		}
		if !check.IsSciFi {
			return fmt.Errorf("%w: not a scifi story", errOutlineRejected)
		}
		fmt.Fprintln(a.out, "Outline is good quality and a scifi story")

		story, err := a.runner.Run(ctx, writer, runner.Text(outline.FinalOutputText()))
		if err != nil {
			return describeError(err)
		}
		fmt.Fprintf(a.out, "Story:\n%s\n", story.FinalOutputText())
		return nil
	}

	return scenario{
		entry:    outliner,
		helpers:  []*agent.Agent{checker, writer},
		prompt:   "A story about the first colony on Titan.",
		workflow: workflow,
	}
}
