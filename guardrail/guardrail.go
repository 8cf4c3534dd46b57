// Package guardrail evaluates input and output checks around an agent turn.
//
// Guardrails of one stage run concurrently and always run to completion: a
// trip in one never cancels the others, so every outcome is observable. All
// trips of a stage are reported together in a single *TripwireError.
package guardrail

import (
	"errors"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentrelay/core"
)

// Stage identifies where a guardrail runs.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// Result is what a guardrail function reports.
type Result struct {
	// TripwireTriggered halts the run when true.
	TripwireTriggered bool
	// OutputInfo carries arbitrary diagnostics for the caller.
	OutputInfo any
}

// InputFunc checks the conversation an agent is about to work on.
type InputFunc func(runCtx *core.RunContext, agentName string, input []core.Item) (Result, error)

// OutputFunc checks an agent's final output.
type OutputFunc func(runCtx *core.RunContext, agentName string, output any) (Result, error)

// Input is a named input guardrail.
type Input struct {
	Name string
	Fn   InputFunc
}

// Output is a named output guardrail.
type Output struct {
	Name string
	Fn   OutputFunc
}

// NewInput creates an input guardrail.
func NewInput(name string, fn InputFunc) Input { return Input{Name: name, Fn: fn} }

// NewOutput creates an output guardrail.
func NewOutput(name string, fn OutputFunc) Output { return Output{Name: name, Fn: fn} }

// Outcome records one evaluated guardrail.
type Outcome struct {
	Stage     Stage
	Guardrail string
	Agent     string
	Result    Result
}

// Tripped reports whether the guardrail triggered its tripwire.
func (o Outcome) Tripped() bool { return o.Result.TripwireTriggered }

// TripwireError lists every tripped guardrail of a stage in declaration order.
type TripwireError struct {
	Stage   Stage
	Tripped []Outcome
}

func (e *TripwireError) Error() string {
	names := make([]string, len(e.Tripped))
	for i, o := range e.Tripped {
		names[i] = o.Guardrail
	}
	return fmt.Sprintf("%s guardrail tripwire triggered: %s", e.Stage, strings.Join(names, ", "))
}

// First returns the first tripped outcome.
func (e *TripwireError) First() Outcome {
	if len(e.Tripped) == 0 {
		return Outcome{}
	}
	return e.Tripped[0]
}

// EvaluateInput runs guards concurrently against input. It returns every
// outcome in declaration order. Any trip yields a *TripwireError, joined with
// the function errors of failed guardrails if there are any. Without a trip,
// function errors are returned on their own.
func EvaluateInput(runCtx *core.RunContext, agentName string, guards []Input, input []core.Item) ([]Outcome, error) {
	fns := make([]func() (Result, error), len(guards))
	names := make([]string, len(guards))
	for i, g := range guards {
		names[i] = g.Name
		fns[i] = func() (Result, error) { return g.Fn(runCtx, agentName, input) }
	}
	return evaluate(runCtx, StageInput, agentName, names, fns)
}

// EvaluateOutput runs guards concurrently against an agent's final output.
func EvaluateOutput(runCtx *core.RunContext, agentName string, guards []Output, output any) ([]Outcome, error) {
	fns := make([]func() (Result, error), len(guards))
	names := make([]string, len(guards))
	for i, g := range guards {
		names[i] = g.Name
		fns[i] = func() (Result, error) { return g.Fn(runCtx, agentName, output) }
	}
	return evaluate(runCtx, StageOutput, agentName, names, fns)
}

func evaluate(runCtx *core.RunContext, stage Stage, agentName string, names []string, fns []func() (Result, error)) ([]Outcome, error) {
	if len(fns) == 0 {
		return nil, nil
	}

	outcomes := make([]Outcome, len(fns))
	errs := make([]error, len(fns))

	var g errgroup.Group
	for i, fn := range fns {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					runCtx.LogError("guardrail.panic", "stage", string(stage), "guardrail", names[i], "recover", r, "stack", string(debug.Stack()))
					errs[i] = fmt.Errorf("guardrail %q panicked: %v", names[i], r)
				}
			}()

			res, err := fn()
			if err != nil {
				errs[i] = fmt.Errorf("guardrail %q: %w", names[i], err)
				return nil
			}
			outcomes[i] = Outcome{Stage: stage, Guardrail: names[i], Agent: agentName, Result: res}
			return nil
		})
	}
	_ = g.Wait()

	var (
		evaluated []Outcome
		tripped   []Outcome
	)
	for i, o := range outcomes {
		if errs[i] != nil {
			continue
		}
		evaluated = append(evaluated, o)
		if o.Tripped() {
			tripped = append(tripped, o)
		}
	}
	fnErr := errors.Join(errs...)

	runCtx.LogDebug("guardrail.evaluated", "stage", string(stage), "agent", agentName, "count", len(evaluated), "tripped", len(tripped))

	// Trips are reported even when a sibling guardrail failed.
	if len(tripped) > 0 {
		tripErr := &TripwireError{Stage: stage, Tripped: tripped}
		if fnErr != nil {
			return evaluated, errors.Join(tripErr, fnErr)
		}
		return evaluated, tripErr
	}
	if fnErr != nil {
		return nil, fnErr
	}
	return evaluated, nil
}

// Regexp returns an output guardrail that trips when the stringified output
// matches re. OutputInfo holds the first match.
func Regexp(name string, re *regexp.Regexp) Output {
	return NewOutput(name, func(_ *core.RunContext, _ string, output any) (Result, error) {
		match := re.FindString(core.Stringify(output))
		if match == "" {
			return Result{}, nil
		}
		return Result{TripwireTriggered: true, OutputInfo: match}, nil
	})
}
