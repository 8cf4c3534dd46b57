package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentrelay/core"
)

// DefaultErrorMessage formats the result handed back to the model when a
// fault tolerant tool fails.
func DefaultErrorMessage(err error) string {
	return fmt.Sprintf("An error occurred while running the tool. Please try again. Error: %s", err)
}

// Result is the outcome of one tool call.
type Result struct {
	Call     core.FunctionCall
	Tool     Tool
	Output   any
	Err      error
	Duration time.Duration
}

// ErrorText returns the error message recorded on the result item, if any.
func (r Result) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Observer is notified around every tool execution.
//
// OnToolStart fires for every call in request order before any call runs.
// OnToolEnd fires in completion order. Calls into an Observer are serialized.
type Observer interface {
	OnToolStart(toolCtx *core.ToolContext, t Tool)
	OnToolEnd(toolCtx *core.ToolContext, t Tool, result Result)
}

// InvokerOptions configure an Invoker.
type InvokerOptions struct {
	// MaxParallel bounds concurrently running calls. Values < 1 mean no limit.
	MaxParallel int
	// ErrorMessage renders failures of fault tolerant tools.
	ErrorMessage func(err error) string
}

// Invoker executes the tool calls of one turn.
type Invoker struct {
	opts InvokerOptions
}

// NewInvoker creates an invoker.
func NewInvoker(optFns ...func(o *InvokerOptions)) *Invoker {
	opts := InvokerOptions{ErrorMessage: DefaultErrorMessage}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ErrorMessage == nil {
		opts.ErrorMessage = DefaultErrorMessage
	}
	return &Invoker{opts: opts}
}

type pendingCall struct {
	call    core.FunctionCall
	tool    Tool
	args    map[string]any
	toolCtx *core.ToolContext
}

// Invoke resolves every call against registry and executes them concurrently.
// Results are returned in request order.
//
// Resolution happens before anything executes: an unknown name fails the
// whole batch with core.ErrUnknownTool and invalid JSON arguments with
// core.ErrModelBehavior. A failing tool fails the batch with
// core.ErrToolExecutionFailed once every call has finished, unless the tool
// is FaultTolerant; the error text then becomes its output.
func (inv *Invoker) Invoke(
	runCtx *core.RunContext,
	agentName string,
	registry *Registry,
	calls []core.FunctionCall,
	observer Observer,
) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	pending := make([]pendingCall, len(calls))
	for i, fc := range calls {
		t, ok := registry.Lookup(fc.Name)
		if !ok {
			return nil, core.NewRunError(core.KindUnknownTool, nil, "agent %s requested unknown tool %q", agentName, fc.Name)
		}
		args, err := decodeArguments(fc.Arguments)
		if err != nil {
			return nil, core.NewRunError(core.KindModelBehavior, err, "invalid arguments for tool %q", fc.Name)
		}
		pending[i] = pendingCall{
			call:    fc,
			tool:    t,
			args:    args,
			toolCtx: core.NewToolContext(runCtx, agentName, fc),
		}
	}

	var obsMu sync.Mutex
	notify := func(fn func()) {
		if observer == nil {
			return
		}
		obsMu.Lock()
		defer obsMu.Unlock()
		fn()
	}

	for _, p := range pending {
		notify(func() { observer.OnToolStart(p.toolCtx, p.tool) })
	}

	results := make([]Result, len(pending))
	batchStart := time.Now()

	// Plain group: a failing call must not cancel its siblings, whose side
	// effects may already be in flight.
	var g errgroup.Group
	if inv.opts.MaxParallel > 0 {
		g.SetLimit(inv.opts.MaxParallel)
	}

	for i := range pending {
		p := pending[i]
		g.Go(func() error {
			res := inv.execute(p)
			results[i] = res
			notify(func() { observer.OnToolEnd(p.toolCtx, p.tool, res) })
			return nil
		})
	}
	_ = g.Wait()

	runCtx.LogDebug(
		"tool.batch.complete",
		"agent", agentName,
		"count", len(pending),
		"parallelism", inv.opts.MaxParallel,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	if err := runCtx.Err(); err != nil {
		return results, core.NewRunError(core.KindCanceled, err, "tool execution interrupted")
	}

	for i, res := range results {
		if res.Err == nil {
			continue
		}
		if IsFaultTolerant(res.Tool) {
			results[i].Output = inv.opts.ErrorMessage(res.Err)
			continue
		}
		return results, core.NewRunError(core.KindToolExecutionFailed, res.Err, "tool %q failed", res.Call.Name)
	}

	return results, nil
}

func (inv *Invoker) execute(p pendingCall) (res Result) {
	res = Result{Call: p.call, Tool: p.tool}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			p.toolCtx.LogError("tool.call.panic", "recover", r, "stack", string(debug.Stack()))
			res.Output = nil
			res.Err = &ToolError{Tool: p.call.Name, Message: fmt.Sprintf("panic: %v", r), Code: CodePanic}
		}
		res.Duration = time.Since(start)
	}()

	if err := p.toolCtx.Context().Err(); err != nil {
		res.Err = err
		return res
	}

	res.Output, res.Err = p.tool.Call(p.toolCtx, p.args)

	return res
}

func decodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}
	if args == nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	return args, nil
}
