package runner

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/handoff"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/observability"
	"github.com/hupe1980/agentrelay/tool"
)

const (
	multipleHandoffsMessage = "Multiple handoffs detected, ignoring this one."
	handoffSkippedMessage   = "Handoff not taken: the run completed with a tool output."
)

// Runner executes runs with a shared set of default options. It is safe for
// concurrent use; every run owns its own state.
type Runner struct {
	opts Options
}

// New constructs a Runner with optional overrides.
func New(optFns ...func(o *Options)) *Runner {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{opts: opts}
}

var defaultRunner = New()

// Run executes a run with default options and blocks until it ends.
func Run(ctx context.Context, a *agent.Agent, input Input, optFns ...func(o *Options)) (*RunResult, error) {
	return defaultRunner.Run(ctx, a, input, optFns...)
}

// RunStreamed starts a run with default options and returns immediately.
func RunStreamed(ctx context.Context, a *agent.Agent, input Input, optFns ...func(o *Options)) *StreamedRun {
	return defaultRunner.RunStreamed(ctx, a, input, optFns...)
}

func (r *Runner) options(optFns []func(o *Options)) Options {
	opts := r.opts
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.normalize()
	return opts
}

// Run executes a run and blocks until it ends. Per call optFns override the
// runner's defaults.
func (r *Runner) Run(ctx context.Context, a *agent.Agent, input Input, optFns ...func(o *Options)) (*RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if a == nil {
		return nil, core.NewRunError(core.KindUserError, nil, "agent must not be nil")
	}
	return newRunState(ctx, a, input, r.options(optFns), nil).run()
}

// RunStreamed starts a run in the background. Model calls request token
// deltas, which surface as RawResponseEvent values.
func (r *Runner) RunStreamed(ctx context.Context, a *agent.Agent, input Input, optFns ...func(o *Options)) *StreamedRun {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	s := &StreamedRun{
		queue:  newEventQueue(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer cancel()

		var (
			res *RunResult
			err error
		)
		if a == nil {
			err = core.NewRunError(core.KindUserError, nil, "agent must not be nil")
		} else {
			res, err = newRunState(ctx, a, input, r.options(optFns), s.queue.push).run()
		}

		s.result, s.err = res, err
		if err != nil {
			s.queue.push(RunErrorEvent{Err: err})
		} else {
			s.queue.push(RunCompleteEvent{Result: res})
		}
		s.queue.close()
		close(s.done)
	}()

	return s
}

// runOptionsKey carries the options of the enclosing run to nested runs.
type runOptionsKey struct{}

type handoffCall struct {
	call core.FunctionCall
	edge agent.Handoff
}

// runState is the exclusively owned state of one run.
type runState struct {
	opts    Options
	rc      *core.RunContext
	spanCtx context.Context
	emit    func(StreamEvent)

	input []core.Item

	// The active agent sees inputHistory + preItems + turnItems. newItems
	// records everything produced, unaffected by handoff filters.
	inputHistory []core.Item
	preItems     []core.Item
	turnItems    []core.Item
	newItems     []core.Item

	current *agent.Agent
	limiter *core.TurnLimiter
	invoker *tool.Invoker

	rawResponses           []model.Response
	inputGuardrailResults  []guardrail.Outcome
	outputGuardrailResults []guardrail.Outcome
	toolChoiceReset        map[*agent.Agent]bool

	// handoffNames holds every handoff tool name of the agent graph
	// reachable from the entry agent.
	handoffNames map[string]bool
}

func newRunState(ctx context.Context, a *agent.Agent, input Input, opts Options, emit func(StreamEvent)) *runState {
	var items []core.Item
	if input != nil {
		items = input.items()
	}

	ctx = context.WithValue(ctx, runOptionsKey{}, opts)

	return &runState{
		opts:         opts,
		rc:           core.NewRunContext(ctx, opts.RunID, opts.Context, opts.Logger),
		emit:         emit,
		input:        items,
		inputHistory: append([]core.Item(nil), items...),
		current:      a,
		limiter:      core.NewTurnLimiter(opts.MaxTurns),
		invoker: tool.NewInvoker(func(o *tool.InvokerOptions) {
			o.MaxParallel = opts.MaxToolParallelism
		}),
		toolChoiceReset: make(map[*agent.Agent]bool),
		handoffNames:    reachableHandoffNames(a),
	}
}

func reachableHandoffNames(entry *agent.Agent) map[string]bool {
	names := map[string]bool{}
	if entry == nil {
		return names
	}

	seen := map[*agent.Agent]bool{}
	queue := []*agent.Agent{entry}
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		if seen[a] {
			continue
		}
		seen[a] = true
		for _, h := range a.Handoffs() {
			names[h.Name()] = true
			if h.Target != nil {
				queue = append(queue, h.Target)
			}
		}
	}
	return names
}

// isHandoffName reports whether name looks like a handoff the active agent
// does not offer.
func (s *runState) isHandoffName(name string) bool {
	return strings.HasPrefix(name, agent.HandoffToolPrefix) || s.handoffNames[name]
}

func (s *runState) run() (res *RunResult, err error) {
	start := time.Now()
	startAgent := s.current.Name()

	ctx, span := observability.StartRun(s.rc.Context, s.opts.Tracer, s.rc.RunID, startAgent)
	s.spanCtx = ctx

	defer func() {
		status := "completed"
		if err != nil {
			re := s.fail(err)
			status = string(re.Kind)
			err = re
		}
		s.opts.Metrics.RecordRun(s.spanCtx, startAgent, status, s.limiter.Count(), time.Since(start))
		observability.EndSpan(span, err)
	}()

	if err := s.current.Validate(); err != nil {
		return nil, core.NewRunError(core.KindUserError, err, "invalid agent")
	}

	s.rc.LogInfo("run.start", "agent", startAgent, "max_turns", s.opts.MaxTurns, "input_items", len(s.input))

	s.emitEvent(AgentUpdatedEvent{Agent: s.current})
	s.startAgent()

	if err := s.runInputGuardrails(s.current, s.input); err != nil {
		return nil, err
	}

	for {
		if err := s.rc.Err(); err != nil {
			return nil, core.NewRunError(core.KindCanceled, err, "run interrupted")
		}

		output, done, err := s.turn()
		if err != nil {
			return nil, err
		}
		if done {
			return s.finish(output)
		}
	}
}

// turn runs one PRODUCE step and its side effects. done reports that output
// is the candidate final output.
func (s *runState) turn() (output any, done bool, err error) {
	a := s.current

	if err := s.limiter.Increment(); err != nil {
		return nil, false, core.NewRunError(core.KindMaxTurnsExceeded, nil, "max turns (%d) exceeded", s.opts.MaxTurns)
	}
	turn := s.limiter.Count()

	resp, err := s.produce(a, turn)
	if err != nil {
		return nil, false, err
	}

	text := resp.Content.Text()
	if text != "" {
		s.record(core.NewAssistantMessage(a.Name(), text))
	}

	var (
		toolCalls    []core.FunctionCall
		handoffCalls []handoffCall
	)
	for _, fc := range resp.Content.FunctionCalls() {
		if edge, ok := a.LookupHandoff(fc.Name); ok {
			s.record(core.NewHandoffCallItem(a.Name(), fc))
			handoffCalls = append(handoffCalls, handoffCall{call: fc, edge: edge})
			continue
		}

		s.record(core.NewToolCallItem(a.Name(), fc))

		if _, ok := a.Tools().Lookup(fc.Name); !ok && s.isHandoffName(fc.Name) {
			return nil, false, core.NewRunError(core.KindHandoffTargetUnavailable, nil, "agent %s has no handoff %q", a.Name(), fc.Name)
		}
		toolCalls = append(toolCalls, fc)
	}

	if len(toolCalls) == 0 && len(handoffCalls) == 0 {
		s.commitTurn()
		if text == "" {
			s.rc.LogWarn("run.turn.empty_response", "agent", a.Name(), "turn", turn)
			return nil, false, nil
		}
		out, err := a.OutputType().Decode(text)
		if err != nil {
			return nil, false, core.NewRunError(core.KindModelBehavior, err, "agent %s produced invalid %s output", a.Name(), a.OutputType().Name())
		}
		return out, true, nil
	}

	if len(toolCalls) > 0 {
		results, err := s.invoker.Invoke(s.rc, a.Name(), a.Tools(), toolCalls, s.newToolObserver(a))
		if err != nil {
			return nil, false, err
		}
		for _, r := range results {
			s.record(core.NewToolResultItem(a.Name(), r.Call, r.Output, r.ErrorText()))
		}

		if a.ResetToolChoice() && forcesToolUse(s.settings(a).ToolChoice) {
			s.toolChoiceReset[a] = true
		}

		decision, err := a.ToolUseBehavior().Decide(s.rc, results)
		if err != nil {
			return nil, false, core.NewRunError(core.KindUserError, err, "tool use behavior %s failed", a.ToolUseBehavior())
		}
		if decision.IsFinalOutput {
			for _, hc := range handoffCalls {
				s.record(core.NewToolResultItem(a.Name(), hc.call, handoffSkippedMessage, ""))
			}
			s.commitTurn()
			return decision.FinalOutput, true, nil
		}
	}

	if len(handoffCalls) > 0 {
		return nil, false, s.handoff(a, handoffCalls)
	}

	s.commitTurn()
	return nil, false, nil
}

func (s *runState) produce(a *agent.Agent, turn int) (model.Response, error) {
	m, err := a.ResolveModel(s.opts.ModelProvider)
	if err != nil {
		return model.Response{}, core.NewRunError(core.KindUserError, err, "no model for agent %s", a.Name())
	}

	instructions, err := a.Instructions(s.rc)
	if err != nil {
		return model.Response{}, core.NewRunError(core.KindUserError, err, "resolve instructions of agent %s", a.Name())
	}

	req := model.Request{
		Instructions: instructions,
		Contents:     core.ItemsToContents(s.history()),
		Tools:        a.ToolDefinitions(),
		Settings:     s.settings(a),
		Stream:       s.emit != nil,
	}
	if ot := a.OutputType(); !ot.IsPlainText() {
		req.OutputSchema = &model.OutputSchema{Name: ot.Name(), Schema: ot.Schema()}
	}

	modelName := m.Info().Name
	ctx, span := observability.StartTurn(s.spanCtx, s.opts.Tracer, a.Name(), modelName, turn)

	s.rc.LogDebug("run.turn.start", "agent", a.Name(), "turn", turn, "model", modelName, "history", len(req.Contents))

	start := time.Now()
	resp, err := model.Collect(ctx, m, req, func(partial model.Response) {
		s.emitEvent(RawResponseEvent{Agent: a.Name(), Delta: partial.Content.Text(), Response: partial})
	})

	var in, out int
	if err == nil {
		usage := core.Usage{Requests: 1}
		if resp.Usage != nil {
			in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
			usage.InputTokens, usage.OutputTokens, usage.TotalTokens = in, out, resp.Usage.TotalTokens
		}
		s.rc.AddUsage(usage)
		s.rawResponses = append(s.rawResponses, resp)
	}

	s.opts.Metrics.RecordModelCall(s.spanCtx, a.Name(), modelName, in, out, time.Since(start), err)
	observability.EndSpan(span, err)

	if err != nil {
		if ctxErr := s.rc.Err(); ctxErr != nil {
			return model.Response{}, core.NewRunError(core.KindCanceled, ctxErr, "model call interrupted")
		}
		return model.Response{}, core.NewRunError(core.KindModelFailed, err, "agent %s turn %d", a.Name(), turn)
	}

	s.rc.LogDebug("run.turn.complete", "agent", a.Name(), "turn", turn, "finish_reason", resp.FinishReason, "duration_ms", time.Since(start).Milliseconds())

	return resp, nil
}

func (s *runState) handoff(source *agent.Agent, calls []handoffCall) error {
	chosen := calls[0]
	for _, extra := range calls[1:] {
		s.record(core.NewToolResultItem(source.Name(), extra.call, multipleHandoffsMessage, ""))
	}

	target := chosen.edge.Target
	if target == nil {
		return core.NewRunError(core.KindHandoffTargetUnavailable, nil, "handoff %q of agent %s has no target", chosen.call.Name, source.Name())
	}
	if err := target.Validate(); err != nil {
		return core.NewRunError(core.KindUserError, err, "invalid handoff target")
	}

	if chosen.edge.OnHandoff != nil {
		if err := chosen.edge.OnHandoff(s.rc, chosen.call.Arguments); err != nil {
			return core.NewRunError(core.KindUserError, err, "on handoff callback of %q failed", chosen.call.Name)
		}
	}

	s.record(core.NewHandoffResultItem(source.Name(), target.Name(), chosen.call))

	data := handoff.Apply(chosen.edge.InputFilter, handoff.InputData{
		InputHistory:    s.inputHistory,
		PreHandoffItems: s.preItems,
		NewItems:        s.turnItems,
	})
	s.inputHistory = data.InputHistory
	s.preItems = append(append([]core.Item(nil), data.PreHandoffItems...), data.NewItems...)
	s.turnItems = nil

	s.rc.LogInfo("run.handoff", "from", source.Name(), "to", target.Name(), "history", len(s.inputHistory)+len(s.preItems))
	s.opts.Metrics.RecordHandoff(s.spanCtx, source.Name(), target.Name())
	observability.AddHandoffEvent(trace.SpanFromContext(s.spanCtx), source.Name(), target.Name())

	s.opts.Hooks.OnHandoff(s.rc, source, target)
	target.Hooks().OnHandoff(s.rc, target, source)

	s.current = target
	s.emitEvent(AgentUpdatedEvent{Agent: target})
	s.startAgent()

	if s.opts.RerunHandoffGuardrails == RerunTargetGuardrails {
		return s.runInputGuardrails(target, s.history())
	}
	return nil
}

func (s *runState) finish(output any) (*RunResult, error) {
	a := s.current

	if err := s.runOutputGuardrails(a, output); err != nil {
		return nil, err
	}

	s.opts.Hooks.OnAgentEnd(s.rc, a, output)
	a.Hooks().OnEnd(s.rc, a, output)

	res := &RunResult{
		RunID:                  s.rc.RunID,
		Input:                  s.input,
		NewItems:               append([]core.Item(nil), s.newItems...),
		FinalOutput:            output,
		LastAgent:              a,
		RawResponses:           s.rawResponses,
		InputGuardrailResults:  s.inputGuardrailResults,
		OutputGuardrailResults: s.outputGuardrailResults,
		Usage:                  s.rc.Usage(),
		Turns:                  s.limiter.Count(),
	}

	s.rc.LogInfo("run.complete", "agent", a.Name(), "turns", res.Turns, "items", len(res.NewItems), "total_tokens", res.Usage.TotalTokens)

	return res, nil
}

func (s *runState) runInputGuardrails(a *agent.Agent, items []core.Item) error {
	guards := a.InputGuardrails()
	if len(guards) == 0 {
		return nil
	}

	_, span := observability.StartGuardrails(s.spanCtx, s.opts.Tracer, string(guardrail.StageInput), a.Name())
	outcomes, err := guardrail.EvaluateInput(s.rc, a.Name(), guards, items)
	observability.EndSpan(span, err)

	s.inputGuardrailResults = append(s.inputGuardrailResults, outcomes...)

	return s.guardrailError(core.KindInputGuardrailTripped, err)
}

func (s *runState) runOutputGuardrails(a *agent.Agent, output any) error {
	guards := a.OutputGuardrails()
	if len(guards) == 0 {
		return nil
	}

	_, span := observability.StartGuardrails(s.spanCtx, s.opts.Tracer, string(guardrail.StageOutput), a.Name())
	outcomes, err := guardrail.EvaluateOutput(s.rc, a.Name(), guards, output)
	observability.EndSpan(span, err)

	s.outputGuardrailResults = append(s.outputGuardrailResults, outcomes...)

	return s.guardrailError(core.KindOutputGuardrailTripped, err)
}

func (s *runState) guardrailError(kind core.ErrorKind, err error) error {
	if err == nil {
		return nil
	}

	var tripErr *guardrail.TripwireError
	if errors.As(err, &tripErr) {
		for _, o := range tripErr.Tripped {
			s.opts.Metrics.RecordGuardrailTrip(s.spanCtx, string(o.Stage), o.Agent, o.Guardrail)
		}
		first := tripErr.First()
		s.rc.LogWarn("run.guardrail.tripped", "stage", string(first.Stage), "agent", first.Agent, "guardrail", first.Guardrail, "count", len(tripErr.Tripped))
		return core.NewRunError(kind, err, "guardrail %s triggered", first.Guardrail)
	}

	return core.NewRunError(core.KindUserError, err, "guardrail evaluation failed")
}

// fail converts err into a *core.RunError carrying the partial run state.
func (s *runState) fail(err error) *core.RunError {
	re, ok := err.(*core.RunError)
	if !ok {
		kind := core.KindUserError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = core.KindCanceled
		}
		re = core.NewRunError(kind, err, "run failed")
	}

	if re.Details == nil {
		re.Details = &core.RunErrorDetails{
			Input:     s.input,
			NewItems:  append([]core.Item(nil), s.newItems...),
			LastAgent: s.current.Name(),
			Usage:     s.rc.Usage(),
			Turns:     s.limiter.Count(),
		}
	}

	s.rc.LogError("run.error", "kind", string(re.Kind), "agent", s.current.Name(), "turns", s.limiter.Count(), "error", re.Error())

	return re
}

func (s *runState) startAgent() {
	s.opts.Hooks.OnAgentStart(s.rc, s.current)
	s.current.Hooks().OnStart(s.rc, s.current)
}

func (s *runState) record(it core.Item) {
	s.turnItems = append(s.turnItems, it)
	s.newItems = append(s.newItems, it)
	s.emitEvent(RunItemEvent{Name: itemEventName(it.Kind), Item: it})
}

func (s *runState) commitTurn() {
	s.preItems = append(s.preItems, s.turnItems...)
	s.turnItems = nil
}

func (s *runState) history() []core.Item {
	out := make([]core.Item, 0, len(s.inputHistory)+len(s.preItems)+len(s.turnItems))
	out = append(out, s.inputHistory...)
	out = append(out, s.preItems...)
	return append(out, s.turnItems...)
}

func (s *runState) settings(a *agent.Agent) model.Settings {
	settings := a.Settings().Merge(s.opts.Settings)
	if s.toolChoiceReset[a] {
		settings.ToolChoice = ""
	}
	return settings
}

func (s *runState) emitEvent(ev StreamEvent) {
	if s.emit != nil {
		s.emit(ev)
	}
}

// forcesToolUse reports whether choice obliges the model to call a tool.
func forcesToolUse(choice string) bool {
	return choice != "" && choice != model.ToolChoiceAuto && choice != model.ToolChoiceNone
}

// toolObserver forwards tool lifecycle notifications to hooks, metrics and spans.
type toolObserver struct {
	s     *runState
	a     *agent.Agent
	spans map[string]trace.Span
}

func (s *runState) newToolObserver(a *agent.Agent) *toolObserver {
	return &toolObserver{s: s, a: a, spans: make(map[string]trace.Span)}
}

func (o *toolObserver) OnToolStart(tc *core.ToolContext, t tool.Tool) {
	_, span := observability.StartTool(o.s.spanCtx, o.s.opts.Tracer, o.a.Name(), t.Name(), tc.FunctionCallID())
	o.spans[tc.FunctionCallID()] = span

	o.s.opts.Hooks.OnToolStart(o.s.rc, o.a, t)
	o.a.Hooks().OnToolStart(o.s.rc, o.a, t)
}

func (o *toolObserver) OnToolEnd(tc *core.ToolContext, t tool.Tool, res tool.Result) {
	if span, ok := o.spans[tc.FunctionCallID()]; ok {
		observability.EndSpan(span, res.Err)
		delete(o.spans, tc.FunctionCallID())
	}
	o.s.opts.Metrics.RecordToolCall(o.s.spanCtx, o.a.Name(), t.Name(), res.Duration, res.Err)

	o.s.opts.Hooks.OnToolEnd(o.s.rc, o.a, t, res.Output)
	o.a.Hooks().OnToolEnd(o.s.rc, o.a, t, res.Output)
}
