// Package runner drives agents through the turn loop.
//
// A run starts with an agent and caller input. Each turn the active agent's
// model produces either a final answer, tool calls or a handoff request. Tool
// calls are executed and fed back (or end the run, depending on the agent's
// tool use behaviour); handoffs switch the active agent and carry over the
// (optionally filtered) history. Input guardrails guard the first turn,
// output guardrails guard the final answer, and a max-turn valve bounds
// runaway loops.
//
// Run blocks and returns a *RunResult. RunStreamed returns immediately with a
// *StreamedRun whose Events sequence yields model deltas, item events and
// agent changes while the run executes, followed by exactly one terminal
// event.
//
//	res, err := runner.Run(ctx, triage, runner.Text("Hola, ¿cómo estás?"))
//	if err != nil {
//		var tripErr *guardrail.TripwireError
//		if errors.As(err, &tripErr) { ... }
//	}
//	fmt.Println(res.FinalOutput)
//
// Failures are *core.RunError values carrying the partial history.
package runner
