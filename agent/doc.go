// Package agent defines the Agent: a named configuration of instructions,
// tools, handoff edges, guardrails, output type and model selection that the
// runner drives through the turn loop.
//
// Agents are built once with New and treated as read-only afterwards, so a
// single agent graph can serve many concurrent runs. Handoff edges may form
// cycles; use AddHandoffs to close a cycle before the first run.
//
// Example:
//
//	spanish := agent.New("spanish_agent", func(o *agent.Options) {
//		o.Instruction = agent.NewInstructionFromText("You only speak Spanish.")
//	})
//	triage := agent.New("triage", func(o *agent.Options) {
//		o.Instruction = agent.NewInstructionFromText("Handoff to the right agent based on the language.")
//		o.Handoffs = agent.HandoffsTo(spanish)
//	})
package agent
