// Package core provides the foundational domain types shared by every layer of
// agentrelay. It defines:
//
//   - Items (the append-only conversation history of a run)
//   - Content and Parts (role based message payloads exchanged with models)
//   - RunContext / ToolContext (run scoped state, usage accounting, logging)
//   - RunError (the typed error taxonomy surfaced by the runner)
//
// The package has no knowledge of agents, models or the turn loop. Higher
// layers build on these types so that tools, guardrails and handoff filters can
// be written without importing the runner.
package core
