// Package model defines the provider agnostic turn producer abstraction used
// by the runner, plus a deterministic ScriptedModel for tests and offline
// examples.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Normalize tool call representation (ToolDefinition, core.FunctionCall)
//   - Keep request/response shapes minimal and transport independent
//
// Vendor adapters live in the openai and anthropic sub packages.
package model
