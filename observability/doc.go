// Package observability wires OpenTelemetry metrics and traces into the
// runner: counters and histograms for runs, turns, model calls, tools,
// guardrails and handoffs, plus span helpers. Exporters for Prometheus
// (metrics) and stdout (traces) are provided for the command line tool.
package observability
