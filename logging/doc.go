// Package logging provides the minimal logging interface used across
// agentrelay together with adapters for log/slog and hashicorp/go-hclog.
//
// Usage:
//
//	logger := logging.NewLogger(logging.Config{Level: logging.LevelDebug, Format: "text"})
//	result, err := runner.Run(ctx, agent, runner.Text("hi"), func(o *runner.Options) {
//		o.Logger = logger
//	})
//
// Entries are keyed with dotted event names (run.turn.start, tool.call.success)
// followed by key/value pairs.
package logging
