package core

import (
	"context"
	"sync"

	"github.com/hupe1980/agentrelay/logging"
)

// RunContext is the mutable, run scoped carrier passed to instructions,
// tools, guardrails and hooks. It holds:
//   - the ambient cancellation Context
//   - the RunID correlating logs, metrics and spans
//   - caller supplied State (opaque to the runtime)
//   - monotonically increasing Usage counters
//
// A RunContext is owned by exactly one run. Usage is guarded so that hooks
// observing it from tool goroutines read a consistent snapshot.
type RunContext struct {
	Context context.Context
	RunID   string
	State   any

	mu    sync.Mutex
	usage Usage

	*loggerAdapter
}

// NewRunContext constructs a RunContext with zero usage.
func NewRunContext(ctx context.Context, runID string, state any, logger logging.Logger) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		State:         state,
		loggerAdapter: newLoggerAdapter(logger, "run_id", runID),
	}
}

// Usage returns a snapshot of the accumulated usage.
func (rc *RunContext) Usage() Usage {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.usage
}

// AddUsage accumulates u into the run totals.
func (rc *RunContext) AddUsage(u Usage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.usage = rc.usage.Add(u)
}

// Done is a shorthand for rc.Context.Done().
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err is a shorthand for rc.Context.Err().
func (rc *RunContext) Err() error { return rc.Context.Err() }

// StateAs returns the caller state converted to T.
func StateAs[T any](rc *RunContext) (T, bool) {
	var zero T
	if rc == nil || rc.State == nil {
		return zero, false
	}
	v, ok := rc.State.(T)
	return v, ok
}
