package core

import (
	"fmt"
	"sync"
)

// TurnLimiter enforces the maximum number of model turns per run.
type TurnLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnLimiter creates a limiter allowing max turns. If max <= 0 the
// limiter never trips.
func NewTurnLimiter(max int) *TurnLimiter {
	return &TurnLimiter{max: max}
}

// Increment records a turn. Once the limit is reached it returns
// ErrMaxTurnsExceeded and leaves the count unchanged.
func (tl *TurnLimiter) Increment() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.max > 0 && tl.count >= tl.max {
		return fmt.Errorf("%w: limit %d", ErrMaxTurnsExceeded, tl.max)
	}
	tl.count++

	return nil
}

// Count returns the number of turns recorded so far.
func (tl *TurnLimiter) Count() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.count
}

// Max returns the configured limit.
func (tl *TurnLimiter) Max() int { return tl.max }

// Remaining returns how many turns are left, or -1 when unlimited.
func (tl *TurnLimiter) Remaining() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.max <= 0 {
		return -1
	}

	if r := tl.max - tl.count; r > 0 {
		return r
	}

	return 0
}
