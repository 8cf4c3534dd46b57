package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a run failure.
type ErrorKind string

const (
	KindInputGuardrailTripped    ErrorKind = "input_guardrail_tripped"
	KindOutputGuardrailTripped   ErrorKind = "output_guardrail_tripped"
	KindMaxTurnsExceeded         ErrorKind = "max_turns_exceeded"
	KindUnknownTool              ErrorKind = "unknown_tool"
	KindToolExecutionFailed      ErrorKind = "tool_execution_failed"
	// KindHandoffTargetUnavailable reports a call to a "transfer_to_" tool, or
	// to a handoff declared elsewhere in the run's agent graph, that the
	// active agent does not offer or whose target is nil.
	KindHandoffTargetUnavailable ErrorKind = "handoff_target_unavailable"
	KindModelBehavior            ErrorKind = "model_behavior"
	KindUserError                ErrorKind = "user_error"
	KindModelFailed              ErrorKind = "model_failed"
	KindCanceled                 ErrorKind = "canceled"
)

// Sentinel errors, one per kind, usable with errors.Is.
var (
	ErrInputGuardrailTripped    = errors.New("input guardrail tripwire triggered")
	ErrOutputGuardrailTripped   = errors.New("output guardrail tripwire triggered")
	ErrMaxTurnsExceeded         = errors.New("max turns exceeded")
	ErrUnknownTool              = errors.New("unknown tool")
	ErrToolExecutionFailed      = errors.New("tool execution failed")
	ErrHandoffTargetUnavailable = errors.New("handoff target unavailable")
	ErrModelBehavior            = errors.New("unexpected model behavior")
	ErrUserError                = errors.New("invalid run configuration")
	ErrModelFailed              = errors.New("model call failed")
	ErrCanceled                 = errors.New("run canceled")
)

var kindSentinels = map[ErrorKind]error{
	KindInputGuardrailTripped:    ErrInputGuardrailTripped,
	KindOutputGuardrailTripped:   ErrOutputGuardrailTripped,
	KindMaxTurnsExceeded:         ErrMaxTurnsExceeded,
	KindUnknownTool:              ErrUnknownTool,
	KindToolExecutionFailed:      ErrToolExecutionFailed,
	KindHandoffTargetUnavailable: ErrHandoffTargetUnavailable,
	KindModelBehavior:            ErrModelBehavior,
	KindUserError:                ErrUserError,
	KindModelFailed:              ErrModelFailed,
	KindCanceled:                 ErrCanceled,
}

// RunErrorDetails is the partial state of a run at the moment it failed.
type RunErrorDetails struct {
	Input     []Item
	NewItems  []Item
	LastAgent string
	Usage     Usage
	Turns     int
}

// RunError is the typed failure returned by the runner. It unwraps to both
// the kind sentinel and the underlying cause, so errors.Is(err,
// ErrMaxTurnsExceeded) and errors.As(err, &someCause) both work.
type RunError struct {
	Kind    ErrorKind
	Message string
	Err     error
	Details *RunErrorDetails
}

// NewRunError creates a RunError of the given kind.
func NewRunError(kind ErrorKind, cause error, format string, args ...any) *RunError {
	return &RunError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

func (e *RunError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind sentinel and the cause.
func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the kind of the first RunError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}
