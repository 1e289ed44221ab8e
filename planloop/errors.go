package planloop

import (
	"errors"
	"fmt"
)

// ErrorKind tags the failure class of a run-level error. Tool-level failures
// (tool_error, unknown_tool) are recovered by feeding them back into the
// conversation; the remaining kinds are terminal for the run.
type ErrorKind string

const (
	ErrKindTool              ErrorKind = "tool_error"
	ErrKindUnknownTool       ErrorKind = "unknown_tool"
	ErrKindBudgetExceeded    ErrorKind = "budget_exceeded"
	ErrKindModelConsultation ErrorKind = "model_consultation"
	ErrKindCancelled         ErrorKind = "cancelled"
)

// RunError is a kind-tagged run failure. Exactly one terminal error event
// carrying the same kind and message accompanies every RunError returned
// from Run.
type RunError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *RunError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

// budgetExceededError builds the terminal error for a run that would need
// more model consultations than its budget allows.
func budgetExceededError(maxTurns int) *RunError {
	return &RunError{
		Kind:    ErrKindBudgetExceeded,
		Message: fmt.Sprintf("turn budget of %d model consultations exhausted before the model produced a final plan", maxTurns),
	}
}

// consultationError wraps a transport-level model failure.
func consultationError(cause error) *RunError {
	return &RunError{
		Kind:    ErrKindModelConsultation,
		Message: "model consultation failed",
		Cause:   cause,
	}
}

// cancellationError wraps a caller-initiated stop between turns.
func cancellationError(cause error) *RunError {
	return &RunError{
		Kind:    ErrKindCancelled,
		Message: "run cancelled by caller",
		Cause:   cause,
	}
}

// KindOf returns the ErrorKind of err if it is (or wraps) a RunError, or ""
// otherwise. Callers use this to suppress alerting on intentional
// cancellations.
func KindOf(err error) ErrorKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}
