// File: internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
)

// ErrIterationBudgetExhausted signals that the agent never declared completion
// within the configured iteration cap. Distinct from a timeout so callers can
// tell the two budget failures apart.
var ErrIterationBudgetExhausted = errors.New("iteration budget exhausted before agent signaled completion")

// InitializationError indicates the backend could not reach its ready state.
// No iterations were attempted.
type InitializationError struct {
	Backend string
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("backend %q initialization failed: %v", e.Backend, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// NavigationError indicates the target site could not be loaded.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %q failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// ActuationError indicates a single tool action failed. It is never
// propagated out of the loop; the adapter boundary converts it to tool-result
// text for the remote agent.
type ActuationError struct {
	Action string
	Err    error
}

func (e *ActuationError) Error() string {
	return fmt.Sprintf("action %q failed: %v", e.Action, e.Err)
}

func (e *ActuationError) Unwrap() error { return e.Err }

// ProtocolViolation indicates the remote agent requested an unknown tool or
// action. Fed back to the agent as tool-result text, not fatal.
type ProtocolViolation struct {
	Detail string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Detail)
}

// RunTimeout indicates the wall-clock deadline expired before the loop
// reached a terminal state on its own.
type RunTimeout struct {
	Elapsed string
}

func (e *RunTimeout) Error() string {
	return fmt.Sprintf("run exceeded its wall-clock budget after %s", e.Elapsed)
}

// TeardownError wraps a backend cleanup failure. Logged only; it never masks
// the run's actual outcome.
type TeardownError struct {
	Backend string
	Err     error
}

func (e *TeardownError) Error() string {
	return fmt.Sprintf("backend %q teardown failed: %v", e.Backend, e.Err)
}

func (e *TeardownError) Unwrap() error { return e.Err }
