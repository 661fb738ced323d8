package engine

import (
	"errors"
	"fmt"
)

// ActionExecutionError classifies action failures for outcome determination.
type ActionExecutionError struct {
	// Kind indicates the failure family.
	Kind ActionErrorKind
	// ActionID is the failing action.
	ActionID string
	// Err is the underlying error.
	Err error
}

// ActionErrorKind classifies action execution errors.
type ActionErrorKind int

const (
	// ActionErrorShell indicates a non-zero exit on an ordinary (non-server)
	// shell command. Hard error, surfaced up the chain.
	ActionErrorShell ActionErrorKind = iota
	// ActionErrorWrite indicates a file write failure.
	ActionErrorWrite
	// ActionErrorAborted indicates the action was aborted mid-flight.
	ActionErrorAborted
	// ActionErrorServer indicates a server-start command that never reached
	// readiness (fast exit or install/start failure).
	ActionErrorServer
	// ActionErrorSandbox indicates the sandbox has no process capability.
	ActionErrorSandbox
)

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s: %v", e.ActionID, e.Err)
}

func (e *ActionExecutionError) Unwrap() error {
	return e.Err
}

// IsShellError returns true if the error is a hard shell-command failure.
func IsShellError(err error) bool {
	var actErr *ActionExecutionError
	if errors.As(err, &actErr) {
		return actErr.Kind == ActionErrorShell
	}
	return false
}

// IsWriteError returns true if the error is a file write failure.
func IsWriteError(err error) bool {
	var actErr *ActionExecutionError
	if errors.As(err, &actErr) {
		return actErr.Kind == ActionErrorWrite
	}
	return false
}

// IsAbortedError returns true if the error is an action abort.
func IsAbortedError(err error) bool {
	var actErr *ActionExecutionError
	if errors.As(err, &actErr) {
		return actErr.Kind == ActionErrorAborted
	}
	return false
}

// IsServerError returns true if the error is a server-start failure.
func IsServerError(err error) bool {
	var actErr *ActionExecutionError
	if errors.As(err, &actErr) {
		return actErr.Kind == ActionErrorServer
	}
	return false
}

// IsSandboxError returns true if the error is a missing process capability.
func IsSandboxError(err error) bool {
	var actErr *ActionExecutionError
	if errors.As(err, &actErr) {
		return actErr.Kind == ActionErrorSandbox
	}
	return false
}
