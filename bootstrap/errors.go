package bootstrap

import (
	"errors"
	"fmt"
)

// InstallError reports an exhausted install ladder. The manifest signature
// blocks retries until the manifest bytes change; the diagnostic tail is
// surfaced on the static fallback page.
type InstallError struct {
	// Signature is the SHA-256 of the manifest the ladder failed against.
	Signature string
	// Diagnostic is the bounded output tail of the last attempt.
	Diagnostic string
	// Err is the underlying error from the last attempt.
	Err error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install ladder exhausted: %v", e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// IsInstallError returns true if the error is an exhausted install ladder.
func IsInstallError(err error) bool {
	var instErr *InstallError
	return errors.As(err, &instErr)
}

// StartError reports a dev server that never reached readiness.
type StartError struct {
	// Kind indicates the failure family.
	Kind StartErrorKind
	// Err is the underlying error.
	Err error
}

// StartErrorKind classifies dev-server start failures.
type StartErrorKind int

const (
	// StartErrorFastExit indicates the process exited non-zero within the
	// fast-exit window; typically missing dependencies.
	StartErrorFastExit StartErrorKind = iota
	// StartErrorTimeout indicates no readiness signal arrived before the
	// ceiling timeout.
	StartErrorTimeout
	// StartErrorSpawn indicates the process could not be spawned at all.
	StartErrorSpawn
)

func (e *StartError) Error() string {
	return e.Err.Error()
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// IsFastExit returns true if the dev server exited within the fast-exit
// window.
func IsFastExit(err error) bool {
	var startErr *StartError
	if errors.As(err, &startErr) {
		return startErr.Kind == StartErrorFastExit
	}
	return false
}

// IsStartTimeout returns true if readiness never arrived before the
// ceiling timeout.
func IsStartTimeout(err error) bool {
	var startErr *StartError
	if errors.As(err, &startErr) {
		return startErr.Kind == StartErrorTimeout
	}
	return false
}
