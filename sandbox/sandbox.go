// Package sandbox abstracts the filesystem and process-spawn primitives of
// the execution environment.
//
// Two implementations exist: Local runs against a real project directory
// with fsnotify tree watching and a TCP port poller; MemFS is the bounded
// in-memory fallback used when the local sandbox cannot initialize, keeping
// generated code inspectable even without a runnable preview.
package sandbox

import (
	"context"
	"errors"
	"io"
)

// ErrUnavailable is returned by operations that require a real sandbox when
// only the in-memory fallback is active.
var ErrUnavailable = errors.New("sandbox unavailable")

// PortEvent signals a TCP port that became reachable inside the sandbox.
type PortEvent struct {
	// Port is the listening port.
	Port int
}

// TreeEvent signals a mutation of the project file tree.
type TreeEvent struct {
	// Path is the project-relative path that changed.
	Path string
}

// ProcessSpec describes a process to spawn. Commands run through the
// sandbox shell so package-manager invocations behave as typed.
type ProcessSpec struct {
	// Command is the shell command line.
	Command string
	// Dir is the working directory, project-relative. Empty means the
	// project root.
	Dir string
	// Env is extra environment in KEY=VALUE form, merged over the
	// inherited environment.
	Env []string
}

// Process is a spawned sandbox process with piped combined output and a
// kill handle.
type Process interface {
	// Output returns the combined stdout+stderr stream.
	Output() io.Reader
	// Wait blocks until exit and returns the exit code.
	Wait() (int, error)
	// Kill terminates the process. Safe to call after exit.
	Kill() error
}

// Adapter is the sandbox boundary used by the engine and the bootstrap
// supervisor.
type Adapter interface {
	// Root returns the absolute project root path. Empty for MemFS.
	Root() string
	// ReadFile reads a project-relative path.
	ReadFile(path string) ([]byte, error)
	// WriteFile writes a project-relative path, creating parents.
	WriteFile(path string, data []byte) error
	// MkdirAll creates a directory and parents.
	MkdirAll(path string) error
	// Exists reports whether a project-relative path exists.
	Exists(path string) bool
	// List returns all project-relative file paths, excluding dependency
	// and VCS directories. Used to locate the shallowest manifest.
	List() ([]string, error)
	// Spawn starts a process. MemFS returns ErrUnavailable.
	Spawn(ctx context.Context, spec ProcessSpec) (Process, error)
	// PortEvents streams ports opening inside the sandbox.
	PortEvents() <-chan PortEvent
	// TreeEvents streams project tree mutations.
	TreeEvents() <-chan TreeEvent
	// Close releases watchers and pollers.
	Close() error
}
