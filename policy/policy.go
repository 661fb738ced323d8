// Package policy defines the file flush policy interface.
//
// Policies sit between the action engine and the sandbox filesystem and
// control how streamed file writes reach disk: immediately (strict),
// coalesced per path after a quiet window (buffered), or not at all (noop,
// for dry-run inspection).
package policy

import (
	"context"
	"sync"
)

// Policy controls how file writes reach the sandbox filesystem.
//
// Invariants:
//   - Writes to distinct paths are independent.
//   - For a single path, the last write wins; coalescing must never
//     reorder a later write behind an earlier one.
//   - Flush drains everything pending; after Flush returns nil, every
//     accepted write is visible in the sink.
type Policy interface {
	// WriteFile accepts content for a path. Depending on the policy this
	// persists immediately or after a quiet window.
	WriteFile(ctx context.Context, path string, data []byte) error

	// Flush forces all pending writes to the sink.
	// Called at turn end and on session teardown.
	Flush(ctx context.Context) error

	// Close cleans up policy resources. Pending writes are flushed first.
	Close() error

	// Stats returns an atomic snapshot of policy metrics.
	Stats() Stats
}

// Sink persists file contents. Implemented by the sandbox adapter.
type Sink interface {
	// WriteFile writes the full content for a project-relative path.
	WriteFile(path string, data []byte) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(path string, data []byte) error

// WriteFile implements Sink.
func (f SinkFunc) WriteFile(path string, data []byte) error { return f(path, data) }

// Stats represents flush policy observability metrics.
type Stats struct {
	// TotalWrites is the number of WriteFile calls accepted.
	TotalWrites int64
	// WritesPersisted is the number of writes that reached the sink.
	WritesPersisted int64
	// WritesCoalesced is the number of writes superseded by a later
	// write to the same path before flushing.
	WritesCoalesced int64
	// BytesWritten is the total bytes handed to the sink.
	BytesWritten int64
	// FlushCount is the number of flush operations (explicit or timed).
	FlushCount int64
	// Errors is the count of sink errors encountered.
	Errors int64
}

// statsRecorder is a mutex-guarded Stats accumulator shared by policies.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *statsRecorder) record(fn func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}
