package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pithecene-io/foundry/log"
)

// DefaultQuietWindow is the debounce window for coalescing rapid writes to
// the same path. Streamed file actions frequently rewrite a path several
// times within a turn; one flush per quiet window is enough.
const DefaultQuietWindow = 150 * time.Millisecond

// ErrPolicyClosed is returned for writes after Close.
var ErrPolicyClosed = errors.New("policy closed")

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// QuietWindow is the per-path debounce window. Writes to the same
	// path within the window coalesce into a single sink write carrying
	// the latest content. Zero means DefaultQuietWindow.
	QuietWindow time.Duration

	// Logger is an optional logger for timed-flush errors, which have no
	// caller to return to. If nil, such errors are only counted.
	Logger *log.Logger
}

// BufferedPolicy coalesces rapid writes to the same path into a single
// flush after a quiet window.
//
//   - WriteFile never blocks on the sink
//   - Per-path: last write wins; exactly one sink write per quiet window
//   - Flush drains all pending paths synchronously
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig

	mu      sync.Mutex
	pending map[string]*pendingWrite
	closed  bool
	stats   statsRecorder
}

// pendingWrite is the per-path debounce buffer.
type pendingWrite struct {
	data  []byte
	timer *time.Timer
}

// NewBufferedPolicy creates a buffered policy writing to the given sink.
func NewBufferedPolicy(sink Sink, config BufferedConfig) *BufferedPolicy {
	if config.QuietWindow <= 0 {
		config.QuietWindow = DefaultQuietWindow
	}
	return &BufferedPolicy{
		sink:    sink,
		config:  config,
		pending: make(map[string]*pendingWrite),
	}
}

// WriteFile buffers the content and (re)arms the path's quiet-window timer.
// A write superseding an earlier pending write counts as coalesced.
func (p *BufferedPolicy) WriteFile(_ context.Context, path string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPolicyClosed
	}
	p.stats.record(func(s *Stats) { s.TotalWrites++ })

	if pw, ok := p.pending[path]; ok {
		pw.data = data
		pw.timer.Reset(p.config.QuietWindow)
		p.stats.record(func(s *Stats) { s.WritesCoalesced++ })
		return nil
	}

	pw := &pendingWrite{data: data}
	pw.timer = time.AfterFunc(p.config.QuietWindow, func() {
		p.flushPath(path)
	})
	p.pending[path] = pw
	return nil
}

// flushPath flushes one path on timer expiry. Errors have no caller to
// return to; they are counted and logged.
func (p *BufferedPolicy) flushPath(path string) {
	p.mu.Lock()
	pw, ok := p.pending[path]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.pending, path)
	p.mu.Unlock()

	p.write(path, pw.data, true)
}

// write performs the sink write and records stats.
func (p *BufferedPolicy) write(path string, data []byte, timed bool) error {
	if err := p.sink.WriteFile(path, data); err != nil {
		p.stats.record(func(s *Stats) { s.Errors++ })
		if timed && p.config.Logger != nil {
			p.config.Logger.Error("timed flush failed", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
		}
		return err
	}
	p.stats.record(func(s *Stats) {
		s.WritesPersisted++
		s.BytesWritten += int64(len(data))
	})
	return nil
}

// Flush synchronously drains all pending paths.
// Returns the first sink error; remaining paths are still attempted.
func (p *BufferedPolicy) Flush(context.Context) error {
	p.mu.Lock()
	drained := make(map[string][]byte, len(p.pending))
	for path, pw := range p.pending {
		pw.timer.Stop()
		drained[path] = pw.data
		delete(p.pending, path)
	}
	p.mu.Unlock()

	p.stats.record(func(s *Stats) { s.FlushCount++ })

	var firstErr error
	for path, data := range drained {
		if err := p.write(path, data, false); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close flushes pending writes and rejects further ones.
func (p *BufferedPolicy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.Flush(context.Background())
}

// Stats returns a snapshot of policy metrics.
func (p *BufferedPolicy) Stats() Stats { return p.stats.snapshot() }
