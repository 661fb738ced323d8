package iox

import "sync"

// TailBuffer is a bounded writer retaining only the most recent bytes.
// Used to capture the diagnostic tail of installer and dev-server output
// without unbounded growth. Safe for concurrent use.
type TailBuffer struct {
	mu    sync.Mutex
	max   int
	buf   []byte
	total int64
}

// NewTailBuffer creates a TailBuffer retaining at most max bytes.
// A non-positive max defaults to 8 KiB.
func NewTailBuffer(max int) *TailBuffer {
	if max <= 0 {
		max = 8 * 1024
	}
	return &TailBuffer{max: max}
}

// Write implements io.Writer. Never returns an error.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total += int64(len(p))
	if len(p) >= t.max {
		t.buf = append(t.buf[:0], p[len(p)-t.max:]...)
		return len(p), nil
	}
	t.buf = append(t.buf, p...)
	if overflow := len(t.buf) - t.max; overflow > 0 {
		t.buf = append(t.buf[:0], t.buf[overflow:]...)
	}
	return len(p), nil
}

// String returns the retained tail.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// Bytes returns a copy of the retained tail.
func (t *TailBuffer) Bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.buf))
	copy(out, t.buf)
	return out
}

// Total returns the total number of bytes ever written.
func (t *TailBuffer) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Reset discards the retained tail and the running total.
func (t *TailBuffer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = t.buf[:0]
	t.total = 0
}
