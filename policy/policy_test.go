package policy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memSink records writes for assertions.
type memSink struct {
	mu     sync.Mutex
	writes []sinkWrite
	err    error
}

type sinkWrite struct {
	path string
	data string
}

func (m *memSink) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes = append(m.writes, sinkWrite{path: path, data: string(data)})
	return nil
}

func (m *memSink) snapshot() []sinkWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sinkWrite, len(m.writes))
	copy(out, m.writes)
	return out
}

func TestStrictPolicy_WritesThrough(t *testing.T) {
	sink := &memSink{}
	p := NewStrictPolicy(sink)

	if err := p.WriteFile(context.Background(), "a.txt", []byte("one")); err != nil {
		t.Fatalf("write: %v", err)
	}
	writes := sink.snapshot()
	if len(writes) != 1 || writes[0].data != "one" {
		t.Errorf("writes = %v, want single immediate write", writes)
	}

	stats := p.Stats()
	if stats.TotalWrites != 1 || stats.WritesPersisted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStrictPolicy_SinkErrorSurfaces(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	p := NewStrictPolicy(sink)

	if err := p.WriteFile(context.Background(), "a.txt", []byte("x")); err == nil {
		t.Fatal("expected sink error")
	}
	if p.Stats().Errors != 1 {
		t.Errorf("errors = %d, want 1", p.Stats().Errors)
	}
}

// Scenario E: two writes to the same path within the debounce window produce
// exactly one underlying write carrying the later content.
func TestBufferedPolicy_CoalescesSamePath(t *testing.T) {
	sink := &memSink{}
	p := NewBufferedPolicy(sink, BufferedConfig{QuietWindow: 20 * time.Millisecond})
	defer p.Close()

	ctx := context.Background()
	if err := p.WriteFile(ctx, "a.txt", []byte("first")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.WriteFile(ctx, "a.txt", []byte("second")); err != nil {
		t.Fatalf("write: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	writes := sink.snapshot()
	if len(writes) != 1 {
		t.Fatalf("writes = %v, want exactly one", writes)
	}
	if writes[0].data != "second" {
		t.Errorf("persisted %q, want later content %q", writes[0].data, "second")
	}
	if p.Stats().WritesCoalesced != 1 {
		t.Errorf("coalesced = %d, want 1", p.Stats().WritesCoalesced)
	}
}

func TestBufferedPolicy_DistinctPathsIndependent(t *testing.T) {
	sink := &memSink{}
	p := NewBufferedPolicy(sink, BufferedConfig{QuietWindow: 10 * time.Millisecond})
	defer p.Close()

	ctx := context.Background()
	_ = p.WriteFile(ctx, "a.txt", []byte("a"))
	_ = p.WriteFile(ctx, "b.txt", []byte("b"))

	time.Sleep(60 * time.Millisecond)

	if got := len(sink.snapshot()); got != 2 {
		t.Errorf("writes = %d, want 2", got)
	}
}

func TestBufferedPolicy_FlushDrainsPending(t *testing.T) {
	sink := &memSink{}
	p := NewBufferedPolicy(sink, BufferedConfig{QuietWindow: time.Hour})
	defer p.Close()

	ctx := context.Background()
	_ = p.WriteFile(ctx, "a.txt", []byte("pending"))

	if err := p.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	writes := sink.snapshot()
	if len(writes) != 1 || writes[0].data != "pending" {
		t.Errorf("writes = %v, want flushed pending write", writes)
	}
}

func TestBufferedPolicy_CloseRejectsWrites(t *testing.T) {
	p := NewBufferedPolicy(&memSink{}, BufferedConfig{})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.WriteFile(context.Background(), "a.txt", []byte("x")); !errors.Is(err, ErrPolicyClosed) {
		t.Errorf("err = %v, want ErrPolicyClosed", err)
	}
}

func TestNoopPolicy_DiscardsWrites(t *testing.T) {
	p := NewNoopPolicy()
	if err := p.WriteFile(context.Background(), "a.txt", []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	stats := p.Stats()
	if stats.TotalWrites != 1 || stats.WritesPersisted != 0 {
		t.Errorf("stats = %+v", stats)
	}
}
