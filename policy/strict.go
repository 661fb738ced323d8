package policy

import "context"

// StrictPolicy implements synchronous, unbuffered persistence.
//
//   - No coalescing: each write reaches the sink immediately
//   - Backpressure: caller blocks on sink latency
//   - Sink errors surface to the caller
type StrictPolicy struct {
	sink  Sink
	stats statsRecorder
}

// NewStrictPolicy creates a strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink}
}

// WriteFile writes the content immediately to the sink.
func (p *StrictPolicy) WriteFile(_ context.Context, path string, data []byte) error {
	p.stats.record(func(s *Stats) { s.TotalWrites++ })

	if err := p.sink.WriteFile(path, data); err != nil {
		p.stats.record(func(s *Stats) { s.Errors++ })
		return err
	}

	p.stats.record(func(s *Stats) {
		s.WritesPersisted++
		s.BytesWritten += int64(len(data))
	})
	return nil
}

// Flush is a no-op: nothing is ever pending.
func (p *StrictPolicy) Flush(context.Context) error {
	p.stats.record(func(s *Stats) { s.FlushCount++ })
	return nil
}

// Close is a no-op.
func (p *StrictPolicy) Close() error { return nil }

// Stats returns a snapshot of policy metrics.
func (p *StrictPolicy) Stats() Stats { return p.stats.snapshot() }
