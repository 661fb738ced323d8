package policy

import "context"

// NoopPolicy accepts all writes but persists nothing.
// Used by dry-run inspection where the action stream should be parsed and
// counted without touching a sandbox.
type NoopPolicy struct {
	stats statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{}
}

// WriteFile counts the write and discards the content.
func (p *NoopPolicy) WriteFile(_ context.Context, _ string, _ []byte) error {
	p.stats.record(func(s *Stats) { s.TotalWrites++ })
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(context.Context) error {
	p.stats.record(func(s *Stats) { s.FlushCount++ })
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error { return nil }

// Stats returns a snapshot of policy metrics.
func (p *NoopPolicy) Stats() Stats { return p.stats.snapshot() }
