package session

import (
	"time"

	"github.com/pithecene-io/foundry/metrics"
	"github.com/pithecene-io/foundry/types"
)

// Outcome classifies how a session ended.
type Outcome string

// Outcome constants.
const (
	// OutcomeSuccess means every action settled complete.
	OutcomeSuccess Outcome = "success"
	// OutcomeDegraded means the session finished on a fallback path: the
	// in-memory sandbox or the static preview server.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeFailed means at least one action failed.
	OutcomeFailed Outcome = "failed"
)

// Summary is an immutable end-of-session report for render surfaces and
// outbound notices.
type Summary struct {
	SessionID  string  `json:"session_id" yaml:"session_id"`
	Outcome    Outcome `json:"outcome" yaml:"outcome"`
	DurationMs int64   `json:"duration_ms" yaml:"duration_ms"`

	Artifacts int `json:"artifacts" yaml:"artifacts"`
	Actions   int `json:"actions" yaml:"actions"`
	Completed int `json:"completed" yaml:"completed"`
	Failed    int `json:"failed" yaml:"failed"`
	Aborted   int `json:"aborted" yaml:"aborted"`

	SandboxDegraded bool `json:"sandbox_degraded" yaml:"sandbox_degraded"`
	StaticFallback  bool `json:"static_fallback" yaml:"static_fallback"`
	PreviewReady    bool `json:"preview_ready" yaml:"preview_ready"`

	Metrics metrics.Snapshot `json:"metrics" yaml:"metrics"`
}

// Summary builds the end-of-session report from the action store and the
// metrics collector. Call after Wait for settled counts.
func (s *Session) Summary() Summary {
	snap := s.collector.Snapshot()

	var completed, failed, aborted int
	actions := s.engine.Store().Snapshot()
	for _, a := range actions {
		switch a.Status {
		case types.ActionStatusComplete:
			completed++
		case types.ActionStatusFailed:
			failed++
		case types.ActionStatusAborted:
			aborted++
		}
	}

	s.mu.Lock()
	artifacts := s.artifacts
	s.mu.Unlock()

	return Summary{
		SessionID:       s.cfg.SessionID,
		Outcome:         s.outcome(failed, snap),
		DurationMs:      time.Since(s.start).Milliseconds(),
		Artifacts:       artifacts,
		Actions:         len(actions),
		Completed:       completed,
		Failed:          failed,
		Aborted:         aborted,
		SandboxDegraded: s.degraded,
		StaticFallback:  snap.StaticFallbacks > 0,
		PreviewReady:    snap.PreviewsReady > 0,
		Metrics:         snap,
	}
}

// outcome classifies the session: failures dominate, then fallback paths,
// then success.
func (s *Session) outcome(failed int, snap metrics.Snapshot) Outcome {
	if failed > 0 {
		return OutcomeFailed
	}
	if s.degraded || snap.StaticFallbacks > 0 {
		return OutcomeDegraded
	}
	return OutcomeSuccess
}

// ExitCode maps the summary to a process exit code: 0 success or degraded
// with a served preview, 1 action failures, 2 sandbox unavailable, 3
// install exhausted without any preview.
func (sum Summary) ExitCode() int {
	switch {
	case sum.Metrics.InstallsFailed > 0 && !sum.PreviewReady:
		return 3
	case sum.SandboxDegraded && sum.Failed > 0:
		return 2
	case sum.Failed > 0:
		return 1
	default:
		return 0
	}
}

// shutdownCollaborators tears down a partially constructed session. Used
// only on constructor failure after the engine has started.
func (s *Session) shutdownCollaborators() {
	s.engine.Close()
	if s.supervisor != nil {
		s.supervisor.Close()
	}
	_ = s.pol.Close()
	s.bus.Close()
	_ = s.sandbox.Close()
}

// FailureErrors returns settlement errors collected by Wait, for diagnostic
// logging.
func (s *Session) FailureErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]error, len(s.failures))
	copy(out, s.failures)
	return out
}
