// Package adapter defines the outbound notification boundary.
//
// Adapters publish session milestones (preview ready, session completed)
// to downstream systems. The session owns adapter lifecycle; users
// provide configuration only.
package adapter

import "context"

// Notice event types.
const (
	// NoticePreviewReady is published when a preview server becomes
	// reachable.
	NoticePreviewReady = "preview_ready"
	// NoticeSessionCompleted is published when the session's event stream
	// ends and all actions have settled.
	NoticeSessionCompleted = "session_completed"
)

// SessionNotice is the payload published for a session milestone.
type SessionNotice struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // preview_ready or session_completed
	SessionID       string `json:"session_id"`
	Timestamp       string `json:"timestamp"` // ISO 8601
	// URL and Port are set for preview_ready.
	URL  string `json:"url,omitempty"`
	Port int    `json:"port,omitempty"`
	// Outcome, DurationMs and ActionCount are set for session_completed.
	Outcome     string `json:"outcome,omitempty"` // success, degraded, failed
	DurationMs  int64  `json:"duration_ms,omitempty"`
	ActionCount int    `json:"action_count,omitempty"`
}

// Adapter publishes session notices to a downstream system.
// Implementations must be safe for reuse across a session's notices.
type Adapter interface {
	// Publish sends a session notice to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, notice *SessionNotice) error

	// Close releases adapter resources.
	Close() error
}
