//nolint:revive // types is a common Go package naming convention
package types

// ContractVersion is the session event contract version.
const ContractVersion = "0.1.0"

// EventType represents the type of a session event.
type EventType string

// Event type constants. These are the only event shapes crossing the
// workbench boundary; UI collaborators subscribe to them and nothing else.
const (
	EventTypeArtifactOpen  EventType = "artifact_open"
	EventTypeArtifactClose EventType = "artifact_close"
	EventTypeActionOpen    EventType = "action_open"
	EventTypeActionClose   EventType = "action_close"
	EventTypeActionStatus  EventType = "action_status"
	EventTypeTerminal      EventType = "terminal_output"
	EventTypePreviewReady  EventType = "preview_ready"
	EventTypeSessionError  EventType = "session_error"
)

// SessionEvent is the envelope for all events published on the session bus.
// Fields carry both msgpack tags (workbench IPC stream) and json tags
// (webhook/redis adapters, CLI output).
type SessionEvent struct {
	// ContractVersion is the semantic version of the event contract.
	ContractVersion string `json:"contract_version" msgpack:"contract_version"`
	// SessionID is the canonical session identifier.
	SessionID string `json:"session_id" msgpack:"session_id"`
	// Seq is the monotonic sequence number, starts at 1.
	Seq int64 `json:"seq" msgpack:"seq"`
	// Type is the event type discriminator.
	Type EventType `json:"type" msgpack:"type"`
	// Ts is the event timestamp in ISO 8601 UTC format.
	Ts string `json:"ts" msgpack:"ts"`
	// Artifact is set for artifact_open and artifact_close.
	Artifact *Artifact `json:"artifact,omitempty" msgpack:"artifact,omitempty"`
	// Action is set for action_open, action_close and action_status.
	Action *Action `json:"action,omitempty" msgpack:"action,omitempty"`
	// Terminal is set for terminal_output.
	Terminal *TerminalPayload `json:"terminal,omitempty" msgpack:"terminal,omitempty"`
	// Preview is set for preview_ready.
	Preview *PreviewPayload `json:"preview,omitempty" msgpack:"preview,omitempty"`
	// Error is set for session_error.
	Error *ErrorPayload `json:"error,omitempty" msgpack:"error,omitempty"`
}

// TerminalPayload carries raw process output bytes for terminal views.
type TerminalPayload struct {
	// ActionID is the action producing the output, empty for bootstrap
	// processes not tied to a single action.
	ActionID string `json:"action_id,omitempty" msgpack:"action_id,omitempty"`
	// Data is the raw combined stdout/stderr chunk.
	Data []byte `json:"data" msgpack:"data"`
}

// PreviewPayload announces a reachable preview server.
// Emitted at most once per port per session.
type PreviewPayload struct {
	// Port is the listening port.
	Port int `json:"port" msgpack:"port"`
	// URL is the normalized preview URL (host aliases collapsed to
	// localhost).
	URL string `json:"url" msgpack:"url"`
	// Static is true when the preview is the static fallback server
	// rather than a dev server.
	Static bool `json:"static" msgpack:"static"`
}

// ErrorPayload carries a surfaced session-level error.
type ErrorPayload struct {
	// Kind is the error taxonomy bucket (parse, action, sandbox,
	// install, unknown).
	Kind string `json:"kind" msgpack:"kind"`
	// Message is the human-readable error message.
	Message string `json:"message" msgpack:"message"`
	// Hint is an optional remediation hint.
	Hint string `json:"hint,omitempty" msgpack:"hint,omitempty"`
}
