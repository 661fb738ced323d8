//nolint:revive // types is a common Go package naming convention
package types

// ActionKind discriminates the two directive action families.
type ActionKind string

// Action kind constants per CONTRACT_DIRECTIVE.md.
const (
	// ActionKindFile writes a file into the project tree.
	ActionKindFile ActionKind = "file"
	// ActionKindShell executes a shell command in the sandbox.
	ActionKindShell ActionKind = "shell"
)

// ActionStatus is the lifecycle state of an action.
type ActionStatus string

// Action status constants. Transitions are monotonic:
// pending -> running -> complete|failed|aborted. Terminal states are
// never re-entered.
const (
	ActionStatusPending  ActionStatus = "pending"
	ActionStatusRunning  ActionStatus = "running"
	ActionStatusComplete ActionStatus = "complete"
	ActionStatusFailed   ActionStatus = "failed"
	ActionStatusAborted  ActionStatus = "aborted"
)

// IsTerminal returns true if this status is terminal.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionStatusComplete || s == ActionStatusFailed || s == ActionStatusAborted
}

// Artifact is one cohesive build unit emitted within a single assistant turn.
// Created on open-tag detection, sealed on close-tag detection. The action
// set of an artifact is append-only until Closed is set.
type Artifact struct {
	// ID identifies the artifact. Synthesized from a timestamp when the
	// open tag carries no id attribute.
	ID string `json:"id" msgpack:"id"`
	// Title is the human-readable artifact title.
	Title string `json:"title" msgpack:"title"`
	// TurnID is the conversation turn that emitted the artifact.
	TurnID string `json:"turn_id" msgpack:"turn_id"`
	// Closed is true once the close tag has been observed.
	Closed bool `json:"closed" msgpack:"closed"`
}

// Action is a single file-write or shell-command directive nested within an
// artifact. Content is finalized at close-tag time: trimmed, with a trailing
// newline appended for file actions.
type Action struct {
	// ID identifies the action, unique within the session.
	ID string `json:"id" msgpack:"id"`
	// ArtifactID is the enclosing artifact.
	ArtifactID string `json:"artifact_id" msgpack:"artifact_id"`
	// TurnID is the conversation turn that emitted the action.
	TurnID string `json:"turn_id" msgpack:"turn_id"`
	// Kind is the action kind discriminator.
	Kind ActionKind `json:"kind" msgpack:"kind"`
	// Status is the current lifecycle state.
	Status ActionStatus `json:"status" msgpack:"status"`
	// Content is the directive body. Authoritative only once the close
	// tag has been observed.
	Content string `json:"content" msgpack:"content"`
	// FilePath is the target path for file actions, project-relative.
	FilePath string `json:"file_path,omitempty" msgpack:"file_path,omitempty"`
	// Executed is monotonic: once true the action never re-runs.
	Executed bool `json:"executed" msgpack:"executed"`
}
