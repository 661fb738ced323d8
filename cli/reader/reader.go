// Package reader provides the read-side data access layer for the foundry
// CLI.
//
// It replays recorded session event streams (length-prefixed msgpack
// frames written by foundry run --events) into an aggregate report that
// the inspect command renders. All read-only commands use this package
// exclusively; nothing here touches live session state.
package reader

import (
	"fmt"
	"os"

	"github.com/pithecene-io/foundry/ipc"
	"github.com/pithecene-io/foundry/iox"
	"github.com/pithecene-io/foundry/types"
)

// SessionReport is the aggregate view of one recorded session.
type SessionReport struct {
	SessionID       string `json:"session_id" yaml:"session_id"`
	ContractVersion string `json:"contract_version" yaml:"contract_version"`
	EventCount      int    `json:"event_count" yaml:"event_count"`
	FirstTs         string `json:"first_ts,omitempty" yaml:"first_ts,omitempty"`
	LastTs          string `json:"last_ts,omitempty" yaml:"last_ts,omitempty"`

	Artifacts []ArtifactSummary `json:"artifacts" yaml:"artifacts"`
	Actions   []ActionSummary   `json:"actions" yaml:"actions"`
	Previews  []PreviewSummary  `json:"previews" yaml:"previews"`
	Errors    []ErrorSummary    `json:"errors" yaml:"errors"`

	// TerminalBytes is the total raw process output recorded.
	TerminalBytes int64 `json:"terminal_bytes" yaml:"terminal_bytes"`
}

// ArtifactSummary is the final state of one artifact in the stream.
type ArtifactSummary struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	TurnID  string `json:"turn_id" yaml:"turn_id"`
	Closed  bool   `json:"closed" yaml:"closed"`
	Actions int    `json:"actions" yaml:"actions"`
}

// ActionSummary is the final state of one action in the stream. Status
// reflects the last status event observed for the id.
type ActionSummary struct {
	ID         string `json:"id" yaml:"id"`
	ArtifactID string `json:"artifact_id" yaml:"artifact_id"`
	Kind       string `json:"kind" yaml:"kind"`
	Status     string `json:"status" yaml:"status"`
	FilePath   string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

// PreviewSummary is one preview_ready announcement.
type PreviewSummary struct {
	Port   int    `json:"port" yaml:"port"`
	URL    string `json:"url" yaml:"url"`
	Static bool   `json:"static" yaml:"static"`
}

// ErrorSummary is one surfaced session error.
type ErrorSummary struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
	Hint    string `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// ReadReport reads a recorded event stream file and builds its report.
// Truncated trailing frames are tolerated: the report covers every frame
// up to the corruption point.
func ReadReport(path string) (*SessionReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	defer iox.DiscardClose(f)

	events, err := ipc.ReadAll(f)
	if err != nil && len(events) == 0 {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("event stream is empty: %s", path)
	}

	return BuildReport(events), nil
}

// BuildReport folds an event sequence into a session report. Later events
// for the same artifact or action id supersede earlier ones.
func BuildReport(events []types.SessionEvent) *SessionReport {
	r := &SessionReport{EventCount: len(events)}

	artifactIdx := map[string]int{}
	actionIdx := map[string]int{}

	for _, ev := range events {
		if r.SessionID == "" {
			r.SessionID = ev.SessionID
		}
		if r.ContractVersion == "" {
			r.ContractVersion = ev.ContractVersion
		}
		if r.FirstTs == "" {
			r.FirstTs = ev.Ts
		}
		if ev.Ts != "" {
			r.LastTs = ev.Ts
		}

		switch ev.Type {
		case types.EventTypeArtifactOpen, types.EventTypeArtifactClose:
			if ev.Artifact == nil {
				continue
			}
			i, ok := artifactIdx[ev.Artifact.ID]
			if !ok {
				i = len(r.Artifacts)
				artifactIdx[ev.Artifact.ID] = i
				r.Artifacts = append(r.Artifacts, ArtifactSummary{})
			}
			r.Artifacts[i] = ArtifactSummary{
				ID:      ev.Artifact.ID,
				Title:   ev.Artifact.Title,
				TurnID:  ev.Artifact.TurnID,
				Closed:  ev.Artifact.Closed,
				Actions: r.Artifacts[i].Actions,
			}

		case types.EventTypeActionOpen, types.EventTypeActionClose, types.EventTypeActionStatus:
			if ev.Action == nil {
				continue
			}
			i, ok := actionIdx[ev.Action.ID]
			if !ok {
				i = len(r.Actions)
				actionIdx[ev.Action.ID] = i
				r.Actions = append(r.Actions, ActionSummary{})
				if ai, ok := artifactIdx[ev.Action.ArtifactID]; ok {
					r.Artifacts[ai].Actions++
				}
			}
			r.Actions[i] = ActionSummary{
				ID:         ev.Action.ID,
				ArtifactID: ev.Action.ArtifactID,
				Kind:       string(ev.Action.Kind),
				Status:     string(ev.Action.Status),
				FilePath:   ev.Action.FilePath,
			}

		case types.EventTypeTerminal:
			if ev.Terminal != nil {
				r.TerminalBytes += int64(len(ev.Terminal.Data))
			}

		case types.EventTypePreviewReady:
			if ev.Preview != nil {
				r.Previews = append(r.Previews, PreviewSummary{
					Port:   ev.Preview.Port,
					URL:    ev.Preview.URL,
					Static: ev.Preview.Static,
				})
			}

		case types.EventTypeSessionError:
			if ev.Error != nil {
				r.Errors = append(r.Errors, ErrorSummary{
					Kind:    ev.Error.Kind,
					Message: ev.Error.Message,
					Hint:    ev.Error.Hint,
				})
			}
		}
	}

	return r
}
