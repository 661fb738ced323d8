package reader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/foundry/ipc"
	"github.com/pithecene-io/foundry/types"
)

func event(seq int64, typ types.EventType) types.SessionEvent {
	return types.SessionEvent{
		ContractVersion: types.ContractVersion,
		SessionID:       "sess-001",
		Seq:             seq,
		Type:            typ,
		Ts:              "2026-08-25T12:00:00Z",
	}
}

func sampleStream() []types.SessionEvent {
	artifact := &types.Artifact{ID: "a1", Title: "Demo", TurnID: "turn-1"}
	action := &types.Action{
		ID:         "act-1",
		ArtifactID: "a1",
		TurnID:     "turn-1",
		Kind:       types.ActionKindFile,
		Status:     types.ActionStatusPending,
		FilePath:   "src/app.js",
	}

	open := event(1, types.EventTypeArtifactOpen)
	open.Artifact = artifact

	actOpen := event(2, types.EventTypeActionOpen)
	actOpen.Action = action

	running := *action
	running.Status = types.ActionStatusRunning
	status := event(3, types.EventTypeActionStatus)
	status.Action = &running

	complete := *action
	complete.Status = types.ActionStatusComplete
	statusDone := event(4, types.EventTypeActionStatus)
	statusDone.Action = &complete
	statusDone.Ts = "2026-08-25T12:00:05Z"

	term := event(5, types.EventTypeTerminal)
	term.Terminal = &types.TerminalPayload{Data: []byte("vite ready\n")}

	preview := event(6, types.EventTypePreviewReady)
	preview.Preview = &types.PreviewPayload{Port: 5173, URL: "http://localhost:5173"}

	closedArtifact := *artifact
	closedArtifact.Closed = true
	closeEv := event(7, types.EventTypeArtifactClose)
	closeEv.Artifact = &closedArtifact
	closeEv.Ts = "2026-08-25T12:00:09Z"

	return []types.SessionEvent{open, actOpen, status, statusDone, term, preview, closeEv}
}

func TestBuildReport_Aggregates(t *testing.T) {
	r := BuildReport(sampleStream())

	if r.SessionID != "sess-001" {
		t.Errorf("session id = %q", r.SessionID)
	}
	if r.EventCount != 7 {
		t.Errorf("event count = %d", r.EventCount)
	}
	if r.FirstTs != "2026-08-25T12:00:00Z" || r.LastTs != "2026-08-25T12:00:09Z" {
		t.Errorf("ts range = %q .. %q", r.FirstTs, r.LastTs)
	}

	if len(r.Artifacts) != 1 {
		t.Fatalf("artifacts = %d", len(r.Artifacts))
	}
	a := r.Artifacts[0]
	if a.ID != "a1" || !a.Closed || a.Actions != 1 {
		t.Errorf("artifact = %+v", a)
	}

	if len(r.Actions) != 1 {
		t.Fatalf("actions = %d", len(r.Actions))
	}
	act := r.Actions[0]
	if act.Status != string(types.ActionStatusComplete) {
		t.Errorf("action status = %q, want final state", act.Status)
	}
	if act.FilePath != "src/app.js" {
		t.Errorf("file path = %q", act.FilePath)
	}

	if len(r.Previews) != 1 || r.Previews[0].Port != 5173 {
		t.Errorf("previews = %+v", r.Previews)
	}
	if r.TerminalBytes != int64(len("vite ready\n")) {
		t.Errorf("terminal bytes = %d", r.TerminalBytes)
	}
}

func TestBuildReport_SessionErrors(t *testing.T) {
	ev := event(1, types.EventTypeSessionError)
	ev.Error = &types.ErrorPayload{Kind: "install", Message: "npm install failed", Hint: "check registry access"}

	r := BuildReport([]types.SessionEvent{ev})
	if len(r.Errors) != 1 {
		t.Fatalf("errors = %d", len(r.Errors))
	}
	if r.Errors[0].Kind != "install" || r.Errors[0].Hint == "" {
		t.Errorf("error = %+v", r.Errors[0])
	}
}

func TestReadReport_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := ipc.NewFrameEncoder(f)
	for _, ev := range sampleStream() {
		if err := enc.WriteEvent(ev); err != nil {
			t.Fatalf("write event: %v", err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := ReadReport(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if r.EventCount != 7 || r.SessionID != "sess-001" {
		t.Errorf("report = %+v", r)
	}
}

func TestReadReport_ToleratesTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := ipc.NewFrameEncoder(f)
	stream := sampleStream()
	for _, ev := range stream {
		if err := enc.WriteEvent(ev); err != nil {
			t.Fatalf("write event: %v", err)
		}
	}
	// A crashed writer leaves a dangling partial length prefix.
	if _, err := f.Write([]byte{0x00, 0x00}); err != nil {
		t.Fatalf("write tail: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := ReadReport(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if r.EventCount != len(stream) {
		t.Errorf("event count = %d, want %d", r.EventCount, len(stream))
	}
}

func TestReadReport_MissingFile(t *testing.T) {
	_, err := ReadReport(filepath.Join(t.TempDir(), "nope.bin"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadReport_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := ReadReport(path)
	if err == nil {
		t.Fatal("expected error for empty stream")
	}
}
