package parser

import "github.com/pithecene-io/foundry/types"

// scanState is the explicit parser state. Transitions:
//
//	stateOutside    --artifact open-->  stateInArtifact
//	stateInArtifact --action open--->   stateInAction
//	stateInAction   --action close-->   stateInArtifact
//	stateInArtifact --artifact close--> stateOutside
type scanState int

const (
	stateOutside scanState = iota
	stateInArtifact
	stateInAction
)

// turnState is the resumable parser state for one conversation turn.
// Bounded across turns by the parser's LRU cache.
type turnState struct {
	// processed is the cursor into the cumulative input. Monotonic
	// except on full reset when input shrinks.
	processed int
	// state is the current scan state.
	state scanState
	// artifact is the artifact currently open, nil outside.
	artifact *types.Artifact
	// action is the action currently open, nil outside.
	action *types.Action
	// contentStart is the absolute offset where the open action's
	// content begins.
	contentStart int
	// actionCounter numbers actions within the turn.
	actionCounter int
	// output is the accumulated display-safe output for the turn.
	output []byte
}
