package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/pithecene-io/foundry/types"
)

// Store is the ordered record of every action's lifecycle within a session.
// Registration order is preserved; terminal statuses are never re-entered.
type Store struct {
	mu      sync.Mutex
	order   []string
	records map[string]*record
}

// record pairs an action with its abort signal.
type record struct {
	action types.Action
	ctx    context.Context
	cancel context.CancelFunc
}

// NewStore creates an empty action store.
func NewStore() *Store {
	return &Store{records: make(map[string]*record)}
}

// Add registers a pending action exactly once per id.
// Duplicate registration is a no-op; returns false in that case.
func (s *Store) Add(action types.Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[action.ID]; ok {
		return false
	}
	action.Status = types.ActionStatusPending
	ctx, cancel := context.WithCancel(context.Background())
	s.records[action.ID] = &record{action: action, ctx: ctx, cancel: cancel}
	s.order = append(s.order, action.ID)
	return true
}

// Get returns a copy of the action.
func (s *Store) Get(id string) (types.Action, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return types.Action{}, false
	}
	return rec.action, true
}

// Finalize supplies the authoritative close-tag version of an action's
// content and file path. Unknown ids are registered on the spot so a close
// event arriving without a prior open still executes.
func (s *Store) Finalize(action types.Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[action.ID]
	if !ok {
		action.Status = types.ActionStatusPending
		ctx, cancel := context.WithCancel(context.Background())
		s.records[action.ID] = &record{action: action, ctx: ctx, cancel: cancel}
		s.order = append(s.order, action.ID)
		return
	}
	rec.action.Content = action.Content
	rec.action.FilePath = action.FilePath
	rec.action.Kind = action.Kind
}

// MarkExecuted sets the monotonic executed flag.
// Returns false if the action is unknown or already executed.
func (s *Store) MarkExecuted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.action.Executed {
		return false
	}
	rec.action.Executed = true
	return true
}

// SetStatus transitions an action's lifecycle state.
// Terminal states are never re-entered; such transitions return an error.
func (s *Store) SetStatus(id string, status types.ActionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("unknown action: %s", id)
	}
	if rec.action.Status.IsTerminal() {
		return fmt.Errorf("action %s already terminal (%s)", id, rec.action.Status)
	}
	rec.action.Status = status
	return nil
}

// Abort cancels an action's context, killing any in-flight process, and
// marks it aborted unless already terminal.
func (s *Store) Abort(id string) error {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown action: %s", id)
	}
	cancel := rec.cancel
	if !rec.action.Status.IsTerminal() {
		rec.action.Status = types.ActionStatusAborted
	}
	s.mu.Unlock()

	cancel()
	return nil
}

// Context returns the action's abort context.
// Unknown ids get an already-canceled context so execution is skipped.
func (s *Store) Context(id string) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return rec.ctx
}

// Snapshot returns copies of all actions in registration order.
func (s *Store) Snapshot() []types.Action {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Action, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].action)
	}
	return out
}

// Len returns the number of registered actions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
