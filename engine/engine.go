// Package engine serializes execution of parsed directive actions.
//
// Actions dispatch onto a single execution lane: action N+1 never begins
// before action N has settled, preserving file-before-use ordering. Each
// action executes at most once; complete, failed and aborted are terminal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pithecene-io/foundry/bus"
	"github.com/pithecene-io/foundry/log"
	"github.com/pithecene-io/foundry/metrics"
	"github.com/pithecene-io/foundry/policy"
	"github.com/pithecene-io/foundry/sandbox"
	"github.com/pithecene-io/foundry/types"
)

// ErrEngineClosed is returned by Run after Close.
var ErrEngineClosed = errors.New("engine closed")

// defaultQueueSize bounds the pending execution lane.
const defaultQueueSize = 128

// ServerLauncher starts a long-running dev-server command and blocks until
// a readiness or failure signal is observed. Implemented by the bootstrap
// supervisor; nil disables delegation and server commands run as ordinary
// commands without awaiting exit.
type ServerLauncher interface {
	StartServer(ctx context.Context, command string) error
}

// Config configures an execution engine.
type Config struct {
	// Store is the action registry. Nil creates a fresh one.
	Store *Store
	// Policy handles file writes (strict, buffered or noop).
	Policy policy.Policy
	// Sandbox provides process spawning for shell actions.
	Sandbox sandbox.Adapter
	// Bus receives action status and terminal output events. Optional.
	Bus *bus.Bus
	// Logger is required.
	Logger *log.Logger
	// Collector records action metrics. Nil-safe.
	Collector *metrics.Collector
	// PackageManager is the canonical package manager for shell
	// normalization. Empty means npm.
	PackageManager string
	// Server delegates classified server-start commands to bootstrap.
	Server ServerLauncher
	// Terminal mirrors combined process output. Optional.
	Terminal io.Writer
	// Degraded marks the in-memory fallback; logged once on first write.
	Degraded bool
	// QueueSize bounds the execution lane. Zero means defaultQueueSize.
	QueueSize int
}

// Engine is the serialized action execution engine.
type Engine struct {
	cfg   Config
	store *Store

	queue chan runRequest
	done  chan struct{}
	wg    sync.WaitGroup

	degradedOnce sync.Once

	mu     sync.Mutex
	closed bool
	errs   []error
}

type runRequest struct {
	action types.Action
	result chan error
}

// New creates an engine and starts its execution lane.
func New(cfg Config) *Engine {
	if cfg.Store == nil {
		cfg.Store = NewStore()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	e := &Engine{
		cfg:   cfg,
		store: cfg.Store,
		queue: make(chan runRequest, size),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e
}

// Store returns the underlying action store for render/TUI surfaces.
func (e *Engine) Store() *Store { return e.store }

// Add registers a pending action exactly once per id.
func (e *Engine) Add(action types.Action) bool {
	return e.store.Add(action)
}

// Run supplies the authoritative close-tag action data and chains its
// execution onto the serial lane. At most once per id: a second call with
// the same id settles immediately without executing. The returned channel
// receives the action's settlement error (nil on success or skip).
func (e *Engine) Run(action types.Action) <-chan error {
	result := make(chan error, 1)

	e.store.Finalize(action)
	if !e.store.MarkExecuted(action.ID) {
		result <- nil
		return result
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		result <- ErrEngineClosed
		return result
	}
	e.wg.Add(1)
	e.mu.Unlock()

	select {
	case e.queue <- runRequest{action: action, result: result}:
	case <-e.done:
		e.wg.Done()
		result <- ErrEngineClosed
	}
	return result
}

// Abort cancels an action, killing any in-flight process.
func (e *Engine) Abort(id string) error {
	if err := e.store.Abort(id); err != nil {
		return err
	}
	if action, ok := e.store.Get(id); ok {
		e.publishStatus(action)
	}
	e.cfg.Collector.IncActionAborted()
	return nil
}

// Wait blocks until every action accepted so far has settled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Errors returns the hard errors accumulated across the session, in
// settlement order.
func (e *Engine) Errors() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

// Close stops accepting work and waits for already-accepted actions to
// settle.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	close(e.done)
}

// loop is the single execution lane.
func (e *Engine) loop() {
	for {
		select {
		case <-e.done:
			return
		case req := <-e.queue:
			err := e.execute(req.action)
			if err != nil {
				e.mu.Lock()
				e.errs = append(e.errs, err)
				e.mu.Unlock()
			}
			req.result <- err
			e.wg.Done()
		}
	}
}

// execute runs one action to settlement.
func (e *Engine) execute(action types.Action) error {
	ctx := e.store.Context(action.ID)

	if current, ok := e.store.Get(action.ID); ok && current.Status.IsTerminal() {
		// Aborted before the lane reached it.
		return nil
	}
	if ctx.Err() != nil {
		e.settle(action.ID, types.ActionStatusAborted)
		return nil
	}

	if err := e.store.SetStatus(action.ID, types.ActionStatusRunning); err != nil {
		return nil
	}
	e.cfg.Collector.IncActionStarted()
	if current, ok := e.store.Get(action.ID); ok {
		e.publishStatus(current)
	}

	start := time.Now()
	var err error
	switch action.Kind {
	case types.ActionKindFile:
		err = e.executeFile(ctx, action)
	case types.ActionKindShell:
		err = e.executeShell(ctx, action)
	default:
		err = &ActionExecutionError{
			Kind:     ActionErrorShell,
			ActionID: action.ID,
			Err:      fmt.Errorf("unknown action kind: %q", action.Kind),
		}
	}

	switch {
	case err == nil:
		e.settle(action.ID, types.ActionStatusComplete)
		e.cfg.Collector.IncActionCompleted()
		e.cfg.Logger.Debug("action complete", map[string]any{
			"action_id": action.ID,
			"kind":      string(action.Kind),
			"duration":  time.Since(start).String(),
		})
		return nil
	case IsAbortedError(err) || ctx.Err() != nil:
		e.settle(action.ID, types.ActionStatusAborted)
		e.cfg.Collector.IncActionAborted()
		e.cfg.Logger.Info("action aborted", map[string]any{
			"action_id": action.ID,
		})
		return nil
	default:
		e.settle(action.ID, types.ActionStatusFailed)
		e.cfg.Collector.IncActionFailed()
		e.cfg.Logger.Error("action failed", map[string]any{
			"action_id": action.ID,
			"kind":      string(action.Kind),
			"error":     err.Error(),
		})
		e.publishError(err)
		return err
	}
}

// executeShell dispatches a shell action: normalize, classify, spawn.
func (e *Engine) executeShell(ctx context.Context, action types.Action) error {
	command := NormalizeShell(action.Content, e.cfg.PackageManager)
	if command == "" {
		return nil
	}
	if command != action.Content {
		e.cfg.Logger.Debug("shell command normalized", map[string]any{
			"action_id": action.ID,
			"original":  action.Content,
			"command":   command,
		})
	}

	if IsServerCommand(command) && e.cfg.Server != nil {
		if err := e.cfg.Server.StartServer(ctx, command); err != nil {
			return &ActionExecutionError{
				Kind:     ActionErrorServer,
				ActionID: action.ID,
				Err:      err,
			}
		}
		return nil
	}

	proc, err := e.cfg.Sandbox.Spawn(ctx, sandbox.ProcessSpec{Command: command})
	if err != nil {
		if errors.Is(err, sandbox.ErrUnavailable) {
			return &ActionExecutionError{
				Kind:     ActionErrorSandbox,
				ActionID: action.ID,
				Err:      fmt.Errorf("cannot run %q: %w", command, err),
			}
		}
		return &ActionExecutionError{
			Kind:     ActionErrorShell,
			ActionID: action.ID,
			Err:      fmt.Errorf("spawn %q: %w", command, err),
		}
	}

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		e.streamOutput(action.ID, proc.Output())
	}()

	code, waitErr := proc.Wait()
	<-streamDone

	if ctx.Err() != nil {
		return &ActionExecutionError{
			Kind:     ActionErrorAborted,
			ActionID: action.ID,
			Err:      ctx.Err(),
		}
	}
	if waitErr != nil {
		return &ActionExecutionError{
			Kind:     ActionErrorShell,
			ActionID: action.ID,
			Err:      fmt.Errorf("wait %q: %w", command, waitErr),
		}
	}
	if code != 0 {
		return &ActionExecutionError{
			Kind:     ActionErrorShell,
			ActionID: action.ID,
			Err:      fmt.Errorf("%q exited with code %d", command, code),
		}
	}
	return nil
}

// streamOutput forwards combined process output to the bus and any
// attached terminal writer until EOF.
func (e *Engine) streamOutput(actionID string, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			e.publish(types.SessionEvent{
				Type:     types.EventTypeTerminal,
				Terminal: &types.TerminalPayload{ActionID: actionID, Data: chunk},
			})
			if e.cfg.Terminal != nil {
				_, _ = e.cfg.Terminal.Write(chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

// settle records a terminal status and publishes it. Transition errors
// mean the action already reached a terminal state, which is fine.
func (e *Engine) settle(id string, status types.ActionStatus) {
	if err := e.store.SetStatus(id, status); err != nil {
		return
	}
	if action, ok := e.store.Get(id); ok {
		e.publishStatus(action)
	}
}

func (e *Engine) publishStatus(action types.Action) {
	e.publish(types.SessionEvent{
		Type:   types.EventTypeActionStatus,
		Action: &action,
	})
}

func (e *Engine) publishError(err error) {
	kind := "action"
	hint := ""
	var actErr *ActionExecutionError
	if errors.As(err, &actErr) {
		switch actErr.Kind {
		case ActionErrorSandbox:
			kind = "sandbox"
		case ActionErrorServer:
			kind = "action"
			hint = "likely missing dependencies"
		}
	}
	e.publish(types.SessionEvent{
		Type:  types.EventTypeSessionError,
		Error: &types.ErrorPayload{Kind: kind, Message: err.Error(), Hint: hint},
	})
}

func (e *Engine) publish(ev types.SessionEvent) {
	if e.cfg.Bus != nil {
		e.cfg.Bus.Publish(ev)
	}
}
