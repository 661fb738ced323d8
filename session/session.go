// Package session wires the per-session collaborators: parser, execution
// engine, bootstrap supervisor, event bus, flush policy, metrics and
// outbound adapters.
//
// One Session per model conversation. Feed cumulative turn text in, and the
// session parses directives, executes actions on the serial lane, and
// bootstraps a live preview of the resulting project.
package session

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/foundry/adapter"
	"github.com/pithecene-io/foundry/bootstrap"
	"github.com/pithecene-io/foundry/bus"
	"github.com/pithecene-io/foundry/engine"
	"github.com/pithecene-io/foundry/log"
	"github.com/pithecene-io/foundry/metrics"
	"github.com/pithecene-io/foundry/parser"
	"github.com/pithecene-io/foundry/policy"
	"github.com/pithecene-io/foundry/sandbox"
	"github.com/pithecene-io/foundry/types"
)

// Config configures a session.
type Config struct {
	// SessionID is the canonical session identifier. Empty generates one.
	SessionID string
	// Workdir is the project root directory. Empty means a fresh temp dir.
	Workdir string
	// PackageManager is the install/start tool. Empty means npm.
	PackageManager string
	// Policy selects the file flush policy: strict, buffered or noop.
	Policy string
	// QuietWindow is the buffered-policy coalescing window. Zero uses the
	// policy default.
	QuietWindow time.Duration
	// NoBootstrap disables the dev-server supervisor; file and shell
	// actions still execute.
	NoBootstrap bool
	// EventsPath records the session event stream as msgpack frames.
	EventsPath string
	// Notifier publishes preview_ready and session_completed notices
	// downstream. Optional.
	Notifier adapter.Adapter
	// Terminal mirrors combined process output. Optional.
	Terminal io.Writer
	// Logger is required.
	Logger *log.Logger
	// PreviewPort is the preferred dev-server port. Zero uses the default.
	PreviewPort int
	// StaticPort is the static fallback port. Zero picks a free one.
	StaticPort int
	// InstallTimeout bounds each install ladder attempt. Zero uses the
	// supervisor default.
	InstallTimeout time.Duration
	// ReadyTimeout bounds dev-server readiness. Zero uses the supervisor
	// default.
	ReadyTimeout time.Duration
}

// Session is the per-conversation orchestrator.
type Session struct {
	cfg    Config
	logger *log.Logger

	sandbox  sandbox.Adapter
	degraded bool

	bus        *bus.Bus
	collector  *metrics.Collector
	pol        policy.Policy
	engine     *engine.Engine
	supervisor *bootstrap.Supervisor
	parser     *parser.Parser

	recorder *recorder
	notify   *notifyForwarder

	mu        sync.Mutex
	artifacts int
	pending   []<-chan error
	failures  []error

	start  time.Time
	closed bool
}

// New creates a session and starts its collaborators. The local sandbox is
// preferred; when it cannot be initialized the session continues on the
// in-memory fallback and records the degradation.
func New(cfg Config) (*Session, error) {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.PackageManager == "" {
		cfg.PackageManager = "npm"
	}
	if cfg.Policy == "" {
		cfg.Policy = "strict"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger(cfg.SessionID)
	}

	s := &Session{
		cfg:    cfg,
		logger: cfg.Logger,
		start:  time.Now(),
	}

	local, err := sandbox.NewLocal(sandbox.LocalConfig{
		Root:   cfg.Workdir,
		Logger: cfg.Logger,
	})
	if err != nil {
		s.logger.Warn("local sandbox unavailable, continuing in memory", map[string]any{
			"error": err.Error(),
		})
		s.sandbox = sandbox.NewMemFS(sandbox.MemFSConfig{})
		s.degraded = true
	} else {
		s.sandbox = local
	}

	s.bus = bus.New(cfg.SessionID)
	s.collector = metrics.NewCollector(cfg.Policy, cfg.PackageManager, cfg.SessionID)

	s.pol, err = buildPolicy(cfg.Policy, cfg.QuietWindow, s.sandbox, cfg.Logger)
	if err != nil {
		_ = s.sandbox.Close()
		s.bus.Close()
		return nil, err
	}

	if !cfg.NoBootstrap {
		s.supervisor = bootstrap.New(bootstrap.Config{
			Sandbox:        s.sandbox,
			Bus:            s.bus,
			Logger:         cfg.Logger,
			Collector:      s.collector,
			PackageManager: cfg.PackageManager,
			PreviewPort:    cfg.PreviewPort,
			StaticPort:     cfg.StaticPort,
			InstallTimeout: cfg.InstallTimeout,
			ReadyTimeout:   cfg.ReadyTimeout,
		})
	}

	var server engine.ServerLauncher
	if s.supervisor != nil {
		server = s.supervisor
	}
	s.engine = engine.New(engine.Config{
		Policy:         s.pol,
		Sandbox:        s.sandbox,
		Bus:            s.bus,
		Logger:         cfg.Logger,
		Collector:      s.collector,
		PackageManager: cfg.PackageManager,
		Server:         server,
		Terminal:       cfg.Terminal,
		Degraded:       s.degraded,
	})

	s.parser = parser.New(s.sink(), cfg.Logger)

	if cfg.EventsPath != "" {
		rec, err := newRecorder(cfg.EventsPath, s.bus)
		if err != nil {
			s.shutdownCollaborators()
			return nil, fmt.Errorf("open events file: %w", err)
		}
		s.recorder = rec
	}
	if cfg.Notifier != nil {
		s.notify = newNotifyForwarder(cfg.Notifier, s.bus, cfg.SessionID, cfg.Logger)
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.cfg.SessionID }

// Bus returns the session event bus for additional subscribers (TUI).
func (s *Session) Bus() *bus.Bus { return s.bus }

// Store returns the action registry for render surfaces.
func (s *Session) Store() *engine.Store { return s.engine.Store() }

// Degraded reports whether the session runs on the in-memory fallback.
func (s *Session) Degraded() bool { return s.degraded }

// Feed parses the cumulative input for a turn and returns the display
// output. Safe to call repeatedly with growing input; actions execute as
// their close tags are recognized.
func (s *Session) Feed(turnID, cumulative string) string {
	return s.parser.Parse(turnID, cumulative)
}

// sink builds the parser sink: publish lifecycle events on the bus and
// chain actions onto the engine lane.
func (s *Session) sink() parser.Sink {
	return parser.SinkFuncs{
		OnArtifactOpen: func(a *types.Artifact) {
			s.mu.Lock()
			s.artifacts++
			s.mu.Unlock()
			s.bus.Publish(types.SessionEvent{
				Type:     types.EventTypeArtifactOpen,
				Artifact: a,
			})
		},
		OnArtifactClose: func(a *types.Artifact) {
			s.bus.Publish(types.SessionEvent{
				Type:     types.EventTypeArtifactClose,
				Artifact: a,
			})
		},
		OnActionOpen: func(a *types.Action) {
			s.engine.Add(*a)
			s.bus.Publish(types.SessionEvent{
				Type:   types.EventTypeActionOpen,
				Action: a,
			})
		},
		OnActionClose: func(a *types.Action) {
			s.bus.Publish(types.SessionEvent{
				Type:   types.EventTypeActionClose,
				Action: a,
			})
			ch := s.engine.Run(*a)
			s.mu.Lock()
			s.pending = append(s.pending, ch)
			s.mu.Unlock()
		},
	}
}

// Wait blocks until every chained action has settled and collects their
// settlement errors.
func (s *Session) Wait() {
	s.engine.Wait()

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, ch := range pending {
		if err := <-ch; err != nil {
			s.mu.Lock()
			s.failures = append(s.failures, err)
			s.mu.Unlock()
		}
	}
}

// Abort cancels a single action by id.
func (s *Session) Abort(actionID string) error {
	return s.engine.Abort(actionID)
}

// Close settles outstanding work and releases every collaborator. The
// session cannot be reused afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Wait()
	s.engine.Close()
	if s.supervisor != nil {
		s.supervisor.Close()
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = s.pol.Flush(flushCtx)
	cancel()
	stats := s.pol.Stats()
	_ = s.pol.Close()
	s.collector.AbsorbPolicyStats(stats.TotalWrites, stats.WritesPersisted, stats.WritesCoalesced, stats.BytesWritten)

	// Closing the bus ends the recorder and forwarder subscriptions.
	s.bus.Close()
	if s.recorder != nil {
		s.recorder.wait()
	}
	if s.notify != nil {
		s.notify.wait()
		s.publishCompletion()
	}

	return s.sandbox.Close()
}

// publishCompletion sends the final session_completed notice downstream.
func (s *Session) publishCompletion() {
	summary := s.Summary()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.cfg.Notifier.Publish(ctx, &adapter.SessionNotice{
		ContractVersion: types.ContractVersion,
		EventType:       adapter.NoticeSessionCompleted,
		SessionID:       s.cfg.SessionID,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Outcome:         string(summary.Outcome),
		DurationMs:      summary.DurationMs,
		ActionCount:     summary.Actions,
	})
	if err != nil {
		s.logger.Warn("session completion notice failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// buildPolicy selects the flush policy by name. The sink writes through the
// sandbox adapter.
func buildPolicy(name string, quiet time.Duration, sb sandbox.Adapter, logger *log.Logger) (policy.Policy, error) {
	sink := policy.SinkFunc(func(path string, data []byte) error {
		return sb.WriteFile(path, data)
	})
	switch name {
	case "strict":
		return policy.NewStrictPolicy(sink), nil
	case "buffered":
		return policy.NewBufferedPolicy(sink, policy.BufferedConfig{QuietWindow: quiet, Logger: logger}), nil
	case "noop":
		return policy.NewNoopPolicy(), nil
	default:
		return nil, fmt.Errorf("unknown policy: %s (must be strict, buffered or noop)", name)
	}
}
