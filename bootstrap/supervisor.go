// Package bootstrap turns a freshly written project tree into a running
// (or gracefully degraded) development server.
//
// The supervisor watches tree mutations, runs an escalating dependency
// install ladder, computes and launches the framework dev command, scans
// output for readiness and known failure signatures, applies best-effort
// auto-remediation, and falls back to serving the generated files
// statically rather than leaving no preview at all.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/foundry/bus"
	"github.com/pithecene-io/foundry/iox"
	"github.com/pithecene-io/foundry/log"
	"github.com/pithecene-io/foundry/metrics"
	"github.com/pithecene-io/foundry/sandbox"
	"github.com/pithecene-io/foundry/types"
)

// Mode is the supervisor state.
type Mode string

// Supervisor states. Transitions: idle -> installing -> starting-dev ->
// dev-running, with branches to static at install/start failure and back
// to idle on process exit.
const (
	ModeIdle       Mode = "idle"
	ModeInstalling Mode = "installing"
	ModeStarting   Mode = "starting-dev"
	ModeDev        Mode = "dev-running"
	ModeStatic     Mode = "static-fallback"
)

// Defaults for the supervisor timing knobs.
const (
	DefaultPreviewPort     = 5173
	DefaultReadyTimeout    = 30 * time.Second
	DefaultFastExitWindow  = time.Second
	DefaultTriggerDebounce = 300 * time.Millisecond

	// maxAutoRestarts bounds remediation-driven restarts per dev launch.
	maxAutoRestarts = 3

	devTailBytes = 16 * 1024
)

// errReady is the errgroup sentinel carrying readiness through Wait.
var errReady = errors.New("dev server ready")

// Config configures a session supervisor.
type Config struct {
	// Sandbox provides the project tree and process spawning.
	Sandbox sandbox.Adapter
	// Bus receives preview_ready, terminal_output and session_error
	// events. Optional.
	Bus *bus.Bus
	// Logger is required.
	Logger *log.Logger
	// Collector records bootstrap metrics. Nil-safe.
	Collector *metrics.Collector
	// PackageManager is the install/start tool. Empty means npm.
	PackageManager string
	// PreviewPort is the port dev servers are bound to.
	PreviewPort int
	// StaticPort is the static fallback port; 0 picks a free one.
	StaticPort int
	// InstallTimeout is the watchdog per install attempt.
	InstallTimeout time.Duration
	// ReadyTimeout is the readiness ceiling for dev starts.
	ReadyTimeout time.Duration
	// FastExitWindow classifies early non-zero exits as missing deps.
	FastExitWindow time.Duration
	// TriggerDebounce coalesces bursts of tree mutations.
	TriggerDebounce time.Duration
}

// Supervisor is the per-session bootstrap state machine. One instance per
// session; constructed explicitly and passed into collaborators.
type Supervisor struct {
	cfg      Config
	registry *remedyRegistry

	// bootMu serializes bootstrap passes. Tree triggers use TryLock and
	// skip when busy; engine-delegated server starts wait.
	bootMu sync.Mutex

	mu                sync.Mutex
	mode              Mode
	projectRoot       string
	failureSignature  string
	failureDiagnostic string
	readyPorts        map[int]bool
	devCancel         context.CancelFunc
	devProc           sandbox.Process
	static            *staticServer

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a supervisor and starts watching tree mutations.
func New(cfg Config) *Supervisor {
	if cfg.PackageManager == "" {
		cfg.PackageManager = "npm"
	}
	if cfg.PreviewPort <= 0 {
		cfg.PreviewPort = DefaultPreviewPort
	}
	if cfg.InstallTimeout <= 0 {
		cfg.InstallTimeout = watchdogDefault
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	if cfg.FastExitWindow <= 0 {
		cfg.FastExitWindow = DefaultFastExitWindow
	}
	if cfg.TriggerDebounce <= 0 {
		cfg.TriggerDebounce = DefaultTriggerDebounce
	}

	s := &Supervisor{
		cfg:        cfg,
		registry:   newRemedyRegistry(),
		mode:       ModeIdle,
		readyPorts: make(map[int]bool),
		done:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.watchLoop()
	return s
}

// Mode returns the current supervisor state.
func (s *Supervisor) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// ProjectRoot returns the detected project root ("" for the tree root).
func (s *Supervisor) ProjectRoot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projectRoot
}

// watchLoop debounces tree mutations into bootstrap triggers.
func (s *Supervisor) watchLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	events := s.cfg.Sandbox.TreeEvents()
	for {
		select {
		case <-s.done:
			if armed && !timer.Stop() {
				<-timer.C
			}
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if armed && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.cfg.TriggerDebounce)
			armed = true
		case <-timer.C:
			armed = false
			s.Trigger()
		}
	}
}

// Trigger requests a bootstrap pass. Returns false when one is already
// running or a dev server is active; concurrent triggers are skipped, not
// queued, and rely on the next tree mutation to retry.
func (s *Supervisor) Trigger() bool {
	s.mu.Lock()
	busy := s.mode == ModeDev || s.mode == ModeStarting
	s.mu.Unlock()
	if busy {
		return false
	}
	if !s.bootMu.TryLock() {
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.bootMu.Unlock()
		s.bootstrap(context.Background())
	}()
	return true
}

// bootstrap is one full pass: locate root, install, start dev, or fall
// back. Callers hold bootMu.
func (s *Supervisor) bootstrap(ctx context.Context) {
	root, found := findProjectRoot(s.cfg.Sandbox)
	if !found {
		if entry, ok := findStaticEntry(s.cfg.Sandbox); ok {
			s.enterStaticFallback("", entry, "")
			return
		}
		// Nothing to bootstrap yet; defer without error and without
		// marking an attempt as made.
		s.cfg.Logger.Debug("no manifest or static entry yet, deferring", nil)
		return
	}

	s.mu.Lock()
	s.projectRoot = root
	s.mu.Unlock()

	if err := s.ensureInstalled(ctx, root); err != nil {
		if errors.Is(err, errSignatureBlocked) {
			return
		}
		var instErr *InstallError
		if errors.As(err, &instErr) {
			s.publishSessionError("install", instErr.Error(), "see diagnostic output on the fallback page")
			entry, _ := findStaticEntry(s.cfg.Sandbox)
			s.enterStaticFallback(root, entry, instErr.Diagnostic)
		} else {
			s.cfg.Logger.Warn("bootstrap install failed", map[string]any{
				"error": err.Error(),
			})
		}
		return
	}

	if err := s.startDev(ctx, "", 0); err != nil {
		s.cfg.Logger.Warn("dev server failed to start, falling back to static", map[string]any{
			"error": err.Error(),
		})
		s.mu.Lock()
		diag := s.failureDiagnostic
		s.mu.Unlock()
		entry, _ := findStaticEntry(s.cfg.Sandbox)
		s.enterStaticFallback(root, entry, diag)
	}
}

// ensureInstalled runs the install ladder when needed, honoring the
// dependency-directory skip and the failure signature guard.
func (s *Supervisor) ensureInstalled(ctx context.Context, root string) error {
	needed, err := s.installNeeded(root)
	if err != nil {
		return err
	}
	if !needed {
		return nil
	}

	s.setMode(ModeInstalling)
	defer s.setModeIf(ModeInstalling, ModeIdle)
	return s.runInstallLadder(ctx, root)
}

// StartServer implements the engine's server delegation: ensure the
// project is installed, launch the given command, and block until a
// readiness or failure signal. Part of the action chain, so failures
// surface as the action's settlement error.
func (s *Supervisor) StartServer(ctx context.Context, command string) error {
	s.bootMu.Lock()
	defer s.bootMu.Unlock()

	root, found := findProjectRoot(s.cfg.Sandbox)
	if found {
		s.mu.Lock()
		s.projectRoot = root
		s.mu.Unlock()
		if err := s.ensureInstalled(ctx, root); err != nil && !errors.Is(err, errSignatureBlocked) {
			var instErr *InstallError
			if errors.As(err, &instErr) {
				entry, _ := findStaticEntry(s.cfg.Sandbox)
				s.enterStaticFallback(root, entry, instErr.Diagnostic)
				return err
			}
			return err
		}
	}
	return s.startDev(ctx, command, 0)
}

// startDev computes and launches the dev command, then awaits readiness.
// restarts counts remediation-driven relaunches.
func (s *Supervisor) startDev(ctx context.Context, overrideCommand string, restarts int) error {
	s.stopDev()
	s.setMode(ModeStarting)

	s.mu.Lock()
	root := s.projectRoot
	s.mu.Unlock()

	command := overrideCommand
	if command == "" {
		command = s.cfg.PackageManager + " run dev"
	}
	if err := s.prepareProject(root); err != nil {
		s.cfg.Logger.Warn("project preparation failed", map[string]any{
			"error": err.Error(),
		})
	}

	devCtx, devCancel := context.WithCancel(context.Background())
	proc, err := s.cfg.Sandbox.Spawn(devCtx, sandbox.ProcessSpec{
		Command: command,
		Dir:     root,
	})
	if err != nil {
		devCancel()
		s.setMode(ModeIdle)
		return &StartError{Kind: StartErrorSpawn, Err: fmt.Errorf("spawn %q: %w", command, err)}
	}

	s.mu.Lock()
	s.devProc = proc
	s.devCancel = devCancel
	s.mu.Unlock()

	s.cfg.Logger.Info("dev server starting", map[string]any{
		"command": command,
		"root":    root,
	})

	tail := iox.NewTailBuffer(devTailBytes)
	readyLines := s.devStream(proc.Output(), tail, s.cfg.PreviewPort)

	exitCh := make(chan exitStatus, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		code, waitErr := proc.Wait()
		exitCh <- exitStatus{code: code, err: waitErr}
	}()

	start := time.Now()
	port, err := s.awaitReadiness(ctx, readyLines, exitCh, start)
	if err != nil {
		s.mu.Lock()
		s.failureDiagnostic = tail.String()
		s.mu.Unlock()
		s.stopDev()
		s.setMode(ModeIdle)

		if restarts < maxAutoRestarts {
			if handled, rerr := s.tryRemediate(ctx, root, tail.String()); handled && rerr == nil {
				return s.startDev(ctx, overrideCommand, restarts+1)
			}
		}
		return err
	}

	s.setMode(ModeDev)
	s.previewReady(port, false)

	// Monitor the running server: exit returns the machine to idle, with
	// one remediation-driven restart attempt on abnormal exit.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ex, ok := <-exitCh
		if !ok {
			return
		}
		s.mu.Lock()
		stillCurrent := s.devProc == proc
		s.mu.Unlock()
		if !stillCurrent {
			return
		}
		s.cfg.Logger.Info("dev server exited", map[string]any{
			"code": ex.code,
		})
		s.stopDev()
		s.setMode(ModeIdle)
		if ex.code == 0 || restarts >= maxAutoRestarts {
			return
		}
		// The restart must hold the bootstrap lock so it cannot run
		// startDev concurrently with a tree-trigger pass. Skip when one
		// is already running; its pass picks the project up instead.
		if !s.bootMu.TryLock() {
			return
		}
		defer s.bootMu.Unlock()
		if handled, rerr := s.tryRemediate(context.Background(), root, tail.String()); handled && rerr == nil {
			_ = s.startDev(context.Background(), overrideCommand, restarts+1)
		}
	}()

	return nil
}

// awaitReadiness coordinates the parallel watchers: sandbox port events,
// output readiness lines, the fast-exit detector and the ceiling timeout.
// All watchers are cleared on resolution.
func (s *Supervisor) awaitReadiness(ctx context.Context, readyLines <-chan int, exitCh chan exitStatus, started time.Time) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	// Buffered for both the port watcher and the line watcher racing.
	portCh := make(chan int, 2)

	g.Go(func() error {
		select {
		case ev, ok := <-s.cfg.Sandbox.PortEvents():
			if !ok {
				<-gctx.Done()
				return nil
			}
			portCh <- ev.Port
			return errReady
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		select {
		case port, ok := <-readyLines:
			if !ok {
				<-gctx.Done()
				return nil
			}
			portCh <- port
			return errReady
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		select {
		case ex := <-exitCh:
			// Refill for the caller's post-readiness monitor.
			exitCh <- ex
			if ex.err != nil {
				return &StartError{Kind: StartErrorSpawn, Err: ex.err}
			}
			if ex.code != 0 && time.Since(started) <= s.cfg.FastExitWindow {
				return fastExitError(ex.code)
			}
			return &StartError{
				Kind: StartErrorSpawn,
				Err:  fmt.Errorf("dev server exited with code %d before readiness", ex.code),
			}
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		timer := time.NewTimer(s.cfg.ReadyTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			return &StartError{
				Kind: StartErrorTimeout,
				Err:  fmt.Errorf("no readiness signal within %s", s.cfg.ReadyTimeout),
			}
		case <-gctx.Done():
			return nil
		}
	})

	err := g.Wait()
	if errors.Is(err, errReady) {
		return <-portCh, nil
	}
	if err == nil {
		err = ctx.Err()
	}
	return 0, err
}

// tryRemediate scans the output tail against the remediation registry and
// applies the first non-cooling match. Unrecognized output is logged only.
func (s *Supervisor) tryRemediate(ctx context.Context, root, output string) (bool, error) {
	rem, match, signature, ok := s.registry.match(output)
	if !ok {
		s.cfg.Logger.Info("no remediation matched dev failure", nil)
		return false, nil
	}

	s.cfg.Logger.Info("applying remediation", map[string]any{
		"remedy":    rem.name,
		"signature": signature,
	})
	outcome, err := rem.apply(s, root, match)
	if err != nil {
		s.cfg.Logger.Warn("remediation failed", map[string]any{
			"remedy": rem.name,
			"error":  err.Error(),
		})
		return true, err
	}
	s.cfg.Collector.IncRemediationApplied()

	if outcome.reinstall {
		// Force a fresh ladder run for the mutated manifest.
		s.mu.Lock()
		s.failureSignature = ""
		s.mu.Unlock()
		if err := s.runInstallLadder(ctx, root); err != nil {
			return true, err
		}
	}
	return true, nil
}

// prepareProject normalizes the manifest dev script and ensures entry
// scaffolding before a dev launch.
func (s *Supervisor) prepareProject(root string) error {
	manifestPath := projectPath(root, types.ManifestFilename)
	data, err := s.cfg.Sandbox.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	manifest, err := types.ParseManifest(data)
	if err != nil {
		manifest = types.SkeletonManifest("")
	}
	fw := DetectFramework(manifest)

	changed := manifest.EnsureDevScript()
	changed = normalizeDevScript(manifest, fw, s.cfg.PreviewPort) || changed
	if changed {
		out, encErr := manifest.Encode()
		if encErr != nil {
			return encErr
		}
		if err := s.cfg.Sandbox.WriteFile(manifestPath, out); err != nil {
			return err
		}
	}
	return ensureScaffolding(s.cfg.Sandbox, root, fw)
}

// enterStaticFallback serves the generated files statically. Idempotent;
// a running static server is kept.
func (s *Supervisor) enterStaticFallback(root, entry, diagnostic string) {
	s.mu.Lock()
	if s.static != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	srv, err := newStaticServer(s.cfg.Sandbox, root, entry, diagnostic, s.cfg.StaticPort, s.cfg.Logger)
	if err != nil {
		s.cfg.Logger.Error("static fallback failed to start", map[string]any{
			"error": err.Error(),
		})
		return
	}

	s.mu.Lock()
	s.static = srv
	s.mode = ModeStatic
	s.mu.Unlock()

	s.cfg.Collector.IncStaticFallback()
	s.cfg.Logger.Info("serving static fallback", map[string]any{
		"port":  srv.Port(),
		"entry": entry,
	})
	s.previewReady(srv.Port(), true)
}

// previewReady publishes the idempotent preview notification for a port.
// Host aliases are normalized to localhost in the emitted URL.
func (s *Supervisor) previewReady(port int, static bool) {
	s.mu.Lock()
	if s.readyPorts[port] {
		s.mu.Unlock()
		return
	}
	s.readyPorts[port] = true
	s.mu.Unlock()

	s.cfg.Collector.IncPreviewReady()
	url := fmt.Sprintf("http://localhost:%d", port)
	s.cfg.Logger.Info("preview ready", map[string]any{
		"port":   port,
		"url":    url,
		"static": static,
	})
	s.publish(types.SessionEvent{
		Type: types.EventTypePreviewReady,
		Preview: &types.PreviewPayload{
			Port:   port,
			URL:    url,
			Static: static,
		},
	})
}

// stopDev kills the active dev process, if any.
func (s *Supervisor) stopDev() {
	s.mu.Lock()
	proc := s.devProc
	cancel := s.devCancel
	s.devProc = nil
	s.devCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if proc != nil {
		_ = proc.Kill()
	}
}

// Reset stops the dev process, closes the static server, clears ready
// ports and failure state, and releases all guards.
func (s *Supervisor) Reset() {
	s.stopDev()

	s.mu.Lock()
	static := s.static
	s.static = nil
	s.readyPorts = make(map[int]bool)
	s.failureSignature = ""
	s.failureDiagnostic = ""
	s.mode = ModeIdle
	s.mu.Unlock()

	if static != nil {
		_ = static.Close()
	}
}

// Close resets the supervisor and stops the watch loop.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.Reset()
	s.wg.Wait()
}

func (s *Supervisor) setMode(mode Mode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// setModeIf transitions only when the current mode matches.
func (s *Supervisor) setModeIf(from, to Mode) {
	s.mu.Lock()
	if s.mode == from {
		s.mode = to
	}
	s.mu.Unlock()
}

func (s *Supervisor) publishTerminal(data []byte) {
	s.publish(types.SessionEvent{
		Type:     types.EventTypeTerminal,
		Terminal: &types.TerminalPayload{Data: data},
	})
}

func (s *Supervisor) publishSessionError(kind, message, hint string) {
	s.publish(types.SessionEvent{
		Type:  types.EventTypeSessionError,
		Error: &types.ErrorPayload{Kind: kind, Message: message, Hint: hint},
	})
}

func (s *Supervisor) publish(ev types.SessionEvent) {
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(ev)
	}
}
