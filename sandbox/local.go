package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/pithecene-io/foundry/log"
)

// watchSkipDirs are directory names never watched for tree events.
// node_modules alone can hold tens of thousands of entries.
var watchSkipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".cache":       true,
	"dist":         true,
}

// LocalConfig configures the local sandbox.
type LocalConfig struct {
	// Root is the project root directory. Empty means a fresh temp dir.
	Root string
	// Ports are the candidate preview ports to poll for reachability.
	// Empty means DefaultPorts.
	Ports []int
	// Logger is required for watcher/poller diagnostics.
	Logger *log.Logger
}

// Local is the real-filesystem sandbox implementation.
type Local struct {
	root    string
	logger  *log.Logger
	watcher *fsnotify.Watcher
	poller  *portPoller

	treeCh chan TreeEvent

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewLocal initializes a local sandbox rooted at cfg.Root.
// Returns an error when the root cannot be created or watched; callers fall
// back to MemFS in that case.
func NewLocal(cfg LocalConfig) (*Local, error) {
	root := cfg.Root
	if root == "" {
		dir, err := os.MkdirTemp("", "foundry-project-")
		if err != nil {
			return nil, fmt.Errorf("create project root: %w", err)
		}
		root = dir
	} else {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create project root: %w", err)
		}
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create tree watcher: %w", err)
	}
	if err := watcher.Add(root); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch project root: %w", err)
	}

	l := &Local{
		root:    root,
		logger:  cfg.Logger,
		watcher: watcher,
		treeCh:  make(chan TreeEvent, 64),
		done:    make(chan struct{}),
	}

	ports := cfg.Ports
	if len(ports) == 0 {
		ports = DefaultPorts()
	}
	l.poller = newPortPoller(ports)

	go l.watchLoop()
	go l.poller.run(l.done)

	return l, nil
}

// Root returns the absolute project root.
func (l *Local) Root() string { return l.root }

// resolve maps a project-relative path inside the root, rejecting
// traversal outside it.
func (l *Local) resolve(path string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(path))
	if full != l.root && !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes project root: %q", path)
	}
	return full, nil
}

// ReadFile reads a project-relative path.
func (l *Local) ReadFile(path string) ([]byte, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// WriteFile writes a project-relative path, creating parent directories.
func (l *Local) WriteFile(path string, data []byte) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parent dirs: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// MkdirAll creates a project-relative directory and parents.
func (l *Local) MkdirAll(path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	return os.MkdirAll(full, 0o755)
}

// Exists reports whether a project-relative path exists.
func (l *Local) Exists(path string) bool {
	full, err := l.resolve(path)
	if err != nil {
		return false
	}
	_, statErr := os.Stat(full)
	return statErr == nil
}

// List walks the project tree and returns file paths relative to the
// root, skipping dependency and VCS directories.
func (l *Local) List() ([]string, error) {
	var out []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(l.root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if watchSkipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if rel != "." {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list project tree: %w", err)
	}
	return out, nil
}

// Spawn starts a shell command in the project root with combined output.
func (l *Local) Spawn(ctx context.Context, spec ProcessSpec) (Process, error) {
	dir := l.root
	if spec.Dir != "" {
		resolved, err := l.resolve(spec.Dir)
		if err != nil {
			return nil, err
		}
		dir = resolved
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return nil, fmt.Errorf("spawn %q: %w", spec.Command, err)
	}

	return &localProcess{cmd: cmd, out: pr, pw: pw}, nil
}

// PortEvents streams ports that became reachable.
func (l *Local) PortEvents() <-chan PortEvent { return l.poller.events }

// TreeEvents streams project tree mutations.
func (l *Local) TreeEvents() <-chan TreeEvent { return l.treeCh }

// Close stops the watcher and the port poller.
func (l *Local) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	return l.watcher.Close()
}

// watchLoop forwards fsnotify events as TreeEvents and extends the watch
// set as directories appear. Events are dropped rather than blocking when
// the consumer lags.
func (l *Local) watchLoop() {
	for {
		select {
		case <-l.done:
			return
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(l.root, ev.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if skipTreePath(rel) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if err := l.watcher.Add(ev.Name); err != nil {
						l.logger.Warn("failed to extend tree watch", map[string]any{
							"path":  rel,
							"error": err.Error(),
						})
					}
				}
			}
			select {
			case l.treeCh <- TreeEvent{Path: rel}:
			default:
				// Consumer lagging; bootstrap retriggers on the
				// next mutation anyway.
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("tree watcher error", map[string]any{"error": err.Error()})
		}
	}
}

// skipTreePath reports whether a project-relative path is inside a
// directory excluded from tree events.
func skipTreePath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if watchSkipDirs[part] {
			return true
		}
	}
	return false
}

// localProcess wraps an exec.Cmd with a combined-output pipe.
type localProcess struct {
	cmd *exec.Cmd
	out *io.PipeReader
	pw  *io.PipeWriter

	waitOnce sync.Once
	exitCode int
	waitErr  error
}

// Output returns the combined stdout+stderr stream.
func (p *localProcess) Output() io.Reader { return p.out }

// Wait blocks until exit and returns the exit code.
// Safe to call from multiple goroutines; all observe the same result.
func (p *localProcess) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		_ = p.pw.Close()

		if err == nil {
			p.exitCode = 0
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.exitCode = exitErr.ExitCode()
			return
		}
		p.exitCode = -1
		p.waitErr = err
	})
	return p.exitCode, p.waitErr
}

// Kill terminates the process.
func (p *localProcess) Kill() error {
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Kill()
	}
	return nil
}
