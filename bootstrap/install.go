package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pithecene-io/foundry/iox"
	"github.com/pithecene-io/foundry/sandbox"
	"github.com/pithecene-io/foundry/types"
)

// installTailBytes bounds the retained diagnostic tail per attempt.
const installTailBytes = 8 * 1024

// installAttempt is one rung of the escalating install ladder.
type installAttempt struct {
	name string
	// command builds the install invocation for the package manager.
	command func(pm string) string
	// env is extra environment for the attempt.
	env []string
	// prepare mutates the project before the attempt (dependency
	// sanitation). Nil for the plain rungs.
	prepare func(s *Supervisor, root string) error
}

// installLadder runs in order until one rung succeeds. Escalation trades
// correctness guarantees for the chance of a working node_modules.
var installLadder = []installAttempt{
	{
		name:    "plain",
		command: func(pm string) string { return pm + " install" },
	},
	{
		name:    "ignore-scripts",
		command: func(pm string) string { return pm + " install --ignore-scripts" },
	},
	{
		name:    "relaxed",
		command: func(pm string) string { return pm + " install --force" },
		env:     []string{"npm_config_engine_strict=false", "npm_config_legacy_peer_deps=true"},
	},
	{
		name:    "sanitized",
		command: func(pm string) string { return pm + " install" },
		prepare: func(s *Supervisor, root string) error { return s.sanitizeDependencies(root) },
	},
}

// manifestSignature fingerprints manifest bytes for the retry guard.
func manifestSignature(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// runInstallLadder executes the ladder against the project root. Each
// attempt is bounded by the watchdog timeout; a hung process is killed.
// First success short-circuits. Exhaustion returns an InstallError with
// the manifest signature and the last attempt's diagnostic tail.
func (s *Supervisor) runInstallLadder(ctx context.Context, root string) error {
	manifestPath := projectPath(root, types.ManifestFilename)
	manifestBytes, err := s.cfg.Sandbox.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	signature := manifestSignature(manifestBytes)

	s.cfg.Collector.IncInstallAttempted()

	var lastErr error
	var lastTail string
	for _, attempt := range installLadder {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt.prepare != nil {
			if err := attempt.prepare(s, root); err != nil {
				s.cfg.Logger.Warn("install preparation failed", map[string]any{
					"attempt": attempt.name,
					"error":   err.Error(),
				})
				lastErr = err
				continue
			}
		}

		command := attempt.command(s.cfg.PackageManager)
		s.cfg.Logger.Info("running install attempt", map[string]any{
			"attempt": attempt.name,
			"command": command,
		})

		tail, err := s.runInstallAttempt(ctx, root, command, attempt.env)
		if err == nil {
			s.cfg.Logger.Info("install succeeded", map[string]any{
				"attempt": attempt.name,
			})
			return nil
		}
		lastErr = err
		lastTail = tail
		s.cfg.Logger.Warn("install attempt failed", map[string]any{
			"attempt": attempt.name,
			"error":   err.Error(),
		})
	}

	s.cfg.Collector.IncInstallFailed()
	s.recordInstallFailure(signature, lastTail)
	return &InstallError{
		Signature:  signature,
		Diagnostic: lastTail,
		Err:        lastErr,
	}
}

// runInstallAttempt spawns one install command under the watchdog timeout
// and returns the retained output tail alongside any failure.
func (s *Supervisor) runInstallAttempt(ctx context.Context, root, command string, env []string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.InstallTimeout)
	defer cancel()

	proc, err := s.cfg.Sandbox.Spawn(attemptCtx, sandbox.ProcessSpec{
		Command: command,
		Dir:     root,
		Env:     env,
	})
	if err != nil {
		return "", fmt.Errorf("spawn %q: %w", command, err)
	}

	tail := iox.NewTailBuffer(installTailBytes)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		s.streamOutput(proc.Output(), tail)
	}()

	code, waitErr := proc.Wait()
	<-streamDone

	if attemptCtx.Err() == context.DeadlineExceeded {
		_ = proc.Kill()
		return tail.String(), fmt.Errorf("%q timed out after %s", command, s.cfg.InstallTimeout)
	}
	if waitErr != nil {
		return tail.String(), fmt.Errorf("wait %q: %w", command, waitErr)
	}
	if code != 0 {
		return tail.String(), fmt.Errorf("%q exited with code %d", command, code)
	}
	return tail.String(), nil
}

// sanitizeDependencies normalizes malformed version ranges to a safe
// default and injects missing peer packages for the detected framework.
// Writes the repaired manifest back before the final install attempt.
func (s *Supervisor) sanitizeDependencies(root string) error {
	manifestPath := projectPath(root, types.ManifestFilename)
	data, err := s.cfg.Sandbox.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	manifest, err := types.ParseManifest(data)
	if err != nil {
		manifest = types.SkeletonManifest("")
	}

	changed := false
	for _, deps := range []map[string]string{manifest.Dependencies, manifest.DevDependencies} {
		for name, version := range deps {
			if !validVersionRange(version) {
				s.cfg.Logger.Warn("normalized malformed version range", map[string]any{
					"package": name,
					"version": version,
				})
				deps[name] = "latest"
				changed = true
			}
		}
	}

	changed = injectPeerDependencies(manifest) || changed
	if !changed {
		return nil
	}

	out, err := manifest.Encode()
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return s.cfg.Sandbox.WriteFile(manifestPath, out)
}

// injectPeerDependencies adds well-known peers the model tends to omit.
func injectPeerDependencies(m *types.PackageManifest) bool {
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	if m.DevDependencies == nil {
		m.DevDependencies = map[string]string{}
	}
	has := func(name string) bool {
		if _, ok := m.Dependencies[name]; ok {
			return true
		}
		_, ok := m.DevDependencies[name]
		return ok
	}

	changed := false
	if has("react") && !has("react-dom") {
		m.Dependencies["react-dom"] = m.Dependencies["react"]
		if m.Dependencies["react-dom"] == "" {
			m.Dependencies["react-dom"] = "latest"
		}
		changed = true
	}
	usesVite := strings.Contains(m.Scripts["dev"], "vite") || strings.Contains(m.Scripts["build"], "vite")
	if usesVite && !has("vite") {
		m.DevDependencies["vite"] = "latest"
		changed = true
	}
	if usesVite && has("react") && !has("@vitejs/plugin-react") {
		m.DevDependencies["@vitejs/plugin-react"] = "latest"
		changed = true
	}
	return changed
}

// validVersionRange accepts the semver range forms npm accepts; anything
// else gets normalized to "latest" during sanitation.
func validVersionRange(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	switch v {
	case "latest", "*", "next":
		return true
	}
	if strings.HasPrefix(v, "npm:") || strings.HasPrefix(v, "file:") ||
		strings.HasPrefix(v, "workspace:") {
		return true
	}
	c := v[0]
	if c == '^' || c == '~' || c == '>' || c == '<' || c == '=' {
		v = strings.TrimLeft(v, "^~><=")
		if v == "" {
			return false
		}
		c = v[0]
	}
	return c >= '0' && c <= '9'
}

// streamOutput mirrors process output to the session terminal surfaces
// and the supplied tail buffer.
func (s *Supervisor) streamOutput(r io.Reader, tail *iox.TailBuffer) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if tail != nil {
				_, _ = tail.Write(chunk)
			}
			s.publishTerminal(chunk)
		}
		if err != nil {
			return
		}
	}
}

// installGuard wraps the dependency-directory and signature checks.
// Returns false when installation should be skipped entirely.
func (s *Supervisor) installNeeded(root string) (bool, error) {
	if s.cfg.Sandbox.Exists(projectPath(root, "node_modules")) {
		s.cfg.Logger.Debug("dependency directory present, skipping install", nil)
		return false, nil
	}

	manifestPath := projectPath(root, types.ManifestFilename)
	data, err := s.cfg.Sandbox.ReadFile(manifestPath)
	if err != nil {
		return false, fmt.Errorf("read manifest: %w", err)
	}

	s.mu.Lock()
	blocked := s.failureSignature != "" && s.failureSignature == manifestSignature(data)
	s.mu.Unlock()
	if blocked {
		s.cfg.Logger.Info("manifest unchanged since failed install, skipping retry", nil)
		return false, errSignatureBlocked
	}
	return true, nil
}

// errSignatureBlocked marks an install skipped by the failure signature
// guard. Internal control flow, never surfaced.
var errSignatureBlocked = fmt.Errorf("install blocked by failure signature")

// recordInstallFailure stores the signature and diagnostic for the guard
// and the fallback page.
func (s *Supervisor) recordInstallFailure(signature, diagnostic string) {
	s.mu.Lock()
	s.failureSignature = signature
	s.failureDiagnostic = diagnostic
	s.mu.Unlock()
}

// watchdogDefault bounds a single install attempt.
const watchdogDefault = 2 * time.Minute
