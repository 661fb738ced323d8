package engine

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/pithecene-io/foundry/types"
)

// executeFile dispatches a file action: strips residual fence markers,
// repairs the project manifest when targeted, and writes through the
// configured flush policy.
func (e *Engine) executeFile(ctx context.Context, action types.Action) error {
	if action.FilePath == "" {
		return &ActionExecutionError{
			Kind:     ActionErrorWrite,
			ActionID: action.ID,
			Err:      fmt.Errorf("file action without file path"),
		}
	}

	content := stripResidualFence(action.Content)
	data := []byte(content)

	if path.Base(action.FilePath) == types.ManifestFilename {
		data = e.repairManifest(data)
	}

	if e.cfg.Degraded {
		e.degradedOnce.Do(func() {
			e.cfg.Logger.Warn("sandbox unavailable, writing to in-memory tree only", map[string]any{
				"action_id": action.ID,
			})
		})
	}

	if err := e.cfg.Policy.WriteFile(ctx, action.FilePath, data); err != nil {
		return &ActionExecutionError{
			Kind:     ActionErrorWrite,
			ActionID: action.ID,
			Err:      fmt.Errorf("write %s: %w", action.FilePath, err),
		}
	}

	e.cfg.Logger.Debug("file written", map[string]any{
		"action_id": action.ID,
		"path":      action.FilePath,
		"bytes":     len(data),
	})
	return nil
}

// repairManifest guarantees manifest writes land as valid JSON with a
// working dev-start entry. Malformed input is replaced by a skeleton
// rather than patched in place.
func (e *Engine) repairManifest(data []byte) []byte {
	manifest, err := types.ParseManifest(data)
	if err != nil {
		e.cfg.Logger.Warn("manifest failed to parse, writing skeleton", map[string]any{
			"error": err.Error(),
		})
		manifest = types.SkeletonManifest("")
	}
	if manifest.EnsureDevScript() {
		e.cfg.Logger.Debug("injected dev script into manifest", nil)
	}

	out, err := manifest.Encode()
	if err != nil {
		// Encode failure of a plain struct should not happen; fall back
		// to the skeleton which is known-encodable.
		out, _ = types.SkeletonManifest("").Encode()
	}
	return out
}

// stripResidualFence removes a markdown fence that survived parsing around
// a file payload: a leading ```lang line and a trailing ``` line.
func stripResidualFence(content string) string {
	trimmed := strings.TrimRight(content, "\n")
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return content
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		return content
	}
	last := len(lines) - 1
	if strings.TrimSpace(lines[last]) != "```" {
		return content
	}
	body := strings.Join(lines[1:last], "\n")
	if body != "" && !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	return body
}
