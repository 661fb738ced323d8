//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/json"
	"fmt"
)

// ManifestFilename is the project manifest filename that triggers bootstrap.
const ManifestFilename = "package.json"

// DefaultDevScript is the dev-start script injected when a manifest has none.
const DefaultDevScript = "vite --host 0.0.0.0"

// PackageManifest is the minimal package.json model foundry reasons about.
// Unknown fields are not preserved; repair always produces a fresh, valid
// manifest rather than patching malformed input in place.
type PackageManifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version,omitempty"`
	Type            string            `json:"type,omitempty"`
	Private         bool              `json:"private,omitempty"`
	Scripts         map[string]string `json:"scripts,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}

// ParseManifest decodes manifest bytes.
// Returns an error for malformed JSON or a non-object document.
func ParseManifest(data []byte) (*PackageManifest, error) {
	var m PackageManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// SkeletonManifest returns a minimal valid manifest with a working dev-start
// entry. Used as the fallback when a streamed manifest fails to parse.
func SkeletonManifest(name string) *PackageManifest {
	if name == "" {
		name = "foundry-app"
	}
	return &PackageManifest{
		Name:    name,
		Version: "0.0.0",
		Type:    "module",
		Private: true,
		Scripts: map[string]string{
			"dev": DefaultDevScript,
		},
	}
}

// EnsureDevScript guarantees the manifest has a dev-start entry.
// Returns true if the manifest was modified.
func (m *PackageManifest) EnsureDevScript() bool {
	if m.Scripts == nil {
		m.Scripts = map[string]string{}
	}
	if _, ok := m.Scripts["dev"]; ok {
		return false
	}
	// Fall back to "start" when present, otherwise inject the default.
	if start, ok := m.Scripts["start"]; ok {
		m.Scripts["dev"] = start
		return true
	}
	m.Scripts["dev"] = DefaultDevScript
	return true
}

// Encode renders the manifest as indented JSON with a trailing newline,
// matching what package managers expect on disk.
func (m *PackageManifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return append(data, '\n'), nil
}
