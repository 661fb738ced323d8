package sandbox

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/pithecene-io/foundry/types"
)

// MemFS bounds. Eviction removes the oldest file entries past MaxFiles.
const (
	// DefaultMaxFiles caps the number of virtual file entries.
	DefaultMaxFiles = 1000
	// DefaultMaxFileBytes caps a single virtual file's size.
	DefaultMaxFileBytes = 4 * 1024 * 1024
)

// MemFS is the bounded in-memory virtual filesystem fallback.
// It accepts engine writes so generated code remains inspectable when the
// local sandbox never initialized. Spawn always fails with ErrUnavailable.
type MemFS struct {
	maxFiles    int
	maxFileSize int

	mu      sync.Mutex
	entries map[string]*types.VirtualFileEntry
	order   []string // file insertion order, for eviction

	treeCh chan TreeEvent
	portCh chan PortEvent
}

// MemFSConfig configures the in-memory fallback.
type MemFSConfig struct {
	// MaxFiles caps the number of file entries. Zero means DefaultMaxFiles.
	MaxFiles int
	// MaxFileBytes caps per-file size. Zero means DefaultMaxFileBytes.
	MaxFileBytes int
}

// NewMemFS creates an empty bounded virtual filesystem.
func NewMemFS(cfg MemFSConfig) *MemFS {
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	return &MemFS{
		maxFiles:    cfg.MaxFiles,
		maxFileSize: cfg.MaxFileBytes,
		entries:     make(map[string]*types.VirtualFileEntry),
		treeCh:      make(chan TreeEvent, 64),
		portCh:      make(chan PortEvent),
	}
}

// Root returns the empty string: there is no real root.
func (m *MemFS) Root() string { return "" }

// ReadFile reads a virtual file.
func (m *MemFS) ReadFile(p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[normalize(p)]
	if !ok || entry.Kind != types.VirtualEntryFile {
		return nil, fmt.Errorf("virtual file not found: %q", p)
	}
	out := make([]byte, len(entry.Content))
	copy(out, entry.Content)
	return out, nil
}

// WriteFile writes a virtual file, creating folder entries for parents and
// evicting the oldest files past the cap.
func (m *MemFS) WriteFile(p string, data []byte) error {
	if len(data) > m.maxFileSize {
		return fmt.Errorf("virtual file %q exceeds size cap (%d > %d)", p, len(data), m.maxFileSize)
	}
	key := normalize(p)

	m.mu.Lock()
	m.ensureParentsLocked(key)

	content := make([]byte, len(data))
	copy(content, data)
	if existing, ok := m.entries[key]; ok && existing.Kind == types.VirtualEntryFile {
		existing.Content = content
		existing.Binary = !utf8.Valid(content)
	} else {
		m.entries[key] = &types.VirtualFileEntry{
			Kind:    types.VirtualEntryFile,
			Content: content,
			Binary:  !utf8.Valid(content),
		}
		m.order = append(m.order, key)
		m.evictLocked()
	}
	m.mu.Unlock()

	select {
	case m.treeCh <- TreeEvent{Path: key}:
	default:
	}
	return nil
}

// MkdirAll records folder entries for the path and parents.
func (m *MemFS) MkdirAll(p string) error {
	key := normalize(p)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureParentsLocked(key + "/x")
	if _, ok := m.entries[key]; !ok {
		m.entries[key] = &types.VirtualFileEntry{Kind: types.VirtualEntryFolder}
	}
	return nil
}

// Exists reports whether a virtual path exists.
func (m *MemFS) Exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[normalize(p)]
	return ok
}

// Spawn always fails: there is no process capability in the fallback.
func (m *MemFS) Spawn(context.Context, ProcessSpec) (Process, error) {
	return nil, ErrUnavailable
}

// PortEvents returns a channel that never fires.
func (m *MemFS) PortEvents() <-chan PortEvent { return m.portCh }

// TreeEvents streams virtual tree mutations.
func (m *MemFS) TreeEvents() <-chan TreeEvent { return m.treeCh }

// Close is a no-op.
func (m *MemFS) Close() error { return nil }

// Snapshot returns a sorted copy of all entries for inspection surfaces.
func (m *MemFS) Snapshot() map[string]types.VirtualFileEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]types.VirtualFileEntry, len(m.entries))
	for k, v := range m.entries {
		out[k] = *v
	}
	return out
}

// List returns all virtual file paths, sorted.
func (m *MemFS) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.order))
	for _, p := range m.order {
		if _, ok := m.entries[p]; ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// ensureParentsLocked records folder entries for every ancestor of key.
func (m *MemFS) ensureParentsLocked(key string) {
	dir := path.Dir(key)
	for dir != "." && dir != "/" && dir != "" {
		if _, ok := m.entries[dir]; !ok {
			m.entries[dir] = &types.VirtualFileEntry{Kind: types.VirtualEntryFolder}
		}
		dir = path.Dir(dir)
	}
}

// evictLocked removes the oldest file entries past the cap.
func (m *MemFS) evictLocked() {
	for len(m.order) > m.maxFiles {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}
}

// normalize cleans a path to the canonical virtual key form.
func normalize(p string) string {
	return path.Clean("/" + p)[1:]
}
