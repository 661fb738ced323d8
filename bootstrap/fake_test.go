package bootstrap

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/pithecene-io/foundry/sandbox"
)

// fakeProcess is a scriptable sandbox process.
type fakeProcess struct {
	out      io.Reader
	exitCode int

	mu     sync.Mutex
	exited chan struct{}
	done   bool
}

// newFakeProcess creates a process emitting output. If holdOpen is true,
// Wait blocks until Kill or exit().
func newFakeProcess(output string, exitCode int, holdOpen bool) *fakeProcess {
	p := &fakeProcess{
		out:      strings.NewReader(output),
		exitCode: exitCode,
		exited:   make(chan struct{}),
	}
	if !holdOpen {
		p.exit()
	}
	return p
}

func (p *fakeProcess) Output() io.Reader { return p.out }

func (p *fakeProcess) Wait() (int, error) {
	<-p.exited
	return p.exitCode, nil
}

func (p *fakeProcess) Kill() error {
	p.exit()
	return nil
}

func (p *fakeProcess) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.done {
		p.done = true
		close(p.exited)
	}
}

// fakeAdapter is an in-memory scriptable sandbox for supervisor tests.
type fakeAdapter struct {
	mu      sync.Mutex
	files   map[string][]byte
	spawned []string
	spawn   func(spec sandbox.ProcessSpec) (sandbox.Process, error)

	treeCh chan sandbox.TreeEvent
	portCh chan sandbox.PortEvent
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		files:  make(map[string][]byte),
		treeCh: make(chan sandbox.TreeEvent, 16),
		portCh: make(chan sandbox.PortEvent, 16),
		spawn: func(sandbox.ProcessSpec) (sandbox.Process, error) {
			return newFakeProcess("", 0, false), nil
		},
	}
}

func (f *fakeAdapter) Root() string { return "/fake" }

func (f *fakeAdapter) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("not found: %s", path)
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeAdapter) WriteFile(path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = append([]byte(nil), data...)
	return nil
}

func (f *fakeAdapter) MkdirAll(string) error { return nil }

func (f *fakeAdapter) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; ok {
		return true
	}
	// Directories exist when any file lives under them.
	for p := range f.files {
		if strings.HasPrefix(p, path+"/") {
			return true
		}
	}
	return false
}

func (f *fakeAdapter) List() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.files))
	for p := range f.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeAdapter) Spawn(_ context.Context, spec sandbox.ProcessSpec) (sandbox.Process, error) {
	f.mu.Lock()
	f.spawned = append(f.spawned, spec.Command)
	spawn := f.spawn
	f.mu.Unlock()
	return spawn(spec)
}

func (f *fakeAdapter) PortEvents() <-chan sandbox.PortEvent { return f.portCh }
func (f *fakeAdapter) TreeEvents() <-chan sandbox.TreeEvent { return f.treeCh }
func (f *fakeAdapter) Close() error                         { return nil }

func (f *fakeAdapter) spawnedCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spawned...)
}

func (f *fakeAdapter) installSpawns() int {
	n := 0
	for _, cmd := range f.spawnedCommands() {
		if strings.Contains(cmd, "install") {
			n++
		}
	}
	return n
}
