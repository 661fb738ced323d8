package bootstrap

import (
	"fmt"
	"mime"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/pithecene-io/foundry/log"
	"github.com/pithecene-io/foundry/sandbox"
	"github.com/pithecene-io/foundry/scaffold"
)

// staticServer is the minimal built-in file server used when no dev server
// can run. It serves the generated tree directly from the sandbox adapter,
// so it works against MemFS too.
type staticServer struct {
	adapter    sandbox.Adapter
	root       string
	entry      string
	diagnostic string
	logger     *log.Logger

	srv  *http.Server
	port int
}

// newStaticServer binds a listener on the given port (0 picks a free one)
// and starts serving. The diagnostic, when non-empty, is shown on the
// degraded-state page served for missing roots.
func newStaticServer(adapter sandbox.Adapter, root, entry, diagnostic string, port int, logger *log.Logger) (*staticServer, error) {
	s := &staticServer{
		adapter:    adapter,
		root:       root,
		entry:      entry,
		diagnostic: diagnostic,
		logger:     logger,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind static server: %w", err)
	}
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.srv = &http.Server{
		Handler:           http.HandlerFunc(s.serve),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Warn("static server stopped", map[string]any{
				"error": err.Error(),
			})
		}
	}()
	return s, nil
}

// Port returns the bound port.
func (s *staticServer) Port() int { return s.port }

// Close shuts the server down.
func (s *staticServer) Close() error { return s.srv.Close() }

func (s *staticServer) serve(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if rel == "" || rel == "." {
		rel = s.entry
	}

	if rel != "" {
		if data, err := s.adapter.ReadFile(projectPath(s.root, rel)); err == nil {
			if ct := mime.TypeByExtension(path.Ext(rel)); ct != "" {
				w.Header().Set("Content-Type", ct)
			}
			_, _ = w.Write(data)
			return
		}
	}

	// SPA-style fallback to the entry page for unknown paths; the
	// degraded page when there is no entry at all.
	if s.entry != "" && rel != s.entry {
		if data, err := s.adapter.ReadFile(projectPath(s.root, s.entry)); err == nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write(data)
			return
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write(scaffold.FallbackPage(s.diagnostic))
}
