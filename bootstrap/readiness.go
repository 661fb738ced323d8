package bootstrap

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pithecene-io/foundry/iox"
)

// readyPhrases are dev-server output fragments that indicate the server is
// accepting connections. Framework banners differ; the set covers vite,
// next, astro and plain node servers.
var readyPhrases = []string{
	"Local:",
	"ready in",
	"listening on",
	"Server running",
	"started server on",
	"Accepting connections",
}

// hostPortEcho matches a literal host:port echo in server output.
var hostPortEcho = regexp.MustCompile(`(?:https?://)?(?:localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1?\]):(\d{2,5})`)

// readinessFromLine inspects one output line for a readiness signal.
// Returns the announced port when the line echoes one, otherwise the
// configured fallback port with ok=true on a phrase match.
func readinessFromLine(line string, fallbackPort int) (int, bool) {
	if m := hostPortEcho.FindStringSubmatch(line); m != nil {
		if port, err := strconv.Atoi(m[1]); err == nil {
			return port, true
		}
	}
	for _, phrase := range readyPhrases {
		if strings.Contains(line, phrase) {
			return fallbackPort, true
		}
	}
	return 0, false
}

// exitStatus carries a dev process exit to the readiness loop.
type exitStatus struct {
	code int
	err  error
}

// devStream fans one process output stream out to the terminal surfaces,
// the diagnostic tail and the readiness line channel. The ready channel
// receives at most one port; lines keep flowing into the tail afterwards
// for remediation scanning.
func (s *Supervisor) devStream(r io.Reader, tail *iox.TailBuffer, fallbackPort int) <-chan int {
	ready := make(chan int, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		announced := false
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 256*1024)
		for scanner.Scan() {
			line := scanner.Text()
			chunk := append([]byte(line), '\n')
			_, _ = tail.Write(chunk)
			s.publishTerminal(chunk)

			if !announced {
				if port, ok := readinessFromLine(line, fallbackPort); ok {
					announced = true
					ready <- port
				}
			}
		}
		close(ready)
	}()
	return ready
}

// fastExitError builds the canonical fast-exit failure.
func fastExitError(code int) *StartError {
	return &StartError{
		Kind: StartErrorFastExit,
		Err:  fmt.Errorf("dev server exited with code %d during startup: likely missing dependencies", code),
	}
}
