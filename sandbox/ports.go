package sandbox

import (
	"fmt"
	"net"
	"time"
)

// pollInterval is how often candidate ports are probed.
const pollInterval = 250 * time.Millisecond

// dialTimeout bounds each probe; candidate ports are local, so a short
// timeout is enough.
const dialTimeout = 150 * time.Millisecond

// DefaultPorts returns the candidate preview ports polled for reachability:
// the common dev-server defaults.
func DefaultPorts() []int {
	return []int{5173, 3000, 8080, 4321, 4000}
}

// portPoller probes candidate TCP ports and emits a PortEvent the first
// time each becomes reachable. There is no webcontainer-style port event
// source on a plain host, so polling stands in for it.
type portPoller struct {
	ports  []int
	events chan PortEvent
	seen   map[int]bool
}

func newPortPoller(ports []int) *portPoller {
	return &portPoller{
		ports:  ports,
		events: make(chan PortEvent, 8),
		seen:   make(map[int]bool, len(ports)),
	}
}

// run polls until done is closed.
func (p *portPoller) run(done <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			p.probe()
		}
	}
}

// probe checks every not-yet-seen candidate port.
func (p *portPoller) probe() {
	for _, port := range p.ports {
		if p.seen[port] {
			continue
		}
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), dialTimeout)
		if err != nil {
			continue
		}
		_ = conn.Close()
		p.seen[port] = true
		select {
		case p.events <- PortEvent{Port: port}:
		default:
		}
	}
}
