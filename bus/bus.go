// Package bus provides the in-process session event stream.
//
// The execution engine and bootstrap supervisor publish typed
// SessionEvents; CLI surfaces (renderer, TUI, frame recorder, adapters)
// subscribe. Publishing never blocks: a slow subscriber loses its oldest
// buffered events rather than stalling the execution lane.
package bus

import (
	"sync"
	"time"

	"github.com/pithecene-io/foundry/types"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 256

// Bus stamps and fans out session events.
type Bus struct {
	sessionID string
	now       func() time.Time

	mu     sync.Mutex
	seq    int64
	subs   map[int]*subscriber
	nextID int
	closed bool
}

type subscriber struct {
	ch      chan types.SessionEvent
	dropped int64
}

// New creates a bus for one session.
func New(sessionID string) *Bus {
	return &Bus{
		sessionID: sessionID,
		now:       time.Now,
		subs:      make(map[int]*subscriber),
	}
}

// Publish stamps the envelope (session id, monotonic seq from 1, UTC
// timestamp, contract version) and delivers it to every subscriber.
// Events published after Close are discarded.
func (b *Bus) Publish(ev types.SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.seq++
	ev.ContractVersion = types.ContractVersion
	ev.SessionID = b.sessionID
	ev.Seq = b.seq
	ev.Ts = b.now().UTC().Format(time.RFC3339Nano)

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			// Buffer full: drop the oldest so the newest still lands.
			select {
			case <-sub.ch:
				sub.dropped++
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
}

// Subscribe registers a new subscriber with the given buffer capacity
// (<=0 means DefaultSubscriberBuffer). The returned cancel func
// unregisters and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(buffer int) (<-chan types.SessionEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan types.SessionEvent, buffer)}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Seq returns the sequence number of the most recently published event.
func (b *Bus) Seq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close terminates all subscriptions. Subsequent publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
