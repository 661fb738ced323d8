package session

import (
	"context"
	"os"
	"time"

	"github.com/pithecene-io/foundry/adapter"
	"github.com/pithecene-io/foundry/bus"
	"github.com/pithecene-io/foundry/ipc"
	"github.com/pithecene-io/foundry/log"
	"github.com/pithecene-io/foundry/types"
)

// recorderBuffer sizes the recorder's bus subscription. Terminal output can
// burst, so the buffer is generous; the bus drops on overflow rather than
// blocking publishers.
const recorderBuffer = 1024

// recorder persists the session event stream to a file as length-prefixed
// msgpack frames. The file can be replayed later with ipc.ReadAll.
type recorder struct {
	file   *os.File
	cancel func()
	done   chan struct{}
}

// newRecorder opens (truncating) the events file and starts draining the
// bus into it. The goroutine ends when the bus closes.
func newRecorder(path string, b *bus.Bus) (*recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	events, cancel := b.Subscribe(recorderBuffer)
	r := &recorder{
		file:   f,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		enc := ipc.NewFrameEncoder(f)
		for ev := range events {
			// A failed write poisons the rest of the file anyway, so
			// stop recording on the first error.
			if err := enc.WriteEvent(ev); err != nil {
				return
			}
		}
	}()

	return r, nil
}

// wait blocks until the recorder has drained its subscription, then closes
// the file. Call after the bus is closed.
func (r *recorder) wait() {
	<-r.done
	r.cancel()
	_ = r.file.Close()
}

// notifyForwarder bridges preview_ready bus events to the outbound adapter.
// Completion notices are published separately by the session on close.
type notifyForwarder struct {
	done chan struct{}
}

func newNotifyForwarder(n adapter.Adapter, b *bus.Bus, sessionID string, logger *log.Logger) *notifyForwarder {
	events, cancel := b.Subscribe(64)
	f := &notifyForwarder{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer cancel()
		for ev := range events {
			if ev.Type != types.EventTypePreviewReady || ev.Preview == nil {
				continue
			}
			ctx, cancelPub := context.WithTimeout(context.Background(), 10*time.Second)
			err := n.Publish(ctx, &adapter.SessionNotice{
				ContractVersion: types.ContractVersion,
				EventType:       adapter.NoticePreviewReady,
				SessionID:       sessionID,
				Timestamp:       ev.Ts,
				URL:             ev.Preview.URL,
				Port:            ev.Preview.Port,
			})
			cancelPub()
			if err != nil {
				logger.Warn("preview notice failed", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}()

	return f
}

// wait blocks until the forwarder has drained its subscription. Call after
// the bus is closed.
func (f *notifyForwarder) wait() {
	<-f.done
}
