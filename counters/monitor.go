package counters

import (
	"sync"
	"time"

	"github.com/c12stack/c12/channel"
)

// flushInterval is the fixed period the hub's private worker drains queued
// events at.
const flushInterval = 500 * time.Millisecond

// event is one queued monitor message awaiting flush.
type event struct {
	kind    channel.EventKind
	payload string
}

// MonitorHub is a process-wide registry of monitor sinks fed by a single
// private flush worker. OnMessage is fire-and-forget: events are buffered
// under a short lock and delivered to the attached sinks by the worker, so
// the protocol thread never blocks on a slow sink. The worker starts when
// the first sink attaches and is joined when the last detaches; the join
// happens OUTSIDE the hub lock because the flush goroutine may itself be
// entering the locked section at teardown time.
type MonitorHub struct {
	mu      sync.Mutex
	sinks   []channel.MonitorSink
	pending []event
	stop    chan struct{}
	done    chan struct{}
}

// NewMonitorHub returns an empty hub with no worker running.
func NewMonitorHub() *MonitorHub {
	return &MonitorHub{}
}

// Attach registers sink and starts the flush worker if it is the first.
// Attaching the same sink twice is a caller error; the hub does not dedupe.
func (h *MonitorHub) Attach(sink channel.MonitorSink) {
	h.mu.Lock()
	h.sinks = append(h.sinks, sink)
	if len(h.sinks) == 1 {
		h.stop = make(chan struct{})
		h.done = make(chan struct{})
		go h.worker(h.stop, h.done)
	}
	h.mu.Unlock()
}

// Detach unregisters sink; when the last sink leaves, the worker is
// stopped and joined outside the lock.
func (h *MonitorHub) Detach(sink channel.MonitorSink) {
	// Events queued while sink was attached are delivered before it leaves.
	h.Flush()
	h.mu.Lock()
	for i, s := range h.sinks {
		if s == sink {
			h.sinks = append(h.sinks[:i], h.sinks[i+1:]...)
			break
		}
	}
	var stop chan struct{}
	var done chan struct{}
	if len(h.sinks) == 0 && h.stop != nil {
		stop, done = h.stop, h.done
		h.stop, h.done = nil, nil
	}
	h.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// OnMessage buffers one event for the next flush. Implements
// channel.MonitorSink so a hub can be installed directly as a channel's
// monitor.
func (h *MonitorHub) OnMessage(kind channel.EventKind, payload string) {
	h.mu.Lock()
	if len(h.sinks) > 0 {
		h.pending = append(h.pending, event{kind: kind, payload: payload})
	}
	h.mu.Unlock()
}

// IsListening reports whether any sink is attached.
func (h *MonitorHub) IsListening() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks) > 0
}

// Flush synchronously delivers all pending events, used by tests and at
// orderly shutdown; the worker calls the same path on its timer.
func (h *MonitorHub) Flush() {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	sinks := append([]channel.MonitorSink(nil), h.sinks...)
	h.mu.Unlock()

	for _, ev := range pending {
		for _, s := range sinks {
			if s.IsListening() {
				s.OnMessage(ev.kind, ev.payload)
			}
		}
	}
}

func (h *MonitorHub) worker(stop, done chan struct{}) {
	t := time.NewTicker(flushInterval)
	defer t.Stop()
	defer close(done)
	for {
		select {
		case <-stop:
			h.Flush()
			return
		case <-t.C:
			h.Flush()
		}
	}
}

var _ channel.MonitorSink = (*MonitorHub)(nil)
