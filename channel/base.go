package channel

import (
	"sync"
	"time"

	"github.com/c12stack/c12/primitives"
)

// Base implements the transport-agnostic bookkeeping shared by every
// concrete Channel: counters, monitor hook, cancel flag and the three
// timeout knobs. Concrete channels (serial, socket, loopback) embed Base and
// implement only the transport-specific Connect/Disconnect/Write/Read pair.
type Base struct {
	mu sync.Mutex

	counters Counters
	monitor  MonitorSink

	Cancel primitives.AtomicFlag

	ReadTimeout             time.Duration
	WriteTimeout            time.Duration
	IntercharacterTimeout   time.Duration
}

// NewBase returns a Base with the conventional C12 defaults.
func NewBase() Base {
	return Base{
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
		IntercharacterTimeout: 500 * time.Millisecond,
	}
}

func (b *Base) Counts() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters
}

func (b *Base) ResetCounts() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters = Counters{}
}

func (b *Base) addSent(n int) { b.AddSent(n) }

func (b *Base) addReceived(n int) { b.AddReceived(n) }

// AddSent accounts n freshly written bytes and fires EventChannelByteTx.
// Concrete channel implementations in sibling packages (serial, modem,
// socket) call this after a successful write since Base's own counters
// field is unexported.
func (b *Base) AddSent(n int) {
	b.mu.Lock()
	b.counters.BytesSent += uint64(n)
	b.mu.Unlock()
	b.MonitorEvent(EventChannelByteTx, "")
}

// AddReceived accounts n freshly read bytes and fires EventChannelByteRx.
func (b *Base) AddReceived(n int) {
	b.mu.Lock()
	b.counters.BytesReceived += uint64(n)
	b.mu.Unlock()
	b.MonitorEvent(EventChannelByteRx, "")
}

func (b *Base) SetMonitor(sink MonitorSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.monitor = sink
}

func (b *Base) MonitorEvent(kind EventKind, payload string) {
	b.mu.Lock()
	m := b.monitor
	b.mu.Unlock()
	if m != nil && m.IsListening() {
		m.OnMessage(kind, payload)
	}
}

func (b *Base) SetReadTimeout(d time.Duration)           { b.ReadTimeout = d }
func (b *Base) SetWriteTimeout(d time.Duration)          { b.WriteTimeout = d }
func (b *Base) SetIntercharacterTimeout(d time.Duration) { b.IntercharacterTimeout = d }

func (b *Base) GetReadTimeout() time.Duration           { return b.ReadTimeout }
func (b *Base) GetWriteTimeout() time.Duration          { return b.WriteTimeout }
func (b *Base) GetIntercharacterTimeout() time.Duration { return b.IntercharacterTimeout }

// ReadTimeoutSavior overrides ReadTimeout for the duration of a single call;
// the caller defers the returned Restore so the prior value comes back on
// every exit path.
func (b *Base) ReadTimeoutSavior(d time.Duration) primitives.Restore {
	prev := b.ReadTimeout
	b.ReadTimeout = d
	return func() { b.ReadTimeout = prev }
}

// WriteTimeoutSavior is the write-side equivalent, used around packet
// transmission.
func (b *Base) WriteTimeoutSavior(d time.Duration) primitives.Restore {
	prev := b.WriteTimeout
	b.WriteTimeout = d
	return func() { b.WriteTimeout = prev }
}

// Sleep is a cancellable wait: it checks Cancel at 50ms granularity so a
// CancelCommunication lands within one tick instead of blocking the full
// duration.
func (b *Base) Sleep(d time.Duration) error {
	const tick = 50 * time.Millisecond
	deadline := time.Now().Add(d)
	for {
		if b.Cancel.IsSet() {
			return ErrOperationCancelled
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > tick {
			remaining = tick
		}
		time.Sleep(remaining)
	}
}

// CancelCommunication sets the cancel flag so any reader/writer polling it
// unwinds with ErrOperationCancelled. Disconnecting is left to the embedder,
// which must check alsoDisconnect and call its own Disconnect.
func (b *Base) CancelCommunication() {
	b.Cancel.Set()
}

// ClearCancel clears the cancel flag; called on successful Connect so a
// previous cancellation does not leak into a new session.
func (b *Base) ClearCancel() {
	b.Cancel.Clear()
}
