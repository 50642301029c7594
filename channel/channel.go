// Package channel defines the byte-oriented transport contract consumed by
// the link layer. Concrete specialisations live in
// channel/serial, channel/modem and channel/socket; higher layers only ever
// depend on the Channel interface here.
package channel

import (
	"errors"
	"time"
)

// Sentinel errors for the transport-side failure conditions. Link
// and application layers compare against these with errors.Is.
var (
	ErrReadTimeout              = errors.New("channel: read timeout")
	ErrOperationCancelled       = errors.New("channel: operation cancelled")
	ErrDisconnectedUnexpectedly = errors.New("channel: disconnected unexpectedly")
	ErrNotSupportedForThisType  = errors.New("channel: not supported for this channel type")
	ErrNotConnected             = errors.New("channel: not connected")
)

// MonitorSink receives fire-and-forget protocol events. It must never
// block the calling goroutine.
type MonitorSink interface {
	OnMessage(kind EventKind, payload string)
	IsListening() bool
}

// EventKind enumerates the monitor event vocabulary the core emits; sinks
// interpret the values, the core stays opaque to their meaning.
type EventKind int

const (
	EventChannelAttach EventKind = iota
	EventChannelConnect
	EventChannelDisconnect
	EventChannelByteRx
	EventChannelByteTx
	EventLinkLayerFail
	EventLinkLayerInformation
	EventApplicationLayerFail
	EventApplicationLayerInformation
)

// Counters tracks bytes moved over a Channel; ResetCounts zeroes both.
type Counters struct {
	BytesSent     uint64
	BytesReceived uint64
}

// Channel is the byte-transport contract the protocol stack is written
// against. Every blocking call must be interruptible through
// CancelCommunication: once the cancel
// flag is set, in-flight and subsequent reads/writes return
// ErrOperationCancelled until the next successful Connect clears it.
type Channel interface {
	Connect() error
	Disconnect() error
	IsConnected() bool

	WriteBuffer(b []byte) error
	WriteChar(c byte) error
	FlushOutputBuffer(hintBytes int) error

	// ReadBuffer reads exactly len(buf) bytes or returns ErrReadTimeout.
	ReadBuffer(buf []byte) error

	// DoReadCancellable reads up to len(buf) bytes within timeout. When
	// allowPartial is true it returns as soon as any byte has arrived
	// (including 0 bytes read on timeout); otherwise it blocks for exactly
	// len(buf) bytes or times out. The cancel flag is polled between
	// underlying reads.
	DoReadCancellable(buf []byte, timeout time.Duration, allowPartial bool) (int, error)

	ClearInputBuffer() error

	// CancelCommunication sets the cancel flag; if alsoDisconnect, the
	// transport is also closed. Safe to call from any goroutine.
	CancelCommunication(alsoDisconnect bool)

	// Sleep is a cancellable wait: it checks the cancel flag at coarse
	// intervals and returns ErrOperationCancelled early if set.
	Sleep(d time.Duration) error

	// Optional serial-only operations. Implementations that do not support
	// them return ErrNotSupportedForThisType.
	GetDCD() (bool, error)
	SetDtrControl(mode LineMode) error
	SetRtsControl(mode LineMode) error
	SetBaud(baud int) error
	SetParameters(baud, dataBits int, parity Parity, stopBits StopBits) error

	SetReadTimeout(d time.Duration)
	SetWriteTimeout(d time.Duration)
	SetIntercharacterTimeout(d time.Duration)
	GetReadTimeout() time.Duration
	GetWriteTimeout() time.Duration
	GetIntercharacterTimeout() time.Duration

	Counts() Counters
	ResetCounts()

	SetMonitor(sink MonitorSink)
	MonitorEvent(kind EventKind, payload string)
}

// LineMode is the tri-state DTR/RTS control value
// (SetDtrControl('E'|'D'|'H')).
type LineMode byte

const (
	LineEnable  LineMode = 'E'
	LineDisable LineMode = 'D'
	LineHandshake LineMode = 'H'
)

// Parity mirrors the classic serial parity settings.
type Parity byte

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// StopBits mirrors the classic serial stop-bit counts.
type StopBits byte

const (
	StopBits1 StopBits = iota
	StopBits1_5
	StopBits2
)
