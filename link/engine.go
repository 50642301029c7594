package link

import (
	"time"

	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/channel"
	"github.com/c12stack/c12/counters"
)

// MaxBadPacketLengthSleep bounds the sleep issued when an inbound LEN field
// is non-positive, before the input is drained.
const MaxBadPacketLengthSleep = 1 * time.Second

// Timing is the per-session timing quadruple negotiated by TimingSetup and
// consumed by the link engine.
type Timing struct {
	IntercharacterTimeout time.Duration
	AcknowledgementTimeout time.Duration
	ChannelTrafficTimeout time.Duration
	LinkLayerRetries      int
}

// DefaultTiming matches the ANSI C12 defaults.
func DefaultTiming() Timing {
	return Timing{
		IntercharacterTimeout:  500 * time.Millisecond,
		AcknowledgementTimeout: 3 * time.Second,
		ChannelTrafficTimeout:  120 * time.Second,
		LinkLayerRetries:       3,
	}
}

// Dialect selects the C12.18 vs C12.21 framing differences the link engine
// branches on.
type Dialect int

const (
	DialectC1218 Dialect = iota
	DialectC1221
)

// Engine is the link-layer state machine (C4): packet framing, CRC-16, the
// toggle bit, multipacket segmentation/reassembly and the ACK/NAK retry
// discipline. One Engine is owned by exactly one application layer
// instance and is not safe for concurrent Send/Receive calls; the app
// layer above serialises access with its own busy flag.
type Engine struct {
	Channel channel.Channel
	Counters *counters.Counters

	Dialect    Dialect
	Identity   byte
	DataFormat byte

	NegotiatedPacketSize             int
	NegotiatedMaximumNumberOfPackets int

	Timing Timing

	outToggle bool
	inToggle  bool
	haveIn    bool
	lastCRC   uint16

	// shadowSeen records that an unexpected 0xEE packet interrupted the most
	// recent transmit attempt, invalidating it.
	shadowSeen bool

	// rttStart is the tick of the last byte written; the first turn-around
	// byte that arrives afterwards closes one round-trip sample.
	rttStart time.Time
}

// NewEngine returns an Engine with the conventional negotiated defaults
// (1024-byte packets, 255 max packets).
func NewEngine(ch channel.Channel, cnt *counters.Counters, dialect Dialect) *Engine {
	return &Engine{
		Channel:                          ch,
		Counters:                         cnt,
		Dialect:                          dialect,
		NegotiatedPacketSize:             1024,
		NegotiatedMaximumNumberOfPackets: 255,
		Timing:                           DefaultTiming(),
	}
}

// ResetToggles clears the in/out toggle-bit state, done on every new Connect
// and on EndSession.
func (e *Engine) ResetToggles() {
	e.outToggle = false
	e.inToggle = false
	e.haveIn = false
	e.lastCRC = 0
	e.shadowSeen = false
}

// ClearInboundToggle clears only the remembered inbound toggle/CRC state,
// leaving the outgoing toggle untouched. Used after a "retry" (-1) response
// code and after an ERR during Authenticate, where some devices miscompute
// their toggle following an authentication failure.
func (e *Engine) ClearInboundToggle() {
	e.haveIn = false
	e.lastCRC = 0
}

// OutToggle reports the current outgoing toggle-bit value, exposed for
// tests asserting the "outgoing toggle flips exactly once per wire packet"
// invariant.
func (e *Engine) OutToggle() bool { return e.outToggle }

func (e *Engine) chunkSize() int { return e.NegotiatedPacketSize - 8 }

// peerUsesDataFormat0 reports whether both sides negotiated plain C12.18/21
// framing, the condition under which a too-large message must be refused
// locally rather than silently segmented.
func (e *Engine) peerUsesDataFormat0(peerDataFormat byte) bool {
	return e.DataFormat == 0 && peerDataFormat == 0
}

// Send transmits one application message (command byte + body) as one or
// more link-layer packets, handling ACK/NAK, multipacket segmentation and
// shadow-packet recovery.
//
// peerDataFormat is the DataFormat the caller supplies for the far end
// (app.Protocol passes its Config.DataFormat); the local-refusal check
// applies only when it and e.DataFormat are both 0.
func (e *Engine) Send(message []byte, peerDataFormat byte) error {
	e.shadowSeen = false
	chunk := e.chunkSize()
	if chunk <= 0 {
		return c12err.Newf(c12err.KindSoftware, "link: negotiated packet size %d too small", e.NegotiatedPacketSize)
	}
	numPackets := (len(message) + chunk - 1) / chunk
	if numPackets == 0 {
		numPackets = 1
	}
	if e.peerUsesDataFormat0(peerDataFormat) && len(message) > chunk && numPackets > e.NegotiatedMaximumNumberOfPackets {
		return c12err.Newf(c12err.KindSoftware, "link: operation not possible, message exceeds negotiated capacity")
	}

	for i := 0; i < numPackets; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(message) {
			end = len(message)
		}
		segment := message[start:end]

		var ctrl byte
		multi := numPackets > 1
		switch {
		case !multi:
			if e.DataFormat == 1 && peerDataFormat == 1 {
				ctrl = 5 // ACK expected (bit2) | DataFormat=1
			} else {
				ctrl = 0
			}
		case i == 0:
			ctrl = 0xC0
		default:
			ctrl = 0x80
		}
		if e.outToggle {
			ctrl |= ctrlToggle
		}

		pkt := Packet{
			Header:  Header{Identity: e.Identity, Ctrl: Ctrl(ctrl), Seq: byte(numPackets - 1 - i), Len: uint16(len(segment))},
			Payload: segment,
		}
		wire := pkt.Encode()
		if err := e.Channel.WriteBuffer(wire); err != nil {
			return err
		}
		if err := e.Channel.FlushOutputBuffer(0); err != nil {
			return err
		}
		e.rttStart = time.Now()

		if e.DataFormat == 0 {
			if err := e.awaitAck(wire); err != nil {
				return err
			}
		}
		e.Counters.IncLinkSucc()

		e.outToggle = !e.outToggle
	}

	if e.shadowSeen {
		return c12err.New(c12err.KindSoftware, errShadowRetry)
	}
	return nil
}

// errShadowRetry signals the app layer to restart the whole application
// exchange after a shadow packet invalidated the in-flight transmit.
var errShadowRetry = shadowRetryError{}

type shadowRetryError struct{}

func (shadowRetryError) Error() string { return "link: shadow packet observed, retry application exchange" }

// IsShadowRetry reports whether err is the shadow-retry signal.
func IsShadowRetry(err error) bool {
	if e, ok := err.(*c12err.Error); ok {
		return e.Unwrap() == errShadowRetry
	}
	return false
}

// awaitAck waits for the single-byte ACK/NAK/shadow-start response to a
// written packet, retrying locally up to LinkLayerRetries times. NAK and
// ack-timeout both re-transmit the same wire bytes before waiting again.
func (e *Engine) awaitAck(wire []byte) error {
	retries := e.Timing.LinkLayerRetries
	for {
		var b [1]byte
		n, err := e.Channel.DoReadCancellable(b[:], e.Timing.AcknowledgementTimeout, true)
		if err != nil {
			return err
		}
		if n == 0 {
			if retries <= 0 {
				e.Counters.IncLinkFail()
				return c12err.New(c12err.KindChannelReadTimeout, channel.ErrReadTimeout)
			}
			retries--
			e.Counters.IncLinkRetry()
			if err := e.resend(wire); err != nil {
				return err
			}
			continue
		}
		e.sampleRoundTrip()
		switch b[0] {
		case ACK:
			return nil
		case NAK:
			if retries <= 0 {
				e.Counters.IncLinkFail()
				return c12err.Newf(c12err.KindCrcCheckFailed, "link: NAK retries exhausted")
			}
			retries--
			e.Counters.IncLinkRetry()
			if err := e.resend(wire); err != nil {
				return err
			}
			continue
		case StartOfPacket:
			if err := e.drainShadowPacket(); err != nil {
				return err
			}
			_ = e.Channel.WriteChar(ACK)
			_ = e.Channel.FlushOutputBuffer(0)
			e.Counters.IncLinkRetry()
			e.shadowSeen = true
			return nil
		default:
			if retries <= 0 {
				e.Counters.IncLinkFail()
				return c12err.Newf(c12err.KindSoftware, "link: unexpected ack byte 0x%02x", b[0])
			}
			retries--
			e.Counters.IncLinkRetry()
			continue
		}
	}
}

// resend re-transmits a wire packet verbatim after a NAK or ack timeout.
func (e *Engine) resend(wire []byte) error {
	if err := e.Channel.WriteBuffer(wire); err != nil {
		return err
	}
	if err := e.Channel.FlushOutputBuffer(0); err != nil {
		return err
	}
	e.rttStart = time.Now()
	return nil
}

// drainShadowPacket reads and discards an unexpected inbound packet that
// arrived instead of an ACK.
func (e *Engine) drainShadowPacket() error {
	hdr := make([]byte, 5)
	if err := e.Channel.ReadBuffer(hdr); err != nil {
		return err
	}
	h, err := DecodeHeader(hdr)
	if err != nil {
		return err
	}
	rest := make([]byte, int(h.Len)+2)
	return e.Channel.ReadBuffer(rest)
}

// Receive reads one full application message (possibly reassembled from
// several packets), returning the complete payload including the leading
// STATUS byte in the first segment.
//
// infiniteStartWait, when true, waits for the 0xEE start byte with no
// timeout (server-side receive); clients always pass
// false. allowShortFirst, when true, drains a first segment shorter than 3
// bytes and retries the read with the known inbound toggle cleared (bounded
// by LinkLayerRetries, then InboundPacketDataLengthBad) — Identify passes
// true, as its first response may be a stale duplicate from a previous
// session; every other service passes false and any non-empty first segment
// is accepted.
func (e *Engine) Receive(infiniteStartWait, allowShortFirst bool) ([]byte, error) {
	var assembled []byte
	first := true
	appRetryNeeded := false
	shortRetries := e.Timing.LinkLayerRetries
	dupRetries := e.Timing.LinkLayerRetries
	var lastSeq byte

	for {
		start, err := e.readStartByte(infiniteStartWait)
		if err != nil {
			return nil, err
		}
		if start != StartOfPacket {
			continue
		}

		prevTimeout := e.Channel.GetReadTimeout()
		e.Channel.SetReadTimeout(e.Timing.IntercharacterTimeout)
		hdrBuf := make([]byte, 5)
		err = e.Channel.ReadBuffer(hdrBuf)
		e.Channel.SetReadTimeout(prevTimeout)
		if err != nil {
			return nil, err
		}
		hdr, err := DecodeHeader(hdrBuf)
		if err != nil {
			return nil, err
		}

		if first && allowShortFirst && hdr.Len < 3 {
			if shortRetries <= 0 {
				return nil, c12err.New(c12err.KindInboundPacketDataLengthBad, nil)
			}
			shortRetries--
			// Drain this short reply's payload+CRC before retrying so the
			// next 0xEE start byte is not mistaken for trailing garbage.
			drain := make([]byte, int(hdr.Len)+2)
			_ = e.Channel.ReadBuffer(drain)
			e.haveIn = false
			continue
		}

		if int(hdr.Len) > e.chunkSize() || hdr.Len == 0 {
			_ = e.Channel.Sleep(MaxBadPacketLengthSleep)
			_ = e.Channel.ClearInputBuffer()
			return nil, c12err.New(c12err.KindInboundPacketDataLengthBad, nil)
		}

		payload := make([]byte, int(hdr.Len))
		if err := e.Channel.ReadBuffer(payload); err != nil {
			return nil, err
		}
		var crcBuf [2]byte
		if err := e.Channel.ReadBuffer(crcBuf[:]); err != nil {
			return nil, err
		}
		crcGot := uint16(crcBuf[0]) | uint16(crcBuf[1])<<8

		check := make([]byte, 0, 5+len(payload))
		check = append(check, StartOfPacket, hdr.Identity, byte(hdr.Ctrl), hdr.Seq)
		check = append(check, hdrLenBytes(hdr.Len)...)
		check = append(check, payload...)
		if CRC16(check) != crcGot {
			_ = e.Channel.Sleep(20 * time.Millisecond)
			_ = e.Channel.WriteChar(NAK)
			_ = e.Channel.FlushOutputBuffer(0)
			e.Counters.IncLinkRetry()
			return nil, c12err.New(c12err.KindCrcCheckFailed, nil)
		}

		duplicate := false
		if e.haveIn && hdr.Ctrl.Toggle() == e.inToggle {
			if crcGot == e.lastCRC {
				duplicate = true
			} else {
				appRetryNeeded = true
			}
		} else {
			e.inToggle = hdr.Ctrl.Toggle()
			e.lastCRC = crcGot
			e.haveIn = true
		}

		if e.DataFormat == 0 {
			_ = e.Channel.WriteChar(ACK)
			_ = e.Channel.FlushOutputBuffer(0)
		}

		if duplicate {
			if dupRetries <= 0 {
				e.Counters.IncLinkFail()
				return nil, c12err.New(c12err.KindReceivedPacketToggleBitFailure, nil)
			}
			dupRetries--
			e.Counters.IncLinkRetry()
			continue
		}

		if hdr.Ctrl.Multi() {
			// Sequence numbers count down to 0 across the transfer; the
			// first segment seen must carry FIRST=1 and each later segment
			// must decrement by exactly one.
			if first && !hdr.Ctrl.First() {
				appRetryNeeded = true
			}
			if !first && hdr.Seq != lastSeq-1 {
				appRetryNeeded = true
			}
			lastSeq = hdr.Seq
		}

		e.Counters.IncLinkSucc()
		assembled = append(assembled, payload...)
		first = false

		if !hdr.Ctrl.Multi() || hdr.Seq == 0 {
			break
		}
	}

	if appRetryNeeded {
		return nil, c12err.New(c12err.KindReceivedPacketToggleBitFailure, nil)
	}
	return assembled, nil
}

func hdrLenBytes(n uint16) []byte { return []byte{byte(n >> 8), byte(n)} }

// sampleRoundTrip closes the round-trip sample opened by the last write, if
// one is pending. Only the first turn-around byte after a write counts.
func (e *Engine) sampleRoundTrip() {
	if e.rttStart.IsZero() {
		return
	}
	e.Counters.SampleRoundTrip(time.Since(e.rttStart))
	e.rttStart = time.Time{}
}

// readStartByte waits for the 0xEE start-of-packet byte within the
// acknowledgement timeout (or indefinitely for server-side receive),
// returning whatever byte arrived so the caller can loop past noise.
func (e *Engine) readStartByte(infinite bool) (byte, error) {
	var b [1]byte
	if infinite {
		for {
			n, err := e.Channel.DoReadCancellable(b[:], 24*time.Hour, true)
			if err != nil {
				return 0, err
			}
			if n == 1 {
				return b[0], nil
			}
		}
	}
	n, err := e.Channel.DoReadCancellable(b[:], e.Timing.AcknowledgementTimeout, true)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, c12err.New(c12err.KindChannelReadTimeout, channel.ErrReadTimeout)
	}
	e.sampleRoundTrip()
	return b[0], nil
}
