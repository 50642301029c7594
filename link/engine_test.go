package link_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/channel"
	"github.com/c12stack/c12/counters"
	"github.com/c12stack/c12/internal/metertest"
	"github.com/c12stack/c12/link"
)

// newEngine wires a client-side engine over one end of a loopback pair and
// a scripted meter over the other.
func newEngine(t *testing.T) (*link.Engine, *metertest.Meter, *counters.Counters) {
	t.Helper()
	client, server := channel.NewLoopbackPair()
	require.NoError(t, client.Connect())
	t.Cleanup(func() { _ = client.Disconnect() })

	cnt := &counters.Counters{}
	engine := link.NewEngine(client, cnt, link.DialectC1218)
	engine.Timing.AcknowledgementTimeout = 2 * time.Second
	engine.Timing.IntercharacterTimeout = time.Second
	return engine, metertest.New(server), cnt
}

func exchange(t *testing.T, e *link.Engine, request []byte) []byte {
	t.Helper()
	require.NoError(t, e.Send(request, 0))
	resp, err := e.Receive(false, false)
	require.NoError(t, err)
	return resp
}

func TestSinglePacketExchange(t *testing.T) {
	engine, meter, _ := newEngine(t)

	done := make(chan []byte, 1)
	go func() {
		req, err := meter.ReadRequest()
		if err != nil {
			close(done)
			return
		}
		_ = meter.WriteResponse(0, []byte{0xAB, 0xCD})
		done <- req
	}()

	resp := exchange(t, engine, []byte{0x30, 0x00, 0x05})
	require.Equal(t, []byte{0x00, 0xAB, 0xCD}, resp)
	require.Equal(t, []byte{0x30, 0x00, 0x05}, <-done)
}

func TestToggleFlipsOncePerPacket(t *testing.T) {
	engine, meter, _ := newEngine(t)
	meter.Serve(func([]byte) (byte, []byte) { return 0, nil })

	require.False(t, engine.OutToggle())
	exchange(t, engine, []byte{0x20})
	require.True(t, engine.OutToggle())
	exchange(t, engine, []byte{0x20})
	require.False(t, engine.OutToggle())
}

func TestDuplicateResponseSuppressed(t *testing.T) {
	engine, meter, cnt := newEngine(t)

	go func() {
		if _, err := meter.ReadRequest(); err != nil {
			return
		}
		_ = meter.WriteResponse(0, []byte{0x01})

		if _, err := meter.ReadRequest(); err != nil {
			return
		}
		// Re-send the previous response byte-for-byte (same toggle, same
		// CRC); the client must ACK it, drop it and keep waiting.
		_ = meter.RepeatLastResponse()
		_ = meter.WriteResponse(0, []byte{0x02})
	}()

	require.Equal(t, []byte{0x00, 0x01}, exchange(t, engine, []byte{0x30, 0x00, 0x01}))
	require.Equal(t, []byte{0x00, 0x02}, exchange(t, engine, []byte{0x30, 0x00, 0x02}))

	snap := cnt.Summary()
	require.Contains(t, snap, "retry=1", "duplicate must count as exactly one link retry: %s", snap)
}

func TestNakForcesRetransmit(t *testing.T) {
	engine, meter, cnt := newEngine(t)

	done := make(chan []byte, 1)
	go func() {
		first, err := meter.ReadRequestNoAck()
		if err != nil {
			close(done)
			return
		}
		_ = meter.WriteNak()
		second, err := meter.ReadRequestNoAck()
		if err != nil {
			close(done)
			return
		}
		if !bytes.Equal(first, second) {
			close(done)
			return
		}
		_ = meter.WriteAck()
		_ = meter.WriteResponse(0, nil)
		done <- second
	}()

	resp := exchange(t, engine, []byte{0x21})
	require.Equal(t, []byte{0x00}, resp)
	require.Equal(t, []byte{0x21}, <-done, "NAK must re-transmit identical wire bytes")

	require.Contains(t, cnt.Summary(), "link[succ=2 retry=1 fail=0]")
}

func TestShadowPacketDuringAckWait(t *testing.T) {
	engine, meter, _ := newEngine(t)

	go func() {
		if _, err := meter.ReadRequestNoAck(); err != nil {
			return
		}
		// An unsolicited packet instead of the ACK byte: the client drains
		// it, ACKs it, and reports the exchange as invalidated.
		_ = meter.WritePacketRaw([]byte{0x00, 0xFF})
		_ = meter.ReadAck()
	}()

	err := engine.Send([]byte{0x30, 0x00, 0x05}, 0)
	require.Error(t, err)
	require.True(t, link.IsShadowRetry(err))
}

func TestMultipacketReceiveReassembles(t *testing.T) {
	engine, meter, _ := newEngine(t)
	meter.PacketSize = 16 // 8-byte chunks

	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i + 1)
	}
	go func() {
		if _, err := meter.ReadRequest(); err != nil {
			return
		}
		_ = meter.WriteResponse(0, data)
	}()

	resp := exchange(t, engine, []byte{0x30, 0x20, 0x01})
	require.Equal(t, append([]byte{0x00}, data...), resp)
}

func TestMultipacketSendSegmentationRoundTrip(t *testing.T) {
	engine, meter, _ := newEngine(t)
	engine.NegotiatedPacketSize = 16

	message := make([]byte, 20)
	message[0] = 0x40
	for i := 1; i < len(message); i++ {
		message[i] = byte(i)
	}

	done := make(chan []byte, 1)
	go func() {
		req, err := meter.ReadRequest()
		if err != nil {
			close(done)
			return
		}
		_ = meter.WriteResponse(0, nil)
		done <- req
	}()

	require.NoError(t, engine.Send(message, 0))
	resp, err := engine.Receive(false, false)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00}, resp)
	require.Equal(t, message, <-done, "reassembled segments must reproduce the original message")
}

func TestCorruptCRCIsNakedAndSurfaced(t *testing.T) {
	engine, meter, _ := newEngine(t)

	go func() {
		if _, err := meter.ReadRequest(); err != nil {
			return
		}
		pkt := link.Packet{
			Header:  link.Header{Ctrl: 0, Seq: 0, Len: 2},
			Payload: []byte{0x00, 0x01},
		}
		wire := pkt.Encode()
		wire[len(wire)-1] ^= 0xFF
		_ = meter.Ch.WriteBuffer(wire)
		// The client answers a corrupt packet with NAK.
		var b [1]byte
		_ = meter.Ch.ReadBuffer(b[:])
	}()

	require.NoError(t, engine.Send([]byte{0x30, 0x00, 0x01}, 0))
	_, err := engine.Receive(false, false)
	require.True(t, c12err.Is(err, c12err.KindCrcCheckFailed), "got %v", err)
}

func TestOversizeMessageRefusedLocally(t *testing.T) {
	engine, _, _ := newEngine(t)
	engine.NegotiatedPacketSize = 32
	engine.NegotiatedMaximumNumberOfPackets = 2

	// 3 chunks needed but only 2 allowed: must refuse before any bytes hit
	// the wire.
	message := make([]byte, (32-8)*2+1)
	err := engine.Send(message, 0)
	require.True(t, c12err.Is(err, c12err.KindSoftware), "got %v", err)
	require.False(t, engine.OutToggle(), "refusal must not consume a toggle flip")
}

func TestRoundTripStatisticsSampled(t *testing.T) {
	engine, meter, cnt := newEngine(t)
	meter.Serve(func([]byte) (byte, []byte) { return 0, nil })

	exchange(t, engine, []byte{0x20})
	exchange(t, engine, []byte{0x20})

	min, avg, max := cnt.RoundTrip()
	require.Greater(t, max, time.Duration(0))
	require.LessOrEqual(t, min, avg)
	require.LessOrEqual(t, avg, max)
}
