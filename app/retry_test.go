package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// A device that replays the previous toggle with fresh content forces a
// whole-application-layer retry: the stale buffer is discarded and the
// second attempt's response is the one surfaced.
func TestToggleFailureRetriesApplicationLayer(t *testing.T) {
	p, meter, cnt := newProtocol(t, DialectC1218)

	go func() {
		// First exchange establishes the known inbound toggle.
		if _, err := meter.ReadRequest(); err != nil {
			return
		}
		_ = meter.WriteResponse(0, []byte{0xA1})

		// Second exchange: same toggle as before, different CRC.
		if _, err := meter.ReadRequest(); err != nil {
			return
		}
		meter.RewindToggle()
		_ = meter.WriteResponse(0, []byte{0xA2})

		// The client restarts the exchange; answer it properly.
		if _, err := meter.ReadRequest(); err != nil {
			return
		}
		_ = meter.WriteResponse(0, []byte{0xA3})
	}()

	first, err := p.ReadFull(1)
	require.NoError(t, err)
	require.Equal(t, []byte{0xA1}, first)

	second, err := p.ReadFull(2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xA3}, second, "stale out-of-sequence buffer must not be observable")
	require.Contains(t, cnt.Summary(), "app[succ=2 retry=1 fail=0]")
}

// After writing the last link segment the device answers with a packet of
// its own instead of an ACK: the client drains it, acknowledges it and
// restarts the whole transmit.
func TestShadowPacketRetriesApplicationLayer(t *testing.T) {
	p, meter, _ := newProtocol(t, DialectC1218)

	go func() {
		if _, err := meter.ReadRequestNoAck(); err != nil {
			return
		}
		_ = meter.WritePacketRaw([]byte{0x00, 0x99})
		_ = meter.ReadAck()

		// Retried exchange proceeds normally.
		if _, err := meter.ReadRequest(); err != nil {
			return
		}
		_ = meter.WriteResponse(0, []byte{0x77})
	}()

	data, err := p.ReadFull(1)
	require.NoError(t, err)
	require.Equal(t, []byte{0x77}, data)
}
