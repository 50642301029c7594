package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c12stack/c12/channel"
)

func TestUDPDatagramExchangeAndPeerLearning(t *testing.T) {
	a := NewUDPChannel("127.0.0.1:0", "", 1472)
	b := NewUDPChannel("127.0.0.1:0", "", 1472)
	require.NoError(t, a.Connect())
	require.NoError(t, b.Connect())
	defer a.Disconnect()
	defer b.Disconnect()

	a.PeerAddr = b.LocalUDPAddr().String()
	a.SetReadTimeout(time.Second)
	b.SetReadTimeout(time.Second)

	require.NoError(t, a.WriteBuffer([]byte("ping")))

	buf := make([]byte, 4)
	require.NoError(t, b.ReadBuffer(buf))
	require.Equal(t, []byte("ping"), buf)

	// b had no configured peer: it must have locked onto a's address and be
	// able to answer without one.
	require.NoError(t, b.WriteBuffer([]byte("pong")))
	require.NoError(t, a.ReadBuffer(buf))
	require.Equal(t, []byte("pong"), buf)
}

func TestUDPPacketTooBig(t *testing.T) {
	a := NewUDPChannel("127.0.0.1:0", "127.0.0.1:9", 64)
	require.NoError(t, a.Connect())
	defer a.Disconnect()

	err := a.WriteBuffer(make([]byte, 65))
	require.ErrorIs(t, err, ErrPacketTooBig)
}

func TestUDPLearnedPeerForgottenOnDisconnect(t *testing.T) {
	a := NewUDPChannel("127.0.0.1:0", "", 1472)
	b := NewUDPChannel("127.0.0.1:0", "", 1472)
	require.NoError(t, a.Connect())
	require.NoError(t, b.Connect())
	defer a.Disconnect()

	a.PeerAddr = b.LocalUDPAddr().String()
	b.SetReadTimeout(time.Second)
	require.NoError(t, a.WriteBuffer([]byte{0x55}))
	require.NoError(t, b.ReadBuffer(make([]byte, 1)))

	require.NoError(t, b.Disconnect())
	require.NoError(t, b.Connect())
	defer b.Disconnect()

	// Fresh connect, no peer learned yet: writing has nowhere to go.
	err := b.WriteBuffer([]byte{0x55})
	require.ErrorIs(t, err, channel.ErrNotConnected)
}

func TestUDPReadTimeout(t *testing.T) {
	a := NewUDPChannel("127.0.0.1:0", "", 1472)
	require.NoError(t, a.Connect())
	defer a.Disconnect()

	a.SetReadTimeout(20 * time.Millisecond)
	err := a.ReadBuffer(make([]byte, 1))
	require.ErrorIs(t, err, channel.ErrReadTimeout)

	n, err := a.DoReadCancellable(make([]byte, 1), 20*time.Millisecond, true)
	require.NoError(t, err)
	require.Zero(t, n)
}
