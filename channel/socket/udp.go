package socket

import (
	"net"
	"time"

	"github.com/c12stack/c12/channel"
)

// UDPChannel delivers and consumes exactly one datagram per Write/Read.
// When no peer address is configured up front it locks onto the first peer
// a datagram arrives from, reverting to "any peer" on Disconnect.
type UDPChannel struct {
	channel.Base

	LocalAddr string
	PeerAddr  string // optional; empty means "learn from first datagram"
	MTU       int

	conn        *net.UDPConn
	learnedPeer *net.UDPAddr
}

// NewUDPChannel binds localAddr (may be ":0") and optionally targets peerAddr.
func NewUDPChannel(localAddr, peerAddr string, mtu int) *UDPChannel {
	if mtu <= 0 {
		mtu = 1472 // conservative default under common Ethernet MTU minus headers
	}
	return &UDPChannel{Base: channel.NewBase(), LocalAddr: localAddr, PeerAddr: peerAddr, MTU: mtu}
}

func (u *UDPChannel) Connect() error {
	laddr, err := net.ResolveUDPAddr("udp", u.LocalAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	u.conn = conn
	u.learnedPeer = nil
	u.ClearCancel()
	u.MonitorEvent(channel.EventChannelConnect, u.LocalAddr)
	return nil
}

func (u *UDPChannel) Disconnect() error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	u.learnedPeer = nil
	u.MonitorEvent(channel.EventChannelDisconnect, u.LocalAddr)
	return err
}

func (u *UDPChannel) IsConnected() bool { return u.conn != nil }

// LocalUDPAddr reports the actually bound local address, useful when
// LocalAddr requested an ephemeral port.
func (u *UDPChannel) LocalUDPAddr() *net.UDPAddr {
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr().(*net.UDPAddr)
}

func (u *UDPChannel) peer() (*net.UDPAddr, error) {
	if u.PeerAddr != "" {
		return net.ResolveUDPAddr("udp", u.PeerAddr)
	}
	if u.learnedPeer != nil {
		return u.learnedPeer, nil
	}
	return nil, channel.ErrNotConnected
}

// ErrPacketTooBig is returned when a single WriteBuffer call exceeds the
// channel's MTU; a C12 packet is never fragmented across datagrams.
var ErrPacketTooBig = &packetTooBigError{}

type packetTooBigError struct{}

func (*packetTooBigError) Error() string { return "socket: packet too big for UDP MTU" }

func (u *UDPChannel) WriteBuffer(b []byte) error {
	if u.conn == nil {
		return channel.ErrNotConnected
	}
	if len(b) > u.MTU {
		return ErrPacketTooBig
	}
	peer, err := u.peer()
	if err != nil {
		return err
	}
	_ = u.conn.SetWriteDeadline(time.Now().Add(u.WriteTimeout))
	n, err := u.conn.WriteToUDP(b, peer)
	u.AddSent(n)
	return err
}

func (u *UDPChannel) WriteChar(c byte) error { return u.WriteBuffer([]byte{c}) }

func (u *UDPChannel) FlushOutputBuffer(int) error { return nil }

// ReadBuffer reads exactly one datagram and requires it to fill buf exactly,
// matching the "deliver/consume exactly one datagram" contract.
func (u *UDPChannel) ReadBuffer(buf []byte) error {
	n, err := u.readDatagram(buf, u.ReadTimeout)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return channel.ErrDisconnectedUnexpectedly
	}
	return nil
}

func (u *UDPChannel) DoReadCancellable(buf []byte, timeout time.Duration, allowPartial bool) (int, error) {
	n, err := u.readDatagram(buf, timeout)
	if err != nil {
		if err == channel.ErrReadTimeout && allowPartial {
			return 0, nil
		}
		return n, err
	}
	return n, nil
}

func (u *UDPChannel) readDatagram(buf []byte, timeout time.Duration) (int, error) {
	if u.conn == nil {
		return 0, channel.ErrNotConnected
	}
	if u.Cancel.IsSet() {
		return 0, channel.ErrOperationCancelled
	}
	_ = u.conn.SetReadDeadline(time.Now().Add(timeout))
	n, from, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return 0, channel.ErrReadTimeout
		}
		return 0, channel.ErrDisconnectedUnexpectedly
	}
	if u.PeerAddr == "" && u.learnedPeer == nil {
		u.learnedPeer = from
	}
	u.AddReceived(n)
	return n, nil
}

func (u *UDPChannel) ClearInputBuffer() error {
	if u.conn == nil {
		return channel.ErrNotConnected
	}
	_ = u.conn.SetReadDeadline(time.Now().Add(5 * time.Millisecond))
	buf := make([]byte, u.MTU)
	for {
		_, _, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
	}
	_ = u.conn.SetReadDeadline(time.Time{})
	return nil
}

func (u *UDPChannel) CancelCommunication(alsoDisconnect bool) {
	u.Base.CancelCommunication()
	if alsoDisconnect {
		_ = u.Disconnect()
	}
}

func (u *UDPChannel) GetDCD() (bool, error)        { return false, channel.ErrNotSupportedForThisType }
func (u *UDPChannel) SetDtrControl(channel.LineMode) error { return channel.ErrNotSupportedForThisType }
func (u *UDPChannel) SetRtsControl(channel.LineMode) error { return channel.ErrNotSupportedForThisType }
func (u *UDPChannel) SetBaud(int) error             { return channel.ErrNotSupportedForThisType }
func (u *UDPChannel) SetParameters(int, int, channel.Parity, channel.StopBits) error {
	return channel.ErrNotSupportedForThisType
}

var _ channel.Channel = (*UDPChannel)(nil)
