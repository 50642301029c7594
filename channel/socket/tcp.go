// Package socket implements the TCP/UDP Channel specialisations, with optional SOCKS4/4a/5 chaining.
package socket

import (
	"context"
	"net"
	"time"

	"github.com/higebu/netfd"
	"golang.org/x/sys/unix"

	"github.com/c12stack/c12/channel"
)

// TCPChannel is a stream-oriented Channel over a TCP connection, optionally
// chained through a SOCKS proxy (see NewSOCKSDialer in socks.go).
type TCPChannel struct {
	channel.Base

	Addr   string
	Dialer Dialer // nil means net.Dialer with no proxy chaining

	conn net.Conn
}

// Dialer abstracts the final DialContext call so SOCKS chaining composes
// without TCPChannel knowing about it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewTCPChannel returns a channel that connects to addr ("host:port") using
// dialer, or a plain net.Dialer when dialer is nil.
func NewTCPChannel(addr string, dialer Dialer) *TCPChannel {
	return &TCPChannel{Base: channel.NewBase(), Addr: addr, Dialer: dialer}
}

func (t *TCPChannel) Connect() error {
	dialer := t.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.WriteTimeout)
	defer cancel()

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := dialer.DialContext(ctx, "tcp", t.Addr)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		t.conn = r.conn
	case <-waitCancelled(&t.Cancel):
		cancel()
		<-ch
		return channel.ErrOperationCancelled
	}

	tuneKeepalive(t.conn)
	t.ClearCancel()
	t.MonitorEvent(channel.EventChannelConnect, t.Addr)
	return nil
}

// tuneKeepalive pulls the raw file descriptor out of conn and sets the
// keepalive/linger options at the fd level. Failures are non-fatal, TCP
// works fine without the tuning.
func tuneKeepalive(conn net.Conn) {
	fd := netfd.GetFdFromConn(conn)
	if fd < 0 {
		return
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, 30)
	// A short linger keeps Disconnect from blocking on unsent bytes after
	// the peer has dropped carrier mid-session.
	_ = unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 2})
}

func waitCancelled(flag interface{ IsSet() bool }) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for !flag.IsSet() {
			time.Sleep(20 * time.Millisecond)
		}
		close(done)
	}()
	return done
}

func (t *TCPChannel) Disconnect() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.MonitorEvent(channel.EventChannelDisconnect, t.Addr)
	return err
}

func (t *TCPChannel) IsConnected() bool { return t.conn != nil }

func (t *TCPChannel) WriteBuffer(b []byte) error {
	if t.conn == nil {
		return channel.ErrNotConnected
	}
	if t.Cancel.IsSet() {
		return channel.ErrOperationCancelled
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
	n, err := t.conn.Write(b)
	t.AddSent(n)
	return err
}

func (t *TCPChannel) WriteChar(c byte) error { return t.WriteBuffer([]byte{c}) }

func (t *TCPChannel) FlushOutputBuffer(int) error { return nil }

func (t *TCPChannel) ReadBuffer(buf []byte) error {
	if t.conn == nil {
		return channel.ErrNotConnected
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(t.ReadTimeout))
	read := 0
	for read < len(buf) {
		n, err := t.conn.Read(buf[read:])
		read += n
		if err != nil {
			t.AddReceived(read)
			if isTimeout(err) {
				return channel.ErrReadTimeout
			}
			return channel.ErrDisconnectedUnexpectedly
		}
	}
	t.AddReceived(read)
	return nil
}

func (t *TCPChannel) DoReadCancellable(buf []byte, timeout time.Duration, allowPartial bool) (int, error) {
	if t.conn == nil {
		return 0, channel.ErrNotConnected
	}
	if t.Cancel.IsSet() {
		return 0, channel.ErrOperationCancelled
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(timeout))
	if allowPartial {
		n, err := t.conn.Read(buf)
		t.AddReceived(n)
		if err != nil && isTimeout(err) {
			return n, nil
		}
		if err != nil {
			return n, channel.ErrDisconnectedUnexpectedly
		}
		return n, nil
	}
	read := 0
	for read < len(buf) {
		n, err := t.conn.Read(buf[read:])
		read += n
		if err != nil {
			t.AddReceived(read)
			if isTimeout(err) {
				return read, channel.ErrReadTimeout
			}
			return read, channel.ErrDisconnectedUnexpectedly
		}
	}
	t.AddReceived(read)
	return read, nil
}

func (t *TCPChannel) ClearInputBuffer() error {
	if t.conn == nil {
		return channel.ErrNotConnected
	}
	_ = t.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	buf := make([]byte, 4096)
	for {
		n, err := t.conn.Read(buf)
		if n == 0 || err != nil {
			break
		}
	}
	_ = t.conn.SetReadDeadline(time.Time{})
	return nil
}

func (t *TCPChannel) CancelCommunication(alsoDisconnect bool) {
	t.Base.CancelCommunication()
	if alsoDisconnect {
		_ = t.Disconnect()
	}
}

func (t *TCPChannel) GetDCD() (bool, error)        { return false, channel.ErrNotSupportedForThisType }
func (t *TCPChannel) SetDtrControl(channel.LineMode) error { return channel.ErrNotSupportedForThisType }
func (t *TCPChannel) SetRtsControl(channel.LineMode) error { return channel.ErrNotSupportedForThisType }
func (t *TCPChannel) SetBaud(int) error             { return channel.ErrNotSupportedForThisType }
func (t *TCPChannel) SetParameters(int, int, channel.Parity, channel.StopBits) error {
	return channel.ErrNotSupportedForThisType
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}

var _ channel.Channel = (*TCPChannel)(nil)
