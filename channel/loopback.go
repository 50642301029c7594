package channel

import (
	"io"
	"net"
	"time"
)

// Loopback is an in-memory Channel backed by net.Pipe, used by link/app/
// session tests in place of a real serial or socket transport.
type Loopback struct {
	Base
	conn      net.Conn
	connected bool
}

// NewLoopbackPair returns two Loopback channels wired to each other.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a, b := net.Pipe()
	return &Loopback{Base: NewBase(), conn: a}, &Loopback{Base: NewBase(), conn: b}
}

func (l *Loopback) Connect() error {
	l.connected = true
	l.ClearCancel()
	l.MonitorEvent(EventChannelConnect, "")
	return nil
}

func (l *Loopback) Disconnect() error {
	l.connected = false
	l.MonitorEvent(EventChannelDisconnect, "")
	return l.conn.Close()
}

func (l *Loopback) IsConnected() bool { return l.connected }

func (l *Loopback) WriteBuffer(b []byte) error {
	if !l.connected {
		return ErrNotConnected
	}
	if l.Cancel.IsSet() {
		return ErrOperationCancelled
	}
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.WriteTimeout))
	n, err := l.conn.Write(b)
	l.addSent(n)
	return err
}

func (l *Loopback) WriteChar(c byte) error {
	return l.WriteBuffer([]byte{c})
}

func (l *Loopback) FlushOutputBuffer(int) error { return nil }

func (l *Loopback) ReadBuffer(buf []byte) error {
	if !l.connected {
		return ErrNotConnected
	}
	_ = l.conn.SetReadDeadline(time.Now().Add(l.ReadTimeout))
	n, err := io.ReadFull(l.conn, buf)
	l.addReceived(n)
	if err != nil {
		if isTimeout(err) {
			return ErrReadTimeout
		}
		return err
	}
	return nil
}

func (l *Loopback) DoReadCancellable(buf []byte, timeout time.Duration, allowPartial bool) (int, error) {
	if !l.connected {
		return 0, ErrNotConnected
	}
	if l.Cancel.IsSet() {
		return 0, ErrOperationCancelled
	}
	_ = l.conn.SetReadDeadline(time.Now().Add(timeout))
	if allowPartial {
		n, err := l.conn.Read(buf)
		l.addReceived(n)
		if err != nil && isTimeout(err) {
			return n, nil
		}
		return n, err
	}
	n, err := io.ReadFull(l.conn, buf)
	l.addReceived(n)
	if err != nil {
		if isTimeout(err) {
			return n, ErrReadTimeout
		}
		return n, err
	}
	return n, nil
}

func (l *Loopback) ClearInputBuffer() error { return nil }

func (l *Loopback) CancelCommunication(alsoDisconnect bool) {
	l.Base.CancelCommunication()
	if alsoDisconnect {
		_ = l.Disconnect()
	}
}

func (l *Loopback) GetDCD() (bool, error)             { return false, ErrNotSupportedForThisType }
func (l *Loopback) SetDtrControl(LineMode) error      { return ErrNotSupportedForThisType }
func (l *Loopback) SetRtsControl(LineMode) error      { return ErrNotSupportedForThisType }
func (l *Loopback) SetBaud(int) error                 { return ErrNotSupportedForThisType }
func (l *Loopback) SetParameters(int, int, Parity, StopBits) error {
	return ErrNotSupportedForThisType
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	t, ok := err.(timeouter)
	return ok && t.Timeout()
}

var _ Channel = (*Loopback)(nil)
