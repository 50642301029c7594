// Package serial implements the Channel interface over a real serial port using
// github.com/daedaluz/goserial for termios access and DCD/RTS/DTR sensing.
package serial

import (
	"time"

	"github.com/daedaluz/goserial"

	"github.com/c12stack/c12/channel"
)

// Port is a direct serial-port Channel: no dialer, no optical-probe-only
// wake-up behaviour (see OpticalProbe for that specialisation).
type Port struct {
	channel.Base

	path string
	port *serial.Port
}

// New returns a Port bound to the given device path (e.g. "/dev/ttyUSB0"),
// not yet opened.
func New(path string) *Port {
	return &Port{Base: channel.NewBase(), path: path}
}

func (p *Port) Connect() error {
	opts := serial.NewOptions()
	opts.SetReadTimeout(p.ReadTimeout)
	sp, err := serial.Open(p.path, opts)
	if err != nil {
		return err
	}
	p.port = sp
	p.ClearCancel()
	p.MonitorEvent(channel.EventChannelConnect, p.path)
	return nil
}

func (p *Port) Disconnect() error {
	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	p.MonitorEvent(channel.EventChannelDisconnect, p.path)
	return err
}

func (p *Port) IsConnected() bool { return p.port != nil }

func (p *Port) WriteBuffer(b []byte) error {
	if p.port == nil {
		return channel.ErrNotConnected
	}
	if p.Cancel.IsSet() {
		return channel.ErrOperationCancelled
	}
	n, err := p.port.Write(b)
	p.AddSent(n)
	return err
}

func (p *Port) WriteChar(c byte) error { return p.WriteBuffer([]byte{c}) }

func (p *Port) FlushOutputBuffer(int) error {
	if p.port == nil {
		return channel.ErrNotConnected
	}
	return p.port.Drain()
}

func (p *Port) ReadBuffer(buf []byte) error {
	if p.port == nil {
		return channel.ErrNotConnected
	}
	n, err := p.port.ReadTimeout(buf, p.ReadTimeout)
	p.AddReceived(n)
	if err != nil {
		return channel.ErrReadTimeout
	}
	if n < len(buf) {
		return channel.ErrReadTimeout
	}
	return nil
}

func (p *Port) DoReadCancellable(buf []byte, timeout time.Duration, allowPartial bool) (int, error) {
	if p.port == nil {
		return 0, channel.ErrNotConnected
	}
	if p.Cancel.IsSet() {
		return 0, channel.ErrOperationCancelled
	}
	n, err := p.port.ReadTimeout(buf, timeout)
	p.AddReceived(n)
	if err != nil {
		if allowPartial {
			return n, nil
		}
		return n, channel.ErrReadTimeout
	}
	return n, nil
}

func (p *Port) ClearInputBuffer() error {
	if p.port == nil {
		return channel.ErrNotConnected
	}
	return p.port.Flush(serial.TCIFLUSH)
}

func (p *Port) CancelCommunication(alsoDisconnect bool) {
	p.Base.CancelCommunication()
	if alsoDisconnect {
		_ = p.Disconnect()
	}
}

func (p *Port) GetDCD() (bool, error) {
	if p.port == nil {
		return false, channel.ErrNotConnected
	}
	lines, err := p.port.GetModemLines()
	if err != nil {
		return false, err
	}
	return lines&serial.TIOCM_CD != 0, nil
}

func (p *Port) SetDtrControl(mode channel.LineMode) error {
	if p.port == nil {
		return channel.ErrNotConnected
	}
	switch mode {
	case channel.LineEnable:
		return p.port.EnableModemLines(serial.TIOCM_DTR)
	case channel.LineDisable:
		return p.port.DisableModemLines(serial.TIOCM_DTR)
	default:
		return channel.ErrNotSupportedForThisType
	}
}

func (p *Port) SetRtsControl(mode channel.LineMode) error {
	if p.port == nil {
		return channel.ErrNotConnected
	}
	switch mode {
	case channel.LineEnable:
		return p.port.EnableModemLines(serial.TIOCM_RTS)
	case channel.LineDisable:
		return p.port.DisableModemLines(serial.TIOCM_RTS)
	default:
		return channel.ErrNotSupportedForThisType
	}
}

func (p *Port) SetBaud(baud int) error {
	if p.port == nil {
		return channel.ErrNotConnected
	}
	attrs, err := p.port.GetAttr2()
	if err != nil {
		return err
	}
	attrs.SetCustomSpeed(uint32(baud))
	return p.port.SetAttr2(serial.TCSANOW, attrs)
}

func (p *Port) SetParameters(baud, dataBits int, parity channel.Parity, stopBits channel.StopBits) error {
	if p.port == nil {
		return channel.ErrNotConnected
	}
	attrs, err := p.port.GetAttr2()
	if err != nil {
		return err
	}
	attrs.MakeRaw()
	attrs.SetCustomSpeed(uint32(baud))

	attrs.Cflag &^= serial.CS8 | serial.CSTOPB | serial.PARENB | serial.PARODD
	switch dataBits {
	case 5:
		attrs.Cflag |= serial.CS5
	case 6:
		attrs.Cflag |= serial.CS6
	case 7:
		attrs.Cflag |= serial.CS7
	default:
		attrs.Cflag |= serial.CS8
	}
	switch parity {
	case channel.ParityOdd:
		attrs.Cflag |= serial.PARENB | serial.PARODD
	case channel.ParityEven:
		attrs.Cflag |= serial.PARENB
	}
	if stopBits == channel.StopBits2 {
		attrs.Cflag |= serial.CSTOPB
	}
	return p.port.SetAttr2(serial.TCSANOW, attrs)
}

var _ channel.Channel = (*Port)(nil)
