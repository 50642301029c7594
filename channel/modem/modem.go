// Package modem implements the Hayes AT-command dial/answer driver as a
// Channel specialisation composed over a serial channel.Channel.
package modem

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/c12stack/c12/channel"
	"github.com/c12stack/c12/clog"
)

// Config carries the dial/answer strings and timeouts the driver needs.
type Config struct {
	InitString        string
	DialString        string // e.g. "ATDT"
	PhoneNumber       string
	AutoAnswerString  string // e.g. "ATS0=1"
	CommandTimeout    time.Duration
	AutoAnswerTimeout time.Duration
	MatchConnectBaud  bool
}

// DefaultConfig matches common Hayes defaults.
func DefaultConfig() Config {
	return Config{
		InitString:        "ATZ",
		DialString:        "ATDT",
		AutoAnswerString:  "ATS0=1",
		CommandTimeout:    10 * time.Second,
		AutoAnswerTimeout: 60 * time.Second,
		MatchConnectBaud:  true,
	}
}

// hayesResponse classifies one verbal modem reply.
// The table below is searched in priority order, OK and RING lowest, so a
// failure response is never mistaken for the bare OK echo it follows.
type hayesResponse int

const (
	respConnect hayesResponse = iota
	respNoCarrier
	respError
	respTimeout
	respNoDialTone
	respBusy
	respNoAnswer
	respOK
	respRing
	respUnknown
)

var hayesTable = []struct {
	text string
	kind hayesResponse
}{
	{"NO CARRIER", respNoCarrier},
	{"NO DIALTONE", respNoDialTone},
	{"NO DIAL TONE", respNoDialTone},
	{"NO ANSWER", respNoAnswer},
	{"BUSY", respBusy},
	{"ERROR", respError},
	{"CONNECT", respConnect},
	{"OK", respOK},
	{"RING", respRing},
}

func classify(line string) (hayesResponse, string) {
	u := strings.ToUpper(strings.TrimSpace(line))
	for _, e := range hayesTable {
		if strings.HasPrefix(u, e.text) {
			return e.kind, strings.TrimSpace(u[len(e.text):])
		}
	}
	return respUnknown, u
}

// Channel is a Hayes-modem Channel specialisation wrapping a serial
// channel.Channel. Connect() dials out when PhoneNumber is set; Connect()
// without a phone number puts the modem into auto-answer mode.
type Channel struct {
	channel.Channel
	cfg Config
	log clog.Clog
}

// New wraps serialChannel (typically a *serial.Port) with the Hayes dial
// logic.
func New(serialChannel channel.Channel, cfg Config) *Channel {
	return &Channel{Channel: serialChannel, cfg: cfg, log: clog.NewLogger("modem: ")}
}

// Connect brings up the underlying serial port then either dials out (when
// PhoneNumber is set) or arms auto-answer.
func (m *Channel) Connect() error {
	if err := m.Channel.Connect(); err != nil {
		return err
	}
	if err := m.hookOn(); err != nil {
		return err
	}
	if m.cfg.PhoneNumber != "" {
		return m.dial()
	}
	return m.autoAnswer()
}

// hookOn drops DTR for 400ms then raises it, forcing the modem to hang up
// and reset before a new command sequence.
func (m *Channel) hookOn() error {
	if err := m.Channel.SetDtrControl(channel.LineDisable); err != nil && err != channel.ErrNotSupportedForThisType {
		return err
	}
	if err := m.Channel.Sleep(400 * time.Millisecond); err != nil {
		return err
	}
	if err := m.Channel.SetDtrControl(channel.LineEnable); err != nil && err != channel.ErrNotSupportedForThisType {
		return err
	}
	return nil
}

func (m *Channel) writeLine(s string) error {
	return m.Channel.WriteBuffer([]byte(s + "\r"))
}

// readLine reads a single CR/LF-terminated line within timeout, polling the
// cancel flag between reads via DoReadCancellable.
func (m *Channel) readLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", channel.ErrReadTimeout
		}
		n, err := m.Channel.DoReadCancellable(buf, remaining, true)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", channel.ErrReadTimeout
		}
		c := buf[0]
		if c == '\n' {
			if sb.Len() > 0 {
				return sb.String(), nil
			}
			continue
		}
		if c == '\r' {
			continue
		}
		sb.WriteByte(c)
	}
}

func (m *Channel) expect(want hayesResponse, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		line, err := m.readLine(time.Until(deadline))
		if err != nil {
			return err
		}
		kind, _ := classify(line)
		if kind == want {
			return nil
		}
	}
	return fmt.Errorf("modem: timed out waiting for %v", want)
}

func (m *Channel) dial() error {
	if m.cfg.PhoneNumber == "" {
		return fmt.Errorf("modem: no phone number specified")
	}
	if err := m.writeLine(m.cfg.InitString); err != nil {
		return err
	}
	if err := m.expect(respOK, m.cfg.CommandTimeout); err != nil {
		return fmt.Errorf("modem: init string not acknowledged: %w", err)
	}
	if err := m.writeLine(m.cfg.DialString + m.cfg.PhoneNumber); err != nil {
		return err
	}
	return m.waitForConnect(m.cfg.CommandTimeout)
}

func (m *Channel) waitForConnect(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		line, err := m.readLine(time.Until(deadline))
		if err != nil {
			return err
		}
		kind, rest := classify(line)
		switch kind {
		case respConnect:
			if m.cfg.MatchConnectBaud {
				m.maybeSetConnectBaud(rest)
			}
			return nil
		case respOK, respRing:
			continue // lowest priority, keep waiting
		case respNoCarrier, respError, respNoDialTone, respBusy, respNoAnswer:
			return fmt.Errorf("modem: could not connect: %s", line)
		default:
			continue
		}
	}
	return channel.ErrReadTimeout
}

func (m *Channel) maybeSetConnectBaud(rest string) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return
	}
	if baud, err := strconv.Atoi(fields[0]); err == nil && baud > 0 {
		if err := m.Channel.SetBaud(baud); err != nil && err != channel.ErrNotSupportedForThisType {
			m.log.Warn("failed to match connect baud %d: %v", baud, err)
		}
	}
}

func (m *Channel) autoAnswer() error {
	if err := m.writeLine(m.cfg.AutoAnswerString); err != nil {
		return err
	}
	deadline := time.Now().Add(m.cfg.AutoAnswerTimeout)
	for time.Now().Before(deadline) {
		line, err := m.readLine(time.Until(deadline))
		if err != nil {
			return err
		}
		kind, rest := classify(line)
		switch kind {
		case respConnect:
			if m.cfg.MatchConnectBaud {
				m.maybeSetConnectBaud(rest)
			}
			return nil
		case respRing:
			continue
		case respNoCarrier:
			// recoverable: hook on and keep listening.
			if err := m.hookOn(); err != nil {
				return err
			}
			if err := m.writeLine(m.cfg.AutoAnswerString); err != nil {
				return err
			}
			continue
		default:
			return fmt.Errorf("modem: unexpected response while answering: %s", line)
		}
	}
	return channel.ErrReadTimeout
}

// Disconnect hangs up (hook-on) and tears down the underlying serial port.
func (m *Channel) Disconnect() error {
	_ = m.hookOn()
	return m.Channel.Disconnect()
}

// CancelCommunication additionally sends a Control-C (0x03) into the modem
// to abort an in-progress dial.
func (m *Channel) CancelCommunication(alsoDisconnect bool) {
	_ = m.Channel.WriteChar(0x03)
	m.Channel.CancelCommunication(alsoDisconnect)
}

var _ channel.Channel = (*Channel)(nil)
