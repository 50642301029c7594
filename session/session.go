// Package session implements the C12.18/C12.21 session life-cycle:
// StartSession/EndSession orchestration, the second-chance baud retry, and
// the keep-alive timer.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/c12stack/c12/app"
	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/channel"
	"github.com/c12stack/c12/counters"
	"github.com/c12stack/c12/link"
)

// State is the tagged connection/session state.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateInSession
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnected:
		return "Connected"
	case StateInSession:
		return "InSession"
	default:
		return "Unknown"
	}
}

// Session orchestrates the channel/link/app layers through the C12.18/
// C12.21 connection life-cycle. One Session owns exactly one Channel, one
// link.Engine and one app.Protocol.
type Session struct {
	Channel  channel.Channel
	Engine   *link.Engine
	App      *app.Protocol
	Counters *counters.Counters

	// InitialBaud is the baud the channel was opened at; the second-chance
	// StartSession retry only fires when the negotiated SessionBaud differs
	// from it, and applyChannelParameters re-bauds the port back to it
	// before every fresh StartSession attempt.
	InitialBaud int

	// SecondChanceDelay is the wait before the second-chance StartSession
	// retry; some meters need several seconds to drop a half-open session
	// before they answer an Identify again.
	SecondChanceDelay time.Duration

	mu    sync.Mutex
	state State

	keepAlive *keepAliveTimer
}

// New wires a Session over an already-configured channel/engine/protocol
// triple. Callers build the Channel, link.Engine and app.Protocol
// themselves.
func New(ch channel.Channel, engine *link.Engine, proto *app.Protocol, cnt *counters.Counters) *Session {
	s := &Session{
		Channel: ch, Engine: engine, App: proto, Counters: cnt,
		SecondChanceDelay: 7 * time.Second,
		state:             StateDisconnected,
	}
	s.keepAlive = newKeepAliveTimer(s)
	return s
}

// applyChannelParameters puts the transport back into its pre-session
// shape: link toggle state cleared and, on channels that support it, the
// port re-bauded to InitialBaud. Runs before the first StartSession attempt
// and again before the second-chance retry, so a previous Negotiate's baud
// switch never leaks into a fresh session.
func (s *Session) applyChannelParameters() error {
	s.Engine.ResetToggles()
	if s.InitialBaud != 0 {
		if err := s.Channel.SetBaud(s.InitialBaud); err != nil && err != channel.ErrNotSupportedForThisType {
			return err
		}
		s.App.CurrentBaud = s.InitialBaud
	}
	return nil
}

// State reports the current tagged session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(v State) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

// Connect opens the transport.
func (s *Session) Connect() error {
	if err := s.Channel.Connect(); err != nil {
		return err
	}
	s.Engine.ResetToggles()
	s.setState(StateConnected)
	return nil
}

// Disconnect closes the transport. Disconnect never propagates failures;
// they are swallowed, with the counters summary still emitted through the
// channel's monitor hook.
func (s *Session) Disconnect() error {
	s.keepAlive.Stop()
	if s.Counters.HasActivitySinceLastDump() {
		s.Channel.MonitorEvent(channel.EventApplicationLayerInformation, s.Counters.Summary())
	}
	_ = s.Channel.Disconnect()
	s.setState(StateDisconnected)
	return nil
}

// StartSession runs the dialect-appropriate service sequence.
// Entering StateInSession requires at least a successful Identify.
func (s *Session) StartSession() error {
	s.keepAlive.suspend()
	defer s.keepAlive.resume()

	if err := s.applyChannelParameters(); err != nil {
		return err
	}
	s.App.Identified = app.IdentifiedView{}
	s.App.Negotiated = app.NegotiatedView{}
	s.App.LoggedOn = false
	s.App.Secured = false

	cfg := &s.App.Config
	if cfg.WakeUpSharedOpticalPort {
		_ = s.Channel.WriteChar(0x55)
		_ = s.Channel.FlushOutputBuffer(0)
		_ = s.Channel.Sleep(50 * time.Millisecond)
	}

	if err := s.App.Identify(); err != nil {
		return err
	}
	s.setState(StateInSession)

	var runErr error
	if s.App.Dialect == app.DialectC1221 {
		runErr = s.startSessionC1221()
	} else {
		runErr = s.startSessionC1218()
	}

	if runErr != nil && s.shouldRetryWithSecondChance(runErr) {
		if err := s.Channel.Sleep(s.SecondChanceDelay); err != nil {
			return err
		}
		if err := s.applyChannelParameters(); err != nil {
			return err
		}
		if err := s.App.Identify(); err != nil {
			return err
		}
		if err := s.App.Negotiate(); err != nil {
			return err
		}
		runErr = s.App.Logon(0, "")
	}
	if runErr != nil {
		return runErr
	}

	if cfg.IssueSecurityOnStartSession {
		if err := s.security(); err != nil {
			return err
		}
	}
	s.keepAlive.noteTraffic()
	return nil
}

func (s *Session) startSessionC1218() error {
	cfg := &s.App.Config
	if cfg.IssueNegotiateOnStartSession {
		if err := s.App.Negotiate(); err != nil {
			return err
		}
	}
	return s.App.Logon(0, "")
}

func (s *Session) startSessionC1221() error {
	cfg := &s.App.Config
	if cfg.IssueTimingSetupOnStartSession {
		if err := s.App.TimingSetup(); err != nil {
			return err
		}
	}
	if cfg.IssueNegotiateOnStartSession {
		if err := s.App.Negotiate(); err != nil {
			return err
		}
	}
	if err := s.App.Logon(0, ""); err != nil {
		return err
	}
	if cfg.EnableAuthentication {
		return s.authenticate()
	}
	return nil
}

// shouldRetryWithSecondChance decides whether a StartSession failure earns
// one more attempt: a broad non-cancel, non-channel-lost, non-C12Nok
// failure retries once more at the initial baud, UNLESS SessionBaud already
// equals InitialBaud or Negotiate was never going to run on StartSession in
// the first place.
func (s *Session) shouldRetryWithSecondChance(err error) bool {
	if c12err.Is(err, c12err.KindOperationCancelled) || errors.Is(err, channel.ErrOperationCancelled) {
		return false
	}
	if c12err.Is(err, c12err.KindChannelDisconnectedUnexpectedly) || errors.Is(err, channel.ErrDisconnectedUnexpectedly) {
		return false
	}
	if c12err.Is(err, c12err.KindC12NokResponse) {
		return false
	}
	cfg := &s.App.Config
	if cfg.SessionBaud == s.InitialBaud || !cfg.IssueNegotiateOnStartSession {
		return false
	}
	return true
}

// EndSession issues Logoff (if configured) then Terminate, and clears the
// outgoing toggle.
func (s *Session) EndSession() error {
	s.keepAlive.suspend()
	defer s.keepAlive.resume()

	var logoffErr error
	if s.App.Config.IssueLogoffOnEndSession {
		logoffErr = s.App.Logoff()
	}
	// Terminate is mandatory even if Logoff failed, when configured.
	if logoffErr != nil && !s.App.Config.EndSessionOnApplicationLayerError {
		s.Engine.ResetToggles()
		s.setState(StateConnected)
		return logoffErr
	}
	termErr := s.App.Terminate()
	s.Engine.ResetToggles()
	s.setState(StateConnected)
	if logoffErr != nil {
		return logoffErr
	}
	return termErr
}

// EndSessionNoThrow swallows every error from EndSession.
func (s *Session) EndSessionNoThrow() {
	_ = s.EndSession()
}
