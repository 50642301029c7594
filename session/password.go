package session

import (
	"github.com/c12stack/c12/app"
	"github.com/c12stack/c12/c12err"
)

// security runs the Security service, iterating the configured password
// list when one is present: entries are tried in order, the first success
// wins and its 0-based index is exposed via PasswordListSuccessfulEntry. Errors other than security failures
// propagate immediately.
func (s *Session) security() error {
	cfg := &s.App.Config
	if len(cfg.PasswordList) == 0 {
		s.App.PasswordListSuccessfulEntry = 0
		return s.App.Security(cfg.Password.Bytes())
	}

	var last error
	for i, pw := range cfg.PasswordList {
		err := s.App.Security(pw.Bytes())
		if err == nil {
			s.App.PasswordListSuccessfulEntry = i
			return nil
		}
		if !isSecurityFailure(err) {
			return err
		}
		last = err
	}
	return last
}

// authenticate runs the Authenticate service, iterating the configured key
// list when one is present. RNO is never retried; every non-final failure forces a full session
// re-establishment (Logoff, Terminate, Identify, conditional TimingSetup,
// conditional Negotiate, Logon) before the next key is tried, because a
// failed Authenticate leaves many devices in a state where only a fresh
// Identify resynchronises them.
func (s *Session) authenticate() error {
	cfg := &s.App.Config
	keys := cfg.AuthenticationKeyList
	if len(keys) == 0 {
		s.App.AuthenticationKeyListSuccessfulEntry = 0
		return s.App.AuthenticateWithKey(cfg.AuthenticationKey, cfg.AuthenticationKeyID)
	}

	var last error
	for i, key := range keys {
		err := s.App.AuthenticateWithKey(key, cfg.AuthenticationKeyID)
		if err == nil {
			s.App.AuthenticationKeyListSuccessfulEntry = i
			return nil
		}
		if code, _, ok := c12err.AsNokResponse(err); ok && app.Status(code) == app.StatusRNO {
			return err
		}
		if !isSecurityFailure(err) {
			return err
		}
		last = err
		if i == len(keys)-1 {
			break
		}
		if rerr := s.reestablish(); rerr != nil {
			return rerr
		}
	}
	return last
}

// isSecurityFailure reports whether err is the kind of failure the
// password/key-list iteration is allowed to step past: a Security-kind
// error or a non-OK device response. Cancellation, channel loss and
// software errors always propagate.
func isSecurityFailure(err error) bool {
	return c12err.Is(err, c12err.KindSecurity) || c12err.Is(err, c12err.KindC12NokResponse)
}

// reestablish replays the StartSession service prefix after a failed
// Authenticate so the next key-list candidate starts from a clean session.
func (s *Session) reestablish() error {
	cfg := &s.App.Config
	_ = s.App.Logoff()
	_ = s.App.Terminate()
	s.Engine.ResetToggles()
	if err := s.App.Identify(); err != nil {
		return err
	}
	if s.App.Dialect == app.DialectC1221 && cfg.IssueTimingSetupOnStartSession {
		if err := s.App.TimingSetup(); err != nil {
			return err
		}
	}
	if cfg.IssueNegotiateOnStartSession {
		if err := s.App.Negotiate(); err != nil {
			return err
		}
	}
	return s.App.Logon(0, "")
}
