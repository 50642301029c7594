package app

import (
	"time"

	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/counters"
	"github.com/c12stack/c12/link"
	"github.com/c12stack/c12/primitives"
)

// MaximumBadToggleBitSleep bounds the sleep issued after a "retry whole
// application layer" signal from the link layer, before the link step is
// restarted.
const MaximumBadToggleBitSleep = 1500 * time.Millisecond

// Config is the protocol configuration surface, with field names matching
// the operator-facing names metering tooling already uses.
type Config struct {
	Password     *primitives.SecureBytes
	PasswordList []*primitives.SecureBytes

	Identity   byte
	DataFormat byte

	PacketSize             int
	MaximumNumberOfPackets int
	SessionBaud            int
	MatchConnectBaud       bool

	IntercharacterTimeout  time.Duration
	AcknowledgementTimeout time.Duration
	ChannelTrafficTimeout  time.Duration
	LinkLayerRetries       int

	ApplicationLayerRetries                      int
	ApplicationLayerProcedureRetries              int
	ApplicationLayerProcedureSleepBetweenRetries time.Duration
	ProcedureInitiateTimeout                     time.Duration

	WakeUpSharedOpticalPort        bool
	CheckIncomingToggleBit         bool
	IssueNegotiateOnStartSession   bool
	IssueTimingSetupOnStartSession bool
	IssueSecurityOnStartSession    bool
	IssueLogoffOnEndSession        bool

	EnableAuthentication  bool
	AuthenticationKey     *primitives.SecureBytes
	AuthenticationKeyID   byte
	AuthenticationKeyList []*primitives.SecureBytes

	KeepSessionAlive                  bool
	EndSessionOnApplicationLayerError bool

	MaximumPasswordLength int
	MeterIsLittleEndian   bool
}

// DefaultConfig returns the conventional defaults: PacketSize=1024,
// MaximumNumberOfPackets=255, the ANSI C12 timing defaults, plus the
// conventional retry/policy defaults.
func DefaultConfig() Config {
	return Config{
		PacketSize:                        1024,
		MaximumNumberOfPackets:             255,
		IntercharacterTimeout:              500 * time.Millisecond,
		AcknowledgementTimeout:             3 * time.Second,
		ChannelTrafficTimeout:              120 * time.Second,
		LinkLayerRetries:                   3,
		ApplicationLayerRetries:            3,
		ApplicationLayerProcedureRetries:   3,
		ApplicationLayerProcedureSleepBetweenRetries: 1 * time.Second,
		ProcedureInitiateTimeout:           20 * time.Second,
		CheckIncomingToggleBit:             true,
		IssueNegotiateOnStartSession:       true,
		IssueLogoffOnEndSession:            true,
		KeepSessionAlive:                   false,
		EndSessionOnApplicationLayerError:  true,
		MaximumPasswordLength:              20,
	}
}

// Valid applies defaults and range-checks each field, one field at a time
// with an exact boundary message, defaulting fields left at their zero
// value.
func (c *Config) Valid() error {
	if c == nil {
		return c12err.Newf(c12err.KindSoftware, "app: nil config")
	}
	if c.PacketSize == 0 {
		c.PacketSize = 1024
	} else if c.PacketSize < 32 || c.PacketSize > 8192 {
		return c12err.Newf(c12err.KindSoftware, "PacketSize not in [32, 8192]")
	}
	if c.MaximumNumberOfPackets == 0 {
		c.MaximumNumberOfPackets = 255
	} else if c.MaximumNumberOfPackets < 1 || c.MaximumNumberOfPackets > 255 {
		return c12err.Newf(c12err.KindSoftware, "MaximumNumberOfPackets not in [1, 255]")
	}
	if c.IntercharacterTimeout == 0 {
		c.IntercharacterTimeout = 500 * time.Millisecond
	} else if c.IntercharacterTimeout < 0 || c.IntercharacterTimeout > 255*time.Second {
		return c12err.Newf(c12err.KindSoftware, "IntercharacterTimeout not in [0, 255000]ms")
	}
	if c.AcknowledgementTimeout == 0 {
		c.AcknowledgementTimeout = 3 * time.Second
	} else if c.AcknowledgementTimeout < 0 || c.AcknowledgementTimeout > 255*time.Second {
		return c12err.Newf(c12err.KindSoftware, "AcknowledgementTimeout not in [0, 255000]ms")
	}
	if c.ChannelTrafficTimeout == 0 {
		c.ChannelTrafficTimeout = 120 * time.Second
	} else if c.ChannelTrafficTimeout < 0 || c.ChannelTrafficTimeout > 255*time.Second {
		return c12err.Newf(c12err.KindSoftware, "ChannelTrafficTimeout not in [0, 255000]ms")
	}
	if c.LinkLayerRetries == 0 {
		c.LinkLayerRetries = 3
	}
	if c.DataFormat > 3 {
		return c12err.Newf(c12err.KindSoftware, "DataFormat not in [0, 3]")
	}
	if c.MaximumPasswordLength == 0 {
		c.MaximumPasswordLength = 20
	}
	return nil
}

// IdentifiedView is the state exposed after a successful Identify.
type IdentifiedView struct {
	Valid               bool
	StandardReference   byte
	StandardVersion     byte
	StandardRevision    byte
	AuthAlgorithm        Algorithm
	AuthTicket           []byte
	AuthSupported        bool
	DeviceClass          string
	DeviceIdentity       string
}

// NegotiatedView is the state exposed after a successful Negotiate.
type NegotiatedView struct {
	Valid       bool
	PacketSize  int
	MaxPackets  int
	SessionBaud int
}

// Protocol is the C12.18/C12.21 application layer (C5): the service codec,
// request dispatcher and retry policy layered over a link.Engine. Exactly
// one service may be in flight at a time, enforced by mu.
type Protocol struct {
	Engine   *link.Engine
	Counters *counters.Counters
	Config   Config
	Dialect  Dialect

	Identified IdentifiedView
	Negotiated NegotiatedView
	LoggedOn   bool
	Secured    bool

	PasswordListSuccessfulEntry          int
	AuthenticationKeyListSuccessfulEntry int

	// CurrentBaud tracks the baud the channel is actually running at: the
	// session layer sets it when re-applying channel parameters, Negotiate
	// moves it to the agreed session baud. Zero means "never re-bauded".
	CurrentBaud int

	procedureSequence byte

	mu primitives.AtomicFlag // single-word busy flag, app layer's coarse mutex
}

// NewProtocol wires a Protocol over an already-constructed link.Engine.
func NewProtocol(engine *link.Engine, cnt *counters.Counters, dialect Dialect, cfg Config) *Protocol {
	return &Protocol{Engine: engine, Counters: cnt, Dialect: dialect, Config: cfg}
}

// requestOptions customises a single DoApplicationLayerRequest call.
type requestOptions struct {
	minLinkRetries          int
	allowShortFirstResponse bool
}

// DoApplicationLayerRequest is the request dispatcher: nested
// app-retry / link-retry loops, BSY/DNR retry policy, and response-code
// surfacing. It returns the response payload with the leading STATUS byte
// stripped.
func (p *Protocol) DoApplicationLayerRequest(command byte, body []byte, opts requestOptions) ([]byte, error) {
	if p.mu.TestAndSet() {
		// One service in flight per protocol instance; the keep-alive
		// goroutine backing off here is the intended outcome.
		return nil, c12err.Newf(c12err.KindSoftware, "app: another service is in flight")
	}
	defer p.mu.Clear()

	message := make([]byte, 0, 1+len(body))
	message = append(message, command)
	message = append(message, body...)

	appRetries := p.Config.ApplicationLayerRetries
	for {
		resp, err := p.doLinkExchange(message, opts)
		if err != nil {
			p.Counters.IncAppFail()
			return nil, err
		}
		if len(resp) == 0 {
			p.Counters.IncAppFail()
			return nil, c12err.Newf(c12err.KindMeter, "app: empty response")
		}
		status := Status(resp[0])
		extra := resp[1:]

		if status == StatusOK {
			p.Counters.IncAppSucc()
			return extra, nil
		}

		if status.Retryable() {
			if appRetries <= 0 {
				p.Counters.IncAppFail()
				return nil, c12err.NokResponse(byte(status), extra)
			}
			appRetries--
			p.Counters.IncAppRetry()
			_ = p.Engine.Channel.Sleep(p.Config.ApplicationLayerProcedureSleepBetweenRetries)
			continue
		}

		p.Counters.IncAppFail()
		return nil, c12err.NokResponse(byte(status), extra)
	}
}

// doLinkExchange runs the inner link-retry loop around one Send+Receive
// pair, including the toggle-failure application-layer restart.
func (p *Protocol) doLinkExchange(message []byte, opts requestOptions) ([]byte, error) {
	linkRetries := p.Config.LinkLayerRetries
	if opts.minLinkRetries > linkRetries {
		linkRetries = opts.minLinkRetries
	}

	for {
		if err := p.Engine.Send(message, p.Config.DataFormat); err != nil {
			if link.IsShadowRetry(err) {
				if linkRetries <= 0 {
					p.Counters.IncLinkFail()
					return nil, err
				}
				linkRetries--
				continue
			}
			return nil, err
		}

		resp, err := p.Engine.Receive(false, opts.allowShortFirstResponse)
		if err != nil {
			if c12err.Is(err, c12err.KindReceivedPacketToggleBitFailure) {
				if linkRetries <= 0 {
					p.Counters.IncLinkFail()
					return nil, err
				}
				linkRetries--
				p.Counters.IncAppRetry()
				p.Engine.ClearInboundToggle()
				_ = p.Engine.Channel.Sleep(MaximumBadToggleBitSleep)
				continue
			}
			if c12err.Is(err, c12err.KindCrcCheckFailed) {
				if linkRetries <= 0 {
					p.Counters.IncLinkFail()
					return nil, err
				}
				linkRetries--
				continue
			}
			return nil, err
		}
		return resp, nil
	}
}

// simpleRequest is the common case: no inflated link retries, no short-
// first-response tolerance.
func (p *Protocol) simpleRequest(command byte, body []byte) ([]byte, error) {
	return p.DoApplicationLayerRequest(command, body, requestOptions{})
}
