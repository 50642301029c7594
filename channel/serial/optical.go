package serial

import "github.com/c12stack/c12/channel"

// OpticalProbe is the C12.18 optical-port specialisation: identical to a
// plain Port except
// that DTR is asserted permanently at Connect (many optical probes are
// powered parasitically off DTR) and it never dials, so it has no
// modem-driver layer above it.
type OpticalProbe struct {
	*Port
}

// NewOpticalProbe wraps path as an always-DTR-on optical probe channel.
func NewOpticalProbe(path string) *OpticalProbe {
	return &OpticalProbe{Port: New(path)}
}

func (o *OpticalProbe) Connect() error {
	if err := o.Port.Connect(); err != nil {
		return err
	}
	return o.Port.SetDtrControl(channel.LineEnable)
}
