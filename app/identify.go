package app

import (
	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/primitives"
)

// Feature descriptor tags within an Identify response. auth_ser carries
// {sub-type, algorithm}; auth_ser_ticket additionally a length-prefixed
// ticket (`02 01 FF 10 <16-byte ticket>`); device-class and device-identity
// are optional strings; 0x00 terminates the list.
const (
	featureAuthSer       byte = 0x01
	featureAuthSerTicket byte = 0x02
	featureDeviceClass   byte = 0x03
	featureDeviceIdentity byte = 0x04
	featureTerminator    byte = 0x00
)

// Identify issues the Identify service and populates p.Identified from the response.
func (p *Protocol) Identify() error {
	resp, err := p.DoApplicationLayerRequest(CmdIdentify, nil, requestOptions{allowShortFirstResponse: true})
	if err != nil {
		return err
	}
	if len(resp) < 3 {
		return c12err.Newf(c12err.KindMeter, "app: Identify response too short")
	}
	view := IdentifiedView{
		Valid:              true,
		StandardReference:  resp[0],
		StandardVersion:    resp[1],
		StandardRevision:   resp[2],
	}
	if err := parseFeatures(resp[3:], &view); err != nil {
		return err
	}
	p.Identified = view
	return nil
}

// parseFeatures walks the 0x00-terminated feature-descriptor list following
// ref/ver/rev in an Identify response.
func parseFeatures(buf []byte, view *IdentifiedView) error {
	c := primitives.NewCursor(buf)
	for c.Len() > 0 {
		tag, err := c.ReadByte()
		if err != nil {
			return err
		}
		if tag == featureTerminator {
			return nil
		}
		switch tag {
		case featureAuthSer:
			if c.Len() < 2 {
				return c12err.Newf(c12err.KindMeter, "app: truncated auth_ser feature")
			}
			_, _ = c.ReadByte() // sub-type, not otherwise consumed by the core
			alg, _ := c.ReadByte()
			view.AuthAlgorithm = Algorithm(alg)
			view.AuthSupported = true
		case featureAuthSerTicket:
			if c.Len() < 3 {
				return c12err.Newf(c12err.KindMeter, "app: truncated auth_ser_ticket feature")
			}
			_, _ = c.ReadByte() // sub-type
			alg, _ := c.ReadByte()
			n, _ := c.ReadByte()
			ticket, err := c.ReadBytes(int(n))
			if err != nil {
				return c12err.Newf(c12err.KindMeter, "app: truncated ticket")
			}
			view.AuthAlgorithm = Algorithm(alg)
			view.AuthTicket = append([]byte(nil), ticket...)
			view.AuthSupported = true
		case featureDeviceClass:
			n, err := c.ReadByte()
			if err != nil {
				return err
			}
			b, err := c.ReadBytes(int(n))
			if err != nil {
				return c12err.Newf(c12err.KindMeter, "app: truncated device-class")
			}
			view.DeviceClass = string(b)
		case featureDeviceIdentity:
			n, err := c.ReadByte()
			if err != nil {
				return err
			}
			b, err := c.ReadBytes(int(n))
			if err != nil {
				return c12err.Newf(c12err.KindMeter, "app: truncated device-identity")
			}
			view.DeviceIdentity = string(b)
		default:
			return c12err.Newf(c12err.KindMeter, "app: unknown feature tag 0x%02x", tag)
		}
	}
	return nil
}
