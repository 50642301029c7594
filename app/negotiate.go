package app

import (
	"github.com/c12stack/c12/c12err"
	"github.com/c12stack/c12/channel"
	"github.com/c12stack/c12/primitives"
)

// Negotiate issues the Negotiate service (cmd 0x60/0x61), agreeing on
// packet size, max packet count and, optionally, session baud.
// On success it updates p.Negotiated and the underlying link.Engine's
// negotiated packet size / max packet count.
func (p *Protocol) Negotiate() error {
	withBaud := p.Config.SessionBaud != 0
	b := primitives.NewBuilder(4)
	b.AppendUint16BE(uint16(p.Config.PacketSize))
	b.AppendByte(byte(p.Config.MaximumNumberOfPackets))

	cmd := CmdNegotiate
	if withBaud {
		idx, ok := BaudToIndex(p.Config.SessionBaud)
		if !ok {
			return c12err.Newf(c12err.KindSoftware, "app: SessionBaud %d not in baud table", p.Config.SessionBaud)
		}
		cmd = CmdNegotiateWithBaud
		b.AppendByte(idx)
	}

	resp, err := p.simpleRequest(cmd, b.Bytes())
	if err != nil {
		return err
	}
	c := primitives.NewCursor(resp)
	size, err := c.ReadUint16BE()
	if err != nil {
		return c12err.Newf(c12err.KindMeter, "app: truncated Negotiate response")
	}
	maxPkts, err := c.ReadByte()
	if err != nil {
		return c12err.Newf(c12err.KindMeter, "app: truncated Negotiate response")
	}
	baud := p.Config.SessionBaud
	if withBaud {
		idxByte, err := c.ReadByte()
		if err != nil {
			return c12err.Newf(c12err.KindMeter, "app: truncated Negotiate response")
		}
		negotiatedBaud, ok := IndexToBaud(idxByte)
		if !ok {
			return c12err.Newf(c12err.KindMeter, "app: meter reported invalid baud index 0x%02x", idxByte)
		}
		baud = negotiatedBaud
	}

	p.Negotiated = NegotiatedView{Valid: true, PacketSize: int(size), MaxPackets: int(maxPkts), SessionBaud: baud}
	p.Engine.NegotiatedPacketSize = int(size)
	p.Engine.NegotiatedMaximumNumberOfPackets = int(maxPkts)

	// The meter switches to the agreed baud after acknowledging Negotiate;
	// follow it on channels that can re-baud (optical probes and direct
	// serial), leave modem/socket transports untouched.
	if withBaud && baud != 0 && baud != p.CurrentBaud {
		if err := p.Engine.Channel.SetBaud(baud); err != nil && err != channel.ErrNotSupportedForThisType {
			return err
		}
		p.CurrentBaud = baud
	}
	return nil
}

// TimingSetup issues the C12.21-only TimingSetup service, agreeing on per-session timeouts and link retries. Timeouts
// are byte-encoded in whole seconds on the wire.
func (p *Protocol) TimingSetup() error {
	t := p.Engine.Timing
	b := primitives.NewBuilder(4)
	b.AppendByte(secondsByte(t.ChannelTrafficTimeout))
	b.AppendByte(secondsByte(t.IntercharacterTimeout))
	b.AppendByte(secondsByte(t.AcknowledgementTimeout))
	b.AppendByte(byte(t.LinkLayerRetries))

	resp, err := p.simpleRequest(CmdTimingSetup, b.Bytes())
	if err != nil {
		return err
	}
	c := primitives.NewCursor(resp)
	channelTO, err1 := c.ReadByte()
	intercharTO, err2 := c.ReadByte()
	ackTO, err3 := c.ReadByte()
	retries, err4 := c.ReadByte()
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return c12err.Newf(c12err.KindMeter, "app: truncated TimingSetup response")
	}
	p.Engine.Timing.ChannelTrafficTimeout = secondsDuration(channelTO)
	p.Engine.Timing.IntercharacterTimeout = secondsDuration(intercharTO)
	p.Engine.Timing.AcknowledgementTimeout = secondsDuration(ackTO)
	p.Engine.Timing.LinkLayerRetries = int(retries)
	return nil
}
