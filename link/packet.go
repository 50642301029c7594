package link

import (
	"github.com/c12stack/c12/primitives"
)

// Control bytes.
const (
	StartOfPacket byte = 0xEE
	ACK           byte = 0x06
	NAK           byte = 0x15
	Cancel        byte = 0x03
)

// HeaderSize is the fixed STP+IDENTITY+CTRL+SEQ+LEN header length; CRC-16
// adds another 2 trailing bytes.
const HeaderSize = 6

// CTRL bit layout.
const (
	ctrlMulti      byte = 1 << 7
	ctrlFirst      byte = 1 << 6
	ctrlToggle     byte = 1 << 5
	ctrlAckNakMask byte = 0x03 << 2 // C12.21 in-packet ACK/NAK, bits 3..2
	ctrlDataFormat byte = 0x03      // bits 1..0
)

// AckNak is the C12.21 in-packet ACK/NAK code carried in CTRL bits 3..2.
// This overlaps with the C12.22-encapsulation meaning of the same bits when
// DataFormat selects encapsulation — both
// accessors are exposed and callers must pick the one that matches the
// negotiated DataFormat.
type AckNak byte

const (
	AckNakACKExpected AckNak = 0x00
	AckNakNAK         AckNak = 0x04
)

// Ctrl is the packet control byte, decoded into its component bit-fields.
type Ctrl byte

func (c Ctrl) Multi() bool      { return byte(c)&ctrlMulti != 0 }
func (c Ctrl) First() bool      { return byte(c)&ctrlFirst != 0 }
func (c Ctrl) Toggle() bool     { return byte(c)&ctrlToggle != 0 }
func (c Ctrl) DataFormat() byte { return byte(c) & ctrlDataFormat }
func (c Ctrl) AckNak() AckNak   { return AckNak(byte(c) & ctrlAckNakMask) }

// NewCtrl composes a CTRL byte from its bit-fields.
func NewCtrl(multi, first, toggle bool, dataFormat byte) Ctrl {
	var c byte
	if multi {
		c |= ctrlMulti
	}
	if first {
		c |= ctrlFirst
	}
	if toggle {
		c |= ctrlToggle
	}
	c |= dataFormat & ctrlDataFormat
	return Ctrl(c)
}

// Header is the decoded fixed part of a link-layer packet.
type Header struct {
	Identity byte
	Ctrl     Ctrl
	Seq      byte
	Len      uint16
}

// Packet is a full link-layer packet: header, payload and the CRC-16
// trailer. Invariant: 8 ≤ len(Payload)+8 ≤ NegotiatedPacketSize, CRC is
// computed over STP..end-of-payload inclusive.
type Packet struct {
	Header
	Payload []byte
	CRC     uint16
}

// Encode serialises p to the wire, computing and appending the CRC-16.
func (p *Packet) Encode() []byte {
	b := primitives.NewBuilder(HeaderSize + len(p.Payload) + 2)
	b.AppendByte(StartOfPacket)
	b.AppendByte(p.Identity)
	b.AppendByte(byte(p.Ctrl))
	b.AppendByte(p.Seq)
	b.AppendUint16BE(uint16(len(p.Payload)))
	b.AppendBytes(p.Payload...)
	crc := CRC16(b.Bytes())
	b.AppendUint16LE(crc)
	return b.Bytes()
}

// DecodeHeader parses the 5 bytes following STP (IDENTITY, CTRL, SEQ, LEN)
// into a Header. buf must be exactly 5 bytes.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != 5 {
		return Header{}, ErrShortHeader
	}
	c := primitives.NewCursor(buf)
	identity, _ := c.ReadByte()
	ctrl, _ := c.ReadByte()
	seq, _ := c.ReadByte()
	ln, err := c.ReadUint16BE()
	if err != nil {
		return Header{}, err
	}
	return Header{Identity: identity, Ctrl: Ctrl(ctrl), Seq: seq, Len: ln}, nil
}
