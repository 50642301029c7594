// Package metertest provides a scripted simulated meter speaking the
// server side of the C12.18/21 link layer over an in-memory loopback
// channel. It exists solely to drive link/app/session/queue tests; it is
// the minimal server-side role the protocol needs for testing, nothing
// more.
package metertest

import (
	"fmt"

	"github.com/c12stack/c12/channel"
	"github.com/c12stack/c12/link"
)

// Meter is one simulated device on the far end of a loopback pair. Tests
// either hand-script exchanges with ReadRequest/WriteResponse (and the
// fault-injection helpers) or run a Handler loop with Serve.
type Meter struct {
	Ch *channel.Loopback

	// PacketSize bounds outbound segments the same way the client's
	// negotiated packet size does; responses longer than PacketSize-8 are
	// sent as a multipacket transfer.
	PacketSize int

	toggle   bool
	lastWire []byte
}

// New wraps the meter-side loopback endpoint. The endpoint is connected
// immediately so reads and writes work without further setup.
func New(ch *channel.Loopback) *Meter {
	_ = ch.Connect()
	return &Meter{Ch: ch, PacketSize: 1024}
}

// Handler maps one assembled request message (command byte + body) to a
// response status and data.
type Handler func(request []byte) (status byte, data []byte)

// Serve runs a read-request/write-response loop on a new goroutine until
// the channel closes.
func (m *Meter) Serve(handle Handler) {
	go func() {
		for {
			req, err := m.ReadRequest()
			if err != nil {
				return
			}
			status, data := handle(req)
			if err := m.WriteResponse(status, data); err != nil {
				return
			}
		}
	}()
}

// ReadRequest reads one full application request (reassembling multipacket
// transfers), acknowledging every packet.
func (m *Meter) ReadRequest() ([]byte, error) {
	var assembled []byte
	for {
		payload, hdr, err := m.readPacket()
		if err != nil {
			return nil, err
		}
		if err := m.WriteAck(); err != nil {
			return nil, err
		}
		assembled = append(assembled, payload...)
		if !hdr.Ctrl.Multi() || hdr.Seq == 0 {
			return assembled, nil
		}
	}
}

// ReadRequestNoAck reads one single-packet request without acknowledging
// it, for scripting shadow-packet and NAK scenarios.
func (m *Meter) ReadRequestNoAck() ([]byte, error) {
	payload, _, err := m.readPacket()
	return payload, err
}

func (m *Meter) readPacket() ([]byte, link.Header, error) {
	var start [1]byte
	if err := m.Ch.ReadBuffer(start[:]); err != nil {
		return nil, link.Header{}, err
	}
	if start[0] != link.StartOfPacket {
		return nil, link.Header{}, fmt.Errorf("metertest: expected 0xEE, got 0x%02x", start[0])
	}
	hdrBuf := make([]byte, 5)
	if err := m.Ch.ReadBuffer(hdrBuf); err != nil {
		return nil, link.Header{}, err
	}
	hdr, err := link.DecodeHeader(hdrBuf)
	if err != nil {
		return nil, link.Header{}, err
	}
	rest := make([]byte, int(hdr.Len)+2)
	if err := m.Ch.ReadBuffer(rest); err != nil {
		return nil, link.Header{}, err
	}
	return rest[:hdr.Len], hdr, nil
}

// WriteAck sends a bare ACK byte.
func (m *Meter) WriteAck() error {
	return m.Ch.WriteBuffer([]byte{link.ACK})
}

// WriteNak sends a bare NAK byte, forcing the client to re-transmit.
func (m *Meter) WriteNak() error {
	return m.Ch.WriteBuffer([]byte{link.NAK})
}

// ReadAck consumes the client's ACK for the last packet written.
func (m *Meter) ReadAck() error {
	var b [1]byte
	if err := m.Ch.ReadBuffer(b[:]); err != nil {
		return err
	}
	if b[0] != link.ACK {
		return fmt.Errorf("metertest: expected ACK, got 0x%02x", b[0])
	}
	return nil
}

// WriteResponse sends STATUS+data as one or more packets (segmented when
// the message exceeds PacketSize-8), reading the client's ACK after each.
func (m *Meter) WriteResponse(status byte, data []byte) error {
	message := append([]byte{status}, data...)
	chunk := m.PacketSize - 8
	numPackets := (len(message) + chunk - 1) / chunk
	if numPackets == 0 {
		numPackets = 1
	}
	for i := 0; i < numPackets; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(message) {
			end = len(message)
		}
		multi := numPackets > 1
		if err := m.writePacket(message[start:end], multi, multi && i == 0, byte(numPackets-1-i)); err != nil {
			return err
		}
		if err := m.ReadAck(); err != nil {
			return err
		}
	}
	return nil
}

// WritePacketRaw sends one packet without waiting for the client's ACK,
// used to inject shadow packets while the client is awaiting an ACK byte.
func (m *Meter) WritePacketRaw(payload []byte) error {
	return m.writePacket(payload, false, false, 0)
}

// RepeatLastResponse re-transmits the previous packet byte-for-byte (same
// toggle, same CRC), simulating a device that re-sent its last response,
// then consumes the client's duplicate-suppression ACK.
func (m *Meter) RepeatLastResponse() error {
	if err := m.Ch.WriteBuffer(m.lastWire); err != nil {
		return err
	}
	return m.ReadAck()
}

// RewindToggle steps the outbound toggle back one flip, so the next
// response reuses the previous packet's toggle value. Used to simulate
// out-of-sequence devices (toggle equal, CRC different).
func (m *Meter) RewindToggle() {
	m.toggle = !m.toggle
}

func (m *Meter) writePacket(payload []byte, multi, first bool, seq byte) error {
	ctrl := link.NewCtrl(multi, first, m.toggle, 0)
	pkt := link.Packet{
		Header:  link.Header{Ctrl: ctrl, Seq: seq, Len: uint16(len(payload))},
		Payload: payload,
	}
	wire := pkt.Encode()
	m.lastWire = wire
	m.toggle = !m.toggle
	return m.Ch.WriteBuffer(wire)
}
