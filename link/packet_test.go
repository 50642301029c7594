package link

import (
	"bytes"
	"testing"
)

func TestCtrlBitFields(t *testing.T) {
	tests := []struct {
		name       string
		ctrl       Ctrl
		multi      bool
		first      bool
		toggle     bool
		dataFormat byte
	}{
		{name: "zero", ctrl: 0x00},
		{name: "single toggled", ctrl: 0x20, toggle: true},
		{name: "first of multipacket", ctrl: 0xC0, multi: true, first: true},
		{name: "middle of multipacket toggled", ctrl: 0xA0, multi: true, toggle: true},
		{name: "c1222 encapsulated", ctrl: 0x01, dataFormat: 1},
		{name: "everything", ctrl: 0xE3, multi: true, first: true, toggle: true, dataFormat: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ctrl.Multi(); got != tt.multi {
				t.Errorf("Multi() = %v, want %v", got, tt.multi)
			}
			if got := tt.ctrl.First(); got != tt.first {
				t.Errorf("First() = %v, want %v", got, tt.first)
			}
			if got := tt.ctrl.Toggle(); got != tt.toggle {
				t.Errorf("Toggle() = %v, want %v", got, tt.toggle)
			}
			if got := tt.ctrl.DataFormat(); got != tt.dataFormat {
				t.Errorf("DataFormat() = %d, want %d", got, tt.dataFormat)
			}
		})
	}
}

func TestNewCtrlRoundTrip(t *testing.T) {
	for _, multi := range []bool{false, true} {
		for _, first := range []bool{false, true} {
			for _, toggle := range []bool{false, true} {
				for df := byte(0); df <= 3; df++ {
					c := NewCtrl(multi, first, toggle, df)
					if c.Multi() != multi || c.First() != first || c.Toggle() != toggle || c.DataFormat() != df {
						t.Fatalf("NewCtrl(%v,%v,%v,%d) = 0x%02x does not round-trip", multi, first, toggle, df, byte(c))
					}
				}
			}
		}
	}
}

func TestCtrlAckNak(t *testing.T) {
	if got := Ctrl(0x04).AckNak(); got != AckNakNAK {
		t.Errorf("AckNak() = 0x%02x, want NAK", byte(got))
	}
	if got := Ctrl(0x00).AckNak(); got != AckNakACKExpected {
		t.Errorf("AckNak() = 0x%02x, want ACK-expected", byte(got))
	}
}

func TestPacketEncode(t *testing.T) {
	pkt := Packet{
		Header:  Header{Identity: 0x01, Ctrl: 0x20, Seq: 0x00, Len: 3},
		Payload: []byte{0x30, 0x00, 0x05},
	}
	wire := pkt.Encode()

	if wire[0] != StartOfPacket {
		t.Errorf("wire[0] = 0x%02x, want 0xEE", wire[0])
	}
	wantPrefix := []byte{0xEE, 0x01, 0x20, 0x00, 0x00, 0x03, 0x30, 0x00, 0x05}
	if !bytes.Equal(wire[:len(wantPrefix)], wantPrefix) {
		t.Errorf("wire prefix = % x, want % x", wire[:len(wantPrefix)], wantPrefix)
	}
	if len(wire) != len(wantPrefix)+2 {
		t.Fatalf("wire length = %d, want %d", len(wire), len(wantPrefix)+2)
	}
	// CRC covers STP through the last payload byte and is placed little-
	// endian.
	crc := CRC16(wire[:len(wire)-2])
	if wire[len(wire)-2] != byte(crc) || wire[len(wire)-1] != byte(crc>>8) {
		t.Errorf("CRC trailer = % x, want little-endian 0x%04x", wire[len(wire)-2:], crc)
	}
}

func TestDecodeHeader(t *testing.T) {
	hdr, err := DecodeHeader([]byte{0x01, 0xC0, 0x02, 0x01, 0x00})
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.Identity != 0x01 || !hdr.Ctrl.Multi() || !hdr.Ctrl.First() || hdr.Seq != 0x02 || hdr.Len != 0x0100 {
		t.Errorf("DecodeHeader = %+v", hdr)
	}

	if _, err := DecodeHeader([]byte{0x01, 0x02}); err == nil {
		t.Error("DecodeHeader accepted a short buffer")
	}
}
