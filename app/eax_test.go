package app

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// Vectors from the EAX paper (Bellare, Rogaway, Wagner, "The EAX Mode of
// Operation", Appendix).
func TestEAXPaperVectors(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		nonce  string
		header string
		msg    string
		cipher string
	}{
		{
			name:   "empty message",
			key:    "233952DEE4D5ED5F9B9C6D6FF80FF478",
			nonce:  "62EC67F9C3A4A407FCB2A8C49031A8B3",
			header: "6BFB914FD07EAE6B",
			msg:    "",
			cipher: "E037830E8389F27B025A2D6527E79D01",
		},
		{
			name:   "two byte message",
			key:    "91945D3F4DCBEE0BF45EF52255F095A4",
			nonce:  "BECAF043B0A23D843194BA972C66DEBD",
			header: "FA3BFD4806EB53FA",
			msg:    "F7FB",
			cipher: "19DD5C4C9331049D0BDAB0277408F67967E5",
		},
		{
			name:   "five byte message",
			key:    "01F74AD64077F2E704C0F60ADA3DD523",
			nonce:  "70C3DB4F0D26368400A10ED05D2BFF5E",
			header: "234A3463C1264AC6",
			msg:    "1A47CB4933",
			cipher: "D851D5BAE03A59F238A23E39199DC9266626C40F80",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := mustHex(t, tt.key)
			nonce := mustHex(t, tt.nonce)
			header := mustHex(t, tt.header)
			msg := mustHex(t, tt.msg)
			want := mustHex(t, tt.cipher)

			got, err := eaxEncrypt(key, nonce, header, msg)
			if err != nil {
				t.Fatalf("eaxEncrypt: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("eaxEncrypt = %X, want %X", got, want)
			}

			plain, err := eaxDecrypt(key, nonce, header, got)
			if err != nil {
				t.Fatalf("eaxDecrypt: %v", err)
			}
			if !bytes.Equal(plain, msg) {
				t.Errorf("eaxDecrypt = %X, want %X", plain, msg)
			}
		})
	}
}

func TestEAXRejectsTamperedCiphertext(t *testing.T) {
	key := mustHex(t, "91945D3F4DCBEE0BF45EF52255F095A4")
	nonce := mustHex(t, "BECAF043B0A23D843194BA972C66DEBD")

	ct, err := eaxEncrypt(key, nonce, nil, []byte("ticket-material!"))
	if err != nil {
		t.Fatal(err)
	}
	for i := range ct {
		tampered := append([]byte(nil), ct...)
		tampered[i] ^= 0x01
		if _, err := eaxDecrypt(key, nonce, nil, tampered); err == nil {
			t.Errorf("tamper at byte %d not rejected", i)
		}
	}
}

func TestEAXRejectsShortInput(t *testing.T) {
	key := mustHex(t, "91945D3F4DCBEE0BF45EF52255F095A4")
	if _, err := eaxDecrypt(key, nil, nil, make([]byte, 15)); err != errEAXShort {
		t.Errorf("short input: got %v, want errEAXShort", err)
	}
}
