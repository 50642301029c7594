package app

import "testing"

func TestBaudIndexRoundTrip(t *testing.T) {
	// indexToBaud(baudToIndex(b)) == b for every b in the table.
	for idx := byte(0x01); idx <= 0x0E; idx++ {
		baud, ok := IndexToBaud(idx)
		if !ok {
			t.Fatalf("IndexToBaud(0x%02x) not ok", idx)
		}
		back, ok := BaudToIndex(baud)
		if !ok || back != idx {
			t.Errorf("BaudToIndex(%d) = (0x%02x, %v), want (0x%02x, true)", baud, back, ok, idx)
		}
	}
}

func TestBaudIndexBounds(t *testing.T) {
	if _, ok := IndexToBaud(0x00); ok {
		t.Error("IndexToBaud(0x00) accepted")
	}
	if _, ok := IndexToBaud(0x0F); ok {
		t.Error("IndexToBaud(0x0F) accepted")
	}
	if _, ok := BaudToIndex(110); ok {
		t.Error("BaudToIndex(110) accepted a baud outside the table")
	}
}

func TestBaudTableValues(t *testing.T) {
	tests := []struct {
		idx  byte
		baud int
	}{
		{0x01, 300}, {0x06, 9600}, {0x0A, 57600}, {0x0B, 38400}, {0x0E, 256000},
	}
	for _, tt := range tests {
		if got, _ := IndexToBaud(tt.idx); got != tt.baud {
			t.Errorf("IndexToBaud(0x%02x) = %d, want %d", tt.idx, got, tt.baud)
		}
	}
}

func TestStatusRetryable(t *testing.T) {
	for s := Status(0); s < 16; s++ {
		want := s == StatusBSY || s == StatusDNR
		if got := s.Retryable(); got != want {
			t.Errorf("Status(%d).Retryable() = %v, want %v", s, got, want)
		}
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusOK, "OK"}, {StatusBSY, "BSY"}, {StatusDNR, "DNR"},
		{StatusERR, "ERR"}, {StatusSNS, "SNS"}, {StatusISC, "ISC"},
		{StatusONP, "ONP"}, {StatusIAR, "IAR"}, {StatusRNO, "RNO"},
		{Status(200), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
