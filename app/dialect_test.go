package app

import (
	"bytes"
	"testing"
)

func TestEncodeLogon(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		identity byte
		seq      uint16
		user     string
		want     []byte
	}{
		{
			name:    "c1218 pads user to ten bytes",
			dialect: DialectC1218,
			seq:     0x0102,
			user:    "op",
			want:    append([]byte{0x01, 0x02}, []byte("op        ")...),
		},
		{
			name:     "c1221 prepends identity",
			dialect:  DialectC1221,
			identity: 0x07,
			seq:      0x0001,
			user:     "operator",
			want:     append([]byte{0x07, 0x00, 0x01}, []byte("operator  ")...),
		},
		{
			name:    "long user truncated",
			dialect: DialectC1218,
			user:    "a-very-long-user-name",
			want:    append([]byte{0x00, 0x00}, []byte("a-very-lon")...),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeLogon(tt.dialect, tt.identity, tt.seq, tt.user)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeLogon = % x, want % x", got, tt.want)
			}
		})
	}
}

func TestEncodeSecurity(t *testing.T) {
	tests := []struct {
		name     string
		password []byte
		maxLen   int
		want     []byte
	}{
		{name: "padded with spaces", password: []byte("1234"), maxLen: 8, want: []byte("1234    ")},
		{name: "exact length", password: []byte("12345678"), maxLen: 8, want: []byte("12345678")},
		{name: "truncated", password: []byte("123456789"), maxLen: 8, want: []byte("12345678")},
		{name: "zero maxLen uses default", password: nil, maxLen: 0, want: bytes.Repeat([]byte{' '}, MaximumPasswordLength)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeSecurity(tt.password, tt.maxLen)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeSecurity = %q, want %q", got, tt.want)
			}
		})
	}
}
