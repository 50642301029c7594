package app

import (
	"github.com/c12stack/c12/primitives"
)

// Dialect selects between ANSI C12.18 and ANSI C12.21 body encodings for
// the services whose wire shape differs between the two standards. The
// link-layer framing difference (DataFormat-aware packet control) lives in
// link.Dialect; this is the application-layer counterpart.
type Dialect int

const (
	DialectC1218 Dialect = iota
	DialectC1221
)

// Logon/Security command codes, shared by both dialects; only the body
// shape varies.
const (
	CmdLogon    byte = 0x50
	CmdSecurity byte = 0x51
)

// MaximumPasswordLength is the default password length ceiling; dialects may override it.
const MaximumPasswordLength = 20

// EncodeLogon builds the Logon request body. C12.18 carries a 2-byte
// sequence number followed by a 10-byte space-padded user name; C12.21
// additionally prepends the 1-byte device Identity ahead of those fields,
// since C12.21 sessions are multi-drop.
func EncodeLogon(d Dialect, identity byte, sequenceNumber uint16, userName string) []byte {
	b := primitives.NewBuilder(16)
	if d == DialectC1221 {
		b.AppendByte(identity)
	}
	b.AppendUint16BE(sequenceNumber)
	b.AppendBytes(padRight(userName, 10)...)
	return b.Bytes()
}

// EncodeSecurity builds the Security request body: the password, padded
// with spaces (the ANSI C12 convention) up to maxLen, truncated if longer.
func EncodeSecurity(password []byte, maxLen int) []byte {
	if maxLen <= 0 {
		maxLen = MaximumPasswordLength
	}
	out := make([]byte, maxLen)
	for i := range out {
		out[i] = ' '
	}
	n := len(password)
	if n > maxLen {
		n = maxLen
	}
	copy(out, password[:n])
	return out
}

func padRight(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	if len(s) > n {
		copy(out, s[:n])
	}
	return out
}
