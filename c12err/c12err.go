// Package c12err implements the single tagged error union the rest of the
// stack reports through. Retry loops in link/app/session match on Kind; unrecognised kinds
// simply propagate via the normal error interface.
package c12err

import (
	"errors"
	"fmt"
)

// Kind is the error taxonomy the stack reports through.
type Kind int

const (
	KindSoftware Kind = iota
	KindSecurity
	KindMeter
	KindC12NokResponse
	KindChannelReadTimeout
	KindChannelDisconnectedUnexpectedly
	KindOperationCancelled
	KindCrcCheckFailed
	KindReceivedPacketToggleBitFailure
	KindInboundPacketDataLengthBad
	KindModem
	KindSocket
)

func (k Kind) String() string {
	switch k {
	case KindSoftware:
		return "Software"
	case KindSecurity:
		return "Security"
	case KindMeter:
		return "Meter"
	case KindC12NokResponse:
		return "C12NokResponse"
	case KindChannelReadTimeout:
		return "ChannelReadTimeout"
	case KindChannelDisconnectedUnexpectedly:
		return "ChannelDisconnectedUnexpectedly"
	case KindOperationCancelled:
		return "OperationCancelled"
	case KindCrcCheckFailed:
		return "CrcCheckFailed"
	case KindReceivedPacketToggleBitFailure:
		return "ReceivedPacketToggleBitFailure"
	case KindInboundPacketDataLengthBad:
		return "InboundPacketDataLengthBad"
	case KindModem:
		return "Modem"
	case KindSocket:
		return "Socket"
	default:
		return "Unknown"
	}
}

// Error is the tagged error value propagated across layer boundaries.
// Code/Extra are only meaningful for KindC12NokResponse, where they carry
// the device's STATUS byte and the remainder of the response buffer.
type Error struct {
	Kind  Kind
	Code  byte
	Extra []byte
	Err   error
}

func (e *Error) Error() string {
	if e.Kind == KindC12NokResponse {
		return fmt.Sprintf("c12: %s (status=0x%02x)", e.Kind, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("c12: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("c12: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a plain Error of the given kind wrapping err.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf builds a plain Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// NokResponse builds the C12NokResponse error for a non-zero STATUS byte.
func NokResponse(code byte, extra []byte) *Error {
	return &Error{Kind: KindC12NokResponse, Code: code, Extra: extra}
}

// Is reports whether err carries kind, unwrapping through the standard
// errors chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// AsNokResponse extracts the STATUS code and extra payload from err if it
// is a KindC12NokResponse Error.
func AsNokResponse(err error) (code byte, extra []byte, ok bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindC12NokResponse {
		return e.Code, e.Extra, true
	}
	return 0, nil, false
}
