package primitives

import "crypto/subtle"

// SecureBytes wraps a password or authentication key. It is move-only by
// convention (callers should not copy the struct by value after
// construction) and its memory is explicitly zeroed by Destroy, so key
// material does not linger on the heap after use.
type SecureBytes struct {
	data []byte
}

// NewSecureBytes copies v into a freshly owned buffer.
func NewSecureBytes(v []byte) *SecureBytes {
	cp := make([]byte, len(v))
	copy(cp, v)
	return &SecureBytes{data: cp}
}

// Bytes returns the current contents. The returned slice aliases the
// internal buffer; callers must not retain it past Destroy.
func (s *SecureBytes) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.data
}

// Len reports the length in bytes, 0 for a nil receiver.
func (s *SecureBytes) Len() int {
	if s == nil {
		return 0
	}
	return len(s.data)
}

// Equal does a constant-time comparison against other, to avoid timing
// side-channels when checking ticket/password equality.
func (s *SecureBytes) Equal(other []byte) bool {
	if s == nil {
		return len(other) == 0
	}
	return subtle.ConstantTimeCompare(s.data, other) == 1
}

// Destroy zeroes the underlying memory. Safe to call multiple times and on
// a nil receiver.
func (s *SecureBytes) Destroy() {
	if s == nil {
		return
	}
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = s.data[:0]
}
