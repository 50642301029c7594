// Package primitives collects the small cross-cutting building blocks the
// rest of the stack is built from: atomic flags, scoped-restore guards, a
// millisecond clock, big-endian byte cursors and a zero-on-drop secure byte
// string.
package primitives

import "sync/atomic"

// AtomicFlag is a single-word interlocked boolean used for the cancel,
// dialing and receiving flags. Writers store-release; readers load-acquire
// between OS syscalls.
type AtomicFlag struct {
	v atomic.Bool
}

// Set stores true.
func (f *AtomicFlag) Set() { f.v.Store(true) }

// Clear stores false.
func (f *AtomicFlag) Clear() { f.v.Store(false) }

// IsSet loads the current value.
func (f *AtomicFlag) IsSet() bool { return f.v.Load() }

// TestAndSet atomically sets the flag and returns the previous value.
func (f *AtomicFlag) TestAndSet() bool { return f.v.Swap(true) }
