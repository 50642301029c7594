package primitives

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by Cursor reads that run past the end of the
// underlying slice.
var ErrShortBuffer = errors.New("primitives: short buffer")

// Builder accumulates a byte payload with big-endian append helpers. All
// multi-byte integers in C12.18/21 application bodies are big-endian unless
// stated otherwise; little-endian fields (CRC-16, meter-internal
// integers when MeterIsLittleEndian) are appended with the explicit *LE
// helpers.
type Builder struct {
	buf []byte
}

// NewBuilder returns a Builder with cap pre-reserved.
func NewBuilder(cap int) *Builder {
	return &Builder{buf: make([]byte, 0, cap)}
}

// Bytes returns the accumulated payload.
func (b *Builder) Bytes() []byte { return b.buf }

// Len reports the number of bytes accumulated so far.
func (b *Builder) Len() int { return len(b.buf) }

// AppendByte appends a single byte.
func (b *Builder) AppendByte(v byte) *Builder {
	b.buf = append(b.buf, v)
	return b
}

// AppendBytes appends a raw slice.
func (b *Builder) AppendBytes(v ...byte) *Builder {
	b.buf = append(b.buf, v...)
	return b
}

// AppendUint16BE appends v as two big-endian bytes.
func (b *Builder) AppendUint16BE(v uint16) *Builder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// AppendUint24BE appends the low 24 bits of v as three big-endian bytes,
// the width the application layer uses for partial-read/write offsets.
func (b *Builder) AppendUint24BE(v uint32) *Builder {
	b.buf = append(b.buf, byte(v>>16), byte(v>>8), byte(v))
	return b
}

// AppendUint16LE appends v as two little-endian bytes (CRC-16 placement).
func (b *Builder) AppendUint16LE(v uint16) *Builder {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return b
}

// Cursor reads sequentially from a byte slice, consuming bytes as it goes,
// with explicit error returns instead of silent truncation.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for sequential reads starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Remaining returns the unread tail of the buffer.
func (c *Cursor) Remaining() []byte { return c.buf[c.pos:] }

// Len reports the number of unread bytes.
func (c *Cursor) Len() int { return len(c.buf) - c.pos }

// ReadByte reads a single byte.
func (c *Cursor) ReadByte() (byte, error) {
	if c.Len() < 1 {
		return 0, ErrShortBuffer
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

// ReadBytes reads n raw bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if c.Len() < n {
		return nil, ErrShortBuffer
	}
	v := c.buf[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// ReadUint16BE reads a big-endian uint16.
func (c *Cursor) ReadUint16BE() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint24BE reads a big-endian 24-bit unsigned integer.
func (c *Cursor) ReadUint24BE() (uint32, error) {
	b, err := c.ReadBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

// ReadUint16LE reads a little-endian uint16 (CRC-16 placement).
func (c *Cursor) ReadUint16LE() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}
