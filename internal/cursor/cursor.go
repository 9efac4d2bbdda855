// Package cursor implements a bounds-checked, random-access reader over an
// in-memory byte slice, including the 7-zip variable-length integer
// encoding used throughout the header grammar.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned whenever a read would run past the end of
	// the underlying byte slice.
	ErrTruncated = errors.New("cursor: truncated input")

	// ErrOverflow is returned by ReadNumberBounded when the decoded value
	// exceeds the caller supplied bound.
	ErrOverflow = errors.New("cursor: integer overflow")
)

// A Cursor is a read-only, bounds-checked view over a byte slice with a
// current position. The zero value is not usable; use New.
type Cursor struct {
	buf []byte
	pos int
}

// New returns a Cursor positioned at the start of buf.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Reset swaps the underlying region for buf and resets the position to
// zero, so one Cursor can be reused over a new buffer.
func (c *Cursor) Reset(buf []byte) {
	c.buf = buf
	c.pos = 0
}

// Pos returns the current read position.
func (c *Cursor) Pos() int {
	return c.pos
}

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	return len(c.buf) - c.pos
}

func (c *Cursor) need(n int) error {
	if c.Len() < n {
		return fmt.Errorf("cursor: need %d bytes at offset %d, have %d: %w", n, c.pos, c.Len(), ErrTruncated)
	}

	return nil
}

// ReadUint8 reads a single byte.
func (c *Cursor) ReadUint8() (byte, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}

	b := c.buf[c.pos]
	c.pos++

	return b, nil
}

// ReadBytes copies the next n bytes into a new slice.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}

	b := make([]byte, n)
	copy(b, c.buf[c.pos:c.pos+n])
	c.pos += n

	return b, nil
}

// ReadUint16LE reads a fixed-width little-endian uint16.
func (c *Cursor) ReadUint16LE() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2

	return v, nil
}

// ReadUint32LE reads a fixed-width little-endian uint32.
func (c *Cursor) ReadUint32LE() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4

	return v, nil
}

// ReadUint64LE reads a fixed-width little-endian uint64.
func (c *Cursor) ReadUint64LE() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}

	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8

	return v, nil
}

// Skip advances the position by n bytes without returning them.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}

	c.pos += n

	return nil
}

// SkipVector reads a 7-zip number as a length prefix and skips that many
// bytes, returning the number skipped.
func (c *Cursor) SkipVector() (uint64, error) {
	n, err := c.ReadNumber()
	if err != nil {
		return 0, err
	}

	if err := c.Skip(int(n)); err != nil { //nolint:gosec
		return 0, err
	}

	return n, nil
}

// ReadNumber decodes the 7-zip variable-length integer format: the number of
// leading one-bits in the first byte gives the count k of additional
// little-endian bytes that follow; the remaining low bits of the first byte
// become the high bits of the result, shifted left by 8*k.
func (c *Cursor) ReadNumber() (uint64, error) {
	first, err := c.ReadUint8()
	if err != nil {
		return 0, err
	}

	var value uint64

	mask := byte(0x80)

	for i := 0; i < 8; i++ {
		if first&mask == 0 {
			high := uint64(first) & (uint64(mask) - 1)

			return value | (high << (uint(i) * 8)), nil //nolint:gosec
		}

		b, err := c.ReadUint8()
		if err != nil {
			return 0, err
		}

		value |= uint64(b) << (uint(i) * 8) //nolint:gosec
		mask >>= 1
	}

	return value, nil
}

// ReadNumberBounded reads a 7-zip number and errors if it exceeds max.
func (c *Cursor) ReadNumberBounded(max uint64) (uint64, error) {
	v, err := c.ReadNumber()
	if err != nil {
		return 0, err
	}

	if v > max {
		return 0, fmt.Errorf("cursor: value %d exceeds bound %d: %w", v, max, ErrOverflow)
	}

	return v, nil
}

// ReadNumberInt is ReadNumberBounded against math.MaxInt32, returned as an
// int, matching the grammar's use of numbers as counts and indices.
func (c *Cursor) ReadNumberInt() (int, error) {
	v, err := c.ReadNumberBounded(0x7fffffff)
	if err != nil {
		return 0, err
	}

	return int(v), nil //nolint:gosec
}
