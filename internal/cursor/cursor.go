// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package cursor implements bounds-checked little-endian reads over a
// borrowed byte slice, the single place every decoder in wevtparse
// routes its offset arithmetic through. It plays the role
// saferwall/pe's helper.go ReadUint*/structUnpack functions play for
// the PE parser, generalized to work over any borrowed slice (a whole
// manifest blob, or a template's private copy of its own bytes) rather
// than only a memory-mapped file.
package cursor

import "errors"

// ErrOutOfBounds is returned whenever a read or seek would index
// outside the cursor's underlying slice.
var ErrOutOfBounds = errors.New("cursor: read outside boundary")

// Cursor is a bounds-checked reader over a borrowed byte slice. The
// zero value is not usable; construct with New.
type Cursor struct {
	data []byte
	pos  uint32
}

// New wraps data for bounds-checked reading. data is borrowed, not
// copied: the Cursor must not outlive it.
func New(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Len returns the length of the underlying slice.
func (c *Cursor) Len() uint32 { return uint32(len(c.data)) }

// Pos returns the cursor's current absolute position.
func (c *Cursor) Pos() uint32 { return c.pos }

// Bytes returns the full underlying slice. Callers must not retain a
// mutable reference beyond the Cursor's lifetime expectations.
func (c *Cursor) Bytes() []byte { return c.data }

// inBounds reports whether [offset, offset+size) lies within data,
// guarding against the offset+size overflow a malicious/corrupt
// length field could otherwise trigger.
func (c *Cursor) inBounds(offset, size uint32) bool {
	end := offset + size
	if end < offset { // overflow
		return false
	}
	return end <= uint32(len(c.data))
}

// Seek moves the cursor to an absolute offset. It fails if offset is
// beyond the end of the slice (seeking exactly to len(data) is valid
// and represents "at EOF").
func (c *Cursor) Seek(offset uint32) error {
	if offset > uint32(len(c.data)) {
		return ErrOutOfBounds
	}
	c.pos = offset
	return nil
}

// Sub returns the length-n subslice starting at offset without
// advancing the cursor. It fails if offset+n exceeds the slice length.
func (c *Cursor) Sub(offset, n uint32) ([]byte, error) {
	if !c.inBounds(offset, n) {
		return nil, ErrOutOfBounds
	}
	return c.data[offset : offset+n], nil
}

// SubAt is Sub at the cursor's current position; it does not advance
// the cursor.
func (c *Cursor) SubAt(n uint32) ([]byte, error) {
	return c.Sub(c.pos, n)
}

// PeekU8 reads a byte at an absolute offset without advancing the cursor.
func (c *Cursor) PeekU8(offset uint32) (uint8, error) {
	if !c.inBounds(offset, 1) {
		return 0, ErrOutOfBounds
	}
	return c.data[offset], nil
}

// PeekU16 reads a little-endian uint16 at an absolute offset without
// advancing the cursor.
func (c *Cursor) PeekU16(offset uint32) (uint16, error) {
	if !c.inBounds(offset, 2) {
		return 0, ErrOutOfBounds
	}
	b := c.data[offset : offset+2]
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// PeekU32 reads a little-endian uint32 at an absolute offset without
// advancing the cursor.
func (c *Cursor) PeekU32(offset uint32) (uint32, error) {
	if !c.inBounds(offset, 4) {
		return 0, ErrOutOfBounds
	}
	b := c.data[offset : offset+4]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// PeekU64 reads a little-endian uint64 at an absolute offset without
// advancing the cursor.
func (c *Cursor) PeekU64(offset uint32) (uint64, error) {
	if !c.inBounds(offset, 8) {
		return 0, ErrOutOfBounds
	}
	b := c.data[offset : offset+8]
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// ReadU8 reads a byte at the cursor's current position and advances it.
func (c *Cursor) ReadU8() (uint8, error) {
	v, err := c.PeekU8(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos++
	return v, nil
}

// ReadU16 reads a little-endian uint16 at the cursor's current
// position and advances it.
func (c *Cursor) ReadU16() (uint16, error) {
	v, err := c.PeekU16(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 2
	return v, nil
}

// ReadU32 reads a little-endian uint32 at the cursor's current
// position and advances it.
func (c *Cursor) ReadU32() (uint32, error) {
	v, err := c.PeekU32(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 4
	return v, nil
}

// ReadU64 reads a little-endian uint64 at the cursor's current
// position and advances it.
func (c *Cursor) ReadU64() (uint64, error) {
	v, err := c.PeekU64(c.pos)
	if err != nil {
		return 0, err
	}
	c.pos += 8
	return v, nil
}

// ReadBytes reads n bytes at the cursor's current position and
// advances it.
func (c *Cursor) ReadBytes(n uint32) ([]byte, error) {
	b, err := c.SubAt(n)
	if err != nil {
		return nil, err
	}
	c.pos += n
	return b, nil
}

// ReadGUID reads a 16-byte GUID (stored little/big mixed-endian on
// disk, but here just copied verbatim as the raw 16 bytes; formatting
// is the value package's job) at the cursor's current position.
func (c *Cursor) ReadGUID() ([16]byte, error) {
	var g [16]byte
	b, err := c.ReadBytes(16)
	if err != nil {
		return g, err
	}
	copy(g[:], b)
	return g, nil
}

// InBounds reports whether [offset, offset+size) lies within the
// underlying slice, exposed for callers validating a record's extent
// before reading it field by field.
func (c *Cursor) InBounds(offset, size uint32) bool {
	return c.inBounds(offset, size)
}
