// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import (
	"github.com/saferwall/wevtparse/internal/cursor"
	"github.com/saferwall/wevtparse/value"
)

// readOptionalName reads the UTF-16LE name block at the absolute
// offset nameOffset (§6 "UTF-16LE name block"): a u32 length counting
// the whole block including its own 4-byte prefix, followed by
// length-4 bytes of UTF-16LE text with a trailing NUL code unit
// trimmed when present. nameOffset == 0 means "absent" and yields the
// empty string with no error, per §3's "every ... offset either
// points to a valid sub-record or is zero (absent)".
func readOptionalName(blob []byte, nameOffset uint32) (string, error) {
	if nameOffset == 0 {
		return "", nil
	}
	c := cursor.New(blob)
	if err := c.Seek(nameOffset); err != nil {
		return "", offsetErr(ErrOutOfBounds, "name block", nameOffset)
	}
	length, err := c.ReadU32()
	if err != nil {
		return "", offsetErr(ErrOutOfBounds, "name block", nameOffset)
	}
	if length < 4 {
		return "", offsetErr(ErrMalformed, "name block", nameOffset)
	}
	raw, err := c.ReadBytes(length - 4)
	if err != nil {
		return "", offsetErr(ErrOutOfBounds, "name block", nameOffset)
	}
	name, err := value.DecodeUTF16LE(raw)
	if err != nil {
		return "", offsetErr(ErrMalformed, "name block", nameOffset)
	}
	return name, nil
}
