// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "github.com/saferwall/wevtparse/internal/cursor"

// Level is a named severity level a provider's events can report
// against (§3 Level), e.g. "win:Informational".
type Level struct {
	Identifier uint32
	MessageID  uint32
	Name       string
}

// levelRecordSize is the fixed-layout descriptor's width, confirmed
// by §8 scenario S2's 52-byte fixture: identifier(u32),
// message_identifier(u32), data_offset(u32).
const levelRecordSize = 12

func decodeLevel(blob []byte, offset uint32) (*Level, error) {
	c := cursor.New(blob)
	if err := c.Seek(offset); err != nil {
		return nil, offsetErr(ErrOutOfBounds, "level", offset)
	}
	if !c.InBounds(offset, levelRecordSize) {
		return nil, offsetErr(ErrOutOfBounds, "level", offset)
	}
	identifier, _ := c.ReadU32()
	messageID, _ := c.ReadU32()
	dataOffset, _ := c.ReadU32()

	name, err := readOptionalName(blob, dataOffset)
	if err != nil {
		return nil, err
	}
	return &Level{Identifier: identifier, MessageID: messageID, Name: name}, nil
}
