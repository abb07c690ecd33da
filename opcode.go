// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "github.com/saferwall/wevtparse/internal/cursor"

// Opcode is a named sub-event-kind a provider's events can report
// against (§3 Opcode), e.g. "win:Info".
type Opcode struct {
	Identifier uint32
	MessageID  uint32
	Name       string
}

// opcodeRecordSize mirrors levelRecordSize; confirmed by §8 scenario
// S3's 36-byte fixture.
const opcodeRecordSize = 12

func decodeOpcode(blob []byte, offset uint32) (*Opcode, error) {
	c := cursor.New(blob)
	if err := c.Seek(offset); err != nil {
		return nil, offsetErr(ErrOutOfBounds, "opcode", offset)
	}
	if !c.InBounds(offset, opcodeRecordSize) {
		return nil, offsetErr(ErrOutOfBounds, "opcode", offset)
	}
	identifier, _ := c.ReadU32()
	messageID, _ := c.ReadU32()
	dataOffset, _ := c.ReadU32()

	name, err := readOptionalName(blob, dataOffset)
	if err != nil {
		return nil, err
	}
	return &Opcode{Identifier: identifier, MessageID: messageID, Name: name}, nil
}
