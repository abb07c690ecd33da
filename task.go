// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "github.com/saferwall/wevtparse/internal/cursor"

// Task is a named sub-component of a provider's functionality that an
// event can be attributed to (§3 Task).
type Task struct {
	Identifier uint16
	MessageID  uint32
	Name       string
}

// taskRecordSize keeps the same 4-byte-aligned shape as Level/Opcode:
// identifier(u16) padded to a u32 slot, message_identifier(u32),
// data_offset(u32).
const taskRecordSize = 12

func decodeTask(blob []byte, offset uint32) (*Task, error) {
	c := cursor.New(blob)
	if err := c.Seek(offset); err != nil {
		return nil, offsetErr(ErrOutOfBounds, "task", offset)
	}
	if !c.InBounds(offset, taskRecordSize) {
		return nil, offsetErr(ErrOutOfBounds, "task", offset)
	}
	identifier, _ := c.ReadU16()
	if _, err := c.ReadU16(); err != nil { // alignment padding
		return nil, offsetErr(ErrOutOfBounds, "task", offset)
	}
	messageID, _ := c.ReadU32()
	dataOffset, _ := c.ReadU32()

	name, err := readOptionalName(blob, dataOffset)
	if err != nil {
		return nil, err
	}
	return &Task{Identifier: identifier, MessageID: messageID, Name: name}, nil
}
