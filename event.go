// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "github.com/saferwall/wevtparse/internal/cursor"

// NoTemplate is the sentinel TemplateOffset value meaning an event
// carries no template (§3 Event).
const NoTemplate uint32 = 0xFFFFFFFF

// Event is one instrumentable occurrence a provider can emit (§3
// Event). TemplateOffset, when neither zero nor NoTemplate, is
// resolved against the owning provider's template table by the
// provider decoder; Template is nil until that resolution succeeds.
type Event struct {
	Identifier     uint32
	Version        uint8
	Channel        uint8
	Level          uint8
	Opcode         uint8
	Task           uint16
	Keyword        uint64
	MessageID      uint32
	TemplateOffset uint32
	Flags          uint16
	Template       *Template
}

// eventRecordSize: identifier(u32), version(u8), channel(u8),
// level(u8), opcode(u8), task(u16)+pad(u16), keyword(u64),
// message_identifier(u32), template_offset(u32), flags(u16)+pad(u16).
const eventRecordSize = 32

func decodeEvent(blob []byte, offset uint32) (*Event, error) {
	c := cursor.New(blob)
	if err := c.Seek(offset); err != nil {
		return nil, offsetErr(ErrOutOfBounds, "event", offset)
	}
	if !c.InBounds(offset, eventRecordSize) {
		return nil, offsetErr(ErrOutOfBounds, "event", offset)
	}
	identifier, _ := c.ReadU32()
	version, _ := c.ReadU8()
	channel, _ := c.ReadU8()
	level, _ := c.ReadU8()
	opcode, _ := c.ReadU8()
	task, _ := c.ReadU16()
	if _, err := c.ReadU16(); err != nil { // alignment padding
		return nil, offsetErr(ErrOutOfBounds, "event", offset)
	}
	keyword, _ := c.ReadU64()
	messageID, _ := c.ReadU32()
	templateOffset, _ := c.ReadU32()
	flags, _ := c.ReadU16()

	return &Event{
		Identifier:     identifier,
		Version:        version,
		Channel:        channel,
		Level:          level,
		Opcode:         opcode,
		Task:           task,
		Keyword:        keyword,
		MessageID:      messageID,
		TemplateOffset: templateOffset,
		Flags:          flags,
	}, nil
}
