// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "github.com/saferwall/wevtparse/internal/cursor"

// Channel is a named log destination a provider writes events to
// (§3 Channel), e.g. "Application".
type Channel struct {
	Identifier uint32
	Flags      uint32
	MessageID  uint32
	Name       string
}

// channelRecordSize: identifier(u32), flags(u32),
// message_identifier(u32), data_offset(u32).
const channelRecordSize = 16

func decodeChannel(blob []byte, offset uint32) (*Channel, error) {
	c := cursor.New(blob)
	if err := c.Seek(offset); err != nil {
		return nil, offsetErr(ErrOutOfBounds, "channel", offset)
	}
	if !c.InBounds(offset, channelRecordSize) {
		return nil, offsetErr(ErrOutOfBounds, "channel", offset)
	}
	identifier, _ := c.ReadU32()
	flags, _ := c.ReadU32()
	messageID, _ := c.ReadU32()
	dataOffset, _ := c.ReadU32()

	name, err := readOptionalName(blob, dataOffset)
	if err != nil {
		return nil, err
	}
	return &Channel{Identifier: identifier, Flags: flags, MessageID: messageID, Name: name}, nil
}
