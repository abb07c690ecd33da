// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "github.com/saferwall/wevtparse/internal/cursor"

// Keyword is a named bitmask categorizing the kinds of events a
// provider can emit (§3 Keyword).
type Keyword struct {
	Identifier uint64
	MessageID  uint32
	Name       string
}

// keywordRecordSize: identifier(u64), message_identifier(u32),
// data_offset(u32).
const keywordRecordSize = 16

func decodeKeyword(blob []byte, offset uint32) (*Keyword, error) {
	c := cursor.New(blob)
	if err := c.Seek(offset); err != nil {
		return nil, offsetErr(ErrOutOfBounds, "keyword", offset)
	}
	if !c.InBounds(offset, keywordRecordSize) {
		return nil, offsetErr(ErrOutOfBounds, "keyword", offset)
	}
	identifier, _ := c.ReadU64()
	messageID, _ := c.ReadU32()
	dataOffset, _ := c.ReadU32()

	name, err := readOptionalName(blob, dataOffset)
	if err != nil {
		return nil, err
	}
	return &Keyword{Identifier: identifier, MessageID: messageID, Name: name}, nil
}
