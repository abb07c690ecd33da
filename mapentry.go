// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "github.com/saferwall/wevtparse/internal/cursor"

// MapValue is one (value, message identifier) pair of a Map (§3 Map).
type MapValue struct {
	Value     uint32
	MessageID uint32
}

// MapElement is a named lookup table from numeric values to message
// identifiers (§3 Map), e.g. mapping a status code to its localized
// description's message ID.
type MapElement struct {
	MessageID uint32
	Flags     uint32
	Values    []MapValue
	Name      string
}

// mapHeaderSize: message_identifier(u32), flags(u32), count(u32),
// values_offset(u32), name_data_offset(u32); the variable-length
// values array and the optional name each live at their own pointed-
// to offset, the same "fixed scalars then pointers" shape the other
// element decoders use.
const mapHeaderSize = 20

func decodeMapElement(blob []byte, offset uint32) (*MapElement, error) {
	c := cursor.New(blob)
	if err := c.Seek(offset); err != nil {
		return nil, offsetErr(ErrOutOfBounds, "map", offset)
	}
	if !c.InBounds(offset, mapHeaderSize) {
		return nil, offsetErr(ErrOutOfBounds, "map", offset)
	}
	messageID, _ := c.ReadU32()
	flags, _ := c.ReadU32()
	count, _ := c.ReadU32()
	valuesOffset, _ := c.ReadU32()
	nameDataOffset, _ := c.ReadU32()

	// Bound count by the blob before allocating, in 64 bits so count*8
	// cannot wrap.
	if uint64(count)*8 > uint64(len(blob)) {
		return nil, offsetErr(ErrOutOfBounds, "map values", valuesOffset)
	}
	values := make([]MapValue, 0, count)
	if count > 0 {
		vc := cursor.New(blob)
		if err := vc.Seek(valuesOffset); err != nil {
			return nil, offsetErr(ErrOutOfBounds, "map values", valuesOffset)
		}
		if !vc.InBounds(valuesOffset, count*8) {
			return nil, offsetErr(ErrOutOfBounds, "map values", valuesOffset)
		}
		for i := uint32(0); i < count; i++ {
			value, _ := vc.ReadU32()
			msgID, _ := vc.ReadU32()
			values = append(values, MapValue{Value: value, MessageID: msgID})
		}
	}

	name, err := readOptionalName(blob, nameDataOffset)
	if err != nil {
		return nil, err
	}
	return &MapElement{MessageID: messageID, Flags: flags, Values: values, Name: name}, nil
}
