// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import (
	"encoding/binary"
	"testing"
)

// buildProviderFixture assembles a blob containing one provider with
// a single level table (one entry) and a single event table (one
// event whose template_offset is deliberately dangling), returning
// the provider's descriptor offset.
func buildProviderFixture(t *testing.T) ([]byte, uint32) {
	t.Helper()
	var b fixtureBuilder

	// Reserve the provider descriptor up front; its data_offset is
	// patched once the element-table index's position is known.
	providerAt := b.offset()
	b.raw(make([]byte, 16)) // identifier
	dataOffPos := b.offset()
	b.u32(0) // data_offset, patched below

	dataOffset := b.offset()
	b.u32(2) // num_entries: level table + event table

	levelEntryPos := b.offset()
	b.u32(tableLevel)
	b.u32(1) // count
	b.u32(0) // items_offset, patched below

	eventEntryPos := b.offset()
	b.u32(tableEvent)
	b.u32(1) // count
	b.u32(0) // items_offset, patched below

	levelTableAt := b.offset()
	b.raw([]byte("LEVL"))
	levelRecAt := b.offset()
	b.u32(5) // identifier
	b.u32(0) // message_id
	b.u32(0) // data_offset (no name)

	eventTableAt := b.offset()
	b.raw([]byte("EVNT"))
	b.u32(1)          // identifier
	b.u8(0)           // version
	b.u8(0)           // channel
	b.u8(5)           // level
	b.u8(0)           // opcode
	b.u16(0)          // task
	b.u16(0)          // alignment padding
	b.u64(0)          // keyword
	b.u32(0)          // message_id
	b.u32(0xDEADBEEF) // template_offset: dangling on purpose
	b.u16(0)          // flags
	b.u16(0)          // alignment padding

	blob := b.buf.Bytes()
	binary.LittleEndian.PutUint32(blob[dataOffPos:], dataOffset)
	binary.LittleEndian.PutUint32(blob[levelEntryPos+8:], levelTableAt)
	binary.LittleEndian.PutUint32(blob[eventEntryPos+8:], eventTableAt)
	_ = levelRecAt

	return blob, providerAt
}

func TestDecodeProviderLoadsLevelsAndEvents(t *testing.T) {
	blob, providerAt := buildProviderFixture(t)

	p, diags, err := decodeProvider(blob, providerAt, defaultMaxElementTableEntries)
	if err != nil {
		t.Fatalf("decodeProvider: %v", err)
	}
	if len(p.Levels) != 1 || p.Levels[0].Identifier != 5 {
		t.Fatalf("Levels = %+v, want one entry with Identifier 5", p.Levels)
	}
	if len(p.Events) != 1 || p.Events[0].TemplateOffset != 0xDEADBEEF {
		t.Fatalf("Events = %+v, want one dangling-template event", p.Events)
	}
	if p.Events[0].Template != nil {
		t.Fatalf("Template = %+v, want nil (no matching template in this fixture)", p.Events[0].Template)
	}

	foundDangling := false
	for _, d := range diags {
		if d.Kind == DanglingReference {
			foundDangling = true
		}
	}
	if !foundDangling {
		t.Fatalf("diagnostics = %+v, want a DanglingReference entry", diags)
	}
}

func TestDecodeProviderSkipsUnrecognizedTableTypeCode(t *testing.T) {
	var b fixtureBuilder
	providerAt := b.offset()
	b.raw(make([]byte, 16))
	dataOffPos := b.offset()
	b.u32(0)

	dataOffset := b.offset()
	b.u32(1) // num_entries
	entryPos := b.offset()
	b.u32(0x7F) // type_code: unrecognized
	b.u32(1)    // count
	itemsOffsetPos := entryPos + 8
	b.u32(0) // items_offset, patched below
	itemsOffset := b.offset()
	b.u32(0) // arbitrary content at the unrecognized table's items_offset

	blob := b.buf.Bytes()
	binary.LittleEndian.PutUint32(blob[dataOffPos:], dataOffset)
	binary.LittleEndian.PutUint32(blob[itemsOffsetPos:], itemsOffset)

	p, diags, err := decodeProvider(blob, providerAt, defaultMaxElementTableEntries)
	if err != nil {
		t.Fatalf("decodeProvider: %v", err)
	}
	if len(p.Levels) != 0 || len(p.Events) != 0 {
		t.Fatalf("expected no elements loaded, got %+v", p)
	}
	found := false
	for _, d := range diags {
		if d.Kind == UnrecognizedElementTable {
			found = true
		}
	}
	if !found {
		t.Fatalf("diagnostics = %+v, want an UnrecognizedElementTable entry", diags)
	}
}
