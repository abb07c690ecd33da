// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/saferwall/wevtparse/bxml"
	"github.com/saferwall/wevtparse/value"
)

type fixtureBuilder struct {
	buf bytes.Buffer
}

func (b *fixtureBuilder) u8(v uint8)     { b.buf.WriteByte(v) }
func (b *fixtureBuilder) u16(v uint16)   { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *fixtureBuilder) u32(v uint32)   { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *fixtureBuilder) u64(v uint64)   { binary.Write(&b.buf, binary.LittleEndian, v) }
func (b *fixtureBuilder) raw(p []byte)   { b.buf.Write(p) }
func (b *fixtureBuilder) offset() uint32 { return uint32(b.buf.Len()) }

func utf16leBytes(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

// nameBlock writes a §6 UTF-16LE name block (length incl. the 4-byte
// prefix, then the text, NUL-terminated) and returns its start offset.
func (b *fixtureBuilder) nameBlock(name string) uint32 {
	off := b.offset()
	text := utf16leBytes(name)
	text = append(text, 0, 0)
	b.u32(uint32(4 + len(text)))
	b.raw(text)
	return off
}

func TestDecodeTemplateWithNoDescriptors(t *testing.T) {
	var b fixtureBuilder
	headerAt := b.offset()
	b.raw([]byte("TEMP"))
	sizePos := b.offset()
	b.u32(0) // size, patched below
	b.u32(0) // num_descriptors
	b.u32(0) // num_names
	b.u32(0) // items_offset
	b.u32(0) // reserved
	b.raw(make([]byte, 16)) // identifier

	size := b.offset() - headerAt
	blob := b.buf.Bytes()
	binary.LittleEndian.PutUint32(blob[sizePos:], size)

	tpl, err := decodeTemplate(blob, headerAt)
	if err != nil {
		t.Fatalf("decodeTemplate: %v", err)
	}
	if tpl.Size != templateHeaderSize {
		t.Fatalf("Size = %d, want %d", tpl.Size, templateHeaderSize)
	}
	if tpl.BodyStart != templateHeaderSize || tpl.BodyEnd != templateHeaderSize {
		t.Fatalf("body range = [%d,%d), want empty range at %d", tpl.BodyStart, tpl.BodyEnd, templateHeaderSize)
	}
	if len(tpl.Items) != 0 {
		t.Fatalf("Items = %v, want none", tpl.Items)
	}
}

// TestDecodeTemplateWithNoDescriptorsAndItemsOffsetAtBodyEnd covers
// libfwevt_template_read_template_items's num_descriptors == 0 case
// (_examples/original_source/libfwevt/libfwevt_template.c:682+): when
// there are no descriptors, items_offset may legitimately equal
// offset+size instead of falling inside [offset+header, offset+size).
func TestDecodeTemplateWithNoDescriptorsAndItemsOffsetAtBodyEnd(t *testing.T) {
	var b fixtureBuilder
	headerAt := b.offset()
	b.raw([]byte("TEMP"))
	sizePos := b.offset()
	b.u32(0) // size, patched below
	b.u32(0) // num_descriptors
	b.u32(0) // num_names
	itemsOffPos := b.offset()
	b.u32(0) // items_offset, patched below
	b.u32(0) // reserved
	b.raw(make([]byte, 16)) // identifier

	size := b.offset() - headerAt
	itemsOffset := headerAt + size // == offset+size
	blob := b.buf.Bytes()
	binary.LittleEndian.PutUint32(blob[sizePos:], size)
	binary.LittleEndian.PutUint32(blob[itemsOffPos:], itemsOffset)

	tpl, err := decodeTemplate(blob, headerAt)
	if err != nil {
		t.Fatalf("decodeTemplate: %v, want a num_descriptors==0 template with items_offset==offset+size to parse", err)
	}
	if len(tpl.Items) != 0 {
		t.Fatalf("Items = %v, want none", tpl.Items)
	}
}

func TestDecodeTemplateWithOneDescriptorAndBody(t *testing.T) {
	var b fixtureBuilder
	headerAt := b.offset()
	b.raw([]byte("TEMP"))
	sizePos := b.offset()
	b.u32(0) // size, patched below
	b.u32(1) // num_descriptors
	b.u32(1) // num_names
	itemsOffPos := b.offset()
	b.u32(0) // items_offset, patched below
	b.u32(0) // reserved
	b.raw(make([]byte, 16)) // identifier

	// BXML body placeholder, one byte of "content".
	b.u8(0x0f) // StartOfBXMLStream-shaped filler byte

	itemsOffset := b.offset()
	b.u32(0)           // unknown
	b.u8(1)            // input_type
	b.u8(1)            // output_type
	b.u16(0)           // unknown
	b.u32(0)           // unknown
	b.u16(1)           // value_count
	b.u16(4)           // value_size
	nameOffPos := b.offset()
	b.u32(0) // name_off, patched below

	nameOff := b.nameBlock("Data")

	blob := b.buf.Bytes()
	binary.LittleEndian.PutUint32(blob[itemsOffPos:], itemsOffset)
	binary.LittleEndian.PutUint32(blob[nameOffPos:], nameOff)
	size := b.offset() - headerAt
	binary.LittleEndian.PutUint32(blob[sizePos:], size)

	tpl, err := decodeTemplate(blob, headerAt)
	if err != nil {
		t.Fatalf("decodeTemplate: %v", err)
	}
	if len(tpl.Items) != 1 {
		t.Fatalf("Items = %v, want 1", tpl.Items)
	}
	if tpl.Items[0].Name != "Data" {
		t.Fatalf("Items[0].Name = %q, want %q", tpl.Items[0].Name, "Data")
	}
	if tpl.Items[0].InputType != 1 || tpl.Items[0].OutputType != 1 {
		t.Fatalf("unexpected type pair: %+v", tpl.Items[0])
	}
	if len(tpl.Values) != 1 || tpl.Values[0].Flags != IsDefinition {
		t.Fatalf("Values = %+v, want one IsDefinition entry", tpl.Values)
	}
	wantBodyEnd := itemsOffset - headerAt
	if tpl.BodyStart != templateHeaderSize || tpl.BodyEnd != wantBodyEnd {
		t.Fatalf("body range = [%d,%d), want [%d,%d)", tpl.BodyStart, tpl.BodyEnd, templateHeaderSize, wantBodyEnd)
	}
	if uint32(len(tpl.Raw)) != tpl.Size {
		t.Fatalf("Raw len = %d, want Size %d", len(tpl.Raw), tpl.Size)
	}
}

func TestDecodeTemplateRejectsBadSignature(t *testing.T) {
	var b fixtureBuilder
	b.raw([]byte("XXXX"))
	b.u32(templateHeaderSize)
	b.u32(0)
	b.u32(0)
	b.u32(0)
	b.u32(0)
	b.raw(make([]byte, 16))

	if _, err := decodeTemplate(b.buf.Bytes(), 0); err == nil {
		t.Fatal("expected signature mismatch error")
	}
}

func TestDecodeTemplateRejectsUndersizedSize(t *testing.T) {
	var b fixtureBuilder
	b.raw([]byte("TEMP"))
	b.u32(10) // below templateHeaderSize
	b.u32(0)
	b.u32(0)
	b.u32(0)
	b.u32(0)
	b.raw(make([]byte, 16))

	if _, err := decodeTemplate(b.buf.Bytes(), 0); err == nil {
		t.Fatal("expected undersized-size error")
	}
}

// TestTemplateRenderResolvesBoundSubstitution builds a TEMP record
// whose BXML body is a single element with one NormalSubstitution
// slot, then renders it with a real values table bound — the §6
// Library Surface path from a decoded Template to a filled-in tag
// tree, as opposed to decodeTemplate's template-definition-only view.
func TestTemplateRenderResolvesBoundSubstitution(t *testing.T) {
	var b fixtureBuilder
	b.raw([]byte("TEMP"))
	sizePos := b.offset()
	b.u32(0) // size, patched below
	b.u32(0) // num_descriptors
	b.u32(0) // num_names
	b.u32(0) // items_offset: none, body runs to end of size
	b.u32(0) // reserved
	b.raw(make([]byte, 16)) // identifier

	b.u8(0x0f) // StartOfBXMLStream
	b.u8(1)    // major
	b.u8(1)    // minor
	b.u8(0)    // flags

	b.u8(0x01) // OpenStartElementTag
	b.u32(0)   // element size, advisory
	nameOffPos := b.offset()
	b.u32(0) // name_off, patched below
	b.u8(0x02) // CloseStartElementTag

	b.u8(0x0d) // NormalSubstitution
	b.u16(0)   // values-table index 0
	b.u8(uint8(value.U32))

	b.u8(0x04) // EndElementTag

	// A BXML name-cache record (hash, length, UTF-16LE text, trailing
	// NUL), the format bxml.Interpreter's resolveName reads — distinct
	// from nameBlock's §6 element-record name-block format above.
	nameOff := b.offset()
	b.u16(0)                 // hash, unvalidated
	b.u16(uint16(len("Root")))
	b.raw(utf16leBytes("Root"))
	b.u16(0) // trailing NUL

	size := b.offset()
	blob := b.buf.Bytes()
	binary.LittleEndian.PutUint32(blob[sizePos:], size)
	binary.LittleEndian.PutUint32(blob[nameOffPos:], nameOff)

	tpl, err := decodeTemplate(blob, 0)
	if err != nil {
		t.Fatalf("decodeTemplate: %v", err)
	}

	bindings := []bxml.Substitution{{Type: value.U32, Data: []byte{7, 0, 0, 0}}}
	tag, diags, err := tpl.Render(value.DefaultCodePage, nil, bindings)
	if err != nil {
		t.Fatalf("Render() failed, reason: %v", err)
	}
	if len(diags) != 0 {
		t.Fatalf("Render() diagnostics = %v, want none", diags)
	}
	rendered, err := tag.Value().RenderUTF8(0)
	if err != nil {
		t.Fatalf("RenderUTF8() failed, reason: %v", err)
	}
	if rendered != "7" {
		t.Errorf("rendered value = %q, want %q", rendered, "7")
	}
}

func TestCompatibleWithMatchesInputType(t *testing.T) {
	ti := &TemplateItem{InputType: 8}
	if !ti.CompatibleWith(8) {
		t.Fatal("expected CompatibleWith to match identical base type")
	}
	if ti.CompatibleWith(9) {
		t.Fatal("expected CompatibleWith to reject a differing base type")
	}
}
