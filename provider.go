// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import (
	"github.com/saferwall/wevtparse/internal/cursor"
)

// Element table type codes recognized inside a provider's element-
// table index (§4.G).
const (
	tableLevel    = 0x01
	tableTask     = 0x02
	tableOpcode   = 0x03
	tableKeyword  = 0x04
	tableChannel  = 0x05
	tableTemplate = 0x06
	tableEvent    = 0x07
	tableMap      = 0x08
)

// providerDescriptorSize: identifier(GUID, 16), data_offset(u32).
const providerDescriptorSize = 20

// elementTableEntrySize: type_code(u32), count(u32), items_offset(u32).
const elementTableEntrySize = 12

// Provider owns the element tables a single ETW/EventLog provider
// publishes (§3 Provider). Its Events are resolved against Templates
// after every element table has been loaded; an Event whose
// TemplateOffset matches no Template is left with a nil Template and
// recorded as a DanglingReference diagnostic rather than failing the
// overall parse.
type Provider struct {
	Identifier [16]byte
	Levels     []*Level
	Tasks      []*Task
	Opcodes    []*Opcode
	Keywords   []*Keyword
	Channels   []*Channel
	Templates  []*Template
	Events     []*Event
	Maps       []*MapElement
}

func decodeProvider(blob []byte, offset, maxEntries uint32) (*Provider, []Diagnostic, error) {
	c := cursor.New(blob)
	if err := c.Seek(offset); err != nil {
		return nil, nil, offsetErr(ErrOutOfBounds, "provider", offset)
	}
	if !c.InBounds(offset, providerDescriptorSize) {
		return nil, nil, offsetErr(ErrOutOfBounds, "provider", offset)
	}
	identifier, _ := c.ReadGUID()
	dataOffset, _ := c.ReadU32()

	p := &Provider{Identifier: identifier}

	ic := cursor.New(blob)
	if err := ic.Seek(dataOffset); err != nil {
		return nil, nil, offsetErr(ErrOutOfBounds, "provider element-table index", dataOffset)
	}
	numEntries, err := ic.ReadU32()
	if err != nil {
		return nil, nil, offsetErr(ErrOutOfBounds, "provider element-table index", dataOffset)
	}
	if numEntries > maxEntries {
		return nil, nil, offsetErr(ErrMalformed, "provider element-table index", dataOffset)
	}

	var diags []Diagnostic
	for i := uint32(0); i < numEntries; i++ {
		if !ic.InBounds(ic.Pos(), elementTableEntrySize) {
			return nil, nil, offsetErr(ErrOutOfBounds, "provider element-table entry", ic.Pos())
		}
		typeCode, _ := ic.ReadU32()
		count, _ := ic.ReadU32()
		itemsOffset, _ := ic.ReadU32()

		if count > maxEntries {
			return nil, nil, offsetErr(ErrMalformed, "provider element table", itemsOffset)
		}
		if !c.InBounds(itemsOffset, 4) {
			return nil, nil, offsetErr(ErrOutOfBounds, "provider element table", itemsOffset)
		}

		switch typeCode {
		case tableLevel, tableTask, tableOpcode, tableKeyword, tableChannel, tableTemplate, tableEvent, tableMap:
			if err := decodeElementTable(blob, itemsOffset, count, typeCode, p); err != nil {
				return nil, nil, err
			}
		default:
			diags = append(diags, Diagnostic{
				Kind:   UnrecognizedElementTable,
				Offset: itemsOffset,
				Detail: "unrecognized element table type code",
			})
		}
	}

	diags = append(diags, resolveEventTemplates(p)...)

	return p, diags, nil
}

// decodeElementTable seeks to a recognized element table's
// items_offset, reads its 4-byte signature, then loops count times
// invoking the matching element or template decoder (§4.G).
func decodeElementTable(blob []byte, itemsOffset, count, typeCode uint32, p *Provider) error {
	c := cursor.New(blob)
	if err := c.Seek(itemsOffset); err != nil {
		return offsetErr(ErrOutOfBounds, "element table", itemsOffset)
	}
	sig, err := c.ReadBytes(4)
	if err != nil {
		return offsetErr(ErrOutOfBounds, "element table signature", itemsOffset)
	}
	_ = sig // the table's own 4-byte signature (CHAN, EVNT, TTBL, ...) is not validated against a fixed list

	pos := c.Pos()
	for i := uint32(0); i < count; i++ {
		switch typeCode {
		case tableLevel:
			el, err := decodeLevel(blob, pos)
			if err != nil {
				return err
			}
			p.Levels = append(p.Levels, el)
			pos += levelRecordSize
		case tableTask:
			el, err := decodeTask(blob, pos)
			if err != nil {
				return err
			}
			p.Tasks = append(p.Tasks, el)
			pos += taskRecordSize
		case tableOpcode:
			el, err := decodeOpcode(blob, pos)
			if err != nil {
				return err
			}
			p.Opcodes = append(p.Opcodes, el)
			pos += opcodeRecordSize
		case tableKeyword:
			el, err := decodeKeyword(blob, pos)
			if err != nil {
				return err
			}
			p.Keywords = append(p.Keywords, el)
			pos += keywordRecordSize
		case tableChannel:
			el, err := decodeChannel(blob, pos)
			if err != nil {
				return err
			}
			p.Channels = append(p.Channels, el)
			pos += channelRecordSize
		case tableEvent:
			el, err := decodeEvent(blob, pos)
			if err != nil {
				return err
			}
			p.Events = append(p.Events, el)
			pos += eventRecordSize
		case tableMap:
			el, err := decodeMapElement(blob, pos)
			if err != nil {
				return err
			}
			p.Maps = append(p.Maps, el)
			pos += mapHeaderSize
		case tableTemplate:
			el, err := decodeTemplate(blob, pos)
			if err != nil {
				return err
			}
			p.Templates = append(p.Templates, el)
			pos += el.Size
		}
	}
	return nil
}

// ResolveTemplate satisfies bxml.TemplateResolver: a TemplateInstance
// token recursing into another template looks it up by offset within
// the same provider, the same linear search resolveEventTemplates uses
// for events.
func (p *Provider) ResolveTemplate(offset uint32) (start, end uint32, ok bool) {
	for _, tpl := range p.Templates {
		if tpl.Offset == offset {
			return tpl.Offset + tpl.BodyStart, tpl.Offset + tpl.BodyEnd, true
		}
	}
	return 0, 0, false
}

// resolveEventTemplates links each Event's TemplateOffset to the
// Template of equal Offset in the same provider, by linear search
// (§4.G). A dangling reference is returned as a DanglingReference
// diagnostic, not as an error.
func resolveEventTemplates(p *Provider) []Diagnostic {
	var diags []Diagnostic
	for _, ev := range p.Events {
		if ev.TemplateOffset == 0 || ev.TemplateOffset == NoTemplate {
			continue
		}
		found := false
		for _, tpl := range p.Templates {
			if tpl.Offset == ev.TemplateOffset {
				ev.Template = tpl
				found = true
				break
			}
		}
		if !found {
			diags = append(diags, Diagnostic{
				Kind:   DanglingReference,
				Offset: ev.TemplateOffset,
				Detail: "event template_offset matches no template in this provider",
			})
		}
	}
	return diags
}
