// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package xmltree implements the rooted tag tree BXML interpretation
// builds and the canonical UTF-8/UTF-16 serializer that renders it,
// grounded on libfwevt_xml_tag.c. A Tag owns its children and its
// value exclusively: dropping the root releases the whole subtree.
package xmltree

import (
	"errors"
	"strings"

	"github.com/saferwall/wevtparse/value"
)

// Errors returned by this package.
var (
	// ErrTypeMismatch is returned when SetValueType is called on a tag
	// that already carries a value of a different base type.
	ErrTypeMismatch = errors.New("xmltree: value type mismatch")

	// ErrBufferTooSmall is returned by the serializer's Write entry
	// points when the destination buffer is shorter than the size
	// computed by the matching Size call.
	ErrBufferTooSmall = errors.New("xmltree: destination buffer too small")

	// ErrIndex is returned by index-based attribute/child lookups when
	// the index is out of range.
	ErrIndex = errors.New("xmltree: index out of range")
)

// Kind is the shape a Tag renders as.
type Kind uint8

// Tag kinds (§3 TagTree).
const (
	KindNode Kind = iota
	KindCDATA
	KindPI
)

// Flag is a bitset of tag-level markers.
type Flag uint32

// IsTemplateDefinition marks a tag produced while interpreting a
// template's own body rather than an instantiated copy.
const IsTemplateDefinition Flag = 1 << 0

// Tag is one node of the rooted tag tree: a Node, a CDATA section, or
// a processing instruction. Attributes are themselves Tags, held
// separately from element children so lookups don't need a kind
// filter.
type Tag struct {
	kind       Kind
	nameUTF16  []byte
	attributes []*Tag
	elements   []*Tag
	val        *value.Value
	flags      Flag
}

// New constructs an empty tag of the given kind.
func New(kind Kind) *Tag {
	return &Tag{kind: kind}
}

// Kind returns the tag's shape.
func (t *Tag) Kind() Kind { return t.kind }

// Flags returns the tag's flag bitset.
func (t *Tag) Flags() Flag { return t.flags }

// SetFlags ORs f into the tag's flag bitset.
func (t *Tag) SetFlags(f Flag) { t.flags |= f }

// SetNameUTF16 copies a UTF-16LE name block into the tag, trimming a
// trailing NUL code unit when present.
func (t *Tag) SetNameUTF16(b []byte) {
	if len(b) >= 2 && b[len(b)-2] == 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-2]
	}
	t.nameUTF16 = append([]byte(nil), b...)
}

// NameUTF16 returns the tag's raw UTF-16LE name bytes (no trailing NUL).
func (t *Tag) NameUTF16() []byte { return t.nameUTF16 }

// NameUTF8 decodes the tag's name to a UTF-8 string.
func (t *Tag) NameUTF8() (string, error) {
	return decodeName(t.nameUTF16)
}

// AppendAttribute appends attr to the tag's ordered attribute list.
func (t *Tag) AppendAttribute(attr *Tag) {
	t.attributes = append(t.attributes, attr)
}

// AppendChild appends child to the tag's ordered element list.
func (t *Tag) AppendChild(child *Tag) {
	t.elements = append(t.elements, child)
}

// Attributes returns the tag's ordered attribute list.
func (t *Tag) Attributes() []*Tag { return t.attributes }

// Elements returns the tag's ordered child element list.
func (t *Tag) Elements() []*Tag { return t.elements }

// AttributeAt returns the attribute at index i.
func (t *Tag) AttributeAt(i int) (*Tag, error) {
	if i < 0 || i >= len(t.attributes) {
		return nil, ErrIndex
	}
	return t.attributes[i], nil
}

// ElementAt returns the child element at index i.
func (t *Tag) ElementAt(i int) (*Tag, error) {
	if i < 0 || i >= len(t.elements) {
		return nil, ErrIndex
	}
	return t.elements[i], nil
}

// AttributeByName returns the first attribute whose name
// case-insensitively matches name (code point by code point,
// uppercased both sides), or nil if none matches.
func (t *Tag) AttributeByName(name string) *Tag {
	return findByName(t.attributes, name)
}

// ElementByName returns the first child element whose name
// case-insensitively matches name, or nil if none matches.
func (t *Tag) ElementByName(name string) *Tag {
	return findByName(t.elements, name)
}

// AttributeByNameUTF16 is AttributeByName's counterpart for a raw
// UTF-16LE key (e.g. a name read straight out of a §6 name block,
// never transcoded to UTF-8 by the caller): it normalizes the key the
// same way a tag's own name is normalized, so a UTF-8 key and a
// UTF-16 key for the same name yield equal results (§8 testable
// property 7).
func (t *Tag) AttributeByNameUTF16(nameUTF16 []byte) *Tag {
	return findByNameUTF16(t.attributes, nameUTF16)
}

// ElementByNameUTF16 is ElementByName's UTF-16-key counterpart.
func (t *Tag) ElementByNameUTF16(nameUTF16 []byte) *Tag {
	return findByNameUTF16(t.elements, nameUTF16)
}

func findByName(tags []*Tag, name string) *Tag {
	want := strings.ToUpper(name)
	for _, c := range tags {
		got, err := c.NameUTF8()
		if err != nil {
			continue
		}
		if strings.ToUpper(got) == want {
			return c
		}
	}
	return nil
}

func findByNameUTF16(tags []*Tag, nameUTF16 []byte) *Tag {
	name, err := decodeName(nameUTF16)
	if err != nil {
		return nil
	}
	return findByName(tags, name)
}

// Value returns the tag's value, or nil if it has none.
func (t *Tag) Value() *value.Value { return t.val }

// SetValueType lazily creates the tag's value with the given type, or
// verifies the existing value's base type matches. It fails with
// ErrTypeMismatch if the tag already holds a value of a different
// base type.
func (t *Tag) SetValueType(typ value.Type) error {
	if t.val == nil {
		t.val = value.New(typ)
		return nil
	}
	if t.val.Type().Base() != typ.Base() {
		return ErrTypeMismatch
	}
	return nil
}

// AppendValueData appends one data segment to the tag's value. The
// value must already exist (via SetValueType).
func (t *Tag) AppendValueData(data []byte) {
	if t.val == nil {
		return
	}
	t.val.AppendSegment(data)
}

// IsEmpty reports whether the tag has neither children nor a value
// with any data, per the serializer's self-closing-tag rule. A
// single-segment Utf16String value of exactly one UTF-8 line feed is
// treated as empty, matching the BXML convention for an
// otherwise-blank element.
func (t *Tag) IsEmpty() bool {
	if len(t.elements) > 0 {
		return false
	}
	if t.val == nil || t.val.NumberOfSegments() == 0 {
		return true
	}
	if t.val.NumberOfSegments() == 1 {
		s, err := t.val.RenderUTF8(0)
		if err == nil && s == "\n" {
			return true
		}
	}
	return t.val.TotalDataSize() == 0
}
