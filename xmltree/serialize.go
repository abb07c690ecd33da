// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package xmltree

import (
	"strings"

	"github.com/saferwall/wevtparse/value"
)

func decodeName(nameUTF16 []byte) (string, error) {
	if len(nameUTF16) == 0 {
		return "", nil
	}
	return value.DecodeUTF16LE(nameUTF16)
}

const indentUnit = "  "

// documentText renders the subtree rooted at t followed by a single
// trailing line feed, the form every top-level serialization entry
// point measures and writes.
func (t *Tag) documentText(depth int) (string, error) {
	var sb strings.Builder
	if err := t.writeUTF8(&sb, depth); err != nil {
		return "", err
	}
	sb.WriteString("\n")
	return sb.String(), nil
}

// SizeUTF8 computes the number of bytes RenderUTF8 would write for the
// subtree rooted at t, including the terminating NUL. depth is the
// indentation level of t itself (0 for the document root).
func (t *Tag) SizeUTF8(depth int) (int, error) {
	s, err := t.documentText(depth)
	if err != nil {
		return 0, err
	}
	return len(s) + 1, nil
}

// RenderUTF8 writes the canonical UTF-8 textual form of the subtree
// rooted at t into dst, failing with ErrBufferTooSmall if dst is
// shorter than SizeUTF8 reports. Returns the number of bytes written,
// including the trailing NUL.
func (t *Tag) RenderUTF8(depth int, dst []byte) (int, error) {
	s, err := t.documentText(depth)
	if err != nil {
		return 0, err
	}
	if len(dst) < len(s)+1 {
		return 0, ErrBufferTooSmall
	}
	n := copy(dst, s)
	dst[n] = 0
	return n + 1, nil
}

// SizeUTF16 is the UTF-16LE counterpart of SizeUTF8 (in bytes,
// including the terminating NUL code unit).
func (t *Tag) SizeUTF16(depth int) (int, error) {
	s, err := t.documentText(depth)
	if err != nil {
		return 0, err
	}
	encoded, err := value.EncodeUTF16LE(s)
	if err != nil {
		return 0, err
	}
	return len(encoded) + 2, nil
}

// RenderUTF16 is the UTF-16LE counterpart of RenderUTF8.
func (t *Tag) RenderUTF16(depth int, dst []byte) (int, error) {
	s, err := t.documentText(depth)
	if err != nil {
		return 0, err
	}
	encoded, err := value.EncodeUTF16LE(s)
	if err != nil {
		return 0, err
	}
	if len(dst) < len(encoded)+2 {
		return 0, ErrBufferTooSmall
	}
	n := copy(dst, encoded)
	dst[n] = 0
	dst[n+1] = 0
	return n + 2, nil
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func (t *Tag) writeUTF8(sb *strings.Builder, depth int) error {
	indent := strings.Repeat(indentUnit, depth)
	name, err := t.NameUTF8()
	if err != nil {
		return err
	}

	switch t.kind {
	case KindCDATA:
		sb.WriteString(indent)
		sb.WriteString("<![CDATA[")
		// CDATA content is written verbatim, without entity escaping.
		if t.val != nil && t.val.NumberOfSegments() > 0 {
			s, err := t.val.RenderAllUTF8()
			if err != nil {
				return err
			}
			sb.WriteString(s)
		}
		sb.WriteString("]]>")
		return nil
	case KindPI:
		sb.WriteString(indent)
		sb.WriteString("<?")
		sb.WriteString(name)
		if t.val != nil {
			sb.WriteString(" ")
			if err := t.writeValueText(sb); err != nil {
				return err
			}
		}
		sb.WriteString("?>")
		return nil
	}

	sb.WriteString(indent)
	sb.WriteString("<")
	sb.WriteString(name)
	for _, attr := range t.attributes {
		attrName, err := attr.NameUTF8()
		if err != nil {
			return err
		}
		sb.WriteString(" ")
		sb.WriteString(attrName)
		sb.WriteString("=\"")
		if err := attr.writeValueText(sb); err != nil {
			return err
		}
		sb.WriteString("\"")
	}

	if t.IsEmpty() {
		sb.WriteString("/>")
		return nil
	}
	sb.WriteString(">")

	if len(t.elements) == 0 {
		if err := t.writeValueText(sb); err != nil {
			return err
		}
		sb.WriteString("</")
		sb.WriteString(name)
		sb.WriteString(">")
		return nil
	}

	for _, child := range t.elements {
		sb.WriteString("\n")
		if err := child.writeUTF8(sb, depth+1); err != nil {
			return err
		}
	}
	sb.WriteString("\n")
	sb.WriteString(indent)
	sb.WriteString("</")
	sb.WriteString(name)
	sb.WriteString(">")
	return nil
}

func (t *Tag) writeValueText(sb *strings.Builder) error {
	if t.val == nil || t.val.NumberOfSegments() == 0 {
		return nil
	}
	s, err := t.val.RenderAllUTF8()
	if err != nil {
		return err
	}
	sb.WriteString(escapeText(s))
	return nil
}

// DebugString returns a libfwevt-style indented dump of the subtree
// rooted at t, one line per tag, naming kind, name, flags, and value
// type; meant for diagnostics, not round-tripping.
func (t *Tag) DebugString() string {
	var sb strings.Builder
	t.writeDebug(&sb, 0)
	return sb.String()
}

func (t *Tag) writeDebug(sb *strings.Builder, depth int) {
	name, _ := t.NameUTF8()
	sb.WriteString(strings.Repeat(indentUnit, depth))
	switch t.kind {
	case KindCDATA:
		sb.WriteString("CDATA")
	case KindPI:
		sb.WriteString("PI ")
		sb.WriteString(name)
	default:
		sb.WriteString("tag ")
		sb.WriteString(name)
	}
	if t.val != nil {
		sb.WriteString(" value=")
		sb.WriteString(t.val.Type().String())
	}
	if t.flags&IsTemplateDefinition != 0 {
		sb.WriteString(" [template-definition]")
	}
	sb.WriteString("\n")
	for _, attr := range t.attributes {
		attrName, _ := attr.NameUTF8()
		sb.WriteString(strings.Repeat(indentUnit, depth+1))
		sb.WriteString("@")
		sb.WriteString(attrName)
		sb.WriteString("\n")
	}
	for _, child := range t.elements {
		child.writeDebug(sb, depth+1)
	}
}
