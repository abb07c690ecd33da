// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package xmltree

import (
	"strings"
	"testing"

	"github.com/saferwall/wevtparse/value"
)

func utf16le(s string) []byte {
	out := make([]byte, 0, len(s)*2+2)
	for _, r := range s {
		out = append(out, byte(r), byte(r>>8))
	}
	out = append(out, 0, 0)
	return out
}

func newNamedTag(name string) *Tag {
	t := New(KindNode)
	t.SetNameUTF16(utf16le(name))
	return t
}

func TestEmptyElementSelfCloses(t *testing.T) {
	root := newNamedTag("Event")
	s, err := root.SizeUTF8(0)
	if err != nil {
		t.Fatalf("SizeUTF8() failed, reason: %v", err)
	}
	dst := make([]byte, s)
	n, err := root.RenderUTF8(0, dst)
	if err != nil {
		t.Fatalf("RenderUTF8() failed, reason: %v", err)
	}
	got := string(dst[:n-1])
	if want := "<Event/>\n"; got != want {
		t.Errorf("RenderUTF8() = %q, want %q", got, want)
	}
}

func TestAttributeAndChildRendering(t *testing.T) {
	root := newNamedTag("Event")
	attr := newNamedTag("Name")
	if err := attr.SetValueType(value.Utf16String); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	attr.AppendValueData(utf16le("test"))
	root.AppendAttribute(attr)

	child := newNamedTag("Data")
	if err := child.SetValueType(value.I32); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	child.AppendValueData([]byte{7, 0, 0, 0})
	root.AppendChild(child)

	s, err := root.SizeUTF8(0)
	if err != nil {
		t.Fatalf("SizeUTF8() failed, reason: %v", err)
	}
	dst := make([]byte, s)
	n, err := root.RenderUTF8(0, dst)
	if err != nil {
		t.Fatalf("RenderUTF8() failed, reason: %v", err)
	}
	got := string(dst[:n-1])
	want := "<Event Name=\"test\">\n  <Data>7</Data>\n</Event>\n"
	if got != want {
		t.Errorf("RenderUTF8() = %q, want %q", got, want)
	}
}

func TestValueTextEscaping(t *testing.T) {
	root := newNamedTag("Data")
	if err := root.SetValueType(value.Utf16String); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	root.AppendValueData(utf16le("a<b>c&d"))

	s, _ := root.SizeUTF8(0)
	dst := make([]byte, s)
	n, err := root.RenderUTF8(0, dst)
	if err != nil {
		t.Fatalf("RenderUTF8() failed, reason: %v", err)
	}
	got := string(dst[:n-1])
	want := "<Data>a&lt;b&gt;c&amp;d</Data>\n"
	if got != want {
		t.Errorf("RenderUTF8() = %q, want %q", got, want)
	}
}

func TestApostropheAndQuoteNotEscaped(t *testing.T) {
	root := newNamedTag("Data")
	if err := root.SetValueType(value.Utf16String); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	root.AppendValueData(utf16le(`it's "quoted"`))

	s, _ := root.SizeUTF8(0)
	dst := make([]byte, s)
	n, err := root.RenderUTF8(0, dst)
	if err != nil {
		t.Fatalf("RenderUTF8() failed, reason: %v", err)
	}
	got := string(dst[:n-1])
	if !strings.Contains(got, `it's "quoted"`) {
		t.Errorf("RenderUTF8() = %q, want apostrophe/quote left untouched", got)
	}
}

func TestLoneLineFeedIsTreatedAsEmpty(t *testing.T) {
	root := newNamedTag("Data")
	if err := root.SetValueType(value.Utf16String); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	root.AppendValueData(utf16le("\n"))

	if !root.IsEmpty() {
		t.Fatalf("IsEmpty() = false, want true for lone line-feed value")
	}
	s, _ := root.SizeUTF8(0)
	dst := make([]byte, s)
	n, err := root.RenderUTF8(0, dst)
	if err != nil {
		t.Fatalf("RenderUTF8() failed, reason: %v", err)
	}
	got := string(dst[:n-1])
	if want := "<Data/>\n"; got != want {
		t.Errorf("RenderUTF8() = %q, want %q", got, want)
	}
}

func TestSetValueTypeConflictIsTypeMismatch(t *testing.T) {
	root := newNamedTag("Data")
	if err := root.SetValueType(value.Utf16String); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	if err := root.SetValueType(value.I32); err != ErrTypeMismatch {
		t.Errorf("SetValueType() on conflicting type = %v, want ErrTypeMismatch", err)
	}
}

func TestCDATAAndPIForms(t *testing.T) {
	cdata := New(KindCDATA)
	if err := cdata.SetValueType(value.Utf16String); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	cdata.AppendValueData(utf16le("raw & text"))
	s, _ := cdata.SizeUTF8(0)
	dst := make([]byte, s)
	n, err := cdata.RenderUTF8(0, dst)
	if err != nil {
		t.Fatalf("RenderUTF8() failed, reason: %v", err)
	}
	if got, want := string(dst[:n-1]), "<![CDATA[raw & text]]>\n"; got != want {
		t.Errorf("RenderUTF8() = %q, want %q", got, want)
	}

	pi := newNamedTag("xml-stylesheet")
	if err := pi.SetValueType(value.Utf16String); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	pi.kind = KindPI
	pi.AppendValueData(utf16le(`type="text/xsl"`))
	s2, _ := pi.SizeUTF8(0)
	dst2 := make([]byte, s2)
	n2, err := pi.RenderUTF8(0, dst2)
	if err != nil {
		t.Fatalf("RenderUTF8() failed, reason: %v", err)
	}
	if got, want := string(dst2[:n2-1]), "<?xml-stylesheet type=\"text/xsl\"?>\n"; got != want {
		t.Errorf("RenderUTF8() = %q, want %q", got, want)
	}
}

func TestAttributeByNameCaseInsensitive(t *testing.T) {
	root := newNamedTag("Event")
	attr := newNamedTag("NAME")
	if err := attr.SetValueType(value.Utf16String); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	attr.AppendValueData(utf16le("x"))
	root.AppendAttribute(attr)

	if got := root.AttributeByName("name"); got == nil {
		t.Fatalf("AttributeByName(%q) = nil, want a match", "name")
	}
}

func TestAttributeByNameUTF16MatchesByNameResult(t *testing.T) {
	root := newNamedTag("Event")
	attr := newNamedTag("NAME")
	if err := attr.SetValueType(value.Utf16String); err != nil {
		t.Fatalf("SetValueType() failed, reason: %v", err)
	}
	attr.AppendValueData(utf16le("x"))
	root.AppendAttribute(attr)

	byUTF8 := root.AttributeByName("name")
	byUTF16 := root.AttributeByNameUTF16(utf16le("name"))
	if byUTF8 == nil || byUTF16 == nil {
		t.Fatalf("AttributeByName() = %v, AttributeByNameUTF16() = %v, want both to match", byUTF8, byUTF16)
	}
	if byUTF8 != byUTF16 {
		t.Fatalf("AttributeByName() and AttributeByNameUTF16() disagree on the matched tag")
	}
}

func TestElementByNameUTF16MatchesByNameResult(t *testing.T) {
	root := newNamedTag("Event")
	child := newNamedTag("System")
	root.AppendChild(child)

	byUTF8 := root.ElementByName("system")
	byUTF16 := root.ElementByNameUTF16(utf16le("system"))
	if byUTF8 == nil || byUTF16 == nil {
		t.Fatalf("ElementByName() = %v, ElementByNameUTF16() = %v, want both to match", byUTF8, byUTF16)
	}
	if byUTF8 != byUTF16 {
		t.Fatalf("ElementByName() and ElementByNameUTF16() disagree on the matched tag")
	}
}

func TestRenderUTF8BufferTooSmall(t *testing.T) {
	root := newNamedTag("Event")
	dst := make([]byte, 1)
	if _, err := root.RenderUTF8(0, dst); err != ErrBufferTooSmall {
		t.Errorf("RenderUTF8() with tiny buffer = %v, want ErrBufferTooSmall", err)
	}
}
