// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package bxml interprets a Binary-XML (BXML) token stream and builds
// the tag tree it describes, grounded on the token-stream shape of
// gleroi-wbxml/decoder.go and the BXML-body walk libfwevt_template.c
// drives via libfwevt_xml_document_read_with_template_values. Unlike
// gleroi-wbxml's goroutine-and-channel Decoder, this interpreter is a
// plain recursive-descent reader over a cursor: the core performs no
// I/O and no blocking, so there is nothing for a second goroutine to
// buy here.
package bxml

import (
	"errors"
	"fmt"

	"github.com/saferwall/wevtparse/internal/cursor"
	"github.com/saferwall/wevtparse/value"
	"github.com/saferwall/wevtparse/xmltree"
)

// TokenKind identifies the shape of one BXML token (§4.D).
type TokenKind uint8

// Recognized token kinds. The high bit of the on-wire byte (HasMore)
// is stripped before matching against these constants.
const (
	EndOfFile            TokenKind = 0x00
	OpenStartElementTag  TokenKind = 0x01
	CloseStartElementTag TokenKind = 0x02
	CloseEmptyElementTag TokenKind = 0x03
	EndElementTag        TokenKind = 0x04
	TokValue             TokenKind = 0x05
	Attribute            TokenKind = 0x06
	CDATASection         TokenKind = 0x07
	CharOrEntityRef      TokenKind = 0x08
	PITarget             TokenKind = 0x0A
	PIData               TokenKind = 0x0B
	TemplateInstance     TokenKind = 0x0C
	NormalSubstitution   TokenKind = 0x0D
	OptionalSubstitution TokenKind = 0x0E
	StartOfBXMLStream    TokenKind = 0x0F
)

// hasMoreFlag is the upper bit of a token's lead byte, set on
// template-value tokens that carry additional payload beyond the
// base form (§4.D).
const hasMoreFlag = 0x80

// MalformedError reports a bad token, an invalid state transition, or
// an inconsistent size, carrying the absolute byte offset at which
// the problem was detected.
type MalformedError struct {
	Offset uint32
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("bxml: malformed at offset %d: %s", e.Offset, e.Reason)
}

// Errors returned by this package besides MalformedError.
var (
	// ErrUnsupportedVersion is returned when a Fragment header names a
	// major version this interpreter does not recognize.
	ErrUnsupportedVersion = errors.New("bxml: unsupported fragment major version")

	// ErrCyclicTemplateReference is returned when a TemplateInstance
	// token would recurse into a template offset already being expanded.
	ErrCyclicTemplateReference = errors.New("bxml: cyclic template reference")
)

// TemplateResolver looks up another template's BXML body range by its
// absolute offset, so a TemplateInstance token can recurse into it.
// The root package's Provider satisfies this by linear search over
// its Templates.
type TemplateResolver interface {
	// ResolveTemplate returns the absolute [start, end) byte range of
	// the referenced template's BXML body, or ok=false if no template
	// in the provider has that offset.
	ResolveTemplate(offset uint32) (start, end uint32, ok bool)
}

// Substitution is one entry of a TemplateInstance's values table: a
// type tag and the raw payload bytes bound to that slot (§4.D).
type Substitution struct {
	Type value.Type
	Data []byte
}

// Diagnostic is one non-fatal finding recorded while walking a token
// stream, such as a values-table entry that is absent despite a
// non-Null declared type. Offset is relative to the Interpreter's
// blob, the same frame every MalformedError.Offset uses.
type Diagnostic struct {
	Offset uint32
	Detail string
}

// Interpreter walks a BXML token stream and builds a xmltree.Tag.
// codePage is stored on the Interpreter but not applied: the values it
// builds keep value.DefaultCodePage for ByteStreamString rendering
// (names are always UTF-16LE, never code-paged).
type Interpreter struct {
	blob        []byte
	codePage    uint32
	resolver    TemplateResolver
	nameCache   map[uint32]string
	expanding   map[uint32]bool
	malformed   bool
	diagnostics []Diagnostic
}

// New constructs an Interpreter over blob (the containing manifest's
// full byte slice: name offsets are always absolute within it).
// resolver may be nil if the stream is known not to contain
// TemplateInstance tokens.
func New(blob []byte, codePage uint32, resolver TemplateResolver) *Interpreter {
	return &Interpreter{
		blob:      blob,
		codePage:  codePage,
		resolver:  resolver,
		nameCache: make(map[uint32]string),
		expanding: make(map[uint32]bool),
	}
}

// Malformed reports whether a *MalformedError was produced while
// building the returned tree; per §7, the interpreter still returns the
// partially built tree for diagnostics in that case. The other errors
// (ErrUnsupportedVersion, ErrCyclicTemplateReference, xmltree errors)
// do not set it.
func (in *Interpreter) Malformed() bool { return in.malformed }

// Diagnostics returns every non-fatal finding recorded during Parse or
// ParseWithSubstitutions.
func (in *Interpreter) Diagnostics() []Diagnostic { return in.diagnostics }

// Parse interprets the BXML document occupying [start, end) of the
// interpreter's blob and returns the root tag of the tree it
// describes. On a Malformed error the partially built tree is
// returned alongside the error (§7 propagation policy).
func (in *Interpreter) Parse(start, end uint32) (*xmltree.Tag, error) {
	c, err := subCursor(in.blob, start, end)
	if err != nil {
		return nil, in.fail(start, "BXML body out of bounds")
	}
	return in.parseFragment(c, substitutions(nil))
}

// ParseWithSubstitutions is Parse, but bindings supplies the values
// table a NormalSubstitution/OptionalSubstitution token indexes into
// (used when interpreting a template's body during a render, as
// opposed to interpreting the template's own definition).
func (in *Interpreter) ParseWithSubstitutions(start, end uint32, bindings []Substitution) (*xmltree.Tag, error) {
	c, err := subCursor(in.blob, start, end)
	if err != nil {
		return nil, in.fail(start, "BXML body out of bounds")
	}
	return in.parseFragment(c, bindings)
}

func subCursor(blob []byte, start, end uint32) (*cursor.Cursor, error) {
	if end < start {
		return nil, cursor.ErrOutOfBounds
	}
	sub, err := cursor.New(blob).Sub(start, end-start)
	if err != nil {
		return nil, err
	}
	return cursor.New(sub), nil
}

type substitutions = []Substitution

func (in *Interpreter) fail(offset uint32, reason string) error {
	in.malformed = true
	return &MalformedError{Offset: offset, Reason: reason}
}

// parseFragment expects a Fragment header followed by exactly one
// root element, per the Initial/Document states (§4.D).
func (in *Interpreter) parseFragment(c *cursor.Cursor, bindings []Substitution) (*xmltree.Tag, error) {
	lead, err := c.ReadU8()
	if err != nil {
		return nil, in.fail(c.Pos(), "missing fragment header")
	}
	if TokenKind(lead&^hasMoreFlag) != StartOfBXMLStream {
		return nil, in.fail(c.Pos()-1, "expected StartOfBXMLStream token")
	}
	major, err := c.ReadU8()
	if err != nil {
		return nil, in.fail(c.Pos(), "truncated fragment header")
	}
	if _, err := c.ReadU8(); err != nil { // minor version, unvalidated
		return nil, in.fail(c.Pos(), "truncated fragment header")
	}
	if _, err := c.ReadU8(); err != nil { // flags, unvalidated
		return nil, in.fail(c.Pos(), "truncated fragment header")
	}
	if major != 1 {
		return nil, ErrUnsupportedVersion
	}

	root, _, err := in.parseElement(c, bindings)
	if err != nil {
		return root, err
	}
	return root, nil
}

// parseElement expects an OpenStartElementTag and parses through to
// its matching EndElementTag (or CloseEmptyElementTag), returning the
// built tag and the token kind that ended it.
func (in *Interpreter) parseElement(c *cursor.Cursor, bindings []Substitution) (*xmltree.Tag, TokenKind, error) {
	start := c.Pos()
	lead, err := c.ReadU8()
	if err != nil {
		return nil, EndOfFile, in.fail(start, "expected element, got EOF")
	}
	kind := TokenKind(lead &^ hasMoreFlag)
	if kind != OpenStartElementTag {
		return nil, kind, in.fail(start, "expected OpenStartElementTag")
	}

	if lead&hasMoreFlag != 0 {
		if _, err := c.ReadU16(); err != nil { // dependency id, unused by this decoder
			return nil, kind, in.fail(c.Pos(), "truncated OpenStartElementTag")
		}
	}
	if _, err := c.ReadU32(); err != nil { // element size, advisory only
		return nil, kind, in.fail(c.Pos(), "truncated OpenStartElementTag")
	}
	nameOff, err := c.ReadU32()
	if err != nil {
		return nil, kind, in.fail(c.Pos(), "truncated OpenStartElementTag")
	}
	name, err := in.resolveName(nameOff)
	if err != nil {
		return nil, kind, err
	}

	tag := xmltree.New(xmltree.KindNode)
	tag.SetNameUTF16(encodeName(name))

	// InStartTag: attributes, then CloseStartElementTag or
	// CloseEmptyElementTag.
	for {
		pos := c.Pos()
		lead, err := c.ReadU8()
		if err != nil {
			return tag, EndOfFile, in.fail(pos, "truncated start tag")
		}
		tk := TokenKind(lead &^ hasMoreFlag)
		switch tk {
		case Attribute:
			attrNameOff, err := c.ReadU32()
			if err != nil {
				return tag, tk, in.fail(c.Pos(), "truncated Attribute token")
			}
			attrName, err := in.resolveName(attrNameOff)
			if err != nil {
				return tag, tk, err
			}
			attr := xmltree.New(xmltree.KindNode)
			attr.SetNameUTF16(encodeName(attrName))
			if err := in.readValueInto(c, attr, bindings); err != nil {
				return tag, tk, err
			}
			tag.AppendAttribute(attr)
		case CloseStartElementTag:
			if err := in.readContent(c, tag, bindings); err != nil {
				return tag, tk, err
			}
			return tag, EndElementTag, nil
		case CloseEmptyElementTag:
			return tag, tk, nil
		default:
			return tag, tk, in.fail(pos, "unexpected token in start tag")
		}
	}
}

// readContent consumes InContent(d) tokens until EndElementTag.
func (in *Interpreter) readContent(c *cursor.Cursor, tag *xmltree.Tag, bindings []Substitution) error {
	for {
		pos := c.Pos()
		lead, err := c.ReadU8()
		if err != nil {
			return in.fail(pos, "truncated element content")
		}
		tk := TokenKind(lead &^ hasMoreFlag)
		switch tk {
		case EndElementTag:
			return nil
		case OpenStartElementTag:
			c.Seek(pos)
			child, endTok, err := in.parseElement(c, bindings)
			if err != nil {
				return err
			}
			tag.AppendChild(child)
			if endTok == EndOfFile {
				return in.fail(pos, "unterminated nested element")
			}
		case TokValue:
			if err := in.readValueInto(c, tag, bindings); err != nil {
				return err
			}
		case CharOrEntityRef:
			if err := in.readCharRef(c, tag); err != nil {
				return err
			}
		case CDATASection:
			cdata, err := in.readCDATAOrPIPayload(c)
			if err != nil {
				return err
			}
			node := xmltree.New(xmltree.KindCDATA)
			if err := node.SetValueType(value.Utf16String); err != nil {
				return err
			}
			node.AppendValueData(cdata)
			tag.AppendChild(node)
		case PITarget:
			nameOff, err := c.ReadU32()
			if err != nil {
				return in.fail(c.Pos(), "truncated PITarget token")
			}
			name, err := in.resolveName(nameOff)
			if err != nil {
				return err
			}
			piPos := c.Pos()
			piLead, err := c.ReadU8()
			if err != nil || TokenKind(piLead&^hasMoreFlag) != PIData {
				return in.fail(piPos, "expected PIData after PITarget")
			}
			data, err := in.readCDATAOrPIPayload(c)
			if err != nil {
				return err
			}
			pi := xmltree.New(xmltree.KindPI)
			pi.SetNameUTF16(encodeName(name))
			if err := pi.SetValueType(value.Utf16String); err != nil {
				return err
			}
			pi.AppendValueData(data)
			tag.AppendChild(pi)
		case NormalSubstitution, OptionalSubstitution:
			if err := in.readSubstitutionInto(c, tag, bindings, tk == OptionalSubstitution); err != nil {
				return err
			}
		case TemplateInstance:
			child, err := in.readTemplateInstance(c)
			if err != nil {
				return err
			}
			if child != nil {
				tag.AppendChild(child)
			}
		default:
			return in.fail(pos, "unexpected token in element content")
		}
	}
}

// readValueInto reads a Value token's type+data and records it on
// tag, failing with TypeMismatch (via xmltree) if tag already carries
// a value of a different base type.
func (in *Interpreter) readValueInto(c *cursor.Cursor, tag *xmltree.Tag, bindings []Substitution) error {
	typByte, err := c.ReadU8()
	if err != nil {
		return in.fail(c.Pos(), "truncated Value token")
	}
	typ := value.Type(typByte)
	if typ.Base() == value.BinaryXml {
		return in.readEmbeddedBXML(c, tag)
	}
	data, err := in.readScalarData(c, typ)
	if err != nil {
		return err
	}
	if err := tag.SetValueType(typ); err != nil {
		return in.fail(c.Pos(), "conflicting value type on tag")
	}
	tag.AppendValueData(data)
	return nil
}

func (in *Interpreter) readEmbeddedBXML(c *cursor.Cursor, tag *xmltree.Tag) error {
	size, err := c.ReadU16()
	if err != nil {
		return in.fail(c.Pos(), "truncated embedded BXML size")
	}
	raw, err := c.ReadBytes(uint32(size))
	if err != nil {
		return in.fail(c.Pos(), "embedded BXML out of bounds")
	}
	if err := tag.SetValueType(value.BinaryXml); err != nil {
		return in.fail(c.Pos(), "conflicting value type on tag")
	}
	tag.AppendValueData(raw)
	return nil
}

// readScalarData reads one data segment sized per typ's fixed width,
// or a u16-length-prefixed block for the variable-width types.
func (in *Interpreter) readScalarData(c *cursor.Cursor, typ value.Type) ([]byte, error) {
	switch typ.Base() {
	case value.Utf16String, value.ByteStreamString, value.Binary, value.Sid:
		n, err := c.ReadU16()
		if err != nil {
			return nil, in.fail(c.Pos(), "truncated value length")
		}
		b, err := c.ReadBytes(uint32(n))
		if err != nil {
			return nil, in.fail(c.Pos(), "value data out of bounds")
		}
		return b, nil
	default:
		n := fixedWidth(typ.Base())
		b, err := c.ReadBytes(n)
		if err != nil {
			return nil, in.fail(c.Pos(), "value data out of bounds")
		}
		return b, nil
	}
}

func fixedWidth(base value.Type) uint32 {
	switch base {
	case value.Null:
		return 0
	case value.I8, value.U8, value.Bool:
		return 1
	case value.I16, value.U16:
		return 2
	case value.I32, value.U32, value.HexU32, value.Size, value.F32:
		return 4
	case value.I64, value.U64, value.HexU64, value.F64, value.FileTime:
		return 8
	case value.Guid:
		return 16
	case value.SystemTime:
		return 16
	default:
		return 0
	}
}

func (in *Interpreter) readCharRef(c *cursor.Cursor, tag *xmltree.Tag) error {
	code, err := c.ReadU16()
	if err != nil {
		return in.fail(c.Pos(), "truncated character reference")
	}
	if err := tag.SetValueType(value.Utf16String); err != nil {
		return in.fail(c.Pos(), "conflicting value type on tag")
	}
	tag.AppendValueData([]byte{byte(code), byte(code >> 8), 0, 0})
	return nil
}

func (in *Interpreter) readCDATAOrPIPayload(c *cursor.Cursor) ([]byte, error) {
	n, err := c.ReadU16()
	if err != nil {
		return nil, in.fail(c.Pos(), "truncated section length")
	}
	b, err := c.ReadBytes(uint32(n))
	if err != nil {
		return nil, in.fail(c.Pos(), "section data out of bounds")
	}
	return b, nil
}

// readSubstitutionInto reads a Normal/OptionalSubstitution token and
// resolves it against bindings (§4.D substitution semantics).
func (in *Interpreter) readSubstitutionInto(c *cursor.Cursor, tag *xmltree.Tag, bindings []Substitution, optional bool) error {
	idx, err := c.ReadU16()
	if err != nil {
		return in.fail(c.Pos(), "truncated substitution index")
	}
	typByte, err := c.ReadU8()
	if err != nil {
		return in.fail(c.Pos(), "truncated substitution type")
	}
	declaredType := value.Type(typByte)

	if int(idx) >= len(bindings) {
		// No values table bound (interpreting a template definition in
		// isolation): leave the placeholder unfilled.
		return nil
	}
	sub := bindings[idx]

	if sub.Type.Base() == value.Null {
		return nil
	}
	if len(sub.Data) == 0 {
		// A non-Null descriptor type with a zero-size payload is
		// ambiguous in the source; treated as absent regardless of
		// whether the token was Normal or OptionalSubstitution (§9).
		// NormalSubstitution is not supposed to be absent, so that case
		// alone is worth a diagnostic; OptionalSubstitution already
		// documents this as a legitimate outcome.
		if !optional {
			in.diagnostics = append(in.diagnostics, Diagnostic{
				Offset: c.Pos(),
				Detail: "substitution value has size 0 with a non-Null descriptor type; treated as absent",
			})
		}
		return nil
	}

	if sub.Type.IsArray() {
		return in.appendArraySubstitution(tag, sub)
	}
	if err := tag.SetValueType(sub.Type); err != nil {
		return in.fail(c.Pos(), "conflicting value type on substitution")
	}
	tag.AppendValueData(sub.Data)
	_ = declaredType
	return nil
}

// appendArraySubstitution splits sub.Data into N equal-sized records
// of the base type and appends each as its own segment (§4.D array
// substitutions).
func (in *Interpreter) appendArraySubstitution(tag *xmltree.Tag, sub Substitution) error {
	base := sub.Type.Base()
	if err := tag.SetValueType(base); err != nil {
		return in.fail(0, "conflicting value type on array substitution")
	}
	width := fixedWidth(base)
	if width == 0 || len(sub.Data)%int(width) != 0 {
		tag.AppendValueData(sub.Data)
		return nil
	}
	for off := 0; off < len(sub.Data); off += int(width) {
		tag.AppendValueData(sub.Data[off : off+int(width)])
	}
	return nil
}

// readTemplateInstance reads a TemplateInstance token: a template
// reference, a values table, and recurses into the referenced
// template's BXML body with those values bound (§4.D).
func (in *Interpreter) readTemplateInstance(c *cursor.Cursor) (*xmltree.Tag, error) {
	templateOffset, err := c.ReadU32()
	if err != nil {
		return nil, in.fail(c.Pos(), "truncated template reference")
	}
	bindings, err := in.readValuesTable(c)
	if err != nil {
		return nil, err
	}
	if in.resolver == nil {
		return nil, in.fail(c.Pos(), "TemplateInstance with no resolver configured")
	}
	if in.expanding[templateOffset] {
		return nil, ErrCyclicTemplateReference
	}
	start, end, ok := in.resolver.ResolveTemplate(templateOffset)
	if !ok {
		return nil, in.fail(c.Pos(), "dangling template reference")
	}
	in.expanding[templateOffset] = true
	defer delete(in.expanding, templateOffset)

	return in.ParseWithSubstitutions(start, end, bindings)
}

// readValuesTable reads the `count, descriptors, payloads` block a
// TemplateInstance token carries (§4.D).
func (in *Interpreter) readValuesTable(c *cursor.Cursor) ([]Substitution, error) {
	count, err := c.ReadU32()
	if err != nil {
		return nil, in.fail(c.Pos(), "truncated values table count")
	}
	type descriptor struct {
		size uint16
		typ  value.Type
	}
	descriptors := make([]descriptor, count)
	for i := range descriptors {
		size, err := c.ReadU16()
		if err != nil {
			return nil, in.fail(c.Pos(), "truncated value descriptor")
		}
		typByte, err := c.ReadU8()
		if err != nil {
			return nil, in.fail(c.Pos(), "truncated value descriptor")
		}
		if _, err := c.ReadU8(); err != nil { // reserved
			return nil, in.fail(c.Pos(), "truncated value descriptor")
		}
		descriptors[i] = descriptor{size: size, typ: value.Type(typByte)}
	}
	bindings := make([]Substitution, count)
	for i, d := range descriptors {
		payload, err := c.ReadBytes(uint32(d.size))
		if err != nil {
			return nil, in.fail(c.Pos(), "value payload out of bounds")
		}
		bindings[i] = Substitution{Type: d.typ, Data: payload}
	}
	return bindings, nil
}

// resolveName reads, or returns from cache, the decoded name at
// nameOff: hash(u16), length(u16), utf16[length], NUL(u16) in the
// interpreter's full blob (names are always absolute offsets, even
// inside a template body, per §3's offset-normalization note which
// applies only to template-item descriptor offsets).
func (in *Interpreter) resolveName(nameOff uint32) (string, error) {
	if name, ok := in.nameCache[nameOff]; ok {
		return name, nil
	}
	nc := cursor.New(in.blob)
	if err := nc.Seek(nameOff); err != nil {
		return "", in.fail(nameOff, "name offset out of bounds")
	}
	if _, err := nc.ReadU16(); err != nil { // hash, unvalidated
		return "", in.fail(nameOff, "truncated name record")
	}
	length, err := nc.ReadU16()
	if err != nil {
		return "", in.fail(nameOff, "truncated name record")
	}
	if length == 0 {
		in.nameCache[nameOff] = ""
		return "", nil
	}
	raw, err := nc.ReadBytes(uint32(length) * 2)
	if err != nil {
		return "", in.fail(nameOff, "name data out of bounds")
	}
	if _, err := nc.ReadU16(); err != nil { // trailing NUL
		return "", in.fail(nameOff, "truncated name record")
	}
	name, err := value.DecodeUTF16LE(raw)
	if err != nil {
		return "", in.fail(nameOff, "invalid name encoding")
	}
	in.nameCache[nameOff] = name
	return name, nil
}

func encodeName(name string) []byte {
	b, err := value.EncodeUTF16LE(name)
	if err != nil {
		return nil
	}
	return append(b, 0, 0)
}
