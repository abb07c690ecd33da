// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package value implements the typed value model shared by BXML
// attributes, element text, and substitutions: a tagged sum over the
// primitive WEVT types plus the array marker BXML overlays on top of
// them, with UTF-8/UTF-16 rendering rules grounded on
// libfwevt_xml_value.c. It plays the role saferwall/pe's
// DecodeUTF16String helper plays for PE string fields, generalized to
// every WEVT primitive.
package value

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mozilla.org/pkcs7"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Errors returned by this package.
var (
	// ErrBufferTooSmall is returned when a caller-supplied destination
	// buffer cannot hold a rendered or copied value.
	ErrBufferTooSmall = errors.New("value: destination buffer too small")

	// ErrTypeMismatch is returned by an accessor defined only for a
	// subset of types when called on a value of a different type.
	ErrTypeMismatch = errors.New("value: type mismatch")

	// ErrSegmentIndex is returned when a segment index is out of range.
	ErrSegmentIndex = errors.New("value: segment index out of range")
)

// Type enumerates the WEVT primitive value types plus the BXML array
// marker (ArrayFlag), which indicates that every data segment on the
// value holds one element of Base() rather than the whole value.
type Type uint8

// Primitive WEVT value types (§4.B).
const (
	Null Type = iota
	Utf16String
	ByteStreamString
	I8
	U8
	I16
	U16
	I32
	U32
	I64
	U64
	F32
	F64
	Bool
	Binary
	Guid
	Size
	FileTime
	SystemTime
	Sid
	HexU32
	HexU64
	BinaryXml
)

// ArrayFlag is OR'ed over a base Type to mark a BXML array substitution:
// each data segment holds one element of the base type.
const ArrayFlag Type = 0x80

// IsArray reports whether t carries the array marker.
func (t Type) IsArray() bool { return t&ArrayFlag != 0 }

// Base strips the array marker, returning the element type.
func (t Type) Base() Type { return t &^ ArrayFlag }

// String names the base type (array-ness is not reflected).
func (t Type) String() string {
	names := map[Type]string{
		Null: "Null", Utf16String: "Utf16String", ByteStreamString: "ByteStreamString",
		I8: "I8", U8: "U8", I16: "I16", U16: "U16", I32: "I32", U32: "U32",
		I64: "I64", U64: "U64", F32: "F32", F64: "F64", Bool: "Bool",
		Binary: "Binary", Guid: "Guid", Size: "Size", FileTime: "FileTime",
		SystemTime: "SystemTime", Sid: "Sid", HexU32: "HexU32", HexU64: "HexU64",
		BinaryXml: "BinaryXml",
	}
	if n, ok := names[t.Base()]; ok {
		if t.IsArray() {
			return n + "[]"
		}
		return n
	}
	return fmt.Sprintf("Type(0x%02x)", uint8(t))
}

// DefaultCodePage is the ASCII/OEM code page used for ByteStreamString
// transcoding when the caller does not specify one (§4.B).
const DefaultCodePage = 1252

// Value is a tagged sum over the WEVT primitive types (§3 XmlValue). A
// value's data may be split across several segments: a plain scalar
// always has exactly one, while an array substitution has one segment
// per element.
type Value struct {
	typ      Type
	segments [][]byte
	codePage uint32
}

// New constructs an empty value of the given type.
func New(typ Type) *Value {
	return &Value{typ: typ, codePage: DefaultCodePage}
}

// Type returns the value's type, including the array marker if set.
func (v *Value) Type() Type { return v.typ }

// SetCodePage overrides the ASCII/OEM code page used to transcode
// ByteStreamString segments (default 1252).
func (v *Value) SetCodePage(cp uint32) { v.codePage = cp }

// AppendSegment appends one raw data segment (a copy of data is not
// made; callers must not mutate data afterwards).
func (v *Value) AppendSegment(data []byte) {
	v.segments = append(v.segments, data)
}

// NumberOfSegments returns the number of data segments.
func (v *Value) NumberOfSegments() int { return len(v.segments) }

// TotalDataSize returns the sum of every segment's length (§8 invariant 6).
func (v *Value) TotalDataSize() int {
	n := 0
	for _, s := range v.segments {
		n += len(s)
	}
	return n
}

// Segment returns the raw bytes of segment i.
func (v *Value) Segment(i int) ([]byte, error) {
	if i < 0 || i >= len(v.segments) {
		return nil, ErrSegmentIndex
	}
	return v.segments[i], nil
}

// CopyRaw copies the concatenation of every segment into dst, failing
// with ErrBufferTooSmall if dst is shorter.
func (v *Value) CopyRaw(dst []byte) (int, error) {
	total := v.TotalDataSize()
	if len(dst) < total {
		return 0, ErrBufferTooSmall
	}
	n := 0
	for _, s := range v.segments {
		n += copy(dst[n:], s)
	}
	return n, nil
}

func (v *Value) firstSegment() ([]byte, error) {
	if len(v.segments) == 0 {
		return nil, ErrSegmentIndex
	}
	return v.segments[0], nil
}

// AsU8 returns the value as a uint8. Defined only for U8 and I8.
func (v *Value) AsU8() (uint8, error) {
	if v.typ.Base() != U8 && v.typ.Base() != I8 {
		return 0, ErrTypeMismatch
	}
	seg, err := v.firstSegment()
	if err != nil {
		return 0, err
	}
	if len(seg) < 1 {
		return 0, ErrBufferTooSmall
	}
	return seg[0], nil
}

// AsU32 returns the value as a uint32. Defined only for the 32-bit
// integer and hex-integer types.
func (v *Value) AsU32() (uint32, error) {
	switch v.typ.Base() {
	case U32, I32, HexU32, Size:
	default:
		return 0, ErrTypeMismatch
	}
	seg, err := v.firstSegment()
	if err != nil {
		return 0, err
	}
	if len(seg) < 4 {
		return 0, ErrBufferTooSmall
	}
	return binary.LittleEndian.Uint32(seg), nil
}

// AsU64 returns the value as a uint64. Defined only for the 64-bit
// integer and hex-integer types.
func (v *Value) AsU64() (uint64, error) {
	switch v.typ.Base() {
	case U64, I64, HexU64:
	default:
		return 0, ErrTypeMismatch
	}
	seg, err := v.firstSegment()
	if err != nil {
		return 0, err
	}
	if len(seg) < 8 {
		return 0, ErrBufferTooSmall
	}
	return binary.LittleEndian.Uint64(seg), nil
}

// utf16Decoder is shared by every UTF-16LE transcode in this package.
var utf16Decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// DecodeUTF16LE transcodes UTF-16LE bytes to a UTF-8 string, trimming
// every trailing NUL code unit. Shared by the value
// renderer and by xmltree's name decoding, since both follow the same
// "length-prefixed UTF-16LE block, trailing NUL trimmed" convention.
func DecodeUTF16LE(b []byte) (string, error) {
	return decodeUTF16LE(b)
}

func decodeUTF16LE(b []byte) (string, error) {
	// Trim trailing NUL code units, per the "name is a length-prefixed
	// block, trailing NUL trimmed when present" convention shared by
	// names and Utf16String segments. Some records pad with more than
	// one terminator; strip all of them rather than exactly one.
	for len(b) >= 2 && b[len(b)-2] == 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-2]
	}
	if len(b) == 0 {
		return "", nil
	}
	s, err := utf16Decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func codePageDecoder(codePage uint32) *charmapDecoder {
	switch codePage {
	case 437:
		return &charmapDecoder{charmap.CodePage437}
	default:
		return &charmapDecoder{charmap.Windows1252}
	}
}

type charmapDecoder struct {
	cm *charmap.Charmap
}

func (d *charmapDecoder) decode(b []byte) (string, error) {
	if n := indexZero(b); n >= 0 {
		b = b[:n]
	}
	dec := d.cm.NewDecoder()
	s, err := dec.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

func formatGUID(b [16]byte) string {
	return fmt.Sprintf("{%08x-%04x-%04x-%02x%02x-%02x%02x%02x%02x%02x%02x}",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		b[8], b[9],
		b[10], b[11], b[12], b[13], b[14], b[15])
}

// filetimeEpoch is 1601-01-01T00:00:00Z, the FILETIME zero point.
var filetimeEpoch = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

func formatFileTime(ticks uint64) string {
	// Whole seconds via Unix time: ticks*100 as a time.Duration would
	// overflow int64 for any timestamp after 1893.
	const filetimeToUnixSeconds = 11644473600
	t := time.Unix(int64(ticks/10000000)-filetimeToUnixSeconds, 0).UTC()
	// 100ns resolution: 7 fractional digits.
	return t.Format("2006-01-02T15:04:05") + fmt.Sprintf(".%07dZ", (ticks%10000000))
}

func formatSystemTime(b []byte) (string, error) {
	if len(b) < 16 {
		return "", ErrBufferTooSmall
	}
	year := binary.LittleEndian.Uint16(b[0:2])
	month := binary.LittleEndian.Uint16(b[2:4])
	day := binary.LittleEndian.Uint16(b[6:8])
	hour := binary.LittleEndian.Uint16(b[8:10])
	minute := binary.LittleEndian.Uint16(b[10:12])
	second := binary.LittleEndian.Uint16(b[12:14])
	ms := binary.LittleEndian.Uint16(b[14:16])
	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%03dZ",
		year, month, day, hour, minute, second, ms), nil
}

func formatSID(b []byte) (string, error) {
	if len(b) < 8 {
		return "", ErrBufferTooSmall
	}
	revision := b[0]
	subAuthorityCount := int(b[1])
	var authority uint64
	for i := 0; i < 6; i++ {
		authority = authority<<8 | uint64(b[2+i])
	}
	need := 8 + 4*subAuthorityCount
	if len(b) < need {
		return "", ErrBufferTooSmall
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "S-%d-%d", revision, authority)
	for i := 0; i < subAuthorityCount; i++ {
		sub := binary.LittleEndian.Uint32(b[8+4*i:])
		fmt.Fprintf(&sb, "-%d", sub)
	}
	return sb.String(), nil
}

// renderSegment renders one data segment of base type base to text.
// codePage only matters for ByteStreamString.
func renderSegment(base Type, seg []byte, codePage uint32) (string, error) {
	switch base {
	case Null:
		return "", nil
	case Utf16String:
		return decodeUTF16LE(seg)
	case ByteStreamString:
		return codePageDecoder(codePage).decode(seg)
	case I8:
		if len(seg) < 1 {
			return "", ErrBufferTooSmall
		}
		return strconv.FormatInt(int64(int8(seg[0])), 10), nil
	case U8:
		if len(seg) < 1 {
			return "", ErrBufferTooSmall
		}
		return strconv.FormatUint(uint64(seg[0]), 10), nil
	case I16:
		if len(seg) < 2 {
			return "", ErrBufferTooSmall
		}
		return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(seg))), 10), nil
	case U16:
		if len(seg) < 2 {
			return "", ErrBufferTooSmall
		}
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint16(seg)), 10), nil
	case I32:
		if len(seg) < 4 {
			return "", ErrBufferTooSmall
		}
		return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(seg))), 10), nil
	case U32, Size:
		if len(seg) < 4 {
			return "", ErrBufferTooSmall
		}
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(seg)), 10), nil
	case I64:
		if len(seg) < 8 {
			return "", ErrBufferTooSmall
		}
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(seg)), 10), nil
	case U64:
		if len(seg) < 8 {
			return "", ErrBufferTooSmall
		}
		return strconv.FormatUint(binary.LittleEndian.Uint64(seg), 10), nil
	case F32:
		if len(seg) < 4 {
			return "", ErrBufferTooSmall
		}
		bits := binary.LittleEndian.Uint32(seg)
		return strconv.FormatFloat(float64(math.Float32frombits(bits)), 'g', -1, 32), nil
	case F64:
		if len(seg) < 8 {
			return "", ErrBufferTooSmall
		}
		bits := binary.LittleEndian.Uint64(seg)
		return strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64), nil
	case Bool:
		for _, b := range seg {
			if b != 0 {
				return "true", nil
			}
		}
		return "false", nil
	case Binary, BinaryXml:
		return strings.ToUpper(fmt.Sprintf("%x", seg)), nil
	case Guid:
		if len(seg) < 16 {
			return "", ErrBufferTooSmall
		}
		var g [16]byte
		copy(g[:], seg)
		return formatGUID(g), nil
	case FileTime:
		if len(seg) < 8 {
			return "", ErrBufferTooSmall
		}
		return formatFileTime(binary.LittleEndian.Uint64(seg)), nil
	case SystemTime:
		return formatSystemTime(seg)
	case Sid:
		return formatSID(seg)
	case HexU32:
		if len(seg) < 4 {
			return "", ErrBufferTooSmall
		}
		return fmt.Sprintf("0x%08x", binary.LittleEndian.Uint32(seg)), nil
	case HexU64:
		if len(seg) < 8 {
			return "", ErrBufferTooSmall
		}
		return fmt.Sprintf("0x%016x", binary.LittleEndian.Uint64(seg)), nil
	default:
		return "", fmt.Errorf("value: unsupported type %s", base)
	}
}

// RenderPkcs7WithTypeInfo renders a segment whose owning TemplateItem
// declares output-data-type 0x24 (Pkcs7WithTypeInfo), a rendering hint
// outside the core Type enum that some providers use for a binary blob
// carrying a detached PKCS#7 signature. It best-effort parses seg as
// PKCS#7 and surfaces the signing certificates' subjects; on parse
// failure it falls back to the same uppercase-hex rendering Binary
// gets. It is not reached through Value.Render*, since the hint lives
// on the TemplateItem rather than on the Value itself, and nothing in
// this module (the CLI's render path included) calls it.
func RenderPkcs7WithTypeInfo(seg []byte) (string, error) {
	p7, err := pkcs7.Parse(seg)
	if err != nil || len(p7.Certificates) == 0 {
		return renderSegment(Binary, seg, DefaultCodePage)
	}
	var sb strings.Builder
	for i, cert := range p7.Certificates {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(cert.Subject.CommonName)
	}
	return sb.String(), nil
}

// UTF8Size returns the number of bytes (including the terminating NUL
// CopyUTF8 appends) needed to hold segment i's rendering.
func (v *Value) UTF8Size(segmentIndex int) (int, error) {
	seg, err := v.Segment(segmentIndex)
	if err != nil {
		return 0, err
	}
	s, err := renderSegment(v.typ.Base(), seg, v.codePage)
	if err != nil {
		return 0, err
	}
	return len(s) + 1, nil
}

// UTF16Size returns the number of bytes (2 per UTF-16 code unit,
// including the terminating NUL CopyUTF16 appends) needed to hold
// segment i's rendering.
func (v *Value) UTF16Size(segmentIndex int) (int, error) {
	seg, err := v.Segment(segmentIndex)
	if err != nil {
		return 0, err
	}
	s, err := renderSegment(v.typ.Base(), seg, v.codePage)
	if err != nil {
		return 0, err
	}
	encoded, err := encodeUTF16LE(s)
	if err != nil {
		return 0, err
	}
	return len(encoded) + 2, nil
}

// CopyUTF8 appends segment i's UTF-8 rendering, followed by a NUL
// byte, to dst starting at *index, advancing *index past what was
// written. It fails with ErrBufferTooSmall if dst cannot hold the
// result.
func (v *Value) CopyUTF8(segmentIndex int, dst []byte, index *int) error {
	seg, err := v.Segment(segmentIndex)
	if err != nil {
		return err
	}
	s, err := renderSegment(v.typ.Base(), seg, v.codePage)
	if err != nil {
		return err
	}
	need := len(s) + 1
	if len(dst)-*index < need {
		return ErrBufferTooSmall
	}
	n := copy(dst[*index:], s)
	dst[*index+n] = 0
	*index += need
	return nil
}

// CopyUTF16 appends segment i's UTF-16LE rendering, followed by a NUL
// code unit, to dst starting at *index (a byte offset), advancing
// *index past what was written.
func (v *Value) CopyUTF16(segmentIndex int, dst []byte, index *int) error {
	seg, err := v.Segment(segmentIndex)
	if err != nil {
		return err
	}
	s, err := renderSegment(v.typ.Base(), seg, v.codePage)
	if err != nil {
		return err
	}
	encoded, err := encodeUTF16LE(s)
	if err != nil {
		return err
	}
	need := len(encoded) + 2
	if len(dst)-*index < need {
		return ErrBufferTooSmall
	}
	n := copy(dst[*index:], encoded)
	dst[*index+n] = 0
	dst[*index+n+1] = 0
	*index += need
	return nil
}

var utf16Encoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()

// EncodeUTF16LE transcodes a UTF-8 string to UTF-16LE bytes, exported
// for xmltree's serializer which needs the same transcoding this
// package uses internally for CopyUTF16/CopyAllUTF16.
func EncodeUTF16LE(s string) ([]byte, error) {
	return encodeUTF16LE(s)
}

func encodeUTF16LE(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return utf16Encoder.Bytes([]byte(s))
}

// CopyAllUTF8 concatenates the UTF-8 rendering of every segment (no
// delimiter) into dst, terminated by a single NUL.
func (v *Value) CopyAllUTF8(dst []byte) (int, error) {
	var sb strings.Builder
	for i := range v.segments {
		s, err := renderSegment(v.typ.Base(), v.segments[i], v.codePage)
		if err != nil {
			return 0, err
		}
		sb.WriteString(s)
	}
	s := sb.String()
	if len(dst) < len(s)+1 {
		return 0, ErrBufferTooSmall
	}
	n := copy(dst, s)
	dst[n] = 0
	return n + 1, nil
}

// CopyAllUTF16 concatenates the UTF-16LE rendering of every segment
// (no delimiter) into dst, terminated by a single NUL code unit.
func (v *Value) CopyAllUTF16(dst []byte) (int, error) {
	var sb strings.Builder
	for i := range v.segments {
		s, err := renderSegment(v.typ.Base(), v.segments[i], v.codePage)
		if err != nil {
			return 0, err
		}
		sb.WriteString(s)
	}
	encoded, err := encodeUTF16LE(sb.String())
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

// RenderUTF8 is a convenience wrapper returning segment i's rendering
// as a Go string, used by the xmltree serializer instead of the
// fixed-buffer Copy* pair when it already owns a strings.Builder.
func (v *Value) RenderUTF8(segmentIndex int) (string, error) {
	seg, err := v.Segment(segmentIndex)
	if err != nil {
		return "", err
	}
	return renderSegment(v.typ.Base(), seg, v.codePage)
}

// RenderAllUTF8 is the no-fixed-buffer counterpart of CopyAllUTF8.
func (v *Value) RenderAllUTF8() (string, error) {
	var sb strings.Builder
	for i := range v.segments {
		s, err := renderSegment(v.typ.Base(), v.segments[i], v.codePage)
		if err != nil {
			return "", err
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}
