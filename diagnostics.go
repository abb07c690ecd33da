// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "fmt"

// DiagnosticKind classifies a non-fatal finding surfaced alongside an
// otherwise successful parse (§7: DanglingReference is "non-fatal at
// manifest level ... surfaced to the caller via an iterator of
// diagnostics").
type DiagnosticKind uint8

// Recognized diagnostic kinds.
const (
	// DanglingReference marks an Event whose TemplateOffset matched no
	// Template in its provider's template table.
	DanglingReference DiagnosticKind = iota

	// UnrecognizedElementTable marks a provider element-table index
	// entry whose type code this decoder does not interpret; its
	// bounds are still validated, but its contents are skipped.
	UnrecognizedElementTable

	// AbsentSubstitution marks a TemplateInstance values-table entry
	// that declared a non-Null type but carried a zero-size payload;
	// the interpreter treats it the same as an OptionalSubstitution
	// with nothing to emit (§9).
	AbsentSubstitution
)

// String names the kind.
func (k DiagnosticKind) String() string {
	switch k {
	case DanglingReference:
		return "DanglingReference"
	case UnrecognizedElementTable:
		return "UnrecognizedElementTable"
	case AbsentSubstitution:
		return "AbsentSubstitution"
	default:
		return "Unknown"
	}
}

// Diagnostic is one non-fatal finding produced while decoding a
// Manifest. Unlike saferwall-pe's Anomalies []string, each entry
// carries a typed Kind plus the byte offset it pertains to, so a
// caller can filter or locate findings programmatically instead of
// string-matching free text.
type Diagnostic struct {
	Kind   DiagnosticKind
	Offset uint32
	Detail string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at offset %d: %s", d.Kind, d.Offset, d.Detail)
}
