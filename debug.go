// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

// TraceSink receives low-level decode events a caller can use to
// build a verbose trace of a parse, the way libfwevt's
// HAVE_DEBUG_OUTPUT build replaces its compile-time notify stream
// with an injected interface: the default is a no-op, and nothing in
// this package depends on a sink being installed.
type TraceSink interface {
	// Trace records one decode event: record is the diagnostic kind
	// name (DiagnosticKind.String(), e.g. "DanglingReference") and
	// offset is the absolute byte offset it refers to.
	Trace(record string, offset uint32, detail string)
}

type noopTraceSink struct{}

func (noopTraceSink) Trace(string, uint32, string) {}

// DefaultTraceSink discards every event; it is the sink every decoder
// in this package falls back to when none is configured.
var DefaultTraceSink TraceSink = noopTraceSink{}

func trace(sink TraceSink, record string, offset uint32, detail string) {
	if sink == nil {
		sink = DefaultTraceSink
	}
	sink.Trace(record, offset, detail)
}
