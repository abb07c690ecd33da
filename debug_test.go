// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import "testing"

func TestDefaultTraceSinkIsNoop(t *testing.T) {
	// Must not panic with a nil-ish zero value and must not block.
	DefaultTraceSink.Trace("level", 0, "anything")
}

type recordingTraceSink struct {
	calls []string
}

func (r *recordingTraceSink) Trace(record string, offset uint32, detail string) {
	r.calls = append(r.calls, record)
}

func TestTraceFallsBackToDefaultWhenSinkNil(t *testing.T) {
	// Should not panic when sink is nil.
	trace(nil, "level", 0, "x")
}

func TestTraceCallsSink(t *testing.T) {
	sink := &recordingTraceSink{}
	trace(sink, "level", 3, "detail")
	if len(sink.calls) != 1 || sink.calls[0] != "level" {
		t.Fatalf("calls = %+v, want one \"level\" entry", sink.calls)
	}
}
