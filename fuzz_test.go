// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import (
	"encoding/binary"
	"testing"
)

func TestFuzzAcceptsWellFormedManifest(t *testing.T) {
	var b fixtureBuilder
	b.raw([]byte("CRIM"))
	sizePos := b.offset()
	b.u32(0) // size, patched below
	b.u16(1)
	b.u16(1)
	b.u32(0) // num_providers

	size := b.offset()
	blob := b.buf.Bytes()
	binary.LittleEndian.PutUint32(blob[sizePos:], size)

	if got := Fuzz(blob); got != 1 {
		t.Fatalf("Fuzz() = %d, want 1 for a well-formed manifest", got)
	}
}

func TestFuzzRejectsGarbage(t *testing.T) {
	if got := Fuzz([]byte("not a manifest")); got != 0 {
		t.Fatalf("Fuzz() = %d, want 0 for garbage input", got)
	}
}
