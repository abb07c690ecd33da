// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import (
	"encoding/binary"
	"testing"
)

// TestParseManifestWithNoProviders covers §8 scenario S1: an empty
// manifest with num_providers == 0 still parses, reporting version
// (1,1) and zero providers.
func TestParseManifestWithNoProviders(t *testing.T) {
	var b fixtureBuilder
	b.raw([]byte("CRIM"))
	sizePos := b.offset()
	b.u32(0) // size, patched below
	b.u16(1) // major
	b.u16(1) // minor
	b.u32(0) // num_providers

	size := b.offset()
	blob := b.buf.Bytes()
	binary.LittleEndian.PutUint32(blob[sizePos:], size)

	m, err := parseManifest(blob, defaultMaxElementTableEntries)
	if err != nil {
		t.Fatalf("parseManifest: %v", err)
	}
	if m.Major != 1 || m.Minor != 1 {
		t.Fatalf("version = (%d,%d), want (1,1)", m.Major, m.Minor)
	}
	if m.ProviderCount() != 0 {
		t.Fatalf("ProviderCount() = %d, want 0", m.ProviderCount())
	}
}

func TestParseManifestRejectsBadSignature(t *testing.T) {
	var b fixtureBuilder
	b.raw([]byte("XXXX"))
	b.u32(manifestHeaderSize)
	b.u16(1)
	b.u16(1)
	b.u32(0)

	if _, err := parseManifest(b.buf.Bytes(), defaultMaxElementTableEntries); err == nil {
		t.Fatal("expected signature mismatch error")
	}
}

func TestParseManifestRejectsUndersizedBlob(t *testing.T) {
	if _, err := parseManifest([]byte("CRIM"), defaultMaxElementTableEntries); err == nil {
		t.Fatal("expected invalid-size error for a truncated blob")
	}
}

func TestParseManifestWithOneProviderAndProviderAccessors(t *testing.T) {
	var b fixtureBuilder
	b.raw([]byte("CRIM"))
	sizePos := b.offset()
	b.u32(0)
	b.u16(1)
	b.u16(1)
	b.u32(1) // num_providers

	providerAt := b.offset()
	var identifier [16]byte
	identifier[0] = 0xAB
	b.raw(identifier[:])
	dataOffPos := b.offset()
	b.u32(0) // data_offset, patched below

	dataOffset := b.offset()
	b.u32(0) // num_entries: no element tables

	size := b.offset()
	blob := b.buf.Bytes()
	binary.LittleEndian.PutUint32(blob[sizePos:], size)
	binary.LittleEndian.PutUint32(blob[dataOffPos:], dataOffset)
	_ = providerAt

	m, err := parseManifest(blob, defaultMaxElementTableEntries)
	if err != nil {
		t.Fatalf("parseManifest: %v", err)
	}
	if m.ProviderCount() != 1 {
		t.Fatalf("ProviderCount() = %d, want 1", m.ProviderCount())
	}
	if m.ProviderAt(0) == nil {
		t.Fatal("ProviderAt(0) = nil, want the sole provider")
	}
	if m.ProviderAt(1) != nil {
		t.Fatal("ProviderAt(1) = non-nil, want nil out of range")
	}
	if p := m.ProviderByIdentifier(identifier); p == nil {
		t.Fatal("ProviderByIdentifier: want a match on the sole provider's identifier")
	}
	var other [16]byte
	other[0] = 0xFF
	if p := m.ProviderByIdentifier(other); p != nil {
		t.Fatal("ProviderByIdentifier: want nil for a non-matching identifier")
	}
}
