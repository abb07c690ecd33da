// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import (
	"bytes"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/saferwall/wevtparse/internal/cursor"
	"github.com/saferwall/wevtparse/log"
)

// manifestHeaderSize: signature(4), size(4), major(2), minor(2),
// num_providers(4).
const manifestHeaderSize = 16

var manifestSignature = []byte("CRIM")

// Manifest is the decoded form of a WEVT_TEMPLATE resource: a CRIM
// container holding every provider it describes (§3 Manifest).
// Diagnostics accumulates every non-fatal irregularity found while
// decoding its providers (dangling template references, unrecognized
// element-table type codes); the parse still succeeds when only
// diagnostics, and no error, result.
type Manifest struct {
	Major       uint16
	Minor       uint16
	Providers   []*Provider
	Diagnostics []Diagnostic

	codePage uint32
	logger   *log.Helper
	file     *os.File
	mapped   mmap.MMap
}

// parseManifest decodes a full CRIM container from blob. maxEntries
// bounds every element table's declared entry count (Options.MaxElementTableEntries).
func parseManifest(blob []byte, maxEntries uint32) (*Manifest, error) {
	if uint32(len(blob)) < manifestHeaderSize {
		return nil, ErrInvalidManifestSize
	}
	c := cursor.New(blob)
	sig, _ := c.ReadBytes(4)
	if !bytes.Equal(sig, manifestSignature) {
		return nil, ErrSignatureMismatch
	}
	size, _ := c.ReadU32()
	major, _ := c.ReadU16()
	minor, _ := c.ReadU16()
	numProviders, _ := c.ReadU32()

	if !c.InBounds(0, size) {
		return nil, offsetErr(ErrOutOfBounds, "manifest", 0)
	}
	if !c.InBounds(manifestHeaderSize, numProviders*providerDescriptorSize) {
		return nil, offsetErr(ErrOutOfBounds, "provider descriptor table", manifestHeaderSize)
	}

	m := &Manifest{Major: major, Minor: minor}
	for i := uint32(0); i < numProviders; i++ {
		offset := manifestHeaderSize + i*providerDescriptorSize
		p, diags, err := decodeProvider(blob, offset, maxEntries)
		if err != nil {
			return nil, err
		}
		m.Providers = append(m.Providers, p)
		m.Diagnostics = append(m.Diagnostics, diags...)
	}
	return m, nil
}

// ProviderByIdentifier returns the provider whose Identifier equals
// guid, by linear search in provider order (§4.H), or nil if none
// matches.
func (m *Manifest) ProviderByIdentifier(guid [16]byte) *Provider {
	for _, p := range m.Providers {
		if p.Identifier == guid {
			return p
		}
	}
	return nil
}

// ProviderCount returns the number of providers this manifest holds.
func (m *Manifest) ProviderCount() int { return len(m.Providers) }

// CodePage returns the ASCII code page this manifest was opened with
// (Options.CodePage, defaulted to 1252), for callers that render a
// Template's body outside of the cmd/wevtdump CLI and need to pass the
// same code page bxml.New expects.
func (m *Manifest) CodePage() uint32 { return m.codePage }

// ProviderAt returns the provider at index i, or nil if i is out of
// range, mirroring the index-based accessors the other element
// collections expose through plain slice indexing.
func (m *Manifest) ProviderAt(i int) *Provider {
	if i < 0 || i >= len(m.Providers) {
		return nil
	}
	return m.Providers[i]
}
