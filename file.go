// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package wevt decodes Windows WEVT_TEMPLATE manifests: the compiled
// form of an ETW/EventLog provider's event metadata embedded as a
// resource in system binaries.
package wevt

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/saferwall/wevtparse/log"
)

// Options configures how a manifest is opened and decoded.
type Options struct {
	// CodePage is the ASCII code page recorded on the Manifest and
	// returned by Manifest.CodePage, by default 1252 (§4.E). The BXML
	// interpreter does not apply it to the values it builds.
	CodePage uint32

	// MaxElementTableEntries bounds how many entries a single element
	// table (or a provider's element-table index itself) may declare,
	// guarding against a corrupt or hostile count looping the decoder
	// far past any real manifest. Zero means the default
	// (defaultMaxElementTableEntries, mirroring saferwall-pe's
	// maxAllowedEntries).
	MaxElementTableEntries uint32

	// A custom logger.
	Logger log.Logger

	// Sink, when set, receives a trace event for every diagnostic the
	// decode produces, in addition to the logger. Defaults to
	// DefaultTraceSink (a no-op).
	Sink TraceSink
}

const defaultCodePage = 1252

// defaultMaxElementTableEntries mirrors saferwall-pe's
// maxAllowedEntries = 0x1000 resource-directory guard.
const defaultMaxElementTableEntries = 0x1000

// Open memory-maps name and decodes it as a WEVT_TEMPLATE manifest.
// The returned Manifest's Close must be called to release the
// mapping.
func Open(name string, opts *Options) (*Manifest, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	m, err := decodeManifestBlob(data, opts)
	if err != nil {
		_ = data.Unmap()
		f.Close()
		return nil, err
	}
	m.file = f
	m.mapped = data
	return m, nil
}

// OpenBytes decodes an already materialized manifest blob. The
// returned Manifest borrows data for its lifetime; Close is a no-op
// for it.
func OpenBytes(data []byte, opts *Options) (*Manifest, error) {
	return decodeManifestBlob(data, opts)
}

func decodeManifestBlob(data []byte, opts *Options) (*Manifest, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.CodePage == 0 {
		opts.CodePage = defaultCodePage
	}
	if opts.MaxElementTableEntries == 0 {
		opts.MaxElementTableEntries = defaultMaxElementTableEntries
	}

	var logger log.Logger
	if opts.Logger == nil {
		logger = log.NewStdLogger(os.Stdout)
	} else {
		logger = opts.Logger
	}
	helper := log.NewHelper(log.NewFilter(logger, log.FilterLevel(log.LevelError)))

	m, err := parseManifest(data, opts.MaxElementTableEntries)
	if err != nil {
		return nil, err
	}
	m.logger = helper
	m.codePage = opts.CodePage
	sink := opts.Sink
	if sink == nil {
		sink = DefaultTraceSink
	}
	for _, d := range m.Diagnostics {
		helper.Warnf("%s", d.String())
		trace(sink, d.Kind.String(), d.Offset, d.Detail)
	}
	return m, nil
}

// Close releases resources associated with a Manifest opened via
// Open. Calling Close on a Manifest built with OpenBytes is a no-op.
func (m *Manifest) Close() error {
	if m.mapped != nil {
		_ = m.mapped.Unmap()
	}
	if m.file != nil {
		return m.file.Close()
	}
	return nil
}
