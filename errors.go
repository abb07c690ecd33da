// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

import (
	"errors"
	"fmt"
)

// Errors of this package (§7 error kinds). Most decoders wrap one of
// these sentinels with offset context in an *OffsetError, which
// unwraps to the sentinel, in the style of saferwall-pe's helper.go
// sentinel-error block (ErrInvalidPESize/ErrDOSMagicNotFound).
var (
	// ErrInvalidManifestSize is returned when the blob is smaller than
	// the minimum CRIM header.
	ErrInvalidManifestSize = errors.New("wevt: blob smaller than CRIM header")

	// ErrSignatureMismatch is returned when a record's fixed signature
	// field does not match the expected ASCII magic.
	ErrSignatureMismatch = errors.New("wevt: signature mismatch")

	// ErrOutOfBounds is returned whenever an offset/size computation
	// would index outside the blob or a sub-record.
	ErrOutOfBounds = errors.New("wevt: offset or size out of bounds")

	// ErrMalformed covers an invalid state transition, a bad token, or
	// an internally inconsistent size not otherwise captured by a more
	// specific sentinel.
	ErrMalformed = errors.New("wevt: malformed record")

	// ErrTypeMismatch names the kind for a value's established type
	// conflicting with a newly requested one. No decoder in this
	// package returns it; xmltree and value return their own.
	ErrTypeMismatch = errors.New("wevt: value type mismatch")

	// ErrBufferTooSmall names the kind for a caller-provided output
	// buffer that cannot hold a rendered result. No decoder in this
	// package returns it; xmltree and value return their own.
	ErrBufferTooSmall = errors.New("wevt: destination buffer too small")

	// ErrUnsupportedVersion names the kind for a BXML Fragment header
	// with an unrecognized major version. Template.Render surfaces
	// bxml.ErrUnsupportedVersion rather than this sentinel.
	ErrUnsupportedVersion = errors.New("wevt: unsupported BXML fragment version")

	// ErrMemoryExhausted names the allocation-failure kind. No decoder
	// in this package returns it; an element count above
	// Options.MaxElementTableEntries yields ErrMalformed.
	ErrMemoryExhausted = errors.New("wevt: memory exhausted")
)

// OffsetError wraps a sentinel error with the absolute byte offset at
// which it was detected, and the record kind being decoded, so a
// caller can locate the failure inside the blob without re-deriving
// it from a stack trace.
type OffsetError struct {
	Err    error
	Offset uint32
	Record string
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("wevt: %s at offset %d: %v", e.Record, e.Offset, e.Err)
}

func (e *OffsetError) Unwrap() error { return e.Err }

func offsetErr(err error, record string, offset uint32) error {
	return &OffsetError{Err: err, Offset: offset, Record: record}
}
