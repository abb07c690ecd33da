// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package wevt

// Fuzz is a go-fuzz-style entry point, a plain func([]byte) int rather
// than a go test -fuzz target (§8 scenario 8:
// no input drives the decoder into a panic, infinite loop, or
// unbounded allocation). It mirrors saferwall-pe's Fuzz: decode with
// OpenBytes and report whether the blob was accepted.
func Fuzz(data []byte) int {
	m, err := OpenBytes(data, nil)
	if err != nil {
		return 0
	}
	_ = m
	return 1
}
