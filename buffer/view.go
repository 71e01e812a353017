// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

// Package buffer holds the byte-level plumbing of the proxy data path:
// non-owning views over backing buffers, a strtol-style integer
// scanner, and the fixed-size IO rings the sessions stream through.
//
// Views are plain []byte subslices. The helpers below cover the few
// operations the HTTP parser needs beyond the bytes package.
package buffer

import "bytes"

// CRLF is the HTTP/1.x line terminator.
var CRLF = []byte("\r\n")

// FindFirstNotOf returns the index of the first byte of s that is not
// in set, or -1 when s is empty or all bytes are in set.
func FindFirstNotOf(s, set []byte) int {
	for i, c := range s {
		if bytes.IndexByte(set, c) < 0 {
			return i
		}
	}
	return -1
}

// EqualFold reports whether two ASCII byte slices are equal under
// case-insensitive comparison. Header field names are ASCII by
// grammar, so no Unicode folding is involved.
func EqualFold(s, t []byte) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if lower(s[i]) != lower(t[i]) {
			return false
		}
	}
	return true
}

// HasFoldPrefix reports whether s begins with prefix under ASCII
// case-insensitive comparison.
func HasFoldPrefix(s, prefix []byte) bool {
	return len(s) >= len(prefix) && EqualFold(s[:len(prefix)], prefix)
}

// ContainsFold reports whether substr occurs anywhere in s under
// ASCII case-insensitive comparison. Used for list-valued headers like
// Cache-Control.
func ContainsFold(s, substr []byte) bool {
	if len(substr) == 0 {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if EqualFold(s[i:i+len(substr)], substr) {
			return true
		}
	}
	return false
}

func lower(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// TrimOWS drops leading and trailing whitespace a header value may
// carry, including the CR LF bytes of folded continuations.
func TrimOWS(s []byte) []byte {
	return bytes.Trim(s, " \t\r\n")
}
