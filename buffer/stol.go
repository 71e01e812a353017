// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package buffer

import (
	"errors"
	"math"
)

var (
	// ErrRange reports an overflowing number; the returned value is
	// saturated to math.MaxInt64 or math.MinInt64.
	ErrRange = errors.New("buffer: value out of range")
	// ErrSyntax reports empty or non-digit leading input; the returned
	// value is 0.
	ErrSyntax = errors.New("buffer: invalid syntax")
)

// Stol converts the leading digits of s in the given base to an int64,
// strtol style. It never allocates and never panics on arbitrary
// input. pos is the index of the first byte not consumed.
//
// Unlike strconv.ParseInt it does not require the whole input to be a
// number: parsing stops at the first non-digit, which is what header
// values like "80, 8080" and chunk-size markers with extensions need.
func Stol(s []byte, base int) (v int64, pos int, err error) {
	i := 0
	if i == len(s) {
		return 0, 0, ErrSyntax
	}

	neg := false
	switch s[i] {
	case '-':
		neg = true
		i++
	case '+':
		i++
	}
	if i == len(s) {
		return 0, i, ErrSyntax
	}

	// Largest accumulator that can still take one more digit, and the
	// largest legal final digit at exactly that value.
	var cutoff uint64
	if neg {
		cutoff = 1 << 63
	} else {
		cutoff = math.MaxInt64
	}
	cutlim := byte(cutoff % uint64(base))
	cutoff /= uint64(base)

	var acc uint64
	any := 0
loop:
	for ; i < len(s); i++ {
		var d byte
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'z':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'Z':
			d = c - 'A' + 10
		default:
			break loop
		}
		if int(d) >= base {
			break
		}
		if acc > cutoff || (acc == cutoff && d > cutlim) {
			i++
			any = -1
			break
		}
		any = 1
		acc = acc*uint64(base) + uint64(d)
	}

	switch {
	case any < 0:
		if neg {
			return math.MinInt64, i, ErrRange
		}
		return math.MaxInt64, i, ErrRange
	case any == 0:
		return 0, i, ErrSyntax
	case neg:
		// acc may be exactly 1<<63 here, in which case the conversion
		// and negation wrap to math.MinInt64, which is the answer.
		return -int64(acc), i, nil
	default:
		return int64(acc), i, nil
	}
}
