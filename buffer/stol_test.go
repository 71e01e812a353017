// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package buffer

import (
	"errors"
	"math"
	"testing"
)

func TestStol(t *testing.T) {
	tests := []struct {
		in   string
		base int
		v    int64
		pos  int // -1 means len(in)
		err  error
	}{
		{"ff", 16, 0xff, -1, nil},
		{"1000", 16, 0x1000, -1, nil},
		{"-1", 10, -1, -1, nil},
		{"+-1", 10, 0, 1, ErrSyntax},
		{"", 10, 0, 0, ErrSyntax},
		{"a", 10, 0, 0, ErrSyntax},
		{"777abcdef", 16, 0x777abcdef, -1, nil},
		{"777abcdef", 10, 777, 3, nil},
		{"7fffffffffffffff", 16, math.MaxInt64, -1, nil},
		{"8000000000000000", 16, math.MaxInt64, 16, ErrRange},
		{"-7FfFfFfFfFfFfFfF", 16, -0x7fffffffffffffff, -1, nil},
		{"-8000000000000000", 16, math.MinInt64, 17, nil},
		{"-8000000000000001", 16, math.MinInt64, 17, ErrRange},
		{"800000000000000000000", 16, math.MaxInt64, 16, ErrRange},
		{"100000000000000000000", 16, math.MaxInt64, 17, ErrRange},
		{"80", 10, 80, -1, nil},
		{"0", 10, 0, -1, nil},
		{"0", 16, 0, -1, nil},
		{"5;ext=1", 16, 5, 1, nil},
	}

	for _, tc := range tests {
		v, pos, err := Stol([]byte(tc.in), tc.base)

		wantPos := tc.pos
		if wantPos == -1 {
			wantPos = len(tc.in)
		}

		if v != tc.v {
			t.Errorf("Stol(%q, %d) = %d, want %d", tc.in, tc.base, v, tc.v)
		}
		if pos != wantPos {
			t.Errorf("Stol(%q, %d) pos = %d, want %d", tc.in, tc.base, pos, wantPos)
		}
		if !errors.Is(err, tc.err) {
			t.Errorf("Stol(%q, %d) err = %v, want %v", tc.in, tc.base, err, tc.err)
		}
	}
}
