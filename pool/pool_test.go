// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package pool

import (
	"errors"
	"testing"
)

func TestPoolDiscipline(t *testing.T) {
	p, err := New[int](4)
	if err != nil {
		t.Fatal(err)
	}
	if p.Cap() != 4 || p.Free() != 4 {
		t.Fatalf("fresh pool: cap %d free %d", p.Cap(), p.Free())
	}

	seen := make(map[int]bool)
	var slots []int
	for i := 0; i < 4; i++ {
		slot, v, err := p.Get()
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if seen[slot] {
			t.Fatalf("slot %d handed out twice", slot)
		}
		seen[slot] = true
		*v = i
		slots = append(slots, slot)
	}
	if p.Free() != 0 {
		t.Errorf("free = %d, want 0", p.Free())
	}

	if _, _, err := p.Get(); !errors.Is(err, ErrExhausted) {
		t.Errorf("get on empty pool: %v, want ErrExhausted", err)
	}

	// Values survive in their slots until reuse.
	for i, slot := range slots {
		if *p.At(slot) != i {
			t.Errorf("slot %d = %d, want %d", slot, *p.At(slot), i)
		}
	}

	for _, slot := range slots {
		p.Put(slot)
	}
	if p.Free() != 4 {
		t.Errorf("free after release = %d, want 4", p.Free())
	}

	// The pool must be fully usable again.
	for i := 0; i < 4; i++ {
		if _, _, err := p.Get(); err != nil {
			t.Fatalf("get after refill: %v", err)
		}
	}
}

func TestPoolInvalidCapacity(t *testing.T) {
	if _, err := New[int](0); err == nil {
		t.Error("capacity 0 accepted")
	}
	if _, err := New[int](-1); err == nil {
		t.Error("negative capacity accepted")
	}
}
