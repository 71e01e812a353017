// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

// Package pool provides a fixed-capacity slab allocator.
// A pool hands out slots from a contiguous backing slab and threads a
// free-list through the unused ones.
// All operations are O(1), the slab is never resized, and a pool
// instance is owned by a single worker goroutine.
package pool

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned by Get when no free slot is left.
var ErrExhausted = errors.New("pool: exhausted")

const nilSlot = -1

// Pool is a bounded allocator of uniform T slots.
type Pool[T any] struct {
	slots []T
	next  []int32 // free-list links, indexed like slots
	free  int32   // head of the free-list, nilSlot when empty
	nfree int
}

// New creates a pool with the given capacity.
func New[T any](capacity int) (*Pool[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("pool: invalid capacity %d", capacity)
	}

	p := &Pool[T]{
		slots: make([]T, capacity),
		next:  make([]int32, capacity),
		nfree: capacity,
	}
	for i := range p.next {
		p.next[i] = int32(i + 1)
	}
	p.next[capacity-1] = nilSlot
	p.free = 0

	return p, nil
}

// Get allocates a slot and returns its index together with a pointer
// to the slot value.
// The pointer stays valid until Put(idx); the value retains whatever
// the previous user left in it.
func (p *Pool[T]) Get() (int, *T, error) {
	if p.free == nilSlot {
		return nilSlot, nil, ErrExhausted
	}

	i := p.free
	p.free = p.next[i]
	p.next[i] = nilSlot
	p.nfree--

	return int(i), &p.slots[i], nil
}

// At returns the value pointer for an allocated slot index.
func (p *Pool[T]) At(i int) *T {
	return &p.slots[i]
}

// Put returns a slot to the free-list.
// Returning a slot that is already free corrupts the list; the session
// teardown path guards against double release.
func (p *Pool[T]) Put(i int) {
	p.next[i] = p.free
	p.free = int32(i)
	p.nfree++
}

// Free returns the number of unallocated slots.
func (p *Pool[T]) Free() int {
	return p.nfree
}

// Cap returns the slab capacity.
func (p *Pool[T]) Cap() int {
	return len(p.slots)
}
