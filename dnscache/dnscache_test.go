// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package dnscache

import (
	"fmt"
	"net/netip"
	"testing"
	"time"
)

func testAddr(i int) netip.Addr {
	return netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i)})
}

// fakeClock lets the tests move time without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(capacity int, lifetime time.Duration) (*Cache, *fakeClock) {
	c := New(capacity, lifetime)
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	c.now = clk.now
	return c, clk
}

func TestCacheHitMiss(t *testing.T) {
	c, _ := newTestCache(4, time.Minute)

	if _, ok := c.Get([]byte("example.com")); ok {
		t.Fatal("hit on empty cache")
	}

	c.Put([]byte("example.com"), testAddr(1))
	ip, ok := c.Get([]byte("example.com"))
	if !ok || ip != testAddr(1) {
		t.Fatalf("got %v %t, want %v hit", ip, ok, testAddr(1))
	}
}

func TestCacheLRUEviction(t *testing.T) {
	const capacity = 4
	const k = 3
	c, _ := newTestCache(capacity, time.Hour)

	// capacity+k distinct inserts leave exactly capacity entries, the
	// k most recent among them.
	for i := 0; i < capacity+k; i++ {
		c.Put([]byte(fmt.Sprintf("host%d.test", i)), testAddr(i))
	}

	if c.Len() != capacity {
		t.Fatalf("len = %d, want %d", c.Len(), capacity)
	}
	for i := capacity + k - 1; i >= k; i-- {
		if _, ok := c.Get([]byte(fmt.Sprintf("host%d.test", i))); !ok {
			t.Errorf("host%d.test evicted, want present", i)
		}
	}
	for i := 0; i < k; i++ {
		if _, ok := c.Get([]byte(fmt.Sprintf("host%d.test", i))); ok {
			t.Errorf("host%d.test present, want evicted", i)
		}
	}
}

func TestCacheLRURecency(t *testing.T) {
	c, _ := newTestCache(2, time.Hour)

	c.Put([]byte("a.test"), testAddr(1))
	c.Put([]byte("b.test"), testAddr(2))

	// Touch a so that b becomes the eviction candidate.
	if _, ok := c.Get([]byte("a.test")); !ok {
		t.Fatal("a.test missing")
	}
	c.Put([]byte("c.test"), testAddr(3))

	if _, ok := c.Get([]byte("a.test")); !ok {
		t.Error("a.test evicted, want present")
	}
	if _, ok := c.Get([]byte("b.test")); ok {
		t.Error("b.test present, want evicted")
	}
}

func TestCacheTTL(t *testing.T) {
	c, clk := newTestCache(4, time.Minute)

	c.Put([]byte("a.test"), testAddr(1))
	free := c.Free()

	clk.advance(time.Minute + time.Second)

	if _, ok := c.Get([]byte("a.test")); ok {
		t.Fatal("hit on expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("len = %d after expiry, want 0", c.Len())
	}
	// The expired lookup returns the node to the pool.
	if c.Free() != free+1 {
		t.Errorf("free = %d, want %d", c.Free(), free+1)
	}
}

func TestCacheDisabled(t *testing.T) {
	c := New(0, time.Minute)
	if c != nil {
		t.Fatal("capacity 0 should disable the cache")
	}

	// Nil cache must be safe to use.
	c.Put([]byte("a.test"), testAddr(1))
	if _, ok := c.Get([]byte("a.test")); ok {
		t.Error("hit on disabled cache")
	}
	if c.Len() != 0 || c.Free() != 0 {
		t.Error("disabled cache reports storage")
	}
}

func TestCacheOversizeName(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)

	name := make([]byte, MaxName+1)
	for i := range name {
		name[i] = 'a'
	}
	c.Put(name, testAddr(1))
	if c.Len() != 0 {
		t.Error("oversize name was cached")
	}
}

func TestCacheRefresh(t *testing.T) {
	c, clk := newTestCache(2, time.Minute)

	c.Put([]byte("a.test"), testAddr(1))
	clk.advance(30 * time.Second)
	c.Put([]byte("a.test"), testAddr(2))
	clk.advance(45 * time.Second)

	// The refresh renewed both the address and the creation time.
	ip, ok := c.Get([]byte("a.test"))
	if !ok || ip != testAddr(2) {
		t.Errorf("got %v %t, want refreshed entry", ip, ok)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}
