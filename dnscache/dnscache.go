// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

// Package dnscache provides a bounded LRU cache of hostname to IPv4
// resolutions with lazy TTL eviction. Each proxy worker owns one cache
// instance; there is no cross-goroutine coordination.
package dnscache

import (
	"net/netip"
	"time"

	"github.com/streamhop/streamhop/pool"
)

// MaxName is the longest cacheable domain name, per RFC 1035.
const MaxName = 253

const nilNode = -1

type node struct {
	name  [MaxName]byte
	nlen  int
	addr  netip.Addr
	ctime time.Time

	// recency list links, slab indexes
	prev, next int32
	slot       int32
}

// Cache maps hostnames to resolved IPv4 addresses. Entries and their
// recency-list links live in one pooled node type, so the configured
// capacity bounds all storage. A nil *Cache is valid and always
// misses; that is how caching is disabled.
type Cache struct {
	lifetime time.Duration
	nodes    *pool.Pool[node]
	index    map[string]int32
	head     int32 // most recently used
	tail     int32 // least recently used

	// now is a hook for TTL tests.
	now func() time.Time
}

// New creates a cache holding up to capacity entries that expire after
// lifetime. A capacity of 0 or less disables caching and returns nil.
func New(capacity int, lifetime time.Duration) *Cache {
	if capacity <= 0 {
		return nil
	}

	nodes, err := pool.New[node](capacity)
	if err != nil {
		return nil
	}

	return &Cache{
		lifetime: lifetime,
		nodes:    nodes,
		index:    make(map[string]int32, capacity),
		head:     nilNode,
		tail:     nilNode,
		now:      time.Now,
	}
}

// Get looks up a name. A hit moves the entry to the recency front; a
// hit older than the lifetime evicts the entry and reports a miss.
func (c *Cache) Get(name []byte) (netip.Addr, bool) {
	if c == nil {
		return netip.Addr{}, false
	}

	i, ok := c.index[string(name)]
	if !ok {
		return netip.Addr{}, false
	}

	n := c.nodes.At(int(i))
	if c.now().Sub(n.ctime) >= c.lifetime {
		c.remove(i)
		return netip.Addr{}, false
	}

	c.unlink(i)
	c.pushFront(i)
	return n.addr, true
}

// Put inserts a resolution at the recency front, evicting the least
// recently used entry when the cache is full. Names longer than
// MaxName are not cached. An existing entry for the name is refreshed.
func (c *Cache) Put(name []byte, addr netip.Addr) {
	if c == nil || len(name) > MaxName {
		return
	}

	if i, ok := c.index[string(name)]; ok {
		n := c.nodes.At(int(i))
		n.addr = addr
		n.ctime = c.now()
		c.unlink(i)
		c.pushFront(i)
		return
	}

	if c.nodes.Free() == 0 {
		c.remove(c.tail)
	}

	slot, n, err := c.nodes.Get()
	if err != nil {
		return
	}
	n.nlen = copy(n.name[:], name)
	n.addr = addr
	n.ctime = c.now()
	n.slot = int32(slot)

	c.index[string(name)] = int32(slot)
	c.pushFront(int32(slot))
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.index)
}

// Free returns the number of unused node slots.
func (c *Cache) Free() int {
	if c == nil {
		return 0
	}
	return c.nodes.Free()
}

func (c *Cache) remove(i int32) {
	n := c.nodes.At(int(i))
	delete(c.index, string(n.name[:n.nlen]))
	c.unlink(i)
	c.nodes.Put(int(i))
}

func (c *Cache) unlink(i int32) {
	n := c.nodes.At(int(i))
	if n.prev != nilNode {
		c.nodes.At(int(n.prev)).next = n.next
	} else if c.head == i {
		c.head = n.next
	}
	if n.next != nilNode {
		c.nodes.At(int(n.next)).prev = n.prev
	} else if c.tail == i {
		c.tail = n.prev
	}
	n.prev, n.next = nilNode, nilNode
}

func (c *Cache) pushFront(i int32) {
	n := c.nodes.At(int(i))
	n.prev = nilNode
	n.next = c.head
	if c.head != nilNode {
		c.nodes.At(int(c.head)).prev = i
	}
	c.head = i
	if c.tail == nilNode {
		c.tail = i
	}
}
