// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package streamhop

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/streamhop/streamhop/log"
)

type ProxyConfig struct {
	// Addr is the host:port the proxy listens on.
	Addr string

	// AcceptThreads is the number of reactor workers, each accepting
	// on the shared port. 0 means one worker per CPU (SO_REUSEPORT
	// balances the accept queue between them).
	AcceptThreads int

	// WorkerThreads is reserved for future offload of blocking work
	// out of the reactors. The value is accepted and ignored.
	WorkerThreads int

	// AcceptCapacity bounds the per-worker session pool. A connection
	// accepted with the pool exhausted is closed immediately.
	AcceptCapacity int

	// NameCacheSize is the per-worker DNS cache capacity, 0 disables
	// caching.
	NameCacheSize int

	// NameCacheLifetime is the DNS cache entry TTL.
	NameCacheLifetime time.Duration

	// BufSize is the per-direction ring size. Heads larger than this
	// cannot be proxied.
	BufSize int

	PromRegistry  prometheus.Registerer
	PromNamespace string

	Logger log.Logger
}

func DefaultProxyConfig() *ProxyConfig {
	return &ProxyConfig{
		Addr:              ":9000",
		AcceptThreads:     runtime.NumCPU(),
		AcceptCapacity:    1024,
		NameCacheSize:     512,
		NameCacheLifetime: 5 * time.Minute,
		BufSize:           4096,
	}
}

func (c *ProxyConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr: empty")
	}
	if c.AcceptThreads < 0 {
		return fmt.Errorf("accept-threads: must be >= 0")
	}
	if c.AcceptCapacity <= 0 {
		return fmt.Errorf("accept-capacity: must be > 0")
	}
	if c.BufSize < 128 {
		return fmt.Errorf("buffer size: must be >= 128")
	}
	if c.NameCacheSize < 0 {
		return fmt.Errorf("name-cache: must be >= 0")
	}
	return nil
}
