// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package streamhop

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/streamhop/streamhop/log"
)

// Proxy is the set of accept workers serving one listen address.
type Proxy struct {
	config  ProxyConfig
	log     log.Logger
	metrics *proxyMetrics
	workers []*Worker
}

func NewProxy(cfg *ProxyConfig, logger log.Logger) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if logger == nil {
		logger = log.NopLogger
	}

	n := cfg.AcceptThreads
	if n == 0 {
		n = runtime.NumCPU()
	}

	p := &Proxy{
		config:  *cfg,
		log:     logger,
		metrics: newProxyMetrics(cfg.PromRegistry, cfg.PromNamespace),
	}

	for i := 0; i < n; i++ {
		w, err := newWorker(i, &p.config, logger, p.metrics)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		p.workers = append(p.workers, w)
	}

	return p, nil
}

// Addr returns the bound listen address of the first worker. It
// differs from the configured address when port 0 was requested.
func (p *Proxy) Addr() string {
	if len(p.workers) == 0 {
		return ""
	}
	return boundAddr(p.workers[0].lfd)
}

// Run serves until ctx is canceled. Each worker runs its reactor on
// its own goroutine; they share nothing but the kernel accept queue.
func (p *Proxy) Run(ctx context.Context) error {
	p.log.Infof("proxy listening on %s with %d workers", p.Addr(), len(p.workers))

	eg, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		eg.Go(func() error { return w.run(ctx) })
	}
	return eg.Wait()
}

// Close releases the workers of a proxy that never ran.
func (p *Proxy) Close() {
	for _, w := range p.workers {
		w.loop.Close()
		// No goroutine runs the loop, so run it here: it sees the close
		// at once and shuts down the listener and its own descriptors.
		w.loop.Run()
	}
	p.workers = nil
}
