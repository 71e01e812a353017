// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

// Package bind maps configuration structs to pflag flag sets.
package bind

import (
	"github.com/mmatczuk/anyflag"
	"github.com/spf13/pflag"
	"github.com/streamhop/streamhop"
	"github.com/streamhop/streamhop/log"
)

func ProxyConfig(fs *pflag.FlagSet, cfg *streamhop.ProxyConfig) {
	fs.StringVar(&cfg.Addr,
		"address", cfg.Addr, "<host:port>"+
			"Address to listen on. "+
			"If the host is empty, the proxy listens on all interfaces. ")

	fs.IntVar(&cfg.AcceptThreads,
		"accept-threads", cfg.AcceptThreads,
		"Number of reactor workers accepting in parallel on the shared port. "+
			"Defaults to the number of CPUs. ")

	fs.IntVar(&cfg.WorkerThreads,
		"worker-threads", cfg.WorkerThreads,
		"Reserved for future offload of blocking work; the value is accepted and ignored. ")

	fs.IntVar(&cfg.AcceptCapacity,
		"accept-capacity", cfg.AcceptCapacity,
		"Per-worker session pool capacity. "+
			"A connection accepted with the pool exhausted is closed immediately. ")

	fs.IntVar(&cfg.NameCacheSize,
		"name-cache", cfg.NameCacheSize,
		"Per-worker DNS cache capacity, 0 disables caching. ")

	fs.DurationVar(&cfg.NameCacheLifetime,
		"cache-lifetime", cfg.NameCacheLifetime,
		"DNS cache entry lifetime. ")
}

func LogConfig(fs *pflag.FlagSet, cfg *log.Config) {
	fs.Var(anyflag.NewValue[log.Level](cfg.Level, &cfg.Level, log.ParseLevel),
		"log-level", "<error|info|debug>"+
			"Log level. ")
}
