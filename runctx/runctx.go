// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

// Package runctx runs a set of long-running functions under one
// shared context that is canceled on shutdown signals.
package runctx

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// shutdownSignals cancel the run context.
var shutdownSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

// Group is a set of functions to run concurrently until the first
// error or shutdown signal.
type Group struct {
	funcs []func(ctx context.Context) error
}

func NewGroup() *Group {
	return &Group{}
}

func (g *Group) Add(fn func(ctx context.Context) error) {
	g.funcs = append(g.funcs, fn)
}

// Run starts every added function and blocks until all of them have
// returned. The context they receive is canceled when one of them
// fails or when a shutdown signal arrives; the first error is
// returned.
func (g *Group) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	for _, fn := range g.funcs {
		fn := fn
		eg.Go(func() error { return fn(ctx) })
	}
	return eg.Wait()
}
