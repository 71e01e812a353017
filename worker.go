// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package streamhop

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/streamhop/streamhop/dnscache"
	"github.com/streamhop/streamhop/evloop"
	"github.com/streamhop/streamhop/log"
	"github.com/streamhop/streamhop/pool"
)

// Worker owns one reactor, one session pool and one name cache. All
// its sessions live and die on its loop goroutine; nothing it owns is
// shared with other workers. Workers accept in parallel on the shared
// port through SO_REUSEPORT.
type Worker struct {
	id      int
	cfg     *ProxyConfig
	log     log.Logger
	metrics *proxyMetrics

	loop     *evloop.Loop
	sessions *pool.Pool[Session]
	cache    *dnscache.Cache

	lfd int
	lw  *evloop.Watcher
}

type acceptHandler struct{ w *Worker }

func (h acceptHandler) OnReadable()       { h.w.accept() }
func (h acceptHandler) OnWritable()       {}
func (h acceptHandler) OnError(err error) { h.w.log.Errorf("listener: %s", err) }

func newWorker(id int, cfg *ProxyConfig, logger log.Logger, m *proxyMetrics) (*Worker, error) {
	loop, err := evloop.New()
	if err != nil {
		return nil, err
	}

	// A worker that cannot allocate its session slab is the startup
	// out-of-memory case; main maps ErrExhausted onto exit code 10.
	sessions, err := pool.New[Session](cfg.AcceptCapacity)
	if err != nil {
		loop.Close()
		return nil, fmt.Errorf("allocate session pool: %w (%v)", pool.ErrExhausted, err)
	}

	lfd, err := listen(cfg.Addr)
	if err != nil {
		loop.Close()
		return nil, err
	}

	w := &Worker{
		id:       id,
		cfg:      cfg,
		log:      logger,
		metrics:  m,
		loop:     loop,
		sessions: sessions,
		cache:    dnscache.New(cfg.NameCacheSize, cfg.NameCacheLifetime),
		lfd:      lfd,
	}
	w.lw = loop.NewWatcher(lfd, acceptHandler{w})
	w.lw.Start(evloop.Readable)

	return w, nil
}

// run drives the worker loop until ctx is canceled.
func (w *Worker) run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			w.loop.Close()
		case <-done:
		}
	}()
	return w.loop.Run()
}

func (w *Worker) accept() {
	nfd, sa, err := unix.Accept4(w.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN {
			// Another readiness raced us; not an error.
			w.log.Debugf("accept: spurious wakeup")
			return
		}
		w.log.Errorf("accept: %s", err)
		return
	}

	slot, s, err := w.sessions.Get()
	if err != nil {
		// Never block on a full pool: drop the connection on the
		// floor and keep serving the sessions we have.
		w.log.Errorf("session pool exhausted, dropping connection")
		w.metrics.rejected.Inc()
		unix.Shutdown(nfd, unix.SHUT_RDWR)
		unix.Close(nfd)
		return
	}

	w.metrics.sessions.Inc()
	w.metrics.active.Inc()
	w.log.Debugf("accepted connection from %s", sockaddrIP(sa))

	s.start(w, slot, nfd, localIP(nfd), sockaddrIP(sa))
}

func (w *Worker) releaseSession(slot int) {
	w.sessions.Put(slot)
	w.metrics.active.Dec()
}

// resolve maps a hostname to an IPv4 address through the worker's
// cache. A miss resolves synchronously, blocking this worker's loop
// for the duration of the lookup, then feeds the cache.
func (w *Worker) resolve(name []byte) (netip.Addr, bool) {
	if ip, ok := w.cache.Get(name); ok {
		w.metrics.dnsHits.Inc()
		return ip, true
	}
	w.metrics.dnsMiss.Inc()

	addrs, err := net.DefaultResolver.LookupIP(context.Background(), "ip4", string(name))
	if err != nil || len(addrs) == 0 {
		w.log.Debugf("resolve %s: %s", name, err)
		return netip.Addr{}, false
	}

	ip, ok := netip.AddrFromSlice(addrs[0].To4())
	if !ok {
		return netip.Addr{}, false
	}
	w.cache.Put(name, ip)
	return ip, true
}

func (w *Worker) spuriousRead() {
	w.metrics.spurious.WithLabelValues("read").Inc()
}

func (w *Worker) spuriousWrite() {
	w.metrics.spurious.WithLabelValues("write").Inc()
}

func sockaddrIP(sa unix.Sockaddr) string {
	if sa4, ok := sa.(*unix.SockaddrInet4); ok {
		return netip.AddrFrom4(sa4.Addr).String()
	}
	return ""
}

func localIP(fd int) string {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return ""
	}
	return sockaddrIP(sa)
}
