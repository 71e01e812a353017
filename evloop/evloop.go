// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

// Package evloop implements a single-threaded epoll reactor.
// Each proxy worker owns one Loop; all watchers registered on a loop
// are driven from the goroutine running Run, so handlers never need
// locks.
package evloop

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Interest bits for watcher registration.
const (
	Readable = unix.EPOLLIN
	Writable = unix.EPOLLOUT
)

// Handler receives readiness callbacks for one watcher. Callbacks run
// on the loop goroutine and must not block; a handler suspends by
// returning and is resumed on the next readiness notification.
type Handler interface {
	OnReadable()
	OnWritable()
	OnError(err error)
}

const maxEvents = 128

// Loop is an epoll instance plus the per-fd dispatch table.
type Loop struct {
	epfd     int
	wakefd   int // eventfd used for Close and Wake
	watchers map[int]*Watcher

	mu      sync.Mutex
	pending []func()
	closed  bool
}

// New creates a loop with its epoll and wake descriptors.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	l := &Loop{
		epfd:     epfd,
		wakefd:   wakefd,
		watchers: make(map[int]*Watcher),
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakefd),
	}); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll_ctl wakefd: %w", err)
	}

	return l, nil
}

// Run dispatches readiness events until Close is called. It must be
// called from exactly one goroutine; that goroutine becomes the loop
// thread.
func (l *Loop) Run() error {
	events := make([]unix.EpollEvent, maxEvents)
	for {
		n, err := unix.EpollWait(l.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == l.wakefd {
				if l.drainWake() {
					return l.shutdown()
				}
				continue
			}

			w := l.watchers[fd]
			if w == nil {
				// Watcher removed by an earlier handler in this batch.
				continue
			}
			dispatch(w, events[i].Events)
		}
	}
}

func dispatch(w *Watcher, ev uint32) {
	if ev&(unix.EPOLLERR) != 0 {
		soerr, _ := unix.GetsockoptInt(w.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		w.h.OnError(unix.Errno(soerr))
		return
	}
	if ev&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 && w.events&Readable != 0 {
		w.h.OnReadable()
		if w.fd == 0 {
			return // handler shut the watcher down
		}
	}
	if ev&(unix.EPOLLOUT|unix.EPOLLHUP) != 0 && w.events&Writable != 0 {
		w.h.OnWritable()
	}
}

// drainWake consumes the eventfd counter and runs deferred functions.
// It reports whether the loop was closed.
func (l *Loop) drainWake() bool {
	var buf [8]byte
	unix.Read(l.wakefd, buf[:])

	l.mu.Lock()
	fns := l.pending
	l.pending = nil
	closed := l.closed
	l.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return closed
}

// Wake schedules fn to run on the loop goroutine and wakes the loop.
// Wake and Close are the only loop entry points safe to call from
// other goroutines.
func (l *Loop) Wake(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	l.kick()
}

// Close stops Run. Watchers still registered are shut down.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.kick()
}

func (l *Loop) kick() {
	var one [8]byte
	one[0] = 1 // eventfd counter increment, native little-endian
	unix.Write(l.wakefd, one[:])
}

func (l *Loop) shutdown() error {
	for _, w := range l.watchers {
		w.Shutdown()
	}
	unix.Close(l.wakefd)
	return unix.Close(l.epfd)
}
