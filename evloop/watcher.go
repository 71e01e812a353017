// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package evloop

import (
	"golang.org/x/sys/unix"
)

// Watcher couples one file descriptor with a Handler and an interest
// set on its loop. A zero fd means "no connection"; the backend
// watcher of a fresh session starts that way.
type Watcher struct {
	loop   *Loop
	fd     int
	events uint32 // current interest bits, 0 when unregistered
	h      Handler
}

// NewWatcher creates an unregistered watcher. The fd may be 0 and set
// later with SetFD before the first Start.
func (l *Loop) NewWatcher(fd int, h Handler) *Watcher {
	return &Watcher{loop: l, fd: fd, h: h}
}

// FD returns the watched descriptor, 0 when shut down.
func (w *Watcher) FD() int { return w.fd }

// SetFD rebinds the watcher to a new descriptor. The watcher must not
// be registered.
func (w *Watcher) SetFD(fd int) {
	w.fd = fd
	w.events = 0
}

// Start adds the given interest bits and (re)registers the watcher.
func (w *Watcher) Start(events uint32) {
	w.apply(w.events | events)
}

// StartOnly replaces the interest set with exactly the given bits.
func (w *Watcher) StartOnly(events uint32) {
	w.apply(events)
}

// Stop removes the given interest bits, unregistering the watcher when
// none remain. Stop(0) removes all interest.
func (w *Watcher) Stop(events uint32) {
	if events == 0 {
		w.apply(0)
		return
	}
	w.apply(w.events &^ events)
}

// StopAll removes all interest without closing the descriptor.
func (w *Watcher) StopAll() {
	w.apply(0)
}

func (w *Watcher) apply(events uint32) {
	if w.fd == 0 {
		// Interest on an unbound watcher is dropped, not queued:
		// callers must SetFD before the first Start.
		return
	}
	old := w.events
	w.events = events

	switch {
	case old == 0 && events != 0:
		unix.EpollCtl(w.loop.epfd, unix.EPOLL_CTL_ADD, w.fd, &unix.EpollEvent{
			Events: events,
			Fd:     int32(w.fd),
		})
		w.loop.watchers[w.fd] = w
	case old != 0 && events == 0:
		unix.EpollCtl(w.loop.epfd, unix.EPOLL_CTL_DEL, w.fd, nil)
		delete(w.loop.watchers, w.fd)
	case old != events:
		unix.EpollCtl(w.loop.epfd, unix.EPOLL_CTL_MOD, w.fd, &unix.EpollEvent{
			Events: events,
			Fd:     int32(w.fd),
		})
	}
}

// Shutdown disables all interest, shuts down both halves of the
// connection and closes the descriptor. The watcher ends with fd 0 and
// may be rebound with SetFD.
func (w *Watcher) Shutdown() {
	if w.fd == 0 {
		return
	}
	w.StopAll()
	unix.Shutdown(w.fd, unix.SHUT_RDWR)
	unix.Close(w.fd)
	w.fd = 0
}
