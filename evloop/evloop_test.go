// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package evloop

import (
	"testing"
	"time"

	"go.uber.org/goleak"
	"golang.org/x/sys/unix"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type funcHandler struct {
	r func()
	w func()
	e func(error)
}

func (h funcHandler) OnReadable() {
	if h.r != nil {
		h.r()
	}
}

func (h funcHandler) OnWritable() {
	if h.w != nil {
		h.w()
	}
}

func (h funcHandler) OnError(err error) {
	if h.e != nil {
		h.e(err)
	}
}

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

func runLoop(t *testing.T, l *Loop) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	t.Cleanup(func() {
		l.Close()
		if err := <-done; err != nil {
			t.Errorf("loop: %v", err)
		}
	})
	return done
}

func recv(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
		return nil
	}
}

func TestLoopReadable(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatal(err)
	}
	runLoop(t, l)

	a, b := socketPair(t)
	defer unix.Close(b)

	got := make(chan []byte, 1)
	var w *Watcher
	l.Wake(func() {
		w = l.NewWatcher(a, funcHandler{r: func() {
			buf := make([]byte, 64)
			n, _ := unix.Read(a, buf)
			w.Shutdown()
			got <- buf[:n]
		}})
		w.Start(Readable)
	})

	unix.Write(b, []byte("ping"))

	if string(recv(t, got)) != "ping" {
		t.Error("readable callback did not see the payload")
	}
}

func TestLoopWritable(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatal(err)
	}
	runLoop(t, l)

	a, b := socketPair(t)
	defer unix.Close(b)

	got := make(chan []byte, 1)
	var w *Watcher
	l.Wake(func() {
		w = l.NewWatcher(a, funcHandler{w: func() {
			unix.Write(a, []byte("pong"))
			w.Shutdown()
			got <- nil
		}})
		w.Start(Writable)
	})

	recv(t, got)

	buf := make([]byte, 64)
	n, err := unix.Read(b, buf)
	if err != nil || string(buf[:n]) != "pong" {
		t.Errorf("peer read %q, %v", buf[:n], err)
	}
}

func TestLoopInterestSwitch(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatal(err)
	}
	runLoop(t, l)

	a, b := socketPair(t)
	defer unix.Close(b)

	got := make(chan []byte, 1)
	var w *Watcher
	var reads int
	l.Wake(func() {
		w = l.NewWatcher(a, funcHandler{r: func() {
			reads++
			buf := make([]byte, 64)
			n, _ := unix.Read(a, buf)
			// Drop read interest; further peer writes must not call us.
			w.Stop(Readable)
			got <- buf[:n]
		}})
		w.StartOnly(Readable)
	})

	unix.Write(b, []byte("one"))
	recv(t, got)
	unix.Write(b, []byte("two"))

	// Give a stray callback a chance to fire.
	sync := make(chan []byte, 1)
	l.Wake(func() { sync <- nil })
	recv(t, sync)
	l.Wake(func() {
		w.Shutdown()
		sync <- nil
	})
	recv(t, sync)

	if reads != 1 {
		t.Errorf("reads = %d, want 1", reads)
	}
}

func TestLoopWake(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatal(err)
	}
	runLoop(t, l)

	got := make(chan []byte, 1)
	l.Wake(func() { got <- []byte("woke") })

	if string(recv(t, got)) != "woke" {
		t.Error("wake function did not run")
	}
}
