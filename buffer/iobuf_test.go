// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package buffer

import (
	"bytes"
	"testing"

	"golang.org/x/sys/unix"
)

// socketPair returns two connected non-blocking stream sockets.
func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

func TestIOBufferRecv(t *testing.T) {
	a, b := socketPair(t)
	defer unix.Close(a)

	x := NewIOBuffer(8)

	t.Run("WouldBlock", func(t *testing.T) {
		if _, st := x.Recv(a); st != StatusWouldBlock {
			t.Errorf("got %v, want would-block", st)
		}
	})

	t.Run("OK", func(t *testing.T) {
		unix.Write(b, []byte("hello"))
		chunk, st := x.Recv(a)
		if st != StatusOK {
			t.Fatalf("got %v, want ok", st)
		}
		if !bytes.Equal(chunk, []byte("hello")) {
			t.Errorf("chunk = %q", chunk)
		}
		if !bytes.Equal(x.Window(), []byte("hello")) {
			t.Errorf("window = %q", x.Window())
		}
	})

	t.Run("BufferFull", func(t *testing.T) {
		unix.Write(b, []byte("abcdef"))
		chunk, st := x.Recv(a)
		if st != StatusOK || !bytes.Equal(chunk, []byte("abc")) {
			t.Fatalf("got %v %q, want partial fill", st, chunk)
		}
		if _, st := x.Recv(a); st != StatusBufferFull {
			t.Errorf("got %v, want buffer-full", st)
		}
	})

	t.Run("Shutdown", func(t *testing.T) {
		x.Reset()
		x2 := NewIOBuffer(16)
		// drain the leftover "def" first
		if _, st := x2.Recv(a); st != StatusOK {
			t.Fatal("expected leftover bytes")
		}
		unix.Close(b)
		if _, st := x2.Recv(a); st != StatusShutdown {
			t.Errorf("got %v, want shutdown", st)
		}
	})
}

func TestIOBufferSend(t *testing.T) {
	a, b := socketPair(t)
	defer unix.Close(a)

	x := NewIOBuffer(16)
	x.Append([]byte("payload"))

	if st := x.Send(a); st != StatusOK {
		t.Fatalf("send: %v", st)
	}
	if !x.Empty() {
		t.Errorf("buffer not drained, window %q", x.Window())
	}

	got := make([]byte, 16)
	n, _ := unix.Read(b, got)
	if string(got[:n]) != "payload" {
		t.Errorf("peer got %q", got[:n])
	}

	// Send on a closed peer reports an error, not a silent drop.
	unix.Close(b)
	x.Append([]byte("more"))
	if st := x.Send(a); st != StatusError {
		t.Errorf("send to closed peer: got %v, want error", st)
	}
}

func TestIOBufferSwap(t *testing.T) {
	x := NewIOBuffer(8)
	y := NewIOBuffer(8)
	x.Append([]byte("abc"))
	x.Consume(1)

	x.Swap(y)

	if !x.Empty() {
		t.Errorf("x not empty after swap: %q", x.Window())
	}
	if !bytes.Equal(y.Window(), []byte("bc")) {
		t.Errorf("y window = %q, want bc", y.Window())
	}

	// The exchanged windows stay bound to their backing regions.
	y.Consume(2)
	if !y.Empty() {
		t.Errorf("y not drained")
	}
}

func TestIOBufferAppend(t *testing.T) {
	x := NewIOBuffer(4)
	if !x.Append([]byte("abcd")) {
		t.Fatal("append within capacity failed")
	}
	if x.Append([]byte("e")) {
		t.Error("append past capacity succeeded")
	}
	if !bytes.Equal(x.Window(), []byte("abcd")) {
		t.Errorf("window = %q", x.Window())
	}
}
