// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package buffer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Status classifies the outcome of a non-blocking socket operation on
// an IOBuffer.
type Status int

const (
	StatusOK Status = iota
	StatusWouldBlock
	StatusBufferFull
	StatusShutdown // recv returned 0 bytes: peer sent FIN
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWouldBlock:
		return "would-block"
	case StatusBufferFull:
		return "buffer-full"
	case StatusShutdown:
		return "shutdown"
	default:
		return "error"
	}
}

// IOBuffer is a fixed backing region with a monotone-forward live
// window [b, e). Recv appends at e, Send drains from b, Reset rewinds
// the window to the base. It does not wrap: the window is handed over
// wholesale to the paired direction with Swap once the drainer runs
// dry.
type IOBuffer struct {
	buf  []byte
	b, e int
	err  error // OS error behind the last StatusError
}

// NewIOBuffer allocates a buffer with the given backing size.
func NewIOBuffer(size int) *IOBuffer {
	return &IOBuffer{buf: make([]byte, size)}
}

// Window returns the live [b, e) slice.
func (x *IOBuffer) Window() []byte { return x.buf[x.b:x.e] }

// Backing returns the whole backing region.
func (x *IOBuffer) Backing() []byte { return x.buf }

// Bounds returns the live window offsets within the backing region.
func (x *IOBuffer) Bounds() (b, e int) { return x.b, x.e }

// Len returns the number of live bytes.
func (x *IOBuffer) Len() int { return x.e - x.b }

// Empty reports whether the live window is empty.
func (x *IOBuffer) Empty() bool { return x.b == x.e }

// Free returns the room left past the window end.
func (x *IOBuffer) Free() int { return len(x.buf) - x.e }

// Err returns the OS error behind the last StatusError.
func (x *IOBuffer) Err() error { return x.err }

// Reset rewinds the live window to the start of the backing region.
func (x *IOBuffer) Reset() { x.b, x.e = 0, 0 }

// Consume moves the window start forward by n bytes.
func (x *IOBuffer) Consume(n int) { x.b += n }

// Swap exchanges the backing regions and windows of two buffers. The
// caller owns both regions, so this is a pure ownership transfer: no
// byte moves.
func (x *IOBuffer) Swap(y *IOBuffer) {
	x.buf, y.buf = y.buf, x.buf
	x.b, y.b = y.b, x.b
	x.e, y.e = y.e, x.e
}

// Recv reads from the non-blocking fd into the free region past e and
// grows the window. On StatusOK the returned slice names exactly the
// bytes just received. A read of 0 bytes is StatusShutdown, never
// "try again".
func (x *IOBuffer) Recv(fd int) ([]byte, Status) {
	if x.e == len(x.buf) {
		return nil, StatusBufferFull
	}

	n, err := unix.Read(fd, x.buf[x.e:])
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR:
		return nil, StatusWouldBlock
	case err != nil:
		x.err = err
		return nil, StatusError
	case n == 0:
		return nil, StatusShutdown
	}

	chunk := x.buf[x.e : x.e+n]
	x.e += n
	return chunk, StatusOK
}

// Send writes the live window to the non-blocking fd and shrinks it
// from the front by the bytes actually sent.
func (x *IOBuffer) Send(fd int) Status {
	if x.Empty() {
		return StatusOK
	}

	n, err := unix.Write(fd, x.buf[x.b:x.e])
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR:
		return StatusWouldBlock
	case err != nil:
		x.err = err
		return StatusError
	}

	x.b += n
	return StatusOK
}

// Append copies p past the window end, growing the window. It reports
// whether there was room; on false the buffer is unchanged.
func (x *IOBuffer) Append(p []byte) bool {
	if len(p) > x.Free() {
		return false
	}
	copy(x.buf[x.e:], p)
	x.e += len(p)
	return true
}

// AppendString is Append for string arguments.
func (x *IOBuffer) AppendString(s string) bool {
	if len(s) > x.Free() {
		return false
	}
	copy(x.buf[x.e:], s)
	x.e += len(s)
	return true
}

// Appendf formats into the buffer. Used only off the hot path, for the
// synthesized error response.
func (x *IOBuffer) Appendf(format string, args ...any) bool {
	return x.AppendString(fmt.Sprintf(format, args...))
}
