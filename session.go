// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package streamhop

import (
	"bytes"
	"errors"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/streamhop/streamhop/buffer"
	"github.com/streamhop/streamhop/dnscache"
	"github.com/streamhop/streamhop/evloop"
)

// Progress is the session's coarse state tag. It is monotonically
// non-decreasing within one request/response cycle; keep-alive resets
// it to RequestStarted.
type Progress int

const (
	RequestStarted Progress = iota
	RequestHeadFinished
	RequestFinished
	ResponseStarted
	ResponseHeadFinished
	ResponseWaitShutdown
	ResponseFinished
)

func (p Progress) String() string {
	return [...]string{
		"request-started",
		"request-head-finished",
		"request-finished",
		"response-started",
		"response-head-finished",
		"response-wait-shutdown",
		"response-finished",
	}[p]
}

// Session pairs one client connection (frontend) with one upstream
// connection (backend) and streams bytes between them.
//
// The frontend ring receives request bytes and is drained to the
// client during the response; the backend ring mirrors that. Heads are
// copied, rewritten, between the rings; body bytes travel by swapping
// ring ownership whenever the draining side runs dry.
//
// Sessions live in a per-worker pool slab and release themselves back
// into it through the slot index captured at start.
type Session struct {
	worker *Worker
	slot   int

	progress Progress
	fbuf     *buffer.IOBuffer
	bbuf     *buffer.IOBuffer
	parser   Parser

	fe *evloop.Watcher
	be *evloop.Watcher

	connectPending bool
	released       bool

	// Current backend target, kept across keep-alive cycles to decide
	// between reusing the upstream connection and reconnecting.
	host    [dnscache.MaxName]byte
	hostLen int
	port    uint16
	hostIP  netip.Addr
}

type frontendHalf struct{ s *Session }

func (h frontendHalf) OnReadable()       { h.s.frontendRead() }
func (h frontendHalf) OnWritable()       { h.s.frontendWrite() }
func (h frontendHalf) OnError(err error) { h.s.frontendError(err) }

type backendHalf struct{ s *Session }

func (h backendHalf) OnReadable()       { h.s.backendRead() }
func (h backendHalf) OnWritable()       { h.s.backendWrite() }
func (h backendHalf) OnError(err error) { h.s.backendError(err) }

// start (re)initialises a pooled session slot for an accepted fd.
func (s *Session) start(w *Worker, slot, fd int, localIP, clientIP string) {
	s.worker = w
	s.slot = slot
	s.released = false
	s.connectPending = false
	s.progress = RequestStarted
	s.hostLen = 0
	s.port = 0
	s.hostIP = netip.Addr{}

	if s.fbuf == nil {
		s.fbuf = buffer.NewIOBuffer(w.cfg.BufSize)
		s.bbuf = buffer.NewIOBuffer(w.cfg.BufSize)
	}
	s.fbuf.Reset()
	s.bbuf.Reset()

	if s.fe == nil {
		s.fe = w.loop.NewWatcher(fd, frontendHalf{s})
		s.be = w.loop.NewWatcher(0, backendHalf{s})
	} else {
		s.fe.SetFD(fd)
		s.be.SetFD(0)
	}

	s.parser.Init(s.fbuf, s.bbuf, w.log)
	s.parser.SetPeer(localIP, clientIP)
	s.parser.KeepAlive = false
	s.parser.StartRequest()

	s.fe.Start(evloop.Readable)
}

// release tears the session down: all events disabled, both fds shut
// down and closed, the pool slot returned.
func (s *Session) release() {
	if s.released {
		return
	}
	s.released = true
	s.fe.Shutdown()
	s.be.Shutdown()
	s.worker.releaseSession(s.slot)
}

func (s *Session) fail(reason, format string, args ...any) {
	s.worker.log.Errorf(format, args...)
	s.worker.metrics.error(reason)
	s.release()
}

// frontendRead drives the request head and body parse.
func (s *Session) frontendRead() {
	chunk, st := s.fbuf.Recv(s.fe.FD())
	switch st {
	case buffer.StatusBufferFull:
		s.worker.spuriousRead()
		if s.progress < RequestHeadFinished {
			s.fail("buffer_full", "frontend: not enough buffer to read request head")
			return
		}
		s.fe.Stop(evloop.Readable)
		return
	case buffer.StatusShutdown:
		s.worker.log.Debugf("frontend: peer shutdown")
		s.release()
		return
	case buffer.StatusError:
		s.fail("recv", "frontend: recv: %s", s.fbuf.Err())
		return
	case buffer.StatusWouldBlock:
		return
	}
	s.worker.metrics.bytes.WithLabelValues("rx").Add(float64(len(chunk)))

	switch s.progress {
	case RequestStarted:
		switch s.parser.ParseHead(len(chunk)) {
		case ParseProceed:
			if !s.requestHeadDone() {
				return
			}
			if s.progress != RequestHeadFinished {
				return
			}
			if residual := s.fbuf.Window(); len(residual) > 0 {
				s.feedRequestBody(residual)
			}
		case ParseTerminate:
			s.fail("malformed_request", "frontend: parsing HTTP request failed")
		}

	case RequestHeadFinished:
		s.feedRequestBody(chunk)

	default:
		// The read stays armed on a finished request so a vanishing
		// client is noticed; actual data here is a protocol error.
		s.fail("unexpected_data", "frontend: unexpected data on finished request")
	}
}

func (s *Session) feedRequestBody(chunk []byte) {
	switch s.parser.ParseBody(chunk) {
	case ParseProceed:
		s.progress = RequestFinished
		s.worker.log.Debugf("frontend: progress %s", s.progress)
		s.be.Start(evloop.Writable)
	case ParseTerminate:
		s.fail("malformed_request_body", "frontend: parsing request body failed")
	default:
		s.be.Start(evloop.Writable)
	}
}

// requestHeadDone resolves the target and lines up the backend
// connection once the request head is fully parsed and rewritten.
// It reports whether the session is still alive.
func (s *Session) requestHeadDone() bool {
	p := &s.parser

	if p.hostLen == 0 {
		s.fail("no_host", "frontend: no Host header in request")
		return false
	}

	if p.ContentLength == 0 || (p.ContentLength == clUnset && !p.Chunked) {
		s.progress = RequestFinished
	} else {
		s.progress = RequestHeadFinished
	}
	s.worker.log.Debugf("frontend: got request to %s:%d %s, progress %s",
		p.Host(), p.Port, p.RequestURI, s.progress)

	if p.KeepAlive {
		// Reused connection: reconnect only when the target moved.
		newIP := s.hostIP
		if !bytes.Equal(p.Host(), s.host[:s.hostLen]) {
			ip, ok := s.worker.resolve(p.Host())
			if !ok {
				s.fail("resolve", "frontend: host resolution failed")
				return false
			}
			newIP = ip
			s.hostLen = copy(s.host[:], p.Host())
		}
		if p.Port != s.port || newIP != s.hostIP || s.be.FD() == 0 {
			s.be.Shutdown()
			s.hostIP = newIP
			s.port = p.Port
			return s.connectBackend()
		}
		s.be.StartOnly(evloop.Writable)
		return true
	}

	s.hostLen = copy(s.host[:], p.Host())
	s.port = p.Port
	ip, ok := s.worker.resolve(p.Host())
	if !ok {
		s.fail("resolve", "frontend: host resolution failed")
		return false
	}
	s.hostIP = ip
	return s.connectBackend()
}

// connectBackend opens the non-blocking upstream socket. A connect in
// progress is normal; the watcher is armed for both directions and the
// first readiness consults SO_ERROR. A synchronous failure takes the
// same path as a deferred one, so the caller never double-handles it.
func (s *Session) connectBackend() bool {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		s.worker.log.Errorf("socket: %s", err)
		s.release()
		return false
	}

	sa := &unix.SockaddrInet4{Port: int(s.port)}
	sa.Addr = s.hostIP.As4()

	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		var errno unix.Errno
		if !errors.As(err, &errno) {
			errno = unix.ECONNREFUSED
		}
		s.backendConnectFailed(errno)
		return false
	}

	s.worker.log.Debugf("backend: connecting to %s:%d", s.hostIP, s.port)
	s.be.SetFD(fd)
	s.connectPending = true
	// On connection error EV_READ fires faster than EV_WRITE.
	s.be.StartOnly(evloop.Readable | evloop.Writable)
	return true
}

// backendConnectDone checks SO_ERROR on the first readiness after a
// non-blocking connect. It reports whether the connection is usable.
func (s *Session) backendConnectDone() bool {
	s.connectPending = false
	soerr, err := unix.GetsockoptInt(s.be.FD(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err == nil && soerr == 0 {
		s.worker.log.Debugf("backend: connected to %s:%d", s.hostIP, s.port)
		s.be.StartOnly(evloop.Writable)
		return true
	}
	s.backendConnectFailed(unix.Errno(soerr))
	return false
}

// backendConnectFailed synthesises the 502 when the request was fully
// committed, otherwise drops the session. The OS error text rides in
// the response body.
func (s *Session) backendConnectFailed(errno unix.Errno) {
	s.worker.log.Debugf("backend connect: %s", errno)
	s.worker.metrics.error("upstream_connect")

	if s.progress != RequestFinished {
		s.release()
		return
	}

	s.progress = ResponseFinished
	s.worker.log.Debugf("backend: progress %s", s.progress)
	s.parser.KeepAlive = false
	s.bbuf.Reset()
	s.fbuf.Reset()
	s.fbuf.AppendString("HTTP/1.1 502 Bad Gateway\r\nConnection: close\r\nContent-Type: text/plain\r\n\r\n")
	s.fbuf.Appendf("%s (%d)", strerror(errno), int(errno))
	s.be.StopAll()
	s.fe.StartOnly(evloop.Writable)
}

// backendWrite drains the backend ring upstream, swapping in the
// frontend ring when it runs dry, and flips the session into the
// response phase once the whole request is through.
func (s *Session) backendWrite() {
	if s.connectPending && !s.backendConnectDone() {
		return
	}

	if s.bbuf.Empty() {
		if s.fbuf.Empty() {
			if s.progress == RequestFinished {
				s.bbuf.Reset()
				s.fbuf.Reset() // response head is written from the base
				s.progress = ResponseStarted
				s.worker.log.Debugf("backend: progress %s", s.progress)
				s.be.StartOnly(evloop.Readable)
				s.parser.Init(s.bbuf, s.fbuf, s.worker.log)
				s.parser.StartResponse()
			} else {
				s.worker.spuriousWrite()
				s.be.Stop(evloop.Writable)
			}
			return
		}
		s.bbuf.Reset()
		s.bbuf.Swap(s.fbuf)
		s.fe.Start(evloop.Readable)
	}

	switch s.bbuf.Send(s.be.FD()) {
	case buffer.StatusError:
		s.fail("send", "backend: send: %s", s.bbuf.Err())
	default:
	}
}

// backendRead drives the response head and body parse.
func (s *Session) backendRead() {
	if s.connectPending {
		if s.backendConnectDone() {
			s.backendWrite()
		}
		return
	}

	chunk, st := s.bbuf.Recv(s.be.FD())
	switch st {
	case buffer.StatusBufferFull:
		s.worker.spuriousRead()
		s.be.Stop(evloop.Readable)
		return
	case buffer.StatusShutdown:
		switch s.progress {
		case ResponseWaitShutdown:
			// Response of unknown length ends when upstream closes.
			s.be.Shutdown()
			s.progress = ResponseFinished
			s.worker.log.Debugf("backend: progress %s", s.progress)
			s.fe.Start(evloop.Writable)
		case ResponseFinished:
			// FIN after a complete response; the client side still
			// drains, the next keep-alive request reconnects.
			s.be.Shutdown()
			s.fe.Start(evloop.Writable)
		case RequestStarted:
			// Idle keep-alive connection torn down by the upstream;
			// the next request reconnects.
			s.worker.log.Debugf("backend: peer shutdown on idle connection")
			s.be.Shutdown()
		default:
			s.worker.log.Debugf("backend: peer shutdown mid-exchange")
			s.release()
		}
		return
	case buffer.StatusError:
		s.fail("recv", "backend: recv: %s", s.bbuf.Err())
		return
	case buffer.StatusWouldBlock:
		return
	}
	s.worker.metrics.bytes.WithLabelValues("tx").Add(float64(len(chunk)))

	switch s.progress {
	case ResponseStarted:
		// Frontend write is not armed yet, so the head can be parsed
		// chunk by chunk into the frontend ring undisturbed.
		switch s.parser.ParseHead(len(chunk)) {
		case ParseProceed:
			s.responseHeadDone()
			if s.progress != ResponseHeadFinished {
				return
			}
			if residual := s.bbuf.Window(); len(residual) > 0 {
				s.feedResponseBody(residual)
			}
		case ParseTerminate:
			s.fail("malformed_response", "backend: parsing HTTP response failed")
		}

	case ResponseHeadFinished:
		s.feedResponseBody(chunk)

	case ResponseWaitShutdown:
		// Pass-through of a close-delimited body.
		s.fe.Start(evloop.Writable)

	case ResponseFinished:
		s.fail("unexpected_data", "backend: unexpected data on finished response")

	default:
		s.fail("unexpected_data", "backend: data before request was finished")
	}
}

func (s *Session) responseHeadDone() {
	p := &s.parser

	switch {
	case p.ContentLength == 0:
		s.progress = ResponseFinished
	case p.ContentLength == clUnset && !p.Chunked:
		if p.KeepAlive {
			s.progress = ResponseFinished
		} else {
			s.progress = ResponseWaitShutdown
		}
	default:
		s.progress = ResponseHeadFinished
	}
	s.worker.log.Debugf("backend: got response %d (cl: %d, chunked: %t, keep-alive: %t), progress %s",
		p.StatusCode, p.ContentLength, p.Chunked, p.KeepAlive, s.progress)

	s.fe.StartOnly(evloop.Writable)
}

func (s *Session) feedResponseBody(chunk []byte) {
	switch s.parser.ParseBody(chunk) {
	case ParseProceed:
		s.progress = ResponseFinished
		s.worker.log.Debugf("backend: progress %s", s.progress)
		s.fe.Start(evloop.Writable)
	case ParseTerminate:
		s.fail("malformed_response_body", "backend: parsing response body failed")
	default:
		s.fe.Start(evloop.Writable)
	}
}

// frontendWrite drains the frontend ring to the client, swapping in
// the backend ring when it runs dry, and finishes or resets the
// session once the response is fully delivered.
func (s *Session) frontendWrite() {
	if s.fbuf.Empty() {
		if s.bbuf.Empty() {
			if s.progress == ResponseFinished {
				s.worker.log.Debugf("frontend: response finished")
				if s.parser.KeepAlive {
					s.resetKeepAlive()
					return
				}
				s.release()
				return
			}
			s.worker.spuriousWrite()
			s.fe.Stop(evloop.Writable)
			return
		}
		s.fbuf.Reset()
		s.fbuf.Swap(s.bbuf)
		s.be.Start(evloop.Readable)
	}

	switch s.fbuf.Send(s.fe.FD()) {
	case buffer.StatusError:
		s.fail("send", "frontend: send: %s", s.fbuf.Err())
	default:
	}
}

// resetKeepAlive re-arms the session in place for the next request on
// the same client connection.
func (s *Session) resetKeepAlive() {
	s.fbuf.Reset()
	s.bbuf.Reset()
	s.parser.Init(s.fbuf, s.bbuf, s.worker.log)
	s.parser.StartRequest()
	s.progress = RequestStarted
	s.worker.log.Debugf("frontend: progress %s", s.progress)
	s.fe.StartOnly(evloop.Readable)
}

func (s *Session) frontendError(err error) {
	s.worker.log.Debugf("frontend: %s", err)
	s.release()
}

func (s *Session) backendError(err error) {
	if s.connectPending {
		s.connectPending = false
		var errno unix.Errno
		if !errors.As(err, &errno) {
			errno = unix.ECONNREFUSED
		}
		s.backendConnectFailed(errno)
		return
	}
	s.worker.log.Debugf("backend: %s", err)
	s.release()
}

// strerror renders an errno the way strerror(3) does, with a leading
// capital.
func strerror(errno unix.Errno) string {
	msg := errno.Error()
	if len(msg) > 0 && msg[0] >= 'a' && msg[0] <= 'z' {
		msg = string(msg[0]-'a'+'A') + msg[1:]
	}
	return msg
}
