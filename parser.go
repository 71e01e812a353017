// Copyright 2025 The streamhop Authors. All rights reserved.
// Use of this source code is governed by a MPL
// license that can be found in the LICENSE file.

package streamhop

import (
	"bytes"

	"github.com/streamhop/streamhop/buffer"
	"github.com/streamhop/streamhop/dnscache"
	"github.com/streamhop/streamhop/log"
)

// ParseStatus is the outcome of feeding bytes to the parser.
type ParseStatus int

const (
	// ParseTerminate: the message is malformed, drop the session.
	ParseTerminate ParseStatus = iota
	// ParseContinue: more bytes are needed in the current phase.
	ParseContinue
	// ParseProceed: the current phase is complete.
	ParseProceed
)

// clUnset marks an absent Content-Length header, distinct from 0.
const clUnset = int64(-1)

var (
	hdrHost             = []byte("Host")
	hdrContentLength    = []byte("Content-Length")
	hdrTransferEncoding = []byte("Transfer-Encoding")
	hdrCacheControl     = []byte("Cache-Control")
	hdrConnection       = []byte("Connection")
	hdrVia              = []byte("Via")
	hdrXForwardedFor    = []byte("X-Forwarded-For")

	valChunked     = []byte("chunked")
	valClose       = []byte("close")
	valKeepAlive   = []byte("keep-alive")
	valNoTransform = []byte("no-transform")

	httpSlash = []byte("HTTP/")
)

// Parser is the per-session incremental HTTP/1.x head parser and
// rewriter plus the body decoder. One instance serves the request
// phase, is re-armed with StartResponse for the response phase, and is
// reset in place on keep-alive.
//
// During the head phase every accepted line is copied to the opposite
// direction's ring; body bytes are never copied, the decoder only
// advances counters while the bytes travel by ring swap.
type Parser struct {
	in  *buffer.IOBuffer // ring being scanned
	out *buffer.IOBuffer // opposite ring receiving the rewritten head
	log log.Logger

	// localIP is the proxy address the client connected to, used for
	// the Via header; clientIP feeds X-Forwarded-For.
	localIP  string
	clientIP string

	response   bool
	handleLine func(line []byte) ParseStatus

	// Scan state, offsets into in's backing region. The scan window
	// starts one byte before the newest recv chunk so a CRLF split by
	// a read boundary is still found; savedB defers a line that ends
	// exactly at the window end, because it may be continued by
	// leading whitespace in the next chunk.
	scanB, scanE int
	savedB       int
	saved        bool
	headB        int
	lineE        int // end of the last accepted line
	haveLine     bool

	// Request metadata. Method, RequestURI and httpVersion are views
	// into the input ring and are valid only until the head is
	// consumed; the host name is copied out because it outlives the
	// head (resolver, keep-alive comparison).
	Method      []byte
	RequestURI  []byte
	httpVersion []byte
	Major       int
	Minor       int
	hostBuf     [dnscache.MaxName]byte
	hostLen     int
	Port        uint16

	// Response metadata.
	StatusCode int
	Reason     []byte

	ContentLength int64
	Chunked       bool
	ForceClose    bool
	KeepAlive     bool

	viaSeen     bool
	xffSeen     bool
	noTransform bool

	// Body decoder state.
	skipChunk     int64 // bytes of body/chunk data still to pass
	markerHoarder int64 // partial chunk-size accumulator, -1 unset
	bodyEnd       bool
	cstate        chunkState
}

// Init wires the parser to its rings. in is the ring the parsed bytes
// arrive in, out the ring receiving the rewritten head.
func (p *Parser) Init(in, out *buffer.IOBuffer, logger log.Logger) {
	p.in = in
	p.out = out
	p.log = logger
}

// SetPeer records the addresses used in the Via and X-Forwarded-For
// rewrites: the proxy-local IP the client connected to and the
// client's peer IP.
func (p *Parser) SetPeer(localIP, clientIP string) {
	p.localIP = localIP
	p.clientIP = clientIP
}

// Host returns the request target host name.
func (p *Parser) Host() []byte { return p.hostBuf[:p.hostLen] }

// StartRequest arms the parser for a request head. The keep-alive flag
// survives so the session can tell a reused connection from a fresh
// one.
func (p *Parser) StartRequest() {
	p.response = false
	p.handleLine = p.parseRequestLine
	p.resetScan()

	p.Method = nil
	p.RequestURI = nil
	p.httpVersion = nil
	p.Major, p.Minor = 0, 0
	p.hostLen = 0
	p.Port = 80
	p.ContentLength = clUnset
	p.Chunked = false
	p.ForceClose = false
	p.viaSeen = false
	p.xffSeen = false
	p.noTransform = false
	p.resetBody()
}

// StartResponse re-arms the parser for the response head. ForceClose
// carries over from the request: an HTTP/1.0 client or an explicit
// Connection: close already rules keep-alive out.
func (p *Parser) StartResponse() {
	p.response = true
	p.handleLine = p.parseResponseLine
	p.resetScan()

	p.StatusCode = 0
	p.Reason = nil
	p.ContentLength = clUnset
	p.Chunked = false
	p.KeepAlive = false
	p.resetBody()
}

func (p *Parser) resetScan() {
	p.scanB, p.scanE = 0, 0
	p.saved = false
	p.headB = 0
	p.lineE = 0
	p.haveLine = false
}

func (p *Parser) resetBody() {
	p.skipChunk = 0
	p.markerHoarder = clUnset
	p.bodyEnd = false
	p.cstate = csNoSearch
}

// ParseHead consumes the newest n received bytes of the input ring.
// On ParseProceed the head has been copied, rewritten, into the output
// ring, the input window has been advanced past the head and holds
// only residual body bytes.
func (p *Parser) ParseHead(n int) ParseStatus {
	_, e := p.in.Bounds()
	recvB := e - n

	switch {
	case p.saved:
		p.scanB = p.savedB
		p.saved = false
	case recvB > p.headB+len(buffer.CRLF)-1:
		// Look back one byte in case the previous chunk ended with
		// the CR of a split CRLF.
		p.scanB = recvB - (len(buffer.CRLF) - 1)
	default:
		p.scanB = p.headB
	}
	p.scanE = e

	if p.scanE-p.scanB < len(buffer.CRLF) {
		return ParseContinue
	}

	for {
		line, ok := p.nextLine()
		if !ok {
			return ParseContinue
		}
		switch st := p.handleLine(line); st {
		case ParseTerminate:
			return ParseTerminate
		case ParseProceed:
			return p.finishHead()
		}
	}
}

// nextLine scans for the next complete head line, honouring obs-fold
// continuations and deferring a line that may continue in the next
// chunk.
func (p *Parser) nextLine() ([]byte, bool) {
	buf := p.in.Backing()
	for p.scanE > p.scanB {
		i := bytes.Index(buf[p.scanB:p.scanE], buffer.CRLF)
		if i < 0 {
			return nil, false
		}
		crlfPos := p.scanB + i
		crlfEnd := crlfPos + len(buffer.CRLF)

		// Header lines (anything after the first line that is not the
		// bare CRLF terminator) may be continued with leading
		// whitespace on the next line.
		if p.haveLine && p.lineE != crlfPos {
			if crlfEnd == p.scanE {
				// The line ends exactly at the window end; the next
				// chunk may start with a fold. Decide later.
				p.savedB = p.scanB
				p.saved = true
				return nil, false
			}
			if c := buf[crlfEnd]; c == ' ' || c == '\t' {
				p.scanB = crlfEnd + 1
				continue
			}
		}

		lineB := p.headB
		if p.haveLine {
			lineB = p.lineE
		}
		p.lineE = crlfEnd
		p.haveLine = true
		p.scanB = crlfEnd
		return buf[lineB:crlfEnd], true
	}
	return nil, false
}

func (p *Parser) parseRequestLine(line []byte) ParseStatus {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		p.log.Debugf("request line: no method")
		return ParseTerminate
	}
	p.Method = line[:sp1]

	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 < 0 {
		p.log.Debugf("request line: no space after request URI")
		return ParseTerminate
	}
	if sp2 == 0 {
		p.log.Debugf("request line: empty request URI")
		return ParseTerminate
	}
	p.RequestURI = rest[:sp2]

	ver := rest[sp2+1:]
	if len(ver) <= len(buffer.CRLF) {
		p.log.Debugf("request line: no HTTP version")
		return ParseTerminate
	}
	if st := p.parseVersion(ver[:len(ver)-len(buffer.CRLF)]); st != ParseContinue {
		return st
	}
	if p.Major < 1 || (p.Major == 1 && p.Minor < 1) {
		p.ForceClose = true
	}

	p.handleLine = p.parseRequestHeader
	return p.emit(line)
}

func (p *Parser) parseResponseLine(line []byte) ParseStatus {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		p.log.Debugf("response line: no status code")
		return ParseTerminate
	}
	if st := p.parseVersion(line[:sp1]); st != ParseContinue {
		return st
	}

	rest := line[sp1+1 : len(line)-len(buffer.CRLF)]
	var status []byte
	if sp2 := bytes.IndexByte(rest, ' '); sp2 >= 0 {
		status = rest[:sp2]
		p.Reason = rest[sp2+1:]
	} else {
		status = rest
	}

	code, pos, err := buffer.Stol(status, 10)
	if err != nil || pos != len(status) || code < 100 || code > 999 {
		p.log.Debugf("response line: bad status code")
		return ParseTerminate
	}
	p.StatusCode = int(code)

	if (p.Major > 1 || (p.Major == 1 && p.Minor >= 1)) && !p.ForceClose {
		p.KeepAlive = true
	}

	p.handleLine = p.parseResponseHeader
	return p.emit(line)
}

// parseVersion parses the M.N of an HTTP/M.N token. A missing slash or
// non-numeric version terminates the session.
func (p *Parser) parseVersion(v []byte) ParseStatus {
	if !buffer.HasFoldPrefix(v, httpSlash) {
		p.log.Debugf("bad HTTP version %q", v)
		return ParseTerminate
	}
	mn := v[len(httpSlash):]

	major, pos, err := buffer.Stol(mn, 10)
	if err != nil || pos >= len(mn) || mn[pos] != '.' {
		p.log.Debugf("bad HTTP version %q", v)
		return ParseTerminate
	}
	minor, pos2, err := buffer.Stol(mn[pos+1:], 10)
	if err != nil || pos+1+pos2 != len(mn) {
		p.log.Debugf("bad HTTP version %q", v)
		return ParseTerminate
	}

	p.httpVersion = mn
	p.Major = int(major)
	p.Minor = int(minor)
	return ParseContinue
}

func (p *Parser) parseRequestHeader(line []byte) ParseStatus {
	if len(line) == len(buffer.CRLF) {
		return ParseProceed
	}

	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		p.log.Debugf("header line: no colon")
		return ParseTerminate
	}
	if st := p.emit(line); st != ParseContinue {
		return st
	}

	name := line[:colon]
	value := buffer.TrimOWS(line[colon+1 : len(line)-len(buffer.CRLF)])

	switch {
	case buffer.EqualFold(name, hdrHost):
		return p.parseHostValue(value)
	case buffer.EqualFold(name, hdrContentLength):
		cl, pos, err := buffer.Stol(value, 10)
		if err != nil || pos != len(value) || cl < 0 {
			p.log.Debugf("bad Content-Length %q", value)
			return ParseTerminate
		}
		p.ContentLength = cl
	case buffer.EqualFold(name, hdrTransferEncoding):
		if buffer.EqualFold(value, valChunked) {
			p.Chunked = true
		}
	case buffer.EqualFold(name, hdrCacheControl):
		if buffer.ContainsFold(value, valNoTransform) {
			p.noTransform = true
		}
	case buffer.EqualFold(name, hdrConnection):
		if buffer.EqualFold(value, valClose) {
			p.ForceClose = true
		} else if buffer.EqualFold(value, valKeepAlive) {
			p.ForceClose = false
		}
	case buffer.EqualFold(name, hdrVia):
		p.viaSeen = true
	case buffer.EqualFold(name, hdrXForwardedFor):
		p.xffSeen = true
	}
	return ParseContinue
}

func (p *Parser) parseResponseHeader(line []byte) ParseStatus {
	if len(line) == len(buffer.CRLF) {
		return ParseProceed
	}

	colon := bytes.IndexByte(line, ':')
	if colon < 0 {
		p.log.Debugf("header line: no colon")
		return ParseTerminate
	}
	if st := p.emit(line); st != ParseContinue {
		return st
	}

	name := line[:colon]
	value := buffer.TrimOWS(line[colon+1 : len(line)-len(buffer.CRLF)])

	switch {
	case buffer.EqualFold(name, hdrConnection):
		if buffer.EqualFold(value, valClose) {
			p.ForceClose = true
			p.KeepAlive = false
		} else if buffer.EqualFold(value, valKeepAlive) && !p.ForceClose {
			p.KeepAlive = true
		}
	case buffer.EqualFold(name, hdrContentLength):
		cl, pos, err := buffer.Stol(value, 10)
		if err != nil || pos != len(value) || cl < 0 {
			p.log.Debugf("bad Content-Length %q", value)
			return ParseTerminate
		}
		p.ContentLength = cl
	case buffer.EqualFold(name, hdrTransferEncoding):
		if buffer.EqualFold(value, valChunked) {
			p.Chunked = true
		}
	}
	return ParseContinue
}

// parseHostValue splits an optional :port off the Host value and
// copies the name out of the ring, because it is needed after the head
// is consumed and possibly swapped away.
func (p *Parser) parseHostValue(value []byte) ParseStatus {
	if len(value) == 0 {
		p.log.Debugf("Host header: no value")
		return ParseTerminate
	}

	host := value
	if colon := bytes.IndexByte(value, ':'); colon >= 0 {
		host = value[:colon]
		if portPart := value[colon+1:]; len(portPart) > 0 {
			port, pos, err := buffer.Stol(portPart, 10)
			if err != nil || pos != len(portPart) || port < 1 || port > 65535 {
				p.log.Debugf("Host header: bad port %q", portPart)
				return ParseTerminate
			}
			p.Port = uint16(port)
		}
	}
	if len(host) == 0 || len(host) > dnscache.MaxName {
		p.log.Debugf("Host header: bad name length %d", len(host))
		return ParseTerminate
	}

	p.hostLen = copy(p.hostBuf[:], host)
	return ParseContinue
}

// emit copies a head line to the output ring.
func (p *Parser) emit(line []byte) ParseStatus {
	if !p.out.Append(line) {
		p.log.Errorf("not enough space in output buffer")
		return ParseTerminate
	}
	return ParseContinue
}

// finishHead runs at the CRLFCRLF ending the head: on the request path
// it injects or extends the hop headers before the terminator, then it
// advances the input window past the consumed head. Residual window
// bytes belong to the body.
func (p *Parser) finishHead() ParseStatus {
	if !p.response && !p.noTransform {
		ok := true
		if p.viaSeen {
			ok = ok && p.out.Appendf(", %s %s\r\n", p.httpVersion, p.localIP)
		} else {
			ok = ok && p.out.Appendf("Via: %s %s\r\n", p.httpVersion, p.localIP)
		}
		if p.xffSeen {
			ok = ok && p.out.Appendf(", %s\r\n", p.clientIP)
		} else {
			ok = ok && p.out.Appendf("X-Forwarded-For: %s\r\n", p.clientIP)
		}
		if !ok {
			p.log.Errorf("not enough space in output buffer")
			return ParseTerminate
		}
	}
	if !p.out.Append(buffer.CRLF) {
		p.log.Errorf("not enough space in output buffer")
		return ParseTerminate
	}

	b, _ := p.in.Bounds()
	p.in.Consume(p.lineE - b)

	if !p.Chunked && p.ContentLength != clUnset {
		p.skipChunk = p.ContentLength
	}
	return ParseProceed
}
