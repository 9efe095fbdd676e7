/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package httpconn implements the C4 component: the per-socket state
// machine that sequences a Stream's asynchronous reads and writes into
// request/response exchanges, honoring keep-alive, Expect: 100-continue,
// and body size limits along the way.
package httpconn

import (
	"crypto/tls"
	"log"
	"strconv"
	"time"

	"github.com/lhttpd/nonsence-ng/hdr"
	"github.com/lhttpd/nonsence-ng/httpreq"
	"github.com/lhttpd/nonsence-ng/mime"
	"github.com/lhttpd/nonsence-ng/reactor"
	"github.com/lhttpd/nonsence-ng/stream"
)

type state int

const (
	awaitingHeaders state = iota
	readingBody
	dispatched
	writing
	closed
)

// continueLine is the one response byte sequence the core synthesizes
// autonomously, ahead of whatever the application eventually writes.
var continueLine = []byte("HTTP/1.1 100 (Continue)\r\n\r\n")

// Config configures every Connection an Acceptor creates.
type Config struct {
	// RequestCallback is the application entry point. Required.
	RequestCallback func(*httpreq.Request)

	// NoKeepAlive, if true, closes the socket after every response
	// regardless of what the request asked for.
	NoKeepAlive bool

	// XHeaders, if true, trusts X-Real-Ip/X-Forwarded-For/X-Scheme from
	// upstream (see httpreq.ApplyXHeaders).
	XHeaders bool

	// MaxBufferSize caps buffered bytes per stream, both for headers and
	// for a request body. 0 defers to the Stream's own default.
	MaxBufferSize int

	// IdleTimeout closes a kept-alive connection that has not started a
	// new request within this long. 0 disables the idle timer.
	IdleTimeout time.Duration

	ErrorLog *log.Logger

	// Closed, if set, is invoked exactly once when the Connection's
	// stream tears down, for any reason. The Acceptor uses this to drop
	// its bookkeeping entry for graceful shutdown; applications that
	// don't track individual connections can leave it nil.
	Closed func(*Connection)
}

// Connection is the C4 state machine. One Connection exclusively owns
// one Stream, and is itself owned by nothing but the reactor's callback
// table (keyed on the stream's fd) once the Acceptor hands it off.
type Connection struct {
	rx     *reactor.Reactor
	stream stream.Conn
	cfg    *Config

	remoteAddr string
	protocol   string // "http" or "https", before any xheaders override

	state state
	req   *httpreq.Request
	head  *httpreq.Head

	finishPending bool
	pendingWrites int

	idleTimer    reactor.TimeoutHandle
	hasIdleTimer bool
}

// New wraps fd (already accepted) as a Connection and arms it to read
// its first request. isTLS determines the request's default protocol
// when xheaders mode doesn't override it.
func New(rx *reactor.Reactor, fd int, remoteAddr string, isTLS bool, cfg *Config) (*Connection, error) {
	c := newConnection(rx, remoteAddr, isTLS, cfg)
	s, err := stream.New(rx, fd, cfg.MaxBufferSize, cfg.ErrorLog, c.onStreamClosed)
	if err != nil {
		return nil, err
	}
	c.stream = s
	c.armNextRequest()
	return c, nil
}

// NewTLS wraps an already-handshaked TLS connection as a Connection, the
// same way New wraps a raw accepted fd. Used by the Acceptor when its
// Config carries SSLOptions.
func NewTLS(rx *reactor.Reactor, conn *tls.Conn, remoteAddr string, cfg *Config) *Connection {
	c := newConnection(rx, remoteAddr, true, cfg)
	c.stream = stream.NewTLS(rx, conn, cfg.MaxBufferSize, c.onStreamClosed)
	c.armNextRequest()
	return c
}

func newConnection(rx *reactor.Reactor, remoteAddr string, isTLS bool, cfg *Config) *Connection {
	protocol := "http"
	if isTLS {
		protocol = "https"
	}
	return &Connection{
		rx:         rx,
		cfg:        cfg,
		remoteAddr: remoteAddr,
		protocol:   protocol,
	}
}

func (c *Connection) logf(format string, args ...any) {
	if c.cfg.ErrorLog != nil {
		c.cfg.ErrorLog.Printf(format, args...)
	}
}

func (c *Connection) armNextRequest() {
	c.state = awaitingHeaders
	c.armIdleTimer()
	c.stream.ReadUntil([]byte("\r\n\r\n"), 0, c.onHeadRead)
}

func (c *Connection) armIdleTimer() {
	if c.cfg.IdleTimeout <= 0 {
		return
	}
	c.idleTimer = c.rx.AddTimeout(time.Now().Add(c.cfg.IdleTimeout), c.onIdleTimeout)
	c.hasIdleTimer = true
}

func (c *Connection) disarmIdleTimer() {
	if !c.hasIdleTimer {
		return
	}
	c.rx.RemoveTimeout(c.idleTimer)
	c.hasIdleTimer = false
}

func (c *Connection) onIdleTimeout() {
	c.hasIdleTimer = false
	if c.state != awaitingHeaders {
		return
	}
	c.logf("httpconn: closing idle connection from %s", c.remoteAddr)
	c.state = closed
	c.stream.Close()
}

func (c *Connection) onStreamClosed(err error) {
	c.disarmIdleTimer()
	if c.cfg.Closed != nil {
		c.cfg.Closed(c)
	}
	if err == nil {
		return
	}
	switch c.state {
	case awaitingHeaders:
		if _, ok := err.(*stream.PeerClosedError); ok {
			return // routine: the peer simply didn't send another request
		}
		c.logf("httpconn: %s: %v", c.remoteAddr, err)
	default:
		c.logf("httpconn: %s: %v (mid-request)", c.remoteAddr, err)
	}
}

// AwaitingHeaders reports whether the Connection is idle, waiting for a
// new request's header block. Used by graceful shutdown to tell which
// connections will never finish on their own and must be force-closed.
func (c *Connection) AwaitingHeaders() bool { return c.state == awaitingHeaders }

// ForceClose closes the connection immediately regardless of its
// current state, bypassing the normal keep-alive/finish sequencing.
// Used by graceful shutdown.
func (c *Connection) ForceClose() {
	if c.state == closed {
		return
	}
	c.state = closed
	c.stream.Close()
}

// onHeadRead resolves the read_until(\r\n\r\n) submitted by
// armNextRequest, or by the previous request's re-arm.
func (c *Connection) onHeadRead(data []byte, err error) {
	c.disarmIdleTimer()
	if err != nil {
		return // the Stream already tore itself down; onStreamClosed logs it
	}

	head, parseErr := httpreq.ParseRequestHead(data)
	if parseErr != nil {
		c.logf("httpconn: %s: %v", c.remoteAddr, parseErr)
		c.state = closed
		c.stream.Close()
		return
	}

	host := head.Header.Get(hdr.Host)
	if host == "" {
		if head.Version == "HTTP/1.1" {
			c.logf("httpconn: %s: missing required Host header", c.remoteAddr)
			c.state = closed
			c.stream.Close()
			return
		}
	} else if !hdr.ValidHostHeader(host) {
		c.logf("httpconn: %s: malformed Host header %q", c.remoteAddr, host)
		c.state = closed
		c.stream.Close()
		return
	}
	c.head = head

	contentLength := head.Header.Get(hdr.ContentLength)
	if contentLength == "" {
		c.dispatch(nil)
		return
	}

	n, numErr := strconv.ParseInt(contentLength, 10, 64)
	if numErr != nil || n < 0 {
		c.logf("httpconn: %s: invalid Content-Length %q", c.remoteAddr, contentLength)
		c.state = closed
		c.stream.Close()
		return
	}

	limit := c.cfg.MaxBufferSize
	if limit <= 0 {
		limit = 100 << 20
	}
	if n > int64(limit) {
		c.logf("httpconn: %s: %v", c.remoteAddr, &PayloadTooLargeError{ContentLength: n, Limit: limit})
		c.state = closed
		c.stream.Close()
		return
	}

	if hdr.HasToken(head.Header.Get(hdr.Expect), "100-continue") {
		c.stream.Write(continueLine, nil)
	}

	c.state = readingBody
	c.stream.ReadBytes(int(n), c.onBodyRead)
}

func (c *Connection) onBodyRead(data []byte, err error) {
	if err != nil {
		return
	}
	c.dispatch(data)
}

// dispatch builds the Request and hands it to the application. Between
// here and the matching Finish, no new read is issued on the stream.
func (c *Connection) dispatch(body []byte) {
	req := httpreq.New(c.head, body, c, c.remoteAddr, c.protocol)
	if c.cfg.XHeaders {
		httpreq.ApplyXHeaders(req)
	}
	if len(body) > 0 {
		if args, files, formErr := mime.ParseFormBody(req.Header.Get(hdr.ContentType), body); formErr == nil {
			req.MergeFormBody(args, files)
		} else {
			c.logf("httpconn: %s: %v", c.remoteAddr, formErr)
		}
	}

	c.state = dispatched
	c.req = req
	c.head = nil
	c.cfg.RequestCallback(req)
}

// WriteChunk implements httpreq.ResponseWriter.
func (c *Connection) WriteChunk(chunk []byte, cb func(error)) {
	if c.req == nil {
		panic("httpconn: Write called with no active request")
	}
	c.state = writing
	c.pendingWrites++
	c.stream.Write(chunk, func(err error) {
		c.pendingWrites--
		if cb != nil {
			cb(err)
		}
		c.maybeFinish()
	})
}

// Finish implements httpreq.ResponseWriter.
func (c *Connection) Finish() {
	if c.req == nil {
		panic("httpconn: Finish called with no active request")
	}
	c.finishPending = true
	c.maybeFinish()
}

func (c *Connection) maybeFinish() {
	if !c.finishPending || c.pendingWrites > 0 {
		return
	}
	req := c.req
	req.MarkFinished(time.Now())
	c.req = nil
	c.finishPending = false

	if decideKeepAlive(c.cfg.NoKeepAlive, req) {
		c.armNextRequest()
		return
	}
	c.state = closed
	c.stream.Close()
}
