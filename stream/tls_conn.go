/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package stream

import (
	"crypto/tls"
	"io"
	"sync"
	"time"

	"github.com/lhttpd/nonsence-ng/reactor"
)

type tlsWriteReq struct {
	data []byte
	cb   WriteCallback
}

// TLSConn adapts an already-handshaked *tls.Conn to the Conn interface.
// Unlike Stream it is not single-threaded: crypto/tls only offers a
// blocking Read/Write pair, so a reader goroutine and a writer goroutine
// each pump one of those against the connection and deliver completions
// back onto the reactor thread via AddTimeout(time.Now(), ..), which is
// safe to call from any goroutine. The mutex here is the deliberate
// exception to the rest of the engine's lock-free, single-threaded
// design, made necessary by crypto/tls's API rather than by choice.
type TLSConn struct {
	rx   *reactor.Reactor
	conn *tls.Conn

	mu            sync.Mutex
	readBuf       []byte
	pending       pendingRead
	maxBufferSize int
	closed        bool
	writing       int

	writeCh chan tlsWriteReq
	done    chan struct{}
	onClose func(err error)
}

// NewTLS starts the bridge goroutines for conn, which must already have
// completed its handshake. onClose is invoked on the reactor thread,
// exactly once, the same way Stream's onClose hook is.
func NewTLS(rx *reactor.Reactor, conn *tls.Conn, maxBufferSize int, onClose func(err error)) *TLSConn {
	if maxBufferSize <= 0 {
		maxBufferSize = 100 << 20
	}
	c := &TLSConn{
		rx:            rx,
		conn:          conn,
		maxBufferSize: maxBufferSize,
		writeCh:       make(chan tlsWriteReq, 16),
		done:          make(chan struct{}),
		onClose:       onClose,
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

func (c *TLSConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *TLSConn) Writing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writing > 0
}

func (c *TLSConn) ReadUntil(delim []byte, limit int, cb ReadCallback) {
	c.armRead(pendingRead{kind: readUntilDelim, delim: delim, limit: limit, cb: cb})
}

func (c *TLSConn) ReadBytes(n int, cb ReadCallback) {
	c.armRead(pendingRead{kind: readExactN, n: n, cb: cb})
}

func (c *TLSConn) effectiveLimitLocked(p *pendingRead) int {
	if p.limit > 0 {
		return p.limit
	}
	return c.maxBufferSize
}

func (c *TLSConn) armRead(p pendingRead) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.pending.kind != readNone {
		c.mu.Unlock()
		panic("stream: submitted a second read before the first completed")
	}
	data, rest, ok := extractPending(c.readBuf, &p)
	if ok {
		c.readBuf = rest
		c.mu.Unlock()
		c.rx.AddTimeout(time.Now(), func() { p.cb(data, nil) })
		return
	}
	if len(c.readBuf) > c.effectiveLimitLocked(&p) {
		c.mu.Unlock()
		c.closeWith(&BufferOverflowError{Limit: c.effectiveLimitLocked(&p)})
		return
	}
	c.pending = p
	c.mu.Unlock()
}

func (c *TLSConn) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.onData(append([]byte(nil), buf[:n]...))
		}
		if err != nil {
			c.onReadError(err)
			return
		}
	}
}

func (c *TLSConn) onData(chunk []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.readBuf = append(c.readBuf, chunk...)
	if c.pending.kind == readNone {
		overflow := len(c.readBuf) > c.maxBufferSize
		c.mu.Unlock()
		if overflow {
			c.closeWith(&BufferOverflowError{Limit: c.maxBufferSize})
		}
		return
	}
	data, rest, ok := extractPending(c.readBuf, &c.pending)
	if !ok {
		overflow := len(c.readBuf) > c.effectiveLimitLocked(&c.pending)
		c.mu.Unlock()
		if overflow {
			c.closeWith(&BufferOverflowError{Limit: c.maxBufferSize})
		}
		return
	}
	c.readBuf = rest
	cb := c.pending.cb
	c.pending = pendingRead{}
	c.mu.Unlock()
	c.rx.AddTimeout(time.Now(), func() { cb(data, nil) })
}

func (c *TLSConn) onReadError(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	pending := c.pending
	c.pending = pendingRead{}
	c.mu.Unlock()

	var finalErr error = &PeerClosedError{}
	if err != io.EOF {
		finalErr = &IOError{Op: "read", Err: err}
	}
	c.closeWith(finalErr)
	if pending.kind != readNone {
		cb := pending.cb
		c.rx.AddTimeout(time.Now(), func() { cb(nil, finalErr) })
	}
}

func (c *TLSConn) Write(chunk []byte, cb WriteCallback) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.writing++
	c.mu.Unlock()
	c.writeCh <- tlsWriteReq{data: chunk, cb: cb}
}

func (c *TLSConn) writeLoop() {
	for {
		select {
		case req, ok := <-c.writeCh:
			if !ok {
				return
			}
			_, err := c.conn.Write(req.data)
			c.mu.Lock()
			c.writing--
			c.mu.Unlock()
			if err != nil {
				c.closeWith(&IOError{Op: "write", Err: err})
			}
			if req.cb != nil {
				cb := req.cb
				cbErr := err
				c.rx.AddTimeout(time.Now(), func() { cb(cbErr) })
			}
		case <-c.done:
			return
		}
	}
}

func (c *TLSConn) Close() {
	c.closeWith(nil)
}

func (c *TLSConn) closeWith(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	c.conn.Close()
	if c.onClose != nil {
		cb := c.onClose
		c.rx.AddTimeout(time.Now(), func() { cb(err) })
	}
}
