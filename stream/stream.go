/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package stream

import (
	"bytes"
	"log"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lhttpd/nonsence-ng/reactor"
)

// defaultScratchSize is how much we try to read from the socket per
// readable event before giving the reactor back to other fds.
const defaultScratchSize = 64 * 1024

// New wraps fd as a Stream registered for readable events on rx. The
// Stream takes ownership of fd: once Close is called (directly, or
// because of an error), fd is closed and unregistered in the same step.
// onClose, if non-nil, is invoked exactly once with the reason the
// stream died (nil for a caller-initiated Close, and for an EOF that
// arrives while no read is pending).
func New(rx *reactor.Reactor, fd int, maxBufferSize int, logger *log.Logger, onClose func(err error)) (*Stream, error) {
	if maxBufferSize <= 0 {
		maxBufferSize = 100 << 20 // 100 MiB, the suggested default.
	}
	s := &Stream{
		rx:            rx,
		fd:            fd,
		log:           logger,
		maxBufferSize: maxBufferSize,
		onClose:       onClose,
	}
	if err := rx.Add(fd, reactor.Readable, s.onReady, s.onCallbackFault); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// Closed reports whether the stream has already torn down its socket.
func (s *Stream) Closed() bool { return s.closed }

// Writing reports whether any queued chunk is still waiting to be
// flushed to the socket.
func (s *Stream) Writing() bool { return len(s.writeQueue) > 0 }

// Fd exposes the underlying descriptor, e.g. for TLS wrapping by a
// caller that needs to hand the raw connection to crypto/tls.
func (s *Stream) Fd() int { return s.fd }

// ReadUntil resolves once the read buffer contains delim; cb receives
// everything up to and including it, consumed from the buffer. limit
// bounds how large the buffer is allowed to grow while searching for
// delim before BufferOverflowError is raised (0 means "use the stream's
// overall MaxBufferSize"). Submitting a second read before the first
// completes is a programming error.
func (s *Stream) ReadUntil(delim []byte, limit int, cb ReadCallback) {
	s.armRead(pendingRead{kind: readUntilDelim, delim: delim, limit: limit, cb: cb})
}

// ReadBytes resolves once at least n bytes are buffered; cb receives
// exactly n bytes, consumed from the buffer.
func (s *Stream) ReadBytes(n int, cb ReadCallback) {
	s.armRead(pendingRead{kind: readExactN, n: n, cb: cb})
}

func (s *Stream) armRead(p pendingRead) {
	if s.closed {
		return
	}
	if s.pending.kind != readNone {
		panic("stream: submitted a second read before the first completed")
	}
	s.pending = p
	if data, ok := s.tryExtract(&s.pending); ok {
		s.pending = pendingRead{}
		s.deferCallback(func() { p.cb(data, nil) })
		return
	}
	if s.overflowed(&p) {
		s.pending = pendingRead{}
		err := &BufferOverflowError{Limit: s.effectiveLimit(&p)}
		s.closeWith(err)
		p.cb(nil, err)
		return
	}
}

// deferCallback implements the "never synchronously" rule: a read that
// is already satisfiable at submission time still only resolves on the
// next reactor tick, via a zero-delay timer, so callers always observe
// uniform completion-on-a-later-tick semantics.
func (s *Stream) deferCallback(f func()) {
	s.rx.AddTimeout(time.Now(), f)
}

func (s *Stream) effectiveLimit(p *pendingRead) int {
	if p.limit > 0 {
		return p.limit
	}
	return s.maxBufferSize
}

func (s *Stream) overflowed(p *pendingRead) bool {
	return len(s.readBuf) > s.effectiveLimit(p)
}

// tryExtract attempts to satisfy p from the current buffer, returning the
// resolved bytes and true on success. On success the matching prefix is
// consumed from readBuf.
func (s *Stream) tryExtract(p *pendingRead) ([]byte, bool) {
	switch p.kind {
	case readUntilDelim:
		idx := bytes.Index(s.readBuf, p.delim)
		if idx < 0 {
			return nil, false
		}
		end := idx + len(p.delim)
		data := append([]byte(nil), s.readBuf[:end]...)
		s.readBuf = append(s.readBuf[:0], s.readBuf[end:]...)
		return data, true
	case readExactN:
		if len(s.readBuf) < p.n {
			return nil, false
		}
		data := append([]byte(nil), s.readBuf[:p.n]...)
		s.readBuf = append(s.readBuf[:0], s.readBuf[p.n:]...)
		return data, true
	default:
		return nil, false
	}
}

// Write appends chunk to the write queue; cb (optional) fires once chunk
// has been fully flushed to the socket, in submission order relative to
// every other queued chunk.
func (s *Stream) Write(chunk []byte, cb WriteCallback) {
	if s.closed {
		return
	}
	s.writeQueue = append(s.writeQueue, writeItem{data: chunk, cb: cb})
	s.ensureWritableInterest()
}

func (s *Stream) ensureWritableInterest() {
	if s.wantWrite {
		return
	}
	s.wantWrite = true
	s.rx.Modify(s.fd, reactor.Readable|reactor.Writable)
}

func (s *Stream) clearWritableInterest() {
	if !s.wantWrite {
		return
	}
	s.wantWrite = false
	s.rx.Modify(s.fd, reactor.Readable)
}

// Close shuts down the socket, marks the stream closed, unregisters it
// from the reactor, and drops (never invokes) any pending read or queued
// write callbacks.
func (s *Stream) Close() {
	s.closeWith(nil)
}

func (s *Stream) closeWith(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.pending = pendingRead{}
	s.writeQueue = nil
	s.rx.Remove(s.fd)
	unix.Close(s.fd)
	if s.onClose != nil {
		s.onClose(err)
	}
}

func (s *Stream) onCallbackFault(recovered any) {
	s.logf("stream: fd %d: callback panicked: %v", s.fd, recovered)
	s.closeWith(&IOError{Op: "callback", Err: errRecovered{recovered}})
}

type errRecovered struct{ v any }

func (e errRecovered) Error() string { return "panic recovered" }

// onReady is the reactor.Callback: dispatches to the readable and/or
// writable halves of the algorithm depending on what fired.
func (s *Stream) onReady(fd int, mask reactor.Interest) {
	if s.closed {
		return
	}
	if mask&reactor.Readable != 0 {
		s.handleReadable()
	}
	if s.closed {
		return
	}
	if mask&reactor.Writable != 0 {
		s.handleWritable()
	}
}

func (s *Stream) handleReadable() {
	scratch := make([]byte, defaultScratchSize)
	sawEOF := false
	var readErr error
	for {
		n, err := unix.Read(s.fd, scratch)
		if n > 0 {
			s.readBuf = append(s.readBuf, scratch[:n]...)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			// Treat any other read error like EOF for teardown purposes,
			// but still surface it distinctly via IOError below.
			readErr = &IOError{Op: "read", Err: err}
			sawEOF = true
			break
		}
		if n == 0 {
			sawEOF = true
			break
		}
		if len(s.readBuf) > s.maxBufferSize {
			break // checked precisely, with the right error, below
		}
	}

	if s.pending.kind != readNone && s.overflowed(&s.pending) {
		cb := s.pending.cb
		err := &BufferOverflowError{Limit: s.effectiveLimit(&s.pending)}
		s.pending = pendingRead{}
		s.closeWith(err)
		cb(nil, err)
		return
	}
	if len(s.readBuf) > s.maxBufferSize {
		s.closeWith(&BufferOverflowError{Limit: s.maxBufferSize})
		return
	}

	if s.pending.kind != readNone {
		if data, ok := s.tryExtract(&s.pending); ok {
			cb := s.pending.cb
			s.pending = pendingRead{}
			cb(data, nil)
			return
		}
	}

	if sawEOF {
		if s.pending.kind != readNone {
			cb := s.pending.cb
			s.pending = pendingRead{}
			var err error = &PeerClosedError{}
			if readErr != nil {
				err = readErr
			}
			s.closeWith(err)
			cb(nil, err)
			return
		}
		s.closeWith(readErr)
	}
}

func (s *Stream) handleWritable() {
	var completed []WriteCallback
	for len(s.writeQueue) > 0 {
		item := &s.writeQueue[0]
		n, err := unix.Write(s.fd, item.data[item.written:])
		if n > 0 {
			item.written += n
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			s.closeWith(&IOError{Op: "write", Err: err})
			for _, cb := range completed {
				if cb != nil {
					cb(nil)
				}
			}
			return
		}
		if item.written < len(item.data) {
			break // partial write; retry next writable tick
		}
		completed = append(completed, item.cb)
		s.writeQueue = s.writeQueue[1:]
	}

	if len(s.writeQueue) == 0 {
		s.clearWritableInterest()
	}
	for _, cb := range completed {
		if cb != nil {
			cb(nil)
		}
	}
}
