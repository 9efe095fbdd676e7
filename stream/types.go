/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package stream implements the non-blocking, buffered, completion-style
// read/write abstraction (C2) that sits on top of one socket and is driven
// by a reactor.Reactor.
package stream

import (
	"log"

	"github.com/lhttpd/nonsence-ng/reactor"
)

type readKind int

const (
	readNone readKind = iota
	readUntilDelim
	readExactN
)

// ReadCallback receives the bytes resolved by ReadUntil/ReadBytes, or a
// non-nil err (BufferOverflowError, PeerClosedError, IOError) if the
// stream closed before the read could be satisfied.
type ReadCallback func(data []byte, err error)

// WriteCallback fires once a chunk passed to Write has been fully flushed
// to the socket. TLSConn also fires it with a non-nil err when writing the
// chunk fails; a chunk still queued when the stream closes has its
// callback dropped, never invoked.
type WriteCallback func(err error)

type pendingRead struct {
	kind  readKind
	delim []byte
	limit int // operation-specific cap; 0 means "use MaxBufferSize"
	n     int
	cb    ReadCallback
}

type writeItem struct {
	data    []byte
	written int
	cb      WriteCallback
}

// Stream is the C2 component: a growable read buffer, at most one pending
// read request, an ordered write queue, and a closed flag, all driven by
// readable/writable events from a single reactor.Reactor. None of its
// methods are safe to call from a goroutine other than the reactor's —
// the whole engine is single-threaded cooperative by design, so unlike
// the teacher's conn/body types Stream carries no mutex at all.
type Stream struct {
	rx  *reactor.Reactor
	fd  int
	log *log.Logger

	readBuf       []byte
	maxBufferSize int
	pending       pendingRead

	writeQueue []writeItem
	wantWrite  bool // whether Writable is currently part of our interest mask

	closed bool

	onClose func(err error) // Connection hook: learns why the stream died
}
