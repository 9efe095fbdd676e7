/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package stream

import "bytes"

// Conn is the subset of Stream's API that httpconn.Connection drives. A
// *Stream satisfies it directly; TLSConn satisfies it by bridging
// crypto/tls's blocking API onto the reactor thread, since crypto/tls
// exposes no non-blocking, fd-level interface the way a raw socket does.
type Conn interface {
	ReadUntil(delim []byte, limit int, cb ReadCallback)
	ReadBytes(n int, cb ReadCallback)
	Write(chunk []byte, cb WriteCallback)
	Close()
	Closed() bool
	Writing() bool
}

// extractPending attempts to satisfy p against buf, returning the
// resolved bytes, the remaining buffer, and whether it resolved. TLSConn
// uses this directly; Stream has its own in-place variant since it never
// needs to guard the buffer with a mutex.
func extractPending(buf []byte, p *pendingRead) (data, rest []byte, ok bool) {
	switch p.kind {
	case readUntilDelim:
		idx := bytes.Index(buf, p.delim)
		if idx < 0 {
			return nil, buf, false
		}
		end := idx + len(p.delim)
		return append([]byte(nil), buf[:end]...), append([]byte(nil), buf[end:]...), true
	case readExactN:
		if len(buf) < p.n {
			return nil, buf, false
		}
		return append([]byte(nil), buf[:p.n]...), append([]byte(nil), buf[p.n:]...), true
	default:
		return nil, buf, false
	}
}
