/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpconn

import (
	"github.com/lhttpd/nonsence-ng/hdr"
	"github.com/lhttpd/nonsence-ng/httpreq"
)

// decideKeepAlive applies the keep-alive decision table at request
// completion. The branches are evaluated in order and the first that
// applies wins — in particular, once the HTTP/1.1 branch fires it never
// falls through to the Content-Length/method branch below it, which
// only governs HTTP/1.0 requests.
func decideKeepAlive(noKeepAlive bool, req *httpreq.Request) bool {
	if noKeepAlive {
		return false
	}

	connection := req.Header.Get(hdr.Connection)

	if req.Version == "HTTP/1.1" {
		return !hdr.HasToken(connection, hdr.DoClose)
	}

	if req.Header.Get(hdr.ContentLength) != "" || req.Method == "HEAD" || req.Method == "GET" {
		return hdr.HasToken(connection, hdr.DoKeepAlive)
	}

	return false
}
