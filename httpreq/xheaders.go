/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpreq

import "net"

const (
	xRealIP        = "X-Real-Ip"
	xForwardedFor  = "X-Forwarded-For"
	xScheme        = "X-Scheme"
	xForwardedProt = "X-Forwarded-Proto"
)

// ApplyXHeaders overlays trusted reverse-proxy headers onto a Request
// already constructed from the socket's own peer address and the
// stream's own TLS-ness. Only called when the server is configured with
// xheaders = true; never trust these headers from an untrusted peer.
//
// remote_ip is replaced by X-Real-Ip or X-Forwarded-For only when that
// value parses as a dotted IPv4 address; otherwise the socket peer
// address is kept as-is. protocol is replaced by X-Scheme or
// X-Forwarded-Proto only when the value is exactly "http" or "https" —
// the source this was ported from tested
// `protocol ~= "http" or protocol ~= "https"`, which is vacuously true
// for every string and so never actually deferred to the header; the
// corrected test below accepts only those two literal values and
// otherwise leaves the default untouched.
func ApplyXHeaders(r *Request) {
	if ip := r.Header.Get(xRealIP); ip != "" && isDottedIPv4(ip) {
		r.RemoteIP = ip
	} else if ip := r.Header.Get(xForwardedFor); ip != "" && isDottedIPv4(ip) {
		r.RemoteIP = ip
	}

	if p := r.Header.Get(xScheme); p == "http" || p == "https" {
		r.Protocol = p
	} else if p := r.Header.Get(xForwardedProt); p == "http" || p == "https" {
		r.Protocol = p
	}
}

func isDottedIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil
}
