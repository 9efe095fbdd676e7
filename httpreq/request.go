/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package httpreq provides the pure request-line/header parser and the
// Request value a Connection hands to the application callback.
package httpreq

import (
	"net"
	"time"

	"golang.org/x/net/idna"

	. "github.com/lhttpd/nonsence-ng/hdr"
	"github.com/lhttpd/nonsence-ng/mime"
)

// ResponseWriter is the non-owning handle back to the Connection that
// owns this Request's socket. A Connection implements it; Request never
// holds a concrete Connection so the two packages don't import each
// other.
type ResponseWriter interface {
	WriteChunk(chunk []byte, cb func(error))
	Finish()
}

// Request is the C6 value: immutable after construction apart from
// Body, Arguments, Files, and FinishTime. conn is a non-owning handle —
// the Connection strictly outlives the Request it dispatches.
type Request struct {
	Method  string
	URI     string
	Path    string
	Query   string
	Version string
	Header  Header

	Body      []byte
	RemoteIP  string
	Protocol  string // "http" or "https"
	Host      string
	Arguments mime.Arguments
	Files     mime.Files

	conn ResponseWriter

	StartTime  time.Time
	FinishTime *time.Time
}

// New constructs a Request from a parsed Head, the body bytes read for
// it (nil if none), and the connection-level facts (remote_ip/protocol)
// a Connection alone knows about.
func New(head *Head, body []byte, conn ResponseWriter, remoteIP, protocol string) *Request {
	uri := head.Path
	if head.Query != "" {
		uri = head.Path + "?" + head.Query
	}
	return &Request{
		Method:    head.Method,
		URI:       uri,
		Path:      head.Path,
		Query:     head.Query,
		Version:   head.Version,
		Header:    head.Header,
		Body:      body,
		RemoteIP:  remoteIP,
		Protocol:  protocol,
		Host:      normalizeHost(head.Header.Get(Host)),
		Arguments: head.Arguments,
		conn:      conn,
		StartTime: time.Now(),
	}
}

// normalizeHost IDNA-converts a Unicode (internationalized) hostname to
// its ASCII ("punycode") form, the form every downstream comparison
// against a configured virtual-host name expects. The idna Lookup
// profile also maps an ASCII hostname to lower case. A host that idna
// rejects as invalid passes through unchanged — rejecting it outright is
// the Host-header validator's job, not this one's.
func normalizeHost(host string) string {
	hostname, port, err := net.SplitHostPort(host)
	if err != nil {
		hostname, port = host, ""
	}
	ascii, err := idna.Lookup.ToASCII(hostname)
	if err != nil {
		return host
	}
	if port == "" {
		return ascii
	}
	return net.JoinHostPort(ascii, port)
}

// Write forwards chunk to the owning Connection's stream; cb fires once
// it has drained to the socket. A Request with no live Connection (one
// whose Finish has already been observed) must not be written to again;
// that is a contract violation on the caller's part, the same way it
// would be to keep using an invalidated handle in any language.
func (r *Request) Write(chunk []byte, cb func(error)) {
	r.conn.WriteChunk(chunk, cb)
}

// Finish signals that the application is done producing a response.
// The Connection decides keep-alive vs close once the write queue
// drains, and stamps FinishTime at that point.
func (r *Request) Finish() {
	r.conn.Finish()
}

// MarkFinished records the moment the Connection actually finished
// writing this request's response. Called by the Connection, not the
// application.
func (r *Request) MarkFinished(t time.Time) {
	r.FinishTime = &t
}

// MergeFormBody folds a urlencoded or multipart form body's fields into
// Arguments/Files once the Connection has finished reading it. Keys
// already present from the query string are preserved; form values are
// appended, matching the combined-source semantics of frameworks that
// merge query and body parameters into one map.
func (r *Request) MergeFormBody(args mime.Arguments, files mime.Files) {
	if r.Arguments == nil {
		r.Arguments = make(mime.Arguments)
	}
	for k, v := range args {
		r.Arguments[k] = append(r.Arguments[k], v...)
	}
	r.Files = files
}
