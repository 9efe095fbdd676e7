/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpreq

import (
	"bytes"
	"strings"

	. "github.com/lhttpd/nonsence-ng/hdr"
	"github.com/lhttpd/nonsence-ng/mime"
	"github.com/lhttpd/nonsence-ng/url"
)

// Head is the result of parsing a request's start-line and header block,
// before any body has been read. Connection turns this plus the body
// bytes (if any) into a Request.
type Head struct {
	Method  string
	Path    string
	Query   string
	Version string
	Header  Header

	Arguments mime.Arguments
}

// ParseRequestHead parses data, which must end in "\r\n\r\n" (the
// delimiter Stream.ReadUntil was told to search for), into a Head.
// Unparseable request lines and unrecognized versions both fail with
// MalformedHeadError, and a malformed %XX escape in the query string
// fails with url.EscapeError; header lines are parsed permissively — a
// header line with no ':' is simply skipped rather than rejected.
func ParseRequestHead(data []byte) (*Head, error) {
	data = bytes.TrimSuffix(data, []byte("\r\n\r\n"))
	nl := []byte("\r\n")
	if !bytes.Contains(data, nl) {
		nl = []byte("\n")
	}
	lineEnd := bytes.Index(data, nl)
	var requestLine, rest []byte
	if lineEnd < 0 {
		requestLine, rest = data, nil
	} else {
		requestLine, rest = data[:lineEnd], data[lineEnd+len(nl):]
	}

	method, uri, version, err := parseRequestLine(requestLine)
	if err != nil {
		return nil, err
	}

	path, query := splitURI(uri)
	args, argErr := url.ParseQuery(query)
	if argErr != nil {
		// a percent-decode failure in the query string, not a malformed
		// request line: surfaced as its own error kind so callers can
		// tell MalformedEncoding apart from MalformedHead.
		return nil, argErr
	}

	head := &Head{
		Method:    method,
		Path:      path,
		Query:     query,
		Version:   version,
		Header:    ParseHeaderLines(rest),
		Arguments: mime.Arguments(args),
	}
	return head, nil
}

// parseRequestLine extracts "METHOD SP URI SP VERSION" per the grammar:
// method token [A-Za-z-]+, URI runs to the next space, version
// token HTTP/1.0 or HTTP/1.1 exactly.
func parseRequestLine(line []byte) (method, uri, version string, err error) {
	first := bytes.IndexByte(line, ' ')
	if first < 0 {
		return "", "", "", &MalformedHeadError{Reason: "no request line"}
	}
	method = string(line[:first])
	if !isMethodToken(method) {
		return "", "", "", &MalformedHeadError{Reason: "invalid method token"}
	}

	remainder := line[first+1:]
	second := bytes.IndexByte(remainder, ' ')
	if second < 0 {
		return "", "", "", &MalformedHeadError{Reason: "missing version"}
	}
	uri = string(remainder[:second])
	if uri == "" {
		return "", "", "", &MalformedHeadError{Reason: "empty URI"}
	}
	version = string(remainder[second+1:])
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return "", "", "", &MalformedHeadError{Reason: "unrecognized version " + version}
	}
	return method, uri, version, nil
}

func isMethodToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || c == '-') {
			return false
		}
	}
	return true
}

// splitURI separates the request-target at its first '?'.
func splitURI(uri string) (path, query string) {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i], uri[i+1:]
	}
	return uri, ""
}
