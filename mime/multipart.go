/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package mime

import (
	"bytes"
	stdmime "mime"
	"strings"

	. "github.com/lhttpd/nonsence-ng/hdr"
	"github.com/lhttpd/nonsence-ng/url"
)

// maxFormEntries caps how many fields a single multipart body contributes
// to the arguments and files maps, the same hash-flood defense
// url.ParseQuery applies to a query string (and, through it, to a
// urlencoded body).
const maxFormEntries = 256

var (
	crlf = []byte("\r\n")
	lf   = []byte("\n")
)

// ParseFormBody dispatches on contentType: urlencoded bodies decode via
// the query-string grammar, multipart bodies decode into a field map
// plus any uploaded files, and anything else yields an empty map with
// no error — an unrecognized Content-Type is not itself malformed, it
// simply carries no decodable arguments.
func ParseFormBody(contentType string, body []byte) (Arguments, Files, error) {
	switch {
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, nil, &MalformedBodyError{Reason: err.Error()}
		}
		return Arguments(values), nil, nil

	case strings.Contains(contentType, "multipart/form-data"):
		_, params, err := stdmime.ParseMediaType(contentType)
		if err != nil {
			return nil, nil, &MalformedBodyError{Reason: "unparseable Content-Type"}
		}
		boundary := params["boundary"]
		if boundary == "" {
			return nil, nil, &MalformedBodyError{Reason: "missing boundary parameter"}
		}
		return parseMultipart(body, boundary)

	default:
		return Arguments{}, nil, nil
	}
}

// parseMultipart splits body on the "--boundary" delimiter and decodes
// each interior segment as one part: a header block (same grammar as a
// request's header lines), a blank line, and the part body. body is
// fully buffered already, so this works directly against the slice
// rather than incrementally against a reader the way the teacher's
// streaming multipart.Reader does.
func parseMultipart(body []byte, boundary string) (Arguments, Files, error) {
	dashBoundary := append([]byte("--"), boundary...)
	segments := bytes.Split(body, dashBoundary)
	if len(segments) < 3 {
		// need at least: preamble, >=1 part, epilogue
		return nil, nil, &MalformedBodyError{Reason: "boundary delimiter not found"}
	}

	args := make(Arguments)
	files := make(Files)
	entries := 0
	for _, seg := range segments[1 : len(segments)-1] {
		if entries >= maxFormEntries {
			break
		}
		name, filename, contentType, partBody, ok := splitPart(seg)
		if !ok || name == "" {
			continue
		}
		if filename != "" {
			files[name] = append(files[name], FileHeader{
				Filename:    filename,
				ContentType: contentType,
				Bytes:       append([]byte(nil), partBody...),
			})
		} else {
			args[name] = append(args[name], string(partBody))
		}
		entries++
	}
	return args, files, nil
}

// splitPart parses one part's raw bytes (between two boundary markers)
// into its field name, optional filename, Content-Type, and body.
func splitPart(seg []byte) (name, filename, contentType string, body []byte, ok bool) {
	seg = bytes.TrimPrefix(seg, crlf)
	seg = bytes.TrimPrefix(seg, lf)
	seg = trimTrailingNewline(seg)

	idx := bytes.Index(seg, []byte("\r\n\r\n"))
	sepLen := 4
	if idx < 0 {
		idx = bytes.Index(seg, []byte("\n\n"))
		sepLen = 2
	}
	if idx < 0 {
		return "", "", "", nil, false
	}

	header := ParseHeaderLines(seg[:idx])
	body = seg[idx+sepLen:]
	contentType = header.Get(ContentType)

	_, params, err := stdmime.ParseMediaType(header.Get(ContentDisposition))
	if err != nil {
		return "", "", "", nil, false
	}
	return params["name"], params["filename"], contentType, body, true
}

func trimTrailingNewline(b []byte) []byte {
	b = bytes.TrimSuffix(b, crlf)
	return bytes.TrimSuffix(b, lf)
}
