/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import "bytes"

// ParseHeaderLines parses a block of "Key: Value" lines, each terminated
// by "\r\n" or a bare "\n", into a Header. A line with no ':', an invalid
// field name, or an invalid field value is skipped rather than rejected
// — consistent with the rest of this parser, one malformed line never
// fails the whole block. At most one leading space is trimmed from the
// value. Repeated keys are folded together via AddJoined. This is the
// grammar shared by a request's header block and a multipart part's
// header block.
func ParseHeaderLines(data []byte) Header {
	h := make(Header)
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			continue
		}
		i := bytes.IndexByte(line, ':')
		if i < 0 {
			continue
		}
		key := string(line[:i])
		value := line[i+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
		if !ValidHeaderFieldName(key) || !ValidHeaderFieldValue(string(value)) {
			continue
		}
		h.AddJoined(key, string(value))
	}
	return h
}
