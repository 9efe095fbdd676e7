/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package mime decodes a request body according to its Content-Type:
// application/x-www-form-urlencoded and multipart/form-data, the two
// grammars a connection core is obliged to understand. Unlike the
// teacher's streaming multipart.Reader (built for an io.Reader a client
// pulls from incrementally), a request body here has already been
// buffered in full by the time ReadingBody hands it off, so parsing
// works directly against a byte slice rather than a bufio.Reader.
package mime

// Arguments is a key to one-or-many-values map, the same shape produced
// by decoding a query string: a repeated field name accumulates its
// values in the order they appeared in the body.
type Arguments map[string][]string

// FileHeader describes one uploaded file field from a multipart body.
type FileHeader struct {
	Filename    string
	ContentType string
	Bytes       []byte
}

// Files maps a multipart field name to the file(s) submitted under it
// (a field name is only repeated when an <input multiple> client sends
// more than one file under the same name).
type Files map[string][]FileHeader
