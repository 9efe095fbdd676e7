/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

import "golang.org/x/net/http/httpguts"

// ValidHeaderFieldName reports whether v is a valid HTTP header field
// name token (RFC 7230 §3.2.6).
func ValidHeaderFieldName(v string) bool { return httpguts.ValidHeaderFieldName(v) }

// ValidHeaderFieldValue reports whether v contains no bytes forbidden in
// an HTTP header field value (control bytes other than horizontal tab).
func ValidHeaderFieldValue(v string) bool { return httpguts.ValidHeaderFieldValue(v) }

// ValidHostHeader reports whether v is syntactically valid as the value
// of a Host header.
func ValidHostHeader(v string) bool { return httpguts.ValidHostHeader(v) }
