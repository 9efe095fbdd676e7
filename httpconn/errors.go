/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpconn

// PayloadTooLargeError is raised when a request's Content-Length exceeds
// the connection's MaxBufferSize. The connection is closed before any
// body bytes are read and before the application callback fires.
type PayloadTooLargeError struct {
	ContentLength int64
	Limit         int
}

func (e *PayloadTooLargeError) Error() string {
	return "httpconn: Content-Length exceeds buffer limit"
}
