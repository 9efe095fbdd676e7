/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package hdr

// Add adds the key, value pair to the header.
// It appends to any existing values associated with key.
func (h Header) Add(key, value string) {
	key = CanonicalHeaderKey(key)
	h[key] = append(h[key], value)
}

// AddJoined folds a repeated header line into the single value the
// HeaderSet invariant requires: when key was already seen, the new
// value is appended to the existing one separated by ", " instead of
// growing a second slice element.
func (h Header) AddJoined(key, value string) {
	key = CanonicalHeaderKey(key)
	if existing := h[key]; len(existing) > 0 {
		h[key] = []string{existing[0] + ", " + value}
		return
	}
	h[key] = []string{value}
}

// Get gets the first value associated with the given key.
// It is case insensitive; CanonicalHeaderKey is used
// to canonicalize the provided key.
// If there are no values associated with the key, Get returns "".
// To access multiple values of a key, or to use non-canonical keys,
// access the map directly.
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	v := h[CanonicalHeaderKey(key)]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

