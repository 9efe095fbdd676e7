/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package url

import "strings"

// maxQueryPairs bounds how many key=value pairs ParseQuery will decode
// from a single query string or urlencoded body, regardless of how many
// more the input actually contains. Without it, an attacker can send a
// few megabytes of "a&a&a&a..." and force the receiving map to grow a
// bucket per pair.
const maxQueryPairs = 256

// Values is an ordered-per-key multimap, the same shape net/url uses:
// most keys carry one value, a repeated key accumulates in append order.
type Values map[string][]string

// Get returns the first value associated with key, or "" if absent.
func (v Values) Get(key string) string {
	vs := v[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Add appends value to key's list.
func (v Values) Add(key, value string) {
	v[key] = append(v[key], value)
}

// Set replaces key's list with a single value.
func (v Values) Set(key, value string) {
	v[key] = []string{value}
}

// ParseQuery decodes an application/x-www-form-urlencoded byte string:
// pairs separated by '&' or ';', key and value separated by the first
// '=' (a bare key with no '=' decodes to an empty value), '+' decoding to
// space and %XX decoding to the matching byte in both key and value.
// A pair with a malformed escape is skipped and decoding goes on with the
// remaining pairs; the values decoded from every other pair are returned
// together with the EscapeError of the first malformed escape.
func ParseQuery(query string) (Values, error) {
	values := make(Values)
	err := parseQuery(values, query)
	return values, err
}

func parseQuery(values Values, query string) (err error) {
	pairs := 0
	for query != "" {
		key := query
		if i := strings.IndexAny(key, "&;"); i >= 0 {
			key, query = key[:i], key[i+1:]
		} else {
			query = ""
		}
		if key == "" {
			continue
		}
		value := ""
		if i := strings.IndexByte(key, '='); i >= 0 {
			key, value = key[:i], key[i+1:]
		}
		key, err1 := QueryUnescape(key)
		if err1 != nil {
			if err == nil {
				err = err1
			}
			continue
		}
		value, err1 = QueryUnescape(value)
		if err1 != nil {
			if err == nil {
				err = err1
			}
			continue
		}
		if pairs >= maxQueryPairs {
			continue
		}
		values.Add(key, value)
		pairs++
	}
	return err
}
