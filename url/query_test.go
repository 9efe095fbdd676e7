/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package url

import "testing"

func TestParseQueryRepeatedKeyAccumulates(t *testing.T) {
	v, err := ParseQuery("a=1&b=2&a=3")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if got := v["a"]; len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Fatalf("a = %v, want [1 3]", got)
	}
	if v.Get("b") != "2" {
		t.Fatalf("b = %q, want 2", v.Get("b"))
	}
}

func TestParseQueryPlusDecodesToSpace(t *testing.T) {
	v, err := ParseQuery("q=hello+world")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if v.Get("q") != "hello world" {
		t.Fatalf("q = %q, want %q", v.Get("q"), "hello world")
	}
}

func TestParseQueryPercentDecodesByte(t *testing.T) {
	v, err := ParseQuery("name=O%27Brien")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if v.Get("name") != "O'Brien" {
		t.Fatalf("name = %q, want %q", v.Get("name"), "O'Brien")
	}
}

func TestParseQueryMalformedEscapeReturnsError(t *testing.T) {
	_, err := ParseQuery("a=%zz")
	if _, ok := err.(EscapeError); !ok {
		t.Fatalf("got err %v (%T), want EscapeError", err, err)
	}
}

func TestParseQueryCapsAtMaxPairs(t *testing.T) {
	var buf []byte
	for i := 0; i < maxQueryPairs+50; i++ {
		if i > 0 {
			buf = append(buf, '&')
		}
		buf = append(buf, 'x')
	}
	v, err := ParseQuery(string(buf))
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if got := len(v["x"]); got != maxQueryPairs {
		t.Fatalf("len(v[x]) = %d, want %d", got, maxQueryPairs)
	}
}

func TestBareKeyWithNoEqualsDecodesToEmptyValue(t *testing.T) {
	v, err := ParseQuery("flag")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if got, ok := v["flag"]; !ok || got[0] != "" {
		t.Fatalf("flag = %v, want ['']", got)
	}
}

func TestQueryEscapeRoundTrips(t *testing.T) {
	s := "a b/c?d=e&f"
	got, err := QueryUnescape(QueryEscape(s))
	if err != nil {
		t.Fatalf("QueryUnescape: %v", err)
	}
	if got != s {
		t.Fatalf("round trip = %q, want %q", got, s)
	}
}
