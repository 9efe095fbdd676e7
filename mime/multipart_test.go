/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package mime

import "testing"

func TestParseFormBodyURLEncoded(t *testing.T) {
	args, files, err := ParseFormBody("application/x-www-form-urlencoded", []byte("a=1&b=2&a=3"))
	if err != nil {
		t.Fatalf("ParseFormBody: %v", err)
	}
	if files != nil {
		t.Fatalf("expected no files, got %v", files)
	}
	if got := args["a"]; len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Fatalf("a = %v, want [1 3]", got)
	}
}

func TestParseFormBodyMultipartField(t *testing.T) {
	body := "--XYZ\r\n" +
		"Content-Disposition: form-data; name=\"field\"\r\n" +
		"\r\n" +
		"hello\r\n" +
		"--XYZ--\r\n"
	args, files, err := ParseFormBody(`multipart/form-data; boundary=XYZ`, []byte(body))
	if err != nil {
		t.Fatalf("ParseFormBody: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %v", files)
	}
	if got := args["field"]; len(got) != 1 || got[0] != "hello" {
		t.Fatalf("field = %v, want [hello]", got)
	}
}

func TestParseFormBodyMultipartFile(t *testing.T) {
	body := "--XYZ\r\n" +
		"Content-Disposition: form-data; name=\"upload\"; filename=\"a.txt\"\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"file contents\r\n" +
		"--XYZ--\r\n"
	args, files, err := ParseFormBody(`multipart/form-data; boundary=XYZ`, []byte(body))
	if err != nil {
		t.Fatalf("ParseFormBody: %v", err)
	}
	if len(args) != 0 {
		t.Fatalf("expected no plain args, got %v", args)
	}
	fh := files["upload"]
	if len(fh) != 1 {
		t.Fatalf("expected one file, got %d", len(fh))
	}
	if fh[0].Filename != "a.txt" || fh[0].ContentType != "text/plain" || string(fh[0].Bytes) != "file contents" {
		t.Fatalf("got %+v", fh[0])
	}
}

func TestParseFormBodyMultipartMissingBoundary(t *testing.T) {
	_, _, err := ParseFormBody("multipart/form-data", []byte("anything"))
	if _, ok := err.(*MalformedBodyError); !ok {
		t.Fatalf("got err %v (%T), want *MalformedBodyError", err, err)
	}
}

func TestParseFormBodyUnknownContentTypeYieldsEmptyMap(t *testing.T) {
	args, files, err := ParseFormBody("text/plain", []byte("irrelevant"))
	if err != nil {
		t.Fatalf("ParseFormBody: %v", err)
	}
	if len(args) != 0 || files != nil {
		t.Fatalf("expected empty result, got args=%v files=%v", args, files)
	}
}
