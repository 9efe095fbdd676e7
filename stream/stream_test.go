/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package stream

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lhttpd/nonsence-ng/reactor"
)

func newPair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		unix.SetNonblock(fd, true)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func runReactor(t *testing.T, rx *reactor.Reactor) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- rx.Run() }()
	t.Cleanup(func() {
		rx.Stop()
		if err := <-done; err != nil {
			t.Errorf("reactor.Run: %v", err)
		}
		rx.Close()
	})
}

func TestReadUntilResolvesOnNextTickNotSynchronously(t *testing.T) {
	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	a, b := newPair(t)
	unix.Write(b, []byte("GET / HTTP/1.1\r\n\r\n"))
	time.Sleep(5 * time.Millisecond) // let the bytes land before the stream registers

	s, err := New(rx, a, 0, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runReactor(t, rx)

	resolved := false
	done := make(chan struct{})
	s.ReadUntil([]byte("\r\n\r\n"), 0, func(data []byte, err error) {
		resolved = true
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if string(data) != "GET / HTTP/1.1\r\n\r\n" {
			t.Errorf("got %q", data)
		}
		close(done)
	})
	if resolved {
		t.Fatal("ReadUntil resolved synchronously; must defer to next reactor tick")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestReadBytesWaitsForEnoughData(t *testing.T) {
	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	a, b := newPair(t)
	s, err := New(rx, a, 0, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runReactor(t, rx)

	done := make(chan struct{})
	s.ReadBytes(5, func(data []byte, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("got %q, want %q", data, "hello")
		}
		close(done)
	})

	unix.Write(b, []byte("he"))
	time.Sleep(10 * time.Millisecond)
	unix.Write(b, []byte("llo"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestSecondPendingReadPanics(t *testing.T) {
	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	a, _ := newPair(t)
	s, err := New(rx, a, 0, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runReactor(t, rx)

	s.ReadBytes(10, func([]byte, error) {})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic submitting a second pending read")
		}
	}()
	s.ReadBytes(10, func([]byte, error) {})
}

func TestWriteCallbacksFireInSubmissionOrder(t *testing.T) {
	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	a, b := newPair(t)
	s, err := New(rx, a, 0, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runReactor(t, rx)

	var order []int
	done := make(chan struct{})
	s.Write([]byte("one"), func(error) {
		order = append(order, 1)
	})
	s.Write([]byte("two"), func(error) {
		order = append(order, 2)
	})
	s.Write([]byte("three"), func(error) {
		order = append(order, 3)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writes never completed")
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("callbacks fired out of order: %v", order)
	}

	buf := make([]byte, 64)
	n, _ := unix.Read(b, buf)
	if string(buf[:n]) != "onetwothree" {
		t.Fatalf("wire bytes = %q, want %q", buf[:n], "onetwothree")
	}
}

func TestBufferOverflowClosesStream(t *testing.T) {
	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	a, b := newPair(t)
	s, err := New(rx, a, 8, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runReactor(t, rx)

	done := make(chan error, 1)
	s.ReadUntil([]byte("\n"), 0, func(data []byte, err error) {
		done <- err
	})

	unix.Write(b, []byte("0123456789abcdef")) // no newline, exceeds the 8-byte cap

	select {
	case err := <-done:
		if _, ok := err.(*BufferOverflowError); !ok {
			t.Fatalf("got err %v (%T), want *BufferOverflowError", err, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("overflow never reported")
	}
	if !s.Closed() {
		t.Fatal("stream should be closed after overflow")
	}
}
