/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock: %v", err)
		}
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReactorDispatchesReadable(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	a, b := socketpair(t)

	done := make(chan struct{})
	err = r.Add(a, Readable, func(fd int, mask Interest) {
		if mask&Readable == 0 {
			t.Errorf("expected Readable mask, got %v", mask)
		}
		buf := make([]byte, 16)
		n, _ := unix.Read(fd, buf)
		if string(buf[:n]) != "ping" {
			t.Errorf("got %q, want %q", buf[:n], "ping")
		}
		r.Stop()
		close(done)
	}, nil)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		unix.Write(b, []byte("ping"))
	}()

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	if err := <-runDone; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestAddRejectsDuplicateRegistration(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	a, _ := socketpair(t)
	if err := r.Add(a, Readable, func(int, Interest) {}, nil); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := r.Add(a, Readable, func(int, Interest) {}, nil); err == nil {
		t.Fatal("expected error registering fd twice")
	}
}

func TestTimeoutFiresAndCanBeRemoved(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	fired := make(chan struct{})
	r.AddTimeout(time.Now().Add(20*time.Millisecond), func() {
		close(fired)
		r.Stop()
	})
	cancelHandle := r.AddTimeout(time.Now().Add(time.Hour), func() {
		t.Error("canceled timer fired")
	})
	r.RemoveTimeout(cancelHandle)

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run() }()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}
	if err := <-runDone; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestCallbackPanicInvokesOnFaultAndKeepsReactorAlive(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	a, b := socketpair(t)
	faulted := make(chan any, 1)
	r.Add(a, Readable, func(fd int, mask Interest) {
		panic("boom")
	}, func(rec any) {
		faulted <- rec
	})

	// second, healthy fd proves the reactor survives the fault.
	c, d := socketpair(t)
	healthy := make(chan struct{})
	r.Add(c, Readable, func(fd int, mask Interest) {
		buf := make([]byte, 4)
		unix.Read(fd, buf)
		close(healthy)
		r.Stop()
	}, nil)

	go func() {
		unix.Write(b, []byte("x"))
		time.Sleep(10 * time.Millisecond)
		unix.Write(d, []byte("ok"))
	}()

	runDone := make(chan error, 1)
	go func() { runDone <- r.Run() }()

	select {
	case <-faulted:
	case <-time.After(2 * time.Second):
		t.Fatal("onFault never invoked")
	}
	select {
	case <-healthy:
	case <-time.After(2 * time.Second):
		t.Fatal("reactor stopped dispatching after fault")
	}
	if err := <-runDone; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
