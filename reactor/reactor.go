/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package reactor

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// New creates a Reactor backed by an epoll instance. The caller owns the
// returned value and must eventually call Close once Run has returned.
func New(opts ...Option) (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	r := &Reactor{
		epfd:   epfd,
		wakeFd: wakeFd,
		regs:   make(map[int]*registration),
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFd)
		return nil, fmt.Errorf("reactor: registering wake fd: %w", err)
	}
	return r, nil
}

func (r *Reactor) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

// toEpollEvents converts the public Interest mask to the raw epoll bitmask.
// Level-triggered by design: simpler to reason about than edge-triggered
// and the two are behaviorally interchangeable here since every readable
// callback drains the socket until EAGAIN.
func toEpollEvents(mask Interest) uint32 {
	var ev uint32
	if mask&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Add registers fd for the given interest set. onFault, if non-nil, is
// invoked (on the reactor thread) if cb ever panics; the registration is
// removed before onFault runs so a panicking callback cannot be invoked
// twice for the same readiness storm.
func (r *Reactor) Add(fd int, mask Interest, cb Callback, onFault func(recovered any)) error {
	r.mu.Lock()
	if _, exists := r.regs[fd]; exists {
		r.mu.Unlock()
		return &AlreadyRegisteredError{Fd: fd}
	}
	r.regs[fd] = &registration{fd: fd, mask: mask, cb: cb, onFault: onFault}
	r.mu.Unlock()

	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}); err != nil {
		r.mu.Lock()
		delete(r.regs, fd)
		r.mu.Unlock()
		return fmt.Errorf("reactor: epoll_ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Modify changes the interest set for an already-registered fd.
// Idempotent: setting the same mask again is a cheap no-op from the
// caller's point of view (the underlying epoll_ctl still runs, but it is
// always well-defined to call).
func (r *Reactor) Modify(fd int, mask Interest) error {
	r.mu.Lock()
	reg, exists := r.regs[fd]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("reactor: modify: fd %d not registered", fd)
	}
	reg.mask = mask
	r.mu.Unlock()

	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)})
}

// Remove unregisters fd. Idempotent after the socket has already been
// closed (EBADF from epoll_ctl is swallowed).
func (r *Reactor) Remove(fd int) error {
	r.mu.Lock()
	_, exists := r.regs[fd]
	delete(r.regs, fd)
	r.mu.Unlock()
	if !exists {
		return nil
	}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.EBADF && err != unix.ENOENT {
		return fmt.Errorf("reactor: epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

// wake interrupts a blocked epoll_wait so Stop/AddTimeout/RemoveTimeout
// take effect promptly instead of waiting out whatever timeout is
// currently in flight.
func (r *Reactor) wake() {
	var one [8]byte
	one[7] = 1
	unix.Write(r.wakeFd, one[:])
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(r.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

// Stop causes a subsequent (or currently blocked) Run to return. Safe to
// call from any goroutine.
func (r *Reactor) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.wake()
}

// Close releases the epoll fd and the wake fd. Run must have returned.
func (r *Reactor) Close() error {
	err1 := unix.Close(r.epfd)
	err2 := unix.Close(r.wakeFd)
	if err1 != nil {
		return err1
	}
	return err2
}

const maxEventsPerWait = 256

// Run blocks, dispatching ready callbacks one at a time to completion,
// until Stop is called. No reentrancy: a Callback must never call Run.
func (r *Reactor) Run() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reactor: Run called while already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	events := make([]unix.EpollEvent, maxEventsPerWait)
	for {
		r.mu.Lock()
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			return nil
		}

		due, waitMillis := r.dueTimersAndNextWaitMillis(time.Now())
		for _, cb := range due {
			r.runProtected(-1, 0, func(int, Interest) { cb() })
		}
		if len(due) > 0 {
			// Timers may have armed new work; re-check without blocking
			// before committing to a possibly-unbounded epoll_wait.
			continue
		}

		n, err := unix.EpollWait(r.epfd, events, waitMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("reactor: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			if fd == r.wakeFd {
				r.drainWake()
				continue
			}
			var mask Interest
			if ev.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				mask |= Readable
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				mask |= Writable
			}
			r.dispatch(fd, mask)
		}
	}
}

func (r *Reactor) dispatch(fd int, mask Interest) {
	r.mu.Lock()
	reg, exists := r.regs[fd]
	r.mu.Unlock()
	if !exists {
		return
	}
	r.runProtected(fd, mask, reg.cb)
}

// runProtected isolates one callback invocation: a panic is logged with a
// stack trace and, if the registration supplied one, an onFault hook runs
// so the owning Stream can force-close the fd. The reactor itself keeps
// running regardless of any single connection's failure.
func (r *Reactor) runProtected(fd int, mask Interest, cb Callback) {
	defer func() {
		if rec := recover(); rec != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			r.logf("reactor: callback for fd %d panicked: %v\n%s", fd, rec, buf)

			r.mu.Lock()
			reg, exists := r.regs[fd]
			delete(r.regs, fd)
			r.mu.Unlock()
			if exists && reg.onFault != nil {
				reg.onFault(rec)
			}
		}
	}()
	cb(fd, mask)
}
