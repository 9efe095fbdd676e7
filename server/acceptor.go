/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package server

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lhttpd/nonsence-ng/httpconn"
	"github.com/lhttpd/nonsence-ng/reactor"
)

// Acceptor is the C5 component. It exclusively owns one listening fd;
// bind+listen itself is deferred to net.ListenTCP (the "thin glue" the
// engine's own spec leaves external), but every accepted connection
// afterward is driven entirely through the reactor, never through a
// goroutine-per-connection blocking Accept loop.
type Acceptor struct {
	rx     *reactor.Reactor
	ln     *net.TCPListener
	lnFile *os.File
	fd     int

	cfg     *Config
	connCfg *httpconn.Config

	conns  map[*httpconn.Connection]struct{}
	closed bool
}

// Listen binds addr, registers the listening fd for readable events on
// rx, and returns an Acceptor ready to hand off connections. Every
// accepted connection is constructed via httpconn.New/NewTLS using a
// Config derived from cfg.
func Listen(rx *reactor.Reactor, addr string, cfg *Config) (*Acceptor, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: resolve %q: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, err
	}
	lnFile, err := ln.File()
	if err != nil {
		ln.Close()
		return nil, err
	}
	fd := int(lnFile.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		lnFile.Close()
		ln.Close()
		return nil, fmt.Errorf("server: set listener non-blocking: %w", err)
	}

	a := &Acceptor{
		rx:      rx,
		ln:      ln,
		lnFile:  lnFile,
		fd:      fd,
		cfg:     cfg,
		connCfg: cfg.connectionConfig(),
		conns:   make(map[*httpconn.Connection]struct{}),
	}
	a.connCfg.Closed = a.forget

	if err := rx.Add(fd, reactor.Readable, a.onReadable, nil); err != nil {
		lnFile.Close()
		ln.Close()
		return nil, err
	}
	return a, nil
}

// Addr reports the listener's bound address, useful when Listen was
// given port 0.
func (a *Acceptor) Addr() net.Addr { return a.ln.Addr() }

func (a *Acceptor) forget(c *httpconn.Connection) {
	delete(a.conns, c)
}

// onReadable drains every connection the kernel has queued before
// giving the reactor back to other fds, the same "loop until EAGAIN"
// discipline Stream's own readable handler follows.
func (a *Acceptor) onReadable(fd int, mask reactor.Interest) {
	for {
		connFd, sa, err := unix.Accept4(a.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			a.cfg.logf("server: accept: %v", err)
			return
		}
		remoteAddr := sockaddrString(sa)
		setKeepAlive(connFd)

		if a.cfg.SSLOptions != nil {
			go a.handshakeTLS(connFd, remoteAddr)
			continue
		}

		c, err := httpconn.New(a.rx, connFd, remoteAddr, false, a.connCfg)
		if err != nil {
			a.cfg.logf("server: %s: %v", remoteAddr, err)
			unix.Close(connFd)
			continue
		}
		a.conns[c] = struct{}{}
	}
}

// handshakeTLS runs off the reactor thread because crypto/tls exposes
// only a blocking Handshake. Once it completes, the Connection is
// constructed back on the reactor thread via AddTimeout — the same
// deferred-completion mechanism Stream itself uses to hand control back
// — so the rest of the engine never observes a Connection appear from
// any thread but its own.
func (a *Acceptor) handshakeTLS(connFd int, remoteAddr string) {
	// crypto/tls needs a net.Conn; os.NewFile takes ownership of connFd,
	// net.FileConn duplicates it for its own use, and closing the File
	// afterward releases our original copy without touching the dup.
	f := os.NewFile(uintptr(connFd), "nonsence-ng-tls-conn")
	netConn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		a.cfg.logf("server: %s: wrap accepted socket: %v", remoteAddr, err)
		return
	}

	tlsConn := tls.Server(netConn, a.cfg.SSLOptions)
	if err := tlsConn.Handshake(); err != nil {
		a.cfg.logf("server: %s: TLS handshake: %v", remoteAddr, err)
		tlsConn.Close()
		return
	}

	a.rx.AddTimeout(time.Now(), func() {
		c := httpconn.NewTLS(a.rx, tlsConn, remoteAddr, a.connCfg)
		a.conns[c] = struct{}{}
	})
}

// Close stops accepting new connections. Already-accepted connections
// are left running; see Shutdown to drain them too.
func (a *Acceptor) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.rx.Remove(a.fd)
	a.lnFile.Close()
	return a.ln.Close()
}

// Shutdown stops accepting new connections, marks every connection
// close-after-response by flipping the shared Config's NoKeepAlive —
// every in-flight Dispatched/Writing connection observes this the next
// time it reaches the keep-alive decision and closes instead of
// re-arming — and immediately force-closes any connection currently
// idle in AwaitingHeaders, which would otherwise sit waiting for a
// request that will never arrive.
func (a *Acceptor) Shutdown() error {
	err := a.Close()
	a.connCfg.NoKeepAlive = true
	for c := range a.conns {
		if c.AwaitingHeaders() {
			c.ForceClose()
		}
	}
	return err
}
