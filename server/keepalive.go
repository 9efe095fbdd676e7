/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// tcpKeepAliveIdleSeconds mirrors the 3-minute keepalive period the
// teacher's tcpKeepAliveListener arms via SetKeepAlivePeriod on every
// connection net.ListenTCP's Accept hands back. Working from raw
// accepted fds rather than *net.TCPConn, the same policy is applied a
// syscall at a time instead.
const tcpKeepAliveIdleSeconds = 3 * 60

// setKeepAlive enables TCP keepalive probing on an accepted connection.
// Errors from setsockopt are ignored: a platform that rejects the option
// neither fails the accept nor gets logged.
func setKeepAlive(fd int) {
	unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, tcpKeepAliveIdleSeconds)
}

// sockaddrString renders an accepted connection's peer address the way
// Request.RemoteIP expects: "ip:port".
func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}
