/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package server implements the C5 component: it owns a listening
// socket, bridges its accept queue onto a reactor.Reactor, and hands
// each accepted connection to httpconn as a new Connection.
package server

import (
	"crypto/tls"
	"log"
	"time"

	"github.com/lhttpd/nonsence-ng/httpconn"
	"github.com/lhttpd/nonsence-ng/httpreq"
)

// Config aggregates the Acceptor's own listener-level options with the
// options forwarded to every accepted Connection.
type Config struct {
	// RequestCallback is the application entry point. Required.
	RequestCallback func(*httpreq.Request)

	// NoKeepAlive, if true, closes every connection's socket after its
	// first response regardless of what the request asked for.
	NoKeepAlive bool

	// XHeaders, if true, trusts X-Real-Ip/X-Forwarded-For/X-Scheme from
	// upstream on every accepted connection.
	XHeaders bool

	// SSLOptions, when non-nil, makes every accepted socket a TLS
	// connection handshaked with these parameters before any HTTP
	// parsing begins. TLS setup itself — certificates, cipher suites,
	// client-auth policy — stays entirely the caller's concern; the
	// Acceptor only performs the wrap-and-handshake step.
	SSLOptions *tls.Config

	// MaxBufferSize caps buffered bytes per connection, both for
	// headers and for a request body. 0 defers to a 100 MiB default.
	MaxBufferSize int

	// IdleTimeout closes a kept-alive connection that has not started a
	// new request within this long. 0 disables the idle timer.
	IdleTimeout time.Duration

	ErrorLog *log.Logger
}

// connectionConfig projects Config onto the subset httpconn.Connection
// needs; Closed is filled in by the Acceptor itself to track
// bookkeeping for graceful shutdown.
func (c *Config) connectionConfig() *httpconn.Config {
	return &httpconn.Config{
		RequestCallback: c.RequestCallback,
		NoKeepAlive:     c.NoKeepAlive,
		XHeaders:        c.XHeaders,
		MaxBufferSize:   c.MaxBufferSize,
		IdleTimeout:     c.IdleTimeout,
		ErrorLog:        c.ErrorLog,
	}
}

func (c *Config) logf(format string, args ...any) {
	if c.ErrorLog != nil {
		c.ErrorLog.Printf(format, args...)
	}
}
