/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Command nonsenced is a minimal demonstration server built on the
// engine: it wires server.Listen to a reactor.Reactor and echoes back a
// request's method, path, and headers, exercising the full
// accept-to-response path from a single binary.
package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/lhttpd/nonsence-ng/httpreq"
	"github.com/lhttpd/nonsence-ng/reactor"
	"github.com/lhttpd/nonsence-ng/server"
)

// VERSION is populated via build flags when packaging official binaries.
var VERSION = "SELFBUILD"

func main() {
	app := cli.NewApp()
	app.Name = "nonsenced"
	app.Usage = "asynchronous HTTP/1.x connection engine, demonstration server"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen, l",
			Value: "127.0.0.1:8888",
			Usage: "address to listen on",
		},
		cli.BoolFlag{
			Name:  "xheaders",
			Usage: "trust X-Real-Ip/X-Forwarded-For/X-Scheme from upstream",
		},
		cli.BoolFlag{
			Name:  "no-keepalive",
			Usage: "close every connection after its first response",
		},
		cli.DurationFlag{
			Name:  "idle-timeout",
			Value: 60 * time.Second,
			Usage: "close a kept-alive connection idle longer than this; 0 disables",
		},
		cli.IntFlag{
			Name:  "max-buffer",
			Value: 100 << 20,
			Usage: "maximum buffered bytes per connection, in bytes",
		},
		cli.StringFlag{
			Name:  "cert",
			Usage: "TLS certificate file; enables HTTPS when set together with -key",
		},
		cli.StringFlag{
			Name:  "key",
			Usage: "TLS private key file; enables HTTPS when set together with -cert",
		},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	errLog := log.New(os.Stderr, "nonsenced: ", log.LstdFlags)

	cfg := &server.Config{
		RequestCallback: echoHandler,
		NoKeepAlive:     c.Bool("no-keepalive"),
		XHeaders:        c.Bool("xheaders"),
		MaxBufferSize:   c.Int("max-buffer"),
		IdleTimeout:     c.Duration("idle-timeout"),
		ErrorLog:        errLog,
	}

	if certFile, keyFile := c.String("cert"), c.String("key"); certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return fmt.Errorf("nonsenced: load TLS keypair: %w", err)
		}
		cfg.SSLOptions = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	rx, err := reactor.New(reactor.WithLogger(errLog))
	if err != nil {
		return fmt.Errorf("nonsenced: new reactor: %w", err)
	}
	defer rx.Close()

	addr := c.String("listen")
	accept, err := server.Listen(rx, addr, cfg)
	if err != nil {
		return fmt.Errorf("nonsenced: listen on %q: %w", addr, err)
	}
	log.Printf("nonsenced: listening on %s", accept.Addr())

	return rx.Run()
}

// echoHandler writes a small plain-text summary of the request back to
// the client, exercising Write/Finish and the keep-alive decision on
// every request it serves.
func echoHandler(req *httpreq.Request) {
	var body []byte
	body = append(body, fmt.Sprintf("%s %s %s\r\n", req.Method, req.URI, req.Version)...)
	body = append(body, fmt.Sprintf("Host: %s\r\n", req.Host)...)
	body = append(body, fmt.Sprintf("From: %s (%s)\r\n", req.RemoteIP, req.Protocol)...)
	for k, v := range req.Header {
		body = append(body, fmt.Sprintf("%s: %s\r\n", k, strings.Join(v, ", "))...)
	}
	if len(req.Body) > 0 {
		body = append(body, "\r\n"...)
		body = append(body, req.Body...)
	}

	head := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n", len(body))
	req.Write([]byte(head), nil)
	req.Write(body, nil)
	req.Finish()
}
