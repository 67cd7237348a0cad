// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package plistener is the accept loop and message demultiplexer: one
// listening socket, one read loop per connection standing in for the
// readiness selector, and one worker goroutine per decoded message so a
// slow handler never stalls that connection's subsequent reads.
package plistener

import (
	"context"
	"net"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/plog"
	"github.com/probechain/photomesh/internal/wire"
)

// Handler receives demultiplexed messages and disconnect notifications. It
// is implemented by internal/engine's Engine.
type Handler interface {
	HandleMessage(conn net.Conn, msg wire.Message)
	HandleDisconnect(conn net.Conn)
}

// Listener accepts connections on one local address and demultiplexes
// frames from each onto a Handler.
type Listener struct {
	ln      net.Listener
	handler Handler
	limiter *rate.Limiter
	log     plog.Logger

	quit chan struct{}
}

// Listen binds addr.Port with address reuse semantics (Go's net package
// defaults to SO_REUSEADDR on most platforms) and returns a Listener ready
// to Serve.
func Listen(addr pcommon.Addr, handler Handler) (*Listener, error) {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(int(addr.Port)))
	if err != nil {
		return nil, err
	}
	return &Listener{
		ln:      ln,
		handler: handler,
		limiter: rate.NewLimiter(rate.Limit(50), 100),
		log:     plog.New("component", "plistener", "addr", addr.String()),
		quit:    make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve runs the accept loop until Close is called. It returns nil after
// Close, and the accept error if accepting fails for any other reason.
func (l *Listener) Serve() error {
	for {
		if err := l.limiter.Wait(context.Background()); err != nil {
			l.log.Warn("Accept rate limiter wait failed", "err", err)
		}
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.quit:
				return nil
			default:
			}
			l.log.Warn("Accept failed", "err", err)
			return err
		}
		go l.demux(conn)
	}
}

// Close stops the accept loop.
func (l *Listener) Close() error {
	close(l.quit)
	return l.ln.Close()
}

// demux reads one frame at a time off conn, dispatching each to a fresh
// worker so handler execution never blocks the next read.
func (l *Listener) demux(conn net.Conn) {
	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			l.handler.HandleDisconnect(conn)
			return
		}
		go l.handler.HandleMessage(conn, msg)
	}
}
