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

// Package connset owns the two connection tables spec.md §3/§9 calls for:
// an outbound ("send") table and an inbound ("recv") table, each keyed by
// peer id. Connections never own peers and peers never own connections —
// both are indexed here, resolving the cyclic-reference design note.
package connset

import (
	"net"
	"sync"
	"time"

	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/wire"
)

// Conn wraps a net.Conn with the send-serialization lock spec.md §4.1/§5
// requires: a framed message is never interleaved with another on the same
// connection. One mutex per connection (not one global lock) permits send
// parallelism across distinct peers, per spec.md §9.
type Conn struct {
	net.Conn
	sendMu sync.Mutex
}

// Send writes msg as one complete frame, holding the connection's send
// lock for the duration.
func (c *Conn) Send(msg wire.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return wire.WriteMessage(c.Conn, msg)
}

func wrap(c net.Conn) *Conn { return &Conn{Conn: c} }

// Tables holds the outbound and inbound connection maps for one daemon.
type Tables struct {
	mu   sync.RWMutex
	send map[pcommon.PeerID]*Conn
	recv map[pcommon.PeerID]net.Conn

	dialTimeout time.Duration
}

// New returns an empty set of connection tables.
func New() *Tables {
	return &Tables{
		send:        make(map[pcommon.PeerID]*Conn),
		recv:        make(map[pcommon.PeerID]net.Conn),
		dialTimeout: 10 * time.Second,
	}
}

// SetSendConn indexes an already-open connection as id's outbound path
// (used when a join/config handshake socket becomes that peer's channel).
func (t *Tables) SetSendConn(id pcommon.PeerID, c net.Conn) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	wrapped := wrap(c)
	t.send[id] = wrapped
	return wrapped
}

// SetRecvConn indexes an inbound connection under id.
func (t *Tables) SetRecvConn(id pcommon.PeerID, c net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recv[id] = c
}

// SendConn returns id's outbound connection, dialing addr lazily and
// caching the result if none exists yet. A dial failure is fatal to the
// calling operation and is not retried, per spec.md §5.
func (t *Tables) SendConn(id pcommon.PeerID, addr pcommon.Addr) (*Conn, error) {
	t.mu.RLock()
	c, ok := t.send[id]
	t.mu.RUnlock()
	if ok {
		return c, nil
	}
	conn, err := net.DialTimeout("tcp", addr.String(), t.dialTimeout)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.send[id]; ok {
		// Another goroutine won the race to dial first; keep theirs, drop ours.
		conn.Close()
		return existing, nil
	}
	wrapped := wrap(conn)
	t.send[id] = wrapped
	return wrapped, nil
}

// HasSendConn reports whether id already has an outbound path recorded.
func (t *Tables) HasSendConn(id pcommon.PeerID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.send[id]
	return ok
}

// IDByRecvConn returns the peer id indexed against c in the inbound table,
// used by the demultiplexer to identify which peer crashed on EOF.
func (t *Tables) IDByRecvConn(c net.Conn) (pcommon.PeerID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id, rc := range t.recv {
		if rc == c {
			return id, true
		}
	}
	return 0, false
}

// IsPeerConn reports whether c is indexed as some peer's inbound
// connection — the daemon/client disambiguation spec.md §4.2 and §7 need.
func (t *Tables) IsPeerConn(c net.Conn) bool {
	_, ok := t.IDByRecvConn(c)
	return ok
}

// Forget removes both the send and recv entries for id, closing whichever
// connections it held. Called by the crash handler once a peer's inbound
// connection has reported EOF.
func (t *Tables) Forget(id pcommon.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.send[id]; ok {
		c.Close()
		delete(t.send, id)
	}
	if c, ok := t.recv[id]; ok {
		c.Close()
		delete(t.recv, id)
	}
}
