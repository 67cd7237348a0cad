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

// Package engine is the control-plane protocol engine: the join / config /
// update / request_image / image / request_list / list state machine, and
// the crash handler it triggers on peer disconnect.
package engine

import (
	"net"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/probechain/photomesh/internal/catalog"
	"github.com/probechain/photomesh/internal/connset"
	"github.com/probechain/photomesh/internal/imagestore"
	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/plog"
	"github.com/probechain/photomesh/internal/wire"
)

type state int

const (
	stateBootstrap state = iota
	stateJoining
	stateJoined
)

// Event is pushed to an optional observer (internal/statusapi) whenever the
// catalog changes shape, and when the crash handler finds a hash with no
// surviving holder. It is purely observational — no control-plane
// decision ever depends on whether anything is listening for events.
type Event struct {
	Kind string // "peer_joined", "peer_lost", "hash_added", "hash_removed", "image_lost"
	Peer pcommon.PeerID
	Hash pcommon.Hash
}

// Engine drives one daemon's side of the protocol. It implements
// plistener.Handler.
type Engine struct {
	mu    sync.Mutex
	state state

	selfID pcommon.PeerID
	selfAddr pcommon.Addr

	cat   *catalog.Catalog
	conns *connset.Tables
	store *imagestore.Store

	outstandingOwn  map[pcommon.Hash]bool
	clientRequest   map[net.Conn]pcommon.Hash
	clientConnLocks map[net.Conn]*sync.Mutex

	sf singleflight.Group

	onEvent func(Event)

	log plog.Logger
}

// New builds an engine bound to the given catalog, connection tables, and
// local image store. Call Bootstrap or Join to enter the network.
func New(cat *catalog.Catalog, conns *connset.Tables, store *imagestore.Store, selfAddr pcommon.Addr) *Engine {
	return &Engine{
		cat:            cat,
		conns:          conns,
		store:          store,
		selfAddr:       selfAddr,
		outstandingOwn:  make(map[pcommon.Hash]bool),
		clientRequest:   make(map[net.Conn]pcommon.Hash),
		clientConnLocks: make(map[net.Conn]*sync.Mutex),
		log:             plog.New("component", "engine"),
	}
}

// OnEvent registers a callback for catalog-shape changes. Only one observer
// is supported; internal/statusapi is the intended (sole) caller.
func (e *Engine) OnEvent(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvent = fn
}

func (e *Engine) emit(ev Event) {
	e.mu.Lock()
	fn := e.onEvent
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// SelfID returns this daemon's peer id. Zero before Bootstrap/Join
// completes.
func (e *Engine) SelfID() pcommon.PeerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selfID
}

// Bootstrap makes this engine the first peer on the network: self-id := 1,
// parse the local folder with no network-dedup, enter joined. No outbound
// activity, per spec.md §4.5.
func (e *Engine) Bootstrap() error {
	e.mu.Lock()
	e.selfID = 1
	e.state = stateBootstrap
	e.mu.Unlock()

	hashes, err := e.store.ParseFolder(nil)
	if err != nil {
		return err
	}
	e.cat.SetAddr(1, e.selfAddr)
	for _, h := range hashes {
		e.cat.AddHash(1, h)
	}
	e.cat.SetSize(1, e.store.FolderSizeBytes())

	e.mu.Lock()
	e.state = stateJoined
	e.mu.Unlock()
	e.log.Info("Bootstrapped network", "self", e.selfID, "images", len(hashes))
	return nil
}

// HandleMessage implements plistener.Handler.
func (e *Engine) HandleMessage(conn net.Conn, msg wire.Message) {
	if id, ok := senderID(msg); ok && id != pcommon.ClientID && msg.Tag() != wire.TagJoin {
		e.conns.SetRecvConn(id, conn)
	}

	switch m := msg.(type) {
	case wire.Join:
		e.handleJoin(conn, m)
	case wire.Config:
		e.handleConfig(conn, m)
	case wire.Update:
		e.handleUpdate(conn, m)
	case wire.RequestImage:
		e.handleRequestImage(conn, m)
	case wire.Image:
		e.handleImage(conn, m)
	case wire.RequestList:
		e.handleRequestList(conn, m)
	case wire.List:
		e.log.Debug("Ignoring unsolicited list message", "remote", conn.RemoteAddr())
	default:
		e.log.Warn("Unhandled message kind", "tag", msg.Tag())
	}
}

// HandleDisconnect implements plistener.Handler. A disconnect on a
// connection indexed as a peer's inbound path is a crash (§4.6); otherwise
// it is an ordinary client disconnect and only clears pending client
// requests against that connection.
func (e *Engine) HandleDisconnect(conn net.Conn) {
	if e.conns.IsPeerConn(conn) {
		id, _ := e.conns.IDByRecvConn(conn)
		e.handleCrash(id)
		return
	}
	e.log.Debug("Client disconnected", "remote", conn.RemoteAddr())
	e.mu.Lock()
	delete(e.clientRequest, conn)
	delete(e.clientConnLocks, conn)
	e.mu.Unlock()
}

// sendToClient writes msg to a client connection, serialized against any
// other reply in flight on that same connection (the client-side
// counterpart to connset.Conn's per-peer send lock — clients are never
// indexed in connset since id=0 is not a peer).
func (e *Engine) sendToClient(conn net.Conn, msg wire.Message) error {
	e.mu.Lock()
	mu, ok := e.clientConnLocks[conn]
	if !ok {
		mu = &sync.Mutex{}
		e.clientConnLocks[conn] = mu
	}
	e.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	return wire.WriteMessage(conn, msg)
}

// senderID extracts from_id from the message kinds that carry one.
func senderID(msg wire.Message) (pcommon.PeerID, bool) {
	switch m := msg.(type) {
	case wire.Config:
		return m.FromID, true
	case wire.Update:
		return m.FromID, true
	case wire.RequestImage:
		return m.FromID, true
	case wire.Image:
		return m.FromID, true
	case wire.RequestList:
		return m.FromID, true
	}
	return 0, false
}

func (e *Engine) send(id pcommon.PeerID, msg wire.Message) error {
	addr := e.cat.GetAddr(id)
	c, err := e.conns.SendConn(id, addr)
	if err != nil {
		e.log.Warn("Outbound connect failed", "peer", id, "err", err)
		return err
	}
	if err := c.Send(msg); err != nil {
		e.log.Warn("Send failed", "peer", id, "err", err)
		return err
	}
	return nil
}

// broadcast sends msg to every known peer except those listed in exclude
// (typically self, and on join, the joiner itself).
func (e *Engine) broadcast(msg wire.Message, exclude ...pcommon.PeerID) {
	skip := make(map[pcommon.PeerID]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	for _, id := range e.cat.IDs() {
		if skip[id] {
			continue
		}
		e.send(id, msg)
	}
}
