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

package engine

import (
	"net"

	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/wire"
)

// handleRequestList answers a client's request_list on the same connection
// with the union of every known peer's hash-set.
func (e *Engine) handleRequestList(conn net.Conn, m wire.RequestList) {
	if err := e.sendToClient(conn, wire.List{Hashes: e.cat.AllHashes()}); err != nil {
		e.log.Warn("Could not reply to request_list", "err", err)
	}
}

// handleRequestImage serves either a client (from_id=0, reply directly or
// forward and park the request) or a peer (from_id!=0, always served from
// the local store — peers only ask for hashes we're known to hold).
func (e *Engine) handleRequestImage(conn net.Conn, m wire.RequestImage) {
	if m.FromID == pcommon.ClientID {
		e.handleClientRequestImage(conn, m.Hash)
		return
	}

	data, filename, err := e.store.Get(m.Hash)
	if err != nil {
		e.log.Warn("Peer requested a hash we don't hold", "peer", m.FromID, "hash", m.Hash, "err", err)
		return
	}
	e.send(m.FromID, wire.Image{FromID: e.SelfID(), Hash: m.Hash, Bytes: data, Filename: filename})
}

func (e *Engine) handleClientRequestImage(conn net.Conn, hash pcommon.Hash) {
	if e.store.Has(hash) {
		data, filename, err := e.store.Get(hash)
		if err != nil {
			e.log.Warn("Could not read locally-held image for client", "hash", hash, "err", err)
			return
		}
		if err := e.sendToClient(conn, wire.Image{FromID: e.SelfID(), Hash: hash, Bytes: data, Filename: filename}); err != nil {
			e.log.Warn("Could not reply to client request_image", "err", err)
		}
		return
	}

	owner, ok := e.cat.IDByHash(hash)
	if !ok {
		e.log.Warn("Client requested an unknown hash", "hash", hash)
		return
	}

	e.mu.Lock()
	e.clientRequest[conn] = hash
	e.mu.Unlock()

	// Dedup concurrent forwards for the same hash — shared with the crash
	// handler's own forwards (internal/engine/crash.go), keyed identically.
	e.sf.Do(string(hash), func() (interface{}, error) {
		return nil, e.send(owner, wire.RequestImage{FromID: e.SelfID(), Hash: hash})
	})
}

// AdmitLocalHash folds a hash that appeared in the local store by some path
// other than a solicited image transfer (the folder watcher) into the
// catalog and broadcasts it, exactly as handleImage does for a solicited
// admission.
func (e *Engine) AdmitLocalHash(hash pcommon.Hash) {
	e.cat.AddHash(e.SelfID(), hash)
	size := e.store.FolderSizeBytes()
	e.cat.SetSize(e.SelfID(), size)
	e.emit(Event{Kind: "hash_added", Peer: e.SelfID(), Hash: hash})
	e.broadcast(wire.Update{
		FromID: e.SelfID(),
		Add: map[pcommon.PeerID]wire.Delta{
			e.SelfID(): {Hashes: []pcommon.Hash{hash}, Size: &size},
		},
	}, e.SelfID())
}

// handleImage relays to every client still waiting on this hash (clearing
// their client_request entries as it goes — the relay-without-clear defect
// spec.md §9 names is fixed here), then admits the image locally if it was
// solicited by us or arrives with store=true.
func (e *Engine) handleImage(conn net.Conn, m wire.Image) {
	e.mu.Lock()
	var waiters []net.Conn
	for c, h := range e.clientRequest {
		if h == m.Hash {
			waiters = append(waiters, c)
		}
	}
	for _, c := range waiters {
		delete(e.clientRequest, c)
	}
	wasOwnRequest := e.outstandingOwn[m.Hash]
	if wasOwnRequest {
		delete(e.outstandingOwn, m.Hash)
	}
	e.mu.Unlock()

	for _, c := range waiters {
		if err := e.sendToClient(c, m); err != nil {
			e.log.Warn("Could not relay image to client", "hash", m.Hash, "err", err)
		}
	}

	if !wasOwnRequest && !m.Store {
		return
	}

	if err := e.store.Store(m.Hash, m.Bytes, m.Filename); err != nil {
		e.log.Warn("Could not admit delivered image", "hash", m.Hash, "err", err)
		return
	}
	e.cat.AddHash(e.SelfID(), m.Hash)
	size := e.store.FolderSizeBytes()
	e.cat.SetSize(e.SelfID(), size)
	e.emit(Event{Kind: "hash_added", Peer: e.SelfID(), Hash: m.Hash})

	e.broadcast(wire.Update{
		FromID: e.SelfID(),
		Add: map[pcommon.PeerID]wire.Delta{
			e.SelfID(): {Hashes: []pcommon.Hash{m.Hash}, Size: &size},
		},
	}, e.SelfID())
}
