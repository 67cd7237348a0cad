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

	"github.com/probechain/photomesh/internal/catalog"
	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/wire"
)

// Join dials introducer, sends the join handshake, and starts reading
// replies off that same socket — an outbound connection the daemon itself
// opened, so unlike inbound sockets it is demultiplexed here rather than by
// internal/plistener.
func (e *Engine) Join(introducer pcommon.Addr) error {
	conn, err := net.Dial("tcp", introducer.String())
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.state = stateJoining
	e.mu.Unlock()

	if err := wire.WriteMessage(conn, wire.Join{Addr: e.selfAddr}); err != nil {
		conn.Close()
		return err
	}
	go e.demuxOutbound(conn)
	return nil
}

// demuxOutbound mirrors plistener's accept-side demux loop for a connection
// this engine dialed itself.
func (e *Engine) demuxOutbound(conn net.Conn) {
	for {
		msg, err := wire.ReadMessage(conn)
		if err != nil {
			e.HandleDisconnect(conn)
			return
		}
		go e.HandleMessage(conn, msg)
	}
}

// handleJoin is the introducer's side: mint new_id, register the joiner,
// reply with a config snapshot, broadcast its arrival, and — if the network
// was exactly one peer before this join — replicate every local image to
// it (the two-peer bootstrap-replication shortcut, spec.md §4.5).
func (e *Engine) handleJoin(conn net.Conn, m wire.Join) {
	priorIDs := e.cat.IDs()
	newID := e.cat.MaxID() + 1

	e.cat.SetAddr(newID, m.Addr)
	wrapped := e.conns.SetSendConn(newID, conn)
	e.conns.SetRecvConn(newID, conn)

	reply := wire.Config{
		FromID:  e.SelfID(),
		NewID:   newID,
		NetInfo: snapshotToWire(e.cat.Snapshot()),
	}
	if err := wrapped.Send(reply); err != nil {
		e.log.Warn("Could not send config to joiner", "new_id", newID, "err", err)
		return
	}
	e.log.Info("Admitted new peer", "new_id", newID, "addr", m.Addr)
	e.emit(Event{Kind: "peer_joined", Peer: newID})

	e.broadcast(wire.Update{
		FromID: e.SelfID(),
		Add:    map[pcommon.PeerID]wire.Delta{newID: {Addr: &m.Addr}},
	}, e.SelfID(), newID)

	if len(priorIDs) == 1 {
		for _, h := range e.store.Hashes() {
			data, filename, err := e.store.Get(h)
			if err != nil {
				e.log.Warn("Could not read image for bootstrap replication", "hash", h, "err", err)
				continue
			}
			if err := wrapped.Send(wire.Image{FromID: e.SelfID(), Hash: h, Bytes: data, Filename: filename, Store: true}); err != nil {
				e.log.Warn("Bootstrap replication send failed", "hash", h, "err", err)
			}
		}
	}
}

// handleConfig is the joining peer's side: adopt new_id, replace the local
// catalog with net_info, index the introducer's socket, parse the local
// folder (deduping against the network), broadcast self's arrival, and
// distribute one replica of each local image round-robin across the
// network.
func (e *Engine) handleConfig(conn net.Conn, m wire.Config) {
	e.mu.Lock()
	e.selfID = m.NewID
	e.mu.Unlock()

	e.cat.Replace(wireToRecords(m.NetInfo))
	e.conns.SetSendConn(m.FromID, conn)
	e.conns.SetRecvConn(m.FromID, conn)

	hashes, err := e.store.ParseFolder(func(h pcommon.Hash) bool {
		_, known := e.cat.IDByHash(h)
		return known
	})
	if err != nil {
		e.log.Warn("Could not parse folder on join", "err", err)
	}

	e.cat.SetAddr(e.SelfID(), e.selfAddr)
	for _, h := range hashes {
		e.cat.AddHash(e.SelfID(), h)
	}
	size := e.store.FolderSizeBytes()
	e.cat.SetSize(e.SelfID(), size)

	e.broadcast(wire.Update{
		FromID: e.SelfID(),
		Add: map[pcommon.PeerID]wire.Delta{
			e.SelfID(): {Hashes: hashes, Size: &size},
		},
	}, e.SelfID())

	e.distributeRoundRobin(hashes)

	e.mu.Lock()
	e.state = stateJoined
	e.mu.Unlock()
	e.log.Info("Joined network", "self", e.SelfID(), "peers", len(e.cat.IDs()), "images", len(hashes))
}

// distributeRoundRobin sends one store=true replica of each locally-held
// hash to the next peer in a circular, self-excluding ordering of the
// catalog's ids — an approximately balanced placement of a single extra
// copy per image, per spec.md §4.5's stated rationale.
func (e *Engine) distributeRoundRobin(hashes []pcommon.Hash) {
	others := make([]pcommon.PeerID, 0, len(e.cat.IDs()))
	for _, id := range e.cat.IDs() {
		if id != e.SelfID() {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return
	}
	for i, h := range hashes {
		target := others[i%len(others)]
		data, filename, err := e.store.Get(h)
		if err != nil {
			e.log.Warn("Could not read image for distribution", "hash", h, "err", err)
			continue
		}
		if err := e.send(target, wire.Image{FromID: e.SelfID(), Hash: h, Bytes: data, Filename: filename, Store: true}); err != nil {
			e.log.Warn("Distribution send failed", "hash", h, "target", target, "err", err)
		}
	}
}

func snapshotToWire(snap map[pcommon.PeerID]*catalog.Record) []wire.PeerSnapshot {
	out := make([]wire.PeerSnapshot, 0, len(snap))
	for id, r := range snap {
		items := r.Hashes.ToSlice()
		hashes := make([]pcommon.Hash, 0, len(items))
		for _, it := range items {
			hashes = append(hashes, it.(pcommon.Hash))
		}
		out = append(out, wire.PeerSnapshot{ID: id, Addr: r.Addr, Hashes: hashes, Size: r.Size})
	}
	return out
}

func wireToRecords(snaps []wire.PeerSnapshot) map[pcommon.PeerID]*catalog.Record {
	out := make(map[pcommon.PeerID]*catalog.Record, len(snaps))
	for _, s := range snaps {
		out[s.ID] = catalog.NewRecord(s.Addr, s.Hashes, s.Size)
	}
	return out
}
