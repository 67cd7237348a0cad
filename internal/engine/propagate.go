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

// handleUpdate applies an update's add-deltas before its remove-deltas
// (spec.md §4.5). If the sender is not yet reachable over our outbound
// table, we reply with an empty keep-alive update over a freshly dialed
// connection to them — this is what populates the sender's own outbound
// table so it can detect our crash symmetrically.
func (e *Engine) handleUpdate(conn net.Conn, m wire.Update) {
	if m.FromID != pcommon.ClientID && !e.conns.HasSendConn(m.FromID) {
		if addr := e.cat.GetAddr(m.FromID); !addr.IsZero() {
			e.send(m.FromID, wire.Update{FromID: e.SelfID()})
		}
	}

	for id, delta := range m.Add {
		e.applyDelta(id, delta, true)
	}
	for id, delta := range m.Remove {
		e.applyDelta(id, delta, false)
	}
}

func (e *Engine) applyDelta(id pcommon.PeerID, delta wire.Delta, add bool) {
	if delta.Addr != nil {
		e.cat.SetAddr(id, *delta.Addr)
	}
	for _, h := range delta.Hashes {
		if add {
			e.cat.AddHash(id, h)
			e.emit(Event{Kind: "hash_added", Peer: id, Hash: h})
		} else {
			e.cat.RemoveHash(id, h)
			e.emit(Event{Kind: "hash_removed", Peer: id, Hash: h})
		}
	}
	if delta.Size != nil {
		e.cat.SetSize(id, *delta.Size)
	}
}
