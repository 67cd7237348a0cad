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
	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/wire"
)

// handleCrash is spec.md §4.6 in full: snapshot the crashed peer's hashes,
// forget it, elect a designated recoverer by (folder size, id) ascending,
// and — only if this engine is the designated peer — re-replicate every
// lost hash from wherever it still lives, or onto the backup when the
// holder IDByHash picks is this engine itself.
func (e *Engine) handleCrash(crashed pcommon.PeerID) {
	lostHashes := e.cat.Hashes(crashed)
	e.cat.Remove(crashed)
	e.conns.Forget(crashed)
	e.emit(Event{Kind: "peer_lost", Peer: crashed})
	e.log.Warn("Peer crashed", "peer", crashed, "lost_hashes", len(lostHashes))

	survivors := e.cat.SortedBySizeThenID()
	if len(survivors) <= 1 {
		return // self is the only survivor
	}
	designated, backup := survivors[0], survivors[1]
	if designated != e.SelfID() {
		return // only the designated peer acts; others update via subsequent broadcasts
	}

	for _, h := range lostHashes {
		e.recoverHash(h, backup)
	}
}

func (e *Engine) recoverHash(h pcommon.Hash, backup pcommon.PeerID) {
	owner, ok := e.cat.IDByHash(h)
	switch {
	case ok && owner != e.SelfID():
		e.mu.Lock()
		e.outstandingOwn[h] = true
		e.mu.Unlock()
		// Shared singleflight key with internal/engine/imageflow.go's client
		// forward path, so a crash recovery racing an ordinary client
		// request for the same hash issues only one upstream request.
		e.sf.Do(string(h), func() (interface{}, error) {
			return nil, e.send(owner, wire.RequestImage{FromID: e.SelfID(), Hash: h})
		})

	case ok && owner == e.SelfID():
		data, filename, err := e.store.Get(h)
		if err != nil {
			e.log.Warn("Could not read image for re-replication", "hash", h, "err", err)
			return
		}
		if err := e.send(backup, wire.Image{FromID: e.SelfID(), Hash: h, Bytes: data, Filename: filename, Store: true}); err != nil {
			e.log.Warn("Re-replication send failed", "hash", h, "backup", backup, "err", err)
		}

	default:
		e.log.Error("Image lost, no surviving holder", "hash", h)
		e.emit(Event{Kind: "image_lost", Hash: h})
	}
}
