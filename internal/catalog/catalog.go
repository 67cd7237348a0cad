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

// Package catalog is the in-memory model of every peer this daemon knows
// about: identifier, address, hash-set, and folder size. It is the shared
// mutable structure the control-plane protocol engine reads and writes; a
// single RWMutex guards it, per the concurrency discipline spec.md §5
// recommends, because id_by_hash scans and update application are not safe
// under lock-free mutation.
package catalog

import (
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/probechain/photomesh/internal/pcommon"
)

// Record is one peer's catalog entry.
type Record struct {
	Addr   pcommon.Addr
	Hashes mapset.Set // of pcommon.Hash
	Size   int64
}

func newRecord() *Record {
	return &Record{Hashes: mapset.NewSet()}
}

// NewRecord builds a Record from a plain hash slice — the shape a Config or
// Update message's net_info/delta arrives in off the wire.
func NewRecord(addr pcommon.Addr, hashes []pcommon.Hash, size int64) *Record {
	set := mapset.NewSet()
	for _, h := range hashes {
		set.Add(h)
	}
	return &Record{Addr: addr, Hashes: set, Size: size}
}

func (r *Record) clone() *Record {
	return &Record{Addr: r.Addr, Hashes: r.Hashes.Clone(), Size: r.Size}
}

// Catalog is the network catalog: id -> {addr, hash-set, size}.
type Catalog struct {
	mu      sync.RWMutex
	records map[pcommon.PeerID]*Record
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{records: make(map[pcommon.PeerID]*Record)}
}

func (c *Catalog) record(id pcommon.PeerID) *Record {
	r, ok := c.records[id]
	if !ok {
		r = newRecord()
		c.records[id] = r
	}
	return r
}

// SetAddr records id's listening address, creating the entry if absent.
func (c *Catalog) SetAddr(id pcommon.PeerID, addr pcommon.Addr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(id).Addr = addr
}

// GetAddr returns id's listening address (the zero Addr if unknown).
func (c *Catalog) GetAddr(id pcommon.PeerID) pcommon.Addr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[id]
	if !ok {
		return pcommon.Addr{}
	}
	return r.Addr
}

// AddHash adds hash to id's hash-set, creating the entry if absent.
func (c *Catalog) AddHash(id pcommon.PeerID, hash pcommon.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(id).Hashes.Add(hash)
}

// RemoveHash discards hash from id's hash-set. A no-op if id is unknown.
func (c *Catalog) RemoveHash(id pcommon.PeerID, hash pcommon.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.records[id]; ok {
		r.Hashes.Remove(hash)
	}
}

// SetSize records id's reported folder size in bytes.
func (c *Catalog) SetSize(id pcommon.PeerID, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(id).Size = n
}

// Size returns id's reported folder size in bytes.
func (c *Catalog) Size(id pcommon.PeerID) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.records[id]; ok {
		return r.Size
	}
	return 0
}

// Hashes returns a snapshot of id's hash-set.
func (c *Catalog) Hashes(id pcommon.PeerID) []pcommon.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[id]
	if !ok {
		return nil
	}
	return toHashes(r.Hashes)
}

// AllHashes returns the union of every known peer's hash-set.
func (c *Catalog) AllHashes() []pcommon.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	union := mapset.NewSet()
	for _, r := range c.records {
		union = union.Union(r.Hashes)
	}
	return toHashes(union)
}

// IDs returns every peer id currently in the catalog, including self.
func (c *Catalog) IDs() []pcommon.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]pcommon.PeerID, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	return ids
}

// MaxID returns the largest known peer id, used by an introducer to mint
// the next id on join (spec.md §3: "max(live_ids) + 1").
func (c *Catalog) MaxID() pcommon.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var max pcommon.PeerID
	for id := range c.records {
		if id > max {
			max = id
		}
	}
	return max
}

// Snapshot returns a deep copy of the entire catalog, suitable for shipping
// as a Config message's net_info.
func (c *Catalog) Snapshot() map[pcommon.PeerID]*Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[pcommon.PeerID]*Record, len(c.records))
	for id, r := range c.records {
		out[id] = r.clone()
	}
	return out
}

// Replace discards the current catalog and installs snapshot wholesale —
// used by a joining peer processing its introducer's Config reply.
func (c *Catalog) Replace(snapshot map[pcommon.PeerID]*Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[pcommon.PeerID]*Record, len(snapshot))
	for id, r := range snapshot {
		c.records[id] = r.clone()
	}
}

// Remove deletes id's entry entirely — called by the crash handler when a
// peer's connection is torn down.
func (c *Catalog) Remove(id pcommon.PeerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, id)
}

// IDByHash returns any one peer id whose hash-set contains hash, or ok=false
// if no known peer holds it. Ties are intentionally unbroken: Go's map
// iteration order is randomized, which matches spec.md's "not deterministic,
// caller must not depend on which" invariant without any extra code.
func (c *Catalog) IDByHash(hash pcommon.Hash) (pcommon.PeerID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, r := range c.records {
		if r.Hashes.Contains(hash) {
			return id, true
		}
	}
	return 0, false
}

// SortedBySizeThenID returns ids ordered by (folder size ascending, id
// ascending) — the crash handler's designated-recoverer election order.
func (c *Catalog) SortedBySizeThenID() []pcommon.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]pcommon.PeerID, 0, len(c.records))
	for id := range c.records {
		ids = append(ids, id)
	}
	sortBySizeThenID(ids, c.records)
	return ids
}

func sortBySizeThenID(ids []pcommon.PeerID, records map[pcommon.PeerID]*Record) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			a, b := ids[j-1], ids[j]
			if less(records, b, a) {
				ids[j-1], ids[j] = ids[j], ids[j-1]
			} else {
				break
			}
		}
	}
}

func less(records map[pcommon.PeerID]*Record, a, b pcommon.PeerID) bool {
	sa, sb := records[a].Size, records[b].Size
	if sa != sb {
		return sa < sb
	}
	return a < b
}

func toHashes(s mapset.Set) []pcommon.Hash {
	items := s.ToSlice()
	hs := make([]pcommon.Hash, 0, len(items))
	for _, it := range items {
		hs = append(hs, it.(pcommon.Hash))
	}
	return hs
}
