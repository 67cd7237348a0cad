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

// Package hashcache memoizes perceptual-hash inspection results so an
// unchanged file is not re-decoded and re-hashed on every folder parse. It
// holds no catalog or membership state — purely a local, per-file cache —
// so it does not reintroduce the "persistent cluster membership across
// restarts" Non-goal spec.md §1 names.
package hashcache

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/probechain/photomesh/internal/pcommon"
)

// Entry is a cached inspection result.
type Entry struct {
	Hash   pcommon.Hash
	Pixels int64
	Colors int
}

// DB is a tiny on-disk cache, keyed by "path|size|modtime".
type DB struct {
	ldb *leveldb.DB
}

// Open opens (creating if absent) a leveldb cache under dir.
func Open(dir string) (*DB, error) {
	ldb, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &DB{ldb: ldb}, nil
}

// Close releases the underlying leveldb handles.
func (d *DB) Close() error {
	if d == nil || d.ldb == nil {
		return nil
	}
	return d.ldb.Close()
}

func key(path string, size int64, modTimeUnixNano int64) []byte {
	return []byte(fmt.Sprintf("%s|%d|%d", path, size, modTimeUnixNano))
}

// Get returns the cached entry for (path, size, modtime), if present.
func (d *DB) Get(path string, size, modTimeUnixNano int64) (Entry, bool) {
	if d == nil || d.ldb == nil {
		return Entry{}, false
	}
	raw, err := d.ldb.Get(key(path, size, modTimeUnixNano), nil)
	if err != nil {
		return Entry{}, false
	}
	return decodeEntry(raw)
}

// Put records the inspection result for (path, size, modtime).
func (d *DB) Put(path string, size, modTimeUnixNano int64, e Entry) {
	if d == nil || d.ldb == nil {
		return
	}
	_ = d.ldb.Put(key(path, size, modTimeUnixNano), encodeEntry(e), nil)
}

func encodeEntry(e Entry) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.Colors))
	binary.BigEndian.PutUint32(buf[4:8], uint32(e.Pixels))
	return append(buf[:], []byte(e.Hash)...)
}

func decodeEntry(raw []byte) (Entry, bool) {
	if len(raw) < 8 {
		return Entry{}, false
	}
	colors := binary.BigEndian.Uint32(raw[0:4])
	pixels := binary.BigEndian.Uint32(raw[4:8])
	return Entry{
		Hash:   pcommon.Hash(raw[8:]),
		Pixels: int64(pixels),
		Colors: int(colors),
	}, true
}

// FormatKey is exposed for logging/debugging only.
func FormatKey(path string, size, modTimeUnixNano int64) string {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(size, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(modTimeUnixNano, 10))
	return b.String()
}
