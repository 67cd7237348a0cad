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

package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"github.com/probechain/photomesh/internal/pcommon"
)

// ErrBadFormat is returned when a frame's payload fails to decode into any
// known message kind: a missing required field or an unrecognised tag.
var ErrBadFormat = errors.New("wire: bad format")

// ErrEOF signals a clean peer disconnect: a zero-length frame or a short
// read on the length prefix or the payload. The Demultiplexer treats it as the crash/
// disconnect sentinel, never as a fatal daemon error.
var ErrEOF = errors.New("wire: peer disconnected")

const maxFrameLen = 64 << 20 // 64MiB guards against a corrupt length prefix

// WriteMessage frames and writes msg to w. Callers MUST hold the
// destination connection's send lock for the duration of this call — see
// connset.Conn.
func WriteMessage(w io.Writer, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(payload)))
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(lenPrefix[:]); err != nil {
		return err
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadMessage blocks until one full framed message has arrived on r,
// decodes it, and returns it. It returns ErrEOF on a clean disconnect and
// ErrBadFormat on a malformed payload.
func ReadMessage(r io.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrEOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n == 0 {
		return nil, ErrEOF
	}
	if n > maxFrameLen {
		return nil, ErrBadFormat
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrEOF
		}
		return nil, err
	}
	return decode(payload)
}

// --- encoding ---------------------------------------------------------

type writer struct{ b []byte }

func (w *writer) byte(v byte)   { w.b = append(w.b, v) }
func (w *writer) u16(v uint16)  { w.b = binary.BigEndian.AppendUint16(w.b, v) }
func (w *writer) u32(v uint32)  { w.b = binary.BigEndian.AppendUint32(w.b, v) }
func (w *writer) u64(v uint64)  { w.b = binary.BigEndian.AppendUint64(w.b, v) }
func (w *writer) i64(v int64)   { w.u64(uint64(v)) }
func (w *writer) bytes(v []byte) {
	w.u32(uint32(len(v)))
	w.b = append(w.b, v...)
}
func (w *writer) str(v string)     { w.bytes([]byte(v)) }
func (w *writer) hash(v pcommon.Hash) { w.str(string(v)) }
func (w *writer) addr(a pcommon.Addr) {
	w.str(a.Host)
	w.u16(a.Port)
}
func (w *writer) hashSlice(hs []pcommon.Hash) {
	w.u32(uint32(len(hs)))
	for _, h := range hs {
		w.hash(h)
	}
}

type deltaFlags uint8

const (
	deltaHasAddr deltaFlags = 1 << iota
	deltaHasHashes
	deltaHasSize
)

func (w *writer) delta(d Delta) {
	var flags deltaFlags
	if d.Addr != nil {
		flags |= deltaHasAddr
	}
	if d.Hashes != nil {
		flags |= deltaHasHashes
	}
	if d.Size != nil {
		flags |= deltaHasSize
	}
	w.byte(byte(flags))
	if d.Addr != nil {
		w.addr(*d.Addr)
	}
	if d.Hashes != nil {
		w.hashSlice(d.Hashes)
	}
	if d.Size != nil {
		w.i64(*d.Size)
	}
}

func (w *writer) deltaMap(m map[pcommon.PeerID]Delta) {
	w.u32(uint32(len(m)))
	for id, d := range m {
		w.u64(uint64(id))
		w.delta(d)
	}
}

func encode(msg Message) ([]byte, error) {
	w := &writer{b: make([]byte, 0, 64)}
	w.byte(byte(msg.Tag()))
	switch m := msg.(type) {
	case Join:
		w.addr(m.Addr)
	case Config:
		w.u64(uint64(m.FromID))
		w.u64(uint64(m.NewID))
		w.u32(uint32(len(m.NetInfo)))
		for _, ps := range m.NetInfo {
			w.u64(uint64(ps.ID))
			w.addr(ps.Addr)
			w.hashSlice(ps.Hashes)
			w.i64(ps.Size)
		}
	case Update:
		w.u64(uint64(m.FromID))
		w.deltaMap(m.Add)
		w.deltaMap(m.Remove)
	case RequestImage:
		w.u64(uint64(m.FromID))
		w.hash(m.Hash)
	case Image:
		w.u64(uint64(m.FromID))
		w.hash(m.Hash)
		w.bytes(m.Bytes)
		w.str(m.Filename)
		if m.Store {
			w.byte(1)
		} else {
			w.byte(0)
		}
	case RequestList:
		w.u64(uint64(m.FromID))
	case List:
		w.hashSlice(m.Hashes)
	default:
		return nil, ErrBadFormat
	}
	return w.b, nil
}

// --- decoding -----------------------------------------------------------

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = ErrBadFormat
	}
}

func (r *reader) need(n int) bool {
	if r.err != nil || r.off+n > len(r.b) {
		r.fail()
		return false
	}
	return true
}

func (r *reader) byte() byte {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.b[r.off:])
	r.off += 8
	return v
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) bytes() []byte {
	n := r.u32()
	if r.err != nil || !r.need(int(n)) {
		return nil
	}
	v := make([]byte, n)
	copy(v, r.b[r.off:r.off+int(n)])
	r.off += int(n)
	return v
}

func (r *reader) str() string { return string(r.bytes()) }

func (r *reader) hash() pcommon.Hash { return pcommon.Hash(r.str()) }

func (r *reader) addr() pcommon.Addr {
	host := r.str()
	port := r.u16()
	return pcommon.Addr{Host: host, Port: port}
}

func (r *reader) hashSlice() []pcommon.Hash {
	n := r.u32()
	if r.err != nil || n == 0 {
		return nil
	}
	hs := make([]pcommon.Hash, 0, n)
	for i := uint32(0); i < n; i++ {
		hs = append(hs, r.hash())
	}
	return hs
}

func (r *reader) delta() Delta {
	var d Delta
	flags := deltaFlags(r.byte())
	if flags&deltaHasAddr != 0 {
		a := r.addr()
		d.Addr = &a
	}
	if flags&deltaHasHashes != 0 {
		hs := r.hashSlice()
		if hs == nil {
			hs = []pcommon.Hash{}
		}
		d.Hashes = hs
	}
	if flags&deltaHasSize != 0 {
		sz := r.i64()
		d.Size = &sz
	}
	return d
}

func (r *reader) deltaMap() map[pcommon.PeerID]Delta {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	m := make(map[pcommon.PeerID]Delta, n)
	for i := uint32(0); i < n; i++ {
		id := pcommon.PeerID(r.u64())
		m[id] = r.delta()
	}
	return m
}

func decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, ErrBadFormat
	}
	r := &reader{b: payload}
	tag := Tag(r.byte())
	var msg Message
	switch tag {
	case TagJoin:
		msg = Join{Addr: r.addr()}
	case TagConfig:
		fromID := pcommon.PeerID(r.u64())
		newID := pcommon.PeerID(r.u64())
		n := r.u32()
		info := make([]PeerSnapshot, 0, n)
		for i := uint32(0); r.err == nil && i < n; i++ {
			ps := PeerSnapshot{
				ID:   pcommon.PeerID(r.u64()),
				Addr: r.addr(),
			}
			ps.Hashes = r.hashSlice()
			ps.Size = r.i64()
			info = append(info, ps)
		}
		msg = Config{FromID: fromID, NewID: newID, NetInfo: info}
	case TagUpdate:
		fromID := pcommon.PeerID(r.u64())
		add := r.deltaMap()
		rem := r.deltaMap()
		msg = Update{FromID: fromID, Add: add, Remove: rem}
	case TagRequestImage:
		fromID := pcommon.PeerID(r.u64())
		msg = RequestImage{FromID: fromID, Hash: r.hash()}
	case TagImage:
		fromID := pcommon.PeerID(r.u64())
		hash := r.hash()
		data := r.bytes()
		fname := r.str()
		store := r.byte() != 0
		msg = Image{FromID: fromID, Hash: hash, Bytes: data, Filename: fname, Store: store}
	case TagRequestList:
		msg = RequestList{FromID: pcommon.PeerID(r.u64())}
	case TagList:
		msg = List{Hashes: r.hashSlice()}
	default:
		return nil, ErrBadFormat
	}
	if r.err != nil {
		return nil, r.err
	}
	return msg, nil
}
