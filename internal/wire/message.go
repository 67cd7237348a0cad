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

// Package wire implements the photomesh peer wire protocol: a tagged sum
// type of seven message kinds and a length-prefixed, self-describing
// encoding for them. It replaces the source implementation's dynamically
// typed message bag with an explicit versioned schema (one tag byte per
// kind, explicit field layout) per the REDESIGN FLAGS this repository
// carries forward.
package wire

import "github.com/probechain/photomesh/internal/pcommon"

// Tag identifies the kind of a decoded message.
type Tag uint8

const (
	TagJoin Tag = iota + 1
	TagConfig
	TagUpdate
	TagRequestImage
	TagImage
	TagRequestList
	TagList
)

func (t Tag) String() string {
	switch t {
	case TagJoin:
		return "join"
	case TagConfig:
		return "config"
	case TagUpdate:
		return "update"
	case TagRequestImage:
		return "request_image"
	case TagImage:
		return "image"
	case TagRequestList:
		return "request_list"
	case TagList:
		return "list"
	default:
		return "unknown"
	}
}

// Message is implemented by all seven wire message kinds.
type Message interface {
	Tag() Tag
}

// Join is sent by a joining peer to its introducer.
type Join struct {
	Addr pcommon.Addr
}

func (Join) Tag() Tag { return TagJoin }

// PeerSnapshot is one entry of a Config message's net_info: the full
// catalog record for peer ID as seen by the sender at handshake time.
type PeerSnapshot struct {
	ID     pcommon.PeerID
	Addr   pcommon.Addr
	Hashes []pcommon.Hash
	Size   int64
}

// Config answers a Join, assigning the joiner its id and a catalog
// snapshot.
type Config struct {
	FromID  pcommon.PeerID
	NewID   pcommon.PeerID
	NetInfo []PeerSnapshot
}

func (Config) Tag() Tag { return TagConfig }

// Delta is a partial catalog record update: any subset of address,
// hash-set, and size may be present. A nil Addr/Hashes/Size means "field
// not present in this delta", not "clear the field" — Update carries
// separate Add/Remove deltas for that purpose.
type Delta struct {
	Addr   *pcommon.Addr
	Hashes []pcommon.Hash
	Size   *int64
}

// Update propagates catalog changes. All adds are applied before all
// removes (spec invariant).
type Update struct {
	FromID pcommon.PeerID
	Add    map[pcommon.PeerID]Delta
	Remove map[pcommon.PeerID]Delta
}

func (Update) Tag() Tag { return TagUpdate }

// RequestImage asks for the bytes of a single hash, from a client
// (FromID == pcommon.ClientID) or from a peer.
type RequestImage struct {
	FromID pcommon.PeerID
	Hash   pcommon.Hash
}

func (RequestImage) Tag() Tag { return TagRequestImage }

// Image carries the bytes of a single image. Store instructs the receiver
// to admit it into its local store even if it did not request it (the
// replication-on-join and crash-recovery fan-out path).
type Image struct {
	FromID   pcommon.PeerID
	Hash     pcommon.Hash
	Bytes    []byte
	Filename string
	Store    bool
}

func (Image) Tag() Tag { return TagImage }

// RequestList asks for every hash known to the network.
type RequestList struct {
	FromID pcommon.PeerID
}

func (RequestList) Tag() Tag { return TagRequestList }

// List answers a RequestList.
type List struct {
	Hashes []pcommon.Hash
}

func (List) Tag() Tag { return TagList }
