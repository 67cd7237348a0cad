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

// Package pcommon holds the handful of value types shared by every layer of
// the photomesh daemon: peer identifiers, addresses and the opaque image
// hash key.
package pcommon

import "fmt"

// PeerID uniquely identifies a live peer on the network. Zero is reserved
// and means "the sender is a user client, not a peer".
type PeerID uint64

// ClientID is the sentinel from_id used by client connections.
const ClientID PeerID = 0

// IsClient reports whether id identifies a client rather than a peer.
func (id PeerID) IsClient() bool { return id == ClientID }

func (id PeerID) String() string { return fmt.Sprintf("#%d", uint64(id)) }

// Addr is a host/port pair identifying where a peer's listener can be
// reached. It is distinct from PeerID: addresses are used to open outbound
// connections, ids are used to index catalog/connection state.
type Addr struct {
	Host string
	Port uint16
}

func (a Addr) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// IsZero reports whether the address was never set.
func (a Addr) IsZero() bool { return a.Host == "" && a.Port == 0 }

// Hash is the opaque perceptual-hash equality key for an image. The core
// treats it as an opaque, comparable string — the concrete hashing
// algorithm (the source uses average-hash rendered as ASCII) is an external
// collaborator's concern, not this package's.
type Hash string

func (h Hash) String() string { return string(h) }
