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

package catalog

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/photomesh/internal/pcommon"
)

func TestAddHashCreatesRecord(t *testing.T) {
	c := New()
	c.AddHash(1, "h1")
	assert.ElementsMatch(t, []pcommon.Hash{"h1"}, c.Hashes(1))
	assert.Contains(t, c.IDs(), pcommon.PeerID(1))
}

func TestAllHashesIsUnion(t *testing.T) {
	c := New()
	c.AddHash(1, "h1")
	c.AddHash(2, "h2")
	c.AddHash(2, "h3")
	got := c.AllHashes()
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	assert.Equal(t, []pcommon.Hash{"h1", "h2", "h3"}, got)
}

func TestMaxIDForNewJoiner(t *testing.T) {
	c := New()
	c.SetAddr(1, pcommon.Addr{Host: "a", Port: 1})
	c.SetAddr(3, pcommon.Addr{Host: "b", Port: 2})
	require.Equal(t, pcommon.PeerID(3), c.MaxID())
	require.Equal(t, pcommon.PeerID(4), c.MaxID()+1)
}

func TestRemoveDeletesEntry(t *testing.T) {
	c := New()
	c.AddHash(1, "h1")
	c.Remove(1)
	assert.Empty(t, c.IDs())
	assert.Empty(t, c.AllHashes())
}

func TestIDByHashFindsAnyHolder(t *testing.T) {
	c := New()
	c.AddHash(1, "h1")
	c.AddHash(2, "h1")
	id, ok := c.IDByHash("h1")
	require.True(t, ok)
	assert.Contains(t, []pcommon.PeerID{1, 2}, id)

	_, ok = c.IDByHash("missing")
	assert.False(t, ok)
}

func TestSortedBySizeThenID(t *testing.T) {
	c := New()
	c.SetSize(3, 100)
	c.SetSize(1, 100)
	c.SetSize(2, 50)
	got := c.SortedBySizeThenID()
	assert.Equal(t, []pcommon.PeerID{2, 1, 3}, got)
}

func TestSnapshotAndReplaceRoundTrip(t *testing.T) {
	c := New()
	c.SetAddr(1, pcommon.Addr{Host: "a", Port: 1})
	c.AddHash(1, "h1")
	c.SetSize(1, 10)

	snap := c.Snapshot()

	other := New()
	other.Replace(snap)
	assert.Equal(t, c.Hashes(1), other.Hashes(1))
	assert.Equal(t, c.GetAddr(1), other.GetAddr(1))
	assert.Equal(t, c.Size(1), other.Size(1))

	// Mutating the copy must not affect the original (deep copy invariant).
	other.AddHash(1, "h2")
	assert.NotEqual(t, c.Hashes(1), other.Hashes(1))
}
