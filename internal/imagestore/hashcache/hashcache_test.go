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

package hashcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	want := Entry{Hash: "H1", Pixels: 1024, Colors: 17}
	db.Put("/photos/a.jpg", 2048, 1000, want)

	got, ok := db.Get("/photos/a.jpg", 2048, 1000)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestGetMissesOnSizeOrModTimeChange(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	db.Put("/photos/a.jpg", 2048, 1000, Entry{Hash: "H1", Pixels: 1024, Colors: 17})

	_, ok := db.Get("/photos/a.jpg", 2049, 1000)
	assert.False(t, ok)
	_, ok = db.Get("/photos/a.jpg", 2048, 1001)
	assert.False(t, ok)
}

func TestGetOnNilDBIsSafe(t *testing.T) {
	var db *DB
	_, ok := db.Get("/photos/a.jpg", 1, 1)
	assert.False(t, ok)
	db.Put("/photos/a.jpg", 1, 1, Entry{})
	assert.NoError(t, db.Close())
}
