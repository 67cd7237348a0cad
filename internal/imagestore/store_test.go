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

package imagestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/photomesh/internal/pcommon"
)

// fakeInspector lets tests control hash/pixel/color output per filename
// without needing real codecs decoding JPEG bytes.
type fakeInspector struct {
	byName map[string]Info
}

func (f fakeInspector) Inspect(path string) (Info, error) {
	name := filepath.Base(path)
	info, ok := f.byName[name]
	if !ok {
		return Info{}, os.ErrInvalid
	}
	return info, nil
}

func writeFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644))
}

func TestParseFolderRemovesNonImages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", 10)
	writeFile(t, dir, "a.jpg", 10)

	insp := fakeInspector{byName: map[string]Info{"a.jpg": {Hash: "h1", Pixels: 100, Colors: 5}}}
	s, err := New(dir, insp)
	require.NoError(t, err)

	hashes, err := s.ParseFolder(nil)
	require.NoError(t, err)
	assert.Equal(t, []pcommon.Hash{"h1"}, hashes)

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestParseFolderTieBreakPrefersMorePixels(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "small.jpg", 10)
	writeFile(t, dir, "big.jpg", 20)

	insp := fakeInspector{byName: map[string]Info{
		"small.jpg": {Hash: "dup", Pixels: 100, Colors: 3},
		"big.jpg":   {Hash: "dup", Pixels: 400, Colors: 3},
	}}
	s, err := New(dir, insp)
	require.NoError(t, err)

	hashes, err := s.ParseFolder(nil)
	require.NoError(t, err)
	require.Len(t, hashes, 1)

	_, err = os.Stat(filepath.Join(dir, "small.jpg"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "big.jpg"))
	assert.NoError(t, err)
}

func TestParseFolderTieBreakFallsBackToColorsThenFirstSeen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_first.jpg", 10)
	writeFile(t, dir, "b_fewer_colors.jpg", 11) // differs in bytes, so the colors comparison decides

	insp := fakeInspector{byName: map[string]Info{
		"a_first.jpg":        {Hash: "dup", Pixels: 100, Colors: 3},
		"b_fewer_colors.jpg": {Hash: "dup", Pixels: 100, Colors: 1},
	}}
	s, err := New(dir, insp)
	require.NoError(t, err)

	_, err = s.ParseFolder(nil)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "a_first.jpg"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "b_fewer_colors.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestParseFolderDedupsAgainstNetwork(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jpg", 10)

	insp := fakeInspector{byName: map[string]Info{"a.jpg": {Hash: "already-held", Pixels: 100, Colors: 5}}}
	s, err := New(dir, insp)
	require.NoError(t, err)

	hashes, err := s.ParseFolder(func(h pcommon.Hash) bool { return h == "already-held" })
	require.NoError(t, err)
	assert.Empty(t, hashes)
	_, err = os.Stat(filepath.Join(dir, "a.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestStoreThenGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, fakeInspector{byName: map[string]Info{}})
	require.NoError(t, err)

	require.NoError(t, s.Store("h1", []byte("bytes"), "pic.jpg"))
	assert.True(t, s.Has("h1"))

	data, name, err := s.Get("h1")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), data)
	assert.Equal(t, "pic.jpg", name)
}

func TestEvictRemovesFileAndMapping(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, fakeInspector{byName: map[string]Info{}})
	require.NoError(t, err)
	require.NoError(t, s.Store("h1", []byte("bytes"), "pic.jpg"))

	require.NoError(t, s.Evict("h1"))
	assert.False(t, s.Has("h1"))
	_, _, err = s.Get("h1")
	assert.Error(t, err)
}

func TestFolderSizeBytesSumsFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jpg", 10)
	writeFile(t, dir, "b.jpg", 25)
	s, err := New(dir, fakeInspector{byName: map[string]Info{}})
	require.NoError(t, err)
	assert.EqualValues(t, 35, s.FolderSizeBytes())
}
