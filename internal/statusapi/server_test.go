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

package statusapi

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/probechain/photomesh/internal/catalog"
	"github.com/probechain/photomesh/internal/imagestore"
	"github.com/probechain/photomesh/internal/pcommon"
)

func TestHandleStatusReportsCatalogSnapshot(t *testing.T) {
	cat := catalog.New()
	cat.SetAddr(1, pcommon.Addr{Host: "127.0.0.1", Port: 9001})
	cat.AddHash(1, "H1")
	cat.SetSize(1, 42)

	store, err := imagestore.New(t.TempDir(), nil)
	require.NoError(t, err)

	s := New(cat, store, pcommon.Addr{Host: "127.0.0.1", Port: 0})

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req, httprouter.Params{})

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Peers, 1)
	require.Equal(t, pcommon.PeerID(1), resp.Peers[0].ID)
	require.ElementsMatch(t, []pcommon.Hash{"H1"}, resp.Peers[0].Hashes)
	require.EqualValues(t, 42, resp.Peers[0].Size)
}

func TestHandleResourcesReportsFolderSize(t *testing.T) {
	store, err := imagestore.New(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Store("H1", []byte("0123456789"), "a.jpg"))

	s := New(catalog.New(), store, pcommon.Addr{Host: "127.0.0.1", Port: 0})

	req := httptest.NewRequest("GET", "/resources", nil)
	rec := httptest.NewRecorder()
	s.handleResources(rec, req, httprouter.Params{})

	var resp resourcesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.EqualValues(t, 10, resp.FolderBytes)
}
