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
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/photomesh/internal/catalog"
	"github.com/probechain/photomesh/internal/connset"
	"github.com/probechain/photomesh/internal/imagestore"
	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/plistener"
	"github.com/probechain/photomesh/internal/wire"
)

type fakeInspector map[string]imagestore.Info

func (f fakeInspector) Inspect(path string) (imagestore.Info, error) {
	info, ok := f[filepath.Base(path)]
	if !ok {
		return imagestore.Info{}, os.ErrInvalid
	}
	return info, nil
}

func newTestStore(t *testing.T, insp imagestore.Inspector) (*imagestore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := imagestore.New(dir, insp)
	require.NoError(t, err)
	return s, dir
}

func TestBootstrapEntersJoinedStateWithLocalHashes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("data"), 0o644))
	insp := fakeInspector{"a.jpg": imagestore.Info{Hash: "H1", Pixels: 10, Colors: 2}}
	store, err := imagestore.New(dir, insp)
	require.NoError(t, err)

	cat := catalog.New()
	e := New(cat, connset.New(), store, pcommon.Addr{Host: "127.0.0.1", Port: 9001})
	require.NoError(t, e.Bootstrap())

	assert.EqualValues(t, 1, e.SelfID())
	assert.Equal(t, stateJoined, e.state)
	assert.ElementsMatch(t, []pcommon.Hash{"H1"}, cat.Hashes(1))
}

func TestTwoPeerJoinReplicatesAndConvergesCatalogs(t *testing.T) {
	dirA := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dirA, "a.jpg"), []byte("dataA"), 0o644))
	inspA := fakeInspector{"a.jpg": imagestore.Info{Hash: "H1", Pixels: 10, Colors: 2}}
	storeA, err := imagestore.New(dirA, inspA)
	require.NoError(t, err)

	addrA := pcommon.Addr{Host: "127.0.0.1", Port: 19801}
	engineA := New(catalog.New(), connset.New(), storeA, addrA)
	lnA, err := plistener.Listen(addrA, engineA)
	require.NoError(t, err)
	defer lnA.Close()
	go lnA.Serve()
	require.NoError(t, engineA.Bootstrap())

	dirB := t.TempDir()
	storeB, err := imagestore.New(dirB, nil)
	require.NoError(t, err)
	addrB := pcommon.Addr{Host: "127.0.0.1", Port: 19802}
	engineB := New(catalog.New(), connset.New(), storeB, addrB)
	lnB, err := plistener.Listen(addrB, engineB)
	require.NoError(t, err)
	defer lnB.Close()
	go lnB.Serve()

	require.NoError(t, engineB.Join(addrA))

	require.Eventually(t, func() bool {
		return engineB.SelfID() == 2
	}, 2*time.Second, 10*time.Millisecond, "B never received its assigned id")

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dirB, "a.jpg"))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond, "bootstrap replication never delivered a.jpg to B")

	assert.ElementsMatch(t, []pcommon.Hash{"H1"}, engineB.cat.Hashes(1))
}

func TestCrashHandlerRequestsFromRemainingOwner(t *testing.T) {
	cat := catalog.New()
	conns := connset.New()
	store, _ := newTestStore(t, nil)
	e := New(cat, conns, store, pcommon.Addr{Host: "127.0.0.1", Port: 9100})
	e.selfID = 2 // designated: smallest size

	cat.SetAddr(1, pcommon.Addr{Host: "h1", Port: 1})
	cat.SetSize(1, 100)
	cat.AddHash(1, "H1")

	cat.SetAddr(2, pcommon.Addr{Host: "h2", Port: 2})
	cat.SetSize(2, 10)

	cat.SetAddr(3, pcommon.Addr{Host: "h3", Port: 3})
	cat.SetSize(3, 200)

	cat.SetAddr(4, pcommon.Addr{Host: "h4", Port: 4})
	cat.SetSize(4, 50)
	cat.AddHash(4, "H1") // the crashing peer also held it

	local, remote := net.Pipe()
	conns.SetSendConn(1, local)
	go wire.ReadMessage(remote) // drain so the send doesn't block

	e.handleCrash(4)

	e.mu.Lock()
	own := e.outstandingOwn["H1"]
	e.mu.Unlock()
	assert.True(t, own)
	assert.NotContains(t, cat.IDs(), pcommon.PeerID(4))
}

func TestCrashHandlerReplicatesToBackupWhenSelfIsSoleOwner(t *testing.T) {
	cat := catalog.New()
	conns := connset.New()
	store, _ := newTestStore(t, nil)
	require.NoError(t, store.Store("H2", []byte("bytes"), "b.jpg"))

	e := New(cat, conns, store, pcommon.Addr{Host: "127.0.0.1", Port: 9101})
	e.selfID = 2
	cat.AddHash(2, "H2")
	cat.SetSize(2, 10)
	cat.SetAddr(2, pcommon.Addr{Host: "h2", Port: 2})

	cat.SetSize(3, 200)
	cat.SetAddr(3, pcommon.Addr{Host: "h3", Port: 3})

	cat.SetSize(4, 50)
	cat.SetAddr(4, pcommon.Addr{Host: "h4", Port: 4})
	cat.AddHash(4, "H2")

	local, remote := net.Pipe()
	conns.SetSendConn(3, local)
	received := make(chan wire.Image, 1)
	go func() {
		msg, err := wire.ReadMessage(remote)
		if err != nil {
			return
		}
		if img, ok := msg.(wire.Image); ok {
			received <- img
		}
	}()

	e.handleCrash(4)

	select {
	case img := <-received:
		assert.Equal(t, pcommon.Hash("H2"), img.Hash)
		assert.True(t, img.Store)
	case <-time.After(2 * time.Second):
		t.Fatal("backup never received re-replicated image")
	}
}

func TestCrashHandlerEmitsImageLostWhenNoOwnerRemains(t *testing.T) {
	cat := catalog.New()
	conns := connset.New()
	store, _ := newTestStore(t, nil)
	e := New(cat, conns, store, pcommon.Addr{Host: "127.0.0.1", Port: 9102})
	e.selfID = 2
	cat.SetSize(2, 10)
	cat.SetAddr(2, pcommon.Addr{Host: "h2", Port: 2})
	cat.SetSize(3, 200)
	cat.SetAddr(3, pcommon.Addr{Host: "h3", Port: 3})
	cat.SetSize(4, 50)
	cat.SetAddr(4, pcommon.Addr{Host: "h4", Port: 4})
	cat.AddHash(4, "Honly")

	events := make(chan Event, 4)
	e.OnEvent(func(ev Event) { events <- ev })

	e.handleCrash(4)

	var sawLost bool
	timeout := time.After(2 * time.Second)
	for !sawLost {
		select {
		case ev := <-events:
			if ev.Kind == "image_lost" && ev.Hash == "Honly" {
				sawLost = true
			}
		case <-timeout:
			t.Fatal("never observed image_lost event")
		}
	}
}
