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

package connset

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probechain/photomesh/internal/pcommon"
)

func TestSetRecvConnThenIDByRecvConn(t *testing.T) {
	tb := New()
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	tb.SetRecvConn(3, remote)

	id, ok := tb.IDByRecvConn(remote)
	require.True(t, ok)
	assert.EqualValues(t, 3, id)
	assert.True(t, tb.IsPeerConn(remote))

	_, ok = tb.IDByRecvConn(local)
	assert.False(t, ok)
}

func TestSendConnReusesAlreadyIndexedConnection(t *testing.T) {
	tb := New()
	local, remote := net.Pipe()
	defer remote.Close()

	wrapped := tb.SetSendConn(5, local)
	assert.True(t, tb.HasSendConn(5))

	again, err := tb.SendConn(5, pcommon.Addr{Host: "unused", Port: 1})
	require.NoError(t, err)
	assert.Same(t, wrapped, again)
}

func TestForgetClosesAndRemovesBothTables(t *testing.T) {
	tb := New()
	sendLocal, sendRemote := net.Pipe()
	recvLocal, recvRemote := net.Pipe()
	defer sendRemote.Close()
	defer recvLocal.Close()

	tb.SetSendConn(7, sendLocal)
	tb.SetRecvConn(7, recvRemote)

	tb.Forget(7)

	assert.False(t, tb.HasSendConn(7))
	_, ok := tb.IDByRecvConn(recvRemote)
	assert.False(t, ok)
}
