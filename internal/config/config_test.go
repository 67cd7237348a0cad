// Copyright 2017 The go-probeum Authors
// This file is part of go-probeum.
//
// go-probeum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-probeum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-probeum. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDecodesDaemonSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photomesh.toml")
	contents := `
[Daemon]
Folder = "/tmp/photos"
Port = 9000
PeerPort = 9001
EnableNAT = true
EnableWatch = true
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/photos", cfg.Daemon.Folder)
	assert.EqualValues(t, 9000, cfg.Daemon.Port)
	assert.EqualValues(t, 9001, cfg.Daemon.PeerPort)
	assert.True(t, cfg.Daemon.EnableNAT)
	assert.True(t, cfg.Daemon.EnableWatch)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Daemon]\nNotAField = 1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/photomesh.toml")
	require.Error(t, err)
}
