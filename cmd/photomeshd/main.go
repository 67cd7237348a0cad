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

// Command photomeshd runs one peer of the photo-replication network.
//
//	photomeshd <images_folder> <own_port> [<peer_port>]
//
// Omitting peer_port makes this process the bootstrap peer.
package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/urfave/cli.v1"

	"github.com/probechain/photomesh/internal/config"
	"github.com/probechain/photomesh/internal/daemon"
	"github.com/probechain/photomesh/internal/plog"
)

var (
	configFlag    = cli.StringFlag{Name: "config", Usage: "TOML file overlaying these flags, see internal/config"}
	hashCacheFlag = cli.StringFlag{Name: "hashcache", Usage: "directory for the perceptual-hash memoization cache (disabled if empty)"}
	statusFlag    = cli.IntFlag{Name: "statusport", Usage: "port for the status/observability HTTP+WS API (0 disables it)"}
	natFlag       = cli.BoolFlag{Name: "nat", Usage: "attempt UPnP/NAT-PMP port mapping on startup"}
	watchFlag     = cli.BoolFlag{Name: "watch", Usage: "watch the images folder for externally-dropped files"}
	verbosityFlag = cli.IntFlag{Name: "verbosity", Value: int(plog.LvlInfo), Usage: "log verbosity (0=error .. 4=trace)"}
)

func main() {
	app := cli.NewApp()
	app.Name = "photomeshd"
	app.Usage = "distributed photo catalog and replication daemon"
	app.Flags = []cli.Flag{configFlag, hashCacheFlag, statusFlag, natFlag, watchFlag, verbosityFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	plog.SetLevel(plog.Lvl(ctx.Int(verbosityFlag.Name)))

	var cfg daemon.Config
	if path := ctx.String(configFlag.Name); path != "" {
		file, err := config.Load(path)
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("loading config %s: %v", path, err), 1)
		}
		cfg = file.Daemon
	}

	args := ctx.Args()
	switch {
	case len(args) >= 2:
		cfg.Folder = args[0]
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("invalid own_port: %v", err), 1)
		}
		cfg.Port = uint16(port)
		cfg.PeerPort = 0
		if len(args) >= 3 {
			peerPort, err := strconv.Atoi(args[2])
			if err != nil {
				return cli.NewExitError(fmt.Sprintf("invalid peer_port: %v", err), 1)
			}
			cfg.PeerPort = uint16(peerPort)
		}
	case cfg.Folder == "" || cfg.Port == 0:
		return cli.NewExitError("usage: photomeshd [-config file] <images_folder> <own_port> [<peer_port>]", 1)
	}

	if ctx.IsSet(hashCacheFlag.Name) {
		cfg.HashCacheDir = ctx.String(hashCacheFlag.Name)
	}
	if ctx.IsSet(statusFlag.Name) {
		cfg.StatusPort = uint16(ctx.Int(statusFlag.Name))
	}
	if ctx.IsSet(natFlag.Name) {
		cfg.EnableNAT = ctx.Bool(natFlag.Name)
	}
	if ctx.IsSet(watchFlag.Name) {
		cfg.EnableWatch = ctx.Bool(watchFlag.Name)
	}
	return daemon.Run(cfg)
}
