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

// Package daemon wires the catalog, connection tables, local image store,
// protocol engine, listener, NAT mapping, and status API into one running
// peer process.
package daemon

import (
	"fmt"
	"time"

	"github.com/probechain/photomesh/internal/catalog"
	"github.com/probechain/photomesh/internal/connset"
	"github.com/probechain/photomesh/internal/engine"
	"github.com/probechain/photomesh/internal/imagestore"
	"github.com/probechain/photomesh/internal/natmap"
	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/plistener"
	"github.com/probechain/photomesh/internal/plog"
	"github.com/probechain/photomesh/internal/statusapi"
)

// Config is everything needed to stand up one daemon process.
type Config struct {
	Folder      string
	Port        uint16
	PeerPort    uint16 // 0 means bootstrap
	HashCacheDir string // "" disables the on-disk hash cache
	StatusPort  uint16 // 0 disables the status API
	EnableNAT   bool
	EnableWatch bool
}

// Daemon is one running peer process.
type Daemon struct {
	cfg Config

	Catalog *catalog.Catalog
	Conns   *connset.Tables
	Store   *imagestore.Store
	Engine  *engine.Engine

	listener *plistener.Listener
	status   *statusapi.Server
	watcher  *imagestore.Watcher

	log plog.Logger
}

// Run starts a daemon per cfg and blocks until the listener stops. It
// implements the `daemon <images_folder> <own_port> [<peer_port>]` CLI
// contract: PeerPort == 0 means this process bootstraps the network.
func Run(cfg Config) error {
	d, err := build(cfg)
	if err != nil {
		return err
	}
	return d.listener.Serve()
}

func build(cfg Config) (*Daemon, error) {
	log := plog.New("component", "daemon", "folder", cfg.Folder, "port", cfg.Port)

	var opts []imagestore.Option
	if cfg.HashCacheDir != "" {
		opts = append(opts, imagestore.WithCacheDir(cfg.HashCacheDir))
	}
	store, err := imagestore.New(cfg.Folder, imagestore.NewDefaultInspector(), opts...)
	if err != nil {
		return nil, fmt.Errorf("daemon: opening image store: %w", err)
	}

	cat := catalog.New()
	conns := connset.New()
	selfAddr := pcommon.Addr{Host: "127.0.0.1", Port: cfg.Port}
	eng := engine.New(cat, conns, store, selfAddr)

	ln, err := plistener.Listen(selfAddr, eng)
	if err != nil {
		return nil, fmt.Errorf("daemon: binding listener: %w", err)
	}

	d := &Daemon{cfg: cfg, Catalog: cat, Conns: conns, Store: store, Engine: eng, listener: ln, log: log}

	if cfg.EnableNAT {
		natmap.Map(cfg.Port, 2*time.Hour)
	}

	if cfg.PeerPort == 0 {
		if err := eng.Bootstrap(); err != nil {
			return nil, fmt.Errorf("daemon: bootstrap: %w", err)
		}
		log.Info("Started as bootstrap peer")
	} else {
		introducer := pcommon.Addr{Host: "127.0.0.1", Port: cfg.PeerPort}
		if err := eng.Join(introducer); err != nil {
			return nil, fmt.Errorf("daemon: joining %s: %w", introducer, err)
		}
		log.Info("Joining network", "introducer", introducer.String())
	}

	if cfg.EnableWatch {
		w, err := imagestore.Watch(store)
		if err != nil {
			log.Warn("Could not start folder watch", "err", err)
		} else {
			d.watcher = w
			go d.relayWatchedHashes(w)
		}
	}

	if cfg.StatusPort != 0 {
		d.status = statusapi.New(cat, store, pcommon.Addr{Host: "127.0.0.1", Port: cfg.StatusPort})
		eng.OnEvent(d.status.Publish)
		go func() {
			if err := d.status.ListenAndServe(); err != nil {
				log.Warn("Status API stopped", "err", err)
			}
		}()
	}

	return d, nil
}

// relayWatchedHashes turns locally-admitted (outside the control plane)
// files into broadcast updates, exactly like a solicited admission would.
func (d *Daemon) relayWatchedHashes(w *imagestore.Watcher) {
	for h := range w.Added() {
		d.Engine.AdmitLocalHash(h)
		d.log.Info("Admitted externally-dropped file", "hash", h)
	}
}

// Close shuts the daemon down.
func (d *Daemon) Close() error {
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.status != nil {
		d.status.Close()
	}
	return d.listener.Close()
}
