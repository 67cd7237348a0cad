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

// Package statusapi is a read-only observability side-channel: a JSON
// snapshot of the catalog, host resource stats, and a websocket push feed
// of catalog-change events. No control-plane decision ever depends on
// whether anything is connected here.
package statusapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fjl/memsize"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/disk"
	"github.com/shirou/gopsutil/mem"

	"github.com/probechain/photomesh/internal/catalog"
	"github.com/probechain/photomesh/internal/engine"
	"github.com/probechain/photomesh/internal/imagestore"
	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/plog"
)

// Server serves the status/resources/ws endpoints for one daemon.
type Server struct {
	cat   *catalog.Catalog
	store *imagestore.Store
	addr  pcommon.Addr

	httpServer *http.Server
	upgrader   websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]struct{}

	log plog.Logger
}

// New builds a status server bound to addr. Call ListenAndServe to run it.
func New(cat *catalog.Catalog, store *imagestore.Store, addr pcommon.Addr) *Server {
	return &Server{
		cat:      cat,
		store:    store,
		addr:     addr,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
		log:      plog.New("component", "statusapi", "addr", addr.String()),
	}
}

// ListenAndServe blocks serving HTTP until Close is called.
func (s *Server) ListenAndServe() error {
	router := httprouter.New()
	router.GET("/status", s.handleStatus)
	router.GET("/resources", s.handleResources)
	router.GET("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    s.addr.Host + ":" + strconv.Itoa(int(s.addr.Port)),
		Handler: cors.Default().Handler(router),
	}
	return s.httpServer.ListenAndServe()
}

// Close stops the HTTP server and drops any websocket clients.
func (s *Server) Close() error {
	s.clientsMu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.clientsMu.Unlock()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

type peerView struct {
	ID     pcommon.PeerID `json:"id"`
	Addr   string         `json:"addr"`
	Hashes []pcommon.Hash `json:"hashes"`
	Size   int64          `json:"size_bytes"`
}

type statusResponse struct {
	Peers           []peerView `json:"peers"`
	CatalogFootprint uint64    `json:"catalog_footprint_bytes"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap := s.cat.Snapshot()
	peers := make([]peerView, 0, len(snap))
	for id, rec := range snap {
		items := rec.Hashes.ToSlice()
		hashes := make([]pcommon.Hash, 0, len(items))
		for _, it := range items {
			hashes = append(hashes, it.(pcommon.Hash))
		}
		peers = append(peers, peerView{ID: id, Addr: rec.Addr.String(), Hashes: hashes, Size: rec.Size})
	}

	sizes := memsize.Scan(&snap)

	resp := statusResponse{Peers: peers, CatalogFootprint: uint64(sizes.Total)}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type resourcesResponse struct {
	CPUPercent   float64 `json:"cpu_percent"`
	MemUsedBytes uint64  `json:"mem_used_bytes"`
	MemTotal     uint64  `json:"mem_total_bytes"`
	FolderBytes  int64   `json:"folder_bytes"`
	DiskFree     uint64  `json:"disk_free_bytes"`
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	resp := resourcesResponse{FolderBytes: s.store.FolderSizeBytes()}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		resp.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemUsedBytes = vm.Used
		resp.MemTotal = vm.Total
	}
	if du, err := disk.Usage("."); err == nil {
		resp.DiskFree = du.Free
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "err", err)
		return
	}
	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	s.clientsMu.Unlock()

	// Drain incoming frames purely to notice the client going away; this
	// channel is push-only in the other direction.
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, conn)
			s.clientsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish pushes a catalog-change event to every connected websocket
// client. Registered as internal/engine.Engine's sole event observer.
func (s *Server) Publish(ev engine.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			c.Close()
			delete(s.clients, c)
		}
	}
}
