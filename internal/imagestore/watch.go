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
	"path/filepath"
	"strings"
	"time"

	"github.com/rjeczalik/notify"

	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/plog"
)

// Watcher reports hashes newly admitted by files dropped into the folder
// directly (outside of Store), so the engine can broadcast an update for
// them without the operator restarting the daemon.
type Watcher struct {
	store  *Store
	events chan notify.EventInfo
	added  chan pcommon.Hash
	log    plog.Logger
}

// Watch starts watching s's folder for created or renamed-in files. Call
// Stop to release the underlying inotify/kqueue/ReadDirectoryChanges
// handle.
func Watch(s *Store) (*Watcher, error) {
	events := make(chan notify.EventInfo, 32)
	if err := notify.Watch(filepath.Join(s.folder, "..."), events, notify.Create, notify.Rename); err != nil {
		return nil, err
	}
	w := &Watcher{
		store:  s,
		events: events,
		added:  make(chan pcommon.Hash, 32),
		log:    plog.New("component", "imagestore.watch", "folder", s.folder),
	}
	go w.loop()
	return w, nil
}

// Added delivers a hash for every file the watcher admits.
func (w *Watcher) Added() <-chan pcommon.Hash { return w.added }

// Stop releases the watch.
func (w *Watcher) Stop() {
	notify.Stop(w.events)
	close(w.added)
}

func (w *Watcher) loop() {
	// Coalesce bursts (e.g. a drag-and-drop of many files) instead of
	// reparsing the folder once per event.
	var pending bool
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			if !allowedExt[strings.ToLower(filepath.Ext(ev.Path()))] {
				continue
			}
			pending = true
		case <-ticker.C:
			if !pending {
				continue
			}
			pending = false
			known := make(map[pcommon.Hash]bool)
			for _, h := range w.store.Hashes() {
				known[h] = true
			}
			hashes, err := w.store.ParseFolder(nil)
			if err != nil {
				w.log.Warn("Could not reparse folder after watch event", "err", err)
				continue
			}
			for _, h := range hashes {
				if known[h] {
					continue
				}
				select {
				case w.added <- h:
				default:
					w.log.Warn("Dropped watch-admitted hash, channel full", "hash", h)
				}
			}
		}
	}
}
