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

// Package imagestore is the local mapping from image hash to on-disk path,
// plus folder admission/eviction. Its invariant (spec.md §3): every key
// here is also present in the owning peer's catalog hash-set — callers in
// internal/engine are responsible for keeping the catalog in step.
package imagestore

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"

	fastcache "github.com/VictoriaMetrics/fastcache"

	"github.com/probechain/photomesh/internal/imagestore/hashcache"
	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/plog"
)

var allowedExt = map[string]bool{".jpeg": true, ".jpg": true, ".png": true}

// Store is the local, single-folder image index for one daemon.
type Store struct {
	mu     sync.Mutex
	folder string
	paths  map[pcommon.Hash]string

	inspector Inspector
	cache     *hashcache.DB
	recent    *lru.Cache // path -> Info, hot in-process tier ahead of the leveldb cache
	served    *fastcache.Cache

	log plog.Logger
}

// Option configures optional subsystems of the store.
type Option func(*Store)

// WithCacheDir enables the on-disk perceptual-hash memoization cache.
func WithCacheDir(dir string) Option {
	return func(s *Store) {
		db, err := hashcache.Open(dir)
		if err != nil {
			s.log.Warn("Could not open hash cache, proceeding uncached", "dir", dir, "err", err)
			return
		}
		s.cache = db
	}
}

// New constructs a store bound to folder, without parsing it yet — call
// ParseFolder once the network catalog (if any) is ready, per spec.md §4.5.
func New(folder string, inspector Inspector, opts ...Option) (*Store, error) {
	if inspector == nil {
		inspector = NewDefaultInspector()
	}
	recent, err := lru.New(256)
	if err != nil {
		return nil, err
	}
	s := &Store{
		folder:    folder,
		paths:     make(map[pcommon.Hash]string),
		inspector: inspector,
		recent:    recent,
		served:    fastcache.New(32 << 20),
		log:       plog.New("component", "imagestore", "folder", folder),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases any on-disk cache handles.
func (s *Store) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}

// ParseFolder implements spec.md §4.4: delete non-image files, compute each
// remaining file's perceptual hash, resolve same-hash duplicates by the
// size/colors/first-seen tie-break, and — when knownElsewhere is non-nil —
// drop any file whose hash is already present in the network catalog (the
// join-time dedup-against-network step). It returns the hashes now present
// locally.
func (s *Store) ParseFolder(knownElsewhere func(pcommon.Hash) bool) ([]pcommon.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.folder)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		path string
		info Info
	}
	byHash := make(map[pcommon.Hash]candidate)
	var digests = make(map[pcommon.Hash][32]byte) // fast exact-duplicate pre-filter

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(s.folder, name)
		if !allowedExt[strings.ToLower(filepath.Ext(name))] {
			os.Remove(path)
			s.log.Debug("Removed invalid image", "file", name)
			continue
		}

		info, digest, err := s.inspect(path, ent)
		if err != nil {
			s.log.Warn("Could not inspect file, removing", "file", name, "err", err)
			os.Remove(path)
			continue
		}

		if prior, ok := byHash[info.Hash]; ok {
			// Exact-byte-identical pre-filter: if the digests match, skip the
			// (already-settled) dimension/color comparison entirely.
			if priorDigest, ok := digests[info.Hash]; ok && priorDigest == digest {
				os.Remove(path)
				s.log.Debug("Removed byte-identical duplicate", "file", name)
				continue
			}
			keepPath, dropPath := preferByTieBreak(prior.path, prior.info, path, info)
			if dropPath == prior.path {
				os.Remove(prior.path)
				byHash[info.Hash] = candidate{path: keepPath, info: info}
				digests[info.Hash] = digest
			} else {
				os.Remove(dropPath)
			}
			s.log.Debug("Removed duplicate image", "kept", keepPath, "dropped", dropPath)
			continue
		}
		if knownElsewhere != nil && knownElsewhere(info.Hash) {
			os.Remove(path)
			s.log.Debug("Removed image already held by the network", "file", name)
			continue
		}
		byHash[info.Hash] = candidate{path: path, info: info}
		digests[info.Hash] = digest
	}

	hashes := make([]pcommon.Hash, 0, len(byHash))
	for h, c := range byHash {
		s.paths[h] = c.path
		hashes = append(hashes, h)
	}
	return hashes, nil
}

func (s *Store) inspect(path string, ent os.DirEntry) (Info, [32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, [32]byte{}, err
	}
	digest := blake2b.Sum256(data)

	if cached, ok := s.recent.Get(path); ok {
		return cached.(Info), digest, nil
	}
	if fi, err := ent.Info(); err == nil && s.cache != nil {
		if e, ok := s.cache.Get(path, fi.Size(), fi.ModTime().UnixNano()); ok {
			return Info{Hash: e.Hash, Pixels: e.Pixels, Colors: e.Colors}, digest, nil
		}
	}

	fi, statErr := ent.Info()
	if statErr == nil && s.cache != nil {
		s.log.Debug("Hash cache miss, inspecting file", "key", hashcache.FormatKey(path, fi.Size(), fi.ModTime().UnixNano()))
	}

	info, err := s.inspector.Inspect(path)
	if err != nil {
		return Info{}, digest, err
	}
	s.recent.Add(path, info)
	if statErr == nil && s.cache != nil {
		s.cache.Put(path, fi.Size(), fi.ModTime().UnixNano(), hashcache.Entry{Hash: info.Hash, Pixels: info.Pixels, Colors: info.Colors})
	}
	return info, digest, nil
}

// preferByTieBreak implements spec.md §4.4 step 3: larger pixel count wins;
// on tie, more distinct colors wins; on tie, the first-seen file is kept.
func preferByTieBreak(pathA string, a Info, pathB string, b Info) (keep, drop string) {
	if a.Pixels != b.Pixels {
		if a.Pixels > b.Pixels {
			return pathA, pathB
		}
		return pathB, pathA
	}
	if a.Colors != b.Colors {
		if a.Colors > b.Colors {
			return pathA, pathB
		}
		return pathB, pathA
	}
	return pathA, pathB // first seen (a) wins on a full tie
}

// Store admits bytes into the folder under filename, recording the hash ->
// path mapping. Filenames collide with an overwrite, per spec.md §4.4.
func (s *Store) Store(hash pcommon.Hash, data []byte, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename = sanitizeFilename(filename)
	path := filepath.Join(s.folder, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	s.paths[hash] = path
	s.recent.Remove(path)
	s.served.Del([]byte(path))
	return nil
}

// Evict deletes hash's file and forgets it. Symmetric with Store, unused by
// the core control plane today (spec.md §4.4) but kept for completeness and
// exercised by tests.
func (s *Store) Evict(hash pcommon.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.paths[hash]
	if !ok {
		return fmt.Errorf("imagestore: unknown hash %q", hash)
	}
	delete(s.paths, hash)
	s.recent.Remove(path)
	return os.Remove(path)
}

// Get returns an image's bytes and origin filename, serving from the
// recently-served byte cache when possible.
func (s *Store) Get(hash pcommon.Hash) ([]byte, string, error) {
	s.mu.Lock()
	path, ok := s.paths[hash]
	s.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("imagestore: unknown hash %q", hash)
	}
	filename := filepath.Base(path)

	if cached := s.served.Get(nil, []byte(path)); cached != nil {
		return cached, filename, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	s.served.Set([]byte(path), data)
	return data, filename, nil
}

// Has reports whether hash is present locally.
func (s *Store) Has(hash pcommon.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.paths[hash]
	return ok
}

// Hashes returns a snapshot of every hash held locally — the store side of
// the "self-hash-set equals key-set of local image store" invariant.
func (s *Store) Hashes() []pcommon.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs := make([]pcommon.Hash, 0, len(s.paths))
	for h := range s.paths {
		hs = append(hs, h)
	}
	return hs
}

// FolderSizeBytes sums the size of every file currently in the folder.
func (s *Store) FolderSizeBytes() int64 {
	entries, err := os.ReadDir(s.folder)
	if err != nil {
		return 0
	}
	var total int64
	for _, ent := range entries {
		if ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		if fi, err := ent.Info(); err == nil {
			total += fi.Size()
		}
	}
	return total
}

// sanitizeFilename NFC-normalizes an incoming filename so two senders'
// visually identical names don't produce distinct bytes on disk, and
// strips any path separators a hostile peer might smuggle in.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = norm.NFC.String(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return randomFilename()
	}
	return name
}

func randomFilename() string {
	var b [8]byte
	rand.Read(b[:])
	return fmt.Sprintf("photomesh-%x.jpg", b)
}
