/*
 * Copyright 2019 Tero Vierimaa
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package transfer owns the on-disk audio cache and the bounded download
// pool that fills it: a versioned index with deferred persistence,
// single-flight downloads coalescing concurrent waiters, and size-capped
// LRU eviction.
package transfer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/models"
)

const cacheIndexVersion = 1

// Key identifies one cached audio file: a song at a specific bitrate.
type Key struct {
	SongId models.Id
	Br     int
}

func (k Key) filename() string {
	return fmt.Sprintf("%d_%d.bin", k.SongId, k.Br)
}

type entry struct {
	Path          string `json:"path"`
	SizeBytes     int64  `json:"size_bytes"`
	LastUsedEpoch int64  `json:"last_used_epoch_ms"`
}

type indexFile struct {
	Version int             `json:"version"`
	Entries map[string]entry `json:"entries"`
}

func keyString(k Key) string {
	return fmt.Sprintf("%d:%d", k.SongId, k.Br)
}

// Index is the versioned, on-disk cache index. Persistence is deferred to
// a dirty flag rather than flushed on every lookup; Save is called from
// shutdown and after any eviction batch.
type Index struct {
	mu        sync.Mutex
	dir       string
	indexPath string
	entries   map[Key]entry
	dirty     bool
}

// NewIndex loads (or initializes) the cache index rooted at dir.
func NewIndex(dir string) (*Index, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	idx := &Index{dir: dir, indexPath: filepath.Join(dir, "index.json"), entries: make(map[Key]entry)}
	if err := idx.load(); err != nil {
		logrus.Warnf("cache index corrupt, starting fresh: %v", err)
	}
	return idx, nil
}

func (idx *Index) load() error {
	data, err := os.ReadFile(idx.indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Version != cacheIndexVersion {
		return fmt.Errorf("index version %d unsupported", f.Version)
	}
	for k, v := range f.Entries {
		var songId int64
		var br int
		if _, err := fmt.Sscanf(k, "%d:%d", &songId, &br); err != nil {
			continue
		}
		idx.entries[Key{SongId: models.Id(songId), Br: br}] = v
	}
	return nil
}

// Save persists the index if dirty. Called on shutdown and after eviction.
func (idx *Index) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}
	f := indexFile{Version: cacheIndexVersion, Entries: make(map[string]entry, len(idx.entries))}
	for k, v := range idx.entries {
		f.Entries[keyString(k)] = v
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	tmp := idx.indexPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	if err := os.Rename(tmp, idx.indexPath); err != nil {
		return fmt.Errorf("rename cache index: %w", err)
	}
	idx.dirty = false
	return nil
}

// Lookup returns the cached path for key if it exists on disk, bumping its
// last-used timestamp.
func (idx *Index) Lookup(key Key, nowEpochMs int64) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e, ok := idx.entries[key]
	if !ok {
		return "", false
	}
	if _, err := os.Stat(e.Path); err != nil {
		delete(idx.entries, key)
		idx.dirty = true
		return "", false
	}
	e.LastUsedEpoch = nowEpochMs
	idx.entries[key] = e
	idx.dirty = true
	return e.Path, true
}

// Path returns the destination path a download for key should be promoted
// to, without checking existence.
func (idx *Index) Path(key Key) string {
	return filepath.Join(idx.dir, key.filename())
}

// Insert records a newly downloaded file and evicts LRU entries until the
// total is under maxBytes.
func (idx *Index) Insert(key Key, path string, size int64, nowEpochMs int64, maxBytes int64) {
	idx.mu.Lock()
	idx.entries[key] = entry{Path: path, SizeBytes: size, LastUsedEpoch: nowEpochMs}
	idx.dirty = true
	idx.evictLocked(maxBytes)
	idx.mu.Unlock()
}

func (idx *Index) totalLocked() int64 {
	var total int64
	for _, e := range idx.entries {
		total += e.SizeBytes
	}
	return total
}

// evictLocked removes least-recently-used entries until total size is
// under maxBytes. Caller holds idx.mu.
func (idx *Index) evictLocked(maxBytes int64) {
	if maxBytes <= 0 {
		return
	}
	for idx.totalLocked() > maxBytes {
		var oldestKey Key
		var oldest entry
		found := false
		for k, e := range idx.entries {
			if !found || e.LastUsedEpoch < oldest.LastUsedEpoch {
				oldestKey, oldest, found = k, e, true
			}
		}
		if !found {
			return
		}
		if err := os.Remove(oldest.Path); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("evict %v: remove %s: %v", oldestKey, oldest.Path, err)
		}
		delete(idx.entries, oldestKey)
		idx.dirty = true
	}
}

// EnforceCap evicts least-recently-used entries until the total size fits
// maxBytes, used when the cache cap is lowered at runtime.
func (idx *Index) EnforceCap(maxBytes int64) {
	idx.mu.Lock()
	idx.evictLocked(maxBytes)
	idx.mu.Unlock()
}

// BitratePurge deletes every cached entry for songId whose bitrate differs
// from keepBr, whether or not keepBr itself is cached.
func (idx *Index) BitratePurge(songId models.Id, keepBr int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for k, e := range idx.entries {
		if k.SongId != songId || k.Br == keepBr {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("bitrate purge %v: remove %s: %v", k, e.Path, err)
		}
		delete(idx.entries, k)
		idx.dirty = true
	}
}

// Size returns the number of cached entries and their total size, mainly
// for diagnostics/tests.
func (idx *Index) Size() (count int, totalBytes int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.entries), idx.totalLocked()
}

// Keys returns the cached keys ordered oldest-to-newest, for tests that
// assert on eviction order.
func (idx *Index) Keys() []Key {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	keys := make([]Key, 0, len(idx.entries))
	for k := range idx.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return idx.entries[keys[i]].LastUsedEpoch < idx.entries[keys[j]].LastUsedEpoch
	})
	return keys
}
