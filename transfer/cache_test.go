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

package transfer

import (
	"os"
	"path/filepath"
	"testing"

	"tryffel.net/go/ncmtui/models"
)

func seedFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	return path
}

func Test_LRUEviction(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewIndex(dir)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}

	keyA := Key{SongId: 1, Br: 320}
	keyB := Key{SongId: 2, Br: 320}
	keyC := Key{SongId: 3, Br: 320}

	pathA := seedFile(t, dir, "a.bin", 40)
	pathB := seedFile(t, dir, "b.bin", 40)
	pathC := seedFile(t, dir, "c.bin", 40)

	idx.Insert(keyA, pathA, 40, 1, 100)
	idx.Insert(keyB, pathB, 40, 2, 100)
	idx.Insert(keyC, pathC, 40, 3, 100)

	count, total := idx.Size()
	if total != 80 {
		t.Fatalf("total after eviction = %d, want 80", total)
	}
	if count != 2 {
		t.Fatalf("count after eviction = %d, want 2", count)
	}
	if _, ok := idx.Lookup(keyA, 4); ok {
		t.Fatalf("keyA should have been evicted (least recently used)")
	}
	if _, ok := idx.Lookup(keyC, 4); !ok {
		t.Fatalf("keyC should still be cached")
	}
}

func Test_BitratePurge(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewIndex(dir)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}

	song := models.Id(7)
	lo := Key{SongId: song, Br: 128}
	hi := Key{SongId: song, Br: 320}
	other := Key{SongId: 8, Br: 128}

	pathLo := seedFile(t, dir, "lo.bin", 10)
	pathHi := seedFile(t, dir, "hi.bin", 10)
	pathOther := seedFile(t, dir, "other.bin", 10)

	idx.Insert(lo, pathLo, 10, 1, 1000)
	idx.Insert(hi, pathHi, 10, 2, 1000)
	idx.Insert(other, pathOther, 10, 3, 1000)

	idx.BitratePurge(song, 320)

	if _, ok := idx.Lookup(lo, 4); ok {
		t.Fatalf("lo bitrate entry should have been purged")
	}
	if _, ok := idx.Lookup(hi, 4); !ok {
		t.Fatalf("hi bitrate entry should remain")
	}
	if _, ok := idx.Lookup(other, 4); !ok {
		t.Fatalf("other song's entry should be untouched by purge")
	}
}

func Test_IndexPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewIndex(dir)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	key := Key{SongId: 1, Br: 320}
	path := seedFile(t, dir, "a.bin", 10)
	idx.Insert(key, path, 10, 1, 1000)
	if err := idx.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := NewIndex(dir)
	if err != nil {
		t.Fatalf("NewIndex() reload error = %v", err)
	}
	if _, ok := reloaded.Lookup(key, 2); !ok {
		t.Fatalf("reloaded index should still contain key")
	}
}
