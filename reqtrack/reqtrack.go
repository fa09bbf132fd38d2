/*
 * Copyright 2020 Tero Vierimaa
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

// Package reqtrack implements the request-freshness discipline: every
// outbound gateway request allocates a monotonically increasing id under a
// request key, and an inbound event is only applied to App state when its
// id matches the id currently stored for that key. Allocating again under
// the same key supersedes the old request; its eventual reply is dropped.
package reqtrack

import "sync"

// Kind identifies the category of gateway request a Key belongs to.
type Kind int

const (
	KindLoginQrKey Kind = iota
	KindLoginQrCheck
	KindLoginByCookie
	KindAccountInfo
	KindUserPlaylists
	KindPlaylistTrackIds
	KindSongDetailByIds
	KindSongUrl
	KindLyrics
	KindSearch
	KindReportProgress
)

// Key identifies one logical outstanding request. Arg disambiguates
// concurrent requests of the same Kind for different subjects (e.g. two
// different songs' SongUrl requests in flight at once, superseded
// independently).
type Key struct {
	Kind Kind
	Arg  string
}

// Tracker is the sole writer of the key -> req_id map. It is safe for
// concurrent use; the reducer is its only writer in practice (single
// goroutine), but gateway response delivery happens from a different
// goroutine so the map itself stays locked.
type Tracker struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[Key]uint64
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{pending: make(map[Key]uint64)}
}

// Allocate assigns and stores a new, strictly increasing id for key,
// superseding whatever id (if any) was previously stored there. The
// previous id becomes permanently stale: any event arriving with it will
// fail Accept.
func (t *Tracker) Allocate(key Key) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.pending[key] = id
	return id
}

// Accept reports whether id is the current id stored for key and, if so,
// clears the pending entry (the request is no longer outstanding) and
// returns true. A stale id - one superseded by a later Allocate for the
// same key - returns false and must be dropped without mutating state.
func (t *Tracker) Accept(key Key, id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	want, ok := t.pending[key]
	if !ok || want != id {
		return false
	}
	delete(t.pending, key)
	return true
}

// HasPending reports whether key has a stored id awaiting a response.
func (t *Tracker) HasPending(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[key]
	return ok
}

// Cancel clears key's pending entry without requiring a matching response,
// for a caller that abandons a request outright.
func (t *Tracker) Cancel(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, key)
}
