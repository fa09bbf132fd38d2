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

// Package queue implements the play queue: a set of songs plus a stable
// index order and a (possibly shuffled) permutation of it. songs[] never
// shrinks as playback advances, only cursor moves through order[], so
// toggling Shuffle off can restore the original ordering exactly. Reorder
// shifts one slot, PlayNext inserts at cursor+1, GetHistory returns
// most-recent-first; all of them operate on the permutation. PlayNext and
// AddSongs also append the new songs to songs[]; RemoveSong is the only
// operation that takes a song out of it.
package queue

import (
	"math/rand"
	"sync"

	"tryffel.net/go/ncmtui/models"
)

// Mode selects how the queue advances past the current song.
type Mode int

const (
	Sequential Mode = iota
	ListLoop
	SingleLoop
	Shuffle
)

func (m Mode) String() string {
	switch m {
	case Sequential:
		return "sequential"
	case ListLoop:
		return "list_loop"
	case SingleLoop:
		return "single_loop"
	case Shuffle:
		return "shuffle"
	default:
		return "unknown"
	}
}

// Next cycles Sequential -> ListLoop -> SingleLoop -> Shuffle -> Sequential,
// per the PlayerCycleMode command contract.
func (m Mode) Next() Mode {
	return (m + 1) % 4
}

// PlayQueue is owned exclusively by the reducer's App; it is never shared
// across component boundaries except as an owned value or a shallow
// snapshot copy.
type PlayQueue struct {
	mu     sync.RWMutex
	songs  []*models.Song
	order  []int
	cursor int
	mode   Mode
	rng    *rand.Rand

	queueChangedFuncs  []func([]*models.Song)
	historyChangedFunc func([]*models.Song)
}

// New builds a queue over songs, starting playback at startIndex (an index
// into songs, not into order). Panics-free: an out-of-range startIndex
// clamps to 0.
func New(songs []*models.Song, startIndex int, mode Mode, seed int64) *PlayQueue {
	q := &PlayQueue{
		songs: songs,
		order: identity(len(songs)),
		mode:  mode,
		rng:   rand.New(rand.NewSource(seed)),
	}
	if startIndex < 0 || startIndex >= len(songs) {
		startIndex = 0
	}
	q.cursor = startIndex
	if mode == Shuffle && len(songs) > 0 {
		q.shuffleKeepingCurrent(startIndex)
	}
	return q
}

// Restore rebuilds a queue from persisted state, keeping the saved
// permutation instead of regenerating it (a restart must not reshuffle).
// If order is not a valid permutation of songs' indices, or cursor is out
// of range, the invalid part is discarded and rebuilt.
func Restore(songs []*models.Song, order []int, cursor int, mode Mode, seed int64) *PlayQueue {
	q := &PlayQueue{
		songs: songs,
		order: order,
		mode:  mode,
		rng:   rand.New(rand.NewSource(seed)),
	}
	if !validPermutation(order, len(songs)) {
		q.order = identity(len(songs))
	}
	q.cursor = cursor
	if cursor < 0 || cursor >= len(q.order) {
		q.cursor = 0
	}
	return q
}

func validPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

func identity(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// Empty reports whether the queue holds no songs.
func (q *PlayQueue) Empty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.songs) == 0
}

// Len returns the number of songs in the queue.
func (q *PlayQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.songs)
}

// Mode returns the current ordering mode.
func (q *PlayQueue) Mode() Mode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.mode
}

// Cursor returns the current position within order.
func (q *PlayQueue) Cursor() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cursor
}

// Current returns the song currently playing, or nil if the queue is empty.
func (q *PlayQueue) Current() *models.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentLocked()
}

func (q *PlayQueue) currentLocked() *models.Song {
	if len(q.songs) == 0 || q.cursor < 0 || q.cursor >= len(q.order) {
		return nil
	}
	return q.songs[q.order[q.cursor]]
}

// CurrentIndex returns the index into Songs() of the currently playing
// song, or -1 if the queue is empty.
func (q *PlayQueue) CurrentIndex() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.songs) == 0 {
		return -1
	}
	return q.order[q.cursor]
}

// Songs returns a shallow copy of the stable index order. Safe to hand to
// the UI or to persistence.
func (q *PlayQueue) Songs() []*models.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*models.Song, len(q.songs))
	copy(out, q.songs)
	return out
}

// Order returns a copy of the current permutation.
func (q *PlayQueue) Order() []int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]int, len(q.order))
	copy(out, q.order)
	return out
}

// Upcoming returns the songs from the current cursor to the end of order:
// current song first, then what follows.
func (q *PlayQueue) Upcoming() []*models.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.upcomingLocked()
}

func (q *PlayQueue) upcomingLocked() []*models.Song {
	if q.cursor >= len(q.order) {
		return nil
	}
	out := make([]*models.Song, 0, len(q.order)-q.cursor)
	for _, idx := range q.order[q.cursor:] {
		out = append(out, q.songs[idx])
	}
	return out
}

// GetHistory returns up to n most-recently-played songs, most recent first.
func (q *PlayQueue) GetHistory(n int) []*models.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.cursor == 0 {
		return []*models.Song{}
	}
	start := q.cursor - n
	if start < 0 {
		start = 0
	}
	out := make([]*models.Song, 0, q.cursor-start)
	for i := q.cursor - 1; i >= start; i-- {
		out = append(out, q.songs[q.order[i]])
	}
	return out
}

// PeekNext returns the song Next would land on without moving the cursor,
// or nil when there is nowhere to advance to. The next-song prefetch
// manager uses this to request a play URL ahead of time.
func (q *PlayQueue) PeekNext() *models.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.order) == 0 {
		return nil
	}
	switch q.mode {
	case SingleLoop:
		return q.songs[q.order[q.cursor]]
	case Sequential:
		if q.cursor+1 >= len(q.order) {
			return nil
		}
		return q.songs[q.order[q.cursor+1]]
	case ListLoop, Shuffle:
		return q.songs[q.order[(q.cursor+1)%len(q.order)]]
	default:
		return nil
	}
}

// Next advances the cursor according to mode. Returns false when there is
// nowhere to advance to (an empty queue, or Sequential at the last song of
// any queue), in which case the caller should stop playback.
func (q *PlayQueue) Next() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return false
	}
	switch q.mode {
	case SingleLoop:
		return true
	case Sequential:
		if q.cursor+1 >= len(q.order) {
			return false
		}
		q.cursor++
		return true
	case ListLoop, Shuffle:
		q.cursor = (q.cursor + 1) % len(q.order)
		return true
	default:
		return false
	}
}

// Previous moves the cursor back one slot, wrapping for ListLoop/Shuffle.
// Returns false if there is no previous song to go to.
func (q *PlayQueue) Previous() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return false
	}
	if q.cursor > 0 {
		q.cursor--
		return true
	}
	switch q.mode {
	case ListLoop, Shuffle:
		q.cursor = len(q.order) - 1
		return true
	default:
		return false
	}
}

// SetMode changes the ordering mode. Toggling Shuffle on regenerates order
// with the currently playing song kept at order[cursor] (cursor reset to
// 0, playing song moved to the front); toggling off restores identity
// order with cursor repositioned so the playing song stays current. This
// is the invariant exercised by the shuffle-stability property: toggling
// Shuffle on, off, and on again never changes what's currently playing.
func (q *PlayQueue) SetMode(m Mode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if m == q.mode {
		return
	}
	if len(q.songs) == 0 {
		q.mode = m
		return
	}
	playing := q.order[q.cursor]
	if m == Shuffle {
		q.shuffleKeepingCurrent(playing)
	} else if q.mode == Shuffle {
		q.order = identity(len(q.songs))
		q.cursor = playing
	}
	q.mode = m
}

// shuffleKeepingCurrent regenerates order as a Fisher-Yates shuffle of all
// indices except playing, which is pinned at order[0]; cursor is reset to
// 0 so the playing song stays current through the toggle.
func (q *PlayQueue) shuffleKeepingCurrent(playing int) {
	rest := make([]int, 0, len(q.songs)-1)
	for i := 0; i < len(q.songs); i++ {
		if i != playing {
			rest = append(rest, i)
		}
	}
	for i := len(rest) - 1; i > 0; i-- {
		j := q.rng.Intn(i + 1)
		rest[i], rest[j] = rest[j], rest[i]
	}
	q.order = append([]int{playing}, rest...)
	q.cursor = 0
}

// AddSongs appends songs to the end of the queue. New songs are appended
// to order in the same relative order they arrive in, regardless of mode;
// shuffling them in would surprise a user who just queued an album.
func (q *PlayQueue) AddSongs(songs []*models.Song) {
	if len(songs) == 0 {
		return
	}
	q.mu.Lock()
	base := len(q.songs)
	q.songs = append(q.songs, songs...)
	for i := range songs {
		q.order = append(q.order, base+i)
	}
	q.mu.Unlock()
	q.notifyChanged()
}

// PlayNext inserts songs immediately after the currently playing position,
// so they play next regardless of how long the rest of the queue is.
func (q *PlayQueue) PlayNext(songs []*models.Song) {
	if len(songs) == 0 {
		return
	}
	q.mu.Lock()
	base := len(q.songs)
	q.songs = append(q.songs, songs...)
	newIdx := make([]int, len(songs))
	for i := range songs {
		newIdx[i] = base + i
	}
	insertAt := q.cursor + 1
	if insertAt > len(q.order) {
		insertAt = len(q.order)
	}
	q.order = spliceInts(q.order, insertAt, newIdx)
	q.mu.Unlock()
	q.notifyChanged()
}

func spliceInts(base []int, at int, ins []int) []int {
	out := make([]int, 0, len(base)+len(ins))
	out = append(out, base[:at]...)
	out = append(out, ins...)
	out = append(out, base[at:]...)
	return out
}

// Reorder shifts the song at order-position index one slot earlier (down)
// or later. Returns true if a reorder was made.
func (q *PlayQueue) Reorder(index int, down bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.order) {
		return false
	}
	var target int
	if down {
		target = index - 1
	} else {
		target = index + 1
	}
	if target < 0 || target >= len(q.order) {
		return false
	}
	q.order[index], q.order[target] = q.order[target], q.order[index]
	if q.cursor == index {
		q.cursor = target
	} else if q.cursor == target {
		q.cursor = index
	}
	return true
}

// RemoveSong removes the song at the given index in Songs() from the
// queue, shifting down every order entry that pointed past it.
func (q *PlayQueue) RemoveSong(index int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.songs) {
		return
	}
	songs := make([]*models.Song, 0, len(q.songs)-1)
	songs = append(songs, q.songs[:index]...)
	q.songs = append(songs, q.songs[index+1:]...)

	newOrder := make([]int, 0, len(q.order))
	removedPos := -1
	for pos, idx := range q.order {
		if idx == index {
			removedPos = pos
			continue
		}
		if idx > index {
			idx--
		}
		newOrder = append(newOrder, idx)
	}
	q.order = newOrder
	if removedPos >= 0 && removedPos < q.cursor {
		q.cursor--
	}
	if q.cursor >= len(q.order) && len(q.order) > 0 {
		q.cursor = len(q.order) - 1
	}
}

// AddQueueChangedCallback registers a callback invoked with the upcoming
// songs after AddSongs or PlayNext. Reorder, RemoveSong and SetMode do not
// invoke it.
func (q *PlayQueue) AddQueueChangedCallback(cb func([]*models.Song)) {
	q.mu.Lock()
	q.queueChangedFuncs = append(q.queueChangedFuncs, cb)
	q.mu.Unlock()
}

// SetHistoryChangedCallback sets the function invoked with the history (the
// songs prior to cursor, most recent first) after AddSongs or PlayNext.
// Moving the cursor with Next or Previous does not invoke it.
func (q *PlayQueue) SetHistoryChangedCallback(cb func([]*models.Song)) {
	q.mu.Lock()
	q.historyChangedFunc = cb
	q.mu.Unlock()
}

func (q *PlayQueue) notifyChanged() {
	q.mu.RLock()
	upcoming := q.upcomingLocked()
	cbs := make([]func([]*models.Song), len(q.queueChangedFuncs))
	copy(cbs, q.queueChangedFuncs)
	historyCb := q.historyChangedFunc
	history := q.historyLocked(10)
	q.mu.RUnlock()

	for _, cb := range cbs {
		cb(upcoming)
	}
	if historyCb != nil {
		historyCb(history)
	}
}

func (q *PlayQueue) historyLocked(n int) []*models.Song {
	if q.cursor == 0 {
		return []*models.Song{}
	}
	start := q.cursor - n
	if start < 0 {
		start = 0
	}
	out := make([]*models.Song, 0, q.cursor-start)
	for i := q.cursor - 1; i >= start; i-- {
		out = append(out, q.songs[q.order[i]])
	}
	return out
}
