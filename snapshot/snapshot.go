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

// Package snapshot defines the cheap, immutable projection of reducer state
// shipped to the UI. It lives in its own package (rather than inside
// reducer) so that both the reducer and the external rendering surface's
// interface contract (interfaces.EventSink) can depend on it without a
// cycle, matching the "arena + indices / shallow projection, never
// bidirectional back-pointers" guidance for cyclic UI references.
package snapshot

import "tryffel.net/go/ncmtui/models"

type LoginState int

const (
	LoginAnonymous LoginState = iota
	LoginQrPending
	LoginCookieEntry
	LoginAuthenticated
)

// QueueView is a shallow, owned copy of the upcoming part of the play
// queue, never a pointer into the live queue.PlayQueue. Songs runs in
// playback order from the current song to the end; Cursor is the current
// song's position in the full playback order, so Songs[0] is that song.
type QueueView struct {
	Songs   []*models.Song
	Cursor  int
	Mode    string
	Playing bool
	Paused  bool
}

// AppSnapshot is produced by the reducer after every state mutation and
// sent on the UI channel. It never aliases mutable reducer state.
type AppSnapshot struct {
	Login LoginState
	QrUrl string

	SearchResults []*models.Song

	CurrentPlaylist *models.Playlist
	PlaylistLoading bool
	PlaylistLoadPct int

	Queue QueueView

	NowPlaying   *models.Song
	ElapsedMs    int64
	TotalMs      int64
	Volume       float64
	CrossfadeMs  int
	LyricOffsetMs int
	LyricLines    []LyricLine

	HeapBytes  uint64
	LogFile    string
	ConfigFile string
}

type LyricLine struct {
	TimeMs int64
	Text   string
	Trans  string
}
