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

package gateway

import (
	"time"

	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/models"
)

// Priority selects which of the gateway's two queues a Command is
// submitted on. The consumer loop drains High completely before taking
// anything off Low on every cycle.
type Priority int

const (
	Low Priority = iota
	High
)

// Command is the tagged-variant request surface the gateway consumes.
// Every command carries the reducer's req_id so the matching event can
// be correlated (and discarded if stale) back in the reducer.
type Command interface{ isGatewayCommand() }

type LoginQrKey struct{ ReqId uint64 }
type LoginQrCheck struct {
	ReqId  uint64
	Unikey string
}
type LoginByCookie struct {
	ReqId  uint64
	Cookie string
}
type AccountInfo struct{ ReqId uint64 }
type UserPlaylists struct{ ReqId uint64 }
type PlaylistTrackIds struct {
	ReqId      uint64
	PlaylistId models.Id
}
type SongDetailByIds struct {
	ReqId uint64
	Ids   []models.Id
}
type SongUrl struct {
	ReqId  uint64
	SongId models.Id
	Br     int
}
type Lyrics struct {
	ReqId  uint64
	SongId models.Id
}
type Search struct {
	ReqId uint64
	Query string
}

// ReportProgress posts the player's playback position to the service's
// playback log. Event names the trigger: "play", "pause", "unpause",
// "stop" or "timeupdate".
type ReportProgress struct {
	ReqId     uint64
	SongId    models.Id
	ElapsedMs int64
	TotalMs   int64
	Paused    bool
	Event     string
}

// SetTimeouts reconfigures the actor's HTTP client. A local command:
// it touches no remote endpoint, carries no req_id and produces no
// event; routing it through the queue keeps the client confined to the
// actor goroutine.
type SetTimeouts struct {
	Total   time.Duration
	Connect time.Duration
}

func (LoginQrKey) isGatewayCommand()        {}
func (LoginQrCheck) isGatewayCommand()      {}
func (LoginByCookie) isGatewayCommand()     {}
func (AccountInfo) isGatewayCommand()       {}
func (UserPlaylists) isGatewayCommand()     {}
func (PlaylistTrackIds) isGatewayCommand()  {}
func (SongDetailByIds) isGatewayCommand()   {}
func (SongUrl) isGatewayCommand()           {}
func (Lyrics) isGatewayCommand()            {}
func (Search) isGatewayCommand()            {}
func (ReportProgress) isGatewayCommand()    {}
func (SetTimeouts) isGatewayCommand()       {}

// Event is the gateway's typed reply surface. Every event echoes the
// req_id of the command it answers; no command fails silently - a
// failure is always a GatewayError carrying the same req_id.
type Event interface{ isGatewayEvent() }

type LoginQrKeyReady struct {
	ReqId  uint64
	Unikey string
	QrUrl  string
}

// LoginQrStatus carries the raw poll status code (800/801/802/803/other);
// the reducer's login handler interprets the transition.
type LoginQrStatus struct {
	ReqId uint64
	Code  int
}

type LoginResult struct {
	ReqId   uint64
	Success bool
	UserId  models.Id
}

type AccountInfoReady struct {
	ReqId    uint64
	UserId   models.Id
	Nickname string
}

type UserPlaylistsReady struct {
	ReqId     uint64
	Playlists []*models.Playlist
}

type PlaylistTrackIdsReady struct {
	ReqId      uint64
	PlaylistId models.Id
	SongIds    []models.Id
}

type SongDetailReady struct {
	ReqId uint64
	Songs []*models.Song
}

type SongUrlReady struct {
	ReqId  uint64
	SongId models.Id
	Url    string
	Br     int
}

// SongUrlUnavailable is a distinct event from a transport error: a
// copyright/region/VIP rejection the reducer auto-skips rather than
// retries.
type SongUrlUnavailable struct {
	ReqId  uint64
	SongId models.Id
}

type LyricsReady struct {
	ReqId       uint64
	SongId      models.Id
	Lines       string
	Translation string
}

type SearchReady struct {
	ReqId uint64
	Songs []*models.Song
}

// ProgressReported acknowledges a ReportProgress command; the reducer
// clears the pending entry and otherwise ignores it.
type ProgressReported struct {
	ReqId uint64
}

// GatewayError is the catch-all failure event, always carrying the kind
// taxonomy so the reducer can decide retry/toast/login-reset policy
// without string-sniffing.
type GatewayError struct {
	ReqId   uint64
	Kind    errkind.Kind
	Message string
}

func (LoginQrKeyReady) isGatewayEvent()      {}
func (LoginQrStatus) isGatewayEvent()        {}
func (LoginResult) isGatewayEvent()          {}
func (AccountInfoReady) isGatewayEvent()     {}
func (UserPlaylistsReady) isGatewayEvent()   {}
func (PlaylistTrackIdsReady) isGatewayEvent() {}
func (SongDetailReady) isGatewayEvent()      {}
func (SongUrlReady) isGatewayEvent()         {}
func (SongUrlUnavailable) isGatewayEvent()   {}
func (LyricsReady) isGatewayEvent()          {}
func (SearchReady) isGatewayEvent()          {}
func (ProgressReported) isGatewayEvent()     {}
func (GatewayError) isGatewayEvent()         {}
