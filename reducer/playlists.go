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

package reducer

import (
	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/gateway"
	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/reqtrack"
)

func trackIdsKey(playlistId models.Id) reqtrack.Key {
	return reqtrack.Key{Kind: reqtrack.KindPlaylistTrackIds, Arg: playlistId.String()}
}

func songDetailKey(playlistId models.Id) reqtrack.Key {
	return reqtrack.Key{Kind: reqtrack.KindSongDetailByIds, Arg: playlistId.String()}
}

func (r *Reducer) handlePlaylistSelect(c PlaylistSelect, fx *Effects) {
	if c.Index < 0 || c.Index >= len(r.app.playlists) {
		return
	}
	pl := r.app.playlists[c.Index]
	r.app.currentPlaylist = pl
	if pl.IsStub() {
		r.startPlaylistLoad(pl, true, gateway.High, fx)
	}
	fx.EmitState()
}

// startPlaylistLoad begins the two-step load: track-id list first, then
// song detail in chunks of 200. A load already in flight for the playlist
// is reused; a display selection upgrades a background preload so the
// progress indicator appears.
func (r *Reducer) startPlaylistLoad(pl *models.Playlist, display bool, priority gateway.Priority, fx *Effects) {
	if load, ok := r.app.loads[pl.Id]; ok {
		if display {
			load.display = true
			load.priority = gateway.High
		}
		return
	}
	load := &playlistLoad{playlist: pl, display: display, priority: priority}
	r.app.loads[pl.Id] = load
	id := r.allocate(trackIdsKey(pl.Id))
	fx.Gateway(gateway.PlaylistTrackIds{ReqId: id, PlaylistId: pl.Id}, priority)
}

func (r *Reducer) handleTrackIdsReady(e gateway.PlaylistTrackIdsReady, fx *Effects) {
	if !r.accept(trackIdsKey(e.PlaylistId), e.ReqId) {
		return
	}
	load, ok := r.app.loads[e.PlaylistId]
	if !ok {
		return
	}
	load.ids = e.SongIds
	load.chunks = models.ChunkIds(e.SongIds, detailChunkSize)
	if len(load.chunks) == 0 {
		r.finishPlaylistLoad(load, fx)
		return
	}
	r.requestNextChunk(load, fx)
	if load.display {
		fx.EmitState()
	}
}

func (r *Reducer) requestNextChunk(load *playlistLoad, fx *Effects) {
	chunk := load.chunks[load.chunkIdx]
	id := r.allocate(songDetailKey(load.playlist.Id))
	load.detailReqId = id
	fx.Gateway(gateway.SongDetailByIds{ReqId: id, Ids: chunk}, load.priority)
}

// handleSongDetailReady routes a detail batch to the load that issued it.
// SongDetailReady carries no playlist id, so the match runs on the stored
// req_id before the freshness check is applied under the load's key.
func (r *Reducer) handleSongDetailReady(e gateway.SongDetailReady, fx *Effects) {
	var load *playlistLoad
	for _, l := range r.app.loads {
		if l.detailReqId == e.ReqId {
			load = l
			break
		}
	}
	if load == nil {
		logrus.Debugf("dropping song detail batch for unknown req %d", e.ReqId)
		return
	}
	if !r.accept(songDetailKey(load.playlist.Id), e.ReqId) {
		return
	}

	load.songs = append(load.songs, e.Songs...)
	load.chunkIdx++
	if load.chunkIdx < len(load.chunks) {
		r.requestNextChunk(load, fx)
		if load.display {
			fx.EmitState()
		}
		return
	}
	r.finishPlaylistLoad(load, fx)
}

func (r *Reducer) finishPlaylistLoad(load *playlistLoad, fx *Effects) {
	load.playlist.Songs = load.songs
	if load.playlist.TrackCount == 0 {
		load.playlist.TrackCount = len(load.songs)
	}
	delete(r.app.loads, load.playlist.Id)
	logrus.Debugf("playlist %s loaded, %d songs", load.playlist.Name, len(load.songs))
	if load.display {
		fx.EmitState()
	}
}

// schedulePreloads queues low-priority loads for the first preload_count
// playlists after login, so selecting one of them later is instant.
func (r *Reducer) schedulePreloads(fx *Effects) {
	n := r.app.settings.PreloadCount
	if n > len(r.app.playlists) {
		n = len(r.app.playlists)
	}
	for i := 0; i < n; i++ {
		pl := r.app.playlists[i]
		if pl.IsStub() {
			r.startPlaylistLoad(pl, false, gateway.Low, fx)
		}
	}
}
