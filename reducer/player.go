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
	"time"

	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/audioengine"
	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/gateway"
	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/queue"
	"tryffel.net/go/ncmtui/reqtrack"
	"tryffel.net/go/ncmtui/snapshot"
)

func songUrlKey(songId models.Id) reqtrack.Key {
	return reqtrack.Key{Kind: reqtrack.KindSongUrl, Arg: songId.String()}
}

var reportProgressKey = reqtrack.Key{Kind: reqtrack.KindReportProgress}

// progressReportInterval throttles periodic position reports; the service
// asks for roughly one every ten seconds, so reporting just under that
// keeps it current without flooding the low-priority queue.
const progressReportInterval = 9500 * time.Millisecond

const (
	progressEventPlay       = "play"
	progressEventPause      = "pause"
	progressEventUnpause    = "unpause"
	progressEventStop       = "stop"
	progressEventTimeUpdate = "timeupdate"
)

// reportProgress posts the playback position to the gateway at low
// priority. State-change events go out immediately; timeupdate events are
// throttled to one per progressReportInterval and suppressed entirely
// while stopped or paused.
func (r *Reducer) reportProgress(event string, fx *Effects) {
	if r.app.playSongId == 0 {
		return
	}
	now := r.now()
	if event == progressEventTimeUpdate {
		if !r.app.prog.active() || r.app.prog.paused {
			return
		}
		if now.Sub(r.app.lastProgressReport) < progressReportInterval {
			return
		}
	}
	r.app.lastProgressReport = now
	id := r.allocate(reportProgressKey)
	fx.Gateway(gateway.ReportProgress{
		ReqId:     id,
		SongId:    r.app.playSongId,
		ElapsedMs: r.app.prog.elapsedMs(now),
		TotalMs:   r.app.prog.totalMs,
		Paused:    r.app.prog.paused,
		Event:     event,
	}, gateway.Low)
}

func (r *Reducer) handleProgressReported(e gateway.ProgressReported) {
	r.accept(reportProgressKey, e.ReqId)
}

// handlePlaySelected builds a new queue from the current playlist and
// starts playback at the selected index. The playlist's song slice is
// transferred into the queue, not cloned; the playlist keeps its reference
// for display but the queue owns the ordering from here on.
func (r *Reducer) handlePlaySelected(c PlaylistTracksPlaySelected, fx *Effects) {
	pl := r.app.currentPlaylist
	if pl == nil || pl.IsStub() {
		fx.Toast("playlist not loaded yet")
		return
	}
	if c.Index < 0 || c.Index >= len(pl.Songs) {
		return
	}
	r.app.queue = queue.New(pl.Songs, c.Index, modeFromString(r.app.settings.Mode), r.now().UnixNano())
	r.app.nextSong = nil
	r.app.resumeAtMs = 0
	r.playCurrent(fx)
	fx.EmitState()
}

// playCurrent starts playback of the queue's current song: straight to
// PlayTrack when the next-song cache holds a fresh URL for it, otherwise a
// high-priority SongUrl request whose reply triggers the PlayTrack.
func (r *Reducer) playCurrent(fx *Effects) {
	q := r.app.queue
	if q == nil || q.Empty() {
		return
	}
	song := q.Current()
	r.app.urlRetried = false

	if cached := r.app.nextSong; cached != nil &&
		cached.songId == song.Id && cached.br == r.app.settings.Bitrate {
		r.app.nextSong = nil
		r.app.awaitingUrl = 0
		r.startTrack(song, cached.url, fx)
		return
	}

	r.app.awaitingUrl = song.Id
	id := r.allocate(songUrlKey(song.Id))
	fx.Gateway(gateway.SongUrl{ReqId: id, SongId: song.Id, Br: r.app.settings.Bitrate}, gateway.High)
}

func (r *Reducer) startTrack(song *models.Song, url string, fx *Effects) {
	r.app.playSongId = song.Id
	fx.Audio(audioengine.PlayTrack{
		SongId: song.Id,
		Br:     r.app.settings.Bitrate,
		Url:    url,
		Title:  song.Name,
	})
}

// handleSongUrlReady serves two flows distinguished by awaitingUrl: the
// URL for the song about to play goes straight to the engine; any other
// accepted reply is a prefetch and lands in the next-song cache.
func (r *Reducer) handleSongUrlReady(e gateway.SongUrlReady, fx *Effects) {
	if !r.accept(songUrlKey(e.SongId), e.ReqId) {
		return
	}
	if e.SongId == r.app.awaitingUrl {
		r.app.awaitingUrl = 0
		song := r.songById(e.SongId)
		if song == nil {
			return
		}
		r.startTrack(song, e.Url, fx)
		return
	}
	r.app.nextSong = &prefetchedUrl{songId: e.SongId, br: e.Br, url: e.Url}
}

// handleSongUrlUnavailable is the copyright/VIP auto-skip: not retryable
// for the same song, so the cursor advances and the next track is tried.
func (r *Reducer) handleSongUrlUnavailable(e gateway.SongUrlUnavailable, fx *Effects) {
	if !r.accept(songUrlKey(e.SongId), e.ReqId) {
		return
	}
	if e.SongId != r.app.awaitingUrl {
		// a prefetch came back unavailable; the skip happens when the
		// cursor actually reaches the song
		return
	}
	r.app.awaitingUrl = 0
	song := r.songById(e.SongId)
	name := e.SongId.String()
	if song != nil {
		name = song.Name
	}
	fx.Toast("unavailable, skipping: " + name)
	r.advance(fx)
}

func (r *Reducer) songById(id models.Id) *models.Song {
	if q := r.app.queue; q != nil {
		for _, s := range q.Songs() {
			if s.Id == id {
				return s
			}
		}
	}
	return nil
}

// advance moves the queue forward and plays, or stops playback at the end
// of a sequential queue.
func (r *Reducer) advance(fx *Effects) {
	q := r.app.queue
	if q == nil {
		return
	}
	if q.Next() {
		r.playCurrent(fx)
	} else {
		r.app.prog = progress{}
		r.app.playSongId = 0
		fx.Audio(audioengine.Stop{})
	}
	fx.EmitState()
}

func (r *Reducer) handleAudioStarted(e audioengine.Started, fx *Effects) {
	now := r.now()
	r.app.prog = progress{startedAt: now, totalMs: e.TotalMs}
	r.app.playSongId = e.Key.SongId

	if r.app.resumeAtMs > 0 {
		fx.Audio(audioengine.Seek{DeltaMs: r.app.resumeAtMs})
		r.app.prog.setElapsed(now, r.app.resumeAtMs)
		r.app.resumeAtMs = 0
	}

	r.requestLyrics(e.Key.SongId, fx)
	r.prefetchNext(fx)
	r.reportProgress(progressEventPlay, fx)
	fx.EmitState()
}

// prefetchNext asks for the next song's play URL at low priority so the
// queue can advance without a gateway round trip. Invalidated by any
// queue change.
func (r *Reducer) prefetchNext(fx *Effects) {
	q := r.app.queue
	if q == nil {
		return
	}
	next := q.PeekNext()
	if next == nil || next.Id == r.app.playSongId {
		return
	}
	if cached := r.app.nextSong; cached != nil &&
		cached.songId == next.Id && cached.br == r.app.settings.Bitrate {
		return
	}
	id := r.allocate(songUrlKey(next.Id))
	fx.Gateway(gateway.SongUrl{ReqId: id, SongId: next.Id, Br: r.app.settings.Bitrate}, gateway.Low)
}

func (r *Reducer) handleAudioEnded(e audioengine.Ended, fx *Effects) {
	logrus.Debugf("track %v ended", e.Key)
	r.app.prog = progress{}
	r.advance(fx)
}

// handleNeedsReload answers the engine's post-restart case: a toggle-pause
// arrived with no sink, so the play URL is requested again and PlayTrack
// reissued. The saved elapsed position is still in resumeAtMs and is
// applied as a seek once the track starts.
func (r *Reducer) handleNeedsReload(e audioengine.NeedsReload, fx *Effects) {
	songId := e.SongId
	if songId == 0 {
		songId = r.app.playSongId
	}
	if songId == 0 {
		if q := r.app.queue; q != nil && q.Current() != nil {
			songId = q.Current().Id
		}
	}
	if songId == 0 {
		return
	}
	r.app.awaitingUrl = songId
	r.app.urlRetried = false
	id := r.allocate(songUrlKey(songId))
	fx.Gateway(gateway.SongUrl{ReqId: id, SongId: songId, Br: r.app.settings.Bitrate}, gateway.High)
}

func (r *Reducer) handleTogglePause(fx *Effects) {
	if r.app.queue == nil && r.app.playSongId == 0 {
		return
	}
	fx.Audio(audioengine.TogglePause{})
	if r.app.prog.active() {
		now := r.now()
		if r.app.prog.paused {
			r.app.prog.resume(now)
			r.reportProgress(progressEventUnpause, fx)
		} else {
			r.app.prog.pause(now)
			r.reportProgress(progressEventPause, fx)
		}
		fx.EmitState()
	}
}

func (r *Reducer) handlePlayerStop(fx *Effects) {
	r.reportProgress(progressEventStop, fx)
	fx.Audio(audioengine.Stop{})
	r.app.prog = progress{}
	r.app.playSongId = 0
	r.app.resumeAtMs = 0
	fx.EmitState()
}

func (r *Reducer) handlePlayerNext(fx *Effects) {
	r.advance(fx)
}

func (r *Reducer) handlePlayerPrev(fx *Effects) {
	q := r.app.queue
	if q == nil {
		return
	}
	if q.Previous() {
		r.playCurrent(fx)
	}
	fx.EmitState()
}

func (r *Reducer) handlePlayerSeek(c PlayerSeek, fx *Effects) {
	if !r.app.prog.active() {
		return
	}
	fx.Audio(audioengine.Seek{DeltaMs: c.DeltaMs})
	now := r.now()
	r.app.prog.setElapsed(now, r.app.prog.elapsedMs(now)+c.DeltaMs)
	fx.EmitState()
}

func (r *Reducer) handlePlayerVolume(c PlayerVolume, fx *Effects) {
	v := r.app.settings.Volume + c.Delta
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	r.app.settings.Volume = v
	fx.Audio(audioengine.SetVolume{Volume: v})
	r.persistSettings()
	fx.EmitState()
}

// handleCycleMode advances Sequential -> ListLoop -> SingleLoop -> Shuffle
// and back. A mode change re-permutes the queue, which invalidates the
// next-song cache; a fresh prefetch is issued for the new successor.
func (r *Reducer) handleCycleMode(fx *Effects) {
	mode := modeFromString(r.app.settings.Mode).Next()
	r.app.settings.Mode = mode.String()
	if q := r.app.queue; q != nil {
		q.SetMode(mode)
		r.app.nextSong = nil
		if r.app.prog.active() {
			r.prefetchNext(fx)
		}
	}
	r.persistSettings()
	fx.Toast("mode: " + mode.String())
	fx.EmitState()
}

// handleGatewayError routes a typed failure back to the feature that
// issued the request. Song-url failures get one transport-level retry
// before the player auto-advances; cookie validation failure resets login;
// everything else surfaces as an error toast.
func (r *Reducer) handleGatewayError(e gateway.GatewayError, fx *Effects) {
	key, ok := r.inflight[e.ReqId]
	if !ok {
		logrus.Debugf("dropping stale gateway error for req %d: %s", e.ReqId, e.Message)
		return
	}
	if !r.accept(key, e.ReqId) {
		return
	}

	switch key.Kind {
	case reqtrack.KindLoginByCookie:
		r.app.login = snapshot.LoginAnonymous
		fx.Error(errkind.CookieInvalid, e.Message)
		fx.EmitState()
	case reqtrack.KindSongUrl:
		r.handleSongUrlError(key, e, fx)
	case reqtrack.KindLoginQrCheck:
		// polling continues on the next tick; no toast for one missed poll
		logrus.Warnf("qr poll failed: %s", e.Message)
	case reqtrack.KindReportProgress:
		// not user-visible; the next report supersedes this one anyway
		logrus.Debugf("progress report failed: %s", e.Message)
	case reqtrack.KindPlaylistTrackIds, reqtrack.KindSongDetailByIds:
		if plId, err := models.ParseId(key.Arg); err == nil {
			delete(r.app.loads, plId)
		}
		fx.Error(e.Kind, e.Message)
		fx.EmitState()
	default:
		fx.Error(e.Kind, e.Message)
	}
}

func (r *Reducer) handleSongUrlError(key reqtrack.Key, e gateway.GatewayError, fx *Effects) {
	songId, err := models.ParseId(key.Arg)
	if err != nil || songId != r.app.awaitingUrl {
		// a failed prefetch; playback is not waiting on it
		logrus.Warnf("prefetch url failed: %s", e.Message)
		return
	}
	if !r.app.urlRetried {
		r.app.urlRetried = true
		id := r.allocate(songUrlKey(songId))
		fx.Gateway(gateway.SongUrl{ReqId: id, SongId: songId, Br: r.app.settings.Bitrate}, gateway.High)
		return
	}
	r.app.awaitingUrl = 0
	fx.Error(e.Kind, e.Message)
	r.advance(fx)
}
