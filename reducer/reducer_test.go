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
	"testing"
	"time"

	"tryffel.net/go/ncmtui/audioengine"
	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/gateway"
	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/persistence"
	"tryffel.net/go/ncmtui/queue"
	"tryffel.net/go/ncmtui/snapshot"
	"tryffel.net/go/ncmtui/transfer"
)

func transferKey(songId models.Id, br int) transfer.Key {
	return transfer.Key{SongId: songId, Br: br}
}

func newTestReducer() *Reducer {
	r := New(Params{Settings: persistence.DefaultSettings()})
	base := time.Unix(1700000000, 0)
	r.now = func() time.Time { return base }
	return r
}

func (r *Reducer) setNow(t time.Time) {
	r.now = func() time.Time { return t }
}

func testQueueSongs() []*models.Song {
	return []*models.Song{
		{Id: 10, Name: "x", DurationMs: 60000},
		{Id: 11, Name: "y", DurationMs: 60000},
		{Id: 12, Name: "z", DurationMs: 60000},
	}
}

// lastGatewayCmd returns the most recent queued gateway command, failing
// the test when none exists.
func lastGatewayCmd(t *testing.T, fx *Effects) gateway.Command {
	t.Helper()
	if len(fx.gatewayCmds) == 0 {
		t.Fatal("expected a gateway command, got none")
	}
	return fx.gatewayCmds[len(fx.gatewayCmds)-1].cmd
}

func Test_QrLoginSuccess(t *testing.T) {
	r := newTestReducer()
	fx := &Effects{}

	r.handleUserCommand(LoginGenerateQr{}, fx)
	qrReq, ok := lastGatewayCmd(t, fx).(gateway.LoginQrKey)
	if !ok {
		t.Fatalf("expected LoginQrKey, got %T", lastGatewayCmd(t, fx))
	}

	fx = &Effects{}
	r.handleGatewayEvent(gateway.LoginQrKeyReady{ReqId: qrReq.ReqId, Unikey: "K", QrUrl: "https://qr"}, fx)
	if r.app.login != snapshot.LoginQrPending {
		t.Fatalf("login = %v, want QrPending", r.app.login)
	}
	if r.app.qrUrl != "https://qr" {
		t.Fatalf("qrUrl = %q", r.app.qrUrl)
	}

	// poll sequence 801, 801, 802, 803
	codes := []int{801, 801, 802, 803}
	for _, code := range codes {
		fx = &Effects{}
		r.setNow(r.now().Add(qrPollInterval))
		r.tickQrPoll(r.now(), fx)
		check, ok := lastGatewayCmd(t, fx).(gateway.LoginQrCheck)
		if !ok {
			t.Fatalf("expected LoginQrCheck, got %T", lastGatewayCmd(t, fx))
		}
		if check.Unikey != "K" {
			t.Fatalf("unikey = %q, want K", check.Unikey)
		}
		fx = &Effects{}
		r.handleGatewayEvent(gateway.LoginQrStatus{ReqId: check.ReqId, Code: code}, fx)
	}

	if r.app.login != snapshot.LoginAuthenticated {
		t.Fatalf("login = %v, want Authenticated", r.app.login)
	}
	var sawPlaylists bool
	for _, g := range fx.gatewayCmds {
		if _, ok := g.cmd.(gateway.UserPlaylists); ok {
			sawPlaylists = true
		}
	}
	if !sawPlaylists {
		t.Fatal("expected a UserPlaylists request after login")
	}
}

func Test_QrPoll_OnlyOneOutstanding(t *testing.T) {
	r := newTestReducer()
	fx := &Effects{}
	r.handleUserCommand(LoginGenerateQr{}, fx)
	qrReq := lastGatewayCmd(t, fx).(gateway.LoginQrKey)
	r.handleGatewayEvent(gateway.LoginQrKeyReady{ReqId: qrReq.ReqId, Unikey: "K"}, &Effects{})

	fx = &Effects{}
	r.setNow(r.now().Add(qrPollInterval))
	r.tickQrPoll(r.now(), fx)
	if len(fx.gatewayCmds) != 1 {
		t.Fatalf("first tick issued %d commands, want 1", len(fx.gatewayCmds))
	}

	// next tick arrives before the first check was answered
	fx = &Effects{}
	r.setNow(r.now().Add(qrPollInterval))
	r.tickQrPoll(r.now(), fx)
	if len(fx.gatewayCmds) != 0 {
		t.Fatalf("second tick issued %d commands while one pending, want 0", len(fx.gatewayCmds))
	}
}

func Test_CookieLogin_EmptyRejected(t *testing.T) {
	r := newTestReducer()
	fx := &Effects{}
	r.handleUserCommand(LoginSubmitCookie{Cookie: "   "}, fx)
	if len(fx.errors) != 1 || fx.errors[0].kind != errkind.CookieInvalid {
		t.Fatalf("expected CookieInvalid error, got %+v", fx.errors)
	}
	if len(fx.gatewayCmds) != 0 {
		t.Fatal("empty cookie must not reach the gateway")
	}
}

func Test_CookieLogin_FailureReturnsToAnonymous(t *testing.T) {
	r := newTestReducer()
	fx := &Effects{}
	r.handleUserCommand(LoginSubmitCookie{Cookie: "MUSIC_U=abc"}, fx)
	req := lastGatewayCmd(t, fx).(gateway.LoginByCookie)

	fx = &Effects{}
	r.handleGatewayEvent(gateway.LoginResult{ReqId: req.ReqId, Success: false}, fx)
	if r.app.login != snapshot.LoginAnonymous {
		t.Fatalf("login = %v, want Anonymous", r.app.login)
	}
}

func Test_SearchFreshness_OlderResponseDropped(t *testing.T) {
	r := newTestReducer()

	fx := &Effects{}
	r.handleUserCommand(SearchSubmit{Query: "first"}, fx)
	first := lastGatewayCmd(t, fx).(gateway.Search)

	fx = &Effects{}
	r.handleUserCommand(SearchSubmit{Query: "second"}, fx)
	second := lastGatewayCmd(t, fx).(gateway.Search)

	// older response arrives after the newer request was issued
	fx = &Effects{}
	r.handleGatewayEvent(gateway.SearchReady{ReqId: first.ReqId, Songs: []*models.Song{{Id: 1, Name: "stale"}}}, fx)
	if len(r.app.searchResults) != 0 {
		t.Fatalf("stale response mutated state: %v", r.app.searchResults)
	}
	if fx.emitState {
		t.Fatal("stale response must not emit a snapshot")
	}

	fx = &Effects{}
	r.handleGatewayEvent(gateway.SearchReady{ReqId: second.ReqId, Songs: []*models.Song{{Id: 2, Name: "fresh"}}}, fx)
	if len(r.app.searchResults) != 1 || r.app.searchResults[0].Name != "fresh" {
		t.Fatalf("searchResults = %v, want [fresh]", r.app.searchResults)
	}
}

func Test_PlaySelected_BuildsQueueAndRequestsUrl(t *testing.T) {
	r := newTestReducer()
	songs := testQueueSongs()
	r.app.currentPlaylist = &models.Playlist{Id: 100, Name: "pl", Songs: songs}

	fx := &Effects{}
	r.handleUserCommand(PlaylistTracksPlaySelected{Index: 1}, fx)

	if r.app.queue == nil || r.app.queue.Current().Id != 11 {
		t.Fatalf("queue current = %v, want song 11", r.app.queue.Current())
	}
	req, ok := lastGatewayCmd(t, fx).(gateway.SongUrl)
	if !ok || req.SongId != 11 {
		t.Fatalf("expected SongUrl for 11, got %+v", lastGatewayCmd(t, fx))
	}

	// the url reply triggers PlayTrack
	fx = &Effects{}
	r.handleGatewayEvent(gateway.SongUrlReady{ReqId: req.ReqId, SongId: 11, Url: "http://u/11", Br: req.Br}, fx)
	if len(fx.audioCmds) != 1 {
		t.Fatalf("expected one audio command, got %d", len(fx.audioCmds))
	}
	play, ok := fx.audioCmds[0].(audioengine.PlayTrack)
	if !ok || play.SongId != 11 || play.Url != "http://u/11" {
		t.Fatalf("PlayTrack = %+v", fx.audioCmds[0])
	}
}

func Test_UnavailableAutoSkip(t *testing.T) {
	r := newTestReducer()
	songs := testQueueSongs()
	r.app.currentPlaylist = &models.Playlist{Id: 100, Songs: songs}

	fx := &Effects{}
	r.handleUserCommand(PlaylistTracksPlaySelected{Index: 0}, fx)
	req := lastGatewayCmd(t, fx).(gateway.SongUrl)

	fx = &Effects{}
	r.handleGatewayEvent(gateway.SongUrlUnavailable{ReqId: req.ReqId, SongId: 10}, fx)

	if got := r.app.queue.Current().Id; got != 11 {
		t.Fatalf("cursor advanced to %v, want 11", got)
	}
	next, ok := lastGatewayCmd(t, fx).(gateway.SongUrl)
	if !ok || next.SongId != 11 {
		t.Fatalf("expected SongUrl for 11 after skip, got %+v", lastGatewayCmd(t, fx))
	}
}

func Test_SongUrlError_RetriesOnceThenAdvances(t *testing.T) {
	r := newTestReducer()
	songs := testQueueSongs()
	r.app.currentPlaylist = &models.Playlist{Id: 100, Songs: songs}

	fx := &Effects{}
	r.handleUserCommand(PlaylistTracksPlaySelected{Index: 0}, fx)
	req := lastGatewayCmd(t, fx).(gateway.SongUrl)

	// first failure: retried for the same song
	fx = &Effects{}
	r.handleGatewayEvent(gateway.GatewayError{ReqId: req.ReqId, Kind: errkind.Network, Message: "timeout"}, fx)
	retry, ok := lastGatewayCmd(t, fx).(gateway.SongUrl)
	if !ok || retry.SongId != 10 {
		t.Fatalf("expected retry for 10, got %+v", lastGatewayCmd(t, fx))
	}
	if r.app.queue.Current().Id != 10 {
		t.Fatal("cursor must not advance on first failure")
	}

	// second failure: surfaced and auto-advanced
	fx = &Effects{}
	r.handleGatewayEvent(gateway.GatewayError{ReqId: retry.ReqId, Kind: errkind.Network, Message: "timeout"}, fx)
	if len(fx.errors) != 1 {
		t.Fatalf("expected one error effect, got %+v", fx.errors)
	}
	if r.app.queue.Current().Id != 11 {
		t.Fatalf("cursor = %v, want 11 after exhausted retry", r.app.queue.Current().Id)
	}
}

func Test_Prefetch_NextSongServedFromCache(t *testing.T) {
	r := newTestReducer()
	songs := testQueueSongs()
	r.app.currentPlaylist = &models.Playlist{Id: 100, Songs: songs}

	fx := &Effects{}
	r.handleUserCommand(PlaylistTracksPlaySelected{Index: 0}, fx)
	req := lastGatewayCmd(t, fx).(gateway.SongUrl)
	r.handleGatewayEvent(gateway.SongUrlReady{ReqId: req.ReqId, SongId: 10, Url: "http://u/10", Br: req.Br}, &Effects{})

	// playback starts; a low-priority prefetch for song 11 goes out
	fx = &Effects{}
	br := r.app.settings.Bitrate
	r.handleAudioEvent(audioengine.Started{Key: transferKey(10, br), TotalMs: 60000}, fx)
	var prefetch gateway.SongUrl
	found := false
	for _, g := range fx.gatewayCmds {
		if u, ok := g.cmd.(gateway.SongUrl); ok && u.SongId == 11 {
			prefetch = u
			found = true
			if g.priority != gateway.Low {
				t.Fatal("prefetch must be low priority")
			}
		}
	}
	if !found {
		t.Fatalf("no prefetch issued: %+v", fx.gatewayCmds)
	}

	r.handleGatewayEvent(gateway.SongUrlReady{ReqId: prefetch.ReqId, SongId: 11, Url: "http://u/11", Br: br}, &Effects{})
	if r.app.nextSong == nil || r.app.nextSong.songId != 11 {
		t.Fatalf("nextSong cache = %+v, want song 11", r.app.nextSong)
	}

	// track ends: the cached url plays without a gateway round trip
	fx = &Effects{}
	r.handleAudioEvent(audioengine.Ended{Key: transferKey(10, br)}, fx)
	for _, g := range fx.gatewayCmds {
		if _, ok := g.cmd.(gateway.SongUrl); ok {
			t.Fatalf("cache hit must not issue SongUrl: %+v", g.cmd)
		}
	}
	var played bool
	for _, a := range fx.audioCmds {
		if p, ok := a.(audioengine.PlayTrack); ok && p.SongId == 11 && p.Url == "http://u/11" {
			played = true
		}
	}
	if !played {
		t.Fatalf("expected PlayTrack(11) from cache, got %+v", fx.audioCmds)
	}
}

func Test_CycleMode_InvalidatesPrefetch(t *testing.T) {
	r := newTestReducer()
	songs := testQueueSongs()
	r.app.queue = queue.New(songs, 0, queue.Sequential, 1)
	r.app.nextSong = &prefetchedUrl{songId: 11, br: r.app.settings.Bitrate, url: "http://u/11"}

	r.handleUserCommand(PlayerCycleMode{}, &Effects{})
	if r.app.nextSong != nil {
		t.Fatal("mode change must invalidate the next-song cache")
	}
	if r.app.settings.Mode != queue.ListLoop.String() {
		t.Fatalf("mode = %q, want list_loop", r.app.settings.Mode)
	}
}

func Test_Progress_PauseResume(t *testing.T) {
	r := newTestReducer()
	start := r.now()
	r.app.queue = queue.New(testQueueSongs(), 0, queue.Sequential, 1)
	r.handleAudioEvent(audioengine.Started{Key: transferKey(10, 320000), TotalMs: 60000}, &Effects{})

	r.setNow(start.Add(10 * time.Second))
	r.handleUserCommand(PlayerTogglePause{}, &Effects{})
	if !r.app.prog.paused {
		t.Fatal("expected paused")
	}

	// 5 s pass while paused; elapsed must stay at 10 s
	r.setNow(start.Add(15 * time.Second))
	if got := r.app.prog.elapsedMs(r.now()); got != 10000 {
		t.Fatalf("elapsed while paused = %d, want 10000", got)
	}

	r.handleUserCommand(PlayerTogglePause{}, &Effects{})
	r.setNow(start.Add(20 * time.Second))
	if got := r.app.prog.elapsedMs(r.now()); got != 15000 {
		t.Fatalf("elapsed after resume = %d, want 15000", got)
	}
}

func Test_RestartResume(t *testing.T) {
	saved := &persistence.PlayerState{
		Version:    1,
		PlaySongId: 11,
		TotalMs:    60000,
		Paused:     true,
		Queue: persistence.QueueState{
			Songs: []persistence.SongState{
				{Id: 10, Name: "x", DurationMs: 60000},
				{Id: 11, Name: "y", DurationMs: 60000},
				{Id: 12, Name: "z", DurationMs: 60000},
			},
			Order:  []int{0, 1, 2},
			Cursor: 1,
			Mode:   "sequential",
		},
	}
	now := time.Unix(1700000000, 0)
	// saved 45 s in, paused right at save time
	saved.StartedAtEpoch = now.UnixMilli() - 45000
	saved.PausedAtEpoch = now.UnixMilli()

	r := New(Params{Settings: persistence.DefaultSettings(), PlayerState: saved})
	r.setNow(now)
	r.restorePlayerState(saved)

	if r.app.resumeAtMs != 45000 {
		t.Fatalf("resumeAtMs = %d, want 45000", r.app.resumeAtMs)
	}
	if r.app.queue.Current().Id != 11 {
		t.Fatalf("restored cursor at %v, want 11", r.app.queue.Current().Id)
	}

	// user presses toggle-pause; engine has no sink and raises NeedsReload
	fx := &Effects{}
	r.handleAudioEvent(audioengine.NeedsReload{SongId: 11}, fx)
	req, ok := lastGatewayCmd(t, fx).(gateway.SongUrl)
	if !ok || req.SongId != 11 {
		t.Fatalf("expected SongUrl(11), got %+v", lastGatewayCmd(t, fx))
	}

	fx = &Effects{}
	r.handleGatewayEvent(gateway.SongUrlReady{ReqId: req.ReqId, SongId: 11, Url: "http://u/11", Br: req.Br}, fx)
	if len(fx.audioCmds) != 1 {
		t.Fatalf("expected PlayTrack, got %+v", fx.audioCmds)
	}

	// once the engine starts the track, the saved position is seeked to
	fx = &Effects{}
	r.handleAudioEvent(audioengine.Started{Key: transferKey(11, req.Br), TotalMs: 60000}, fx)
	var seeked bool
	for _, a := range fx.audioCmds {
		if s, ok := a.(audioengine.Seek); ok && s.DeltaMs == 45000 {
			seeked = true
		}
	}
	if !seeked {
		t.Fatalf("expected Seek(45000), got %+v", fx.audioCmds)
	}
	if r.app.resumeAtMs != 0 {
		t.Fatal("resumeAtMs must clear after the seek")
	}
}

func Test_PlaylistLoad_ChunkedDetail(t *testing.T) {
	r := newTestReducer()
	// 450 track ids: three chunks of 200/200/50
	ids := make([]models.Id, 450)
	for i := range ids {
		ids[i] = models.Id(1000 + i)
	}
	pl := &models.Playlist{Id: 7, Name: "big", TrackCount: len(ids)}
	r.app.playlists = []*models.Playlist{pl}

	fx := &Effects{}
	r.handleUserCommand(PlaylistSelect{Index: 0}, fx)
	idsReq := lastGatewayCmd(t, fx).(gateway.PlaylistTrackIds)

	fx = &Effects{}
	r.handleGatewayEvent(gateway.PlaylistTrackIdsReady{ReqId: idsReq.ReqId, PlaylistId: 7, SongIds: ids}, fx)

	for chunk := 0; chunk < 3; chunk++ {
		detailReq, ok := lastGatewayCmd(t, fx).(gateway.SongDetailByIds)
		if !ok {
			t.Fatalf("chunk %d: expected SongDetailByIds, got %T", chunk, lastGatewayCmd(t, fx))
		}
		songs := make([]*models.Song, len(detailReq.Ids))
		for i, id := range detailReq.Ids {
			songs[i] = &models.Song{Id: id}
		}
		fx = &Effects{}
		r.handleGatewayEvent(gateway.SongDetailReady{ReqId: detailReq.ReqId, Songs: songs}, fx)
	}

	if pl.IsStub() {
		t.Fatal("playlist still a stub after all chunks")
	}
	if len(pl.Songs) != 450 {
		t.Fatalf("loaded %d songs, want 450", len(pl.Songs))
	}
	if _, ok := r.app.loads[pl.Id]; ok {
		t.Fatal("load bookkeeping not cleaned up")
	}
}

func countProgressReports(fx *Effects) int {
	n := 0
	for _, g := range fx.gatewayCmds {
		if _, ok := g.cmd.(gateway.ReportProgress); ok {
			n++
		}
	}
	return n
}

func Test_ProgressReport_StateChangeImmediate_TimeUpdateThrottled(t *testing.T) {
	r := newTestReducer()
	r.app.queue = queue.New(testQueueSongs(), 0, queue.Sequential, 1)
	start := r.now()

	// starting a track reports immediately
	fx := &Effects{}
	r.handleAudioEvent(audioengine.Started{Key: transferKey(10, 320000), TotalMs: 60000}, fx)
	if got := countProgressReports(fx); got != 1 {
		t.Fatalf("play reported %d times, want 1", got)
	}

	// one second in: inside the throttle window, the tick stays silent
	r.setNow(start.Add(time.Second))
	fx = &Effects{}
	r.handleTick(r.now(), fx)
	if got := countProgressReports(fx); got != 0 {
		t.Fatalf("tick inside window reported %d times, want 0", got)
	}

	// past the window: exactly one timeupdate goes out, at low priority
	r.setNow(start.Add(10 * time.Second))
	fx = &Effects{}
	r.handleTick(r.now(), fx)
	if got := countProgressReports(fx); got != 1 {
		t.Fatalf("tick past window reported %d times, want 1", got)
	}
	for _, g := range fx.gatewayCmds {
		if rep, ok := g.cmd.(gateway.ReportProgress); ok {
			if g.priority != gateway.Low {
				t.Fatal("timeupdate report must be low priority")
			}
			if rep.Event != progressEventTimeUpdate {
				t.Fatalf("event = %q, want timeupdate", rep.Event)
			}
		}
	}

	// a pause right after bypasses the throttle
	fx = &Effects{}
	r.handleUserCommand(PlayerTogglePause{}, fx)
	if got := countProgressReports(fx); got != 1 {
		t.Fatalf("pause reported %d times, want 1", got)
	}

	// ticks while paused never report
	r.setNow(start.Add(30 * time.Second))
	fx = &Effects{}
	r.handleTick(r.now(), fx)
	if got := countProgressReports(fx); got != 0 {
		t.Fatalf("tick while paused reported %d times, want 0", got)
	}
}

func Test_SettingsCommands_Mutate(t *testing.T) {
	r := newTestReducer()

	r.handleUserCommand(SettingsSetRetrySchedule{Retries: 5, BackoffMinMs: 100, BackoffMaxMs: 900}, &Effects{})
	s := r.app.settings
	if s.DownloadRetries != 5 || s.RetryBackoffMinMs != 100 || s.RetryBackoffMaxMs != 900 {
		t.Fatalf("retry schedule = %d/%d/%d", s.DownloadRetries, s.RetryBackoffMinMs, s.RetryBackoffMaxMs)
	}

	r.handleUserCommand(SettingsSetCacheMaxMB{MB: 256}, &Effects{})
	if r.app.settings.AudioCacheMaxMB != 256 {
		t.Fatalf("cache cap = %d, want 256", r.app.settings.AudioCacheMaxMB)
	}

	r.handleUserCommand(SettingsSetDownloadConcurrency{N: 4}, &Effects{})
	if got := r.app.settings.DownloadConcurrency; got == nil || *got != 4 {
		t.Fatalf("concurrency = %v, want 4", got)
	}
	r.handleUserCommand(SettingsSetDownloadConcurrency{N: 0}, &Effects{})
	if r.app.settings.DownloadConcurrency != nil {
		t.Fatal("concurrency 0 must revert to automatic (nil)")
	}

	fx := &Effects{}
	r.handleUserCommand(SettingsSetHttpTimeouts{TotalSecs: 20}, fx)
	if r.app.settings.HttpTimeoutSecs != 20 {
		t.Fatalf("http timeout = %d, want 20", r.app.settings.HttpTimeoutSecs)
	}
	if r.app.settings.HttpConnectTimeoutS != 5 {
		t.Fatalf("connect timeout changed to %d, want untouched 5", r.app.settings.HttpConnectTimeoutS)
	}
	var pushed bool
	for _, g := range fx.gatewayCmds {
		if set, ok := g.cmd.(gateway.SetTimeouts); ok {
			pushed = true
			if set.Total != 20*time.Second || set.Connect != 5*time.Second {
				t.Fatalf("SetTimeouts = %v/%v", set.Total, set.Connect)
			}
		}
	}
	if !pushed {
		t.Fatal("expected a SetTimeouts command for the gateway")
	}
}

func Test_BuildPlayerState_RoundTripsQueue(t *testing.T) {
	r := newTestReducer()
	r.app.queue = queue.New(testQueueSongs(), 1, queue.Shuffle, 42)
	r.app.playSongId = r.app.queue.Current().Id

	st := r.buildPlayerState()
	if len(st.Queue.Songs) != 3 {
		t.Fatalf("persisted %d songs, want 3", len(st.Queue.Songs))
	}
	if st.Queue.Mode != "shuffle" {
		t.Fatalf("mode = %q", st.Queue.Mode)
	}

	r2 := newTestReducer()
	r2.restorePlayerState(st)
	if got := r2.app.queue.Current().Id; got != r.app.queue.Current().Id {
		t.Fatalf("restored current = %v, want %v", got, r.app.queue.Current().Id)
	}
	if r2.app.queue.Mode() != queue.Shuffle {
		t.Fatalf("restored mode = %v, want Shuffle", r2.app.queue.Mode())
	}
}
