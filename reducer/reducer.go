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

// Package reducer hosts the sole writer of App state. It consumes a merged
// stream of user commands, gateway events, audio events and timer ticks on
// a single goroutine, dispatches each to a feature handler (login, search,
// playlists, player, lyrics, settings) and drains the handler's effect
// buffer: snapshots to the UI sink, commands to the gateway actor and the
// audio engine. Handlers never perform I/O themselves; every side effect
// is an effect-buffer entry drained after the handler returns.
package reducer

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/audioengine"
	"tryffel.net/go/ncmtui/gateway"
	"tryffel.net/go/ncmtui/interfaces"
	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/persistence"
	"tryffel.net/go/ncmtui/queue"
	"tryffel.net/go/ncmtui/reqtrack"
	"tryffel.net/go/ncmtui/snapshot"
	"tryffel.net/go/ncmtui/task"
	"tryffel.net/go/ncmtui/transfer"
)

const qrPollInterval = 2 * time.Second

// detailChunkSize is the batch size for song-detail lookups; the gateway
// accepts at most 200 ids per request.
const detailChunkSize = 200

// playlistLoad tracks one in-progress two-step playlist load: track-id
// list first, then song detail in chunks. display marks the load the user
// is watching (drives the progress indicator); preloads run with
// display=false at low priority.
type playlistLoad struct {
	playlist    *models.Playlist
	ids         []models.Id
	chunks      [][]models.Id
	chunkIdx    int
	songs       []*models.Song
	detailReqId uint64
	display     bool
	priority    gateway.Priority
}

func (l *playlistLoad) pct() int {
	if len(l.ids) == 0 {
		return 0
	}
	return len(l.songs) * 100 / len(l.ids)
}

// prefetchedUrl is the next-song cache: a play URL fetched ahead of the
// queue advancing, invalidated by any queue change.
type prefetchedUrl struct {
	songId models.Id
	br     int
	url    string
}

type progress struct {
	startedAt     time.Time
	totalMs       int64
	paused        bool
	pausedAt      time.Time
	pausedAccumMs int64
}

func (p *progress) active() bool { return !p.startedAt.IsZero() }

func (p *progress) elapsedMs(now time.Time) int64 {
	if !p.active() {
		return 0
	}
	elapsed := now.Sub(p.startedAt).Milliseconds() - p.pausedAccumMs
	if p.paused {
		elapsed -= now.Sub(p.pausedAt).Milliseconds()
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

func (p *progress) setElapsed(now time.Time, ms int64) {
	if ms < 0 {
		ms = 0
	}
	if p.totalMs > 0 && ms > p.totalMs {
		ms = p.totalMs
	}
	p.pausedAccumMs = 0
	if p.paused {
		p.pausedAt = now
	}
	p.startedAt = now.Add(-time.Duration(ms) * time.Millisecond)
}

func (p *progress) pause(now time.Time) {
	if !p.active() || p.paused {
		return
	}
	p.paused = true
	p.pausedAt = now
}

func (p *progress) resume(now time.Time) {
	if !p.active() || !p.paused {
		return
	}
	p.pausedAccumMs += now.Sub(p.pausedAt).Milliseconds()
	p.paused = false
	p.pausedAt = time.Time{}
}

type lyricsState struct {
	songId   models.Id
	lines    []snapshot.LyricLine
	offsetMs int
}

// App is the reducer's exclusively owned state. Nothing outside this
// package writes it; everything else sees it only as AppSnapshot values.
type App struct {
	login      snapshot.LoginState
	qrUnikey   string
	qrUrl      string
	lastQrPoll time.Time

	searchResults []*models.Song

	playlists       []*models.Playlist
	currentPlaylist *models.Playlist
	loads           map[models.Id]*playlistLoad

	queue         *queue.PlayQueue
	playSongId    models.Id
	awaitingUrl   models.Id
	urlRetried    bool
	resumeAtMs    int64
	prog          progress
	nextSong      *prefetchedUrl

	lastProgressReport time.Time

	lyrics lyricsState

	settings persistence.Settings
}

// Params carries the reducer's collaborators, all referenced through
// channels or narrow interfaces.
type Params struct {
	Gateway       GatewaySubmitter
	GatewayEvents <-chan gateway.Event
	AudioCommands chan<- audioengine.Command
	AudioEvents   <-chan audioengine.Event
	Pool          *transfer.Pool
	Sink          interfaces.EventSink
	Store         *persistence.Store
	Settings      persistence.Settings
	PlayerState   *persistence.PlayerState
	LogFile       string
	ConfigFile    string
}

// Reducer runs the core loop. Start/Stop come from task.Task.
type Reducer struct {
	task.Task

	gw         GatewaySubmitter
	gwEvents   <-chan gateway.Event
	audioCmds  chan<- audioengine.Command
	audioEvts  <-chan audioengine.Event
	pool       *transfer.Pool
	sink       interfaces.EventSink
	store      *persistence.Store
	tracker    *reqtrack.Tracker
	inflight   map[uint64]reqtrack.Key
	logFile    string
	configFile string

	userCmds chan UserCommand
	quit     chan struct{}

	// persistState is the latest player-state snapshot, readable from the
	// saver goroutine without touching App.
	persistState atomic.Pointer[persistence.PlayerState]

	app App

	now func() time.Time
}

// New builds a reducer, restoring persisted settings and player state into
// App. Playback never auto-resumes: a restored queue comes up paused with
// the saved elapsed time preserved.
func New(p Params) *Reducer {
	r := &Reducer{
		gw:         p.Gateway,
		gwEvents:   p.GatewayEvents,
		audioCmds:  p.AudioCommands,
		audioEvts:  p.AudioEvents,
		pool:       p.Pool,
		sink:       p.Sink,
		store:      p.Store,
		tracker:    reqtrack.New(),
		inflight:   make(map[uint64]reqtrack.Key),
		logFile:    p.LogFile,
		configFile: p.ConfigFile,
		userCmds:   make(chan UserCommand, 16),
		quit:       make(chan struct{}),
		now:        time.Now,
	}
	r.app.settings = p.Settings
	r.app.lyrics.offsetMs = p.Settings.LyricsOffsetMs
	r.app.loads = make(map[models.Id]*playlistLoad)
	r.restorePlayerState(p.PlayerState)
	r.persistState.Store(r.buildPlayerState())
	r.Name = "reducer.Reducer"
	r.Task.SetLoop(r.loop)
	return r
}

// Submit enqueues a user command. Safe from any goroutine; the UI, the CLI
// surface and the remote-control bridge all feed this.
func (r *Reducer) Submit(cmd UserCommand) {
	select {
	case r.userCmds <- cmd:
	case <-r.quit:
	}
}

// Done is closed when a Quit command has been processed.
func (r *Reducer) Done() <-chan struct{} { return r.quit }

// PlayerStatePersist returns the latest player-state snapshot for the
// periodic saver. It never touches App directly.
func (r *Reducer) PlayerStatePersist() persistence.PlayerState {
	if st := r.persistState.Load(); st != nil {
		return *st
	}
	return persistence.PlayerState{}
}

func (r *Reducer) loop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// push an initial snapshot so the UI has something to draw before the
	// first state change
	r.sink.State(r.buildSnapshot())

	for {
		select {
		case <-r.StopChan():
			return
		case cmd := <-r.userCmds:
			fx := &Effects{}
			r.handleUserCommand(cmd, fx)
			r.drain(fx)
		case ev := <-r.gwEvents:
			fx := &Effects{}
			r.handleGatewayEvent(ev, fx)
			r.drain(fx)
		case ev := <-r.audioEvts:
			fx := &Effects{}
			r.handleAudioEvent(ev, fx)
			r.drain(fx)
		case now := <-ticker.C:
			fx := &Effects{}
			r.handleTick(now, fx)
			r.drain(fx)
		}
	}
}

func (r *Reducer) drain(fx *Effects) {
	for _, g := range fx.gatewayCmds {
		r.gw.Submit(g.cmd, g.priority)
	}
	for _, a := range fx.audioCmds {
		r.audioCmds <- a
	}
	if fx.emitState {
		r.persistState.Store(r.buildPlayerState())
		r.sink.State(r.buildSnapshot())
	}
	for _, t := range fx.toasts {
		r.sink.Toast(t.message)
	}
	for _, e := range fx.errors {
		r.sink.Error(e.kind, e.message)
	}
}

func (r *Reducer) handleUserCommand(cmd UserCommand, fx *Effects) {
	switch c := cmd.(type) {
	case LoginGenerateQr:
		r.handleLoginGenerateQr(fx)
	case LoginSubmitCookie:
		r.handleLoginSubmitCookie(c, fx)
	case SearchSubmit:
		r.handleSearchSubmit(c, fx)
	case PlaylistSelect:
		r.handlePlaylistSelect(c, fx)
	case PlaylistTracksPlaySelected:
		r.handlePlaySelected(c, fx)
	case PlayerTogglePause:
		r.handleTogglePause(fx)
	case PlayerStop:
		r.handlePlayerStop(fx)
	case PlayerNext:
		r.handlePlayerNext(fx)
	case PlayerPrev:
		r.handlePlayerPrev(fx)
	case PlayerSeek:
		r.handlePlayerSeek(c, fx)
	case PlayerVolume:
		r.handlePlayerVolume(c, fx)
	case PlayerCycleMode:
		r.handleCycleMode(fx)
	case LyricOffset:
		r.handleLyricOffset(c, fx)
	case SettingsSetBitrate:
		r.handleSetBitrate(c, fx)
	case SettingsSetCrossfade:
		r.handleSetCrossfade(c, fx)
	case SettingsSetCacheMaxMB:
		r.handleSetCacheMaxMB(c, fx)
	case SettingsSetDownloadConcurrency:
		r.handleSetDownloadConcurrency(c, fx)
	case SettingsSetHttpTimeouts:
		r.handleSetHttpTimeouts(c, fx)
	case SettingsSetRetrySchedule:
		r.handleSetRetrySchedule(c, fx)
	case Quit:
		r.handleQuit()
	default:
		logrus.Warnf("reducer: unknown user command %T", cmd)
	}
}

func (r *Reducer) handleGatewayEvent(ev gateway.Event, fx *Effects) {
	switch e := ev.(type) {
	case gateway.LoginQrKeyReady:
		r.handleQrKeyReady(e, fx)
	case gateway.LoginQrStatus:
		r.handleQrStatus(e, fx)
	case gateway.LoginResult:
		r.handleLoginResult(e, fx)
	case gateway.AccountInfoReady:
		r.handleAccountInfoReady(e, fx)
	case gateway.UserPlaylistsReady:
		r.handleUserPlaylistsReady(e, fx)
	case gateway.PlaylistTrackIdsReady:
		r.handleTrackIdsReady(e, fx)
	case gateway.SongDetailReady:
		r.handleSongDetailReady(e, fx)
	case gateway.SongUrlReady:
		r.handleSongUrlReady(e, fx)
	case gateway.SongUrlUnavailable:
		r.handleSongUrlUnavailable(e, fx)
	case gateway.LyricsReady:
		r.handleLyricsReady(e, fx)
	case gateway.SearchReady:
		r.handleSearchReady(e, fx)
	case gateway.ProgressReported:
		r.handleProgressReported(e)
	case gateway.GatewayError:
		r.handleGatewayError(e, fx)
	default:
		logrus.Warnf("reducer: unknown gateway event %T", ev)
	}
}

func (r *Reducer) handleAudioEvent(ev audioengine.Event, fx *Effects) {
	switch e := ev.(type) {
	case audioengine.Started:
		r.handleAudioStarted(e, fx)
	case audioengine.Ended:
		r.handleAudioEnded(e, fx)
	case audioengine.NeedsReload:
		r.handleNeedsReload(e, fx)
	case audioengine.Error:
		fx.Error(e.Kind, e.Message)
	case audioengine.Warning:
		fx.Toast(e.Message)
	default:
		logrus.Warnf("reducer: unknown audio event %T", ev)
	}
}

func (r *Reducer) handleTick(now time.Time, fx *Effects) {
	r.tickQrPoll(now, fx)
	if r.app.prog.active() && !r.app.prog.paused {
		// refresh the elapsed display once a second
		fx.EmitState()
	}
	r.reportProgress(progressEventTimeUpdate, fx)
}

func (r *Reducer) handleQuit() {
	select {
	case <-r.quit:
	default:
		close(r.quit)
	}
}

// allocate assigns a fresh req_id for key and records the reverse mapping
// so a GatewayError (which carries only the id) can be routed back to its
// key. A superseded id's reverse entry is removed: it can never be
// accepted again.
func (r *Reducer) allocate(key reqtrack.Key) uint64 {
	for id, k := range r.inflight {
		if k == key {
			delete(r.inflight, id)
		}
	}
	id := r.tracker.Allocate(key)
	r.inflight[id] = key
	return id
}

// accept applies the request-freshness check: the event is applied only
// when its id is the current one stored for key.
func (r *Reducer) accept(key reqtrack.Key, id uint64) bool {
	delete(r.inflight, id)
	if !r.tracker.Accept(key, id) {
		logrus.Debugf("reducer: dropping stale event for %v id %d", key, id)
		return false
	}
	return true
}

func (r *Reducer) buildSnapshot() snapshot.AppSnapshot {
	now := r.now()
	s := snapshot.AppSnapshot{
		Login:         r.app.login,
		QrUrl:         r.app.qrUrl,
		SearchResults: r.app.searchResults,

		CurrentPlaylist: r.app.currentPlaylist,

		Volume:        r.app.settings.Volume,
		CrossfadeMs:   r.app.settings.CrossfadeMs,
		LyricOffsetMs: r.app.lyrics.offsetMs,
		LyricLines:    r.app.lyrics.lines,

		LogFile:    r.logFile,
		ConfigFile: r.configFile,
	}

	if r.app.currentPlaylist != nil {
		if load, ok := r.app.loads[r.app.currentPlaylist.Id]; ok && load.display {
			s.PlaylistLoading = true
			s.PlaylistLoadPct = load.pct()
		}
	}

	if q := r.app.queue; q != nil {
		s.Queue = snapshot.QueueView{
			Songs:   q.Upcoming(),
			Cursor:  q.Cursor(),
			Mode:    q.Mode().String(),
			Playing: r.app.prog.active(),
			Paused:  r.app.prog.paused,
		}
		s.NowPlaying = q.Current()
	}
	if r.app.prog.active() {
		s.ElapsedMs = r.app.prog.elapsedMs(now)
		s.TotalMs = r.app.prog.totalMs
	} else if r.app.resumeAtMs > 0 {
		s.ElapsedMs = r.app.resumeAtMs
		s.TotalMs = r.app.prog.totalMs
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	s.HeapBytes = mem.HeapAlloc
	return s
}

// buildPlayerState projects App into the persisted player-state shape,
// converting the monotonic progress instants to wall-clock epoch ms.
func (r *Reducer) buildPlayerState() *persistence.PlayerState {
	now := r.now()
	st := &persistence.PlayerState{
		PlaySongId:  int64(r.app.playSongId),
		Volume:      r.app.settings.Volume,
		PlayBr:      r.app.settings.Bitrate,
		CrossfadeMs: r.app.settings.CrossfadeMs,
	}

	if r.app.prog.active() {
		elapsed := r.app.prog.elapsedMs(now)
		st.TotalMs = r.app.prog.totalMs
		st.Paused = r.app.prog.paused
		st.StartedAtEpoch = now.UnixMilli() - elapsed
		if r.app.prog.paused {
			st.PausedAtEpoch = now.UnixMilli()
		}
	} else if r.app.resumeAtMs > 0 {
		// restored but not yet resumed; carry the saved position forward
		st.TotalMs = r.app.prog.totalMs
		st.Paused = true
		st.StartedAtEpoch = now.UnixMilli() - r.app.resumeAtMs
		st.PausedAtEpoch = now.UnixMilli()
	}

	if q := r.app.queue; q != nil {
		songs := q.Songs()
		qs := persistence.QueueState{
			Songs:  make([]persistence.SongState, len(songs)),
			Order:  q.Order(),
			Cursor: q.Cursor(),
			Mode:   q.Mode().String(),
		}
		for i, song := range songs {
			qs.Songs[i] = persistence.SongState{
				Id:         int64(song.Id),
				Name:       song.Name,
				Artists:    song.Artists,
				DurationMs: song.DurationMs,
			}
		}
		st.Queue = qs
	}

	for _, pl := range r.app.playlists {
		st.PlaylistsIndex = append(st.PlaylistsIndex, int64(pl.Id))
	}
	return st
}

// restorePlayerState rebuilds the queue and progress from a persisted
// snapshot. The queue keeps its saved permutation and cursor; progress is
// always restored paused, positioned at the saved elapsed time.
func (r *Reducer) restorePlayerState(st *persistence.PlayerState) {
	if st == nil {
		return
	}
	now := r.now()

	if len(st.Queue.Songs) > 0 {
		songs := make([]*models.Song, len(st.Queue.Songs))
		for i, s := range st.Queue.Songs {
			songs[i] = &models.Song{
				Id:         models.Id(s.Id),
				Name:       s.Name,
				Artists:    s.Artists,
				DurationMs: s.DurationMs,
			}
		}
		r.app.queue = queue.Restore(songs, st.Queue.Order, st.Queue.Cursor,
			modeFromString(st.Queue.Mode), now.UnixNano())
	}

	r.app.playSongId = models.Id(st.PlaySongId)
	r.app.resumeAtMs = st.ElapsedMs(now)
	r.app.prog.totalMs = st.TotalMs

	if st.Volume > 0 {
		r.app.settings.Volume = st.Volume
	}
	if st.PlayBr > 0 {
		r.app.settings.Bitrate = st.PlayBr
	}
}

func modeFromString(s string) queue.Mode {
	switch s {
	case "list_loop":
		return queue.ListLoop
	case "single_loop":
		return queue.SingleLoop
	case "shuffle":
		return queue.Shuffle
	default:
		return queue.Sequential
	}
}

// persistSettings saves settings asynchronously: persistence writes are
// fire-and-forget from the reducer goroutine and never mutate App.
func (r *Reducer) persistSettings() {
	settings := r.app.settings
	store := r.store
	if store == nil {
		return
	}
	go func() {
		if err := store.SaveSettings(settings); err != nil {
			logrus.Errorf("save settings: %v", err)
		}
	}()
}
