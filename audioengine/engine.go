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

// Package audioengine runs the single-threaded playback state machine: a
// token-guarded pending-play slot, a beep mixer that supports crossfading
// between two overlapping streams, and polled end-of-track detection. All
// beep/speaker handles are confined to the goroutine driving loop();
// nothing else touches them - playback resources are not safe to move
// between threads.
package audioengine

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/interfaces"
	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/task"
	"tryffel.net/go/ncmtui/transfer"
)

const maxRetries = 1

// Engine is the audio engine: single-threaded owner of the output stream,
// the active sink(s) and the pending-play slot.
type Engine struct {
	task.Task

	pool   *transfer.Pool
	noAudio bool

	commands chan Command
	events   chan Event

	state   State
	pending *PendingPlay
	nextToken uint64

	mixer *beep.Mixer
	ctrl  *beep.Ctrl
	vol   *effects.Volume

	current       beep.StreamSeekCloser
	currentKey    transfer.Key
	playSongId    models.Id
	speakerReady  bool

	volume      float64 // linear 0..1
	crossfadeMs int
}

// New builds an engine driven by pool for cache lookups/downloads. If
// noAudio is true (NO_AUDIO=1), no real output stream is opened - useful
// for headless tests and CI.
func New(pool *transfer.Pool, noAudio bool) *Engine {
	e := &Engine{
		pool:        pool,
		noAudio:     noAudio,
		commands:    make(chan Command, 16),
		events:      make(chan Event, 16),
		mixer:       &beep.Mixer{},
		volume:      0.5,
		crossfadeMs: 300,
	}
	e.ctrl = &beep.Ctrl{Streamer: e.mixer}
	e.vol = &effects.Volume{Streamer: e.ctrl, Base: VolumeLogBase, Volume: volumeTodB(e.volume)}
	e.Name = "audioengine.Engine"
	e.Task.SetLoop(e.loop)
	return e
}

// Commands returns the channel callers send Command values on.
func (e *Engine) Commands() chan<- Command { return e.commands }

// Events returns the channel the reducer listens on for AudioEvents.
func (e *Engine) Events() <-chan Event { return e.events }

// State returns the current playback state, safe to call from outside the
// engine goroutine for diagnostics/tests only.
func (e *Engine) State() State { return e.state }

func (e *Engine) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if !e.noAudio {
		if err := speaker.Init(SamplingRate, SamplingRate/1000*int(BufferPeriod.Milliseconds())); err != nil {
			e.events <- Error{Kind: errkind.Fatal, Message: fmt.Sprintf("init audio output: %v", err)}
		} else {
			e.speakerReady = true
			speaker.Play(e.vol)
		}
	}

	ticker := time.NewTicker(EndOfTrackPoll)
	defer ticker.Stop()

	for {
		select {
		case <-e.StopChan():
			e.handleStop()
			return
		case cmd := <-e.commands:
			e.dispatch(cmd)
		case ev := <-e.pool.Events():
			e.handleTransferEvent(ev)
		case <-ticker.C:
			e.pollEndOfTrack()
		}
	}
}

func (e *Engine) dispatch(cmd Command) {
	switch c := cmd.(type) {
	case PlayTrack:
		e.handlePlayTrack(c)
	case TogglePause:
		e.handleTogglePause()
	case Stop:
		e.handleStop()
	case Seek:
		e.handleSeek(c.DeltaMs)
	case SetVolume:
		e.handleSetVolume(c.Volume)
	case SetCrossfadeMs:
		e.crossfadeMs = c.Ms
	}
}

// handlePlayTrack allocates the next token, superseding any existing
// pending play: its token is strictly higher, so a Ready/Failed event
// that later arrives tagged with the old token is discarded by
// handleTransferEvent's token comparison. Token wraparound saturates to 1,
// never 0, so a zero token is never mistaken for "no pending play".
func (e *Engine) handlePlayTrack(c PlayTrack) {
	e.nextToken++
	if e.nextToken == 0 {
		e.nextToken = 1
	}
	token := e.nextToken
	key := transfer.Key{SongId: c.SongId, Br: c.Br}
	e.pending = &PendingPlay{Token: token, Key: key, Title: c.Title, Url: c.Url}
	e.playSongId = c.SongId
	e.state = Loading
	e.pool.Request(token, key, c.Url)
}

// handleTransferEvent is the canonical stale-response discard: a reply
// whose token does not match the current pending's token is logged and
// dropped without mutating any other state.
func (e *Engine) handleTransferEvent(ev transfer.Event) {
	if e.pending == nil || ev.Token != e.pending.Token {
		logrus.Debugf("dropping stale transfer event for token %d (pending=%v)", ev.Token, e.pending)
		return
	}
	if ev.Failed {
		if e.pending.Retries < maxRetries {
			e.pending.Retries++
			e.pool.Request(e.pending.Token, e.pending.Key, e.pending.Url)
			return
		}
		e.events <- Error{Kind: errkind.Network, Message: ev.Reason}
		key := e.pending.Key
		e.pending = nil
		e.state = Idle
		e.events <- Ended{Key: key}
		return
	}
	e.startPlayback(ev.Path, *e.pending)
}

func (e *Engine) startPlayback(path string, pending PendingPlay) {
	streamer, format, err := decodeFile(path)
	if err != nil {
		e.events <- Error{Kind: errkind.Decode, Message: err.Error()}
		e.pending = nil
		e.state = Idle
		e.events <- Ended{Key: pending.Key}
		return
	}

	totalMs := format.SampleRate.D(streamer.Len()).Milliseconds()

	if e.crossfadeMs > 0 && e.current != nil {
		e.startCrossfade(streamer, format.SampleRate)
	} else {
		e.swapImmediate(streamer, format.SampleRate)
	}

	e.current = streamer
	e.currentKey = pending.Key
	e.pending = nil
	e.state = Playing
	e.events <- Started{Key: pending.Key, TotalMs: totalMs}
}

func (e *Engine) swapImmediate(streamer beep.Streamer, rate beep.SampleRate) {
	if e.speakerReady {
		speaker.Lock()
	}
	e.mixer.Clear()
	e.mixer.Add(beep.Seq(streamer, beep.Callback(func() {})))
	if e.speakerReady {
		speaker.Unlock()
	}
}

// startCrossfade overlays the new track on the existing mix instead of
// clearing it: the old stream is wrapped in a fader ramping to silence
// and ending itself once the ramp completes, which drops it out of the
// mixer automatically (beep.Mixer has no explicit "remove streamer" call
// - a streamer leaves the mix the moment its Stream() returns false). The
// new stream is wrapped in a fader ramping up from silence over the same
// window.
func (e *Engine) startCrossfade(streamer beep.Streamer, rate beep.SampleRate) {
	samples := rate.N(time.Duration(e.crossfadeMs) * time.Millisecond)

	if e.speakerReady {
		speaker.Lock()
	}
	if e.current != nil {
		fadeOut := newFader(e.current, 1, 0, samples, true)
		e.mixer.Add(fadeOut)
	}
	fadeIn := newFader(streamer, 0, 1, samples, false)
	e.mixer.Add(beep.Seq(fadeIn, beep.Callback(func() {})))
	if e.speakerReady {
		speaker.Unlock()
	}
	e.state = Crossfading
}

// handleTogglePause toggles the sink's pause flag. With no sink and no
// pending load (the post-restart case) it emits NeedsReload so the
// reducer can re-request the play URL; the song id may be zero here, the
// reducer resolves it from its own play_song_id or queue cursor.
func (e *Engine) handleTogglePause() {
	if e.current == nil {
		if e.pending == nil {
			e.events <- NeedsReload{SongId: e.playSongId}
		}
		return
	}
	if e.speakerReady {
		speaker.Lock()
	}
	e.ctrl.Paused = !e.ctrl.Paused
	paused := e.ctrl.Paused
	if e.speakerReady {
		speaker.Unlock()
	}
	if paused {
		e.state = Paused
	} else {
		e.state = Playing
	}
}

func (e *Engine) handleStop() {
	if e.speakerReady {
		speaker.Clear()
	}
	e.mixer.Clear()
	e.current = nil
	e.pending = nil
	e.playSongId = 0
	e.state = Idle
}

func (e *Engine) handleSeek(deltaMs int64) {
	if e.current == nil {
		return
	}
	rate := beep.SampleRate(SamplingRate)
	delta := rate.N(time.Duration(deltaMs) * time.Millisecond)
	newPos := e.current.Position() + delta
	if newPos < 0 {
		newPos = 0
	}
	if newPos > e.current.Len() {
		newPos = e.current.Len()
	}
	if e.speakerReady {
		speaker.Lock()
	}
	err := e.current.Seek(newPos)
	if e.speakerReady {
		speaker.Unlock()
	}
	if err != nil {
		e.events <- Warning{Message: fmt.Sprintf("seek failed: %v", err)}
	}
}

func (e *Engine) handleSetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.volume = v
	db := volumeTodB(v)
	if e.speakerReady {
		speaker.Lock()
	}
	if db <= MinVolumeDB {
		e.vol.Silent = true
		e.vol.Volume = MinVolumeDB
	} else {
		e.vol.Silent = false
		e.vol.Volume = db
	}
	if e.speakerReady {
		speaker.Unlock()
	}
}

// pollEndOfTrack: no per-track monitoring thread, just a tick comparing
// position to length while in the playing state.
func (e *Engine) pollEndOfTrack() {
	if e.state != Playing || e.current == nil {
		return
	}
	var pos, length int
	if e.speakerReady {
		speaker.Lock()
	}
	pos, length = e.current.Position(), e.current.Len()
	if e.speakerReady {
		speaker.Unlock()
	}
	if length > 0 && pos >= length {
		key := e.currentKey
		e.current = nil
		e.playSongId = 0
		e.state = Idle
		e.events <- Ended{Key: key}
	}
}

// decodeFile opens a cached audio file and picks the decoder by sniffing
// the container's magic bytes; cache files carry no meaningful extension.
func decodeFile(path string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open cached file: %w", err)
	}
	header := make([]byte, 4)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("read file header: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("rewind file: %w", err)
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format
	switch interfaces.SniffFormat(header) {
	case interfaces.AudioFormatMp3:
		streamer, format, err = mp3.Decode(f)
	case interfaces.AudioFormatFlac:
		streamer, format, err = flac.Decode(f)
	case interfaces.AudioFormatOgg:
		streamer, format, err = vorbis.Decode(f)
	case interfaces.AudioFormatWav:
		streamer, format, err = wav.Decode(f)
	default:
		err = fmt.Errorf("unrecognized audio format: %s", path)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, err
	}
	return streamer, format, nil
}

// volumeTodB maps a linear 0..1 volume to the dB range effects.Volume
// expects.
func volumeTodB(v float64) float64 {
	return MinVolumeDB + (MaxVolumeDB-MinVolumeDB)*v
}
