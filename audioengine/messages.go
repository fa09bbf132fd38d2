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

package audioengine

import (
	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/transfer"
)

// State is the audio engine's playback state:
// idle | loading(pending) | playing | paused | crossfading.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
	Crossfading
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Crossfading:
		return "crossfading"
	default:
		return "unknown"
	}
}

// PendingPlay is the one in-flight play request the engine tracks at a
// time. A transfer reply whose token doesn't match the current pending's
// token is stale and is dropped.
type PendingPlay struct {
	Token   uint64
	Key     transfer.Key
	Title   string
	Url     string
	Retries int
}

// Command is the tagged-variant command surface the engine consumes, a
// dispatch table keyed by concrete type rather than inheritance, per the
// "dynamic dispatch of feature handlers" design note.
type Command interface{ isAudioCommand() }

type PlayTrack struct {
	SongId models.Id
	Br     int
	Url    string
	Title  string
}

type TogglePause struct{}
type Stop struct{}
type Seek struct{ DeltaMs int64 }
type SetVolume struct{ Volume float64 } // linear 0..1
type SetCrossfadeMs struct{ Ms int }

func (PlayTrack) isAudioCommand()      {}
func (TogglePause) isAudioCommand()    {}
func (Stop) isAudioCommand()           {}
func (Seek) isAudioCommand()           {}
func (SetVolume) isAudioCommand()      {}
func (SetCrossfadeMs) isAudioCommand() {}

// Event is the engine's output stream back to the reducer.
type Event interface{ isAudioEvent() }

// Ended signals end-of-track (natural completion or exhausted retries);
// the reducer advances the queue and issues the next PlayTrack.
type Ended struct{ Key transfer.Key }

// NeedsReload is raised when TogglePause arrives while there is neither a
// sink nor a pending load (the post-restart case). SongId is the engine's
// last known song and may be zero; the reducer resolves the song to play,
// re-requests its URL and reissues PlayTrack.
type NeedsReload struct{ SongId models.Id }

// Error surfaces a structured failure the reducer should toast.
type Error struct {
	Kind    errkind.Kind
	Message string
}

// Warning covers recoverable problems (failed seek) that leave state
// intact.
type Warning struct{ Message string }

// Started announces that the engine began playing a new sink, useful for
// the reducer's progress tracking.
type Started struct {
	Key     transfer.Key
	TotalMs int64
}

func (Ended) isAudioEvent()       {}
func (NeedsReload) isAudioEvent() {}
func (Error) isAudioEvent()       {}
func (Warning) isAudioEvent()     {}
func (Started) isAudioEvent()     {}
