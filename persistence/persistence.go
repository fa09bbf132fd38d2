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

// Package persistence owns the atomic JSON snapshots that survive a
// restart: adjustable settings and the player's queue/progress. Every
// write goes through the same tmp-then-rename discipline so a reader never
// observes a partial file; reload happens once, at startup.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

const playerStateVersion = 1

// Settings holds the values the user adjusts at runtime. Mutations persist
// immediately (see Store.SaveSettings).
type Settings struct {
	Volume              float64 `json:"volume"`
	Bitrate             int     `json:"br"`
	Mode                string  `json:"mode"`
	LyricsOffsetMs      int     `json:"lyrics_offset_ms"`
	CrossfadeMs         int     `json:"crossfade_ms"`
	PreloadCount        int     `json:"preload_count"`
	AudioCacheMaxMB     int     `json:"audio_cache_max_mb"`
	DownloadConcurrency *int    `json:"download_concurrency"`
	HttpTimeoutSecs     int     `json:"http_timeout_secs"`
	HttpConnectTimeoutS int     `json:"http_connect_timeout_secs"`
	DownloadRetries     int     `json:"download_retries"`
	RetryBackoffMinMs   int     `json:"retry_backoff_min_ms"`
	RetryBackoffMaxMs   int     `json:"retry_backoff_max_ms"`
}

// DefaultSettings returns the factory defaults used when settings.json is
// absent or corrupt.
func DefaultSettings() Settings {
	return Settings{
		Volume:              0.5,
		Bitrate:             320000,
		Mode:                "sequential",
		LyricsOffsetMs:      0,
		CrossfadeMs:         300,
		PreloadCount:        3,
		AudioCacheMaxMB:     1024,
		DownloadConcurrency: nil,
		HttpTimeoutSecs:     10,
		HttpConnectTimeoutS: 5,
		DownloadRetries:     3,
		RetryBackoffMinMs:   250,
		RetryBackoffMaxMs:   4000,
	}
}

// SongState carries enough song metadata to rebuild a displayable queue
// after a restart without refetching detail from the gateway.
type SongState struct {
	Id         int64    `json:"id"`
	Name       string   `json:"name"`
	Artists    []string `json:"artists"`
	DurationMs int64    `json:"duration_ms"`
}

// QueueState is the persisted shape of the play queue: songs in stable
// index order, the permutation, the cursor and the ordering mode.
type QueueState struct {
	Songs  []SongState `json:"songs"`
	Order  []int       `json:"order"`
	Cursor int         `json:"cursor"`
	Mode   string      `json:"mode"`
}

// PlayerState is the persisted shape of player_state.json. Instants are
// stored as wall-clock epoch milliseconds; ElapsedMs recomputes the elapsed
// playback time from them against a given wall-clock instant.
type PlayerState struct {
	Version int `json:"version"`

	PlaySongId int64 `json:"play_song_id"`

	TotalMs         int64 `json:"total_ms"`
	Paused          bool  `json:"paused"`
	StartedAtEpoch  int64 `json:"started_at_epoch_ms"`
	PausedAtEpoch   int64 `json:"paused_at_epoch_ms"`
	PausedAccumMs   int64 `json:"paused_accum_ms"`

	Queue QueueState `json:"queue"`

	Volume      float64 `json:"volume"`
	PlayBr      int     `json:"play_br"`
	CrossfadeMs int     `json:"crossfade_ms"`

	PlaylistsIndex []int64 `json:"playlists_index"`

	SavedAtEpoch int64 `json:"saved_at_epoch_ms"`
}

// Store owns the on-disk locations of the persisted files and serializes
// writes to them. It carries no reference to reducer state; callers pass
// in the value to persist each time.
type Store struct {
	settingsFile    string
	playerStateFile string
}

func NewStore(settingsFile, playerStateFile string) *Store {
	return &Store{settingsFile: settingsFile, playerStateFile: playerStateFile}
}

// LoadSettings reads settings.json, returning defaults and no error if the
// file is absent. A corrupt file is logged here and also yields defaults
// with no error; any other read failure is returned as an error together
// with the defaults.
func (s *Store) LoadSettings() (Settings, error) {
	out := DefaultSettings()
	data, err := os.ReadFile(s.settingsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, fmt.Errorf("read settings file: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		logrus.Warnf("settings.json corrupt, using defaults: %v", err)
		return DefaultSettings(), nil
	}
	return out, nil
}

// SaveSettings writes settings atomically: tmp file, fsync, rename.
func (s *Store) SaveSettings(settings Settings) error {
	return atomicWriteJSON(s.settingsFile, settings)
}

// LoadPlayerState reads player_state.json. A version mismatch or corrupt
// file is treated as absent: the caller starts with an empty player state
// and paused defaults to true regardless (never auto-resume on startup).
func (s *Store) LoadPlayerState() (*PlayerState, error) {
	data, err := os.ReadFile(s.playerStateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read player state file: %w", err)
	}
	var st PlayerState
	if err := json.Unmarshal(data, &st); err != nil {
		logrus.Warnf("player_state.json corrupt, ignoring: %v", err)
		return nil, nil
	}
	if st.Version != playerStateVersion {
		logrus.Warnf("player_state.json version %d unsupported, ignoring", st.Version)
		return nil, nil
	}
	st.Paused = true
	return &st, nil
}

// SavePlayerState writes player_state.json atomically, stamping
// SavedAtEpoch and Version.
func (s *Store) SavePlayerState(st PlayerState) error {
	st.Version = playerStateVersion
	st.SavedAtEpoch = time.Now().UnixMilli()
	return atomicWriteJSON(s.playerStateFile, st)
}

// ElapsedMs computes elapsed playback time from a PlayerState's progress
// fields, reconstructing the (now - started - paused_accum - ...) formula
// against the wall clock rather than a monotonic instant, since that's all
// a reload has to work with.
func (st *PlayerState) ElapsedMs(now time.Time) int64 {
	if st.StartedAtEpoch == 0 {
		return 0
	}
	nowMs := now.UnixMilli()
	elapsed := nowMs - st.StartedAtEpoch - st.PausedAccumMs
	if st.Paused && st.PausedAtEpoch != 0 {
		elapsed -= nowMs - st.PausedAtEpoch
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
