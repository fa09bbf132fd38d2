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

package persistence

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "settings.json"), filepath.Join(dir, "player_state.json"))
}

func Test_LoadSettings_AbsentReturnsDefaults(t *testing.T) {
	s := newTestStore(t)
	got, err := s.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	want := DefaultSettings()
	if got != want {
		t.Fatalf("LoadSettings() = %+v, want defaults %+v", got, want)
	}
}

func Test_SettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	settings := DefaultSettings()
	settings.Volume = 0.75
	settings.Bitrate = 192000
	if err := s.SaveSettings(settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	got, err := s.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if got != settings {
		t.Fatalf("round trip = %+v, want %+v", got, settings)
	}
}

func Test_PlayerState_AbsentReturnsNil(t *testing.T) {
	s := newTestStore(t)
	st, err := s.LoadPlayerState()
	if err != nil {
		t.Fatalf("LoadPlayerState() error = %v", err)
	}
	if st != nil {
		t.Fatalf("LoadPlayerState() = %+v, want nil", st)
	}
}

func Test_PlayerState_VersionMismatchTreatedAsAbsent(t *testing.T) {
	s := newTestStore(t)
	bad := PlayerState{Version: 99, PlaySongId: 1}
	if err := atomicWriteJSON(s.playerStateFile, bad); err != nil {
		t.Fatalf("seed write error = %v", err)
	}
	st, err := s.LoadPlayerState()
	if err != nil {
		t.Fatalf("LoadPlayerState() error = %v", err)
	}
	if st != nil {
		t.Fatalf("LoadPlayerState() = %+v, want nil on version mismatch", st)
	}
}

func Test_PlayerState_AlwaysLoadsPaused(t *testing.T) {
	s := newTestStore(t)
	saved := PlayerState{PlaySongId: 42, Paused: false, TotalMs: 1000}
	if err := s.SavePlayerState(saved); err != nil {
		t.Fatalf("SavePlayerState() error = %v", err)
	}
	st, err := s.LoadPlayerState()
	if err != nil {
		t.Fatalf("LoadPlayerState() error = %v", err)
	}
	if st == nil {
		t.Fatalf("LoadPlayerState() = nil, want a value")
	}
	if !st.Paused {
		t.Fatalf("LoadPlayerState().Paused = false, want true (never auto-resume)")
	}
}

func Test_ElapsedMs_ProgressRoundTrip(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-45 * time.Second)
	st := &PlayerState{
		StartedAtEpoch: started.UnixMilli(),
		Paused:         false,
	}
	got := st.ElapsedMs(now)
	want := int64(45000)
	if got != want {
		t.Fatalf("ElapsedMs() = %d, want %d", got, want)
	}

	// Restart with a simulated wall-clock delta d while unpaused: elapsed
	// grows by d.
	later := now.Add(10 * time.Second)
	got2 := st.ElapsedMs(later)
	if got2 != want+10000 {
		t.Fatalf("ElapsedMs() after %v delta = %d, want %d", 10*time.Second, got2, want+10000)
	}
}

func Test_ElapsedMs_PausedFreezesProgress(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-60 * time.Second)
	pausedAt := now.Add(-10 * time.Second)
	st := &PlayerState{
		StartedAtEpoch: started.UnixMilli(),
		PausedAtEpoch:  pausedAt.UnixMilli(),
		Paused:         true,
	}
	before := st.ElapsedMs(now)
	after := st.ElapsedMs(now.Add(30 * time.Second))
	if before != after {
		t.Fatalf("paused elapsed changed across restart: before=%d after=%d", before, after)
	}
}
