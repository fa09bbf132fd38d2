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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/transfer"
)

func newTestEngine(t *testing.T) (*Engine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	idx, err := transfer.NewIndex(dir)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	pool := transfer.NewPool(idx, transfer.Config{MaxBytes: 1 << 20, MaxRetries: 0, BackoffBaseMs: 1, BackoffMaxMs: 2})
	if err := pool.Start(); err != nil {
		t.Fatalf("pool.Start() error = %v", err)
	}
	t.Cleanup(func() { pool.Stop() })

	e := New(pool, true)
	if err := e.Start(); err != nil {
		t.Fatalf("engine.Start() error = %v", err)
	}
	t.Cleanup(func() { e.Stop() })
	return e, srv
}

func Test_TokenMonotonicAcrossPlayTrack(t *testing.T) {
	e, srv := newTestEngine(t)

	e.Commands() <- PlayTrack{SongId: 1, Br: 320, Url: srv.URL, Title: "a"}
	time.Sleep(20 * time.Millisecond)
	first := e.nextToken

	e.Commands() <- PlayTrack{SongId: 2, Br: 320, Url: srv.URL, Title: "b"}
	time.Sleep(20 * time.Millisecond)
	second := e.nextToken

	if second <= first {
		t.Fatalf("expected token to increase, got first=%d second=%d", first, second)
	}
	if first == 0 || second == 0 {
		t.Fatalf("token must never be zero, got first=%d second=%d", first, second)
	}
}

func Test_StaleTransferEventDropped(t *testing.T) {
	e, _ := newTestEngine(t)

	e.pending = &PendingPlay{Token: 5, Key: transfer.Key{SongId: 1, Br: 320}}
	e.handleTransferEvent(transfer.Event{Token: 2, Key: transfer.Key{SongId: 1, Br: 320}, Path: "/tmp/whatever"})

	if e.pending == nil || e.pending.Token != 5 {
		t.Fatalf("stale event must not mutate pending, got %v", e.pending)
	}
}

func Test_TogglePause_NoSinkButKnownSong_EmitsNeedsReload(t *testing.T) {
	e, _ := newTestEngine(t)
	e.playSongId = models.Id(7)
	e.current = nil

	e.Commands() <- TogglePause{}

	select {
	case ev := <-e.Events():
		reload, ok := ev.(NeedsReload)
		if !ok {
			t.Fatalf("expected NeedsReload, got %T", ev)
		}
		if reload.SongId != models.Id(7) {
			t.Fatalf("SongId = %d, want 7", reload.SongId)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for NeedsReload")
	}
}

func Test_Stop_ClearsPendingWithoutEmittingEnded(t *testing.T) {
	e, srv := newTestEngine(t)

	e.Commands() <- PlayTrack{SongId: 1, Br: 320, Url: srv.URL, Title: "a"}
	time.Sleep(10 * time.Millisecond)
	e.Commands() <- Stop{}

	select {
	case ev := <-e.Events():
		t.Fatalf("expected no event after Stop, got %#v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	if e.state != Idle {
		t.Fatalf("state = %v, want Idle", e.state)
	}
	if e.pending != nil {
		t.Fatalf("pending = %v, want nil", e.pending)
	}
}

func Test_FailedDownloadExhaustsRetriesThenEndsWithError(t *testing.T) {
	e, srv := newTestEngine(t)

	e.Commands() <- PlayTrack{SongId: 1, Br: 320, Url: srv.URL, Title: "a"}

	var sawError, sawEnded bool
	deadline := time.After(2 * time.Second)
	for !sawError || !sawEnded {
		select {
		case ev := <-e.Events():
			switch ev.(type) {
			case Error:
				sawError = true
			case Ended:
				sawEnded = true
			}
		case <-deadline:
			t.Fatalf("timed out, sawError=%v sawEnded=%v", sawError, sawEnded)
		}
	}
}

func Test_SetVolume_ClampsToRange(t *testing.T) {
	e, _ := newTestEngine(t)

	e.Commands() <- SetVolume{Volume: 2.0}
	time.Sleep(20 * time.Millisecond)
	if e.volume != 1.0 {
		t.Fatalf("volume = %v, want clamped to 1.0", e.volume)
	}

	e.Commands() <- SetVolume{Volume: -1.0}
	time.Sleep(20 * time.Millisecond)
	if e.volume != 0.0 {
		t.Fatalf("volume = %v, want clamped to 0.0", e.volume)
	}
}

func Test_StateStringer(t *testing.T) {
	cases := map[State]string{
		Idle: "idle", Loading: "loading", Playing: "playing",
		Paused: "paused", Crossfading: "crossfading",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
