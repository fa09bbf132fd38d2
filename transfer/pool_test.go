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

package transfer

import (
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func Test_SingleFlight_ConcurrentRequestsShareOneDownload(t *testing.T) {
	var downloads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&downloads, 1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	idx, err := NewIndex(dir)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	pool := NewPool(idx, Config{MaxBytes: 1 << 20})
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pool.Stop()

	key := Key{SongId: 1, Br: 320}
	pool.Request(1, key, srv.URL)
	pool.Request(2, key, srv.URL)
	pool.Request(3, key, srv.URL)

	got := map[uint64]Event{}
	deadline := time.After(2 * time.Second)
	for len(got) < 3 {
		select {
		case ev := <-pool.Events():
			got[ev.Token] = ev
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d/3", len(got))
		}
	}

	if atomic.LoadInt32(&downloads) != 1 {
		t.Fatalf("downloads = %d, want exactly 1 (single-flight)", downloads)
	}
	for token, ev := range got {
		if ev.Failed {
			t.Fatalf("token %d: unexpected failure %s", token, ev.Reason)
		}
		if ev.Path == "" {
			t.Fatalf("token %d: empty path", token)
		}
	}
}

func Test_CachedKeyServedWithoutDownload(t *testing.T) {
	var downloads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&downloads, 1)
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	idx, err := NewIndex(dir)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	pool := NewPool(idx, Config{MaxBytes: 1 << 20})
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pool.Stop()

	key := Key{SongId: 42, Br: 320}
	pool.Request(1, key, srv.URL)
	select {
	case ev := <-pool.Events():
		if ev.Failed {
			t.Fatalf("first request failed: %s", ev.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out on first request")
	}

	pool.Request(2, key, srv.URL)
	select {
	case ev := <-pool.Events():
		if ev.Failed {
			t.Fatalf("second request failed: %s", ev.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out on second request")
	}

	if atomic.LoadInt32(&downloads) != 1 {
		t.Fatalf("downloads = %d, want exactly 1 (second request served from cache)", downloads)
	}
}

// Stop must let an already-started download finish and promote into the
// cache before returning, so a restart can serve it without refetching.
func Test_Stop_DrainsInFlightDownload(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	idx, err := NewIndex(dir)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	pool := NewPool(idx, Config{MaxBytes: 1 << 20})
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	key := Key{SongId: 5, Br: 320}
	pool.Request(1, key, srv.URL)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("download never started")
	}

	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := os.Stat(idx.Path(key)); err != nil {
		t.Fatalf("cache file missing after Stop: %v", err)
	}
}

func Test_FailedDownloadReportedToAllWaiters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	idx, err := NewIndex(dir)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	pool := NewPool(idx, Config{MaxBytes: 1 << 20, MaxRetries: 1, BackoffBaseMs: 1, BackoffMaxMs: 2})
	if err := pool.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer pool.Stop()

	key := Key{SongId: 9, Br: 320}
	pool.Request(1, key, srv.URL)
	pool.Request(2, key, srv.URL)

	got := map[uint64]Event{}
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-pool.Events():
			got[ev.Token] = ev
		case <-deadline:
			t.Fatalf("timed out waiting for failure events, got %d/2", len(got))
		}
	}
	for token, ev := range got {
		if !ev.Failed {
			t.Fatalf("token %d: expected failure", token)
		}
	}
}
