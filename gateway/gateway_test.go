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

package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tryffel.net/go/ncmtui/models"
)

func newTestGateway(t *testing.T, mux *http.ServeMux) *Gateway {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	g := New(Config{
		Host:        srv.URL,
		SessionFile: filepath.Join(t.TempDir(), "netease_state.json"),
		AppName:     "ncmtui-test",
	})
	if err := g.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { g.Stop() })
	return g
}

func Test_LoginQrKey_EmitsQrUrl(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/qr/key", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 200,
			"data": map[string]string{"unikey": "abc123"},
		})
	})
	g := newTestGateway(t, mux)

	g.Submit(LoginQrKey{ReqId: 1}, High)

	select {
	case ev := <-g.Events():
		ready, ok := ev.(LoginQrKeyReady)
		if !ok {
			t.Fatalf("expected LoginQrKeyReady, got %T", ev)
		}
		if ready.Unikey != "abc123" {
			t.Errorf("Unikey = %q, want abc123", ready.Unikey)
		}
		if ready.ReqId != 1 {
			t.Errorf("ReqId = %d, want 1", ready.ReqId)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func Test_SongUrl_RejectedCodeEmitsUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/song/url", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"id": 42, "url": "", "code": -110}},
		})
	})
	g := newTestGateway(t, mux)

	g.Submit(SongUrl{ReqId: 9, SongId: models.Id(42), Br: 320}, High)

	select {
	case ev := <-g.Events():
		unavail, ok := ev.(SongUrlUnavailable)
		if !ok {
			t.Fatalf("expected SongUrlUnavailable, got %T", ev)
		}
		if unavail.SongId != models.Id(42) {
			t.Errorf("SongId = %v, want 42", unavail.SongId)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func Test_HighPriorityDrainedBeforeLow(t *testing.T) {
	var order []uint64
	done := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{"songs": []interface{}{}}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	g := New(Config{Host: srv.URL, SessionFile: filepath.Join(t.TempDir(), "netease_state.json")})

	// Queue all three commands before starting the consumer goroutine, so
	// the drain order is deterministic rather than a scheduler race.
	g.Submit(Search{ReqId: 100, Query: "low"}, Low)
	g.Submit(Search{ReqId: 1, Query: "high-a"}, High)
	g.Submit(Search{ReqId: 2, Query: "high-b"}, High)

	if err := g.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { g.Stop() })

	go func() {
		for len(order) < 3 {
			ev := <-g.Events()
			if r, ok := ev.(SearchReady); ok {
				order = append(order, r.ReqId)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out, got order=%v", order)
	}

	if order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected high-priority (1,2) drained before low (100), got %v", order)
	}
	if order[2] != 100 {
		t.Fatalf("expected low-priority command last, got %v", order)
	}
}
