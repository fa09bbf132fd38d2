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

package queue

import (
	"reflect"
	"testing"

	"tryffel.net/go/ncmtui/models"
)

func testSongs() []*models.Song {
	return []*models.Song{
		{Id: 1, Name: "song-1", DurationMs: 60000},
		{Id: 2, Name: "song-2", DurationMs: 10000},
		{Id: 3, Name: "song-3", DurationMs: 1000},
		{Id: 4, Name: "song-4", DurationMs: 350000},
		{Id: 5, Name: "song-5", DurationMs: 10000},
	}
}

func idsOf(songs []*models.Song) []models.Id {
	out := make([]models.Id, len(songs))
	for i, s := range songs {
		out[i] = s.Id
	}
	return out
}

func Test_New_invariants(t *testing.T) {
	songs := testSongs()
	q := New(songs, 2, Sequential, 1)
	if q.Len() != len(songs) {
		t.Fatalf("Len() = %d, want %d", q.Len(), len(songs))
	}
	if got := q.Current().Id; got != songs[2].Id {
		t.Fatalf("Current() = %v, want %v", got, songs[2].Id)
	}
	checkInvariants(t, q)
}

func checkInvariants(t *testing.T, q *PlayQueue) {
	t.Helper()
	order := q.Order()
	songs := q.Songs()
	if len(order) != len(songs) {
		t.Fatalf("len(order)=%d != len(songs)=%d", len(order), len(songs))
	}
	seen := make(map[int]bool)
	for _, idx := range order {
		if idx < 0 || idx >= len(songs) {
			t.Fatalf("order index %d out of range", idx)
		}
		if seen[idx] {
			t.Fatalf("order has duplicate index %d", idx)
		}
		seen[idx] = true
	}
	if len(songs) > 0 {
		c := q.Cursor()
		if c < 0 || c >= len(order) {
			t.Fatalf("cursor %d out of range [0,%d)", c, len(order))
		}
	}
}

func Test_ShuffleStability(t *testing.T) {
	songs := testSongs()
	q := New(songs, 1, Sequential, 42)
	playing := q.Current()

	q.SetMode(Shuffle)
	if q.Current().Id != playing.Id {
		t.Fatalf("after shuffle on, current = %v, want %v", q.Current().Id, playing.Id)
	}
	checkInvariants(t, q)

	q.SetMode(Sequential)
	if q.Current().Id != playing.Id {
		t.Fatalf("after shuffle off, current = %v, want %v", q.Current().Id, playing.Id)
	}
	checkInvariants(t, q)

	q.SetMode(Shuffle)
	if q.Current().Id != playing.Id {
		t.Fatalf("after shuffle on again, current = %v, want %v", q.Current().Id, playing.Id)
	}
	checkInvariants(t, q)
}

func Test_Reorder(t *testing.T) {
	songs := testSongs()
	type ordering struct {
		from int
		down bool
	}
	tests := []struct {
		name      string
		want      []models.Id
		orderings []ordering
	}{
		{
			name:      "first-to-right",
			want:      idsOf([]*models.Song{songs[1], songs[0], songs[2], songs[3], songs[4]}),
			orderings: []ordering{{0, false}},
		},
		{
			name:      "first-to-left-noop",
			want:      idsOf(songs),
			orderings: []ordering{{0, true}},
		},
		{
			name:      "2nd-to-3rd",
			want:      idsOf([]*models.Song{songs[0], songs[2], songs[1], songs[3], songs[4]}),
			orderings: []ordering{{1, false}},
		},
		{
			name:      "out-of-range-noop",
			want:      idsOf(songs),
			orderings: []ordering{{-1, false}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New(songs, 0, Sequential, 1)
			for _, v := range tt.orderings {
				q.Reorder(v.from, v.down)
			}
			got := idsOf(q.Upcoming())
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Reorder() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_NextSequentialStopsAtEnd(t *testing.T) {
	songs := testSongs()
	q := New(songs, len(songs)-1, Sequential, 1)
	if q.Next() {
		t.Fatalf("Next() at last song in Sequential mode should return false")
	}
}

func Test_NextListLoopWraps(t *testing.T) {
	songs := testSongs()
	q := New(songs, len(songs)-1, ListLoop, 1)
	if !q.Next() {
		t.Fatalf("Next() in ListLoop should wrap, not stop")
	}
	if q.Cursor() != 0 {
		t.Fatalf("Cursor() = %d, want 0 after wrap", q.Cursor())
	}
}

func Test_SingleLoopReplaysSameSong(t *testing.T) {
	songs := testSongs()
	q := New(songs, 1, SingleLoop, 1)
	current := q.Current().Id
	q.Next()
	if q.Current().Id != current {
		t.Fatalf("SingleLoop should replay %v, got %v", current, q.Current().Id)
	}
}

func Test_PlayNext(t *testing.T) {
	songs := testSongs()
	q := New(songs[:2], 0, Sequential, 1)
	q.PlayNext([]*models.Song{songs[4]})
	want := idsOf([]*models.Song{songs[0], songs[4], songs[1]})
	got := idsOf(q.Upcoming())
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PlayNext() = %v, want %v", got, want)
	}
}

func Test_AddSongs(t *testing.T) {
	songs := testSongs()
	q := New(songs[:2], 0, Sequential, 1)
	q.AddSongs([]*models.Song{songs[2], songs[3]})
	want := idsOf([]*models.Song{songs[0], songs[1], songs[2], songs[3]})
	got := idsOf(q.Upcoming())
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AddSongs() = %v, want %v", got, want)
	}
}

func Test_GetHistory(t *testing.T) {
	songs := testSongs()
	q := New(songs, 0, Sequential, 1)
	q.Next()
	q.Next()
	q.Next()
	want := idsOf([]*models.Song{songs[2], songs[1], songs[0]})
	got := idsOf(q.GetHistory(10))
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetHistory() = %v, want %v", got, want)
	}
}

func Test_RemoveSong(t *testing.T) {
	songs := testSongs()
	q := New(songs, 2, Sequential, 1)
	q.RemoveSong(0)
	checkInvariants(t, q)
	if q.Current().Id != songs[2].Id {
		t.Fatalf("Current() after removing earlier song = %v, want %v", q.Current().Id, songs[2].Id)
	}
}
