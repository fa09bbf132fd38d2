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
	"reflect"
	"testing"

	"tryffel.net/go/ncmtui/snapshot"
)

func Test_ParseLyrics(t *testing.T) {
	text := "[00:01.50]first line\n[ti:ignored header]\n[00:12]second line\n\n[01:02.250]third line"
	trans := "[00:01.50]premiere ligne\n[00:12]deuxieme ligne"

	got := parseLyrics(text, trans)
	want := []snapshot.LyricLine{
		{TimeMs: 1500, Text: "first line", Trans: "premiere ligne"},
		{TimeMs: 12000, Text: "second line", Trans: "deuxieme ligne"},
		{TimeMs: 62250, Text: "third line"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseLyrics() = %+v, want %+v", got, want)
	}
}

func Test_ParseLyrics_RepeatedTimeTags(t *testing.T) {
	got := parseLrc("[00:05][00:45]chorus")
	if len(got) != 2 {
		t.Fatalf("got %d lines, want 2", len(got))
	}
	if got[0].TimeMs != 5000 || got[1].TimeMs != 45000 {
		t.Fatalf("times = %d, %d", got[0].TimeMs, got[1].TimeMs)
	}
	if got[0].Text != "chorus" || got[1].Text != "chorus" {
		t.Fatalf("texts = %q, %q", got[0].Text, got[1].Text)
	}
}

func Test_ParseLyrics_UnsortedInputSorted(t *testing.T) {
	got := parseLrc("[00:30]later\n[00:10]earlier")
	if got[0].TimeMs != 10000 || got[1].TimeMs != 30000 {
		t.Fatalf("lines not sorted: %+v", got)
	}
}
