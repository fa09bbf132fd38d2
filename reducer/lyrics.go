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
	"regexp"
	"sort"
	"strconv"
	"strings"

	"tryffel.net/go/ncmtui/gateway"
	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/reqtrack"
	"tryffel.net/go/ncmtui/snapshot"
)

func lyricsKey(songId models.Id) reqtrack.Key {
	return reqtrack.Key{Kind: reqtrack.KindLyrics, Arg: songId.String()}
}

func (r *Reducer) requestLyrics(songId models.Id, fx *Effects) {
	if r.app.lyrics.songId == songId && len(r.app.lyrics.lines) > 0 {
		return
	}
	r.app.lyrics = lyricsState{songId: songId, offsetMs: r.app.lyrics.offsetMs}
	id := r.allocate(lyricsKey(songId))
	fx.Gateway(gateway.Lyrics{ReqId: id, SongId: songId}, gateway.Low)
}

func (r *Reducer) handleLyricsReady(e gateway.LyricsReady, fx *Effects) {
	if !r.accept(lyricsKey(e.SongId), e.ReqId) {
		return
	}
	if e.SongId != r.app.lyrics.songId {
		return
	}
	r.app.lyrics.lines = parseLyrics(e.Lines, e.Translation)
	fx.EmitState()
}

func (r *Reducer) handleLyricOffset(c LyricOffset, fx *Effects) {
	r.app.lyrics.offsetMs += c.DeltaMs
	r.app.settings.LyricsOffsetMs = r.app.lyrics.offsetMs
	r.persistSettings()
	fx.EmitState()
}

// lrcTimeTag matches [mm:ss] and [mm:ss.xx]/[mm:ss.xxx] tags; a single
// line may carry several tags for a repeated lyric.
var lrcTimeTag = regexp.MustCompile(`\[(\d+):(\d+)(?:\.(\d+))?\]`)

// parseLyrics parses LRC-format lyric text plus an optional translated
// variant into timed lines sorted by time. Translated lines attach to the
// original line with the same timestamp.
func parseLyrics(text, translation string) []snapshot.LyricLine {
	lines := parseLrc(text)
	if translation != "" {
		trans := make(map[int64]string)
		for _, tl := range parseLrc(translation) {
			trans[tl.TimeMs] = tl.Text
		}
		for i := range lines {
			lines[i].Trans = trans[lines[i].TimeMs]
		}
	}
	return lines
}

func parseLrc(text string) []snapshot.LyricLine {
	var out []snapshot.LyricLine
	for _, raw := range strings.Split(text, "\n") {
		tags := lrcTimeTag.FindAllStringSubmatch(raw, -1)
		if len(tags) == 0 {
			continue
		}
		content := strings.TrimSpace(lrcTimeTag.ReplaceAllString(raw, ""))
		if content == "" {
			continue
		}
		for _, tag := range tags {
			minutes, _ := strconv.ParseInt(tag[1], 10, 64)
			seconds, _ := strconv.ParseInt(tag[2], 10, 64)
			var fracMs int64
			if tag[3] != "" {
				frac, _ := strconv.ParseInt(tag[3], 10, 64)
				switch len(tag[3]) {
				case 1:
					fracMs = frac * 100
				case 2:
					fracMs = frac * 10
				default:
					fracMs = frac
				}
			}
			out = append(out, snapshot.LyricLine{
				TimeMs: minutes*60000 + seconds*1000 + fracMs,
				Text:   content,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeMs < out[j].TimeMs })
	return out
}
