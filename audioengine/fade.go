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

import "github.com/faiface/beep"

// fadeStreamer applies a linear gain ramp from `from` to `to` over
// `samples` samples, then holds at `to` for the remainder of the
// wrapped stream. beep.Mixer drops a streamer from its active set the
// moment its Stream call returns false, so a fade-out ramp that reaches
// gain zero and then stops producing (via stopAtEnd) removes itself from
// the mix without any explicit "remove streamer" API - that API doesn't
// exist on beep.Mixer.
type fadeStreamer struct {
	beep.Streamer
	from, to   float64
	pos, total int
	stopAtEnd  bool
	done       bool
}

func newFader(s beep.Streamer, from, to float64, total int, stopAtEnd bool) *fadeStreamer {
	return &fadeStreamer{Streamer: s, from: from, to: to, total: total, stopAtEnd: stopAtEnd}
}

func (f *fadeStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if f.done {
		return 0, false
	}
	n, ok = f.Streamer.Stream(samples)
	for i := 0; i < n; i++ {
		gain := f.gainAt(f.pos + i)
		samples[i][0] *= gain
		samples[i][1] *= gain
	}
	f.pos += n
	if !ok {
		return n, false
	}
	if f.stopAtEnd && f.pos >= f.total {
		f.done = true
	}
	return n, true
}

func (f *fadeStreamer) gainAt(pos int) float64 {
	if f.total <= 0 {
		return f.to
	}
	if pos >= f.total {
		return f.to
	}
	t := float64(pos) / float64(f.total)
	return f.from + (f.to-f.from)*t
}
