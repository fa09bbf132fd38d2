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

package models

import "math"

// Paging describes a page of remote results. First page is 0.
type Paging struct {
	TotalItems  int
	TotalPages  int
	CurrentPage int
	PageSize    int
}

// SetTotalItems records the item count and derives the page count.
func (p *Paging) SetTotalItems(count int) {
	p.TotalItems = count
	if p.PageSize <= 0 {
		p.PageSize = 1
	}
	p.TotalPages = int(math.Ceil(float64(count) / float64(p.PageSize)))
}

// Offset returns the item offset the current page starts at.
func (p *Paging) Offset() int {
	return p.PageSize * p.CurrentPage
}

// ChunkIds splits ids into fixed-size chunks, used to batch song-detail
// lookups (the gateway fetches at most 200 ids per request).
func ChunkIds(ids []Id, size int) [][]Id {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]Id
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}

// Tick is a millisecond-resolution duration used throughout the playback
// progress and audio-engine state machine.
type Tick int64

func (t Tick) Seconds() int64 {
	return int64(t) / 1000
}

func (t Tick) Milliseconds() int64 {
	return int64(t)
}
