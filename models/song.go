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

// Package models contains the plain data types shared across the runtime:
// songs, playlists and the small value types built on top of them. None of
// these types carry behavior beyond simple accessors; they cross component
// boundaries as owned values or immutable snapshots, never as shared
// pointers into another component's state.
package models

// Song is immutable once constructed: its identity and metadata never
// change after the gateway hands one back. Duration is kept in whole
// milliseconds, matching the wire representation and the progress/elapsed
// math in the audio engine and reducer.
type Song struct {
	Id         Id
	Name       string
	Artists    []string
	DurationMs int64
}

func (s *Song) GetId() Id {
	return s.Id
}

func (s *Song) GetName() string {
	return s.Name
}

// ArtistNames joins artist names with " / " for single-line display.
func (s *Song) ArtistNames() string {
	out := ""
	for i, a := range s.Artists {
		if i > 0 {
			out += " / "
		}
		out += a
	}
	return out
}
