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

// Playlist is a stub until Songs is filled in by a loader. TrackCount is
// known up front from list responses; Songs is nil until the two-step
// load (track ids, then batched song detail) completes.
type Playlist struct {
	Id         Id
	Name       string
	TrackCount int
	Songs      []*Song
}

func (p *Playlist) GetId() Id {
	return p.Id
}

// IsStub reports whether this playlist still needs its songs loaded.
func (p *Playlist) IsStub() bool {
	return p.Songs == nil
}
