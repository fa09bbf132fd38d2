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

import "strconv"

// Id is the stable, 64-bit identity the remote service assigns to songs,
// playlists and artists.
type Id int64

func (i Id) String() string {
	return strconv.FormatInt(int64(i), 10)
}

// ParseId parses a remote-service id out of a JSON numeric-or-string field.
func ParseId(s string) (Id, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return Id(v), err
}
