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
	"strings"

	"tryffel.net/go/ncmtui/gateway"
	"tryffel.net/go/ncmtui/reqtrack"
)

var searchKey = reqtrack.Key{Kind: reqtrack.KindSearch}

// handleSearchSubmit replaces any in-flight search: a fresh id is
// allocated under the same key, so a response to the earlier query is
// dropped by the freshness check when it eventually arrives.
func (r *Reducer) handleSearchSubmit(c SearchSubmit, fx *Effects) {
	query := strings.TrimSpace(c.Query)
	if query == "" {
		return
	}
	id := r.allocate(searchKey)
	fx.Gateway(gateway.Search{ReqId: id, Query: query}, gateway.High)
}

func (r *Reducer) handleSearchReady(e gateway.SearchReady, fx *Effects) {
	if !r.accept(searchKey, e.ReqId) {
		return
	}
	r.app.searchResults = e.Songs
	fx.EmitState()
}
