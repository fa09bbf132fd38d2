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

package reqtrack

import "testing"

func Test_StaleResponseDropped(t *testing.T) {
	tr := New()
	key := Key{Kind: KindSearch, Arg: "query"}

	r1 := tr.Allocate(key)
	r2 := tr.Allocate(key)

	if r2 <= r1 {
		t.Fatalf("r2 (%d) should exceed r1 (%d)", r2, r1)
	}
	if tr.Accept(key, r1) {
		t.Fatalf("stale id r1 should not be accepted once r2 has been issued")
	}
	if !tr.Accept(key, r2) {
		t.Fatalf("current id r2 should be accepted")
	}
	if tr.HasPending(key) {
		t.Fatalf("HasPending should be false after accepting the current response")
	}
}

func Test_IndependentKeysDoNotInterfere(t *testing.T) {
	tr := New()
	songA := Key{Kind: KindSongUrl, Arg: "A"}
	songB := Key{Kind: KindSongUrl, Arg: "B"}

	idA := tr.Allocate(songA)
	idB := tr.Allocate(songB)

	if !tr.Accept(songA, idA) {
		t.Fatalf("accept for songA failed")
	}
	if !tr.Accept(songB, idB) {
		t.Fatalf("accept for songB failed")
	}
}

func Test_HasPendingReflectsOutstandingRequest(t *testing.T) {
	tr := New()
	key := Key{Kind: KindAccountInfo}
	if tr.HasPending(key) {
		t.Fatalf("fresh tracker should have no pending request")
	}
	id := tr.Allocate(key)
	if !tr.HasPending(key) {
		t.Fatalf("after Allocate, HasPending should be true")
	}
	tr.Accept(key, id)
	if tr.HasPending(key) {
		t.Fatalf("after Accept, HasPending should be false")
	}
}
