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

// Package interfaces contains the contracts multiple packages share across
// component boundaries. The rendering surface, the CLI parser and the
// concrete keymap are external collaborators of this runtime and are
// referenced only through EventSink; nothing in this module implements a
// terminal UI.
package interfaces

import (
	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/snapshot"
)

// EventSink receives the reducer's output stream: state snapshots and
// user-facing messages. Any concrete rendering surface implements this;
// the reducer never depends on a concrete UI type.
type EventSink interface {
	State(snapshot.AppSnapshot)
	Toast(message string)
	Error(kind errkind.Kind, message string)
}
