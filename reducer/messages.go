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
	"tryffel.net/go/ncmtui/audioengine"
	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/gateway"
)

// UserCommand is the tagged-variant command surface exposed to the UI, the
// CLI and the remote-control bridge.
type UserCommand interface{ isUserCommand() }

type LoginGenerateQr struct{}
type LoginSubmitCookie struct{ Cookie string }
type SearchSubmit struct{ Query string }
type PlaylistSelect struct{ Index int }
type PlaylistTracksPlaySelected struct{ Index int }
type PlayerTogglePause struct{}
type PlayerStop struct{}
type PlayerNext struct{}
type PlayerPrev struct{}
type PlayerSeek struct{ DeltaMs int64 }
type PlayerVolume struct{ Delta float64 }
type PlayerCycleMode struct{}
type LyricOffset struct{ DeltaMs int }
type SettingsSetBitrate struct{ Br int }
type SettingsSetCrossfade struct{ Ms int }
type SettingsSetCacheMaxMB struct{ MB int }

// SettingsSetDownloadConcurrency with N <= 0 reverts to automatic
// (one slot per CPU).
type SettingsSetDownloadConcurrency struct{ N int }

// SettingsSetHttpTimeouts leaves a field's current value in place when it
// is <= 0, so either timeout can be adjusted alone.
type SettingsSetHttpTimeouts struct {
	TotalSecs   int
	ConnectSecs int
}

// SettingsSetRetrySchedule leaves a field's current value in place when
// it is <= 0.
type SettingsSetRetrySchedule struct {
	Retries      int
	BackoffMinMs int
	BackoffMaxMs int
}

type Quit struct{}

func (LoginGenerateQr) isUserCommand()            {}
func (LoginSubmitCookie) isUserCommand()          {}
func (SearchSubmit) isUserCommand()               {}
func (PlaylistSelect) isUserCommand()             {}
func (PlaylistTracksPlaySelected) isUserCommand() {}
func (PlayerTogglePause) isUserCommand()          {}
func (PlayerStop) isUserCommand()                 {}
func (PlayerNext) isUserCommand()                 {}
func (PlayerPrev) isUserCommand()                 {}
func (PlayerSeek) isUserCommand()                 {}
func (PlayerVolume) isUserCommand()               {}
func (PlayerCycleMode) isUserCommand()            {}
func (LyricOffset) isUserCommand()                {}
func (SettingsSetBitrate) isUserCommand()             {}
func (SettingsSetCrossfade) isUserCommand()           {}
func (SettingsSetCacheMaxMB) isUserCommand()          {}
func (SettingsSetDownloadConcurrency) isUserCommand() {}
func (SettingsSetHttpTimeouts) isUserCommand()        {}
func (SettingsSetRetrySchedule) isUserCommand()       {}
func (Quit) isUserCommand()                           {}

// GatewaySubmitter is what the reducer needs from the gateway actor: the
// ability to enqueue a command at a priority. gateway.Gateway satisfies it;
// tests substitute a recorder.
type GatewaySubmitter interface {
	Submit(cmd gateway.Command, priority gateway.Priority)
}

type gatewayEffect struct {
	cmd      gateway.Command
	priority gateway.Priority
}

type toastEffect struct{ message string }

type errorEffect struct {
	kind    errkind.Kind
	message string
}

// Effects is the per-message side effect buffer. Handlers never perform
// I/O directly; they append to a fresh Effects and the reducer loop drains
// it after the handler returns: gateway commands to the actor's queues,
// audio commands to the engine channel, one snapshot to the UI if any
// handler asked for it, toasts and errors to the sink.
type Effects struct {
	gatewayCmds []gatewayEffect
	audioCmds   []audioengine.Command
	emitState   bool
	toasts      []toastEffect
	errors      []errorEffect
}

// Gateway queues a gateway command at the given priority.
func (fx *Effects) Gateway(cmd gateway.Command, priority gateway.Priority) {
	fx.gatewayCmds = append(fx.gatewayCmds, gatewayEffect{cmd: cmd, priority: priority})
}

// Audio queues a command to the audio engine.
func (fx *Effects) Audio(cmd audioengine.Command) {
	fx.audioCmds = append(fx.audioCmds, cmd)
}

// EmitState marks that App changed and a snapshot must be sent. Multiple
// calls within one message collapse into a single snapshot.
func (fx *Effects) EmitState() {
	fx.emitState = true
}

// Toast queues a user-visible informational message.
func (fx *Effects) Toast(message string) {
	fx.toasts = append(fx.toasts, toastEffect{message: message})
}

// Error queues a user-visible error with its kind.
func (fx *Effects) Error(kind errkind.Kind, message string) {
	fx.errors = append(fx.errors, errorEffect{kind: kind, message: message})
}
