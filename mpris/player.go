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

package mpris

import (
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/prop"
	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/reducer"
	"tryffel.net/go/ncmtui/snapshot"
)

// Player is a DBus object satisfying the `org.mpris.MediaPlayer2.Player`
// interface.
// https://specifications.freedesktop.org/mpris-spec/latest/Player_Interface.html
type Player struct {
	*MediaController
	lastState snapshot.AppSnapshot
}

// PlaybackStatus is a playback state.
type PlaybackStatus string

const (
	PlaybackStatusPlaying PlaybackStatus = "Playing"
	PlaybackStatusPaused  PlaybackStatus = "Paused"
	PlaybackStatusStopped PlaybackStatus = "Stopped"
)

// MetadataMap is the mpris metadata dictionary shape.
type MetadataMap map[string]interface{}

func mapFromSnapshot(s snapshot.AppSnapshot) MetadataMap {
	m := MetadataMap{}
	if s.NowPlaying == nil {
		return m
	}
	m["mpris:trackid"] = dbus.ObjectPath("/org/ncmtui/track/" + s.NowPlaying.Id.String())
	m["mpris:length"] = s.TotalMs * 1000
	m["xesam:title"] = s.NowPlaying.Name
	m["xesam:artist"] = s.NowPlaying.Artists
	return m
}

// UpdateState pushes a fresh reducer snapshot to dbus. Wired as the event
// sink's state callback; safe to call from any goroutine.
func (p *Player) UpdateState(s snapshot.AppSnapshot) {
	p.lastState = s
	if p.props == nil {
		return
	}

	status := PlaybackStatusStopped
	if s.Queue.Playing {
		status = PlaybackStatusPlaying
		if s.Queue.Paused {
			status = PlaybackStatusPaused
		}
	}

	object := objectName("Player")
	if err := p.props.Set(object, "Metadata", dbus.MakeVariant(mapFromSnapshot(s))); err != nil {
		logrus.Error(err)
		return
	}
	if err := p.props.Set(object, "Position", dbus.MakeVariant(s.ElapsedMs*1000)); err != nil {
		logrus.Error(err)
		return
	}
	if err := p.props.Set(object, "PlaybackStatus", dbus.MakeVariant(status)); err != nil {
		logrus.Error(err)
		return
	}
}

// OnVolume handles volume changes. The mpris surface is absolute; the
// player command is a delta, so the difference against the last snapshot
// is submitted.
func (p *Player) OnVolume(c *prop.Change) *dbus.Error {
	target := c.Value.(float64)
	if target < 0 {
		target = 0
	}
	if target > 1 {
		target = 1
	}
	p.controller.Submit(reducer.PlayerVolume{Delta: target - p.lastState.Volume})
	return nil
}

func (p *Player) properties() map[string]*prop.Prop {
	return map[string]*prop.Prop{
		"PlaybackStatus": newProp(PlaybackStatusStopped, false, true, nil),
		"Rate":           newProp(1.0, false, true, nil),
		"Metadata":       newProp(mapFromSnapshot(p.lastState), false, true, nil),
		"Volume":         newProp(0.5, true, true, p.OnVolume),
		"Position":       newProp(int64(0), false, true, nil),
		"MinimumRate":    newProp(1.0, false, true, nil),
		"MaximumRate":    newProp(1.0, false, true, nil),
		"CanGoNext":      newProp(true, false, true, nil),
		"CanGoPrevious":  newProp(true, false, true, nil),
		"CanPlay":        newProp(true, false, true, nil),
		"CanPause":       newProp(true, false, true, nil),
		"CanSeek":        newProp(true, false, true, nil),
		"CanControl":     newProp(true, false, true, nil),
	}
}

// Next skips to the next track.
func (p *Player) Next() *dbus.Error {
	p.controller.Submit(reducer.PlayerNext{})
	return nil
}

// Previous skips to the previous track.
func (p *Player) Previous() *dbus.Error {
	p.controller.Submit(reducer.PlayerPrev{})
	return nil
}

// Pause pauses playback.
func (p *Player) Pause() *dbus.Error {
	if p.lastState.Queue.Playing && !p.lastState.Queue.Paused {
		p.controller.Submit(reducer.PlayerTogglePause{})
	}
	return nil
}

// Play starts or resumes playback.
func (p *Player) Play() *dbus.Error {
	if p.lastState.Queue.Paused || !p.lastState.Queue.Playing {
		p.controller.Submit(reducer.PlayerTogglePause{})
	}
	return nil
}

// PlayPause toggles playback.
func (p *Player) PlayPause() *dbus.Error {
	p.controller.Submit(reducer.PlayerTogglePause{})
	return nil
}

// Stop stops playback.
func (p *Player) Stop() *dbus.Error {
	p.controller.Submit(reducer.PlayerStop{})
	return nil
}

// Seek seeks relative to the current position, in microseconds.
func (p *Player) Seek(us int64) *dbus.Error {
	p.controller.Submit(reducer.PlayerSeek{DeltaMs: us / 1000})
	return nil
}

// SetPosition is unsupported; relative Seek covers the desktop controls.
func (p *Player) SetPosition(o dbus.ObjectPath, us int64) *dbus.Error {
	return nil
}
