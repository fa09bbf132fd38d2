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

// Package mpris implements dbus-integration for the mpris interface,
// letting desktop media keys and other applications control playback. OS
// commands are translated into reducer user commands; playback state flows
// the other way as snapshots.
package mpris

import (
	"fmt"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
	"github.com/godbus/dbus/prop"
	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/reducer"
)

const (
	busName    = "org.mpris.MediaPlayer2.ncmtui"
	objectPath = "/org/mpris/MediaPlayer2"
)

func objectName(suffix string) string {
	return "org.mpris.MediaPlayer2." + suffix
}

// Controller is what the bridge needs from the reducer: the ability to
// enqueue user commands.
type Controller interface {
	Submit(cmd reducer.UserCommand)
}

// MediaController exports the root MediaPlayer2 object on the session bus.
type MediaController struct {
	conn       *dbus.Conn
	props      *prop.Properties
	controller Controller
	name       string
}

// NewController connects to the session bus and requests the player name.
// A taken or unreachable bus is a warning, not a failure: remote control
// is an optional surface.
func NewController(controller Controller) (*MediaController, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	reply, err := conn.RequestName(busName, dbus.NameFlagReplaceExisting)
	if err != nil {
		return nil, fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("bus name %s already taken", busName)
	}

	mc := &MediaController{
		conn:       conn,
		controller: controller,
		name:       "ncmtui",
	}
	return mc, nil
}

// Export exports the root object and the player object with their
// properties, registering player as the command target.
func (m *MediaController) Export(player *Player) error {
	rootProps := map[string]map[string]*prop.Prop{
		objectName(""): {
			"CanQuit":             newProp(true, false, true, nil),
			"CanRaise":            newProp(false, false, true, nil),
			"HasTrackList":        newProp(false, false, true, nil),
			"Identity":            newProp(m.name, false, true, nil),
			"SupportedUriSchemes": newProp([]string{}, false, true, nil),
			"SupportedMimeTypes":  newProp([]string{}, false, true, nil),
		},
		objectName("Player"): player.properties(),
	}

	props := prop.New(m.conn, objectPath, rootProps)
	m.props = props
	player.MediaController = m

	if err := m.conn.Export(m, objectPath, objectName("")); err != nil {
		return fmt.Errorf("export root object: %w", err)
	}
	if err := m.conn.Export(player, objectPath, objectName("Player")); err != nil {
		return fmt.Errorf("export player object: %w", err)
	}

	node := &introspect.Node{
		Name: objectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{Name: objectName(""), Methods: introspect.Methods(m)},
			{Name: objectName("Player"), Methods: introspect.Methods(player)},
		},
	}
	err := m.conn.Export(introspect.NewIntrospectable(node), objectPath,
		"org.freedesktop.DBus.Introspectable")
	if err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

// Close releases the bus name.
func (m *MediaController) Close() {
	if m.conn == nil {
		return
	}
	if _, err := m.conn.ReleaseName(busName); err != nil {
		logrus.Warnf("release dbus name: %v", err)
	}
	m.conn.Close()
}

// Raise is a no-op: a terminal application has no window to raise.
func (m *MediaController) Raise() *dbus.Error { return nil }

// Quit forwards the desktop's quit request.
func (m *MediaController) Quit() *dbus.Error {
	m.controller.Submit(reducer.Quit{})
	return nil
}

func newProp(value interface{}, write bool, emit bool, cb func(*prop.Change) *dbus.Error) *prop.Prop {
	emitValue := prop.EmitFalse
	if emit {
		emitValue = prop.EmitTrue
	}
	return &prop.Prop{
		Value:    value,
		Writable: write,
		Emit:     emitValue,
		Callback: cb,
	}
}
