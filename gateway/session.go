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

package gateway

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/models"
)

// session is the on-disk shape of netease_state.json: the one piece of
// state the gateway itself persists (everything else lives in the
// reducer/persistence package). Kept deliberately small.
type session struct {
	Cookie string     `json:"cookie"`
	UserId models.Id  `json:"user_id"`
}

// loadSession reads the cookie file. A missing or corrupt file is
// treated as "no session" (anonymous bootstrap); cookie persistence
// failure is a non-fatal warning, never an error.
func loadSession(path string) session {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.Warnf("read session file: %v", err)
		}
		return session{}
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		logrus.Warnf("session file corrupt, starting anonymous: %v", err)
		return session{}
	}
	return s
}

// saveSession writes the cookie file atomically: tmp then rename, same
// discipline as persistence.atomicWriteJSON. A write failure here is
// logged, not propagated - losing the cookie only means re-login next
// run, not a crash.
func saveSession(path string, s session) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		logrus.Warnf("marshal session: %v", err)
		return
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		logrus.Warnf("write session file: %v", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		logrus.Warnf("rename session file: %v", err)
	}
}

// deviceId derives a stable per-install id: a protected machine id,
// falling back to a random key if the platform denies it (e.g. sandboxed
// containers).
func deviceId(appName string) string {
	id, err := machineid.ProtectedID(appName)
	if err != nil {
		logrus.Errorf("get unique host id: %v", err)
		return randomDeviceId()
	}
	return id
}

func randomDeviceId() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unknown-device"
	}
	return fmt.Sprintf("%x", b)
}
