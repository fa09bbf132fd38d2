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

package persistence

import (
	"time"

	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/task"
)

// Saver drives the periodic player-state save. It never reads App state
// itself; it calls back into the reducer to obtain the current snapshot
// to persist, keeping persistence.Store - and this type - ignorant of
// reducer internals.
type Saver struct {
	task.Task
	interval  time.Duration
	snapshot  func() PlayerState
	store     *Store
}

// NewSaver builds a periodic saver. snapshot is called on every tick and
// on Flush to obtain the state to write.
func NewSaver(store *Store, interval time.Duration, snapshot func() PlayerState) *Saver {
	s := &Saver{interval: interval, snapshot: snapshot, store: store}
	s.Name = "persistence.Saver"
	s.Task.SetLoop(s.loop)
	return s
}

func (s *Saver) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.StopChan():
			s.Flush()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Flush saves the current snapshot immediately. The saver's loop calls it
// on every tick and once more when the saver is stopped at shutdown.
func (s *Saver) Flush() {
	st := s.snapshot()
	if err := s.store.SavePlayerState(st); err != nil {
		logrus.Errorf("save player state: %v", err)
	}
}
