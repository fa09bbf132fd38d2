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

// Package task provides the start/stop lifecycle shared by the runtime's
// background loops: the reducer, the gateway actor, the audio engine's
// dedicated thread, the transfer pool and the periodic saver all embed
// Task and register their loop function. Stop is synchronous: it signals
// the loop by closing its stop channel and waits, with a bound, for the
// loop to return, so the shutdown sequence in cmd can rely on each
// component being quiescent before the next one is stopped.
package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// stopGrace is how long Stop waits for a loop to unwind before giving up.
// A loop stuck past this (e.g. the gateway mid-request against a slow
// host) is reported as an error and abandoned; shutdown proceeds.
const stopGrace = 10 * time.Second

// Tasker can be run on background.
type Tasker interface {
	Start() error
	Stop() error
}

// Task holds the bookkeeping a background loop needs. The zero value is
// usable after SetLoop; embedding types set Name for log lines.
type Task struct {
	// Name of the task, used in log lines so multiple background loops
	// are distinguishable.
	Name string

	mu       sync.Mutex
	loop     func()
	running  bool
	stopping bool
	// stop is closed to ask the loop to return; done is closed by the
	// loop goroutine once it has.
	stop chan struct{}
	done chan struct{}
}

// SetLoop registers the function run runs. Must be called before Start.
func (t *Task) SetLoop(loop func()) {
	t.mu.Lock()
	t.loop = loop
	t.mu.Unlock()
}

// StopChan returns the channel the loop must select on. It is closed
// exactly once, when Stop is called; a closed channel keeps delivering,
// so a loop re-checking it after cleanup still sees the request.
func (t *Task) StopChan() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop
}

// IsRunning reports whether the loop goroutine is currently live.
func (t *Task) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Start launches the loop goroutine. Starting an already-running task or
// one with no loop registered is an error.
func (t *Task) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("%s: already running", t.Name)
	}
	if t.loop == nil {
		return fmt.Errorf("%s: no loop registered", t.Name)
	}

	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	t.running = true
	t.stopping = false

	go func() {
		logrus.Tracef("%s: loop started", t.Name)
		t.loop()
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		close(t.done)
		logrus.Tracef("%s: loop exited", t.Name)
	}()
	return nil
}

// Stop signals the loop and waits up to stopGrace for it to return.
// Stopping a task that is not running is an error.
func (t *Task) Stop() error {
	t.mu.Lock()
	if t.stop == nil || !t.running || t.stopping {
		t.mu.Unlock()
		return fmt.Errorf("%s: not running", t.Name)
	}
	t.stopping = true
	stop, done := t.stop, t.done
	t.mu.Unlock()

	logrus.Tracef("%s: stop requested", t.Name)
	close(stop)

	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
		return fmt.Errorf("%s: loop did not exit within %v", t.Name, stopGrace)
	}
}
