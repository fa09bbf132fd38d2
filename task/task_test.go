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

package task

import (
	"sync/atomic"
	"testing"
)

func Test_Start_RequiresLoop(t *testing.T) {
	task := &Task{Name: "test"}
	if err := task.Start(); err == nil {
		t.Fatal("Start() without a loop must error")
	}
}

func Test_Start_Twice_Errors(t *testing.T) {
	task := &Task{Name: "test"}
	task.SetLoop(func() { <-task.StopChan() })
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := task.Start(); err == nil {
		t.Fatal("second Start() must error")
	}
	if err := task.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func Test_Stop_NotRunning_Errors(t *testing.T) {
	task := &Task{Name: "test"}
	task.SetLoop(func() { <-task.StopChan() })
	if err := task.Stop(); err == nil {
		t.Fatal("Stop() before Start() must error")
	}
}

// Stop must not return before the loop has finished unwinding, so a
// caller can rely on the component being quiescent afterwards.
func Test_Stop_WaitsForLoopExit(t *testing.T) {
	task := &Task{Name: "test"}
	var cleaned atomic.Bool
	task.SetLoop(func() {
		<-task.StopChan()
		cleaned.Store(true)
	})
	if err := task.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := task.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !cleaned.Load() {
		t.Fatal("Stop() returned before the loop exited")
	}
	if task.IsRunning() {
		t.Fatal("IsRunning() true after Stop")
	}
}

func Test_Restartable(t *testing.T) {
	task := &Task{Name: "test"}
	task.SetLoop(func() { <-task.StopChan() })
	for i := 0; i < 2; i++ {
		if err := task.Start(); err != nil {
			t.Fatalf("round %d Start() error = %v", i, err)
		}
		if err := task.Stop(); err != nil {
			t.Fatalf("round %d Stop() error = %v", i, err)
		}
	}
}
