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

package audioengine

import "time"

// Audio tuning constants. They live here rather than in bootstrap config
// because the engine, not config, is the only consumer.
const (
	SamplingRate   = 44100
	MinVolumeDB    = -36.0
	MaxVolumeDB    = 0.0
	VolumeLogBase  = 2.0
	EndOfTrackPoll = 200 * time.Millisecond
)

// BufferPeriod is the speaker buffer size target.
const BufferPeriod = 150 * time.Millisecond
