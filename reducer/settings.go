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
	"time"

	"tryffel.net/go/ncmtui/audioengine"
	"tryffel.net/go/ncmtui/gateway"
)

// handleSetBitrate changes the target bitrate for subsequent play-url
// requests and downloads. Cached entries for the currently playing song at
// other bitrates are purged so the cache holds only the active bitrate for
// it. The change does not interrupt the playing track.
func (r *Reducer) handleSetBitrate(c SettingsSetBitrate, fx *Effects) {
	if c.Br <= 0 || c.Br == r.app.settings.Bitrate {
		return
	}
	r.app.settings.Bitrate = c.Br
	r.app.nextSong = nil
	if r.pool != nil && r.app.playSongId != 0 {
		r.pool.PurgeBitrate(r.app.playSongId, c.Br)
	}
	r.persistSettings()
	fx.EmitState()
}

func (r *Reducer) handleSetCrossfade(c SettingsSetCrossfade, fx *Effects) {
	if c.Ms < 0 {
		c.Ms = 0
	}
	r.app.settings.CrossfadeMs = c.Ms
	fx.Audio(audioengine.SetCrossfadeMs{Ms: c.Ms})
	r.persistSettings()
	fx.EmitState()
}

// handleSetCacheMaxMB changes the cache size cap and applies it to the
// pool immediately, which may evict LRU entries on the spot.
func (r *Reducer) handleSetCacheMaxMB(c SettingsSetCacheMaxMB, fx *Effects) {
	if c.MB <= 0 {
		return
	}
	r.app.settings.AudioCacheMaxMB = c.MB
	if r.pool != nil {
		r.pool.SetMaxBytes(int64(c.MB) * 1024 * 1024)
	}
	r.persistSettings()
	fx.EmitState()
}

func (r *Reducer) handleSetDownloadConcurrency(c SettingsSetDownloadConcurrency, fx *Effects) {
	if c.N <= 0 {
		r.app.settings.DownloadConcurrency = nil
	} else {
		n := c.N
		r.app.settings.DownloadConcurrency = &n
	}
	if r.pool != nil {
		r.pool.SetConcurrency(c.N)
	}
	r.persistSettings()
	fx.EmitState()
}

// handleSetHttpTimeouts pushes new timeouts to both HTTP users: the
// transfer pool directly and the gateway through its command queue, so
// the gateway's client stays confined to its own goroutine.
func (r *Reducer) handleSetHttpTimeouts(c SettingsSetHttpTimeouts, fx *Effects) {
	if c.TotalSecs > 0 {
		r.app.settings.HttpTimeoutSecs = c.TotalSecs
	}
	if c.ConnectSecs > 0 {
		r.app.settings.HttpConnectTimeoutS = c.ConnectSecs
	}
	total := time.Duration(r.app.settings.HttpTimeoutSecs) * time.Second
	connect := time.Duration(r.app.settings.HttpConnectTimeoutS) * time.Second
	if r.pool != nil {
		r.pool.SetHttpTimeouts(total, connect)
	}
	fx.Gateway(gateway.SetTimeouts{Total: total, Connect: connect}, gateway.High)
	r.persistSettings()
	fx.EmitState()
}

func (r *Reducer) handleSetRetrySchedule(c SettingsSetRetrySchedule, fx *Effects) {
	if c.Retries > 0 {
		r.app.settings.DownloadRetries = c.Retries
	}
	if c.BackoffMinMs > 0 {
		r.app.settings.RetryBackoffMinMs = c.BackoffMinMs
	}
	if c.BackoffMaxMs > 0 {
		r.app.settings.RetryBackoffMaxMs = c.BackoffMaxMs
	}
	if r.pool != nil {
		r.pool.SetRetrySchedule(c.Retries, c.BackoffMinMs, c.BackoffMaxMs)
	}
	r.persistSettings()
	fx.EmitState()
}
