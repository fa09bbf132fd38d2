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

// Package gateway is the actor fronting the remote API: a two-priority
// command queue, a resty-backed HTTP client with DNS-fallback hosts, and
// session/device identity persistence. Every command carries a req_id and
// every event echoes it, so the reducer can discard stale replies. The
// actor never composes multi-step flows (playlist -> track ids -> detail);
// that composition belongs to the reducer.
package gateway

import (
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/models"
	"tryffel.net/go/ncmtui/task"
)

// Config configures host resolution and transport timeouts.
type Config struct {
	Host            string
	FallbackHosts   []string
	SessionFile     string
	AppName         string
	HttpTimeout     time.Duration
	ConnectTimeout  time.Duration
}

func (c *Config) sanitize() {
	if c.HttpTimeout <= 0 {
		c.HttpTimeout = 10 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.AppName == "" {
		c.AppName = "ncmtui"
	}
}

// Gateway is the actor: single consumer goroutine draining a high and a
// low priority command queue, talking to the remote API over resty, and
// emitting typed Events back to the reducer.
type Gateway struct {
	task.Task

	cfg Config

	client   *resty.Client
	hosts    []string
	cookie   string
	userId   models.Id
	deviceId string

	high chan Command
	low  chan Command
	evts chan Event
}

// New builds a gateway. The session file is read immediately (but not
// acted on network-wise) so Submit callers can already see whether a
// prior cookie exists via HasSession.
func New(cfg Config) *Gateway {
	cfg.sanitize()
	s := loadSession(cfg.SessionFile)

	g := &Gateway{
		cfg:      cfg,
		client:   newHTTPClient(cfg.HttpTimeout, cfg.ConnectTimeout),
		hosts:    append([]string{cfg.Host}, cfg.FallbackHosts...),
		cookie:   s.Cookie,
		deviceId: deviceId(cfg.AppName),
		high:     make(chan Command, 32),
		low:      make(chan Command, 32),
		evts:     make(chan Event, 32),
	}
	g.Name = "gateway.Gateway"
	g.Task.SetLoop(g.loop)
	return g
}

// newHTTPClient builds a resty client with a total and a connect timeout.
func newHTTPClient(total, connect time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(total).
		SetTransport(&http.Transport{
			DialContext: (&net.Dialer{Timeout: connect}).DialContext,
		})
}

// Events returns the channel the reducer listens on for gateway events.
func (g *Gateway) Events() <-chan Event { return g.evts }

// HasSession reports whether a cookie was recovered from disk on
// startup, letting the reducer's login handler skip straight to
// Authenticated-pending-verification instead of Anonymous.
func (g *Gateway) HasSession() bool { return g.cookie != "" }

// SessionCookie returns the persisted cookie, if any, so startup can
// feed it straight into the cookie verification flow.
func (g *Gateway) SessionCookie() string { return g.cookie }

// Submit enqueues cmd on the requested priority queue. Non-blocking for
// callers running on the reducer goroutine is not guaranteed here since
// the queues are buffered channels; a full queue means the gateway is
// badly backed up, which is itself a signal worth blocking on rather
// than silently dropping a command.
func (g *Gateway) Submit(cmd Command, priority Priority) {
	if priority == High {
		g.high <- cmd
	} else {
		g.low <- cmd
	}
}

func (g *Gateway) loop() {
	for {
		select {
		case <-g.StopChan():
			return
		default:
		}

		// Drain every currently queued high-priority command before
		// considering low-priority work.
		drained := false
		for !drained {
			select {
			case cmd := <-g.high:
				g.handle(cmd)
			default:
				drained = true
			}
		}

		select {
		case <-g.StopChan():
			return
		case cmd := <-g.high:
			g.handle(cmd)
		case cmd := <-g.low:
			g.handle(cmd)
		}
	}
}

func (g *Gateway) handle(cmd Command) {
	switch c := cmd.(type) {
	case LoginQrKey:
		g.handleLoginQrKey(c)
	case LoginQrCheck:
		g.handleLoginQrCheck(c)
	case LoginByCookie:
		g.handleLoginByCookie(c)
	case AccountInfo:
		g.handleAccountInfo(c)
	case UserPlaylists:
		g.handleUserPlaylists(c)
	case PlaylistTrackIds:
		g.handlePlaylistTrackIds(c)
	case SongDetailByIds:
		g.handleSongDetailByIds(c)
	case SongUrl:
		g.handleSongUrl(c)
	case Lyrics:
		g.handleLyrics(c)
	case Search:
		g.handleSearch(c)
	case ReportProgress:
		g.handleReportProgress(c)
	case SetTimeouts:
		g.handleSetTimeouts(c)
	default:
		logrus.Warnf("gateway: unknown command %T", cmd)
	}
}

// handleSetTimeouts swaps the HTTP client between requests; it runs on
// the actor goroutine so no request is mid-flight on the old client.
func (g *Gateway) handleSetTimeouts(c SetTimeouts) {
	total, connect := c.Total, c.Connect
	if total <= 0 {
		total = g.cfg.HttpTimeout
	}
	if connect <= 0 {
		connect = g.cfg.ConnectTimeout
	}
	g.cfg.HttpTimeout = total
	g.cfg.ConnectTimeout = connect
	g.client = newHTTPClient(total, connect)
	logrus.Debugf("gateway: http timeouts now total=%v connect=%v", total, connect)
}

func (g *Gateway) persistSession() {
	saveSession(g.cfg.SessionFile, session{Cookie: g.cookie, UserId: g.userId})
}
