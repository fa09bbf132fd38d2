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
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/gateway"
	"tryffel.net/go/ncmtui/reqtrack"
	"tryffel.net/go/ncmtui/snapshot"
)

// QR poll status codes from the remote service.
const (
	qrStatusExpired   = 800
	qrStatusWaiting   = 801
	qrStatusScanned   = 802
	qrStatusConfirmed = 803
)

var (
	qrKeyKey    = reqtrack.Key{Kind: reqtrack.KindLoginQrKey}
	qrCheckKey  = reqtrack.Key{Kind: reqtrack.KindLoginQrCheck}
	cookieKey   = reqtrack.Key{Kind: reqtrack.KindLoginByCookie}
	accountKey  = reqtrack.Key{Kind: reqtrack.KindAccountInfo}
	playlistKey = reqtrack.Key{Kind: reqtrack.KindUserPlaylists}
)

func (r *Reducer) handleLoginGenerateQr(fx *Effects) {
	if r.app.login == snapshot.LoginAuthenticated {
		fx.Toast("already logged in")
		return
	}
	id := r.allocate(qrKeyKey)
	fx.Gateway(gateway.LoginQrKey{ReqId: id}, gateway.High)
}

func (r *Reducer) handleLoginSubmitCookie(c LoginSubmitCookie, fx *Effects) {
	cookie := strings.TrimSpace(c.Cookie)
	if cookie == "" {
		fx.Error(errkind.CookieInvalid, "cookie must not be empty")
		return
	}
	r.app.login = snapshot.LoginCookieEntry
	id := r.allocate(cookieKey)
	fx.Gateway(gateway.LoginByCookie{ReqId: id, Cookie: cookie}, gateway.High)
	fx.EmitState()
}

func (r *Reducer) handleQrKeyReady(e gateway.LoginQrKeyReady, fx *Effects) {
	if !r.accept(qrKeyKey, e.ReqId) {
		return
	}
	r.app.qrUnikey = e.Unikey
	r.app.qrUrl = e.QrUrl
	r.app.login = snapshot.LoginQrPending
	r.app.lastQrPoll = r.now()
	fx.EmitState()
}

// tickQrPoll drives the 2 s QR polling schedule: a timer-driven message,
// no hidden goroutine. Only one check is outstanding at a time.
func (r *Reducer) tickQrPoll(now time.Time, fx *Effects) {
	if r.app.login != snapshot.LoginQrPending {
		return
	}
	if now.Sub(r.app.lastQrPoll) < qrPollInterval {
		return
	}
	if r.tracker.HasPending(qrCheckKey) {
		return
	}
	r.app.lastQrPoll = now
	id := r.allocate(qrCheckKey)
	fx.Gateway(gateway.LoginQrCheck{ReqId: id, Unikey: r.app.qrUnikey}, gateway.High)
}

func (r *Reducer) handleQrStatus(e gateway.LoginQrStatus, fx *Effects) {
	if !r.accept(qrCheckKey, e.ReqId) {
		return
	}
	if r.app.login != snapshot.LoginQrPending {
		return
	}
	switch e.Code {
	case qrStatusWaiting, qrStatusScanned:
		// keep polling
	case qrStatusExpired:
		r.app.login = snapshot.LoginAnonymous
		r.app.qrUrl = ""
		r.app.qrUnikey = ""
		fx.Toast("qr code expired, generate a new one")
		fx.EmitState()
	case qrStatusConfirmed:
		r.completeLogin(fx)
	default:
		logrus.Warnf("unexpected qr status code %d", e.Code)
	}
}

func (r *Reducer) handleLoginResult(e gateway.LoginResult, fx *Effects) {
	if !r.accept(cookieKey, e.ReqId) {
		return
	}
	if !e.Success {
		r.app.login = snapshot.LoginAnonymous
		fx.Error(errkind.CookieInvalid, "cookie rejected by server")
		fx.EmitState()
		return
	}
	r.completeLogin(fx)
}

// completeLogin runs the shared post-login sequence: fetch account info
// and the user's playlists, both at high priority. The top-N playlist
// preload is scheduled once the playlist list arrives.
func (r *Reducer) completeLogin(fx *Effects) {
	r.app.login = snapshot.LoginAuthenticated
	r.app.qrUrl = ""
	r.app.qrUnikey = ""

	accountId := r.allocate(accountKey)
	fx.Gateway(gateway.AccountInfo{ReqId: accountId}, gateway.High)

	playlistsId := r.allocate(playlistKey)
	fx.Gateway(gateway.UserPlaylists{ReqId: playlistsId}, gateway.High)
	fx.EmitState()
}

func (r *Reducer) handleAccountInfoReady(e gateway.AccountInfoReady, fx *Effects) {
	if !r.accept(accountKey, e.ReqId) {
		return
	}
	logrus.Infof("logged in as %s (%s)", e.Nickname, e.UserId)
}

func (r *Reducer) handleUserPlaylistsReady(e gateway.UserPlaylistsReady, fx *Effects) {
	if !r.accept(playlistKey, e.ReqId) {
		return
	}
	r.app.playlists = e.Playlists
	r.schedulePreloads(fx)
	fx.EmitState()
}
