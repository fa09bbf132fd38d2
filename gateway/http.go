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
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/models"
)

// request issues method against path on the primary host, falling back
// to cfg.FallbackHosts in order on transport failure (DNS, connection
// refused). It does not retry on HTTP-level errors - that policy belongs
// to the transfer pool, not the gateway.
func (g *Gateway) request(method, path string, params map[string]string) (*resty.Response, error) {
	var lastErr error
	for _, host := range g.hosts {
		if host == "" {
			continue
		}
		req := g.client.R().
			SetQueryParams(params).
			SetHeader("X-Ncmtui-Device-Id", g.deviceId)
		if g.cookie != "" {
			req.SetHeader("Cookie", g.cookie)
		}

		var resp *resty.Response
		var err error
		switch method {
		case "GET":
			resp, err = req.Get(host + path)
		case "POST":
			resp, err = req.Post(host + path)
		default:
			return nil, fmt.Errorf("unsupported method %s", method)
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logrus.Warnf("gateway: %s %s via %s failed: %v", method, path, host, err)
	}
	return nil, fmt.Errorf("all hosts failed: %w", lastErr)
}

func (g *Gateway) emitError(reqId uint64, kind errkind.Kind, err error) {
	g.evts <- GatewayError{ReqId: reqId, Kind: kind, Message: err.Error()}
}

type loginQrKeyResp struct {
	Code int `json:"code"`
	Data struct {
		Unikey string `json:"unikey"`
	} `json:"data"`
}

func (g *Gateway) handleLoginQrKey(c LoginQrKey) {
	resp, err := g.request("POST", "/login/qr/key", nil)
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body loginQrKeyResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	qrUrl := fmt.Sprintf("https://music.163.com/login?codekey=%s", body.Data.Unikey)
	g.evts <- LoginQrKeyReady{ReqId: c.ReqId, Unikey: body.Data.Unikey, QrUrl: qrUrl}
}

type loginQrCheckResp struct {
	Code int `json:"code"`
}

// handleLoginQrCheck polls the status endpoint. A 803 (confirmed) also
// captures the session cookie the server set and persists it, so
// subsequent restarts can skip straight to cookie verification.
func (g *Gateway) handleLoginQrCheck(c LoginQrCheck) {
	resp, err := g.request("POST", "/login/qr/check", map[string]string{"key": c.Unikey})
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body loginQrCheckResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	if body.Code == 803 {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			g.cookie = joinCookies(cookies)
			g.persistSession()
		}
	}
	g.evts <- LoginQrStatus{ReqId: c.ReqId, Code: body.Code}
}

type loginStatusResp struct {
	Code    int `json:"code"`
	Profile *struct {
		UserId int64 `json:"userId"`
	} `json:"profile"`
}

func (g *Gateway) handleLoginByCookie(c LoginByCookie) {
	if c.Cookie == "" {
		g.emitError(c.ReqId, errkind.CookieInvalid, fmt.Errorf("empty cookie"))
		g.evts <- LoginResult{ReqId: c.ReqId, Success: false}
		return
	}
	g.cookie = c.Cookie
	resp, err := g.request("GET", "/login/status", nil)
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body loginStatusResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	if body.Profile == nil {
		g.cookie = ""
		g.evts <- LoginResult{ReqId: c.ReqId, Success: false}
		return
	}
	g.userId = models.Id(body.Profile.UserId)
	g.persistSession()
	g.evts <- LoginResult{ReqId: c.ReqId, Success: true, UserId: g.userId}
}

type accountInfoResp struct {
	Account struct {
		Id int64 `json:"id"`
	} `json:"account"`
	Profile struct {
		Nickname string `json:"nickname"`
	} `json:"profile"`
}

func (g *Gateway) handleAccountInfo(c AccountInfo) {
	resp, err := g.request("GET", "/user/account", nil)
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body accountInfoResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	g.userId = models.Id(body.Account.Id)
	g.evts <- AccountInfoReady{ReqId: c.ReqId, UserId: g.userId, Nickname: body.Profile.Nickname}
}

type userPlaylistsResp struct {
	Playlist []struct {
		Id         int64  `json:"id"`
		Name       string `json:"name"`
		TrackCount int    `json:"trackCount"`
	} `json:"playlist"`
}

func (g *Gateway) handleUserPlaylists(c UserPlaylists) {
	resp, err := g.request("GET", "/user/playlist", map[string]string{"uid": g.userId.String()})
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body userPlaylistsResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	playlists := make([]*models.Playlist, 0, len(body.Playlist))
	for _, p := range body.Playlist {
		playlists = append(playlists, &models.Playlist{
			Id: models.Id(p.Id), Name: p.Name, TrackCount: p.TrackCount,
		})
	}
	g.evts <- UserPlaylistsReady{ReqId: c.ReqId, Playlists: playlists}
}

type playlistDetailResp struct {
	Playlist struct {
		TrackIds []struct {
			Id int64 `json:"id"`
		} `json:"trackIds"`
	} `json:"playlist"`
}

func (g *Gateway) handlePlaylistTrackIds(c PlaylistTrackIds) {
	resp, err := g.request("GET", "/playlist/detail", map[string]string{"id": c.PlaylistId.String()})
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body playlistDetailResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	ids := make([]models.Id, 0, len(body.Playlist.TrackIds))
	for _, t := range body.Playlist.TrackIds {
		ids = append(ids, models.Id(t.Id))
	}
	g.evts <- PlaylistTrackIdsReady{ReqId: c.ReqId, PlaylistId: c.PlaylistId, SongIds: ids}
}

type songDetailResp struct {
	Songs []struct {
		Id int64  `json:"id"`
		Name string `json:"name"`
		Dt   int64  `json:"dt"`
		Ar   []struct {
			Name string `json:"name"`
		} `json:"ar"`
	} `json:"songs"`
}

// handleSongDetailByIds serves one batch; chunking into groups of 200 is
// the reducer's responsibility - the gateway never composes multi-step
// flows.
func (g *Gateway) handleSongDetailByIds(c SongDetailByIds) {
	idStrs := make([]string, len(c.Ids))
	for i, id := range c.Ids {
		idStrs[i] = id.String()
	}
	resp, err := g.request("POST", "/song/detail", map[string]string{"ids": joinIds(idStrs)})
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body songDetailResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	songs := make([]*models.Song, 0, len(body.Songs))
	for _, s := range body.Songs {
		artists := make([]string, 0, len(s.Ar))
		for _, ar := range s.Ar {
			artists = append(artists, ar.Name)
		}
		songs = append(songs, &models.Song{
			Id: models.Id(s.Id), Name: s.Name, Artists: artists, DurationMs: s.Dt,
		})
	}
	g.evts <- SongDetailReady{ReqId: c.ReqId, Songs: songs}
}

type songUrlResp struct {
	Data []struct {
		Id   int64  `json:"id"`
		Url  string `json:"url"`
		Code int    `json:"code"`
	} `json:"data"`
}

func (g *Gateway) handleSongUrl(c SongUrl) {
	resp, err := g.request("GET", "/song/url", map[string]string{
		"id": c.SongId.String(), "br": fmt.Sprint(c.Br),
	})
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body songUrlResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	if len(body.Data) == 0 || body.Data[0].Url == "" || body.Data[0].Code != 200 {
		g.evts <- SongUrlUnavailable{ReqId: c.ReqId, SongId: c.SongId}
		return
	}
	g.evts <- SongUrlReady{ReqId: c.ReqId, SongId: c.SongId, Url: body.Data[0].Url, Br: c.Br}
}

type lyricResp struct {
	Lrc struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
	Tlyric struct {
		Lyric string `json:"lyric"`
	} `json:"tlyric"`
}

func (g *Gateway) handleLyrics(c Lyrics) {
	resp, err := g.request("GET", "/lyric", map[string]string{"id": c.SongId.String()})
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body lyricResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	g.evts <- LyricsReady{ReqId: c.ReqId, SongId: c.SongId, Lines: body.Lrc.Lyric, Translation: body.Tlyric.Lyric}
}

type searchResp struct {
	Result struct {
		Songs []struct {
			Id   int64  `json:"id"`
			Name string `json:"name"`
			Dt   int64  `json:"duration"`
			Ar   []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"songs"`
	} `json:"result"`
}

func (g *Gateway) handleSearch(c Search) {
	resp, err := g.request("GET", "/search", map[string]string{"keywords": c.Query, "limit": "30"})
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	var body searchResp
	if err := decodeJSON(resp, &body); err != nil {
		g.emitError(c.ReqId, errkind.Decode, err)
		return
	}
	songs := make([]*models.Song, 0, len(body.Result.Songs))
	for _, s := range body.Result.Songs {
		artists := make([]string, 0, len(s.Ar))
		for _, ar := range s.Ar {
			artists = append(artists, ar.Name)
		}
		songs = append(songs, &models.Song{
			Id: models.Id(s.Id), Name: s.Name, Artists: artists, DurationMs: s.Dt,
		})
	}
	g.evts <- SearchReady{ReqId: c.ReqId, Songs: songs}
}

// handleReportProgress posts the playback position to the service's
// scrobble/playback log. The response body carries nothing the client
// needs; only the status matters.
func (g *Gateway) handleReportProgress(c ReportProgress) {
	params := map[string]string{
		"id":    c.SongId.String(),
		"time":  fmt.Sprintf("%d", c.ElapsedMs/1000),
		"total": fmt.Sprintf("%d", c.TotalMs/1000),
		"event": c.Event,
	}
	if c.Paused {
		params["paused"] = "1"
	}
	resp, err := g.request("POST", "/feedback/weblog", params)
	if err != nil {
		g.emitError(c.ReqId, errkind.Network, err)
		return
	}
	if resp.StatusCode() >= 400 {
		g.emitError(c.ReqId, errkind.ApiStatus, fmt.Errorf("status %d", resp.StatusCode()))
		return
	}
	g.evts <- ProgressReported{ReqId: c.ReqId}
}
