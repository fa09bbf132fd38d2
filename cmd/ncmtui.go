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

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"tryffel.net/go/ncmtui/audioengine"
	"tryffel.net/go/ncmtui/config"
	"tryffel.net/go/ncmtui/errkind"
	"tryffel.net/go/ncmtui/gateway"
	"tryffel.net/go/ncmtui/mpris"
	"tryffel.net/go/ncmtui/persistence"
	"tryffel.net/go/ncmtui/reducer"
	"tryffel.net/go/ncmtui/snapshot"
	"tryffel.net/go/ncmtui/transfer"
)

const saveInterval = 30 * time.Second

// consoleSink is the default event sink for headless runs: snapshots feed
// the remote-control bridge, messages go to the log. A real rendering
// surface replaces this by implementing interfaces.EventSink itself.
type consoleSink struct {
	mu    sync.Mutex
	mpris *mpris.Player
}

func (s *consoleSink) State(snap snapshot.AppSnapshot) {
	s.mu.Lock()
	player := s.mpris
	s.mu.Unlock()
	if player != nil {
		player.UpdateState(snap)
	}
}

func (s *consoleSink) Toast(message string) {
	logrus.Info(message)
}

func (s *consoleSink) Error(kind errkind.Kind, message string) {
	if kind == errkind.Fatal {
		logrus.Fatalf("fatal: %s", message)
	}
	logrus.Errorf("%s: %s", kind, message)
}

func (s *consoleSink) setMpris(p *mpris.Player) {
	s.mu.Lock()
	s.mpris = p
	s.mu.Unlock()
}

// Application owns every long-running component and the order they start
// and stop in.
type Application struct {
	store    *persistence.Store
	settings persistence.Settings

	index  *transfer.Index
	pool   *transfer.Pool
	engine *audioengine.Engine
	gw     *gateway.Gateway
	core   *reducer.Reducer
	saver  *persistence.Saver

	sink        *consoleSink
	mpris       *mpris.MediaController
	mprisPlayer *mpris.Player

	logFile string
}

// NewApplication builds the full component graph from bootstrap config
// and persisted settings. A settings file that exists but cannot be read,
// or a cache directory that cannot be opened, surfaces as an error and a
// non-zero exit; a corrupt settings file is replaced by defaults.
func NewApplication() (*Application, error) {
	a := &Application{sink: &consoleSink{}}
	cfg := config.AppConfig

	a.logFile = setLogging()
	logrus.Infof("############# %s v%s ############", config.AppName, config.Version)

	a.store = persistence.NewStore(cfg.SettingsFile(), cfg.PlayerStateFile())
	settings, err := a.store.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	a.settings = applySettingsOverrides(settings)

	playerState, err := a.store.LoadPlayerState()
	if err != nil {
		logrus.Warnf("load player state: %v", err)
	}

	a.index, err = transfer.NewIndex(path.Join(cfg.CacheDir, "audio_cache"))
	if err != nil {
		return nil, fmt.Errorf("open audio cache: %w", err)
	}

	concurrency := 0
	if a.settings.DownloadConcurrency != nil {
		concurrency = *a.settings.DownloadConcurrency
	}
	a.pool = transfer.NewPool(a.index, transfer.Config{
		MaxBytes:           int64(a.settings.AudioCacheMaxMB) * 1024 * 1024,
		Concurrency:        concurrency,
		MaxRetries:         a.settings.DownloadRetries,
		BackoffBaseMs:      a.settings.RetryBackoffMinMs,
		BackoffMaxMs:       a.settings.RetryBackoffMaxMs,
		HttpTimeout:        time.Duration(a.settings.HttpTimeoutSecs) * time.Second,
		HttpConnectTimeout: time.Duration(a.settings.HttpConnectTimeoutS) * time.Second,
	})

	a.engine = audioengine.New(a.pool, cfg.NoAudio)

	a.gw = gateway.New(gateway.Config{
		Host:           "https://" + cfg.Server,
		FallbackHosts:  fallbackHosts(cfg.Server),
		SessionFile:    cfg.SessionFile(),
		AppName:        config.AppNameLower,
		HttpTimeout:    time.Duration(a.settings.HttpTimeoutSecs) * time.Second,
		ConnectTimeout: time.Duration(a.settings.HttpConnectTimeoutS) * time.Second,
	})

	a.core = reducer.New(reducer.Params{
		Gateway:       a.gw,
		GatewayEvents: a.gw.Events(),
		AudioCommands: a.engine.Commands(),
		AudioEvents:   a.engine.Events(),
		Pool:          a.pool,
		Sink:          a.sink,
		Store:         a.store,
		Settings:      a.settings,
		PlayerState:   playerState,
		LogFile:       a.logFile,
		ConfigFile:    cfg.ConfigFile(),
	})

	a.saver = persistence.NewSaver(a.store, saveInterval, a.core.PlayerStatePersist)

	if cfg.EnableRemoteControl {
		a.initMpris()
	}
	return a, nil
}

// fallbackHosts returns the alternate API hostnames tried on DNS failure
// to the primary domain.
func fallbackHosts(server string) []string {
	return []string{
		"https://interface." + server,
		"https://interface3." + server,
	}
}

// applySettingsOverrides shadows persisted settings with runtime env
// values for this process only; the file on disk is left untouched.
func applySettingsOverrides(s persistence.Settings) persistence.Settings {
	if cacheMaxMBOverride > 0 {
		s.AudioCacheMaxMB = cacheMaxMBOverride
	}
	if downloadConcurrencyOverride > 0 {
		s.DownloadConcurrency = &downloadConcurrencyOverride
	}
	if httpTimeoutOverride > 0 {
		s.HttpTimeoutSecs = httpTimeoutOverride
	}
	if downloadRetriesOverride > 0 {
		s.DownloadRetries = downloadRetriesOverride
	}
	return s
}

func (a *Application) initMpris() {
	var err error
	a.mpris, err = mpris.NewController(a.core)
	if err != nil {
		logrus.Warnf("remote control unavailable: %v", err)
		return
	}
	a.mprisPlayer = &mpris.Player{MediaController: a.mpris}
	if err := a.mpris.Export(a.mprisPlayer); err != nil {
		logrus.Warnf("export remote control: %v", err)
		a.mpris.Close()
		a.mpris = nil
		a.mprisPlayer = nil
		return
	}
	a.sink.setMpris(a.mprisPlayer)
}

// Run starts every component, restores a persisted session and blocks
// until a quit command or a signal arrives, then runs the shutdown
// sequence.
func (a *Application) Run() error {
	starters := []interface{ Start() error }{a.pool, a.gw, a.engine, a.core, a.saver}
	for _, t := range starters {
		if err := t.Start(); err != nil {
			return fmt.Errorf("start %T: %w", t, err)
		}
	}

	// push the persisted audio settings into the engine
	a.engine.Commands() <- audioengine.SetVolume{Volume: a.settings.Volume}
	a.engine.Commands() <- audioengine.SetCrossfadeMs{Ms: a.settings.CrossfadeMs}

	// a session recovered from disk skips the interactive flows and goes
	// straight to cookie verification
	if a.gw.HasSession() && !config.AppConfig.SkipLogin {
		a.core.Submit(reducer.LoginSubmitCookie{Cookie: a.gw.SessionCookie()})
	}

	sig := catchSignals()
	select {
	case <-sig:
		logrus.Info("received signal, shutting down")
	case <-a.core.Done():
		logrus.Info("quit requested, shutting down")
	}
	return a.Stop()
}

// Stop drains in spec order: the reducer stops accepting commands, the
// persistence snapshot is flushed, the audio engine stops, then the
// transfer pool finishes in-flight work and the index is saved.
func (a *Application) Stop() error {
	var firstErr error
	record := func(err error) {
		if err != nil {
			logrus.Error(err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	record(a.core.Stop())
	record(a.saver.Stop()) // Saver flushes once more on its way out
	a.engine.Commands() <- audioengine.Stop{}
	record(a.engine.Stop())
	record(a.pool.Stop())
	record(a.gw.Stop())
	record(a.index.Save())

	if a.mpris != nil {
		a.mpris.Close()
	}
	return firstErr
}

// setLogging configures logrus with the prefixed formatter writing to a
// daily log file under the log dir. Returns the active log file path for
// the diagnostics snapshot.
func setLogging() string {
	level, err := logrus.ParseLevel(config.AppConfig.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q, using info\n", config.AppConfig.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&prefixed.TextFormatter{
		ForceColors:      false,
		DisableColors:    true,
		ForceFormatting:  true,
		FullTimestamp:    true,
		TimestampFormat:  "15:04:05.000",
		QuoteEmptyFields: true,
		QuoteCharacter:   "'",
	})

	dir := logDirOverride
	if dir == "" {
		dir = path.Join(config.AppConfig.DataDir, "logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logrus.Error("create log dir: ", err)
		logrus.SetOutput(os.Stderr)
		return ""
	}
	// daily rotation by file name
	file := path.Join(dir, fmt.Sprintf("%s-%s.log", config.AppNameLower, time.Now().Format("2006-01-02")))
	fd, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o660)
	if err != nil {
		logrus.Error("open log file: ", err)
		logrus.SetOutput(os.Stderr)
		return ""
	}
	logrus.SetOutput(fd)
	return file
}

func catchSignals() chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c,
		syscall.SIGINT,
		syscall.SIGTERM)
	return c
}
