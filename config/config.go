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

// Package config contains application-wide configuration and constants.
// Bootstrap configuration (server, directories, log level) is read once at
// startup and rarely changes; it lives here. Settings the user adjusts at
// runtime (volume, bitrate, crossfade length, cache cap...) change far more
// often and have their own atomic save discipline, so they live in
// persistence.Settings instead.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/crypto/ssh/terminal"
)

const (
	AppName      = "ncmtui"
	AppNameLower = "ncmtui"
	Version      = "0.1.0"
)

// AppConfig is the configuration loaded during startup.
var AppConfig *Config

var configIsEmpty bool

// Config is the bootstrap configuration: where to run, where to read and
// write, and the process-level switches used mainly for testing.
type Config struct {
	Server   string `yaml:"server"`
	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	DataDir  string `yaml:"data_dir"`
	CacheDir string `yaml:"cache_dir"`

	DeviceId string `yaml:"device_id"`
	ClientID string `yaml:"client_id"`

	HttpTimeoutS        int  `yaml:"http_timeout_s"`
	EnableRemoteControl bool `yaml:"enable_remote_control"`

	NoAudio   bool `yaml:"-"`
	SkipLogin bool `yaml:"-"`
}

func (c *Config) sanitize() {
	if c.LogFile == "" {
		dir := os.TempDir()
		c.LogFile = path.Join(dir, AppNameLower+".log")
	}
	if c.LogLevel == "" {
		c.LogLevel = logrus.WarnLevel.String()
	}
	if c.HttpTimeoutS == 0 {
		c.HttpTimeoutS = 10
	}
	if c.DataDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			logrus.Fatalf("cannot determine data directory, please set config.data_dir manually")
		}
		c.DataDir = path.Join(dir, AppNameLower)
	}
	if c.CacheDir == "" {
		baseCacheDir, err := os.UserCacheDir()
		if err != nil {
			logrus.Fatalf("cannot determine cache directory, please set config.cache_dir manually")
		}
		c.CacheDir = path.Join(baseCacheDir, AppNameLower)
	}
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		logrus.Fatalf("create data dir %s: %v", c.DataDir, err)
	}
	if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
		logrus.Fatalf("create cache dir %s: %v", c.CacheDir, err)
	}
}

// initNewConfig initializes a fresh config with sensible defaults.
func (c *Config) initNewConfig() {
	c.sanitize()
	c.EnableRemoteControl = true
	if c.Server == "" {
		c.Server = "music.163.com"
	}
	c.LogLevel = logrus.InfoLevel.String()

	tempDir := os.TempDir()
	c.LogFile = path.Join(tempDir, AppNameLower+".log")
}

// isEmptyConfig reports whether the config file had nothing meaningful set.
func (c *Config) isEmptyConfig() bool {
	return c.Server == ""
}

// ReadUserInput reads a value from stdin, prompting with name. If mask is
// true (cookie entry), the input isn't echoed to the terminal.
func ReadUserInput(name string, mask bool) (string, error) {
	fmt.Print("Enter ", name, ": ")
	var val string
	var err error
	if mask {
		raw, readErr := terminal.ReadPassword(int(syscall.Stdin))
		if readErr != nil {
			return "", fmt.Errorf("failed to read user input: %v", readErr)
		}
		val = string(raw)
		fmt.Println()
	} else {
		reader := bufio.NewReader(os.Stdin)
		val, err = reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read user input: %v", err)
		}
	}
	val = strings.Trim(val, "\n\r")
	return val, nil
}

// ConfigFromViper reads bootstrap configuration from viper, which cobra's
// root command has already pointed at the environment variables and the
// config file, environment taking precedence. No command-line flag is
// bound to viper.
func ConfigFromViper() error {
	AppConfig = &Config{
		Server:              viper.GetString("server"),
		LogFile:             viper.GetString("logfile"),
		LogLevel:            viper.GetString("loglevel"),
		DataDir:             viper.GetString("data_dir"),
		CacheDir:            viper.GetString("cache_dir"),
		DeviceId:            viper.GetString("device_id"),
		ClientID:            viper.GetString("client_id"),
		HttpTimeoutS:        viper.GetInt("http_timeout_s"),
		EnableRemoteControl: viper.GetBool("enable_remote_control"),
	}

	if v := os.Getenv("NO_AUDIO"); v != "" {
		AppConfig.NoAudio, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("SKIP_LOGIN"); v != "" {
		AppConfig.SkipLogin, _ = strconv.ParseBool(v)
	}

	if AppConfig.isEmptyConfig() {
		configIsEmpty = true
		setDefaults()
	} else {
		AppConfig.sanitize()
	}

	logrus.Debugf("Effective Config - LogLevel: %s", AppConfig.LogLevel)
	logrus.Debugf("Effective Config - Server: %s", AppConfig.Server)

	return nil
}

func SaveConfig() error {
	UpdateViper()
	err := viper.WriteConfig()
	if err != nil {
		return fmt.Errorf("save config file: %v", err)
	}
	return nil
}

func setDefaults() {
	if configIsEmpty {
		AppConfig.initNewConfig()
		err := SaveConfig()
		if err != nil {
			logrus.Errorf("save config file: %v", err)
		}
	}
}

// configFrom sets AppConfig directly. Needed for testing.
func configFrom(conf *Config) {
	AppConfig = conf
}

func UpdateViper() {
	viper.Set("server", AppConfig.Server)
	viper.Set("logfile", AppConfig.LogFile)
	viper.Set("loglevel", AppConfig.LogLevel)
	viper.Set("data_dir", AppConfig.DataDir)
	viper.Set("cache_dir", AppConfig.CacheDir)
	viper.Set("device_id", AppConfig.DeviceId)
	viper.Set("client_id", AppConfig.ClientID)
	viper.Set("http_timeout_s", AppConfig.HttpTimeoutS)
	viper.Set("enable_remote_control", AppConfig.EnableRemoteControl)
}

// GetClientID retrieves the unique client ID for this instance. If one
// doesn't exist yet, it generates a new UUID, saves it, and returns it.
func GetClientID() (string, error) {
	if AppConfig.ClientID != "" {
		return AppConfig.ClientID, nil
	}

	newID, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate client UUID: %w", err)
	}

	AppConfig.ClientID = newID.String()
	logrus.Infof("Generated new Client ID: %s", AppConfig.ClientID)

	err = SaveConfig()
	if err != nil {
		logrus.Errorf("Failed to save config after generating Client ID: %v", err)
	}

	return AppConfig.ClientID, nil
}

// HttpTimeout returns the configured HTTP client timeout as a duration.
func (c *Config) HttpTimeout() time.Duration {
	return time.Duration(c.HttpTimeoutS) * time.Second
}

// SettingsFile, PlayerStateFile and SessionFile are the persisted JSON
// snapshots the runtime maintains across restarts.
func (c *Config) SettingsFile() string    { return path.Join(c.DataDir, "settings.json") }
func (c *Config) PlayerStateFile() string { return path.Join(c.DataDir, "player_state.json") }
func (c *Config) SessionFile() string     { return path.Join(c.DataDir, "netease_state.json") }

// ConfigFile returns the bootstrap config file path viper settled on,
// surfaced in the diagnostics snapshot.
func (c *Config) ConfigFile() string { return viper.ConfigFileUsed() }
