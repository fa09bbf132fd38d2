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
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tryffel.net/go/ncmtui/config"
)

// Runtime env overrides. These sit above the config file: useful for
// containers and for the headless test setups (NO_AUDIO, SKIP_LOGIN are
// read in config.ConfigFromViper).
var (
	envDataDir             = "DATA_DIR"
	envLogDir              = "LOG_DIR"
	envLogLevel            = "LOG_LEVEL"
	envCacheMaxMB          = "CACHE_MAX_MB"
	envDownloadConcurrency = "DOWNLOAD_CONCURRENCY"
	envHttpTimeoutSecs     = "HTTP_TIMEOUT_SECS"
	envDownloadRetries     = "DOWNLOAD_RETRIES"
)

// logDir and the settings-level overrides are read here once; the
// settings struct itself stays the persisted source of truth, env values
// only shadow it for this process.
var (
	logDirOverride              string
	cacheMaxMBOverride          int
	downloadConcurrencyOverride int
	httpTimeoutOverride         int
	downloadRetriesOverride     int
)

func applyEnvOverrides() {
	if v := os.Getenv(envDataDir); v != "" {
		config.AppConfig.DataDir = v
		if err := os.MkdirAll(v, 0o755); err != nil {
			logrus.Fatalf("create data dir %s: %v", v, err)
		}
	}
	if v := os.Getenv(envLogDir); v != "" {
		logDirOverride = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		config.AppConfig.LogLevel = v
	}
	cacheMaxMBOverride = envInt(envCacheMaxMB)
	downloadConcurrencyOverride = envInt(envDownloadConcurrency)
	httpTimeoutOverride = envInt(envHttpTimeoutSecs)
	downloadRetriesOverride = envInt(envDownloadRetries)
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

var envCmd = &cobra.Command{
	Use:   "list-env",
	Short: "List env variables",
	Long: `Any configuration variable can be set with environment variables,
which makes it possible to run without a persisted config file (e.g. in Docker).

# Config overrides
NCMTUI_SERVER
NCMTUI_LOGFILE
NCMTUI_LOGLEVEL
NCMTUI_DATA_DIR
NCMTUI_CACHE_DIR
NCMTUI_ENABLE_REMOTE_CONTROL

# Runtime overrides
DATA_DIR
LOG_DIR
LOG_LEVEL
NO_AUDIO=1          disable audio output entirely
SKIP_LOGIN=1        stay anonymous (tests)
CACHE_MAX_MB
DOWNLOAD_CONCURRENCY
HTTP_TIMEOUT_SECS
DOWNLOAD_RETRIES
`,
}

func init() {
	rootCmd.AddCommand(envCmd)
}
