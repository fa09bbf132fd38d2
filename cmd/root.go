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

// Package cmd wires the runtime together: bootstrap config, logging, the
// gateway actor, the transfer pool, the audio engine, the reducer and the
// optional remote-control bridge.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tryffel.net/go/ncmtui/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:  config.AppNameLower,
	Long: config.AppName + ` is a terminal music client for a cloud music service.`,

	Run: func(cmd *cobra.Command, args []string) {
		initConfig()
		app, err := NewApplication()
		if err != nil {
			logrus.Fatalf("initialize application: %v", err)
		}
		if err := app.Run(); err != nil {
			logrus.Fatalf("run application: %v", err)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := os.UserConfigDir()
		if err != nil {
			logrus.Errorf("cannot determine config directory: %v", err)
			configDir = ""
		} else {
			configDir = path.Join(configDir, config.AppNameLower)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigFile(path.Join(configDir, config.AppNameLower+".yaml"))
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvPrefix(strings.ToUpper(config.AppNameLower))
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.Debugf("no config file yet, starting with defaults")
		} else {
			logrus.Fatalf("read config file: %v", err)
		}
	}

	if err := config.ConfigFromViper(); err != nil {
		logrus.Fatalf("read config file: %v", err)
	}
	applyEnvOverrides()
}
