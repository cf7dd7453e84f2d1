// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/weft/internal/version"
	weftconfig "github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/store"
)

var (
	cfgFile string
	config  *weftconfig.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft - per-host coordination substrate for coding agents",
	Long: heredoc.Doc(`
		Weft gives the coding agents on one host shared channels, direct
		messages, and searchable history, all backed by a local SQLite store.

		Agents use weft through the stdio MCP server (weft-mcp). This CLI
		covers the session-start hook and host administration: channels,
		agents, project links, config, and retention sweeps.`),
	Version: version.Get(),
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $WEFT_DATA_DIR/weft.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	config, err = weftconfig.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the configured database. Callers own the Close.
func openStore() *store.Store {
	st, err := store.Open(store.Config{
		Path:            config.Store.Path,
		EncryptDatabase: config.Store.Encrypt,
		EncryptionKey:   config.Store.EncryptionKey,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	return st
}

// newLogger builds a stderr logger for CLI commands, keeping stdout
// reserved for command output.
func newLogger() *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if config.Logging.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), parseLogLevel(config.Logging.Level))
	return zap.New(core)
}

// parseLogLevel converts a string log level to a zapcore.Level.
func parseLogLevel(logLevel string) zapcore.Level {
	switch logLevel {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
