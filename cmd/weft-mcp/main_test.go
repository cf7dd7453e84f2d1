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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zap.DebugLevel},
		{"info", zap.InfoLevel},
		{"warn", zap.WarnLevel},
		{"error", zap.ErrorLevel},
		{"", zap.InfoLevel},      // default
		{"trace", zap.InfoLevel}, // unrecognized falls back to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestBuildLogger_ToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "weft-mcp.log")

	logger, err := buildLogger(logPath, "info")
	require.NoError(t, err)

	logger.Info("server booting")
	_ = logger.Sync()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server booting")
	assert.Contains(t, string(data), `"ts"`)
}

func TestBuildLogger_InvalidPath(t *testing.T) {
	_, err := buildLogger("/no/such/directory/weft-mcp.log", "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open log file")
}

func TestBuildLogger_NeverUsesStdout(t *testing.T) {
	// stdout carries the MCP transport, so even the fallback logger must
	// stay off it.
	logPath := filepath.Join(t.TempDir(), "weft-mcp.log")

	origStdout := os.Stdout
	stdoutR, stdoutW, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = stdoutW

	logger, err := buildLogger(logPath, "info")
	require.NoError(t, err)

	logger.Info("must land in the file")
	logger.Error("errors too")
	_ = logger.Sync()

	stdoutW.Close()
	os.Stdout = origStdout

	buf := make([]byte, 4096)
	n, _ := stdoutR.Read(buf)
	stdoutR.Close()

	assert.Equal(t, 0, n, "nothing should be written to stdout; got: %s", string(buf[:n]))
}

func TestBuildLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		logFunc   func(*zap.Logger)
		shouldLog bool
	}{
		{"info accepts info", "info", func(l *zap.Logger) { l.Info("x") }, true},
		{"info rejects debug", "info", func(l *zap.Logger) { l.Debug("x") }, false},
		{"error rejects warn", "error", func(l *zap.Logger) { l.Warn("x") }, false},
		{"debug accepts debug", "debug", func(l *zap.Logger) { l.Debug("x") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logPath := filepath.Join(t.TempDir(), "weft-mcp.log")

			logger, err := buildLogger(logPath, tt.level)
			require.NoError(t, err)

			tt.logFunc(logger)
			_ = logger.Sync()

			data, err := os.ReadFile(logPath)
			require.NoError(t, err)

			if tt.shouldLog {
				assert.NotEmpty(t, string(data))
			} else {
				assert.Empty(t, string(data))
			}
		})
	}
}
