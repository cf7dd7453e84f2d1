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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/weft/pkg/channels"
	weftconfig "github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/reconcile"
	"github.com/teradata-labs/weft/pkg/sessionctx"
	"github.com/teradata-labs/weft/pkg/types"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Session lifecycle hooks",
	Long:  `Hooks are invoked by the agent host on session lifecycle events.`,
}

var hookSessionStartCmd = &cobra.Command{
	Use:   "session-start",
	Short: "Register a starting session from the hook payload on stdin",
	Long: heredoc.Doc(`
		Reads the session-start payload from stdin, registers the session
		with its project, seeds the default channels, and reconciles the
		declared agents and project links.

		The payload is a JSON object:

		  {"session_id": "...", "cwd": "...", "hook_event_name": "...", "transcript_path": "..."}

		On success the hook prints a one-line status to stderr and exits 0.
		The host treats any other exit code as non-fatal, so a broken weft
		install never blocks a session from starting.

		Host configuration (settings.json):

		  {
		    "hooks": {
		      "SessionStart": [
		        {"hooks": [{"type": "command", "command": "weft hook session-start"}]}
		      ]
		    }
		  }`),
	Run: runHookSessionStart,
}

func init() {
	rootCmd.AddCommand(hookCmd)
	hookCmd.AddCommand(hookSessionStartCmd)
}

// hookPayload is the record the host writes to stdin at session start.
type hookPayload struct {
	SessionID      string `json:"session_id"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`
	TranscriptPath string `json:"transcript_path"`
}

func runHookSessionStart(cmd *cobra.Command, args []string) {
	// Hook logging goes to a file: stderr carries the status line and
	// stdout belongs to the host.
	logger := newHookLogger()
	defer func() { _ = logger.Sync() }()

	var payload hookPayload
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil {
		fmt.Fprintf(os.Stderr, "weft: invalid hook payload: %v\n", err)
		os.Exit(1)
	}
	logger.Info("session-start hook",
		zap.String("session", payload.SessionID),
		zap.String("event", payload.HookEventName),
		zap.String("cwd", payload.CWD))

	cwd := payload.CWD
	if cwd == "" {
		cwd = weftconfig.WorkingDirOverride()
	}

	ctx := cmd.Context()
	st := openStore()
	defer st.Close()

	sessions := sessionctx.New(st, logger)
	sess, err := sessions.Register(ctx, sessionctx.RegisterParams{
		ID:             payload.SessionID,
		CWD:            cwd,
		TranscriptPath: payload.TranscriptPath,
		ProjectPath:    weftconfig.ProjectDirOverride(),
	})
	if err != nil {
		logger.Error("session registration failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "weft: session registration failed: %v\n", err)
		os.Exit(1)
	}

	// Everything past registration is best effort. A failed seed or
	// reconcile is logged and the session still starts.
	eng := channels.New(st, logger)
	seeded, err := weftconfig.SeedChannels(ctx, config, eng, types.ScopeGlobal)
	if err != nil {
		logger.Warn("channel seeding failed", zap.String("scope", types.ScopeGlobal), zap.Error(err))
	}
	if sess.ProjectID != "" {
		more, err := weftconfig.SeedChannels(ctx, config, eng, sess.ProjectID)
		if err != nil {
			logger.Warn("channel seeding failed", zap.String("scope", sess.ProjectID), zap.Error(err))
		}
		seeded = append(seeded, more...)
	}

	if rec, err := reconcile.New(st, logger); err != nil {
		logger.Warn("reconciler unavailable", zap.Error(err))
	} else if _, err := rec.Run(ctx, weftconfig.NewSource(config, st)); err != nil {
		logger.Warn("agent reconciliation failed", zap.Error(err))
	}

	if _, err := weftconfig.ApplyProjectLinks(ctx, config, st, logger); err != nil {
		logger.Warn("project links failed", zap.Error(err))
	}

	fmt.Fprintln(os.Stderr, hookStatus(sess, len(seeded)))
}

// hookStatus renders the one-line status the host shows the user.
func hookStatus(sess *types.Session, seeded int) string {
	scope := "global scope"
	if sess.ProjectID != "" {
		name := sess.ProjectName
		if name == "" {
			name = sess.ProjectID
		}
		scope = "project " + name
	}
	if seeded > 0 {
		return fmt.Sprintf("weft: session %s registered (%s, %d default channels)", shortID(sess.ID), scope, seeded)
	}
	return fmt.Sprintf("weft: session %s registered (%s)", shortID(sess.ID), scope)
}

// shortID truncates a session id for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// newHookLogger builds a file logger under the data dir. When the file
// cannot be opened the hook runs silent rather than polluting stderr.
func newHookLogger() *zap.Logger {
	logPath := config.Logging.File
	if logPath == "" {
		logDir := filepath.Join(config.DataDir, "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			return zap.NewNop()
		}
		logPath = filepath.Join(logDir, "weft-hook.log")
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- log path from config
	if err != nil {
		return zap.NewNop()
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(f),
		parseLogLevel(config.Logging.Level),
	)
	return zap.New(core)
}
