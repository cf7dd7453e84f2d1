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

// weft-mcp is the stdio MCP (Model Context Protocol) server that gives
// agents access to the weft substrate.
//
// It speaks JSON-RPC over stdio to the agent host and operates the local
// store directly; there is no separate daemon. Channels, messaging,
// discovery, and session context are exposed as a flat set of MCP tools.
//
// Usage:
//
//	weft-mcp --session-id <id>
//
// Host configuration (settings.json):
//
//	{
//	  "mcpServers": {
//	    "weft": {
//	      "command": "/path/to/weft-mcp",
//	      "args": ["--session-id", "${SESSION_ID}"]
//	    }
//	  }
//	}
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teradata-labs/weft/internal/version"
	"github.com/teradata-labs/weft/pkg/channels"
	weftconfig "github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/discovery"
	"github.com/teradata-labs/weft/pkg/maintenance"
	"github.com/teradata-labs/weft/pkg/mcp/server"
	"github.com/teradata-labs/weft/pkg/mcp/transport"
	"github.com/teradata-labs/weft/pkg/messages"
	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/reconcile"
	"github.com/teradata-labs/weft/pkg/semantic"
	"github.com/teradata-labs/weft/pkg/sessionctx"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
)

const serverName = "weft-mcp"

func main() {
	cfgFile := flag.String("config", "", "Config file path (defaults to $WEFT_DATA_DIR/weft.yaml)")
	sessionID := flag.String("session-id", "", "Session to bind tool dispatch to (or WEFT_SESSION_ID)")
	logFile := flag.String("log-file", "", "Log file path (defaults to logging.file from config, then stderr)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := weftconfig.LoadConfig(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Configure logging -- CRITICAL: never write to stdout (that's the MCP transport)
	file := *logFile
	if file == "" {
		file = cfg.Logging.File
	}
	level := *logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger := setupLogger(file, level)
	defer func() { _ = logger.Sync() }()

	session := *sessionID
	if session == "" {
		session = os.Getenv("WEFT_SESSION_ID")
	}

	logger.Info("starting weft-mcp server",
		zap.String("version", version.Get()),
		zap.String("session", session),
		zap.String("store", cfg.Store.Path),
	)

	st, err := store.Open(store.Config{
		Path:            cfg.Store.Path,
		EncryptDatabase: cfg.Store.Encrypt,
		EncryptionKey:   cfg.Store.EncryptionKey,
	})
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	// Spans and metrics land in the same store the data lives in.
	tracer := observability.NewStoreTracer(st, logger)
	defer func() { _ = tracer.Close() }()

	var index *semantic.Index
	if cfg.Semantic.Enabled {
		index, err = openIndex(cfg, logger)
		if err != nil {
			logger.Warn("vector index unavailable, search degrades to lexical", zap.Error(err))
			index = nil
		}
	}

	chEng := channels.New(st, logger, channels.WithTracer(tracer))
	msgOpts := []messages.Option{
		messages.WithTracer(tracer),
		messages.WithSearchDefaults(cfg.Semantic.DefaultProfile, cfg.Semantic.HalfLifeHoursOverride),
	}
	if index != nil {
		msgOpts = append(msgOpts, messages.WithVectorizer(index))
	}
	msgEng := messages.New(st, logger, msgOpts...)
	discEng := discovery.New(st, logger, discovery.WithTracer(tracer))
	sessEng := sessionctx.New(st, logger,
		sessionctx.WithTracer(tracer),
		sessionctx.WithDedupWindow(cfg.DedupWindow()),
	)

	orch := orchestrator.New(chEng, msgEng, discEng, sessEng, logger,
		orchestrator.WithTracer(tracer),
		orchestrator.WithSessionID(session),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Maintenance.Enabled {
		sched := maintenance.New(st, maintenance.Config{
			Schedule:         cfg.Maintenance.Schedule,
			SessionRetention: cfg.SessionRetention(),
			TraceRetention:   cfg.TraceRetention(),
			SyncHistoryKeep:  cfg.Maintenance.SyncHistoryKeep,
			RebuildIndex:     cfg.Maintenance.RebuildIndex,
		}, logger, maintenance.WithTracer(tracer), maintenance.WithIndex(index))
		if err := sched.Start(); err != nil {
			logger.Error("maintenance scheduler failed to start", zap.Error(err))
		} else {
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer stopCancel()
				sched.Stop(stopCtx)
			}()
		}
	}

	if w := watchConfig(ctx, *cfgFile, cfg, st, chEng, logger); w != nil {
		defer func() { _ = w.Stop() }()
	}

	mcpServer := server.NewMCPServer(serverName, version.Get(), logger,
		server.WithToolProvider(orch),
	)

	// Create stdio transport (reads from stdin, writes to stdout)
	stdioTransport := transport.NewStdioServerTransport(os.Stdin, os.Stdout)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("MCP server ready, awaiting client connection on stdio")
	if err := mcpServer.Serve(ctx, stdioTransport); err != nil {
		if ctx.Err() != nil {
			logger.Info("server stopped gracefully")
		} else {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}
}

// openIndex opens the configured vector index, remote embedder and all.
func openIndex(cfg *weftconfig.Config, logger *zap.Logger) (*semantic.Index, error) {
	icfg := semantic.Config{Path: cfg.Semantic.IndexDir, Compress: true}
	if cfg.Semantic.Embedder.BaseURL != "" {
		embedder, err := semantic.NewRemoteEmbedder(semantic.RemoteConfig{
			BaseURL:   cfg.Semantic.Embedder.BaseURL,
			APIKey:    cfg.Semantic.Embedder.APIKey,
			Model:     cfg.Semantic.Embedder.Model,
			Dimension: cfg.Semantic.Embedder.Dimension,
		})
		if err != nil {
			return nil, err
		}
		icfg.Embedder = embedder
	}
	return semantic.NewIndex(icfg, logger)
}

// watchConfig converges the declarative config sections whenever the
// file changes on disk: declared agents, channel seeds, and project
// links apply without a restart. Settings captured at construction,
// like the dedup window, still need one.
func watchConfig(ctx context.Context, cfgFlag string, cfg *weftconfig.Config, st *store.Store, chEng *channels.Engine, logger *zap.Logger) *weftconfig.Watcher {
	path := cfgFlag
	if path == "" {
		path = filepath.Join(cfg.DataDir, weftconfig.DefaultConfigFileName+".yaml")
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	rec, err := reconcile.New(st, logger)
	if err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
		return nil
	}

	w, err := weftconfig.NewWatcher(path, logger, func(next *weftconfig.Config) {
		rctx, rcancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer rcancel()
		if _, err := weftconfig.SeedChannels(rctx, next, chEng, types.ScopeGlobal); err != nil {
			logger.Warn("channel seeding failed on reload", zap.Error(err))
		}
		if _, err := rec.Run(rctx, weftconfig.NewSource(next, st)); err != nil {
			logger.Warn("reconcile failed on reload", zap.Error(err))
		}
		if _, err := weftconfig.ApplyProjectLinks(rctx, next, st, logger); err != nil {
			logger.Warn("project links failed on reload", zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
		return nil
	}
	if err := w.Start(ctx); err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
		return nil
	}
	return w
}

// setupLogger creates a zap logger that writes to a file (or stderr if no file specified).
// IMPORTANT: The logger must NEVER write to stdout because stdout is the MCP stdio transport.
func setupLogger(logFile, logLevel string) *zap.Logger {
	logger, err := buildLogger(logFile, logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// buildLogger is the testable core of setupLogger. It returns an error
// instead of calling os.Exit so tests can exercise all code paths.
func buildLogger(logFile, logLevel string) (*zap.Logger, error) {
	level := parseLogLevel(logLevel)

	var output zapcore.WriteSyncer
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- log file path from CLI flag
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", logFile, err)
		}
		output = zapcore.AddSync(f)
	} else {
		// Write to stderr (not stdout!) as a fallback
		output = zapcore.AddSync(os.Stderr)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		output,
		level,
	)

	return zap.New(core), nil
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
