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

// Package maintenance runs the retention sweeps: idle sessions, expired
// dedup records, old reconcile runs, old trace spans, and optionally a
// vector index rebuild. Sweeps run on a cron schedule in the MCP daemon
// and once on demand from the CLI.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/semantic"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

const (
	defaultSchedule         = "@hourly"
	defaultSessionRetention = 24 * time.Hour
	rebuildBatchSize        = 500
)

// Config bounds what each sweep removes. Zero values fall back to the
// defaults noted per field.
type Config struct {
	// Schedule is a standard cron expression. Defaults to @hourly.
	Schedule string

	// SessionRetention removes sessions idle for longer. Defaults to
	// 24h.
	SessionRetention time.Duration

	// ToolCallRetention removes dedup records older than this. Defaults
	// to SessionRetention: a dedup record has no use once its session
	// is gone.
	ToolCallRetention time.Duration

	// TraceRetention removes trace spans and metrics older than this.
	// Zero keeps them forever.
	TraceRetention time.Duration

	// SyncHistoryKeep keeps the most recent N reconcile runs per agent
	// and source. Zero keeps them all.
	SyncHistoryKeep int

	// RebuildIndex re-embeds every live message into the vector index
	// on each sweep, dropping vectors whose backing message was
	// deleted. Only cheap with the hashing embedder.
	RebuildIndex bool
}

// Sweep reports what one run removed.
type Sweep struct {
	Sessions  int64         `json:"sessions"`
	ToolCalls int64         `json:"tool_calls"`
	SyncRuns  int64         `json:"sync_runs"`
	Traces    int64         `json:"traces"`
	Reindexed int           `json:"reindexed"`
	Took      time.Duration `json:"took"`

	// Errors holds per-task failures. A sweep keeps going past a
	// failed task so one broken table never blocks the others.
	Errors []string `json:"errors,omitempty"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTracer attaches a tracer to sweep runs.
func WithTracer(tracer observability.Tracer) Option {
	return func(s *Scheduler) {
		s.tracer = tracer
	}
}

// WithIndex attaches the vector index so sweeps can rebuild it when
// Config.RebuildIndex is set.
func WithIndex(idx *semantic.Index) Option {
	return func(s *Scheduler) {
		s.index = idx
	}
}

// Scheduler runs retention sweeps on a cron schedule.
type Scheduler struct {
	store  *store.Store
	index  *semantic.Index
	cfg    Config
	engine *cron.Cron
	logger *zap.Logger
	tracer observability.Tracer

	mu      sync.Mutex
	running bool
}

// New creates a scheduler. Start must be called before any scheduled
// sweep fires; RunOnce works without Start.
func New(st *store.Store, cfg Config, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = defaultSchedule
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = defaultSessionRetention
	}
	if cfg.ToolCallRetention <= 0 {
		cfg.ToolCallRetention = cfg.SessionRetention
	}
	s := &Scheduler{
		store:  st,
		cfg:    cfg,
		engine: cron.New(),
		logger: logger,
		tracer: observability.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins executing sweeps on the configured schedule.
func (s *Scheduler) Start() error {
	_, err := s.engine.AddFunc(s.cfg.Schedule, func() {
		sweep, err := s.RunOnce(context.Background())
		switch {
		case wefterr.IsKind(err, wefterr.KindBusy):
			s.logger.Info("Previous sweep still running, skipped")
		case err != nil:
			s.logger.Error("Scheduled sweep failed", zap.Error(err))
		default:
			s.logSweep(sweep)
		}
	})
	if err != nil {
		return wefterr.Wrap(wefterr.KindInvalidInput, err,
			"invalid maintenance schedule %q", s.cfg.Schedule)
	}
	s.engine.Start()
	s.logger.Info("Maintenance scheduler started", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish, up to
// the context deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	drained := s.engine.Stop()
	select {
	case <-drained.Done():
		s.logger.Info("Maintenance scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Maintenance scheduler shutdown timeout, a sweep may still be running")
	}
}

// RunOnce executes every configured sweep immediately. A second call
// while one is in flight fails with kind BUSY.
func (s *Scheduler) RunOnce(ctx context.Context) (*Sweep, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, wefterr.New(wefterr.KindBusy, "a maintenance sweep is already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, span := s.tracer.StartSpan(ctx, "maintenance.sweep")
	defer s.tracer.EndSpan(span)

	start := time.Now()
	sweep := &Sweep{}

	s.prune(sweep, "sessions", &sweep.Sessions, func() (int64, error) {
		return s.store.PruneSessions(ctx, s.cfg.SessionRetention)
	})
	s.prune(sweep, "tool calls", &sweep.ToolCalls, func() (int64, error) {
		return s.store.PruneToolCalls(ctx, s.cfg.ToolCallRetention)
	})
	if s.cfg.SyncHistoryKeep > 0 {
		s.prune(sweep, "sync history", &sweep.SyncRuns, func() (int64, error) {
			return s.store.PruneSyncHistory(ctx, s.cfg.SyncHistoryKeep)
		})
	}
	if s.cfg.TraceRetention > 0 {
		s.prune(sweep, "traces", &sweep.Traces, func() (int64, error) {
			cutoff := time.Now().Add(-s.cfg.TraceRetention).Unix()
			return s.store.PruneTraces(ctx, cutoff)
		})
	}
	if s.cfg.RebuildIndex && s.index != nil {
		n, err := s.rebuildIndex(ctx)
		if err != nil {
			s.logger.Warn("Index rebuild failed", zap.Error(err))
			sweep.Errors = append(sweep.Errors, "index rebuild: "+err.Error())
		}
		sweep.Reindexed = n
	}

	sweep.Took = time.Since(start)
	return sweep, nil
}

// prune runs one retention task and files its count or error into the
// sweep.
func (s *Scheduler) prune(sweep *Sweep, name string, dst *int64, task func() (int64, error)) {
	n, err := task()
	if err != nil {
		s.logger.Warn("Retention task failed", zap.String("task", name), zap.Error(err))
		sweep.Errors = append(sweep.Errors, name+": "+err.Error())
		return
	}
	*dst = n
}

// rebuildIndex repopulates the vector index by walking the message
// table in id order. Deleted and blank messages are skipped by the
// index itself.
func (s *Scheduler) rebuildIndex(ctx context.Context) (int, error) {
	var lastID int64
	return s.index.Rebuild(ctx, func(ctx context.Context) ([]types.Message, error) {
		batch, err := s.store.ScanMessages(ctx, lastID, rebuildBatchSize)
		if err != nil {
			return nil, err
		}
		if len(batch) > 0 {
			lastID = batch[len(batch)-1].ID
		}
		return batch, nil
	})
}

func (s *Scheduler) logSweep(sweep *Sweep) {
	fields := []zap.Field{
		zap.Int64("sessions", sweep.Sessions),
		zap.Int64("tool_calls", sweep.ToolCalls),
		zap.Int64("sync_runs", sweep.SyncRuns),
		zap.Int64("traces", sweep.Traces),
		zap.Duration("took", sweep.Took),
	}
	if sweep.Reindexed > 0 {
		fields = append(fields, zap.Int("reindexed", sweep.Reindexed))
	}
	if len(sweep.Errors) > 0 {
		fields = append(fields, zap.Strings("errors", sweep.Errors))
		s.logger.Warn("Retention sweep finished with failures", fields...)
		return
	}
	s.logger.Info("Retention sweep finished", fields...)
}
