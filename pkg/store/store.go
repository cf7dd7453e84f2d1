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

// Package store is the persistence layer of the weft substrate. It keeps
// projects, agents, channels, memberships, messages, DM permissions,
// sessions, tool-call records, config-sync history, and trace data in a
// single embedded SQLite database, and exposes row-level primitives plus
// the derived read views the engines are built on.
//
// Writes are serialized through a single connection; multi-row operations
// run inside InTx so engine-level checks and inserts commit atomically.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/sqlitedriver"
	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// Config holds database configuration including optional encryption.
type Config struct {
	// Path to the SQLite database file.
	Path string

	// EncryptDatabase enables SQLCipher encryption at rest. Requires a
	// cgo build; Open refuses otherwise.
	EncryptDatabase bool

	// EncryptionKey is the SQLCipher key. Falls back to WEFT_DB_KEY.
	EncryptionKey string
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the row primitives can
// run in auto-commit mode or inside an engine transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// queries carries every row primitive. Store embeds it bound to the DB;
// Tx embeds it bound to an open transaction.
type queries struct {
	db dbtx
}

// Store provides persistent storage for the weft substrate.
type Store struct {
	queries
	sqlDB  *sql.DB
	mu     sync.Mutex
	tracer observability.Tracer
	logger *zap.Logger
}

// Tx exposes the row primitives inside a single transaction.
type Tx struct {
	queries
}

// Option configures a Store.
type Option func(*Store)

// WithTracer attaches a tracer to database operations.
func WithTracer(tracer observability.Tracer) Option {
	return func(s *Store) {
		s.tracer = tracer
	}
}

// WithLogger attaches a logger. Defaults to zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens the weft database, creating the schema when absent.
func Open(cfg Config, opts ...Option) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{
		queries: queries{db: db},
		sqlDB:   db,
		tracer:  observability.NewNoOpTracer(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s, nil
}

func openDB(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.EncryptDatabase {
		if !sqlitedriver.EncryptionSupported {
			db.Close()
			return nil, fmt.Errorf("encryption requires a cgo build: the pure-Go driver ignores PRAGMA key")
		}
		key := cfg.EncryptionKey
		if key == "" {
			key = os.Getenv("WEFT_DB_KEY")
		}
		if key == "" {
			db.Close()
			return nil, fmt.Errorf("encryption enabled but no key provided (set EncryptionKey or WEFT_DB_KEY env var)")
		}
		// Must be the first statement on an encrypted database.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA key = '%s'", key)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set encryption key: %w", err)
		}
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		if cfg.EncryptDatabase {
			return nil, fmt.Errorf("failed to verify encryption key (wrong key or corrupted database): %w", err)
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports a single writer; one pooled connection keeps every
	// statement on it so WAL readers in other processes are never starved.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

// InTx runs fn inside a single transaction. Engine operations that span a
// check and a write (membership check then insert, policy check then
// channel creation) use this so the pair commits or rolls back together.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return mapSQLError("begin", err)
	}

	if err := fn(&Tx{queries: queries{db: sqlTx}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapSQLError("commit", err)
	}
	return nil
}

// Close flushes the tracer and closes the database.
func (s *Store) Close() error {
	if s.tracer != nil {
		if err := s.tracer.Flush(context.Background()); err != nil {
			s.logger.Warn("tracer flush on close failed", zap.Error(err))
		}
	}
	return s.sqlDB.Close()
}

// startSpan is a small helper so every primitive traces uniformly.
func (s *Store) startSpan(ctx context.Context, name string) (context.Context, *observability.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.StartSpan(ctx, name)
}

func (s *Store) endSpan(span *observability.Span, err error) {
	if s.tracer == nil || span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
	}
	s.tracer.EndSpan(span)
}

// checkCtx front-runs context cancellation so cancelled writers never
// reach the database.
func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return wefterr.Wrap(wefterr.KindBusy, ctx.Err(), "operation cancelled")
	default:
		return nil
	}
}
