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

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// SyncRecord is one reconciliation of a declared agent descriptor into
// the store. Digest identifies the descriptor content; Diff holds a
// unified diff against the previous sync; Snapshot holds the compressed
// descriptor for later inspection.
type SyncRecord struct {
	ID        string
	Agent     types.AgentRef
	Source    string
	Digest    string
	Diff      string
	Snapshot  []byte
	Applied   bool
	CreatedAt time.Time
}

// AppendSyncRecord stores one reconciliation record. A zero ID is
// assigned.
func (q queries) AppendSyncRecord(ctx context.Context, rec *SyncRecord) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.Agent = normalizeRef(rec.Agent)
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO config_sync_history (id, agent_name, agent_scope, source, digest, diff, snapshot, applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Agent.Name, rec.Agent.Scope, rec.Source, rec.Digest,
		rec.Diff, rec.Snapshot, boolToInt(rec.Applied), rec.CreatedAt.Unix())
	return mapSQLError("append_sync_record", err)
}

// LatestSyncRecord returns the most recent sync for the agent from one
// source, without the snapshot blob.
func (q queries) LatestSyncRecord(ctx context.Context, ref types.AgentRef, source string) (*SyncRecord, error) {
	ref = normalizeRef(ref)
	row := q.db.QueryRowContext(ctx, `
		SELECT id, agent_name, agent_scope, source, digest, diff, applied, created_at
		FROM config_sync_history
		WHERE agent_name = ? AND agent_scope = ? AND source = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		ref.Name, ref.Scope, source)

	rec, err := scanSyncRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wefterr.New(wefterr.KindNotFound, "no sync history for %s from %s", ref.Handle(), source)
		}
		return nil, mapSQLError("latest_sync_record", err)
	}
	return rec, nil
}

// ListSyncHistory returns recent syncs for the agent, newest first,
// without snapshot blobs.
func (q queries) ListSyncHistory(ctx context.Context, ref types.AgentRef, limit int) ([]SyncRecord, error) {
	ref = normalizeRef(ref)
	query := `
		SELECT id, agent_name, agent_scope, source, digest, diff, applied, created_at
		FROM config_sync_history
		WHERE agent_name = ? AND agent_scope = ?
		ORDER BY created_at DESC, id DESC`
	args := []interface{}{ref.Name, ref.Scope}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError("list_sync_history", err)
	}
	defer rows.Close()

	var out []SyncRecord
	for rows.Next() {
		rec, err := scanSyncRecord(rows)
		if err != nil {
			return nil, mapSQLError("list_sync_history", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetSyncSnapshot loads the compressed snapshot of one sync record.
func (q queries) GetSyncSnapshot(ctx context.Context, id string) ([]byte, error) {
	var snapshot []byte
	err := q.db.QueryRowContext(ctx,
		`SELECT snapshot FROM config_sync_history WHERE id = ?`, id).Scan(&snapshot)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wefterr.New(wefterr.KindNotFound, "sync record %s not found", id)
		}
		return nil, mapSQLError("get_sync_snapshot", err)
	}
	return snapshot, nil
}

// PruneSyncHistory keeps the newest keep records per (agent, source) pair
// and deletes the rest. Returns the number removed.
func (q queries) PruneSyncHistory(ctx context.Context, keep int) (int64, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM config_sync_history WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY agent_name, agent_scope, source
					ORDER BY created_at DESC, id DESC) AS rn
				FROM config_sync_history
			) WHERE rn <= ?
		)`, keep)
	if err != nil {
		return 0, mapSQLError("prune_sync_history", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanSyncRecord(row rowScanner) (*SyncRecord, error) {
	var rec SyncRecord
	var applied int
	var created int64
	if err := row.Scan(&rec.ID, &rec.Agent.Name, &rec.Agent.Scope, &rec.Source,
		&rec.Digest, &rec.Diff, &applied, &created); err != nil {
		return nil, err
	}
	rec.Applied = applied != 0
	rec.CreatedAt = time.Unix(created, 0)
	return &rec, nil
}
