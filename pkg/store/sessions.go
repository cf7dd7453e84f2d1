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

	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// SaveSession upserts a session row keyed by id.
func (q queries) SaveSession(ctx context.Context, sess *types.Session) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if sess.ID == "" {
		return wefterr.New(wefterr.KindInvalidInput, "session id is required")
	}
	if sess.Scope == "" {
		sess.Scope = types.SessionGlobal
	}
	metadata, err := marshalJSON(sess.Metadata)
	if err != nil {
		return err
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO sessions (id, project_id, project_path, project_name, transcript_path, scope, metadata_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			project_path = excluded.project_path,
			project_name = excluded.project_name,
			transcript_path = CASE WHEN excluded.transcript_path != '' THEN excluded.transcript_path ELSE sessions.transcript_path END,
			scope = excluded.scope,
			metadata_json = COALESCE(excluded.metadata_json, sessions.metadata_json),
			updated_at = excluded.updated_at`,
		sess.ID, sess.ProjectID, sess.ProjectPath, sess.ProjectName,
		sess.TranscriptPath, sess.Scope, metadata, sess.UpdatedAt.Unix())
	return mapSQLError("save_session", err)
}

// GetSession loads one session by id.
func (q queries) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, project_id, project_path, project_name, transcript_path, scope, metadata_json, updated_at
		FROM sessions WHERE id = ?`, id)

	var s types.Session
	var metadata sql.NullString
	var updated int64
	if err := row.Scan(&s.ID, &s.ProjectID, &s.ProjectPath, &s.ProjectName,
		&s.TranscriptPath, &s.Scope, &metadata, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wefterr.New(wefterr.KindNotFound, "session %s not registered", id)
		}
		return nil, mapSQLError("get_session", err)
	}
	if err := unmarshalJSON(metadata, &s.Metadata); err != nil {
		return nil, err
	}
	s.UpdatedAt = time.Unix(updated, 0)
	return &s, nil
}

// TouchSession bumps the session's updated-at so active sessions survive
// pruning.
func (q queries) TouchSession(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return mapSQLError("touch_session", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wefterr.New(wefterr.KindNotFound, "session %s not registered", id)
	}
	return nil
}

// PruneSessions deletes sessions idle for longer than age. Returns the
// number removed.
func (q queries) PruneSessions(ctx context.Context, age time.Duration) (int64, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-age).Unix()
	res, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, mapSQLError("prune_sessions", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ToolCallResult reports whether a tool call is the first of its kind
// inside the dedup window.
type ToolCallResult string

const (
	ToolCallNew       ToolCallResult = "new"
	ToolCallDuplicate ToolCallResult = "duplicate"
)

// RecordToolCall records (session, tool, digest) and classifies the call.
// A repeat inside the window reports duplicate without refreshing the
// window anchor; a repeat after the window expires is new again.
//
// The check and the write run in one transaction so a cancelled call
// never partially records.
func (s *Store) RecordToolCall(ctx context.Context, sessionID, tool, digest string, window time.Duration) (ToolCallResult, error) {
	ctx, span := s.startSpan(ctx, "store.record_tool_call")
	result := ToolCallNew

	err := s.InTx(ctx, func(tx *Tx) error {
		// called_at is unix millis: dedup windows need sub-second
		// precision that whole seconds cannot give.
		var calledAt int64
		err := tx.db.QueryRowContext(ctx, `
			SELECT called_at FROM tool_calls
			WHERE session_id = ? AND tool_name = ? AND input_digest = ?`,
			sessionID, tool, digest).Scan(&calledAt)

		now := time.Now()
		switch {
		case err == nil:
			if now.Sub(time.UnixMilli(calledAt)) < window {
				result = ToolCallDuplicate
				return nil
			}
			// Window expired: restart it at this call.
			_, err = tx.db.ExecContext(ctx, `
				UPDATE tool_calls SET called_at = ?
				WHERE session_id = ? AND tool_name = ? AND input_digest = ?`,
				now.UnixMilli(), sessionID, tool, digest)
			return mapSQLError("record_tool_call", err)
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.db.ExecContext(ctx, `
				INSERT INTO tool_calls (session_id, tool_name, input_digest, called_at)
				VALUES (?, ?, ?, ?)`,
				sessionID, tool, digest, now.UnixMilli())
			return mapSQLError("record_tool_call", err)
		default:
			return mapSQLError("record_tool_call", err)
		}
	})
	s.endSpan(span, err)
	if err != nil {
		return "", err
	}
	return result, nil
}

// PruneToolCalls deletes dedup records older than age.
func (q queries) PruneToolCalls(ctx context.Context, age time.Duration) (int64, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-age).UnixMilli()
	res, err := q.db.ExecContext(ctx, `DELETE FROM tool_calls WHERE called_at < ?`, cutoff)
	if err != nil {
		return 0, mapSQLError("prune_tool_calls", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
