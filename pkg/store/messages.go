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

// InsertMessage appends a message row and returns its id. Message ids are
// monotone within the store, so readers can use them as a cursor.
func (q queries) InsertMessage(ctx context.Context, msg *types.Message) (int64, error) {
	if err := checkCtx(ctx); err != nil {
		return 0, err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	metadata, err := marshalJSON(msg.Metadata)
	if err != nil {
		return 0, err
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO messages (channel, sender_name, sender_scope, content, created_at, thread,
			metadata_json, is_edited, confidence, intent_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		msg.Channel, msg.SenderName, msg.SenderScope, msg.Content, msg.Timestamp.Unix(),
		msg.Thread, metadata, msg.Confidence, msg.IntentType)
	if err != nil {
		return 0, mapSQLError("insert_message", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, mapSQLError("insert_message", err)
	}
	msg.ID = id
	return id, nil
}

// InsertMentions records the validated mention targets of a message.
func (q queries) InsertMentions(ctx context.Context, messageID int64, mentions []types.AgentRef) error {
	for _, ref := range mentions {
		scope := ref.Scope
		if scope == "" {
			scope = types.ScopeGlobal
		}
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO message_mentions (message_id, agent_name, agent_scope)
			VALUES (?, ?, ?)
			ON CONFLICT(message_id, agent_name, agent_scope) DO NOTHING`,
			messageID, ref.Name, scope)
		if err != nil {
			return mapSQLError("insert_mentions", err)
		}
	}
	return nil
}

// GetMessage loads one message by id.
func (q queries) GetMessage(ctx context.Context, id int64) (*types.Message, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, channel, sender_name, sender_scope, content, created_at, thread,
			metadata_json, is_edited, edited_at, confidence, intent_type
		FROM messages WHERE id = ?`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wefterr.New(wefterr.KindNotFound, "message %d not found", id)
		}
		return nil, mapSQLError("get_message", err)
	}
	return msg, nil
}

// UpdateMessageContent rewrites a message body, marking it edited.
func (q queries) UpdateMessageContent(ctx context.Context, id int64, content string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, is_edited = 1, edited_at = ? WHERE id = ?`,
		content, time.Now().Unix(), id)
	if err != nil {
		return mapSQLError("update_message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wefterr.New(wefterr.KindNotFound, "message %d not found", id)
	}
	return nil
}

// SoftDeleteMessage overwrites the content with the deletion sentinel and
// records who deleted it in metadata. The row persists.
func (q queries) SoftDeleteMessage(ctx context.Context, id int64, deletedBy string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}

	msg, err := q.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now()
	metadata := msg.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["deleted"] = map[string]interface{}{
		"by": deletedBy,
		"at": now.UTC().Format(time.RFC3339),
	}
	raw, err := marshalJSON(metadata)
	if err != nil {
		return err
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, metadata_json = ?, is_edited = 1, edited_at = ?
		WHERE id = ?`,
		types.DeletedContentSentinel, raw, now.Unix(), id)
	if err != nil {
		return mapSQLError("soft_delete_message", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wefterr.New(wefterr.KindNotFound, "message %d not found", id)
	}
	return nil
}

// MessageQuery narrows ListMessages. Zero values mean no restriction.
type MessageQuery struct {
	Channel string
	// Thread restricts to replies of one thread handle.
	Thread string
	// BeforeID returns messages with id strictly below the cursor.
	BeforeID int64
	// Since drops messages older than the timestamp.
	Since time.Time
	Limit int
}

// ListMessages returns messages in a channel, newest first.
func (q queries) ListMessages(ctx context.Context, mq MessageQuery) ([]types.Message, error) {
	query := `
		SELECT id, channel, sender_name, sender_scope, content, created_at, thread,
			metadata_json, is_edited, edited_at, confidence, intent_type
		FROM messages WHERE channel = ?`
	args := []interface{}{mq.Channel}

	if mq.Thread != "" {
		query += ` AND thread = ?`
		args = append(args, mq.Thread)
	}
	if mq.BeforeID > 0 {
		query += ` AND id < ?`
		args = append(args, mq.BeforeID)
	}
	if !mq.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, mq.Since.Unix())
	}
	query += ` ORDER BY id DESC`
	if mq.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, mq.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError("list_messages", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, mapSQLError("list_messages", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// ScanMessages pages over every message across channels in ascending id
// order, returning at most limit rows with id strictly above afterID.
// Index rebuilds walk the whole table with it.
func (q queries) ScanMessages(ctx context.Context, afterID int64, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, channel, sender_name, sender_scope, content, created_at, thread,
			metadata_json, is_edited, edited_at, confidence, intent_type
		FROM messages WHERE id > ? ORDER BY id ASC LIMIT ?`, afterID, limit)
	if err != nil {
		return nil, mapSQLError("scan_messages", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, mapSQLError("scan_messages", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// ListMentions returns messages mentioning the agent, restricted to
// channels the agent is currently a member of, newest first.
func (q queries) ListMentions(ctx context.Context, ref types.AgentRef, limit int) ([]types.Message, error) {
	if ref.Scope == "" {
		ref.Scope = types.ScopeGlobal
	}
	query := `
		SELECT m.id, m.channel, m.sender_name, m.sender_scope, m.content, m.created_at, m.thread,
			m.metadata_json, m.is_edited, m.edited_at, m.confidence, m.intent_type
		FROM messages m
		JOIN message_mentions mm ON mm.message_id = m.id
		WHERE mm.agent_name = ? AND mm.agent_scope = ?
			AND m.channel IN (
				SELECT channel FROM channel_members WHERE agent_name = ? AND agent_scope = ?)
		ORDER BY m.id DESC`
	args := []interface{}{ref.Name, ref.Scope, ref.Name, ref.Scope}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError("list_mentions", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, mapSQLError("list_mentions", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

func scanMessage(row rowScanner) (*types.Message, error) {
	var m types.Message
	var metadata sql.NullString
	var created int64
	var edited int
	var editedAt sql.NullInt64
	var confidence sql.NullFloat64
	if err := row.Scan(&m.ID, &m.Channel, &m.SenderName, &m.SenderScope, &m.Content,
		&created, &m.Thread, &metadata, &edited, &editedAt, &confidence, &m.IntentType); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(metadata, &m.Metadata); err != nil {
		return nil, err
	}
	m.Timestamp = time.Unix(created, 0)
	m.Edited = edited != 0
	if editedAt.Valid {
		t := time.Unix(editedAt.Int64, 0)
		m.EditedAt = &t
	}
	if confidence.Valid {
		c := confidence.Float64
		m.Confidence = &c
	}
	return &m, nil
}
