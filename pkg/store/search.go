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
	"strings"
	"time"

	"github.com/teradata-labs/weft/pkg/types"
)

// SearchQuery describes a lexical search. Viewer is mandatory: results are
// restricted to channels the viewer is a member of.
type SearchQuery struct {
	Viewer types.AgentRef
	Query  string
	// Channels restricts to the listed handles when non-empty. Handles the
	// viewer is not a member of contribute nothing.
	Channels []string
	// Senders restricts to the listed agent handles ("name" or
	// "name:project") when non-empty.
	Senders       []string
	IntentType    string
	MinConfidence *float64
	Since         time.Time
	Limit         int
}

// SearchMessages runs a full-text match over message content, restricted
// to the viewer's channels, newest first.
func (q queries) SearchMessages(ctx context.Context, sq SearchQuery) ([]types.Message, error) {
	if strings.TrimSpace(sq.Query) == "" {
		return []types.Message{}, nil
	}
	viewer := sq.Viewer
	if viewer.Scope == "" {
		viewer.Scope = types.ScopeGlobal
	}

	query := `
		SELECT m.id, m.channel, m.sender_name, m.sender_scope, m.content, m.created_at, m.thread,
			m.metadata_json, m.is_edited, m.edited_at, m.confidence, m.intent_type
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.id
		WHERE messages_fts MATCH ?
			AND m.channel IN (
				SELECT channel FROM channel_members WHERE agent_name = ? AND agent_scope = ?)`
	args := []interface{}{convertToFTSQuery(sq.Query), viewer.Name, viewer.Scope}

	if len(sq.Channels) > 0 {
		query += ` AND m.channel IN (` + placeholders(len(sq.Channels)) + `)`
		for _, ch := range sq.Channels {
			args = append(args, ch)
		}
	}
	if len(sq.Senders) > 0 {
		var conds []string
		for _, handle := range sq.Senders {
			name, scope := splitAgentHandle(handle)
			conds = append(conds, `(m.sender_name = ? AND m.sender_scope = ?)`)
			args = append(args, name, scope)
		}
		query += ` AND (` + strings.Join(conds, " OR ") + `)`
	}
	if sq.IntentType != "" {
		query += ` AND m.intent_type = ?`
		args = append(args, sq.IntentType)
	}
	if sq.MinConfidence != nil {
		query += ` AND m.confidence >= ?`
		args = append(args, *sq.MinConfidence)
	}
	if !sq.Since.IsZero() {
		query += ` AND m.created_at >= ?`
		args = append(args, sq.Since.Unix())
	}

	query += ` ORDER BY m.id DESC`
	if sq.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, sq.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError("search_messages", err)
	}
	defer rows.Close()

	var out []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, mapSQLError("search_messages", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// convertToFTSQuery converts a natural language query into FTS5 MATCH
// syntax. Each token is quoted so punctuation like @ and : in agent
// handles cannot be parsed as FTS5 operators, then tokens are joined with
// OR: "sql database tuning" matches any message containing any term.
func convertToFTSQuery(query string) string {
	words := strings.Fields(strings.TrimSpace(query))
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, `""`)
		quoted = append(quoted, `"`+w+`"`)
	}
	// FTS5 requires the OR operator in uppercase.
	return strings.Join(quoted, " OR ")
}

// splitAgentHandle splits "name" or "name:project" into its pair,
// defaulting to the global scope.
func splitAgentHandle(handle string) (name, scope string) {
	if i := strings.IndexByte(handle, ':'); i >= 0 {
		name, scope = handle[:i], handle[i+1:]
		if scope == "" {
			scope = types.ScopeGlobal
		}
		return name, scope
	}
	return handle, types.ScopeGlobal
}
