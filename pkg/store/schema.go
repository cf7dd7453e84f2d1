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
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_active_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS project_links (
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	link_type TEXT NOT NULL DEFAULT 'bidirectional',
	enabled INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (source_id, target_id),
	FOREIGN KEY (source_id) REFERENCES projects(id) ON DELETE CASCADE,
	FOREIGN KEY (target_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS agents (
	name TEXT NOT NULL,
	scope TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'offline',
	dm_policy TEXT NOT NULL DEFAULT 'open',
	discoverability TEXT NOT NULL DEFAULT 'public',
	metadata_json TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (name, scope)
);

CREATE TABLE IF NOT EXISTS channels (
	handle TEXT PRIMARY KEY,
	channel_type TEXT NOT NULL DEFAULT 'channel',
	access_type TEXT NOT NULL DEFAULT 'open',
	scope TEXT NOT NULL DEFAULT 'global',
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_default INTEGER NOT NULL DEFAULT 0,
	archived INTEGER NOT NULL DEFAULT 0,
	created_by TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	agent_scope TEXT NOT NULL,
	invited_by TEXT NOT NULL DEFAULT 'self',
	source TEXT NOT NULL DEFAULT 'manual',
	can_leave INTEGER NOT NULL DEFAULT 1,
	can_send INTEGER NOT NULL DEFAULT 1,
	can_invite INTEGER NOT NULL DEFAULT 0,
	can_manage INTEGER NOT NULL DEFAULT 0,
	is_from_default INTEGER NOT NULL DEFAULT 0,
	is_muted INTEGER NOT NULL DEFAULT 0,
	joined_at INTEGER NOT NULL,
	PRIMARY KEY (channel, agent_name, agent_scope),
	FOREIGN KEY (channel) REFERENCES channels(handle) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	channel TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	sender_scope TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	thread TEXT NOT NULL DEFAULT '',
	metadata_json TEXT,
	is_edited INTEGER NOT NULL DEFAULT 0,
	edited_at INTEGER,
	confidence REAL,
	intent_type TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (channel) REFERENCES channels(handle) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS message_mentions (
	message_id INTEGER NOT NULL,
	agent_name TEXT NOT NULL,
	agent_scope TEXT NOT NULL,
	PRIMARY KEY (message_id, agent_name, agent_scope),
	FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	content,
	content='messages',
	content_rowid='id',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS messages_fts_insert AFTER INSERT ON messages
BEGIN
	INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_update AFTER UPDATE OF content ON messages
BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
	INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS messages_fts_delete AFTER DELETE ON messages
BEGIN
	INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
END;

CREATE TABLE IF NOT EXISTS dm_permissions (
	owner_name TEXT NOT NULL,
	owner_scope TEXT NOT NULL,
	other_name TEXT NOT NULL,
	other_scope TEXT NOT NULL,
	permission TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (owner_name, owner_scope, other_name, other_scope)
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL DEFAULT '',
	project_path TEXT NOT NULL DEFAULT '',
	project_name TEXT NOT NULL DEFAULT '',
	transcript_path TEXT NOT NULL DEFAULT '',
	scope TEXT NOT NULL DEFAULT 'global',
	metadata_json TEXT,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tool_calls (
	session_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	input_digest TEXT NOT NULL,
	called_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, tool_name, input_digest)
);

CREATE TABLE IF NOT EXISTS config_sync_history (
	id TEXT PRIMARY KEY,
	agent_name TEXT NOT NULL,
	agent_scope TEXT NOT NULL,
	source TEXT NOT NULL,
	digest TEXT NOT NULL,
	diff TEXT NOT NULL DEFAULT '',
	snapshot BLOB,
	applied INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trace_spans (
	span_id TEXT PRIMARY KEY,
	trace_id TEXT NOT NULL,
	parent_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	attributes_json TEXT,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL,
	duration_us INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'unset',
	status_message TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trace_metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	value REAL NOT NULL,
	tags_json TEXT,
	recorded_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_channels_scope ON channels(scope);
CREATE INDEX IF NOT EXISTS idx_channels_default ON channels(is_default) WHERE is_default = 1;
CREATE INDEX IF NOT EXISTS idx_members_agent ON channel_members(agent_name, agent_scope);
CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel, id);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread) WHERE thread != '';
CREATE INDEX IF NOT EXISTS idx_mentions_agent ON message_mentions(agent_name, agent_scope);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
CREATE INDEX IF NOT EXISTS idx_tool_calls_called ON tool_calls(called_at);
CREATE INDEX IF NOT EXISTS idx_sync_history_agent ON config_sync_history(agent_name, agent_scope, created_at);
CREATE INDEX IF NOT EXISTS idx_trace_spans_trace ON trace_spans(trace_id);
`

// initSchema creates the database schema if it doesn't exist.
func (s *Store) initSchema() error {
	if _, err := s.sqlDB.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// migrate applies additive column migrations for databases created by
// earlier releases. SQLite lacks ALTER COLUMN, so new columns arrive via
// ADD COLUMN guarded by pragma_table_info.
func (s *Store) migrate() error {
	migrations := []struct {
		table  string
		column string
		ddl    string
	}{
		{"messages", "confidence", "ALTER TABLE messages ADD COLUMN confidence REAL"},
		{"messages", "intent_type", "ALTER TABLE messages ADD COLUMN intent_type TEXT NOT NULL DEFAULT ''"},
		{"agents", "metadata_json", "ALTER TABLE agents ADD COLUMN metadata_json TEXT"},
		{"channel_members", "is_muted", "ALTER TABLE channel_members ADD COLUMN is_muted INTEGER NOT NULL DEFAULT 0"},
		{"sessions", "transcript_path", "ALTER TABLE sessions ADD COLUMN transcript_path TEXT NOT NULL DEFAULT ''"},
	}

	for _, m := range migrations {
		var count int
		checkQuery := fmt.Sprintf(
			"SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name='%s'", m.table, m.column)
		if err := s.sqlDB.QueryRow(checkQuery).Scan(&count); err != nil {
			return fmt.Errorf("failed to inspect %s.%s: %w", m.table, m.column, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.sqlDB.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}
