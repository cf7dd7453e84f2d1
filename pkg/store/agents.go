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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// UpsertAgent registers or updates an agent. Empty policy fields keep
// existing values on update and receive defaults on insert.
func (q queries) UpsertAgent(ctx context.Context, agent *types.Agent) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if !types.ValidAgentName(agent.Name) {
		return wefterr.New(wefterr.KindInvalidInput, "invalid agent name %q", agent.Name)
	}
	if agent.Scope == "" {
		agent.Scope = types.ScopeGlobal
	}
	if agent.Scope != types.ScopeGlobal && !types.IsProjectID(agent.Scope) {
		return wefterr.New(wefterr.KindInvalidInput, "invalid agent scope %q", agent.Scope)
	}

	metadata, err := marshalJSON(agent.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	// The VALUES row carries insert defaults, so the update clause rebinds
	// the raw inputs: an empty field must keep the stored value, not the
	// default that excluded.* would report.
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO agents (name, scope, description, status, dm_policy, discoverability, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, scope) DO UPDATE SET
			description     = COALESCE(NULLIF(excluded.description, ''), agents.description),
			status          = COALESCE(NULLIF(?, ''), agents.status),
			dm_policy       = COALESCE(NULLIF(?, ''), agents.dm_policy),
			discoverability = COALESCE(NULLIF(?, ''), agents.discoverability),
			metadata_json   = COALESCE(excluded.metadata_json, agents.metadata_json),
			updated_at      = excluded.updated_at`,
		agent.Name, agent.Scope, agent.Description,
		defaultString(string(agent.Status), string(types.StatusOffline)),
		defaultString(string(agent.DMPolicy), string(types.DMOpen)),
		defaultString(string(agent.Discoverability), string(types.DiscoverPublic)),
		metadata, now, now,
		string(agent.Status), string(agent.DMPolicy), string(agent.Discoverability))
	return mapSQLError("upsert_agent", err)
}

// GetAgent loads one agent by identity.
func (q queries) GetAgent(ctx context.Context, ref types.AgentRef) (*types.Agent, error) {
	if ref.Scope == "" {
		ref.Scope = types.ScopeGlobal
	}
	row := q.db.QueryRowContext(ctx, `
		SELECT name, scope, description, status, dm_policy, discoverability, metadata_json, created_at, updated_at
		FROM agents WHERE name = ? AND scope = ?`, ref.Name, ref.Scope)

	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wefterr.New(wefterr.KindNotFound, "agent %s not registered", ref.Handle())
		}
		return nil, mapSQLError("get_agent", err)
	}
	return agent, nil
}

// ListAgents returns agents, optionally restricted to one scope. An empty
// scope lists every agent.
func (q queries) ListAgents(ctx context.Context, scope string) ([]types.Agent, error) {
	query := `
		SELECT name, scope, description, status, dm_policy, discoverability, metadata_json, created_at, updated_at
		FROM agents`
	args := []interface{}{}
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}
	query += ` ORDER BY name, scope`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError("list_agents", err)
	}
	defer rows.Close()

	var out []types.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, mapSQLError("list_agents", err)
		}
		out = append(out, *agent)
	}
	return out, rows.Err()
}

// SetAgentStatus updates presence for the agent.
func (q queries) SetAgentStatus(ctx context.Context, ref types.AgentRef, status types.AgentStatus) error {
	return q.updateAgentField(ctx, ref, "status", string(status))
}

// SetDMPolicy replaces the agent's DM policy tier. Existing DM channels
// are unaffected.
func (q queries) SetDMPolicy(ctx context.Context, ref types.AgentRef, policy types.DMPolicy) error {
	return q.updateAgentField(ctx, ref, "dm_policy", string(policy))
}

// SetDiscoverability replaces the agent's discovery tier.
func (q queries) SetDiscoverability(ctx context.Context, ref types.AgentRef, d types.Discoverability) error {
	return q.updateAgentField(ctx, ref, "discoverability", string(d))
}

func (q queries) updateAgentField(ctx context.Context, ref types.AgentRef, column, value string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if ref.Scope == "" {
		ref.Scope = types.ScopeGlobal
	}
	res, err := q.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE agents SET %s = ?, updated_at = ? WHERE name = ? AND scope = ?`, column),
		value, time.Now().Unix(), ref.Name, ref.Scope)
	if err != nil {
		return mapSQLError("update_agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wefterr.New(wefterr.KindNotFound, "agent %s not registered", ref.Handle())
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*types.Agent, error) {
	var a types.Agent
	var metadata sql.NullString
	var created, updated int64
	if err := row.Scan(&a.Name, &a.Scope, &a.Description, &a.Status, &a.DMPolicy,
		&a.Discoverability, &metadata, &created, &updated); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(metadata, &a.Metadata); err != nil {
		return nil, err
	}
	a.CreatedAt = time.Unix(created, 0)
	a.UpdatedAt = time.Unix(updated, 0)
	return &a, nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func marshalJSON(m map[string]interface{}) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, wefterr.Wrap(wefterr.KindInvalidInput, err, "metadata not serializable")
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalJSON(s sql.NullString, dst *map[string]interface{}) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), dst); err != nil {
		return wefterr.Wrap(wefterr.KindInternal, err, "stored metadata corrupt")
	}
	return nil
}
