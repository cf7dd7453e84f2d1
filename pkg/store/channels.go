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

// CreateChannel inserts a channel row. Callers that need idempotent
// creation catch KindAlreadyExists.
func (q queries) CreateChannel(ctx context.Context, ch *types.Channel) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO channels (handle, channel_type, access_type, scope, name, description, is_default, archived, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.Handle, ch.Type, ch.Access, ch.Scope, ch.Name, ch.Description,
		boolToInt(ch.IsDefault), boolToInt(ch.Archived), ch.CreatedBy, ch.CreatedAt.Unix())
	if err != nil {
		mapped := mapSQLError("create_channel", err)
		if wefterr.IsKind(mapped, wefterr.KindAlreadyExists) {
			return wefterr.New(wefterr.KindAlreadyExists, "channel %s already exists", ch.Handle)
		}
		return mapped
	}
	return nil
}

// GetChannel loads one channel by handle.
func (q queries) GetChannel(ctx context.Context, handle string) (*types.Channel, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT handle, channel_type, access_type, scope, name, description, is_default, archived, created_by, created_at
		FROM channels WHERE handle = ?`, handle)

	ch, err := scanChannel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wefterr.New(wefterr.KindNotFound, "channel %s not found", handle)
		}
		return nil, mapSQLError("get_channel", err)
	}
	return ch, nil
}

// ChannelFilter narrows ListChannels.
type ChannelFilter struct {
	// Scopes restricts to the listed scopes when non-empty.
	Scopes []string
	// Types restricts to the listed channel types when non-empty.
	Types []types.ChannelType
	// IncludeArchived keeps archived channels in the result.
	IncludeArchived bool
	// DefaultOnly keeps only is_default channels.
	DefaultOnly bool
}

// ListChannels returns channels matching the filter, ordered by handle.
func (q queries) ListChannels(ctx context.Context, f ChannelFilter) ([]types.Channel, error) {
	query := `
		SELECT handle, channel_type, access_type, scope, name, description, is_default, archived, created_by, created_at
		FROM channels WHERE 1=1`
	var args []interface{}

	if len(f.Scopes) > 0 {
		query += ` AND scope IN (` + placeholders(len(f.Scopes)) + `)`
		for _, s := range f.Scopes {
			args = append(args, s)
		}
	}
	if len(f.Types) > 0 {
		query += ` AND channel_type IN (` + placeholders(len(f.Types)) + `)`
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if !f.IncludeArchived {
		query += ` AND archived = 0`
	}
	if f.DefaultOnly {
		query += ` AND is_default = 1`
	}
	query += ` ORDER BY handle`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLError("list_channels", err)
	}
	defer rows.Close()

	var out []types.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, mapSQLError("list_channels", err)
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

// SetChannelArchived flips the archived flag.
func (q queries) SetChannelArchived(ctx context.Context, handle string, archived bool) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE channels SET archived = ? WHERE handle = ?`, boolToInt(archived), handle)
	if err != nil {
		return mapSQLError("set_channel_archived", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wefterr.New(wefterr.KindNotFound, "channel %s not found", handle)
	}
	return nil
}

// UpdateChannelDescription replaces the channel description.
func (q queries) UpdateChannelDescription(ctx context.Context, handle, description string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE channels SET description = ? WHERE handle = ?`, description, handle)
	if err != nil {
		return mapSQLError("update_channel", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wefterr.New(wefterr.KindNotFound, "channel %s not found", handle)
	}
	return nil
}

// AddMember inserts a membership row. Returns false without error when
// the membership already exists, which makes joins and default
// application idempotent.
func (q queries) AddMember(ctx context.Context, m *types.Membership) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	if m.AgentScope == "" {
		m.AgentScope = types.ScopeGlobal
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}

	res, err := q.db.ExecContext(ctx, `
		INSERT INTO channel_members (channel, agent_name, agent_scope, invited_by, source,
			can_leave, can_send, can_invite, can_manage, is_from_default, is_muted, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, agent_name, agent_scope) DO NOTHING`,
		m.Channel, m.AgentName, m.AgentScope, m.InvitedBy, m.Source,
		boolToInt(m.CanLeave), boolToInt(m.CanSend), boolToInt(m.CanInvite),
		boolToInt(m.CanManage), boolToInt(m.IsFromDefault), boolToInt(m.IsMuted),
		m.JoinedAt.Unix())
	if err != nil {
		return false, mapSQLError("add_member", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveMember deletes a membership row. Returns false when the agent was
// not a member.
func (q queries) RemoveMember(ctx context.Context, channel string, ref types.AgentRef) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	if ref.Scope == "" {
		ref.Scope = types.ScopeGlobal
	}
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM channel_members
		WHERE channel = ? AND agent_name = ? AND agent_scope = ?`,
		channel, ref.Name, ref.Scope)
	if err != nil {
		return false, mapSQLError("remove_member", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetMembership loads one membership row.
func (q queries) GetMembership(ctx context.Context, channel string, ref types.AgentRef) (*types.Membership, error) {
	if ref.Scope == "" {
		ref.Scope = types.ScopeGlobal
	}
	row := q.db.QueryRowContext(ctx, `
		SELECT channel, agent_name, agent_scope, invited_by, source,
			can_leave, can_send, can_invite, can_manage, is_from_default, is_muted, joined_at
		FROM channel_members
		WHERE channel = ? AND agent_name = ? AND agent_scope = ?`,
		channel, ref.Name, ref.Scope)

	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wefterr.New(wefterr.KindNotFound, "%s is not a member of %s", ref.Handle(), channel)
		}
		return nil, mapSQLError("get_membership", err)
	}
	return m, nil
}

// ListMembers returns every membership of the channel ordered by join time.
func (q queries) ListMembers(ctx context.Context, channel string) ([]types.Membership, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT channel, agent_name, agent_scope, invited_by, source,
			can_leave, can_send, can_invite, can_manage, is_from_default, is_muted, joined_at
		FROM channel_members WHERE channel = ?
		ORDER BY joined_at, agent_name`, channel)
	if err != nil {
		return nil, mapSQLError("list_members", err)
	}
	defer rows.Close()

	var out []types.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, mapSQLError("list_members", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CountMembers returns the channel's membership count.
func (q queries) CountMembers(ctx context.Context, channel string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channel_members WHERE channel = ?`, channel).Scan(&n)
	if err != nil {
		return 0, mapSQLError("count_members", err)
	}
	return n, nil
}

// SetMuted flips a member's mute flag.
func (q queries) SetMuted(ctx context.Context, channel string, ref types.AgentRef, muted bool) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if ref.Scope == "" {
		ref.Scope = types.ScopeGlobal
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE channel_members SET is_muted = ?
		WHERE channel = ? AND agent_name = ? AND agent_scope = ?`,
		boolToInt(muted), channel, ref.Name, ref.Scope)
	if err != nil {
		return mapSQLError("set_muted", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wefterr.New(wefterr.KindNotFound, "%s is not a member of %s", ref.Handle(), channel)
	}
	return nil
}

func scanChannel(row rowScanner) (*types.Channel, error) {
	var ch types.Channel
	var isDefault, archived int
	var created int64
	if err := row.Scan(&ch.Handle, &ch.Type, &ch.Access, &ch.Scope, &ch.Name,
		&ch.Description, &isDefault, &archived, &ch.CreatedBy, &created); err != nil {
		return nil, err
	}
	ch.IsDefault = isDefault != 0
	ch.Archived = archived != 0
	ch.CreatedAt = time.Unix(created, 0)
	return &ch, nil
}

func scanMembership(row rowScanner) (*types.Membership, error) {
	var m types.Membership
	var canLeave, canSend, canInvite, canManage, fromDefault, muted int
	var joined int64
	if err := row.Scan(&m.Channel, &m.AgentName, &m.AgentScope, &m.InvitedBy, &m.Source,
		&canLeave, &canSend, &canInvite, &canManage, &fromDefault, &muted, &joined); err != nil {
		return nil, err
	}
	m.CanLeave = canLeave != 0
	m.CanSend = canSend != 0
	m.CanInvite = canInvite != 0
	m.CanManage = canManage != 0
	m.IsFromDefault = fromDefault != 0
	m.IsMuted = muted != 0
	m.JoinedAt = time.Unix(joined, 0)
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	s := "?"
	for i := 1; i < n; i++ {
		s += ", ?"
	}
	return s
}
