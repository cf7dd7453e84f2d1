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

// SetDMPermission upserts an explicit allow or block held by owner
// against other. Setting the same pair twice replaces kind and reason.
func (q queries) SetDMPermission(ctx context.Context, perm *types.DMPermission) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if perm.Permission != types.PermissionAllow && perm.Permission != types.PermissionBlock {
		return wefterr.New(wefterr.KindInvalidInput, "invalid permission %q", perm.Permission)
	}
	owner, other := normalizeRef(perm.Owner), normalizeRef(perm.Other)
	if owner == other {
		return wefterr.New(wefterr.KindInvalidInput, "cannot set a DM permission against yourself")
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO dm_permissions (owner_name, owner_scope, other_name, other_scope, permission, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_name, owner_scope, other_name, other_scope) DO UPDATE SET
			permission = excluded.permission,
			reason = excluded.reason,
			created_at = excluded.created_at`,
		owner.Name, owner.Scope, other.Name, other.Scope,
		perm.Permission, perm.Reason, time.Now().Unix())
	return mapSQLError("set_dm_permission", err)
}

// RemoveDMPermission deletes the permission row of either kind. Returns
// false when none existed.
func (q queries) RemoveDMPermission(ctx context.Context, owner, other types.AgentRef) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	owner, other = normalizeRef(owner), normalizeRef(other)
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM dm_permissions
		WHERE owner_name = ? AND owner_scope = ? AND other_name = ? AND other_scope = ?`,
		owner.Name, owner.Scope, other.Name, other.Scope)
	if err != nil {
		return false, mapSQLError("remove_dm_permission", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetDMPermission loads the permission owner holds against other.
func (q queries) GetDMPermission(ctx context.Context, owner, other types.AgentRef) (*types.DMPermission, error) {
	owner, other = normalizeRef(owner), normalizeRef(other)
	row := q.db.QueryRowContext(ctx, `
		SELECT owner_name, owner_scope, other_name, other_scope, permission, reason, created_at
		FROM dm_permissions
		WHERE owner_name = ? AND owner_scope = ? AND other_name = ? AND other_scope = ?`,
		owner.Name, owner.Scope, other.Name, other.Scope)

	perm, err := scanDMPermission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wefterr.New(wefterr.KindNotFound, "no DM permission from %s for %s",
				owner.Handle(), other.Handle())
		}
		return nil, mapSQLError("get_dm_permission", err)
	}
	return perm, nil
}

// ListDMPermissions returns every permission owned by the agent.
func (q queries) ListDMPermissions(ctx context.Context, owner types.AgentRef) ([]types.DMPermission, error) {
	owner = normalizeRef(owner)
	rows, err := q.db.QueryContext(ctx, `
		SELECT owner_name, owner_scope, other_name, other_scope, permission, reason, created_at
		FROM dm_permissions
		WHERE owner_name = ? AND owner_scope = ?
		ORDER BY created_at, other_name`, owner.Name, owner.Scope)
	if err != nil {
		return nil, mapSQLError("list_dm_permissions", err)
	}
	defer rows.Close()

	var out []types.DMPermission
	for rows.Next() {
		perm, err := scanDMPermission(rows)
		if err != nil {
			return nil, mapSQLError("list_dm_permissions", err)
		}
		out = append(out, *perm)
	}
	return out, rows.Err()
}

// permissionsBetween loads the permission rows in both directions for a
// pair in one query. Used by the dm_access view.
func (q queries) permissionsBetween(ctx context.Context, a, b types.AgentRef) (aToB, bToA *types.DMPermission, err error) {
	a, b = normalizeRef(a), normalizeRef(b)
	rows, err := q.db.QueryContext(ctx, `
		SELECT owner_name, owner_scope, other_name, other_scope, permission, reason, created_at
		FROM dm_permissions
		WHERE (owner_name = ? AND owner_scope = ? AND other_name = ? AND other_scope = ?)
		   OR (owner_name = ? AND owner_scope = ? AND other_name = ? AND other_scope = ?)`,
		a.Name, a.Scope, b.Name, b.Scope,
		b.Name, b.Scope, a.Name, a.Scope)
	if err != nil {
		return nil, nil, mapSQLError("permissions_between", err)
	}
	defer rows.Close()

	for rows.Next() {
		perm, err := scanDMPermission(rows)
		if err != nil {
			return nil, nil, mapSQLError("permissions_between", err)
		}
		if perm.Owner == a {
			aToB = perm
		} else {
			bToA = perm
		}
	}
	return aToB, bToA, rows.Err()
}

func scanDMPermission(row rowScanner) (*types.DMPermission, error) {
	var p types.DMPermission
	var created int64
	if err := row.Scan(&p.Owner.Name, &p.Owner.Scope, &p.Other.Name, &p.Other.Scope,
		&p.Permission, &p.Reason, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(created, 0)
	return &p, nil
}

func normalizeRef(ref types.AgentRef) types.AgentRef {
	if ref.Scope == "" {
		ref.Scope = types.ScopeGlobal
	}
	return ref
}
