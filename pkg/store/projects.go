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

// RegisterProject upserts the project identified by path. The project id
// is derived from the absolute path; re-registration bumps last-active.
func (q queries) RegisterProject(ctx context.Context, path string) (*types.Project, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}

	if path == "" {
		return nil, wefterr.New(wefterr.KindInvalidInput, "project path is required")
	}
	id := types.ProjectIDFromPath(path)
	now := time.Now().Unix()

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO projects (id, path, name, created_at, last_active_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_active_at = excluded.last_active_at`,
		id, path, types.ProjectNameFromPath(path), now, now)
	if err != nil {
		return nil, mapSQLError("register_project", err)
	}

	return q.GetProject(ctx, id)
}

// GetProject loads one project by id.
func (q queries) GetProject(ctx context.Context, id string) (*types.Project, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, path, name, created_at, last_active_at
		FROM projects WHERE id = ?`, id)

	var p types.Project
	var created, lastActive int64
	if err := row.Scan(&p.ID, &p.Path, &p.Name, &created, &lastActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wefterr.New(wefterr.KindNotFound, "project %s not registered", id)
		}
		return nil, mapSQLError("get_project", err)
	}
	p.CreatedAt = time.Unix(created, 0)
	p.LastActiveAt = time.Unix(lastActive, 0)
	return &p, nil
}

// GetProjectByPath loads one project by its registered path.
func (q queries) GetProjectByPath(ctx context.Context, path string) (*types.Project, error) {
	if path == "" {
		return nil, wefterr.New(wefterr.KindInvalidInput, "project path is required")
	}
	return q.GetProject(ctx, types.ProjectIDFromPath(path))
}

// ListProjects returns all registered projects, most recently active first.
func (q queries) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, path, name, created_at, last_active_at
		FROM projects ORDER BY last_active_at DESC, id`)
	if err != nil {
		return nil, mapSQLError("list_projects", err)
	}
	defer rows.Close()

	var out []types.Project
	for rows.Next() {
		var p types.Project
		var created, lastActive int64
		if err := rows.Scan(&p.ID, &p.Path, &p.Name, &created, &lastActive); err != nil {
			return nil, mapSQLError("list_projects", err)
		}
		p.CreatedAt = time.Unix(created, 0)
		p.LastActiveAt = time.Unix(lastActive, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// TouchProject bumps last-active for the project.
func (q queries) TouchProject(ctx context.Context, id string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	res, err := q.db.ExecContext(ctx,
		`UPDATE projects SET last_active_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return mapSQLError("touch_project", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return wefterr.New(wefterr.KindNotFound, "project %s not registered", id)
	}
	return nil
}

// LinkProjects records a link between two projects. A link persists as a
// single row regardless of argument order; relinking an existing pair
// updates its type and re-enables it.
func (q queries) LinkProjects(ctx context.Context, source, target string, linkType types.ProjectLinkType) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	if source == target {
		return wefterr.New(wefterr.KindInvalidInput, "cannot link project %s to itself", source)
	}
	if linkType == "" {
		linkType = types.LinkBidirectional
	}

	// The pair may already exist with the arguments reversed. Update that
	// row with the mirrored type instead of inserting a twin.
	var exists int
	err := q.db.QueryRowContext(ctx,
		`SELECT 1 FROM project_links WHERE source_id = ? AND target_id = ?`,
		target, source).Scan(&exists)
	switch {
	case err == nil:
		_, err = q.db.ExecContext(ctx, `
			UPDATE project_links SET link_type = ?, enabled = 1
			WHERE source_id = ? AND target_id = ?`,
			mirrorLinkType(linkType), target, source)
		return mapSQLError("link_projects", err)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return mapSQLError("link_projects", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO project_links (source_id, target_id, link_type, enabled, created_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(source_id, target_id) DO UPDATE SET
			link_type = excluded.link_type, enabled = 1`,
		source, target, linkType, time.Now().Unix())
	return mapSQLError("link_projects", err)
}

func mirrorLinkType(t types.ProjectLinkType) types.ProjectLinkType {
	switch t {
	case types.LinkAToB:
		return types.LinkBToA
	case types.LinkBToA:
		return types.LinkAToB
	default:
		return t
	}
}

// UnlinkProjects removes the link between two projects in either storage
// order. Returns false when no link existed.
func (q queries) UnlinkProjects(ctx context.Context, a, b string) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	res, err := q.db.ExecContext(ctx, `
		DELETE FROM project_links
		WHERE (source_id = ? AND target_id = ?) OR (source_id = ? AND target_id = ?)`,
		a, b, b, a)
	if err != nil {
		return false, mapSQLError("unlink_projects", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// LinkedProjects returns the ids of projects reachable from id through
// enabled links, in link-creation order. Direction matters: an a_to_b
// link makes b reachable from a but not the reverse. Links are never
// followed transitively.
func (q queries) LinkedProjects(ctx context.Context, id string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT target_id AS linked, created_at FROM project_links
		WHERE source_id = ? AND enabled = 1 AND link_type IN ('bidirectional', 'a_to_b')
		UNION
		SELECT source_id AS linked, created_at FROM project_links
		WHERE target_id = ? AND enabled = 1 AND link_type IN ('bidirectional', 'b_to_a')
		ORDER BY created_at, linked`, id, id)
	if err != nil {
		return nil, mapSQLError("linked_projects", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var linked string
		var created int64
		if err := rows.Scan(&linked, &created); err != nil {
			return nil, mapSQLError("linked_projects", err)
		}
		out = append(out, linked)
	}
	return out, rows.Err()
}

// Linked reports whether `to` is reachable from `from` through an enabled
// link.
func (q queries) Linked(ctx context.Context, from, to string) (bool, error) {
	if from == "" || to == "" || from == types.ScopeGlobal || to == types.ScopeGlobal {
		return false, nil
	}
	linked, err := q.LinkedProjects(ctx, from)
	if err != nil {
		return false, err
	}
	for _, id := range linked {
		if id == to {
			return true, nil
		}
	}
	return false, nil
}

// ListProjectLinks returns every link row touching the project.
func (q queries) ListProjectLinks(ctx context.Context, id string) ([]types.ProjectLink, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT source_id, target_id, link_type, enabled, created_at
		FROM project_links
		WHERE source_id = ? OR target_id = ?
		ORDER BY created_at`, id, id)
	if err != nil {
		return nil, mapSQLError("list_project_links", err)
	}
	defer rows.Close()

	var out []types.ProjectLink
	for rows.Next() {
		var l types.ProjectLink
		var enabled int
		var created int64
		if err := rows.Scan(&l.Source, &l.Target, &l.Type, &enabled, &created); err != nil {
			return nil, mapSQLError("list_project_links", err)
		}
		l.Enabled = enabled != 0
		l.Created = time.Unix(created, 0)
		out = append(out, l)
	}
	return out, rows.Err()
}
