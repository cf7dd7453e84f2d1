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

package orchestrator

import (
	"context"
	"time"

	"github.com/teradata-labs/weft/pkg/discovery"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

type agentView struct {
	Handle          string                 `json:"handle"`
	Scope           string                 `json:"scope"`
	Description     string                 `json:"description,omitempty"`
	Status          string                 `json:"status"`
	DMPolicy        string                 `json:"dm_policy"`
	Discoverability string                 `json:"discoverability"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

func agentViewOf(a *types.Agent) agentView {
	return agentView{
		Handle:          a.Ref().Handle(),
		Scope:           a.Scope,
		Description:     a.Description,
		Status:          string(a.Status),
		DMPolicy:        string(a.DMPolicy),
		Discoverability: string(a.Discoverability),
		Metadata:        a.Metadata,
	}
}

type discoveredView struct {
	agentView
	DMAvailability string `json:"dm_availability"`
	HasExistingDM  bool   `json:"has_existing_dm,omitempty"`
}

type permissionView struct {
	Other      string    `json:"other"`
	Permission string    `json:"permission"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type projectView struct {
	ID           string    `json:"id"`
	Path         string    `json:"path,omitempty"`
	Name         string    `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	LastActiveAt time.Time `json:"last_active_at,omitempty"`
}

type currentProjectView struct {
	SessionID   string `json:"session_id"`
	Scope       string `json:"scope"`
	ProjectID   string `json:"project_id,omitempty"`
	ProjectPath string `json:"project_path,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
}

type linkedProjectsView struct {
	Project string        `json:"project"`
	Linked  []projectView `json:"linked"`
}

// ============================================================================
// Roster tools
// ============================================================================

func (o *Orchestrator) handleListAgents(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	p := discovery.DiscoverParams{
		NameFilter: stringArg(args, "filter"),
		Limit:      intArg(args, "limit"),
	}
	for _, a := range stringsArg(args, "availability") {
		p.Availability = append(p.Availability, store.DMAvailability(a))
	}
	found, err := o.discovery.Discover(ctx, viewer, p)
	if err != nil {
		return nil, err
	}
	out := make([]discoveredView, len(found))
	for i, da := range found {
		out[i] = discoveredView{
			agentView:      agentViewOf(&da.Agent),
			DMAvailability: string(da.DMAvailability),
			HasExistingDM:  da.HasExistingDM,
		}
	}
	return out, nil
}

// handleUpdateAgent re-registers the caller. Registration preserves any
// field the arguments leave empty, so a bare status change does not
// clobber the stored policy fields.
func (o *Orchestrator) handleUpdateAgent(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	agent, err := o.discovery.Register(ctx, discovery.RegisterParams{
		Name:            viewer.Name,
		Scope:           viewer.Scope,
		Description:     stringArg(args, "description"),
		Status:          types.AgentStatus(stringArg(args, "status")),
		DMPolicy:        types.DMPolicy(stringArg(args, "dm_policy")),
		Discoverability: types.Discoverability(stringArg(args, "discoverability")),
		Metadata:        mapArg(args, "metadata"),
	})
	if err != nil {
		return nil, err
	}
	return agentViewOf(agent), nil
}

func (o *Orchestrator) handleSetDMPermission(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	other, err := parseAgentHandle(stringArg(args, "other"))
	if err != nil {
		return nil, err
	}
	reason := stringArg(args, "reason")
	switch kind := stringArg(args, "permission"); kind {
	case string(types.PermissionAllow):
		err = o.discovery.Allow(ctx, viewer, other, reason)
	case string(types.PermissionBlock):
		err = o.discovery.Block(ctx, viewer, other, reason)
	default:
		return nil, wefterr.New(wefterr.KindInvalidInput, "permission must be allow or block, got %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return stringArg(args, "permission") + " set for " + other.Handle(), nil
}

func (o *Orchestrator) handleRemoveDMPermission(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	other, err := parseAgentHandle(stringArg(args, "other"))
	if err != nil {
		return nil, err
	}
	removed, err := o.discovery.RemovePermission(ctx, viewer, other)
	if err != nil {
		return nil, err
	}
	if !removed {
		return "no dm permission was set for " + other.Handle(), nil
	}
	return "dm permission removed for " + other.Handle(), nil
}

func (o *Orchestrator) handleListDMPermissions(ctx context.Context, viewer types.AgentRef, _ map[string]interface{}) (interface{}, error) {
	perms, err := o.discovery.Permissions(ctx, viewer)
	if err != nil {
		return nil, err
	}
	out := make([]permissionView, len(perms))
	for i, p := range perms {
		out[i] = permissionView{
			Other:      p.Other.Handle(),
			Permission: string(p.Permission),
			Reason:     p.Reason,
			CreatedAt:  p.CreatedAt,
		}
	}
	return out, nil
}

// ============================================================================
// Project tools
//
// These run without a resolved caller: the hook registers sessions
// before any agent exists, and project topology is not agent-scoped.
// ============================================================================

func (o *Orchestrator) handleGetCurrentProject(ctx context.Context, _ types.AgentRef, _ map[string]interface{}) (interface{}, error) {
	if o.sessionID == "" {
		return nil, wefterr.New(wefterr.KindNotFound, "no session attached to this tool server")
	}
	sess, err := o.sessions.Get(ctx, o.sessionID)
	if err != nil {
		return nil, err
	}
	return currentProjectView{
		SessionID:   sess.ID,
		Scope:       string(sess.Scope),
		ProjectID:   sess.ProjectID,
		ProjectPath: sess.ProjectPath,
		ProjectName: sess.ProjectName,
	}, nil
}

func (o *Orchestrator) handleListProjects(ctx context.Context, _ types.AgentRef, _ map[string]interface{}) (interface{}, error) {
	projects, err := o.sessions.Projects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]projectView, len(projects))
	for i, p := range projects {
		out[i] = projectView{
			ID:           p.ID,
			Path:         p.Path,
			Name:         p.Name,
			CreatedAt:    p.CreatedAt,
			LastActiveAt: p.LastActiveAt,
		}
	}
	return out, nil
}

func (o *Orchestrator) handleGetLinkedProjects(ctx context.Context, _ types.AgentRef, args map[string]interface{}) (interface{}, error) {
	id := stringArg(args, "project")
	if id == "" {
		if o.sessionID == "" {
			return nil, wefterr.New(wefterr.KindInvalidInput,
				"project required when no session is attached")
		}
		sess, err := o.sessions.Get(ctx, o.sessionID)
		if err != nil {
			return nil, err
		}
		if sess.ProjectID == "" {
			return nil, wefterr.New(wefterr.KindInvalidInput,
				"session has no project; pass project explicitly")
		}
		id = sess.ProjectID
	}
	if !types.IsProjectID(id) {
		return nil, wefterr.New(wefterr.KindInvalidInput, "invalid project id %q", id)
	}

	ids, err := o.sessions.LinkedProjects(ctx, id)
	if err != nil {
		return nil, err
	}
	known, err := o.sessions.Projects(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]types.Project, len(known))
	for _, p := range known {
		byID[p.ID] = p
	}

	view := linkedProjectsView{Project: id, Linked: make([]projectView, 0, len(ids))}
	for _, linked := range ids {
		if p, ok := byID[linked]; ok {
			view.Linked = append(view.Linked, projectView{
				ID:           p.ID,
				Path:         p.Path,
				Name:         p.Name,
				CreatedAt:    p.CreatedAt,
				LastActiveAt: p.LastActiveAt,
			})
			continue
		}
		view.Linked = append(view.Linked, projectView{ID: linked})
	}
	return view, nil
}

func (o *Orchestrator) handleLinkProjects(ctx context.Context, _ types.AgentRef, args map[string]interface{}) (interface{}, error) {
	source, err := o.resolveProjectArg(ctx, stringArg(args, "source"))
	if err != nil {
		return nil, err
	}
	target, err := o.resolveProjectArg(ctx, stringArg(args, "target"))
	if err != nil {
		return nil, err
	}
	linkType := types.ProjectLinkType(stringArg(args, "link_type"))
	if err := o.sessions.LinkProjects(ctx, source, target, linkType); err != nil {
		return nil, err
	}
	return "linked " + source + " and " + target, nil
}

// resolveProjectArg accepts a project id or a filesystem path. Paths
// are registered on the fly so links can be declared before either
// side has run a session.
func (o *Orchestrator) resolveProjectArg(ctx context.Context, s string) (string, error) {
	if s == "" {
		return "", wefterr.New(wefterr.KindInvalidInput, "project argument required")
	}
	if types.IsProjectID(s) {
		return s, nil
	}
	project, err := o.sessions.RegisterProject(ctx, s)
	if err != nil {
		return "", err
	}
	return project.ID, nil
}
