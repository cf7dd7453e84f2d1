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
	"sort"
	"time"

	"github.com/teradata-labs/weft/pkg/types"
)

// MemberChannel pairs a channel with the agent's own membership row.
type MemberChannel struct {
	Channel    types.Channel
	Membership types.Membership
}

// AgentChannels returns every channel the agent is a member of, with the
// agent's membership row. Non-members see nothing through this view.
func (q queries) AgentChannels(ctx context.Context, ref types.AgentRef) ([]MemberChannel, error) {
	ref = normalizeRef(ref)
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.handle, c.channel_type, c.access_type, c.scope, c.name, c.description,
			c.is_default, c.archived, c.created_by, c.created_at,
			cm.channel, cm.agent_name, cm.agent_scope, cm.invited_by, cm.source,
			cm.can_leave, cm.can_send, cm.can_invite, cm.can_manage, cm.is_from_default,
			cm.is_muted, cm.joined_at
		FROM channels c
		JOIN channel_members cm ON cm.channel = c.handle
		WHERE cm.agent_name = ? AND cm.agent_scope = ?
		ORDER BY c.handle`, ref.Name, ref.Scope)
	if err != nil {
		return nil, mapSQLError("agent_channels", err)
	}
	defer rows.Close()

	var out []MemberChannel
	for rows.Next() {
		var mc MemberChannel
		var isDefault, archived int
		var chCreated int64
		var canLeave, canSend, canInvite, canManage, fromDefault, muted int
		var joined int64
		if err := rows.Scan(
			&mc.Channel.Handle, &mc.Channel.Type, &mc.Channel.Access, &mc.Channel.Scope,
			&mc.Channel.Name, &mc.Channel.Description, &isDefault, &archived,
			&mc.Channel.CreatedBy, &chCreated,
			&mc.Membership.Channel, &mc.Membership.AgentName, &mc.Membership.AgentScope,
			&mc.Membership.InvitedBy, &mc.Membership.Source,
			&canLeave, &canSend, &canInvite, &canManage, &fromDefault, &muted, &joined,
		); err != nil {
			return nil, mapSQLError("agent_channels", err)
		}
		mc.Channel.IsDefault = isDefault != 0
		mc.Channel.Archived = archived != 0
		mc.Channel.CreatedAt = time.Unix(chCreated, 0)
		mc.Membership.CanLeave = canLeave != 0
		mc.Membership.CanSend = canSend != 0
		mc.Membership.CanInvite = canInvite != 0
		mc.Membership.CanManage = canManage != 0
		mc.Membership.IsFromDefault = fromDefault != 0
		mc.Membership.IsMuted = muted != 0
		mc.Membership.JoinedAt = time.Unix(joined, 0)
		out = append(out, mc)
	}
	return out, rows.Err()
}

// IsMember reports whether the agent holds a membership in the channel.
func (q queries) IsMember(ctx context.Context, channel string, ref types.AgentRef) (bool, error) {
	ref = normalizeRef(ref)
	var one int
	err := q.db.QueryRowContext(ctx, `
		SELECT 1 FROM channel_members
		WHERE channel = ? AND agent_name = ? AND agent_scope = ?`,
		channel, ref.Name, ref.Scope).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, mapSQLError("is_member", err)
	}
	return true, nil
}

// DMDecision is the outcome of the dm_access view for one ordered pair.
type DMDecision struct {
	Allowed bool
	// Reason is empty when allowed, otherwise one of self, blocked,
	// closed, requires_permission.
	Reason string
}

const (
	DMReasonSelf        = "self"
	DMReasonBlocked     = "blocked"
	DMReasonClosed      = "closed"
	DMReasonRequires    = "requires_permission"
	DMReasonUnavailable = "unavailable"
)

// CanDM evaluates whether sender may open a DM with receiver. DM channels
// are symmetric, so the policy gate is checked in both directions: a
// block by either party denies, and each restricted party must hold an
// allow for the other.
func (q queries) CanDM(ctx context.Context, sender, receiver types.AgentRef) (DMDecision, error) {
	sender, receiver = normalizeRef(sender), normalizeRef(receiver)
	if sender == receiver {
		return DMDecision{Reason: DMReasonSelf}, nil
	}

	senderAgent, err := q.GetAgent(ctx, sender)
	if err != nil {
		return DMDecision{}, err
	}
	receiverAgent, err := q.GetAgent(ctx, receiver)
	if err != nil {
		return DMDecision{}, err
	}
	sToR, rToS, err := q.permissionsBetween(ctx, sender, receiver)
	if err != nil {
		return DMDecision{}, err
	}

	return evaluateDMAccess(senderAgent, receiverAgent, sToR, rToS), nil
}

// evaluateDMAccess applies the block and policy rules to a loaded pair.
func evaluateDMAccess(sender, receiver *types.Agent, senderPerm, receiverPerm *types.DMPermission) DMDecision {
	// Blocks are symmetric: either side's block denies both directions.
	if isBlock(senderPerm) || isBlock(receiverPerm) {
		return DMDecision{Reason: DMReasonBlocked}
	}

	if d := receiverGate(receiver, receiverPerm); d.Reason != "" {
		return d
	}
	// Reverse direction: the DM channel lets the receiver message the
	// sender too, so the sender's own gate must pass as well.
	if d := receiverGate(sender, senderPerm); d.Reason != "" {
		return d
	}
	return DMDecision{Allowed: true}
}

// receiverGate checks one party's policy against the permission that
// party holds for the peer.
func receiverGate(party *types.Agent, partyPerm *types.DMPermission) DMDecision {
	switch party.DMPolicy {
	case types.DMClosed:
		return DMDecision{Reason: DMReasonClosed}
	case types.DMRestricted:
		if partyPerm == nil || partyPerm.Permission != types.PermissionAllow {
			return DMDecision{Reason: DMReasonRequires}
		}
	}
	return DMDecision{}
}

func isBlock(p *types.DMPermission) bool {
	return p != nil && p.Permission == types.PermissionBlock
}

// DMAvailability is the discovery-facing DM tier for a candidate.
type DMAvailability string

const (
	DMAvailable          DMAvailability = "available"
	DMRequiresPermission DMAvailability = "requires_permission"
	DMBlocked            DMAvailability = "blocked"
	DMUnavailable        DMAvailability = "unavailable"
)

// DiscoveredAgent is one row of the agent_discovery view.
type DiscoveredAgent struct {
	Agent          types.Agent
	DMAvailability DMAvailability
	HasExistingDM  bool
}

// AgentDiscovery returns the agents visible to the viewer per their
// discoverability tiers, annotated with DM availability and whether a DM
// channel already exists. Existing DM partners sort first, then by
// availability tier, then by name.
func (q queries) AgentDiscovery(ctx context.Context, viewer types.AgentRef) ([]DiscoveredAgent, error) {
	viewer = normalizeRef(viewer)
	viewerAgent, err := q.GetAgent(ctx, viewer)
	if err != nil {
		return nil, err
	}

	candidates, err := q.ListAgents(ctx, "")
	if err != nil {
		return nil, err
	}

	var linked map[string]bool
	if viewer.Scope != types.ScopeGlobal {
		ids, err := q.LinkedProjects(ctx, viewer.Scope)
		if err != nil {
			return nil, err
		}
		linked = make(map[string]bool, len(ids))
		for _, id := range ids {
			linked[id] = true
		}
	}

	perms, err := q.viewerPermissionMap(ctx, viewer)
	if err != nil {
		return nil, err
	}
	dmPartners, err := q.viewerDMChannels(ctx, viewer)
	if err != nil {
		return nil, err
	}

	var out []DiscoveredAgent
	for i := range candidates {
		cand := candidates[i]
		ref := cand.Ref()
		if !discoverable(viewerAgent, &cand, linked) {
			continue
		}

		da := DiscoveredAgent{
			Agent:         cand,
			HasExistingDM: dmPartners[types.DMHandleFor(viewer, ref)],
		}
		if ref == viewer {
			da.DMAvailability = DMUnavailable
		} else {
			decision := evaluateDMAccess(viewerAgent, &cand,
				perms[permKey(viewer, ref)], perms[permKey(ref, viewer)])
			da.DMAvailability = availabilityFor(decision)
		}
		out = append(out, da)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HasExistingDM != out[j].HasExistingDM {
			return out[i].HasExistingDM
		}
		ri, rj := availabilityRank(out[i].DMAvailability), availabilityRank(out[j].DMAvailability)
		if ri != rj {
			return ri < rj
		}
		if out[i].Agent.Name != out[j].Agent.Name {
			return out[i].Agent.Name < out[j].Agent.Name
		}
		return out[i].Agent.Scope < out[j].Agent.Scope
	})
	return out, nil
}

// discoverable applies the visibility tiers: public always, project for
// same or linked scope (or a global viewer), private only to itself.
func discoverable(viewer *types.Agent, cand *types.Agent, linked map[string]bool) bool {
	if cand.Name == viewer.Name && cand.Scope == viewer.Scope {
		return true
	}
	switch cand.Discoverability {
	case types.DiscoverPublic:
		return true
	case types.DiscoverProject:
		if viewer.Scope == types.ScopeGlobal {
			return true
		}
		return cand.Scope == viewer.Scope || linked[cand.Scope]
	default:
		return false
	}
}

func availabilityFor(d DMDecision) DMAvailability {
	switch {
	case d.Allowed:
		return DMAvailable
	case d.Reason == DMReasonBlocked:
		return DMBlocked
	case d.Reason == DMReasonRequires:
		return DMRequiresPermission
	default:
		return DMUnavailable
	}
}

func availabilityRank(a DMAvailability) int {
	switch a {
	case DMAvailable:
		return 0
	case DMRequiresPermission:
		return 1
	case DMBlocked:
		return 2
	default:
		return 3
	}
}

func permKey(owner, other types.AgentRef) string {
	return owner.Handle() + "\x00" + other.Handle()
}

// viewerPermissionMap loads every permission row touching the viewer,
// keyed by (owner, other).
func (q queries) viewerPermissionMap(ctx context.Context, viewer types.AgentRef) (map[string]*types.DMPermission, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT owner_name, owner_scope, other_name, other_scope, permission, reason, created_at
		FROM dm_permissions
		WHERE (owner_name = ? AND owner_scope = ?) OR (other_name = ? AND other_scope = ?)`,
		viewer.Name, viewer.Scope, viewer.Name, viewer.Scope)
	if err != nil {
		return nil, mapSQLError("viewer_permissions", err)
	}
	defer rows.Close()

	out := make(map[string]*types.DMPermission)
	for rows.Next() {
		perm, err := scanDMPermission(rows)
		if err != nil {
			return nil, mapSQLError("viewer_permissions", err)
		}
		out[permKey(perm.Owner, perm.Other)] = perm
	}
	return out, rows.Err()
}

// viewerDMChannels returns the set of DM channel handles the viewer
// participates in.
func (q queries) viewerDMChannels(ctx context.Context, viewer types.AgentRef) (map[string]bool, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.handle FROM channels c
		JOIN channel_members cm ON cm.channel = c.handle
		WHERE c.channel_type = ? AND cm.agent_name = ? AND cm.agent_scope = ?`,
		types.TypeDirect, viewer.Name, viewer.Scope)
	if err != nil {
		return nil, mapSQLError("viewer_dm_channels", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err != nil {
			return nil, mapSQLError("viewer_dm_channels", err)
		}
		out[handle] = true
	}
	return out, rows.Err()
}
