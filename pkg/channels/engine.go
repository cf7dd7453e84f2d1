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

// Package channels owns channel lifecycle and membership: creation,
// archival, self-join on open channels, invitation on members channels,
// leaving, default-channel application, and the availability listing.
package channels

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// Engine enforces the channel access rules on top of the store.
type Engine struct {
	store  *store.Store
	logger *zap.Logger
	tracer observability.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer attaches a tracer to engine operations.
func WithTracer(tracer observability.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// New creates a channel engine.
func New(st *store.Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  st,
		logger: logger,
		tracer: observability.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateParams describes a channel to create.
type CreateParams struct {
	Name string
	// Scope is types.ScopeGlobal or a project id.
	Scope       string
	Access      types.AccessType
	Description string
	Creator     types.AgentRef
	IsDefault   bool
}

// Create makes a new channel. For members and private channels the
// creator becomes the first member with manage rights. Creation is
// idempotent: an existing channel with the same handle is returned
// unchanged.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*types.Channel, error) {
	ctx, span := e.tracer.StartSpan(ctx, "channels.create")
	defer e.tracer.EndSpan(span)

	if !types.ValidChannelName(p.Name) {
		return nil, wefterr.New(wefterr.KindInvalidInput,
			"invalid channel name %q: must match [a-z0-9-]+", p.Name)
	}
	if p.Access == "" {
		p.Access = types.AccessOpen
	}
	switch p.Access {
	case types.AccessOpen, types.AccessMembers, types.AccessPrivate:
	default:
		return nil, wefterr.New(wefterr.KindInvalidInput, "invalid access type %q", p.Access)
	}

	var handle string
	switch {
	case p.Scope == "" || p.Scope == types.ScopeGlobal:
		p.Scope = types.ScopeGlobal
		handle = types.GlobalHandle(p.Name)
	case types.IsProjectID(p.Scope):
		if _, err := e.store.GetProject(ctx, p.Scope); err != nil {
			return nil, err
		}
		handle = types.ProjectHandle(p.Scope, p.Name)
	default:
		return nil, wefterr.New(wefterr.KindInvalidInput, "invalid channel scope %q", p.Scope)
	}

	ch := &types.Channel{
		Handle:      handle,
		Type:        types.TypeChannel,
		Access:      p.Access,
		Scope:       p.Scope,
		Name:        p.Name,
		Description: p.Description,
		IsDefault:   p.IsDefault,
		CreatedBy:   p.Creator.Handle(),
		CreatedAt:   time.Now(),
	}

	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateChannel(ctx, ch); err != nil {
			return err
		}
		if p.Access == types.AccessOpen {
			return nil
		}
		// Closed-membership channels start with their creator as manager.
		_, err := tx.AddMember(ctx, &types.Membership{
			Channel:    handle,
			AgentName:  p.Creator.Name,
			AgentScope: p.Creator.Scope,
			InvitedBy:  types.InvitedBySelf,
			Source:     types.SourceManual,
			CanLeave:   true,
			CanSend:    true,
			CanInvite:  p.Access == types.AccessMembers,
			CanManage:  true,
		})
		return err
	})
	if err != nil {
		if wefterr.IsKind(err, wefterr.KindAlreadyExists) {
			existing, getErr := e.store.GetChannel(ctx, handle)
			if getErr != nil {
				return nil, getErr
			}
			return existing, nil
		}
		return nil, err
	}

	e.logger.Info("channel created",
		zap.String("handle", handle),
		zap.String("access", string(p.Access)),
		zap.String("creator", p.Creator.Handle()))
	return ch, nil
}

// Archive marks a channel read-only. Only the creator or a member with
// manage rights may archive; DM and notes channels never archive.
func (e *Engine) Archive(ctx context.Context, handle string, actor types.AgentRef) error {
	ctx, span := e.tracer.StartSpan(ctx, "channels.archive")
	defer e.tracer.EndSpan(span)

	if types.IsDMHandle(handle) || types.IsNotesHandle(handle) {
		return wefterr.New(wefterr.KindInvalidInput, "cannot archive %s", handle)
	}
	ch, err := e.store.GetChannel(ctx, handle)
	if err != nil {
		return err
	}
	if ch.Archived {
		return nil
	}

	if ch.CreatedBy != actor.Handle() {
		m, err := e.store.GetMembership(ctx, handle, actor)
		if err != nil || !m.CanManage {
			return wefterr.New(wefterr.KindPermissionDenied,
				"%s may not archive %s", actor.Handle(), handle)
		}
	}
	return e.store.SetChannelArchived(ctx, handle, true)
}

// Join adds the agent to an open channel it is scope-eligible for.
// Joining a channel you already belong to succeeds without change.
func (e *Engine) Join(ctx context.Context, agent types.AgentRef, handle string) error {
	ctx, span := e.tracer.StartSpan(ctx, "channels.join")
	defer e.tracer.EndSpan(span)

	return e.store.InTx(ctx, func(tx *store.Tx) error {
		ch, err := tx.GetChannel(ctx, handle)
		if err != nil {
			return err
		}
		if ch.Archived {
			return wefterr.New(wefterr.KindPermissionDenied, "channel %s is archived", handle)
		}
		if ch.Access != types.AccessOpen {
			return wefterr.New(wefterr.KindPermissionDenied,
				"channel %s is not open for self-join", handle)
		}
		ok, err := scopeEligible(ctx, tx, agent, ch)
		if err != nil {
			return err
		}
		if !ok {
			return wefterr.New(wefterr.KindScopeDenied,
				"%s is outside the scope of %s", agent.Handle(), handle)
		}

		_, err = tx.AddMember(ctx, &types.Membership{
			Channel:    handle,
			AgentName:  agent.Name,
			AgentScope: agent.Scope,
			InvitedBy:  types.InvitedBySelf,
			Source:     types.SourceManual,
			CanLeave:   true,
			CanSend:    true,
			CanInvite:  true,
		})
		return err
	})
}

// scopeEligible implements the self-join reachability rule: global
// channels take everyone; project channels take their own project's
// agents, agents of linked projects, and global agents.
func scopeEligible(ctx context.Context, tx *store.Tx, agent types.AgentRef, ch *types.Channel) (bool, error) {
	if ch.Scope == types.ScopeGlobal {
		return true, nil
	}
	if agent.IsGlobal() {
		return true, nil
	}
	if agent.Scope == ch.Scope {
		return true, nil
	}
	return tx.Linked(ctx, agent.Scope, ch.Scope)
}

// Invite adds invitee to a members channel. The inviter must hold
// can_invite. Invitees may come from any scope: invitation is the
// sanctioned cross-project access path. Inviting an existing member
// succeeds without change.
func (e *Engine) Invite(ctx context.Context, handle string, invitee, inviter types.AgentRef) error {
	ctx, span := e.tracer.StartSpan(ctx, "channels.invite")
	defer e.tracer.EndSpan(span)

	return e.store.InTx(ctx, func(tx *store.Tx) error {
		ch, err := tx.GetChannel(ctx, handle)
		if err != nil {
			return err
		}
		if ch.Archived {
			return wefterr.New(wefterr.KindPermissionDenied, "channel %s is archived", handle)
		}
		switch ch.Access {
		case types.AccessOpen:
			return wefterr.New(wefterr.KindPermissionDenied,
				"channel %s is open: agents join it themselves", handle)
		case types.AccessPrivate:
			return wefterr.New(wefterr.KindPermissionDenied,
				"channel %s has fixed membership", handle)
		}

		inviterM, err := tx.GetMembership(ctx, handle, inviter)
		if err != nil {
			return wefterr.New(wefterr.KindPermissionDenied,
				"%s is not a member of %s", inviter.Handle(), handle)
		}
		if !inviterM.CanInvite {
			return wefterr.New(wefterr.KindPermissionDenied,
				"%s may not invite to %s", inviter.Handle(), handle)
		}
		if _, err := tx.GetAgent(ctx, invitee); err != nil {
			return err
		}

		_, err = tx.AddMember(ctx, &types.Membership{
			Channel:    handle,
			AgentName:  invitee.Name,
			AgentScope: invitee.Scope,
			InvitedBy:  inviter.Handle(),
			Source:     types.SourceManual,
			CanLeave:   true,
			CanSend:    true,
			CanInvite:  true,
		})
		return err
	})
}

// Leave removes the agent's membership. Members whose can_leave bit is
// off (DM participants, notes owners) are refused.
func (e *Engine) Leave(ctx context.Context, agent types.AgentRef, handle string) error {
	ctx, span := e.tracer.StartSpan(ctx, "channels.leave")
	defer e.tracer.EndSpan(span)

	return e.store.InTx(ctx, func(tx *store.Tx) error {
		m, err := tx.GetMembership(ctx, handle, agent)
		if err != nil {
			return err
		}
		if !m.CanLeave {
			return wefterr.New(wefterr.KindPermissionDenied,
				"%s cannot leave %s", agent.Handle(), handle)
		}
		_, err = tx.RemoveMember(ctx, handle, agent)
		return err
	})
}

// DefaultsResult reports what ApplyDefaults did.
type DefaultsResult struct {
	Joined  []string
	Skipped []string
}

// ApplyDefaults joins the agent to every non-archived default channel in
// the global scope and the agent's own scope, except those excluded.
// Each channel commits separately so one failure cannot wedge the rest.
func (e *Engine) ApplyDefaults(ctx context.Context, agent types.AgentRef, exclude []string) (*DefaultsResult, error) {
	ctx, span := e.tracer.StartSpan(ctx, "channels.apply_defaults")
	defer e.tracer.EndSpan(span)

	scopes := []string{types.ScopeGlobal}
	if !agent.IsGlobal() {
		scopes = append(scopes, agent.Scope)
	}
	defaults, err := e.store.ListChannels(ctx, store.ChannelFilter{
		Scopes:      scopes,
		DefaultOnly: true,
	})
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(exclude))
	for _, x := range exclude {
		excluded[x] = true
	}

	result := &DefaultsResult{}
	for i := range defaults {
		ch := defaults[i]
		if excluded[ch.Handle] || excluded[ch.Name] {
			result.Skipped = append(result.Skipped, ch.Handle)
			continue
		}

		invitedBy := types.InvitedBySystem
		if ch.Access == types.AccessOpen {
			invitedBy = types.InvitedBySelf
		}
		added, err := e.store.AddMember(ctx, &types.Membership{
			Channel:       ch.Handle,
			AgentName:     agent.Name,
			AgentScope:    agent.Scope,
			InvitedBy:     invitedBy,
			Source:        types.SourceDefault,
			CanLeave:      true,
			CanSend:       true,
			CanInvite:     ch.Access != types.AccessPrivate,
			IsFromDefault: true,
		})
		if err != nil {
			// Partial application is safe: later registration retries.
			e.logger.Warn("default channel application failed",
				zap.String("channel", ch.Handle),
				zap.String("agent", agent.Handle()),
				zap.Error(err))
			continue
		}
		if added {
			result.Joined = append(result.Joined, ch.Handle)
		} else {
			result.Skipped = append(result.Skipped, ch.Handle)
		}
	}
	return result, nil
}

// EnsureNotes returns the agent's private notebook channel, creating it
// with its sole non-leavable membership on first use.
func (e *Engine) EnsureNotes(ctx context.Context, agent types.AgentRef) (*types.Channel, error) {
	ctx, span := e.tracer.StartSpan(ctx, "channels.ensure_notes")
	defer e.tracer.EndSpan(span)

	handle := types.NotesHandleFor(agent)
	if ch, err := e.store.GetChannel(ctx, handle); err == nil {
		return ch, nil
	} else if !wefterr.IsKind(err, wefterr.KindNotFound) {
		return nil, err
	}

	scope := types.ScopeGlobal
	if !agent.IsGlobal() {
		scope = agent.Scope
	}
	ch := &types.Channel{
		Handle:      handle,
		Type:        types.TypeChannel,
		Access:      types.AccessPrivate,
		Scope:       scope,
		Name:        "notes",
		Description: "Private notebook of " + agent.Handle(),
		CreatedBy:   agent.Handle(),
		CreatedAt:   time.Now(),
	}
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateChannel(ctx, ch); err != nil {
			return err
		}
		_, err := tx.AddMember(ctx, &types.Membership{
			Channel:    handle,
			AgentName:  agent.Name,
			AgentScope: agent.Scope,
			InvitedBy:  types.InvitedBySystem,
			Source:     types.SourceSystem,
			CanLeave:   false,
			CanSend:    true,
			CanManage:  true,
		})
		return err
	})
	if err != nil {
		if wefterr.IsKind(err, wefterr.KindAlreadyExists) {
			return e.store.GetChannel(ctx, handle)
		}
		return nil, err
	}
	return ch, nil
}

// AvailableChannel is one row of the availability listing.
type AvailableChannel struct {
	Channel  types.Channel
	IsMember bool
	CanJoin  bool
	// AccessReason explains the visibility: member, same_project,
	// linked_project, or global.
	AccessReason string
}

// ListAvailable returns every channel visible to the agent: all channels
// it belongs to, plus joinable-or-visible channels in reachable scopes.
// Private channels and DM surfaces appear only through membership.
func (e *Engine) ListAvailable(ctx context.Context, agent types.AgentRef) ([]AvailableChannel, error) {
	ctx, span := e.tracer.StartSpan(ctx, "channels.list_available")
	defer e.tracer.EndSpan(span)

	member, err := e.store.AgentChannels(ctx, agent)
	if err != nil {
		return nil, err
	}
	memberOf := make(map[string]bool, len(member))
	var out []AvailableChannel
	for _, mc := range member {
		memberOf[mc.Channel.Handle] = true
		out = append(out, AvailableChannel{
			Channel:      mc.Channel,
			IsMember:     true,
			AccessReason: "member",
		})
	}

	scopes := []string{types.ScopeGlobal}
	var linked map[string]bool
	if !agent.IsGlobal() {
		ids, err := e.store.LinkedProjects(ctx, agent.Scope)
		if err != nil {
			return nil, err
		}
		linked = make(map[string]bool, len(ids))
		for _, id := range ids {
			linked[id] = true
			scopes = append(scopes, id)
		}
		scopes = append(scopes, agent.Scope)
	} else {
		// Global agents may self-join any open channel, so they see all
		// scopes.
		projects, err := e.store.ListProjects(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			scopes = append(scopes, p.ID)
		}
	}

	visible, err := e.store.ListChannels(ctx, store.ChannelFilter{
		Scopes: scopes,
		Types:  []types.ChannelType{types.TypeChannel},
	})
	if err != nil {
		return nil, err
	}
	for i := range visible {
		ch := visible[i]
		if memberOf[ch.Handle] {
			continue
		}
		if ch.Access == types.AccessPrivate || types.IsNotesHandle(ch.Handle) {
			continue
		}
		reason := "global"
		switch {
		case ch.Scope == agent.Scope && ch.Scope != types.ScopeGlobal:
			reason = "same_project"
		case linked[ch.Scope]:
			reason = "linked_project"
		}
		out = append(out, AvailableChannel{
			Channel:      ch,
			CanJoin:      ch.Access == types.AccessOpen && !ch.Archived,
			AccessReason: reason,
		})
	}
	return out, nil
}

// Get loads a channel with a membership-based visibility check: private
// channels are only returned to their members.
func (e *Engine) Get(ctx context.Context, handle string, viewer types.AgentRef) (*types.Channel, error) {
	ch, err := e.store.GetChannel(ctx, handle)
	if err != nil {
		return nil, err
	}
	if ch.Access == types.AccessPrivate {
		isMember, err := e.store.IsMember(ctx, handle, viewer)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, wefterr.New(wefterr.KindNotFound, "channel %s not found", handle)
		}
	}
	return ch, nil
}

// Members returns the membership roster, visible to members only.
func (e *Engine) Members(ctx context.Context, handle string, viewer types.AgentRef) ([]types.Membership, error) {
	if _, err := e.store.GetChannel(ctx, handle); err != nil {
		return nil, err
	}
	isMember, err := e.store.IsMember(ctx, handle, viewer)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, wefterr.New(wefterr.KindPermissionDenied,
			"%s is not a member of %s", viewer.Handle(), handle)
	}
	return e.store.ListMembers(ctx, handle)
}
