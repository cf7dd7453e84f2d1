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

// Package discovery owns agent registration, presence, the DM policy
// surface, and the discovery listing that tells an agent who else is on
// the workstation and whether it can talk to them.
package discovery

import (
	"context"
	"strings"

	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// Engine enforces the agent and DM rules on top of the store.
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

// New creates a discovery engine.
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

// RegisterParams describes an agent to register or update. Zero-valued
// policy fields keep their stored (or default) values.
type RegisterParams struct {
	Name            string
	Scope           string
	Description     string
	Status          types.AgentStatus
	DMPolicy        types.DMPolicy
	Discoverability types.Discoverability
	Metadata        map[string]interface{}
}

// Register upserts an agent. Project-scoped agents require the project
// to exist first.
func (e *Engine) Register(ctx context.Context, p RegisterParams) (*types.Agent, error) {
	ctx, span := e.tracer.StartSpan(ctx, "discovery.register")
	defer e.tracer.EndSpan(span)

	scope := p.Scope
	if scope == "" {
		scope = types.ScopeGlobal
	}
	if scope != types.ScopeGlobal {
		if !types.IsProjectID(scope) {
			return nil, wefterr.New(wefterr.KindInvalidInput, "invalid agent scope %q", scope)
		}
		if _, err := e.store.GetProject(ctx, scope); err != nil {
			return nil, err
		}
	}
	if p.Status != "" {
		if err := validStatus(p.Status); err != nil {
			return nil, err
		}
	}
	if p.DMPolicy != "" {
		if err := validPolicy(p.DMPolicy); err != nil {
			return nil, err
		}
	}
	if p.Discoverability != "" {
		if err := validDiscoverability(p.Discoverability); err != nil {
			return nil, err
		}
	}

	agent := &types.Agent{
		Name:            p.Name,
		Scope:           scope,
		Description:     p.Description,
		Status:          p.Status,
		DMPolicy:        p.DMPolicy,
		Discoverability: p.Discoverability,
		Metadata:        p.Metadata,
	}
	if err := e.store.UpsertAgent(ctx, agent); err != nil {
		return nil, err
	}
	e.logger.Info("agent registered",
		zap.String("agent", agent.Ref().Handle()),
		zap.String("status", string(agent.Status)))
	return e.store.GetAgent(ctx, agent.Ref())
}

// Get loads one agent.
func (e *Engine) Get(ctx context.Context, ref types.AgentRef) (*types.Agent, error) {
	return e.store.GetAgent(ctx, ref)
}

// List returns agents, optionally restricted to one scope.
func (e *Engine) List(ctx context.Context, scope string) ([]types.Agent, error) {
	return e.store.ListAgents(ctx, scope)
}

// SetStatus updates the agent's presence.
func (e *Engine) SetStatus(ctx context.Context, ref types.AgentRef, status types.AgentStatus) error {
	if err := validStatus(status); err != nil {
		return err
	}
	return e.store.SetAgentStatus(ctx, ref, status)
}

// SetDMPolicy updates the agent's DM gate.
func (e *Engine) SetDMPolicy(ctx context.Context, ref types.AgentRef, policy types.DMPolicy) error {
	if err := validPolicy(policy); err != nil {
		return err
	}
	return e.store.SetDMPolicy(ctx, ref, policy)
}

// SetDiscoverability updates who can see the agent in discovery.
func (e *Engine) SetDiscoverability(ctx context.Context, ref types.AgentRef, d types.Discoverability) error {
	if err := validDiscoverability(d); err != nil {
		return err
	}
	return e.store.SetDiscoverability(ctx, ref, d)
}

func validStatus(s types.AgentStatus) error {
	switch s {
	case types.StatusOnline, types.StatusBusy, types.StatusOffline:
		return nil
	}
	return wefterr.New(wefterr.KindInvalidInput, "invalid status %q", s)
}

func validPolicy(p types.DMPolicy) error {
	switch p {
	case types.DMOpen, types.DMRestricted, types.DMClosed:
		return nil
	}
	return wefterr.New(wefterr.KindInvalidInput, "invalid dm policy %q", p)
}

func validDiscoverability(d types.Discoverability) error {
	switch d {
	case types.DiscoverPublic, types.DiscoverProject, types.DiscoverPrivate:
		return nil
	}
	return wefterr.New(wefterr.KindInvalidInput, "invalid discoverability %q", d)
}

// DiscoverParams narrows the discovery listing.
type DiscoverParams struct {
	// NameFilter fuzzy-matches agent handles. With a filter the result
	// is ordered by match quality instead of the default ordering.
	NameFilter string
	// Availability keeps only the listed DM tiers when non-empty.
	Availability []store.DMAvailability
	Limit        int
}

// Discover lists the agents visible to the viewer with DM availability,
// default-ordered: existing DM partners first, then by availability
// tier, then by name.
func (e *Engine) Discover(ctx context.Context, viewer types.AgentRef, p DiscoverParams) ([]store.DiscoveredAgent, error) {
	ctx, span := e.tracer.StartSpan(ctx, "discovery.discover")
	defer e.tracer.EndSpan(span)

	agents, err := e.store.AgentDiscovery(ctx, viewer)
	if err != nil {
		return nil, err
	}

	if len(p.Availability) > 0 {
		keep := make(map[store.DMAvailability]bool, len(p.Availability))
		for _, a := range p.Availability {
			keep[a] = true
		}
		filtered := agents[:0]
		for _, a := range agents {
			if keep[a.DMAvailability] {
				filtered = append(filtered, a)
			}
		}
		agents = filtered
	}

	if f := strings.TrimSpace(p.NameFilter); f != "" {
		targets := make([]string, len(agents))
		for i, a := range agents {
			targets[i] = a.Agent.Ref().Handle()
		}
		ranked := fuzzy.Find(f, targets)
		matched := make([]store.DiscoveredAgent, 0, len(ranked))
		for _, m := range ranked {
			matched = append(matched, agents[m.Index])
		}
		agents = matched
	}

	if p.Limit > 0 && len(agents) > p.Limit {
		agents = agents[:p.Limit]
	}
	return agents, nil
}

// Visible reports whether target appears in the viewer's discovery
// listing. It reads the same view Discover does, so visibility here
// can never diverge from what the roster shows.
func (e *Engine) Visible(ctx context.Context, viewer, target types.AgentRef) (bool, error) {
	agents, err := e.store.AgentDiscovery(ctx, viewer)
	if err != nil {
		return false, err
	}
	for _, a := range agents {
		if a.Agent.Ref() == target {
			return true, nil
		}
	}
	return false, nil
}

// CanDM evaluates the DM gate for one ordered pair without creating
// anything.
func (e *Engine) CanDM(ctx context.Context, sender, receiver types.AgentRef) (store.DMDecision, error) {
	return e.store.CanDM(ctx, sender, receiver)
}

// CreateOrGetDM returns the canonical DM channel between two agents,
// creating it if the policy gate passes. Both argument orders map to
// the same channel, and both members are permanent: can_leave is off.
func (e *Engine) CreateOrGetDM(ctx context.Context, a, b types.AgentRef) (*types.Channel, error) {
	ctx, span := e.tracer.StartSpan(ctx, "discovery.create_or_get_dm")
	defer e.tracer.EndSpan(span)

	handle := types.DMHandleFor(a, b)
	var ch *types.Channel
	var created bool
	err := wefterr.Retry(ctx, func() error {
		created = false
		return e.store.InTx(ctx, func(tx *store.Tx) error {
			existing, err := tx.GetChannel(ctx, handle)
			if err == nil {
				ch = existing
				return nil
			}
			if !wefterr.IsKind(err, wefterr.KindNotFound) {
				return err
			}

			decision, err := tx.CanDM(ctx, a, b)
			if err != nil {
				return err
			}
			if !decision.Allowed {
				return wefterr.New(wefterr.KindDMNotAllowed, "dm %s -> %s denied: %s",
					a.Handle(), b.Handle(), decision.Reason)
			}

			ch = &types.Channel{
				Handle:    handle,
				Type:      types.TypeDirect,
				Access:    types.AccessPrivate,
				CreatedBy: a.Handle(),
			}
			if err := tx.CreateChannel(ctx, ch); err != nil {
				return err
			}
			for _, ref := range []types.AgentRef{a, b} {
				if _, err := tx.AddMember(ctx, &types.Membership{
					Channel:    handle,
					AgentName:  ref.Name,
					AgentScope: ref.Scope,
					InvitedBy:  types.InvitedBySystem,
					Source:     types.SourceSystem,
					CanLeave:   false,
					CanSend:    true,
				}); err != nil {
					return err
				}
			}
			created = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if created {
		e.logger.Info("dm channel created", zap.String("handle", handle))
	}
	return ch, nil
}

// Allow grants other an explicit DM allow from owner.
func (e *Engine) Allow(ctx context.Context, owner, other types.AgentRef, reason string) error {
	return e.setPermission(ctx, owner, other, types.PermissionAllow, reason)
}

// Block denies DMs between owner and other in both directions.
func (e *Engine) Block(ctx context.Context, owner, other types.AgentRef, reason string) error {
	return e.setPermission(ctx, owner, other, types.PermissionBlock, reason)
}

func (e *Engine) setPermission(ctx context.Context, owner, other types.AgentRef, kind types.PermissionKind, reason string) error {
	ctx, span := e.tracer.StartSpan(ctx, "discovery.set_dm_permission")
	defer e.tracer.EndSpan(span)

	if _, err := e.store.GetAgent(ctx, other); err != nil {
		return err
	}
	return e.store.SetDMPermission(ctx, &types.DMPermission{
		Owner:      owner,
		Other:      other,
		Permission: kind,
		Reason:     reason,
	})
}

// RemovePermission clears owner's explicit allow or block for other,
// restoring the plain policy outcome.
func (e *Engine) RemovePermission(ctx context.Context, owner, other types.AgentRef) (bool, error) {
	return e.store.RemoveDMPermission(ctx, owner, other)
}

// Permissions lists the explicit allows and blocks owner holds.
func (e *Engine) Permissions(ctx context.Context, owner types.AgentRef) ([]types.DMPermission, error) {
	return e.store.ListDMPermissions(ctx, owner)
}
