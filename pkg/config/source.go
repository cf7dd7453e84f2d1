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

package config

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/channels"
	"github.com/teradata-labs/weft/pkg/reconcile"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
)

// Source turns the config's declarative agent sections into reconcile
// descriptors. Every agent already in the roster gets its scope's
// default subscriptions; agents declared under agents: additionally get
// their own subscriptions, patterns, and profile fields.
type Source struct {
	cfg   *Config
	store *store.Store
}

// NewSource creates a descriptor source over the loaded config.
func NewSource(cfg *Config, st *store.Store) *Source {
	return &Source{cfg: cfg, store: st}
}

// Name identifies the source in sync history.
func (s *Source) Name() string { return "config" }

// Descriptors yields one descriptor per agent, merging roster agents
// with the config's declared agents.
func (s *Source) Descriptors(ctx context.Context) ([]reconcile.Descriptor, error) {
	agents, err := s.store.ListAgents(ctx, "")
	if err != nil {
		return nil, err
	}

	var order []types.AgentRef
	byRef := make(map[types.AgentRef]*reconcile.Descriptor)
	ensure := func(ref types.AgentRef) *reconcile.Descriptor {
		if d, ok := byRef[ref]; ok {
			return d
		}
		d := &reconcile.Descriptor{
			Agent:         ref,
			Subscriptions: append([]string(nil), s.scopeDefaults(ref)...),
		}
		byRef[ref] = d
		order = append(order, ref)
		return d
	}

	for _, a := range agents {
		ensure(a.Ref())
	}

	for _, seed := range s.cfg.Agents {
		ref, err := s.seedRef(ctx, seed)
		if err != nil {
			return nil, fmt.Errorf("agent seed %q: %w", seed.Name, err)
		}
		d := ensure(ref)
		if seed.Description != "" {
			d.Description = seed.Description
		}
		if seed.DMPolicy != "" {
			d.DMPolicy = types.DMPolicy(seed.DMPolicy)
		}
		if seed.Discoverability != "" {
			d.Discoverability = types.Discoverability(seed.Discoverability)
		}
		d.Subscriptions = append(d.Subscriptions, seed.Subscriptions...)
		d.AutoSubscribePatterns = append(d.AutoSubscribePatterns, seed.AutoSubscribePatterns...)
	}

	out := make([]reconcile.Descriptor, 0, len(order))
	for _, ref := range order {
		out = append(out, *byRef[ref])
	}
	return out, nil
}

// scopeDefaults returns the default subscriptions for the agent's scope
// kind. Bare names resolve against the agent's own scope downstream.
func (s *Source) scopeDefaults(ref types.AgentRef) []string {
	if ref.IsGlobal() {
		return s.cfg.DefaultAgentSubscriptions.Global
	}
	return s.cfg.DefaultAgentSubscriptions.Project
}

// seedRef resolves a declared agent's scope. Paths register the project
// on the fly so agents can be declared before their project first runs.
func (s *Source) seedRef(ctx context.Context, seed AgentSeed) (types.AgentRef, error) {
	ref := types.AgentRef{Name: seed.Name, Scope: types.ScopeGlobal}
	switch {
	case seed.Project == "" || seed.Project == types.ScopeGlobal:
	case types.IsProjectID(seed.Project):
		if _, err := s.store.GetProject(ctx, seed.Project); err != nil {
			return types.AgentRef{}, err
		}
		ref.Scope = seed.Project
	default:
		project, err := s.store.RegisterProject(ctx, seed.Project)
		if err != nil {
			return types.AgentRef{}, err
		}
		ref.Scope = project.ID
	}
	return ref, nil
}

// SeedChannels creates the configured default channels for one scope.
// Existing channels are left as they are. Returns the seeded handles.
func SeedChannels(ctx context.Context, cfg *Config, eng *channels.Engine, scope string) ([]string, error) {
	seeds := cfg.DefaultChannels.Project
	if scope == "" || scope == types.ScopeGlobal {
		scope = types.ScopeGlobal
		seeds = cfg.DefaultChannels.Global
	}

	handles := make([]string, 0, len(seeds))
	for _, seed := range seeds {
		ch, err := eng.Create(ctx, channels.CreateParams{
			Name:        seed.Name,
			Scope:       scope,
			Access:      types.AccessOpen,
			Description: seed.Description,
			Creator:     types.AgentRef{Name: types.InvitedBySystem},
			IsDefault:   true,
		})
		if err != nil {
			return handles, fmt.Errorf("seed channel %q in %s: %w", seed.Name, scope, err)
		}
		handles = append(handles, ch.Handle)
	}
	return handles, nil
}

// ApplyProjectLinks converges the declared project links into the
// store: enabled links are created or refreshed, disabled links are
// removed. Individual link failures are logged, not fatal. Returns how
// many links changed or were confirmed.
func ApplyProjectLinks(ctx context.Context, cfg *Config, st *store.Store, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	applied := 0
	for i, link := range cfg.ProjectLinks {
		source, err := resolveLinkEnd(ctx, st, link.Source)
		if err != nil {
			logger.Warn("project link skipped",
				zap.Int("index", i),
				zap.String("source", link.Source),
				zap.Error(err))
			continue
		}
		target, err := resolveLinkEnd(ctx, st, link.Target)
		if err != nil {
			logger.Warn("project link skipped",
				zap.Int("index", i),
				zap.String("target", link.Target),
				zap.Error(err))
			continue
		}

		if !link.IsEnabled() {
			removed, err := st.UnlinkProjects(ctx, source, target)
			if err != nil {
				logger.Warn("project unlink failed",
					zap.String("source", source),
					zap.String("target", target),
					zap.Error(err))
				continue
			}
			if removed {
				logger.Info("project link removed",
					zap.String("source", source),
					zap.String("target", target))
				applied++
			}
			continue
		}

		if err := st.LinkProjects(ctx, source, target, types.ProjectLinkType(link.Type)); err != nil {
			logger.Warn("project link failed",
				zap.String("source", source),
				zap.String("target", target),
				zap.Error(err))
			continue
		}
		applied++
	}
	return applied, nil
}

// resolveLinkEnd resolves a link endpoint, registering paths so links
// can be declared before either project has run a session.
func resolveLinkEnd(ctx context.Context, st *store.Store, end string) (string, error) {
	if end == "" {
		return "", fmt.Errorf("empty project reference")
	}
	if types.IsProjectID(end) {
		return end, nil
	}
	project, err := st.RegisterProject(ctx, end)
	if err != nil {
		return "", err
	}
	return project.ID, nil
}
