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

package discovery

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "weft.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, zaptest.NewLogger(t)), st
}

func register(t *testing.T, e *Engine, name string, p RegisterParams) types.AgentRef {
	t.Helper()
	p.Name = name
	agent, err := e.Register(context.Background(), p)
	require.NoError(t, err)
	return agent.Ref()
}

func TestRegisterDefaultsAndUpdates(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	agent, err := e.Register(ctx, RegisterParams{Name: "alice"})
	require.NoError(t, err)
	assert.Equal(t, types.ScopeGlobal, agent.Scope)
	assert.Equal(t, types.StatusOffline, agent.Status)
	assert.Equal(t, types.DMOpen, agent.DMPolicy)
	assert.Equal(t, types.DiscoverPublic, agent.Discoverability)

	// Re-registering with only a description keeps the policies.
	require.NoError(t, e.SetDMPolicy(ctx, agent.Ref(), types.DMRestricted))
	agent, err = e.Register(ctx, RegisterParams{Name: "alice", Description: "pipeline bot"})
	require.NoError(t, err)
	assert.Equal(t, "pipeline bot", agent.Description)
	assert.Equal(t, types.DMRestricted, agent.DMPolicy)
}

func TestRegisterValidation(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Register(ctx, RegisterParams{Name: "bad name"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))

	_, err = e.Register(ctx, RegisterParams{Name: "bot", Scope: "not-hex"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))

	_, err = e.Register(ctx, RegisterParams{Name: "bot", Scope: "0123456789abcdef0123456789abcdef"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindNotFound))

	_, err = e.Register(ctx, RegisterParams{Name: "bot", Status: "away"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))

	p, err := st.RegisterProject(ctx, "/repos/alpha")
	require.NoError(t, err)
	agent, err := e.Register(ctx, RegisterParams{Name: "bot", Scope: p.ID})
	require.NoError(t, err)
	assert.Equal(t, p.ID, agent.Scope)
}

func TestSetterValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ref := register(t, e, "alice", RegisterParams{})

	require.NoError(t, e.SetStatus(ctx, ref, types.StatusOnline))
	assert.True(t, wefterr.IsKind(e.SetStatus(ctx, ref, "idle"), wefterr.KindInvalidInput))
	require.NoError(t, e.SetDMPolicy(ctx, ref, types.DMClosed))
	assert.True(t, wefterr.IsKind(e.SetDMPolicy(ctx, ref, "ask"), wefterr.KindInvalidInput))
	require.NoError(t, e.SetDiscoverability(ctx, ref, types.DiscoverPrivate))
	assert.True(t, wefterr.IsKind(e.SetDiscoverability(ctx, ref, "hidden"), wefterr.KindInvalidInput))

	got, err := e.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOnline, got.Status)
	assert.Equal(t, types.DMClosed, got.DMPolicy)
	assert.Equal(t, types.DiscoverPrivate, got.Discoverability)
}

func TestCreateOrGetDMCanonical(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	alice := register(t, e, "alice", RegisterParams{})
	bob := register(t, e, "bob", RegisterParams{})

	ch, err := e.CreateOrGetDM(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, types.DMHandleFor(alice, bob), ch.Handle)
	assert.Equal(t, types.TypeDirect, ch.Type)
	assert.Equal(t, types.AccessPrivate, ch.Access)

	// Both participants are permanent members.
	for _, ref := range []types.AgentRef{alice, bob} {
		m, err := st.GetMembership(ctx, ch.Handle, ref)
		require.NoError(t, err)
		assert.False(t, m.CanLeave)
		assert.True(t, m.CanSend)
		assert.False(t, m.CanInvite)
	}

	// The reversed argument order resolves to the same channel.
	again, err := e.CreateOrGetDM(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, ch.Handle, again.Handle)

	members, err := st.ListMembers(ctx, ch.Handle)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestCreateOrGetDMRestrictedFlow(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	ian := register(t, e, "ian", RegisterParams{})
	helen := register(t, e, "helen", RegisterParams{DMPolicy: types.DMRestricted})

	_, err := e.CreateOrGetDM(ctx, ian, helen)
	require.True(t, wefterr.IsKind(err, wefterr.KindDMNotAllowed))
	assert.Contains(t, err.Error(), store.DMReasonRequires)

	require.NoError(t, e.Allow(ctx, helen, ian, "worked together on the migration"))

	ch, err := e.CreateOrGetDM(ctx, ian, helen)
	require.NoError(t, err)
	assert.Equal(t, types.DMHandleFor(helen, ian), ch.Handle)
}

func TestCreateOrGetDMBlocked(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	alice := register(t, e, "alice", RegisterParams{})
	mallory := register(t, e, "mallory", RegisterParams{})

	require.NoError(t, e.Block(ctx, alice, mallory, "spam"))

	// The block denies both directions.
	_, err := e.CreateOrGetDM(ctx, mallory, alice)
	assert.True(t, wefterr.IsKind(err, wefterr.KindDMNotAllowed))
	_, err = e.CreateOrGetDM(ctx, alice, mallory)
	assert.True(t, wefterr.IsKind(err, wefterr.KindDMNotAllowed))

	removed, err := e.RemovePermission(ctx, alice, mallory)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = e.CreateOrGetDM(ctx, mallory, alice)
	require.NoError(t, err)
}

func TestCreateOrGetDMSelf(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	alice := register(t, e, "alice", RegisterParams{})

	_, err := e.CreateOrGetDM(ctx, alice, alice)
	require.True(t, wefterr.IsKind(err, wefterr.KindDMNotAllowed))
	assert.Contains(t, err.Error(), store.DMReasonSelf)
}

func TestExistingDMSurvivesPolicyChange(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	alice := register(t, e, "alice", RegisterParams{})
	bob := register(t, e, "bob", RegisterParams{})

	ch, err := e.CreateOrGetDM(ctx, alice, bob)
	require.NoError(t, err)

	// Closing the policy afterwards blocks new DMs, not existing ones.
	require.NoError(t, e.SetDMPolicy(ctx, bob, types.DMClosed))
	again, err := e.CreateOrGetDM(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, ch.Handle, again.Handle)
}

func TestDiscoverFilters(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	viewer := register(t, e, "viewer", RegisterParams{})
	register(t, e, "build-bot", RegisterParams{})
	register(t, e, "deploy-bot", RegisterParams{DMPolicy: types.DMRestricted})
	blocked := register(t, e, "blocked-bot", RegisterParams{})
	require.NoError(t, e.Block(ctx, viewer, blocked, ""))

	all, err := e.Discover(ctx, viewer, DiscoverParams{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	available, err := e.Discover(ctx, viewer, DiscoverParams{
		Availability: []store.DMAvailability{store.DMAvailable},
	})
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "build-bot", available[0].Agent.Name)

	// Fuzzy matching tolerates partial input.
	deploy, err := e.Discover(ctx, viewer, DiscoverParams{NameFilter: "depbot"})
	require.NoError(t, err)
	require.NotEmpty(t, deploy)
	assert.Equal(t, "deploy-bot", deploy[0].Agent.Name)

	limited, err := e.Discover(ctx, viewer, DiscoverParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestVisibleMatchesDiscovery(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	viewer := register(t, e, "viewer", RegisterParams{})
	public := register(t, e, "public-bot", RegisterParams{})
	hidden := register(t, e, "hidden-bot", RegisterParams{Discoverability: types.DiscoverPrivate})

	visible, err := e.Visible(ctx, viewer, public)
	require.NoError(t, err)
	assert.True(t, visible)

	visible, err = e.Visible(ctx, viewer, hidden)
	require.NoError(t, err)
	assert.False(t, visible)

	// Unknown agents are simply not visible.
	visible, err = e.Visible(ctx, viewer, types.AgentRef{Name: "ghost", Scope: types.ScopeGlobal})
	require.NoError(t, err)
	assert.False(t, visible)
}

func TestPermissionsListing(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	alice := register(t, e, "alice", RegisterParams{})
	bob := register(t, e, "bob", RegisterParams{})
	carol := register(t, e, "carol", RegisterParams{})

	require.NoError(t, e.Allow(ctx, alice, bob, "teammate"))
	require.NoError(t, e.Block(ctx, alice, carol, ""))

	// Permissions against unknown agents are rejected.
	err := e.Allow(ctx, alice, types.AgentRef{Name: "ghost", Scope: types.ScopeGlobal}, "")
	assert.True(t, wefterr.IsKind(err, wefterr.KindNotFound))

	perms, err := e.Permissions(ctx, alice)
	require.NoError(t, err)
	require.Len(t, perms, 2)
}
