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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/types"
)

func seedAgent(t *testing.T, s *Store, name string, policy types.DMPolicy, disc types.Discoverability) types.AgentRef {
	t.Helper()
	require.NoError(t, s.UpsertAgent(context.Background(), &types.Agent{
		Name:            name,
		DMPolicy:        policy,
		Discoverability: disc,
	}))
	return types.AgentRef{Name: name, Scope: types.ScopeGlobal}
}

func TestAgentChannelsShowsOnlyMemberships(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := types.AgentRef{Name: "alice", Scope: types.ScopeGlobal}

	seedChannel(t, s, "global:dev", types.AccessOpen)
	seedChannel(t, s, "global:ops", types.AccessOpen)
	seedMember(t, s, "global:dev", alice)

	got, err := s.AgentChannels(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "global:dev", got[0].Channel.Handle)
	assert.True(t, got[0].Membership.CanSend)

	// A non-member sees nothing through this view.
	none, err := s.AgentChannels(ctx, types.AgentRef{Name: "ghost", Scope: types.ScopeGlobal})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCanDMPolicyMatrix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedAgent(t, s, "alice", types.DMOpen, types.DiscoverPublic)
	bob := seedAgent(t, s, "bob", types.DMRestricted, types.DiscoverPublic)
	carol := seedAgent(t, s, "carol", types.DMClosed, types.DiscoverPublic)

	// open <-> open passes both gates.
	dave := seedAgent(t, s, "dave", types.DMOpen, types.DiscoverPublic)
	d, err := s.CanDM(ctx, alice, dave)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Self-DM is refused.
	d, err = s.CanDM(ctx, alice, alice)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, DMReasonSelf, d.Reason)

	// restricted without an allow requires permission.
	d, err = s.CanDM(ctx, alice, bob)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, DMReasonRequires, d.Reason)

	// The allow is asymmetric and held by the receiver.
	require.NoError(t, s.SetDMPermission(ctx, &types.DMPermission{
		Owner: bob, Other: alice, Permission: types.PermissionAllow, Reason: "pairing",
	}))
	d, err = s.CanDM(ctx, alice, bob)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// closed refuses everyone.
	d, err = s.CanDM(ctx, alice, carol)
	require.NoError(t, err)
	assert.Equal(t, DMReasonClosed, d.Reason)

	// A block from either side wins over allows and policies.
	require.NoError(t, s.SetDMPermission(ctx, &types.DMPermission{
		Owner: bob, Other: alice, Permission: types.PermissionBlock, Reason: "noise",
	}))
	d, err = s.CanDM(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, DMReasonBlocked, d.Reason)
	d, err = s.CanDM(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, DMReasonBlocked, d.Reason, "blocks are symmetric")

	// Removing the block restores the restricted gate.
	removed, err := s.RemoveDMPermission(ctx, bob, alice)
	require.NoError(t, err)
	assert.True(t, removed)
	d, err = s.CanDM(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, DMReasonRequires, d.Reason)
}

func TestCanDMChecksBothDirections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The sender's own restricted gate applies too: a DM channel is
	// symmetric, so bob must be allowed to message back.
	bob := seedAgent(t, s, "bob", types.DMRestricted, types.DiscoverPublic)
	erin := seedAgent(t, s, "erin", types.DMOpen, types.DiscoverPublic)

	d, err := s.CanDM(ctx, bob, erin)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, DMReasonRequires, d.Reason)

	require.NoError(t, s.SetDMPermission(ctx, &types.DMPermission{
		Owner: bob, Other: erin, Permission: types.PermissionAllow,
	}))
	d, err = s.CanDM(ctx, bob, erin)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAgentDiscoveryOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := seedAgent(t, s, "alice", types.DMOpen, types.DiscoverPublic)
	seedAgent(t, s, "zed", types.DMOpen, types.DiscoverPublic)
	seedAgent(t, s, "bob", types.DMRestricted, types.DiscoverPublic)
	seedAgent(t, s, "carol", types.DMClosed, types.DiscoverPublic)
	dave := seedAgent(t, s, "dave", types.DMOpen, types.DiscoverPublic)
	seedAgent(t, s, "mia", types.DMOpen, types.DiscoverPrivate)
	yara := seedAgent(t, s, "yara", types.DMOpen, types.DiscoverPublic)

	require.NoError(t, s.SetDMPermission(ctx, &types.DMPermission{
		Owner: dave, Other: alice, Permission: types.PermissionBlock,
	}))

	// An existing DM with yara puts her first regardless of tier order.
	dmHandle := types.DMHandleFor(alice, yara)
	require.NoError(t, s.CreateChannel(ctx, &types.Channel{
		Handle: dmHandle, Type: types.TypeDirect, Access: types.AccessPrivate, Name: "dm",
	}))
	for _, ref := range []types.AgentRef{alice, yara} {
		_, err := s.AddMember(ctx, &types.Membership{
			Channel: dmHandle, AgentName: ref.Name, AgentScope: ref.Scope,
			InvitedBy: types.InvitedBySystem, Source: types.SourceSystem,
			CanSend: true,
		})
		require.NoError(t, err)
	}

	got, err := s.AgentDiscovery(ctx, alice)
	require.NoError(t, err)

	var names []string
	for _, da := range got {
		names = append(names, da.Agent.Name)
	}
	// yara (existing DM), then available, requires_permission, blocked,
	// unavailable; ties break by name. Private mia never appears; alice
	// sees herself as unavailable.
	assert.Equal(t, []string{"yara", "zed", "bob", "dave", "alice", "carol"}, names)

	byName := make(map[string]DiscoveredAgent)
	for _, da := range got {
		byName[da.Agent.Name] = da
	}
	assert.True(t, byName["yara"].HasExistingDM)
	assert.Equal(t, DMAvailable, byName["zed"].DMAvailability)
	assert.Equal(t, DMRequiresPermission, byName["bob"].DMAvailability)
	assert.Equal(t, DMBlocked, byName["dave"].DMAvailability)
	assert.Equal(t, DMUnavailable, byName["carol"].DMAvailability)
}

func TestAgentDiscoveryProjectScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pa, err := s.RegisterProject(ctx, "/home/dev/alpha")
	require.NoError(t, err)
	pb, err := s.RegisterProject(ctx, "/home/dev/beta")
	require.NoError(t, err)
	pc, err := s.RegisterProject(ctx, "/home/dev/gamma")
	require.NoError(t, err)

	require.NoError(t, s.UpsertAgent(ctx, &types.Agent{
		Name: "viewer", Scope: pa.ID, Discoverability: types.DiscoverPublic,
	}))
	for scope, name := range map[string]string{
		pa.ID: "same-scope", pb.ID: "linked-scope", pc.ID: "stranger",
	} {
		require.NoError(t, s.UpsertAgent(ctx, &types.Agent{
			Name: name, Scope: scope, Discoverability: types.DiscoverProject,
		}))
	}
	require.NoError(t, s.LinkProjects(ctx, pa.ID, pb.ID, types.LinkBidirectional))

	got, err := s.AgentDiscovery(ctx, types.AgentRef{Name: "viewer", Scope: pa.ID})
	require.NoError(t, err)

	var names []string
	for _, da := range got {
		names = append(names, da.Agent.Name)
	}
	assert.Contains(t, names, "same-scope")
	assert.Contains(t, names, "linked-scope")
	assert.NotContains(t, names, "stranger", "project tier does not cross unlinked scopes")

	// A global viewer sees all project-tier agents.
	require.NoError(t, s.UpsertAgent(ctx, &types.Agent{Name: "root"}))
	all, err := s.AgentDiscovery(ctx, types.AgentRef{Name: "root", Scope: types.ScopeGlobal})
	require.NoError(t, err)
	names = names[:0]
	for _, da := range all {
		names = append(names, da.Agent.Name)
	}
	assert.Contains(t, names, "stranger")
}
