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

package reconcile

import (
	"path"
	"sort"

	"github.com/teradata-labs/weft/pkg/types"
)

// ActionKind names one reconciliation step.
type ActionKind string

const (
	ActionUpsertAgent        ActionKind = "upsert_agent"
	ActionSetDMPolicy        ActionKind = "set_dm_policy"
	ActionSetDiscoverability ActionKind = "set_discoverability"
	ActionCreateChannel      ActionKind = "create_channel"
	ActionSubscribe          ActionKind = "subscribe"
	ActionUnsubscribe        ActionKind = "unsubscribe"
)

// Action is one idempotent step toward the desired state.
type Action struct {
	Kind    ActionKind
	Agent   types.AgentRef
	Channel string
	Value   string
}

// CurrentState is the slice of store state Diff compares against.
type CurrentState struct {
	// Agent is nil when the agent is not registered yet.
	Agent *types.Agent
	// Memberships maps channel handle to the membership's source.
	Memberships map[string]types.MemberSource
	// Channels are the channels in the agent's reach (global plus own
	// scope), used for pattern expansion and existence checks.
	Channels []types.Channel
}

// Diff computes the actions that move current to desired. It is pure:
// no store access, no clock. Only frontmatter-sourced memberships are
// ever unsubscribed; manual, default, and system memberships stay.
func Diff(current CurrentState, desired DesiredState) []Action {
	var actions []Action
	ref := desired.Agent

	if current.Agent == nil {
		actions = append(actions, Action{Kind: ActionUpsertAgent, Agent: ref})
	} else {
		if desired.Description != "" && desired.Description != current.Agent.Description {
			actions = append(actions, Action{Kind: ActionUpsertAgent, Agent: ref})
		}
		if desired.DMPolicy != "" && desired.DMPolicy != current.Agent.DMPolicy {
			actions = append(actions, Action{Kind: ActionSetDMPolicy, Agent: ref, Value: string(desired.DMPolicy)})
		}
		if desired.Discoverability != "" && desired.Discoverability != current.Agent.Discoverability {
			actions = append(actions, Action{Kind: ActionSetDiscoverability, Agent: ref, Value: string(desired.Discoverability)})
		}
	}

	byHandle := make(map[string]*types.Channel, len(current.Channels))
	for i := range current.Channels {
		byHandle[current.Channels[i].Handle] = &current.Channels[i]
	}

	want := make(map[string]bool, len(desired.Channels))
	for _, handle := range desired.Channels {
		want[handle] = true
	}
	for _, pattern := range desired.Patterns {
		for i := range current.Channels {
			ch := &current.Channels[i]
			if ch.Type != types.TypeChannel || ch.Archived || ch.Access != types.AccessOpen {
				continue
			}
			if ok, err := path.Match(pattern, ch.Name); err == nil && ok {
				want[ch.Handle] = true
			}
		}
	}

	for _, handle := range sortedKeys(want) {
		if _, member := current.Memberships[handle]; member {
			continue
		}
		// DM and notes channels have fixed membership; declared
		// subscriptions to them are ignored.
		if types.IsDMHandle(handle) || types.IsNotesHandle(handle) {
			continue
		}
		if ch, exists := byHandle[handle]; exists {
			if ch.Archived || ch.Access == types.AccessPrivate {
				continue
			}
		} else {
			actions = append(actions, Action{Kind: ActionCreateChannel, Agent: ref, Channel: handle})
		}
		actions = append(actions, Action{Kind: ActionSubscribe, Agent: ref, Channel: handle})
	}

	var drop []string
	for handle, source := range current.Memberships {
		if !want[handle] && source == types.SourceFrontmatter {
			drop = append(drop, handle)
		}
	}
	sort.Strings(drop)
	for _, handle := range drop {
		actions = append(actions, Action{Kind: ActionUnsubscribe, Agent: ref, Channel: handle})
	}
	return actions
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
