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

// Package reconcile converges declared agent descriptors into the store.
// The flow is deliberately three-step: Desired normalizes a descriptor,
// Diff computes actions against the loaded store state, and the
// Reconciler applies them idempotently, recording each run in sync
// history. Desired and Diff are pure so the interesting logic stays
// testable without a database.
package reconcile

import (
	"context"
	"sort"
	"strings"

	"github.com/teradata-labs/weft/pkg/types"
)

// Descriptor is the declared state of one agent as authored in an
// external source, such as the config file's default subscriptions.
type Descriptor struct {
	Agent           types.AgentRef
	Description     string
	DMPolicy        types.DMPolicy
	Discoverability types.Discoverability

	// Subscriptions are channel handles, or bare channel names that
	// resolve against the agent's scope.
	Subscriptions []string

	// AutoSubscribePatterns are advisory globs matched against joinable
	// channel names when computing the desired state.
	AutoSubscribePatterns []string
}

// DescriptorSource yields declared agent descriptors.
type DescriptorSource interface {
	// Name identifies the source in sync history.
	Name() string
	Descriptors(ctx context.Context) ([]Descriptor, error)
}

// DesiredState is the normalized reconciliation target for one agent.
type DesiredState struct {
	Agent           types.AgentRef
	Description     string
	DMPolicy        types.DMPolicy
	Discoverability types.Discoverability

	// Channels holds canonical handles, sorted and deduplicated.
	Channels []string
	Patterns []string
}

// Desired normalizes a descriptor. Bare subscription names gain the
// agent's scope, global agents resolve them to global handles.
func Desired(d Descriptor) DesiredState {
	out := DesiredState{
		Agent:           d.Agent,
		Description:     d.Description,
		DMPolicy:        d.DMPolicy,
		Discoverability: d.Discoverability,
		Patterns:        append([]string(nil), d.AutoSubscribePatterns...),
	}
	if out.Agent.Scope == "" {
		out.Agent.Scope = types.ScopeGlobal
	}

	seen := make(map[string]bool)
	for _, sub := range d.Subscriptions {
		sub = strings.TrimSpace(sub)
		if sub == "" {
			continue
		}
		handle := sub
		if !strings.Contains(sub, ":") {
			if out.Agent.IsGlobal() {
				handle = types.GlobalHandle(sub)
			} else {
				handle = types.ProjectHandle(out.Agent.Scope, sub)
			}
		}
		if !seen[handle] {
			seen[handle] = true
			out.Channels = append(out.Channels, handle)
		}
	}
	sort.Strings(out.Channels)
	return out
}
