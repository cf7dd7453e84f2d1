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

package types

import (
	"strings"

	"github.com/teradata-labs/weft/pkg/wefterr"
)

// Channel handle grammar:
//
//	handle    := global_h | project_h | dm_h | notes_h
//	global_h  := "global:" name
//	project_h := proj_id ":" name          ; proj_id = 32 hex chars
//	dm_h      := "dm:" part ":" part       ; part = agent_name ":" (proj_id | "")
//	notes_h   := "notes:" agent_name ":" (proj_id | "global")
//	name      := [a-z0-9-]+
//
// A handle self-identifies its kind by the first segment.

// HandleKind classifies a parsed channel handle.
type HandleKind string

const (
	HandleGlobal  HandleKind = "global"
	HandleProject HandleKind = "project"
	HandleDM      HandleKind = "dm"
	HandleNotes   HandleKind = "notes"
)

// ParsedHandle is the decomposed form of a channel handle.
type ParsedHandle struct {
	Kind HandleKind

	// Scope is ScopeGlobal or a project id for global/project handles,
	// and the notebook owner's scope for notes handles. Empty for DMs.
	Scope string

	// Name is the channel short name for global/project handles.
	Name string

	// Participants are the two DM members in canonical order.
	Participants [2]AgentRef

	// Agent is the notebook owner for notes handles.
	Agent AgentRef
}

// GlobalHandle builds the handle of a global channel.
func GlobalHandle(name string) string {
	return "global:" + name
}

// ProjectHandle builds the handle of a project-scoped channel.
func ProjectHandle(projectID, name string) string {
	return projectID + ":" + name
}

// DMHandleFor builds the canonical DM handle for two agents. The two
// "name:project" parts are sorted lexicographically so both argument
// orders map to the same channel. An empty project segment denotes a
// global agent.
func DMHandleFor(a, b AgentRef) string {
	pa, pb := a.dmPart(), b.dmPart()
	if pb < pa {
		pa, pb = pb, pa
	}
	return "dm:" + pa + ":" + pb
}

// NotesHandleFor builds the handle of an agent's private notebook.
func NotesHandleFor(agent AgentRef) string {
	return "notes:" + agent.Name + ":" + agent.notesScope()
}

// IsDMHandle is a cheap prefix check, useful before a full parse.
func IsDMHandle(h string) bool {
	return strings.HasPrefix(h, "dm:")
}

// IsNotesHandle is a cheap prefix check, useful before a full parse.
func IsNotesHandle(h string) bool {
	return strings.HasPrefix(h, "notes:")
}

// ParseHandle decomposes a channel handle. Malformed handles fail with
// INVALID_INPUT.
func ParseHandle(h string) (*ParsedHandle, error) {
	if h == "" {
		return nil, wefterr.New(wefterr.KindInvalidInput, "empty channel handle")
	}
	fields := strings.Split(h, ":")

	switch fields[0] {
	case "global":
		if len(fields) != 2 || !ValidChannelName(fields[1]) {
			return nil, wefterr.New(wefterr.KindInvalidInput, "malformed global channel handle %q", h)
		}
		return &ParsedHandle{Kind: HandleGlobal, Scope: ScopeGlobal, Name: fields[1]}, nil

	case "dm":
		if len(fields) != 5 {
			return nil, wefterr.New(wefterr.KindInvalidInput, "malformed dm handle %q", h)
		}
		a, err := dmRef(fields[1], fields[2], h)
		if err != nil {
			return nil, err
		}
		b, err := dmRef(fields[3], fields[4], h)
		if err != nil {
			return nil, err
		}
		return &ParsedHandle{Kind: HandleDM, Participants: [2]AgentRef{a, b}}, nil

	case "notes":
		if len(fields) != 3 || !ValidAgentName(fields[1]) {
			return nil, wefterr.New(wefterr.KindInvalidInput, "malformed notes handle %q", h)
		}
		scope := fields[2]
		if scope != ScopeGlobal && !IsProjectID(scope) {
			return nil, wefterr.New(wefterr.KindInvalidInput, "notes handle %q has invalid scope %q", h, scope)
		}
		return &ParsedHandle{
			Kind:  HandleNotes,
			Scope: scope,
			Agent: AgentRef{Name: fields[1], Scope: scope},
		}, nil

	default:
		if len(fields) != 2 || !IsProjectID(fields[0]) || !ValidChannelName(fields[1]) {
			return nil, wefterr.New(wefterr.KindInvalidInput, "malformed channel handle %q", h)
		}
		return &ParsedHandle{Kind: HandleProject, Scope: fields[0], Name: fields[1]}, nil
	}
}

func dmRef(name, scope, handle string) (AgentRef, error) {
	if !ValidAgentName(name) {
		return AgentRef{}, wefterr.New(wefterr.KindInvalidInput, "dm handle %q has invalid agent name %q", handle, name)
	}
	if scope == "" {
		return AgentRef{Name: name, Scope: ScopeGlobal}, nil
	}
	if !IsProjectID(scope) {
		return AgentRef{}, wefterr.New(wefterr.KindInvalidInput, "dm handle %q has invalid scope %q", handle, scope)
	}
	return AgentRef{Name: name, Scope: scope}, nil
}
