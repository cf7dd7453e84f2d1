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

// Package types contains the shared domain types of the weft substrate:
// projects, agents, channels, memberships, messages, DM permissions, and
// sessions. It also owns the channel handle grammar. The package breaks
// import cycles by giving the store and every engine a common vocabulary.
package types

import (
	"regexp"
	"time"
)

// ScopeGlobal is the distinguished scope for agents and channels that are
// not attached to any project.
const ScopeGlobal = "global"

// DeletedContentSentinel replaces the content of soft-deleted messages.
// The row itself persists.
const DeletedContentSentinel = "[Message deleted]"

// AgentStatus is an agent's self-reported presence.
type AgentStatus string

const (
	StatusOnline  AgentStatus = "online"
	StatusBusy    AgentStatus = "busy"
	StatusOffline AgentStatus = "offline"
)

// DMPolicy is the receiver-side gate for direct messages.
type DMPolicy string

const (
	DMOpen       DMPolicy = "open"       // accepts DMs from anyone
	DMRestricted DMPolicy = "restricted" // requires an explicit allow
	DMClosed     DMPolicy = "closed"     // rejects all DMs
)

// Discoverability is the viewer-side gate for agent discovery.
type Discoverability string

const (
	DiscoverPublic  Discoverability = "public"
	DiscoverProject Discoverability = "project"
	DiscoverPrivate Discoverability = "private"
)

// ChannelType distinguishes regular channels from direct-message channels.
type ChannelType string

const (
	TypeChannel ChannelType = "channel"
	TypeDirect  ChannelType = "direct"
)

// AccessType selects the membership rule set for a channel.
type AccessType string

const (
	AccessOpen    AccessType = "open"    // anyone scope-eligible may self-join
	AccessMembers AccessType = "members" // invite-only, members may invite
	AccessPrivate AccessType = "private" // fixed membership, no join or invite
)

// MemberSource records how a membership came to exist.
type MemberSource string

const (
	SourceManual      MemberSource = "manual"
	SourceDefault     MemberSource = "default"
	SourceFrontmatter MemberSource = "frontmatter"
	SourceSystem      MemberSource = "system"
)

// InvitedBySelf and InvitedBySystem are the sentinel inviter values;
// any other invited_by value is the inviter's agent handle.
const (
	InvitedBySelf   = "self"
	InvitedBySystem = "system"
)

// PermissionKind is an explicit DM permission override.
type PermissionKind string

const (
	PermissionAllow PermissionKind = "allow"
	PermissionBlock PermissionKind = "block"
)

// ProjectLinkType gives a project link its direction.
type ProjectLinkType string

const (
	LinkBidirectional ProjectLinkType = "bidirectional"
	LinkAToB          ProjectLinkType = "a_to_b"
	LinkBToA          ProjectLinkType = "b_to_a"
)

var (
	channelNameRe = regexp.MustCompile(`^[a-z0-9-]+$`)
	agentNameRe   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	projectIDRe   = regexp.MustCompile(`^[0-9a-f]{32}$`)
)

// ValidChannelName reports whether name is legal for a non-DM channel.
func ValidChannelName(name string) bool {
	return channelNameRe.MatchString(name)
}

// ValidAgentName reports whether name is a legal agent name. The charset
// matches the mention token grammar; colons and at-signs are excluded
// because handles use them as separators.
func ValidAgentName(name string) bool {
	return agentNameRe.MatchString(name)
}

// IsProjectID reports whether s has the shape of a project identity
// (32 lowercase hex characters).
func IsProjectID(s string) bool {
	return projectIDRe.MatchString(s)
}

// Project is a registered project root. Its ID is derived from the
// absolute path, see ProjectIDFromPath.
type Project struct {
	ID           string
	Path         string
	Name         string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// AgentRef identifies an agent by (name, scope). Scope is ScopeGlobal or
// a project id. The same name in two scopes is two distinct agents.
type AgentRef struct {
	Name  string
	Scope string
}

// IsGlobal reports whether the agent lives in the global scope.
func (r AgentRef) IsGlobal() bool {
	return r.Scope == ScopeGlobal || r.Scope == ""
}

// Handle renders the mention-style handle: "name" for global agents,
// "name:project" otherwise.
func (r AgentRef) Handle() string {
	if r.IsGlobal() {
		return r.Name
	}
	return r.Name + ":" + r.Scope
}

// dmPart renders the DM-handle part: "name:" for global agents,
// "name:project" otherwise. Empty project marks the global scope in the
// handle grammar.
func (r AgentRef) dmPart() string {
	if r.IsGlobal() {
		return r.Name + ":"
	}
	return r.Name + ":" + r.Scope
}

// notesScope renders the notes-handle scope segment.
func (r AgentRef) notesScope() string {
	if r.IsGlobal() {
		return ScopeGlobal
	}
	return r.Scope
}

// Agent is a registered agent with its policies.
type Agent struct {
	Name            string
	Scope           string
	Description     string
	Status          AgentStatus
	DMPolicy        DMPolicy
	Discoverability Discoverability
	Metadata        map[string]interface{}
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Ref returns the agent's identity pair.
func (a *Agent) Ref() AgentRef {
	return AgentRef{Name: a.Name, Scope: a.Scope}
}

// ProjectLink is a declared relation between two projects. Links enable
// cross-project discovery and open-channel self-join. The relation is
// never closed transitively.
type ProjectLink struct {
	Source  string
	Target  string
	Type    ProjectLinkType
	Enabled bool
	Created time.Time
}

// Channel is a named conversation surface. Scope is ScopeGlobal, a
// project id, or empty for DM channels (whose participants carry their
// own scopes inside the handle).
type Channel struct {
	Handle      string
	Type        ChannelType
	Access      AccessType
	Scope       string
	Name        string
	Description string
	IsDefault   bool
	Archived    bool
	CreatedBy   string
	CreatedAt   time.Time
}

// Membership is one agent's row in one channel, with its permission bits.
type Membership struct {
	Channel       string
	AgentName     string
	AgentScope    string
	InvitedBy     string
	Source        MemberSource
	CanLeave      bool
	CanSend       bool
	CanInvite     bool
	CanManage     bool
	IsFromDefault bool
	IsMuted       bool
	JoinedAt      time.Time
}

// Ref returns the member's agent identity.
func (m *Membership) Ref() AgentRef {
	return AgentRef{Name: m.AgentName, Scope: m.AgentScope}
}

// Message is one stored message. Deletion is soft: Content becomes
// DeletedContentSentinel and Metadata gains a "deleted" marker.
type Message struct {
	ID          int64
	Channel     string
	SenderName  string
	SenderScope string
	Content     string
	Timestamp   time.Time
	Thread      string
	Metadata    map[string]interface{}
	Edited      bool
	EditedAt    *time.Time
	Confidence  *float64
	IntentType  string
}

// Sender returns the message author's identity.
func (m *Message) Sender() AgentRef {
	return AgentRef{Name: m.SenderName, Scope: m.SenderScope}
}

// Deleted reports whether the message has been soft-deleted.
func (m *Message) Deleted() bool {
	if m.Metadata == nil {
		return false
	}
	_, ok := m.Metadata["deleted"]
	return ok
}

// DMPermission is one explicit allow or block held by Owner against Other.
type DMPermission struct {
	Owner      AgentRef
	Other      AgentRef
	Permission PermissionKind
	Reason     string
	CreatedAt  time.Time
}

// SessionScope tells whether a session is attached to a project.
type SessionScope string

const (
	SessionGlobal  SessionScope = "global"
	SessionProject SessionScope = "project"
)

// Session is one registered tool-server or hook session.
type Session struct {
	ID             string
	ProjectID      string
	ProjectPath    string
	ProjectName    string
	TranscriptPath string
	Scope          SessionScope
	UpdatedAt      time.Time
	Metadata       map[string]interface{}
}
