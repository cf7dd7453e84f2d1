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

package orchestrator

import (
	"github.com/teradata-labs/weft/pkg/mcp/protocol"
)

// agentExempt lists the tools that run without a resolved caller.
var agentExempt = map[string]struct{}{
	"weft_get_current_project": {},
	"weft_list_projects":       {},
	"weft_get_linked_projects": {},
	"weft_link_projects":       {},
}

// buildToolHandlers builds the mapping from tool name to handler method.
// Called once during construction; the result is cached on the struct.
func (o *Orchestrator) buildToolHandlers() map[string]toolHandler {
	return map[string]toolHandler{
		// Channels
		"weft_create_channel":    o.handleCreateChannel,
		"weft_archive_channel":   o.handleArchiveChannel,
		"weft_join_channel":      o.handleJoinChannel,
		"weft_leave_channel":     o.handleLeaveChannel,
		"weft_invite_to_channel": o.handleInviteToChannel,
		"weft_list_channels":     o.handleListChannels,
		"weft_list_members":      o.handleListMembers,

		// Messages
		"weft_send_channel_message": o.handleSendChannelMessage,
		"weft_send_dm":              o.handleSendDM,
		"weft_get_messages":         o.handleGetMessages,
		"weft_get_message":          o.handleGetMessage,
		"weft_edit_message":         o.handleEditMessage,
		"weft_delete_message":       o.handleDeleteMessage,
		"weft_search_messages":      o.handleSearchMessages,
		"weft_list_mentions":        o.handleListMentions,

		// Notes
		"weft_write_note": o.handleWriteNote,
		"weft_read_notes": o.handleReadNotes,
		"weft_peek_notes": o.handlePeekNotes,

		// Roster & DM policy
		"weft_list_agents":          o.handleListAgents,
		"weft_update_agent":         o.handleUpdateAgent,
		"weft_set_dm_permission":    o.handleSetDMPermission,
		"weft_remove_dm_permission": o.handleRemoveDMPermission,
		"weft_list_dm_permissions":  o.handleListDMPermissions,

		// Projects
		"weft_get_current_project": o.handleGetCurrentProject,
		"weft_list_projects":       o.handleListProjects,
		"weft_get_linked_projects": o.handleGetLinkedProjects,
		"weft_link_projects":       o.handleLinkProjects,
	}
}

// ============================================================================
// Tool annotation helpers
// ============================================================================

// boolP returns a pointer to a bool value. Used for optional annotation fields.
func boolP(b bool) *bool { return &b }

// readOnlyAnnotation returns annotations for tools that only read data.
func readOnlyAnnotation() *protocol.ToolAnnotations {
	return &protocol.ToolAnnotations{
		ReadOnlyHint:    boolP(true),
		DestructiveHint: boolP(false),
		IdempotentHint:  boolP(true),
	}
}

// destructiveAnnotation returns annotations for tools that remove data.
func destructiveAnnotation() *protocol.ToolAnnotations {
	return &protocol.ToolAnnotations{
		ReadOnlyHint:    boolP(false),
		DestructiveHint: boolP(true),
	}
}

// mutatingAnnotation returns annotations for tools that create or update data.
func mutatingAnnotation() *protocol.ToolAnnotations {
	return &protocol.ToolAnnotations{
		ReadOnlyHint:    boolP(false),
		DestructiveHint: boolP(false),
	}
}

// idempotentAnnotation marks mutations that are safe to repeat
// (create-or-get style operations).
func idempotentAnnotation() *protocol.ToolAnnotations {
	return &protocol.ToolAnnotations{
		ReadOnlyHint:    boolP(false),
		DestructiveHint: boolP(false),
		IdempotentHint:  boolP(true),
	}
}

// ============================================================================
// Tool definitions
// ============================================================================

func buildToolDefinitions() []protocol.Tool {
	tool := func(name, desc string, schema map[string]interface{}, ann *protocol.ToolAnnotations) protocol.Tool {
		return protocol.Tool{
			Name:        name,
			Description: desc,
			InputSchema: schema,
			Annotations: ann,
		}
	}

	ro := readOnlyAnnotation()
	del := destructiveAnnotation()
	mut := mutatingAnnotation()
	idem := idempotentAnnotation()

	agentID := reqProp("agent_id", "string", "Calling agent, as name or name@project (project by id, name, or path)")

	return []protocol.Tool{
		// Channels
		tool("weft_create_channel", "Create a channel in the caller's scope (or an explicit scope). Existing channels are returned unchanged.", objectSchema(
			agentID,
			reqProp("name", "string", "Channel name (lowercase letters, digits, hyphens)"),
			prop("description", "string", "What the channel is for"),
			enumProp("access", "Access type (default open)", "open", "members", "private"),
			prop("project_id", "string", "Scope override: \"global\" or a project id (defaults to the caller's scope)"),
			boolProp("is_default", "Auto-join new agents in this scope"),
		), idem),
		tool("weft_archive_channel", "Archive a channel. Archived channels reject joins and sends but stay readable to members.", objectSchema(
			agentID,
			reqProp("channel", "string", "Channel name or handle"),
		), mut),
		tool("weft_join_channel", "Join an open channel in the caller's scope, a linked scope, or the global scope.", objectSchema(
			agentID,
			reqProp("channel", "string", "Channel name or handle"),
		), idem),
		tool("weft_leave_channel", "Leave a channel. DM and notes memberships cannot be left.", objectSchema(
			agentID,
			reqProp("channel", "string", "Channel name or handle"),
		), mut),
		tool("weft_invite_to_channel", "Invite another agent into a channel. Invitations may cross project boundaries.", objectSchema(
			agentID,
			reqProp("channel", "string", "Channel name or handle"),
			reqProp("invitee", "string", "Agent to invite, as name or name:project-id"),
		), mut),
		tool("weft_list_channels", "List every channel visible to the caller with membership and joinability.", objectSchema(
			agentID,
		), ro),
		tool("weft_list_members", "List the members of a channel the caller can see.", objectSchema(
			agentID,
			reqProp("channel", "string", "Channel name or handle"),
		), ro),

		// Messages
		tool("weft_send_channel_message", "Send a message to a channel the caller belongs to. @mentions are validated against membership.", objectSchema(
			agentID,
			reqProp("channel", "string", "Channel name or handle"),
			reqProp("content", "string", "Message body"),
			prop("thread", "string", "Thread handle to reply in"),
			numProp("confidence", "Sender confidence in [0,1]"),
			prop("intent_type", "string", "Free-form intent tag (question, decision, ...)"),
			objProp("metadata", "Additional structured metadata"),
		), mut),
		tool("weft_send_dm", "Send a direct message, creating the DM channel if the receiver's policy allows it.", objectSchema(
			agentID,
			reqProp("recipient", "string", "Receiving agent, as name or name:project-id"),
			reqProp("content", "string", "Message body"),
			prop("thread", "string", "Thread handle to reply in"),
			numProp("confidence", "Sender confidence in [0,1]"),
			objProp("metadata", "Additional structured metadata"),
		), mut),
		tool("weft_get_messages", "Read a channel's history newest-first. Members only.", objectSchema(
			agentID,
			reqProp("channel", "string", "Channel name or handle"),
			intProp("limit", "Maximum messages to return (default 50)"),
			intProp("before", "Return messages with id strictly below this cursor"),
			prop("thread", "string", "Restrict to one thread"),
		), ro),
		tool("weft_get_message", "Fetch a single message by id. The caller must be a member of its channel.", objectSchema(
			agentID,
			reqIntProp("message_id", "Message id"),
		), ro),
		tool("weft_edit_message", "Edit one of the caller's own messages.", objectSchema(
			agentID,
			reqIntProp("message_id", "Message id"),
			reqProp("content", "string", "Replacement body"),
		), mut),
		tool("weft_delete_message", "Soft-delete one of the caller's own messages. The row persists with sentinel content.", objectSchema(
			agentID,
			reqIntProp("message_id", "Message id"),
		), del),
		tool("weft_search_messages", "Search messages across the caller's channels, lexically or semantically.", objectSchema(
			agentID,
			reqProp("query", "string", "Search query"),
			enumProp("mode", "Search mode (default lexical)", "lexical", "semantic"),
			enumProp("profile", "Semantic ranking profile", "balanced", "recent", "quality", "similarity"),
			listProp("channels", "Restrict to these channel handles"),
			listProp("senders", "Restrict to these sender names"),
			prop("intent_type", "string", "Restrict to one intent tag"),
			numProp("min_confidence", "Drop hits below this confidence"),
			numProp("since_hours", "Only messages newer than this many hours"),
			intProp("limit", "Maximum hits (default 20)"),
		), ro),
		tool("weft_list_mentions", "List recent messages that @mention the caller.", objectSchema(
			agentID,
			intProp("limit", "Maximum messages to return (default 20)"),
		), ro),

		// Notes
		tool("weft_write_note", "Append an entry to the caller's private notebook.", objectSchema(
			agentID,
			reqProp("content", "string", "Note body"),
			listProp("tags", "Free-form tags stored in the note's metadata"),
			prop("thread", "string", "Thread handle to continue"),
		), mut),
		tool("weft_read_notes", "Read the caller's own notebook newest-first.", objectSchema(
			agentID,
			intProp("limit", "Maximum notes to return (default 50)"),
		), ro),
		tool("weft_peek_notes", "Read another agent's notebook. Allowed only when that agent is discoverable to the caller.", objectSchema(
			agentID,
			reqProp("target", "string", "Notebook owner, as name or name:project-id"),
			intProp("limit", "Maximum notes to return (default 50)"),
		), ro),

		// Roster & DM policy
		tool("weft_list_agents", "Discover agents visible to the caller with their DM availability.", objectSchema(
			agentID,
			prop("filter", "string", "Fuzzy name filter"),
			listProp("availability", "Keep only these DM tiers: available, requires_permission, blocked, unavailable"),
			intProp("limit", "Maximum agents to return"),
		), ro),
		tool("weft_update_agent", "Update the caller's presence, description, DM policy, discoverability, or metadata. Omitted fields keep their stored values.", objectSchema(
			agentID,
			enumProp("status", "Presence", "online", "busy", "offline"),
			prop("description", "string", "Role description shown in discovery"),
			enumProp("dm_policy", "Receiver-side DM gate", "open", "restricted", "closed"),
			enumProp("discoverability", "Who can see this agent", "public", "project", "private"),
			objProp("metadata", "Additional structured metadata"),
		), mut),
		tool("weft_set_dm_permission", "Allow or block DMs from another agent. Blocks win over allows and apply in both directions.", objectSchema(
			agentID,
			reqProp("other", "string", "The other agent, as name or name:project-id"),
			reqEnumProp("permission", "allow or block", "allow", "block"),
			prop("reason", "string", "Why, for later review"),
		), idem),
		tool("weft_remove_dm_permission", "Remove a previously set allow or block for another agent.", objectSchema(
			agentID,
			reqProp("other", "string", "The other agent, as name or name:project-id"),
		), mut),
		tool("weft_list_dm_permissions", "List the caller's DM allows and blocks.", objectSchema(
			agentID,
		), ro),

		// Projects
		tool("weft_get_current_project", "Report the project attached to this session, if any.", objectSchema(), ro),
		tool("weft_list_projects", "List registered projects, most recently active first.", objectSchema(), ro),
		tool("weft_get_linked_projects", "List the projects linked to one project (defaults to the session's project).", objectSchema(
			prop("project", "string", "Project id (defaults to the current session's project)"),
		), ro),
		tool("weft_link_projects", "Link two projects so their agents can discover each other and join each other's open channels.", objectSchema(
			reqProp("source", "string", "Project id or filesystem path (paths are registered on the fly)"),
			reqProp("target", "string", "Project id or filesystem path (paths are registered on the fly)"),
			enumProp("link_type", "Link direction (default bidirectional)", "bidirectional", "a_to_b", "b_to_a"),
		), idem),
	}
}

// ============================================================================
// Schema helpers
// ============================================================================

type schemaProperty struct {
	name     string
	schema   map[string]interface{}
	required bool
}

func prop(name, typ, desc string) schemaProperty {
	return schemaProperty{name: name, schema: map[string]interface{}{
		"type":        typ,
		"description": desc,
	}}
}

func reqProp(name, typ, desc string) schemaProperty {
	p := prop(name, typ, desc)
	p.required = true
	return p
}

func intProp(name, desc string) schemaProperty {
	return prop(name, "integer", desc)
}

func reqIntProp(name, desc string) schemaProperty {
	p := intProp(name, desc)
	p.required = true
	return p
}

func numProp(name, desc string) schemaProperty {
	return prop(name, "number", desc)
}

func boolProp(name, desc string) schemaProperty {
	return prop(name, "boolean", desc)
}

func objProp(name, desc string) schemaProperty {
	return prop(name, "object", desc)
}

func listProp(name, desc string) schemaProperty {
	return schemaProperty{name: name, schema: map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": desc,
	}}
}

func enumProp(name, desc string, values ...string) schemaProperty {
	enum := make([]interface{}, len(values))
	for i, v := range values {
		enum[i] = v
	}
	return schemaProperty{name: name, schema: map[string]interface{}{
		"type":        "string",
		"enum":        enum,
		"description": desc,
	}}
}

func reqEnumProp(name, desc string, values ...string) schemaProperty {
	p := enumProp(name, desc, values...)
	p.required = true
	return p
}

func objectSchema(props ...schemaProperty) map[string]interface{} {
	schema := map[string]interface{}{
		"type": "object",
	}

	if len(props) > 0 {
		properties := make(map[string]interface{})
		var required []string

		for _, p := range props {
			properties[p.name] = p.schema
			if p.required {
				required = append(required, p.name)
			}
		}

		schema["properties"] = properties
		if len(required) > 0 {
			schema["required"] = required
		}
	}

	return schema
}
