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
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/weft/pkg/channels"
	"github.com/teradata-labs/weft/pkg/messages"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

const (
	defaultHistoryLimit = 50
	defaultMentionLimit = 20
)

// ============================================================================
// Views
//
// Views are the JSON shapes tool results marshal to. They flatten the
// domain types into what a chat-surface client needs and nothing more.
// ============================================================================

type channelView struct {
	Handle      string `json:"handle"`
	Type        string `json:"type"`
	Access      string `json:"access"`
	Scope       string `json:"scope"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"is_default,omitempty"`
	Archived    bool   `json:"archived,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

func channelViewOf(ch *types.Channel) channelView {
	return channelView{
		Handle:      ch.Handle,
		Type:        string(ch.Type),
		Access:      string(ch.Access),
		Scope:       ch.Scope,
		Name:        ch.Name,
		Description: ch.Description,
		IsDefault:   ch.IsDefault,
		Archived:    ch.Archived,
		CreatedBy:   ch.CreatedBy,
	}
}

type availableChannelView struct {
	channelView
	IsMember     bool   `json:"is_member"`
	CanJoin      bool   `json:"can_join"`
	AccessReason string `json:"access_reason"`
}

type memberView struct {
	Agent     string    `json:"agent"`
	InvitedBy string    `json:"invited_by,omitempty"`
	Source    string    `json:"source"`
	CanSend   bool      `json:"can_send"`
	CanInvite bool      `json:"can_invite"`
	CanManage bool      `json:"can_manage,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

type messageView struct {
	ID         int64                  `json:"id"`
	Channel    string                 `json:"channel"`
	Sender     string                 `json:"sender"`
	Content    string                 `json:"content"`
	Timestamp  time.Time              `json:"timestamp"`
	Thread     string                 `json:"thread,omitempty"`
	Edited     bool                   `json:"edited,omitempty"`
	Deleted    bool                   `json:"deleted,omitempty"`
	Confidence *float64               `json:"confidence,omitempty"`
	IntentType string                 `json:"intent_type,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

func messageViewOf(m *types.Message) messageView {
	return messageView{
		ID:         m.ID,
		Channel:    m.Channel,
		Sender:     m.Sender().Handle(),
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		Thread:     m.Thread,
		Edited:     m.Edited,
		Deleted:    m.Deleted(),
		Confidence: m.Confidence,
		IntentType: m.IntentType,
		Metadata:   m.Metadata,
	}
}

func messageViewsOf(msgs []types.Message) []messageView {
	out := make([]messageView, len(msgs))
	for i := range msgs {
		out[i] = messageViewOf(&msgs[i])
	}
	return out
}

type sendView struct {
	ID              int64    `json:"id"`
	Channel         string   `json:"channel"`
	Thread          string   `json:"thread,omitempty"`
	Mentions        []string `json:"mentions,omitempty"`
	DroppedMentions []string `json:"dropped_mentions,omitempty"`
	SearchDegraded  bool     `json:"search_degraded,omitempty"`
}

func sendViewOf(res *messages.SendResult) sendView {
	v := sendView{
		ID:             res.Message.ID,
		Channel:        res.Message.Channel,
		Thread:         res.Message.Thread,
		SearchDegraded: res.IndexDegraded,
	}
	for _, m := range res.Mentions {
		v.Mentions = append(v.Mentions, m.Handle())
	}
	v.DroppedMentions = res.DroppedMentions
	return v
}

type searchView struct {
	Mode     string          `json:"mode"`
	Degraded bool            `json:"degraded,omitempty"`
	Hits     []searchHitView `json:"hits"`
}

type searchHitView struct {
	messageView
	Score float64 `json:"score,omitempty"`
}

// ============================================================================
// Channel tools
// ============================================================================

func (o *Orchestrator) handleCreateChannel(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	scope := viewer.Scope
	if s := stringArg(args, "project_id"); s != "" {
		scope = s
	}
	ch, err := o.channels.Create(ctx, channels.CreateParams{
		Name:        stringArg(args, "name"),
		Scope:       scope,
		Access:      types.AccessType(stringArg(args, "access")),
		Description: stringArg(args, "description"),
		Creator:     viewer,
		IsDefault:   boolArg(args, "is_default"),
	})
	if err != nil {
		return nil, err
	}
	return channelViewOf(ch), nil
}

func (o *Orchestrator) handleArchiveChannel(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	handle := resolveHandle(viewer, stringArg(args, "channel"))
	if err := o.channels.Archive(ctx, handle, viewer); err != nil {
		return nil, err
	}
	return "archived " + handle, nil
}

func (o *Orchestrator) handleJoinChannel(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	handle := resolveHandle(viewer, stringArg(args, "channel"))
	if err := o.channels.Join(ctx, viewer, handle); err != nil {
		return nil, err
	}
	return "joined " + handle, nil
}

func (o *Orchestrator) handleLeaveChannel(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	handle := resolveHandle(viewer, stringArg(args, "channel"))
	if err := o.channels.Leave(ctx, viewer, handle); err != nil {
		return nil, err
	}
	return "left " + handle, nil
}

func (o *Orchestrator) handleInviteToChannel(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	handle := resolveHandle(viewer, stringArg(args, "channel"))
	invitee, err := parseAgentHandle(stringArg(args, "invitee"))
	if err != nil {
		return nil, err
	}
	if err := o.channels.Invite(ctx, handle, invitee, viewer); err != nil {
		return nil, err
	}
	return "invited " + invitee.Handle() + " to " + handle, nil
}

func (o *Orchestrator) handleListChannels(ctx context.Context, viewer types.AgentRef, _ map[string]interface{}) (interface{}, error) {
	avail, err := o.channels.ListAvailable(ctx, viewer)
	if err != nil {
		return nil, err
	}
	out := make([]availableChannelView, len(avail))
	for i, ac := range avail {
		out[i] = availableChannelView{
			channelView:  channelViewOf(&ac.Channel),
			IsMember:     ac.IsMember,
			CanJoin:      ac.CanJoin,
			AccessReason: ac.AccessReason,
		}
	}
	return out, nil
}

func (o *Orchestrator) handleListMembers(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	handle := resolveHandle(viewer, stringArg(args, "channel"))
	members, err := o.channels.Members(ctx, handle, viewer)
	if err != nil {
		return nil, err
	}
	out := make([]memberView, len(members))
	for i, m := range members {
		out[i] = memberView{
			Agent:     m.Ref().Handle(),
			InvitedBy: m.InvitedBy,
			Source:    string(m.Source),
			CanSend:   m.CanSend,
			CanInvite: m.CanInvite,
			CanManage: m.CanManage,
			JoinedAt:  m.JoinedAt,
		}
	}
	return out, nil
}

// ============================================================================
// Message tools
// ============================================================================

func (o *Orchestrator) handleSendChannelMessage(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	res, err := o.messages.Send(ctx, messages.SendParams{
		Channel:    resolveHandle(viewer, stringArg(args, "channel")),
		Sender:     viewer,
		Content:    stringArg(args, "content"),
		Thread:     stringArg(args, "thread"),
		Confidence: floatArgPtr(args, "confidence"),
		IntentType: stringArg(args, "intent_type"),
		Metadata:   mapArg(args, "metadata"),
	})
	if err != nil {
		return nil, err
	}
	return sendViewOf(res), nil
}

func (o *Orchestrator) handleSendDM(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	recipient, err := parseAgentHandle(stringArg(args, "recipient"))
	if err != nil {
		return nil, err
	}
	ch, err := o.discovery.CreateOrGetDM(ctx, viewer, recipient)
	if err != nil {
		return nil, err
	}
	res, err := o.messages.Send(ctx, messages.SendParams{
		Channel:    ch.Handle,
		Sender:     viewer,
		Content:    stringArg(args, "content"),
		Thread:     stringArg(args, "thread"),
		Confidence: floatArgPtr(args, "confidence"),
		Metadata:   mapArg(args, "metadata"),
	})
	if err != nil {
		return nil, err
	}
	return sendViewOf(res), nil
}

func (o *Orchestrator) handleGetMessages(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	limit := intArg(args, "limit")
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	msgs, err := o.messages.List(ctx, viewer, store.MessageQuery{
		Channel:  resolveHandle(viewer, stringArg(args, "channel")),
		Thread:   stringArg(args, "thread"),
		BeforeID: int64Arg(args, "before"),
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}
	return messageViewsOf(msgs), nil
}

func (o *Orchestrator) handleGetMessage(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	msg, err := o.messages.Get(ctx, int64Arg(args, "message_id"), viewer)
	if err != nil {
		return nil, err
	}
	return messageViewOf(msg), nil
}

func (o *Orchestrator) handleEditMessage(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	msg, err := o.messages.Edit(ctx, int64Arg(args, "message_id"), viewer, stringArg(args, "content"))
	if err != nil {
		return nil, err
	}
	return messageViewOf(msg), nil
}

func (o *Orchestrator) handleDeleteMessage(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	id := int64Arg(args, "message_id")
	if err := o.messages.Delete(ctx, id, viewer); err != nil {
		return nil, err
	}
	return fmt.Sprintf("deleted message %d", id), nil
}

func (o *Orchestrator) handleSearchMessages(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	p := messages.SearchParams{
		Viewer:        viewer,
		Query:         stringArg(args, "query"),
		Mode:          messages.Mode(stringArg(args, "mode")),
		Profile:       stringArg(args, "profile"),
		Senders:       stringsArg(args, "senders"),
		IntentType:    stringArg(args, "intent_type"),
		MinConfidence: floatArgPtr(args, "min_confidence"),
		Limit:         intArg(args, "limit"),
	}
	for _, c := range stringsArg(args, "channels") {
		p.Channels = append(p.Channels, resolveHandle(viewer, c))
	}
	if hours, ok := floatArg(args, "since_hours"); ok && hours > 0 {
		p.Since = time.Now().Add(-time.Duration(hours * float64(time.Hour)))
	}

	res, err := o.messages.Search(ctx, p)
	if err != nil {
		return nil, err
	}
	view := searchView{
		Mode:     string(res.Mode),
		Degraded: res.Degraded,
		Hits:     make([]searchHitView, len(res.Hits)),
	}
	for i, hit := range res.Hits {
		view.Hits[i] = searchHitView{
			messageView: messageViewOf(&hit.Message),
			Score:       hit.Score,
		}
	}
	return view, nil
}

func (o *Orchestrator) handleListMentions(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	limit := intArg(args, "limit")
	if limit <= 0 {
		limit = defaultMentionLimit
	}
	msgs, err := o.messages.Mentions(ctx, viewer, limit)
	if err != nil {
		return nil, err
	}
	return messageViewsOf(msgs), nil
}

// ============================================================================
// Notes tools
// ============================================================================

func (o *Orchestrator) handleWriteNote(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	ch, err := o.channels.EnsureNotes(ctx, viewer)
	if err != nil {
		return nil, err
	}
	metadata := map[string]interface{}{"type": "note"}
	if tags := stringsArg(args, "tags"); len(tags) > 0 {
		metadata["tags"] = tags
	}
	res, err := o.messages.Send(ctx, messages.SendParams{
		Channel:  ch.Handle,
		Sender:   viewer,
		Content:  stringArg(args, "content"),
		Thread:   stringArg(args, "thread"),
		Metadata: metadata,
	})
	if err != nil {
		return nil, err
	}
	return sendViewOf(res), nil
}

func (o *Orchestrator) handleReadNotes(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	ch, err := o.channels.EnsureNotes(ctx, viewer)
	if err != nil {
		return nil, err
	}
	limit := intArg(args, "limit")
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	msgs, err := o.messages.List(ctx, viewer, store.MessageQuery{Channel: ch.Handle, Limit: limit})
	if err != nil {
		return nil, err
	}
	return messageViewsOf(msgs), nil
}

// handlePeekNotes reads another agent's notebook. The discoverability
// gate stands in for membership: anyone who can see the owner in
// discovery may read its notes. The list itself runs as the owner,
// who is always a member of its own notebook.
func (o *Orchestrator) handlePeekNotes(ctx context.Context, viewer types.AgentRef, args map[string]interface{}) (interface{}, error) {
	target, err := parseAgentHandle(stringArg(args, "target"))
	if err != nil {
		return nil, err
	}
	if target == viewer {
		return o.handleReadNotes(ctx, viewer, args)
	}

	visible, err := o.discovery.Visible(ctx, viewer, target)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, wefterr.New(wefterr.KindPermissionDenied,
			"agent %s is not discoverable to %s", target.Handle(), viewer.Handle())
	}

	limit := intArg(args, "limit")
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	msgs, err := o.messages.List(ctx, target, store.MessageQuery{
		Channel: types.NotesHandleFor(target),
		Limit:   limit,
	})
	if err != nil {
		// A discoverable agent that never wrote a note has no
		// notebook channel yet. That is an empty notebook, not an
		// error.
		if wefterr.IsKind(err, wefterr.KindNotFound) {
			return []messageView{}, nil
		}
		return nil, err
	}
	return messageViewsOf(msgs), nil
}
