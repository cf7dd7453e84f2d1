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

// Package messages owns the message pipeline: send with mention
// validation, edit, soft-delete, reads, threading, and search over the
// lexical and semantic backends.
package messages

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/semantic"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// Vectorizer is the optional semantic sidecar. All calls are
// best-effort: a vector failure never blocks the message store.
type Vectorizer interface {
	IndexMessage(ctx context.Context, msg *types.Message) error
	RemoveMessage(ctx context.Context, id int64) error
	Search(ctx context.Context, req semantic.Request) ([]semantic.Match, error)
}

// Engine enforces the message rules on top of the store.
type Engine struct {
	store   *store.Store
	logger  *zap.Logger
	tracer  observability.Tracer
	vectors Vectorizer

	defaultProfile string
	halfLifeHours  float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer attaches a tracer to engine operations.
func WithTracer(tracer observability.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithVectorizer attaches the semantic index.
func WithVectorizer(v Vectorizer) Option {
	return func(e *Engine) {
		e.vectors = v
	}
}

// WithSearchDefaults sets the ranking profile used when a search names
// none, and an optional half-life override applied to every profile.
func WithSearchDefaults(profile string, halfLifeHours float64) Option {
	return func(e *Engine) {
		e.defaultProfile = profile
		e.halfLifeHours = halfLifeHours
	}
}

// New creates a message engine.
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

// SendParams describes one message to send.
type SendParams struct {
	Channel string
	Sender  types.AgentRef
	Content string
	// Thread references the root message id of the thread to reply in.
	Thread string
	// Confidence is the sender's self-assessed confidence in [0, 1].
	Confidence *float64
	IntentType string
	Metadata   map[string]interface{}
}

// SendResult reports a completed send.
type SendResult struct {
	Message *types.Message
	// Mentions are the validated mention targets.
	Mentions []types.AgentRef
	// DroppedMentions are tokens that named non-members; they are
	// logged and not recorded.
	DroppedMentions []string
	// IndexDegraded is set when the vector write failed. The message
	// itself is durably stored either way.
	IndexDegraded bool
}

// Send stores a message. Membership check, mention validation, and the
// insert commit atomically; the vector write follows outside the
// transaction and only degrades search when it fails.
func (e *Engine) Send(ctx context.Context, p SendParams) (*SendResult, error) {
	ctx, span := e.tracer.StartSpan(ctx, "messages.send",
		observability.WithAttribute("channel", p.Channel))
	defer e.tracer.EndSpan(span)

	content := strings.TrimSpace(p.Content)
	if content == "" {
		return nil, wefterr.New(wefterr.KindInvalidInput, "message content is empty")
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return nil, wefterr.New(wefterr.KindInvalidInput,
			"confidence %v is outside [0, 1]", *p.Confidence)
	}

	msg := &types.Message{
		Channel:     p.Channel,
		SenderName:  p.Sender.Name,
		SenderScope: p.Sender.Scope,
		Content:     content,
		Thread:      p.Thread,
		Metadata:    p.Metadata,
		Confidence:  p.Confidence,
		IntentType:  p.IntentType,
	}
	result := &SendResult{Message: msg}

	// A busy writer retries the whole transaction; the mention
	// accumulators reset per attempt.
	err := wefterr.Retry(ctx, func() error {
		result.Mentions = result.Mentions[:0]
		result.DroppedMentions = result.DroppedMentions[:0]
		return e.store.InTx(ctx, func(tx *store.Tx) error {
			ch, err := tx.GetChannel(ctx, p.Channel)
			if err != nil {
				return err
			}
			if ch.Archived {
				return wefterr.New(wefterr.KindPermissionDenied, "channel %s is archived", p.Channel)
			}
			m, err := tx.GetMembership(ctx, p.Channel, p.Sender)
			if err != nil {
				return wefterr.New(wefterr.KindPermissionDenied,
					"%s is not a member of %s", p.Sender.Handle(), p.Channel)
			}
			if !m.CanSend {
				return wefterr.New(wefterr.KindPermissionDenied,
					"%s may not send to %s", p.Sender.Handle(), p.Channel)
			}

			thread, err := resolveThread(ctx, tx, p.Channel, p.Thread)
			if err != nil {
				return err
			}
			msg.Thread = thread

			// Mentions of non-members are dropped, not failed: the message
			// is still worth delivering.
			handles := make([]string, 0)
			for _, token := range extractMentionTokens(content) {
				ref := parseRef(token)
				if _, err := tx.GetMembership(ctx, p.Channel, ref); err != nil {
					if wefterr.IsKind(err, wefterr.KindNotFound) {
						result.DroppedMentions = append(result.DroppedMentions, token)
						continue
					}
					return err
				}
				result.Mentions = append(result.Mentions, ref)
				handles = append(handles, ref.Handle())
			}
			if msg.Metadata == nil {
				msg.Metadata = make(map[string]interface{})
			}
			msg.Metadata["mentions"] = handles

			id, err := tx.InsertMessage(ctx, msg)
			if err != nil {
				return err
			}
			return tx.InsertMentions(ctx, id, result.Mentions)
		})
	})
	if err != nil {
		return nil, err
	}

	for _, token := range result.DroppedMentions {
		e.logger.Warn("dropped mention of non-member",
			zap.String("channel", p.Channel),
			zap.Int64("message_id", msg.ID),
			zap.String("token", token))
	}
	result.IndexDegraded = e.indexBestEffort(ctx, msg)
	e.tracer.RecordMetric("messages.sent", 1, map[string]string{"channel": p.Channel})
	return result, nil
}

// resolveThread validates a thread reference and normalizes it to the
// root: replying to a reply threads under the original root.
func resolveThread(ctx context.Context, tx *store.Tx, channel, thread string) (string, error) {
	if thread == "" {
		return "", nil
	}
	rootID, err := strconv.ParseInt(thread, 10, 64)
	if err != nil {
		return "", wefterr.New(wefterr.KindInvalidInput, "thread %q is not a message id", thread)
	}
	root, err := tx.GetMessage(ctx, rootID)
	if err != nil {
		if wefterr.IsKind(err, wefterr.KindNotFound) {
			return "", wefterr.New(wefterr.KindInvalidInput, "thread root %s does not exist", thread)
		}
		return "", err
	}
	if root.Channel != channel {
		return "", wefterr.New(wefterr.KindInvalidInput,
			"thread root %s belongs to another channel", thread)
	}
	if root.Thread != "" {
		return root.Thread, nil
	}
	return thread, nil
}

// indexBestEffort writes the vector for msg and reports degradation.
func (e *Engine) indexBestEffort(ctx context.Context, msg *types.Message) bool {
	if e.vectors == nil {
		return false
	}
	if err := e.vectors.IndexMessage(ctx, msg); err != nil {
		e.logger.Warn("vector index write failed, semantic search degraded",
			zap.Int64("message_id", msg.ID),
			zap.Error(err))
		return true
	}
	return false
}

// Edit replaces a message's content. Only the sender may edit, and
// deleted messages stay deleted.
func (e *Engine) Edit(ctx context.Context, id int64, editor types.AgentRef, content string) (*types.Message, error) {
	ctx, span := e.tracer.StartSpan(ctx, "messages.edit")
	defer e.tracer.EndSpan(span)

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, wefterr.New(wefterr.KindInvalidInput, "message content is empty")
	}

	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		msg, err := tx.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if msg.Deleted() {
			return wefterr.New(wefterr.KindConflict, "message %d is deleted", id)
		}
		if msg.Sender() != editor {
			return wefterr.New(wefterr.KindPermissionDenied,
				"only the sender may edit message %d", id)
		}
		return tx.UpdateMessageContent(ctx, id, content)
	})
	if err != nil {
		return nil, err
	}

	msg, err := e.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	e.indexBestEffort(ctx, msg)
	return msg, nil
}

// Delete soft-deletes a message. The sender may always delete their
// own; channel managers may delete anything in their channel. Deleting
// twice is a no-op.
func (e *Engine) Delete(ctx context.Context, id int64, actor types.AgentRef) error {
	ctx, span := e.tracer.StartSpan(ctx, "messages.delete")
	defer e.tracer.EndSpan(span)

	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		msg, err := tx.GetMessage(ctx, id)
		if err != nil {
			return err
		}
		if msg.Deleted() {
			return nil
		}
		if msg.Sender() != actor {
			m, err := tx.GetMembership(ctx, msg.Channel, actor)
			if err != nil || !m.CanManage {
				return wefterr.New(wefterr.KindPermissionDenied,
					"%s may not delete message %d", actor.Handle(), id)
			}
		}
		return tx.SoftDeleteMessage(ctx, id, actor.Handle())
	})
	if err != nil {
		return err
	}

	if e.vectors != nil {
		if err := e.vectors.RemoveMessage(ctx, id); err != nil {
			e.logger.Warn("vector removal failed",
				zap.Int64("message_id", id),
				zap.Error(err))
		}
	}
	return nil
}

// Get loads one message. Non-members of its channel get NOT_FOUND, not
// a permission error, so the message's existence stays hidden.
func (e *Engine) Get(ctx context.Context, id int64, viewer types.AgentRef) (*types.Message, error) {
	msg, err := e.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	isMember, err := e.store.IsMember(ctx, msg.Channel, viewer)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, wefterr.New(wefterr.KindNotFound, "message %d not found", id)
	}
	return msg, nil
}

// List returns channel messages for a member, newest first.
func (e *Engine) List(ctx context.Context, viewer types.AgentRef, q store.MessageQuery) ([]types.Message, error) {
	ctx, span := e.tracer.StartSpan(ctx, "messages.list")
	defer e.tracer.EndSpan(span)

	if _, err := e.store.GetChannel(ctx, q.Channel); err != nil {
		return nil, err
	}
	isMember, err := e.store.IsMember(ctx, q.Channel, viewer)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, wefterr.New(wefterr.KindPermissionDenied,
			"%s is not a member of %s", viewer.Handle(), q.Channel)
	}
	return e.store.ListMessages(ctx, q)
}

// Thread returns a thread's root followed by its replies in
// chronological order. The viewer must be a channel member.
func (e *Engine) Thread(ctx context.Context, viewer types.AgentRef, rootID int64) ([]types.Message, error) {
	ctx, span := e.tracer.StartSpan(ctx, "messages.thread")
	defer e.tracer.EndSpan(span)

	root, err := e.Get(ctx, rootID, viewer)
	if err != nil {
		return nil, err
	}
	// Asking for a reply resolves to its root's thread.
	if root.Thread != "" {
		realRoot, err := strconv.ParseInt(root.Thread, 10, 64)
		if err == nil {
			if r, err := e.Get(ctx, realRoot, viewer); err == nil {
				root = r
			}
		}
	}
	replies, err := e.store.ListMessages(ctx, store.MessageQuery{
		Channel: root.Channel,
		Thread:  strconv.FormatInt(root.ID, 10),
	})
	if err != nil {
		return nil, err
	}

	out := make([]types.Message, 0, len(replies)+1)
	out = append(out, *root)
	// ListMessages is newest first; threads read top down.
	for i := len(replies) - 1; i >= 0; i-- {
		out = append(out, replies[i])
	}
	return out, nil
}

// Mentions returns messages mentioning the agent in channels it still
// belongs to, newest first.
func (e *Engine) Mentions(ctx context.Context, agent types.AgentRef, limit int) ([]types.Message, error) {
	return e.store.ListMentions(ctx, agent, limit)
}
