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

package messages

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

var (
	alice = types.AgentRef{Name: "alice", Scope: types.ScopeGlobal}
	bob   = types.AgentRef{Name: "bob", Scope: types.ScopeGlobal}
	carol = types.AgentRef{Name: "carol", Scope: types.ScopeGlobal}
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "weft.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, zaptest.NewLogger(t), opts...), st
}

func seedChannel(t *testing.T, st *store.Store, handle string, members ...types.AgentRef) {
	t.Helper()
	ctx := context.Background()
	err := st.CreateChannel(ctx, &types.Channel{
		Handle: handle,
		Type:   types.TypeChannel,
		Access: types.AccessOpen,
		Scope:  types.ScopeGlobal,
		Name:   "chan",
	})
	require.NoError(t, err)
	for _, ref := range members {
		addMember(t, st, handle, ref, true)
	}
}

func addMember(t *testing.T, st *store.Store, handle string, ref types.AgentRef, canSend bool) {
	t.Helper()
	_, err := st.AddMember(context.Background(), &types.Membership{
		Channel:    handle,
		AgentName:  ref.Name,
		AgentScope: ref.Scope,
		InvitedBy:  types.InvitedBySelf,
		Source:     types.SourceManual,
		CanLeave:   true,
		CanSend:    canSend,
	})
	require.NoError(t, err)
}

func TestSendBasics(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice)

	res, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "hello"})
	require.NoError(t, err)
	assert.Positive(t, res.Message.ID)
	assert.False(t, res.IndexDegraded)

	_, err = e.Send(ctx, SendParams{Channel: "global:general", Sender: bob, Content: "hi"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindPermissionDenied))

	_, err = e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "   "})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))

	_, err = e.Send(ctx, SendParams{Channel: "global:missing", Sender: alice, Content: "x"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindNotFound))

	bad := 1.5
	_, err = e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "x", Confidence: &bad})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))
}

func TestSendToArchivedChannel(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:old", alice)
	require.NoError(t, st.SetChannelArchived(ctx, "global:old", true))

	_, err := e.Send(ctx, SendParams{Channel: "global:old", Sender: alice, Content: "x"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindPermissionDenied))
}

func TestSendWithoutSendBit(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:readonly")
	addMember(t, st, "global:readonly", alice, false)

	_, err := e.Send(ctx, SendParams{Channel: "global:readonly", Sender: alice, Content: "x"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindPermissionDenied))
}

func TestSendDropsInvalidMentions(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice)

	// bob is not a member and charlie does not exist at all: the send
	// still goes through with both tokens dropped.
	res, err := e.Send(ctx, SendParams{
		Channel: "global:general",
		Sender:  alice,
		Content: "hey @bob and @charlie",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Mentions)
	assert.ElementsMatch(t, []string{"bob", "charlie"}, res.DroppedMentions)

	stored, err := e.Get(ctx, res.Message.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{}, stored.Metadata["mentions"])
}

func TestSendRecordsValidMentions(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice, bob)

	res, err := e.Send(ctx, SendParams{
		Channel: "global:general",
		Sender:  alice,
		Content: "@bob please review, cc @bob again",
	})
	require.NoError(t, err)
	require.Len(t, res.Mentions, 1)
	assert.Equal(t, bob, res.Mentions[0])
	assert.Empty(t, res.DroppedMentions)

	stored, err := e.Get(ctx, res.Message.ID, bob)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"bob"}, stored.Metadata["mentions"])

	mentioned, err := e.Mentions(ctx, bob, 10)
	require.NoError(t, err)
	require.Len(t, mentioned, 1)
	assert.Equal(t, res.Message.ID, mentioned[0].ID)
}

func TestThreading(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice, bob)
	seedChannel(t, st, "global:other", alice)

	root, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "thread root"})
	require.NoError(t, err)
	rootID := strconv.FormatInt(root.Message.ID, 10)

	reply, err := e.Send(ctx, SendParams{
		Channel: "global:general",
		Sender:  bob,
		Content: "first reply",
		Thread:  rootID,
	})
	require.NoError(t, err)
	assert.Equal(t, rootID, reply.Message.Thread)

	// Replying to a reply still threads under the root.
	nested, err := e.Send(ctx, SendParams{
		Channel: "global:general",
		Sender:  alice,
		Content: "nested reply",
		Thread:  strconv.FormatInt(reply.Message.ID, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, rootID, nested.Message.Thread)

	// Bad thread references are rejected.
	_, err = e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "x", Thread: "9999"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))
	_, err = e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "x", Thread: "not-a-number"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))
	_, err = e.Send(ctx, SendParams{Channel: "global:other", Sender: alice, Content: "x", Thread: rootID})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))

	// The thread view reads root first, then replies in order.
	view, err := e.Thread(ctx, bob, root.Message.ID)
	require.NoError(t, err)
	require.Len(t, view, 3)
	assert.Equal(t, "thread root", view[0].Content)
	assert.Equal(t, "first reply", view[1].Content)
	assert.Equal(t, "nested reply", view[2].Content)

	// Asking for the thread via a reply resolves to the same view.
	viaReply, err := e.Thread(ctx, bob, reply.Message.ID)
	require.NoError(t, err)
	require.Len(t, viaReply, 3)
	assert.Equal(t, view[0].ID, viaReply[0].ID)
}

func TestEditRules(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice, bob)

	sent, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "draft"})
	require.NoError(t, err)

	edited, err := e.Edit(ctx, sent.Message.ID, alice, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditedAt)

	_, err = e.Edit(ctx, sent.Message.ID, bob, "hijack")
	assert.True(t, wefterr.IsKind(err, wefterr.KindPermissionDenied))

	_, err = e.Edit(ctx, sent.Message.ID, alice, "  ")
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))

	require.NoError(t, e.Delete(ctx, sent.Message.ID, alice))
	_, err = e.Edit(ctx, sent.Message.ID, alice, "too late")
	assert.True(t, wefterr.IsKind(err, wefterr.KindConflict))
}

func TestDeleteRules(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice, bob)
	_, err := st.AddMember(ctx, &types.Membership{
		Channel:    "global:general",
		AgentName:  carol.Name,
		AgentScope: carol.Scope,
		InvitedBy:  types.InvitedBySelf,
		Source:     types.SourceManual,
		CanLeave:   true,
		CanSend:    true,
		CanManage:  true,
	})
	require.NoError(t, err)

	sent, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "oops"})
	require.NoError(t, err)

	// A plain member cannot delete someone else's message.
	err = e.Delete(ctx, sent.Message.ID, bob)
	assert.True(t, wefterr.IsKind(err, wefterr.KindPermissionDenied))

	// A manager can.
	require.NoError(t, e.Delete(ctx, sent.Message.ID, carol))

	got, err := e.Get(ctx, sent.Message.ID, alice)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.Equal(t, types.DeletedContentSentinel, got.Content)

	// Deleting twice is a no-op.
	require.NoError(t, e.Delete(ctx, sent.Message.ID, carol))
}

func TestGetHidesFromOutsiders(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice)

	sent, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "secret"})
	require.NoError(t, err)

	_, err = e.Get(ctx, sent.Message.ID, bob)
	assert.True(t, wefterr.IsKind(err, wefterr.KindNotFound))
}

func TestListRequiresMembership(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice)
	_, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "one"})
	require.NoError(t, err)
	_, err = e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "two"})
	require.NoError(t, err)

	msgs, err := e.List(ctx, alice, store.MessageQuery{Channel: "global:general", Limit: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Content)

	_, err = e.List(ctx, bob, store.MessageQuery{Channel: "global:general"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindPermissionDenied))
}

func TestExtractMentionTokens(t *testing.T) {
	tests := []struct {
		content string
		want    []string
	}{
		{"no mentions here", nil},
		{"hi @alice", []string{"alice"}},
		{"@alice @alice twice", []string{"alice"}},
		{"scoped @bob:0123456789abcdef0123456789abcdef ok", []string{"bob:0123456789abcdef0123456789abcdef"}},
		{"punctuation @carol, and @dave.", []string{"carol", "dave"}},
		{"email-ish not@amention", []string{"amention"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractMentionTokens(tt.content), "content: %s", tt.content)
	}
}
