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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/weft/pkg/semantic"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

// fakeVectorizer scripts semantic results without a real index.
type fakeVectorizer struct {
	matches []semantic.Match
	err     error
	indexed []int64
	removed []int64
	lastReq semantic.Request
}

func (f *fakeVectorizer) IndexMessage(_ context.Context, msg *types.Message) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, msg.ID)
	return nil
}

func (f *fakeVectorizer) RemoveMessage(_ context.Context, id int64) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeVectorizer) Search(_ context.Context, req semantic.Request) ([]semantic.Match, error) {
	f.lastReq = req
	return f.matches, f.err
}

func TestSearchLexical(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice)

	_, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "rotate the signing keys"})
	require.NoError(t, err)
	_, err = e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "lunch plans"})
	require.NoError(t, err)

	res, err := e.Search(ctx, SearchParams{Viewer: alice, Query: "signing keys"})
	require.NoError(t, err)
	assert.Equal(t, ModeLexical, res.Mode)
	assert.False(t, res.Degraded)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "rotate the signing keys", res.Hits[0].Message.Content)

	_, err = e.Search(ctx, SearchParams{Viewer: alice, Query: "x", Mode: "fuzzy"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))
}

func TestSemanticSearchFiltersAfterRanking(t *testing.T) {
	fake := &fakeVectorizer{}
	e, st := newTestEngine(t, WithVectorizer(fake))
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice, bob)
	seedChannel(t, st, "global:hidden", bob)

	visible, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: bob, Content: "deploy checklist"})
	require.NoError(t, err)
	hidden, err := e.Send(ctx, SendParams{Channel: "global:hidden", Sender: bob, Content: "secret deploy notes"})
	require.NoError(t, err)
	gone, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: bob, Content: "old deploy scratchpad"})
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, gone.Message.ID, bob))

	// The index ranks all three plus one stray id; only the visible
	// live message survives filtering.
	fake.matches = []semantic.Match{
		{MessageID: hidden.Message.ID, Score: 0.9},
		{MessageID: gone.Message.ID, Score: 0.8},
		{MessageID: visible.Message.ID, Score: 0.7},
		{MessageID: 424242, Score: 0.6},
	}

	res, err := e.Search(ctx, SearchParams{
		Viewer: alice,
		Query:  "deploy",
		Mode:   ModeSemantic,
		Limit:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, ModeSemantic, res.Mode)
	assert.False(t, res.Degraded)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, visible.Message.ID, res.Hits[0].Message.ID)
	assert.Equal(t, 0.7, res.Hits[0].Score)
}

func TestSearchDefaultsApplied(t *testing.T) {
	fake := &fakeVectorizer{}
	e, st := newTestEngine(t, WithVectorizer(fake), WithSearchDefaults("recent", 48))
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice)

	_, err := e.Search(ctx, SearchParams{Viewer: alice, Query: "deploy", Mode: ModeSemantic})
	require.NoError(t, err)
	assert.Equal(t, "recent", fake.lastReq.Profile)
	assert.Equal(t, float64(48), fake.lastReq.HalfLifeHours)

	// A profile named on the request wins over the configured default.
	_, err = e.Search(ctx, SearchParams{Viewer: alice, Query: "deploy", Mode: ModeSemantic, Profile: "quality"})
	require.NoError(t, err)
	assert.Equal(t, "quality", fake.lastReq.Profile)
}

func TestSemanticSearchRespectsFilters(t *testing.T) {
	fake := &fakeVectorizer{}
	e, st := newTestEngine(t, WithVectorizer(fake))
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice, bob)

	low := 0.2
	first, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: bob, Content: "observation one", Confidence: &low, IntentType: "observation"})
	require.NoError(t, err)
	high := 0.9
	second, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "observation two", Confidence: &high, IntentType: "observation"})
	require.NoError(t, err)

	fake.matches = []semantic.Match{
		{MessageID: first.Message.ID, Score: 0.9},
		{MessageID: second.Message.ID, Score: 0.8},
	}

	minConf := 0.5
	res, err := e.Search(ctx, SearchParams{
		Viewer:        alice,
		Query:         "observation",
		Mode:          ModeSemantic,
		MinConfidence: &minConf,
		Senders:       []string{"alice"},
		IntentType:    "observation",
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, second.Message.ID, res.Hits[0].Message.ID)
}

func TestSemanticSearchDegradesToLexical(t *testing.T) {
	fake := &fakeVectorizer{err: errors.New("index corrupt")}
	e, st := newTestEngine(t, WithVectorizer(fake))
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice)

	// Index writes fail too, so the send reports degradation but still
	// persists.
	sent, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "find me anyway"})
	require.NoError(t, err)
	assert.True(t, sent.IndexDegraded)

	res, err := e.Search(ctx, SearchParams{Viewer: alice, Query: "anyway", Mode: ModeSemantic})
	require.NoError(t, err)
	assert.Equal(t, ModeLexical, res.Mode)
	assert.True(t, res.Degraded)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, sent.Message.ID, res.Hits[0].Message.ID)
}

func TestSemanticSearchWithoutIndexDegrades(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice)
	_, err := e.Send(ctx, SendParams{Channel: "global:general", Sender: alice, Content: "plain lexical fallback"})
	require.NoError(t, err)

	res, err := e.Search(ctx, SearchParams{Viewer: alice, Query: "fallback", Mode: ModeSemantic})
	require.NoError(t, err)
	assert.Equal(t, ModeLexical, res.Mode)
	assert.True(t, res.Degraded)
	require.Len(t, res.Hits, 1)
}

func TestSendAndSearchThroughRealIndex(t *testing.T) {
	idx, err := semantic.NewIndex(semantic.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	e, st := newTestEngine(t, WithVectorizer(idx))
	ctx := context.Background()
	seedChannel(t, st, "global:general", alice, bob)

	sent, err := e.Send(ctx, SendParams{
		Channel: "global:general",
		Sender:  bob,
		Content: "database migration rollback plan",
	})
	require.NoError(t, err)
	assert.False(t, sent.IndexDegraded)
	_, err = e.Send(ctx, SendParams{Channel: "global:general", Sender: bob, Content: "lunch is in the fridge"})
	require.NoError(t, err)

	res, err := e.Search(ctx, SearchParams{
		Viewer:  alice,
		Query:   "rollback the database migration",
		Mode:    ModeSemantic,
		Profile: "similarity",
		Limit:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, ModeSemantic, res.Mode)
	assert.False(t, res.Degraded)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, sent.Message.ID, res.Hits[0].Message.ID)
	assert.Greater(t, res.Hits[0].Score, 0.0)

	// Deleting removes the vector as well.
	require.NoError(t, e.Delete(ctx, sent.Message.ID, bob))
	res, err = e.Search(ctx, SearchParams{
		Viewer: alice, Query: "rollback the database migration",
		Mode: ModeSemantic, Profile: "similarity", Limit: 5,
	})
	require.NoError(t, err)
	for _, h := range res.Hits {
		assert.NotEqual(t, sent.Message.ID, h.Message.ID)
	}
}
