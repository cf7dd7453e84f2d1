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

package semantic

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/weft/pkg/types"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewIndex(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return idx
}

func testMessage(id int64, content string, age time.Duration) *types.Message {
	return &types.Message{
		ID:          id,
		Channel:     "global:dev-chat",
		SenderName:  "alice",
		SenderScope: types.ScopeGlobal,
		Content:     content,
		Timestamp:   time.Now().Add(-age),
	}
}

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder(0)
	assert.Equal(t, DefaultHashDimension, e.Dimension())

	a, err := e.Embed(context.Background(), "rotate the API keys")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "rotate the API keys")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultHashDimension)

	// Unit norm within float tolerance.
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	// Empty input embeds to the zero vector without error.
	z, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range z {
		assert.Zero(t, v)
	}
}

func TestTruncateRespectsTokenBudget(t *testing.T) {
	tc := getTokenCounter()
	long := strings.Repeat("migration rollback plan ", 200)
	require.Greater(t, tc.Count(long), 50)

	short := tc.Truncate(long, 50)
	assert.LessOrEqual(t, tc.Count(short), 50)
	assert.True(t, strings.HasPrefix(long, short))

	// Text under the budget passes through untouched.
	assert.Equal(t, "small note", tc.Truncate("small note", 50))
}

func TestIndexAndSearchBySimilarity(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexMessage(ctx, testMessage(1, "database migration rollback plan for the orders table", time.Hour)))
	require.NoError(t, idx.IndexMessage(ctx, testMessage(2, "lunch is in the fridge", time.Hour)))
	require.NoError(t, idx.IndexMessage(ctx, testMessage(3, "frontend build pipeline broken again", time.Hour)))
	assert.Equal(t, 3, idx.Count())

	matches, err := idx.Search(ctx, Request{
		Text:    "rollback the database migration",
		Profile: "similarity",
		Limit:   10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, int64(1), matches[0].MessageID)
	assert.Greater(t, matches[0].Similarity, matches[len(matches)-1].Similarity)
}

func TestSearchRecentProfilePrefersFresh(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	// Same content at very different ages: under the recent profile
	// the fresh copy must win.
	require.NoError(t, idx.IndexMessage(ctx, testMessage(1, "deploy checklist for the payment service", 30*24*time.Hour)))
	require.NoError(t, idx.IndexMessage(ctx, testMessage(2, "deploy checklist for the payment service", time.Minute)))

	matches, err := idx.Search(ctx, Request{
		Text:    "payment service deploy checklist",
		Profile: "recent",
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, int64(2), matches[0].MessageID)
	assert.Greater(t, matches[0].Recency, matches[1].Recency)
}

func TestSearchHalfLifeOverride(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexMessage(ctx, testMessage(1, "deploy checklist for the payment service", 24*time.Hour)))

	// A day-old message at the default 168h half-life decays mildly;
	// overriding to a 1h half-life collapses its recency score.
	baseline, err := idx.Search(ctx, Request{Text: "payment deploy", Limit: 5})
	require.NoError(t, err)
	require.Len(t, baseline, 1)

	overridden, err := idx.Search(ctx, Request{Text: "payment deploy", HalfLifeHours: 1, Limit: 5})
	require.NoError(t, err)
	require.Len(t, overridden, 1)
	assert.Less(t, overridden[0].Recency, baseline[0].Recency)
}

func TestSearchEdgeCases(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	// Empty index and empty query both return nothing.
	matches, err := idx.Search(ctx, Request{Text: "anything", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = idx.Search(ctx, Request{Text: "", Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = idx.Search(ctx, Request{Text: "x", Profile: "bogus"})
	assert.Error(t, err)
}

func TestDeletedAndBlankMessagesNotIndexed(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	deleted := testMessage(1, types.DeletedContentSentinel, time.Hour)
	deleted.Metadata = map[string]interface{}{"deleted": map[string]interface{}{"by": "alice"}}
	require.NoError(t, idx.IndexMessage(ctx, deleted))
	require.NoError(t, idx.IndexMessage(ctx, testMessage(2, "", time.Hour)))
	assert.Zero(t, idx.Count())
}

func TestRemoveMessage(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexMessage(ctx, testMessage(1, "rotate the signing keys", time.Hour)))
	require.NoError(t, idx.IndexMessage(ctx, testMessage(2, "weekly sync notes", time.Hour)))
	require.NoError(t, idx.RemoveMessage(ctx, 1))
	assert.Equal(t, 1, idx.Count())

	matches, err := idx.Search(ctx, Request{Text: "signing keys", Profile: "similarity", Limit: 5})
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, int64(1), m.MessageID)
	}
}

func TestRebuild(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.IndexMessage(ctx, testMessage(99, "stale leftover vector", time.Hour)))

	batches := [][]types.Message{
		{*testMessage(1, "first rebuilt message", time.Hour), *testMessage(2, "second rebuilt message", time.Hour)},
		{*testMessage(3, "third rebuilt message", time.Hour)},
		{},
	}
	i := 0
	n, err := idx.Rebuild(ctx, func(ctx context.Context) ([]types.Message, error) {
		b := batches[i]
		i++
		return b, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, idx.Count())

	matches, err := idx.Search(ctx, Request{Text: "stale leftover", Profile: "similarity", Limit: 5})
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, int64(99), m.MessageID)
	}
}

func TestPersistentIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := NewIndex(Config{Path: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, idx.IndexMessage(ctx, testMessage(7, "incident retro action items", time.Hour)))

	reopened, err := NewIndex(Config{Path: dir}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Count())
}
