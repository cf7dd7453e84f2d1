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

package sessionctx

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "weft.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, zaptest.NewLogger(t), opts...), st
}

func TestRegisterDetectsProject(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	p, err := st.RegisterProject(ctx, "/repos/alpha")
	require.NoError(t, err)

	sess, err := eng.Register(ctx, RegisterParams{ID: "s1", CWD: "/repos/alpha/src/deep"})
	require.NoError(t, err)
	assert.Equal(t, types.SessionProject, sess.Scope)
	assert.Equal(t, p.ID, sess.ProjectID)
	assert.Equal(t, "alpha", sess.ProjectName)

	// A sibling directory sharing the prefix is not inside the project.
	sess, err = eng.Register(ctx, RegisterParams{ID: "s2", CWD: "/repos/alpha-2"})
	require.NoError(t, err)
	assert.Equal(t, types.SessionGlobal, sess.Scope)
	assert.Empty(t, sess.ProjectID)
}

func TestRegisterPicksDeepestRoot(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	_, err := st.RegisterProject(ctx, "/repos/alpha")
	require.NoError(t, err)
	nested, err := st.RegisterProject(ctx, "/repos/alpha/vendor/tool")
	require.NoError(t, err)

	sess, err := eng.Register(ctx, RegisterParams{ID: "s1", CWD: "/repos/alpha/vendor/tool/cmd"})
	require.NoError(t, err)
	assert.Equal(t, nested.ID, sess.ProjectID)
}

func TestRegisterExplicitProjectPath(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	// The explicit path registers the project on the fly.
	sess, err := eng.Register(ctx, RegisterParams{ID: "s1", CWD: "/elsewhere", ProjectPath: "/repos/fresh"})
	require.NoError(t, err)
	assert.Equal(t, types.SessionProject, sess.Scope)

	p, err := st.GetProjectByPath(ctx, "/repos/fresh")
	require.NoError(t, err)
	assert.Equal(t, p.ID, sess.ProjectID)

	_, err = eng.Register(ctx, RegisterParams{CWD: "/x"})
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))
}

func TestRegisterPreservesTranscript(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Register(ctx, RegisterParams{ID: "s1", TranscriptPath: "/tmp/t1.jsonl"})
	require.NoError(t, err)

	// Re-registering without a transcript keeps the recorded one.
	sess, err := eng.Register(ctx, RegisterParams{ID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/t1.jsonl", sess.TranscriptPath)
}

func TestGetServesFromCacheInsideTTL(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Register(ctx, RegisterParams{ID: "s1", CWD: "/nowhere"})
	require.NoError(t, err)

	// Mutate the row behind the cache.
	require.NoError(t, st.SaveSession(ctx, &types.Session{ID: "s1", TranscriptPath: "/tmp/t.jsonl"}))

	got, err := eng.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got.TranscriptPath)

	// Past the TTL the next read goes back to the store.
	eng.cache.now = func() time.Time { return time.Now().Add(2 * defaultCacheTTL) }
	got, err = eng.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/t.jsonl", got.TranscriptPath)
}

func TestRegisterRefreshesCache(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	p, err := st.RegisterProject(ctx, "/repos/alpha")
	require.NoError(t, err)

	_, err = eng.Register(ctx, RegisterParams{ID: "s1", CWD: "/nowhere"})
	require.NoError(t, err)
	got, err := eng.Get(ctx, "s1")
	require.NoError(t, err)
	require.Empty(t, got.ProjectID)

	_, err = eng.Register(ctx, RegisterParams{ID: "s1", CWD: "/repos/alpha"})
	require.NoError(t, err)
	got, err = eng.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ProjectID)
}

func TestSessionCacheEvictsOldest(t *testing.T) {
	c := newSessionCache(2, time.Minute)
	c.put("a", &types.Session{ID: "a"})
	c.put("b", &types.Session{ID: "b"})

	_, ok := c.get("a") // a is now the most recent
	require.True(t, ok)

	c.put("c", &types.Session{ID: "c"})
	assert.Equal(t, 2, c.len())
	_, ok = c.get("b")
	assert.False(t, ok)
	_, ok = c.get("a")
	assert.True(t, ok)

	c.invalidate("a")
	_, ok = c.get("a")
	assert.False(t, ok)
}

type metricTracer struct {
	observability.NoOpTracer
	mu    sync.Mutex
	names []string
}

func (m *metricTracer) RecordMetric(name string, value float64, tags map[string]string) {
	m.mu.Lock()
	m.names = append(m.names, name)
	m.mu.Unlock()
}

func TestGetRecordsCacheMetrics(t *testing.T) {
	tracer := &metricTracer{}
	eng, st := newTestEngine(t, WithTracer(tracer))
	ctx := context.Background()

	// Written behind the engine, so the first read cannot be cached.
	require.NoError(t, st.SaveSession(ctx, &types.Session{ID: "s1"}))

	_, err := eng.Get(ctx, "s1")
	require.NoError(t, err)
	_, err = eng.Get(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, []string{"sessionctx.cache.miss", "sessionctx.cache.hit"}, tracer.names)
}

func TestResolveCallerPrecedence(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	p1, err := st.RegisterProject(ctx, "/repos/alpha")
	require.NoError(t, err)
	p2, err := st.RegisterProject(ctx, "/repos/beta")
	require.NoError(t, err)
	require.NoError(t, st.LinkProjects(ctx, p1.ID, p2.ID, types.LinkBidirectional))

	require.NoError(t, st.UpsertAgent(ctx, &types.Agent{Name: "bob"}))
	require.NoError(t, st.UpsertAgent(ctx, &types.Agent{Name: "bob", Scope: p1.ID}))
	require.NoError(t, st.UpsertAgent(ctx, &types.Agent{Name: "carol"}))
	require.NoError(t, st.UpsertAgent(ctx, &types.Agent{Name: "dave", Scope: p2.ID}))

	_, err = eng.Register(ctx, RegisterParams{ID: "s1", CWD: "/repos/alpha"})
	require.NoError(t, err)

	// The session's project shadows the global agent of the same name.
	bob, err := eng.ResolveCaller(ctx, "s1", "bob")
	require.NoError(t, err)
	assert.Equal(t, p1.ID, bob.Scope)

	// An explicit hint overrides that.
	bob, err = eng.ResolveCaller(ctx, "s1", "bob@global")
	require.NoError(t, err)
	assert.Equal(t, types.ScopeGlobal, bob.Scope)

	carol, err := eng.ResolveCaller(ctx, "s1", "carol")
	require.NoError(t, err)
	assert.Equal(t, types.ScopeGlobal, carol.Scope)

	// Only reachable through the project link.
	dave, err := eng.ResolveCaller(ctx, "s1", "dave")
	require.NoError(t, err)
	assert.Equal(t, p2.ID, dave.Scope)

	// A hint that holds no such agent falls back through the chain.
	carol, err = eng.ResolveCaller(ctx, "s1", "carol@beta")
	require.NoError(t, err)
	assert.Equal(t, types.ScopeGlobal, carol.Scope)

	_, err = eng.ResolveCaller(ctx, "s1", "ghost")
	assert.True(t, wefterr.IsKind(err, wefterr.KindNotFound))
	_, err = eng.ResolveCaller(ctx, "s1", "bad name")
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))
	_, err = eng.ResolveCaller(ctx, "s1", "bob@no-such-project")
	assert.True(t, wefterr.IsKind(err, wefterr.KindNotFound))
}

func TestResolveCallerHintForms(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	p, err := st.RegisterProject(ctx, "/repos/alpha")
	require.NoError(t, err)
	require.NoError(t, st.UpsertAgent(ctx, &types.Agent{Name: "bob", Scope: p.ID}))

	for _, hint := range []string{p.ID, "alpha", "/repos/alpha"} {
		got, err := eng.ResolveCaller(ctx, "", "bob@"+hint)
		require.NoError(t, err, "hint %q", hint)
		assert.Equal(t, p.ID, got.Scope, "hint %q", hint)
	}
}

func TestResolveCallerWithoutSession(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	p, err := st.RegisterProject(ctx, "/repos/alpha")
	require.NoError(t, err)
	require.NoError(t, st.UpsertAgent(ctx, &types.Agent{Name: "alice"}))
	require.NoError(t, st.UpsertAgent(ctx, &types.Agent{Name: "scoped", Scope: p.ID}))

	alice, err := eng.ResolveCaller(ctx, "", "alice")
	require.NoError(t, err)
	assert.Equal(t, types.ScopeGlobal, alice.Scope)

	// Without a session there is no project context to search.
	_, err = eng.ResolveCaller(ctx, "", "scoped")
	assert.True(t, wefterr.IsKind(err, wefterr.KindNotFound))
}

func TestRecordToolCallDedup(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	in := map[string]interface{}{"channel": "global:dev", "limit": 5}

	res, err := eng.RecordToolCall(ctx, "s1", "send_message", in)
	require.NoError(t, err)
	assert.Equal(t, store.ToolCallNew, res)

	// JSON-equivalent inputs digest identically.
	res, err = eng.RecordToolCall(ctx, "s1", "send_message",
		map[string]interface{}{"limit": float64(5), "channel": "global:dev"})
	require.NoError(t, err)
	assert.Equal(t, store.ToolCallDuplicate, res)

	res, err = eng.RecordToolCall(ctx, "s1", "send_message",
		map[string]interface{}{"channel": "global:dev", "limit": 6})
	require.NoError(t, err)
	assert.Equal(t, store.ToolCallNew, res)

	// Scoped by session and tool.
	res, err = eng.RecordToolCall(ctx, "s2", "send_message", in)
	require.NoError(t, err)
	assert.Equal(t, store.ToolCallNew, res)
	res, err = eng.RecordToolCall(ctx, "s1", "get_messages", in)
	require.NoError(t, err)
	assert.Equal(t, store.ToolCallNew, res)
}

func TestRecordToolCallWindowExpiry(t *testing.T) {
	eng, _ := newTestEngine(t, WithDedupWindow(40*time.Millisecond))
	ctx := context.Background()
	in := map[string]interface{}{"q": "deploy"}

	res, err := eng.RecordToolCall(ctx, "s1", "search", in)
	require.NoError(t, err)
	require.Equal(t, store.ToolCallNew, res)

	res, err = eng.RecordToolCall(ctx, "s1", "search", in)
	require.NoError(t, err)
	require.Equal(t, store.ToolCallDuplicate, res)

	time.Sleep(60 * time.Millisecond)
	res, err = eng.RecordToolCall(ctx, "s1", "search", in)
	require.NoError(t, err)
	assert.Equal(t, store.ToolCallNew, res)
}

func TestCanonicalDigestStable(t *testing.T) {
	d1, err := canonicalDigest(map[string]interface{}{
		"b": 1,
		"a": map[string]interface{}{"y": 2, "x": 1},
	})
	require.NoError(t, err)
	d2, err := canonicalDigest(map[string]interface{}{
		"a": map[string]interface{}{"x": 1, "y": 2},
		"b": 1,
	})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	d3, err := canonicalDigest(nil)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestProjectPassthroughs(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	p1, err := eng.RegisterProject(ctx, "/repos/alpha")
	require.NoError(t, err)
	p2, err := eng.RegisterProject(ctx, "/repos/beta")
	require.NoError(t, err)
	require.NoError(t, eng.LinkProjects(ctx, p1.ID, p2.ID, types.LinkBidirectional))

	all, err := eng.Projects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	linked, err := eng.LinkedProjects(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p2.ID}, linked)

	// Self-links are rejected at the store layer.
	err = eng.LinkProjects(ctx, p1.ID, p1.ID, types.LinkBidirectional)
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))
}
