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

package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/semantic"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/wefterr"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "weft.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunOnceSweeps(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// One idle session past retention, one fresh.
	require.NoError(t, st.SaveSession(ctx, &types.Session{
		ID: "stale", UpdatedAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, st.SaveSession(ctx, &types.Session{ID: "fresh"}))

	// Dedup records age out against ToolCallRetention.
	_, err := st.RecordToolCall(ctx, "stale", "weft_send_message", "d1", time.Minute)
	require.NoError(t, err)
	_, err = st.RecordToolCall(ctx, "stale", "weft_send_message", "d2", time.Minute)
	require.NoError(t, err)

	// Three reconcile runs for one agent; keep two.
	agent := types.AgentRef{Name: "alice", Scope: types.ScopeGlobal}
	for i, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, time.Hour} {
		require.NoError(t, st.AppendSyncRecord(ctx, &store.SyncRecord{
			Agent: agent, Source: "config", Digest: "d",
			CreatedAt: now.Add(-age - time.Duration(i)*time.Second),
		}))
	}

	// One span and one metric past trace retention, one fresh span.
	old := now.Add(-100 * time.Hour)
	require.NoError(t, st.WriteSpans(ctx, []*observability.Span{
		{SpanID: "s-old", TraceID: "t1", Name: "channels.create", StartTime: old, EndTime: old},
		{SpanID: "s-new", TraceID: "t2", Name: "channels.create", StartTime: now, EndTime: now},
	}))
	require.NoError(t, st.WriteMetrics(ctx, []observability.Metric{
		{Name: "session_cache.hit", Value: 1, Timestamp: old},
	}))

	time.Sleep(20 * time.Millisecond)
	sched := New(st, Config{
		SessionRetention:  24 * time.Hour,
		ToolCallRetention: time.Millisecond,
		TraceRetention:    72 * time.Hour,
		SyncHistoryKeep:   2,
	}, zaptest.NewLogger(t))

	sweep, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sweep.Sessions)
	assert.Equal(t, int64(2), sweep.ToolCalls)
	assert.Equal(t, int64(1), sweep.SyncRuns)
	assert.Equal(t, int64(2), sweep.Traces)
	assert.Empty(t, sweep.Errors)
	assert.Positive(t, sweep.Took)

	_, err = st.GetSession(ctx, "stale")
	assert.True(t, wefterr.IsKind(err, wefterr.KindNotFound))
	_, err = st.GetSession(ctx, "fresh")
	assert.NoError(t, err)
}

func TestRunOnceSkipsDisabledTasks(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-100 * time.Hour)
	require.NoError(t, st.WriteSpans(ctx, []*observability.Span{
		{SpanID: "s-old", TraceID: "t1", Name: "store.insert_message", StartTime: old, EndTime: old},
	}))
	require.NoError(t, st.AppendSyncRecord(ctx, &store.SyncRecord{
		Agent: types.AgentRef{Name: "alice", Scope: types.ScopeGlobal},
		Source: "config", Digest: "d", CreatedAt: old,
	}))

	// Zero TraceRetention and SyncHistoryKeep leave both tables alone.
	sched := New(st, Config{}, zaptest.NewLogger(t))
	sweep, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sweep.Traces)
	assert.Zero(t, sweep.SyncRuns)
}

func TestRunOnceRebuildsIndex(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateChannel(ctx, &types.Channel{
		Handle: "global:dev", Type: types.TypeChannel,
		Access: types.AccessOpen, Scope: types.ScopeGlobal, Name: "dev",
	}))

	idx, err := semantic.NewIndex(semantic.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	var ids []int64
	for _, content := range []string{"release is cut", "tags pushed", "ci is green"} {
		msg := &types.Message{
			Channel: "global:dev", SenderName: "alice",
			SenderScope: types.ScopeGlobal, Content: content,
		}
		id, err := st.InsertMessage(ctx, msg)
		require.NoError(t, err)
		require.NoError(t, idx.IndexMessage(ctx, msg))
		ids = append(ids, id)
	}
	require.Equal(t, 3, idx.Count())

	// Soft delete bypassing the message engine, as a crashed process
	// would: the vector is now stale.
	require.NoError(t, st.SoftDeleteMessage(ctx, ids[1], "alice"))

	sched := New(st, Config{RebuildIndex: true}, zaptest.NewLogger(t), WithIndex(idx))
	sweep, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, sweep.Errors)
	assert.Equal(t, 2, sweep.Reindexed)
	assert.Equal(t, 2, idx.Count())
}

func TestRunOnceReportsBusy(t *testing.T) {
	sched := New(newTestStore(t), Config{}, zaptest.NewLogger(t))
	sched.running = true

	_, err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, wefterr.IsKind(err, wefterr.KindBusy))

	sched.running = false
	_, err = sched.RunOnce(context.Background())
	require.NoError(t, err)
}

func TestSchedulerRunsOnSchedule(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveSession(ctx, &types.Session{
		ID: "stale", UpdatedAt: time.Now().Add(-48 * time.Hour),
	}))

	sched := New(st, Config{Schedule: "@every 50ms"}, zaptest.NewLogger(t))
	require.NoError(t, sched.Start())
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	require.Eventually(t, func() bool {
		_, err := st.GetSession(ctx, "stale")
		return wefterr.IsKind(err, wefterr.KindNotFound)
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	sched := New(newTestStore(t), Config{Schedule: "whenever"}, zaptest.NewLogger(t))
	err := sched.Start()
	require.Error(t, err)
	assert.True(t, wefterr.IsKind(err, wefterr.KindInvalidInput))
}

func TestConfigDefaults(t *testing.T) {
	sched := New(newTestStore(t), Config{}, nil)
	assert.Equal(t, defaultSchedule, sched.cfg.Schedule)
	assert.Equal(t, defaultSessionRetention, sched.cfg.SessionRetention)
	assert.Equal(t, sched.cfg.SessionRetention, sched.cfg.ToolCallRetention)
}
