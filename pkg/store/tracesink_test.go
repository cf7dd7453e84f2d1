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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/observability"
)

func TestSpanSinkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tracer := observability.NewStoreTracer(s, nil,
		observability.WithFlushInterval(time.Hour))

	opCtx, span := tracer.StartSpan(ctx, "messages.send",
		observability.WithAttribute("channel", "global:dev"))
	tracer.RecordEvent(opCtx, "mention_dropped", map[string]interface{}{"token": "ghost"})
	tracer.EndSpan(span)
	tracer.RecordMetric("messages_sent", 1, map[string]string{"scope": "global"})

	require.NoError(t, tracer.Close())

	var spanCount, metricCount int
	require.NoError(t, s.sqlDB.QueryRow(`SELECT COUNT(*) FROM trace_spans`).Scan(&spanCount))
	require.NoError(t, s.sqlDB.QueryRow(`SELECT COUNT(*) FROM trace_metrics`).Scan(&metricCount))
	assert.Equal(t, 1, spanCount)
	assert.Equal(t, 1, metricCount)

	var name, status string
	require.NoError(t, s.sqlDB.QueryRow(
		`SELECT name, status FROM trace_spans`).Scan(&name, &status))
	assert.Equal(t, "messages.send", name)
	assert.Equal(t, "ok", status)

	n, err := s.PruneTraces(ctx, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
