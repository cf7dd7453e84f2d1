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
	"encoding/json"

	"github.com/teradata-labs/weft/pkg/observability"
)

var _ observability.SpanSink = (*Store)(nil)

// WriteSpans persists a batch of finished spans into trace_spans.
func (s *Store) WriteSpans(ctx context.Context, spans []*observability.Span) error {
	return s.InTx(ctx, func(tx *Tx) error {
		for _, span := range spans {
			attrs := encodeAttrs(span.Attributes)
			_, err := tx.db.ExecContext(ctx, `
				INSERT INTO trace_spans (span_id, trace_id, parent_id, name, attributes_json,
					start_time, end_time, duration_us, status, status_message)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(span_id) DO NOTHING`,
				span.SpanID, span.TraceID, span.ParentID, span.Name, attrs,
				span.StartTime.UnixMicro(), span.EndTime.UnixMicro(),
				span.Duration.Microseconds(), span.Status.Code.String(), span.Status.Message)
			if err != nil {
				return mapSQLError("write_spans", err)
			}
		}
		return nil
	})
}

// WriteMetrics persists a batch of measurements into trace_metrics.
func (s *Store) WriteMetrics(ctx context.Context, metrics []observability.Metric) error {
	return s.InTx(ctx, func(tx *Tx) error {
		for _, m := range metrics {
			tags := encodeTags(m.Tags)
			_, err := tx.db.ExecContext(ctx, `
				INSERT INTO trace_metrics (name, value, tags_json, recorded_at)
				VALUES (?, ?, ?, ?)`,
				m.Name, m.Value, tags, m.Timestamp.Unix())
			if err != nil {
				return mapSQLError("write_metrics", err)
			}
		}
		return nil
	})
}

// PruneTraces deletes spans and metrics older than the cutoff expressed
// in unix seconds. Returns rows removed across both tables.
func (s *Store) PruneTraces(ctx context.Context, cutoffUnix int64) (int64, error) {
	var total int64
	err := s.InTx(ctx, func(tx *Tx) error {
		res, err := tx.db.ExecContext(ctx,
			`DELETE FROM trace_spans WHERE end_time < ?`, cutoffUnix*1_000_000)
		if err != nil {
			return mapSQLError("prune_traces", err)
		}
		n, _ := res.RowsAffected()
		total += n

		res, err = tx.db.ExecContext(ctx,
			`DELETE FROM trace_metrics WHERE recorded_at < ?`, cutoffUnix)
		if err != nil {
			return mapSQLError("prune_traces", err)
		}
		n, _ = res.RowsAffected()
		total += n
		return nil
	})
	return total, err
}

// encodeAttrs serializes span attributes, dropping values that do not
// survive JSON. Traces are best-effort.
func encodeAttrs(attrs map[string]interface{}) interface{} {
	if len(attrs) == 0 {
		return nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil
	}
	return string(raw)
}

func encodeTags(tags map[string]string) interface{} {
	if len(tags) == 0 {
		return nil
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil
	}
	return string(raw)
}
