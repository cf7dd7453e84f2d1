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

package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// NoOpTracer discards all spans and metrics. It still maintains the span
// tree in the context so code can set attributes without nil checks.
type NoOpTracer struct{}

var _ Tracer = (*NoOpTracer)(nil)

// NewNoOpTracer creates a tracer that records nothing.
func NewNoOpTracer() *NoOpTracer {
	return &NoOpTracer{}
}

// StartSpan creates a minimal span without recording it anywhere.
func (t *NoOpTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := &Span{
		SpanID:    uuid.New().String(),
		Name:      name,
		StartTime: time.Now(),
	}

	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	} else {
		span.TraceID = uuid.New().String()
	}

	for _, opt := range opts {
		opt(span)
	}

	return ContextWithSpan(ctx, span), span
}

// EndSpan completes the span. The result is discarded.
func (t *NoOpTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
}

// RecordMetric discards the metric.
func (t *NoOpTracer) RecordMetric(name string, value float64, tags map[string]string) {}

// RecordEvent attaches the event to the active span, which is discarded.
func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attrs map[string]interface{}) {
	if span := SpanFromContext(ctx); span != nil {
		span.AddEvent(name, attrs)
	}
}

// Flush is a no-op.
func (t *NoOpTracer) Flush(ctx context.Context) error {
	return nil
}
