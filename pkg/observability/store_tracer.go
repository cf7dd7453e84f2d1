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
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Metric is a single recorded measurement.
type Metric struct {
	Name      string
	Value     float64
	Tags      map[string]string
	Timestamp time.Time
}

// SpanSink persists finished spans and metrics. The weft store implements
// this against its trace tables; tests use in-memory sinks.
type SpanSink interface {
	WriteSpans(ctx context.Context, spans []*Span) error
	WriteMetrics(ctx context.Context, metrics []Metric) error
}

const (
	defaultMaxBuffered   = 256
	defaultFlushInterval = 30 * time.Second
)

// StoreTracer buffers finished spans and metrics in memory and flushes
// them to a SpanSink periodically and on demand. Failures to persist are
// logged and dropped; tracing must never fail the traced operation.
type StoreTracer struct {
	sink   SpanSink
	logger *zap.Logger

	mu      sync.Mutex
	spans   []*Span
	metrics []Metric

	maxBuffered   int
	flushInterval time.Duration

	flushCh  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ Tracer = (*StoreTracer)(nil)

// StoreTracerOption configures a StoreTracer.
type StoreTracerOption func(*StoreTracer)

// WithFlushInterval overrides the periodic flush interval.
func WithFlushInterval(d time.Duration) StoreTracerOption {
	return func(t *StoreTracer) {
		t.flushInterval = d
	}
}

// WithMaxBuffered overrides the buffer size that triggers an early flush.
func WithMaxBuffered(n int) StoreTracerOption {
	return func(t *StoreTracer) {
		t.maxBuffered = n
	}
}

// NewStoreTracer creates a tracer that persists through sink. Call Close
// to stop the background flusher and drain remaining buffers.
func NewStoreTracer(sink SpanSink, logger *zap.Logger, opts ...StoreTracerOption) *StoreTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &StoreTracer{
		sink:          sink,
		logger:        logger,
		maxBuffered:   defaultMaxBuffered,
		flushInterval: defaultFlushInterval,
		flushCh:       make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.wg.Add(1)
	go t.flushLoop()

	return t
}

func (t *StoreTracer) flushLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-t.flushCh:
		case <-t.done:
			return
		}
		if err := t.Flush(context.Background()); err != nil {
			t.logger.Warn("trace flush failed", zap.Error(err))
		}
	}
}

// requestFlush nudges the background flusher without blocking. Flushing
// stays off the caller's goroutine: spans are often ended inside store
// transactions, and the sink writes back into the store.
func (t *StoreTracer) requestFlush() {
	select {
	case t.flushCh <- struct{}{}:
	default:
	}
}

// StartSpan begins a span, linking it to any parent in the context.
func (t *StoreTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
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

// EndSpan completes the span and buffers it for the next flush.
func (t *StoreTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if span.Status.Code == StatusUnset {
		span.Status.Code = StatusOK
	}

	t.mu.Lock()
	t.spans = append(t.spans, span)
	full := len(t.spans) >= t.maxBuffered
	t.mu.Unlock()

	if full {
		t.requestFlush()
	}
}

// RecordMetric buffers a measurement for the next flush.
func (t *StoreTracer) RecordMetric(name string, value float64, tags map[string]string) {
	t.mu.Lock()
	t.metrics = append(t.metrics, Metric{
		Name:      name,
		Value:     value,
		Tags:      tags,
		Timestamp: time.Now(),
	})
	full := len(t.metrics) >= t.maxBuffered
	t.mu.Unlock()

	if full {
		t.requestFlush()
	}
}

// RecordEvent attaches an event to the active span in the context.
func (t *StoreTracer) RecordEvent(ctx context.Context, name string, attrs map[string]interface{}) {
	if span := SpanFromContext(ctx); span != nil {
		span.AddEvent(name, attrs)
	}
}

// Flush writes buffered spans and metrics through the sink.
func (t *StoreTracer) Flush(ctx context.Context) error {
	t.mu.Lock()
	spans := t.spans
	metrics := t.metrics
	t.spans = nil
	t.metrics = nil
	t.mu.Unlock()

	if len(spans) > 0 {
		if err := t.sink.WriteSpans(ctx, spans); err != nil {
			t.logger.Warn("failed to persist spans",
				zap.Int("count", len(spans)),
				zap.Error(err))
		}
	}
	if len(metrics) > 0 {
		if err := t.sink.WriteMetrics(ctx, metrics); err != nil {
			t.logger.Warn("failed to persist metrics",
				zap.Int("count", len(metrics)),
				zap.Error(err))
		}
	}
	return nil
}

// Close stops the background flusher and drains remaining buffers.
func (t *StoreTracer) Close() error {
	t.stopOnce.Do(func() {
		close(t.done)
	})
	t.wg.Wait()
	return t.Flush(context.Background())
}
