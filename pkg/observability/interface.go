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
)

// Tracer is the interface for recording spans and metrics.
//
// Implementations:
//   - NoOpTracer: discards everything (default)
//   - StoreTracer: persists spans and metrics through a SpanSink
type Tracer interface {
	// StartSpan begins a new span and returns an updated context.
	// If the context already carries a span, the new span becomes its child.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span)

	// EndSpan completes a span, computing its duration.
	EndSpan(span *Span)

	// RecordMetric records a named measurement with optional tags.
	RecordMetric(name string, value float64, tags map[string]string)

	// RecordEvent attaches an event to the currently active span, if any.
	RecordEvent(ctx context.Context, name string, attrs map[string]interface{})

	// Flush forces buffered spans and metrics to be written out.
	Flush(ctx context.Context) error
}

type contextKey string

const spanContextKey contextKey = "weft.span"

// SpanFromContext extracts the current span from the context, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanContextKey).(*Span); ok {
		return span
	}
	return nil
}

// ContextWithSpan returns a new context carrying the span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanContextKey, span)
}
