// Package o11y defines the small metrics and tracing surface used by the
// bridge, so the relays do not depend on any particular backend.
package o11y

import (
	"context"
)

// Provider supplies both metrics and tracing; the OpenTelemetry provider is
// one.
type Provider interface {
	MetricsProvider
	TracingProvider
}

// MetricsProvider creates named instruments. Implementations may return the
// same instrument for repeated names.
type MetricsProvider interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// TracingProvider starts spans.
type TracingProvider interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

type Counter interface {
	Add(ctx context.Context, value int64, labels ...Label)
}

type Histogram interface {
	Record(ctx context.Context, value float64, labels ...Label)
}

// Gauge holds the last value set.
type Gauge interface {
	Set(ctx context.Context, value float64, labels ...Label)
}

type Span interface {
	SetAttributes(labels ...Label)
	SetStatus(code SpanStatusCode, description string)
	End()
}

// Label is an attribute on a measurement or span.
type Label struct {
	Key   string
	Value string
}

type SpanStatusCode int

const (
	SpanStatusUnset SpanStatusCode = iota
	SpanStatusOK
	SpanStatusError
)

// StartSpan starts a span on tp, or returns ctx and a span that ignores every
// call when tp is nil, so callers need no nil checks.
func StartSpan(ctx context.Context, tp TracingProvider, name string, labels ...Label) (context.Context, Span) {
	if tp == nil {
		return ctx, nopSpan{}
	}

	ctx, span := tp.StartSpan(ctx, name)
	if len(labels) > 0 {
		span.SetAttributes(labels...)
	}
	return ctx, span
}

// Fail marks span as failed with err's message.
func Fail(span Span, err error) {
	span.SetStatus(SpanStatusError, err.Error())
}

type nopSpan struct{}

func (nopSpan) SetAttributes(...Label)           {}
func (nopSpan) SetStatus(SpanStatusCode, string) {}
func (nopSpan) End()                             {}
