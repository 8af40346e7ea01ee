package o11y

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSpan struct {
	labels []Label
	code   SpanStatusCode
	desc   string
	ended  bool
}

func (s *recordingSpan) SetAttributes(labels ...Label) { s.labels = append(s.labels, labels...) }
func (s *recordingSpan) SetStatus(code SpanStatusCode, description string) {
	s.code, s.desc = code, description
}
func (s *recordingSpan) End() { s.ended = true }

type recordingTracer struct {
	names []string
	span  *recordingSpan
}

func (t *recordingTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	t.names = append(t.names, name)
	return ctx, t.span
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	t.Run("nil provider", func(t *testing.T) {
		spanCtx, span := StartSpan(ctx, nil, "op", Label{Key: "k", Value: "v"})
		assert.Equal(t, ctx, spanCtx)
		assert.NotPanics(t, func() {
			Fail(span, errors.New("boom"))
			span.End()
		})
	})

	t.Run("labels and failure", func(t *testing.T) {
		tracer := &recordingTracer{span: &recordingSpan{}}

		_, span := StartSpan(ctx, tracer, "osc.forward", Label{Key: "osc.address", Value: "/a"})
		Fail(span, errors.New("peer unreachable"))
		span.End()

		assert.Equal(t, []string{"osc.forward"}, tracer.names)
		assert.Equal(t, []Label{{Key: "osc.address", Value: "/a"}}, tracer.span.labels)
		assert.Equal(t, SpanStatusError, tracer.span.code)
		assert.Equal(t, "peer unreachable", tracer.span.desc)
		assert.True(t, tracer.span.ended)
	})
}
