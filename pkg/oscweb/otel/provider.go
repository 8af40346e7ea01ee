// Package otel reports bridge metrics and traces through OpenTelemetry.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tsarna/oscweb/pkg/oscweb/o11y"
)

var _ o11y.Provider = (*Provider)(nil)

// Provider takes its meter and tracer from the global OpenTelemetry
// providers, so nothing is exported until the process installs an SDK.
// Instruments are created once per name.
type Provider struct {
	meter  metric.Meter
	tracer trace.Tracer

	mu         sync.Mutex
	counters   map[string]*counter
	histograms map[string]*histogram
	gauges     map[string]*gauge
}

func NewProvider(serviceName, serviceVersion string) *Provider {
	return &Provider{
		meter:      otel.Meter(serviceName, metric.WithInstrumentationVersion(serviceVersion)),
		tracer:     otel.Tracer(serviceName, trace.WithInstrumentationVersion(serviceVersion)),
		counters:   make(map[string]*counter),
		histograms: make(map[string]*histogram),
		gauges:     make(map[string]*gauge),
	}
}

func (p *Provider) Counter(name string) o11y.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.counters[name]; ok {
		return c
	}
	inst, _ := p.meter.Int64Counter(name)
	c := &counter{inst: inst}
	p.counters[name] = c
	return c
}

func (p *Provider) Histogram(name string) o11y.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h, ok := p.histograms[name]; ok {
		return h
	}
	inst, _ := p.meter.Float64Histogram(name)
	h := &histogram{inst: inst}
	p.histograms[name] = h
	return h
}

// Gauge is backed by an UpDownCounter fed with the difference from the last
// value set for the same labels.
func (p *Provider) Gauge(name string) o11y.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.gauges[name]; ok {
		return g
	}
	inst, _ := p.meter.Float64UpDownCounter(name)
	g := &gauge{inst: inst, last: make(map[attribute.Distinct]float64)}
	p.gauges[name] = g
	return g
}

func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	ctx, s := p.tracer.Start(ctx, name)
	return ctx, span{s}
}

func attributeSet(labels []o11y.Label) attribute.Set {
	kvs := make([]attribute.KeyValue, len(labels))
	for i, label := range labels {
		kvs[i] = attribute.String(label.Key, label.Value)
	}
	return attribute.NewSet(kvs...)
}

type counter struct {
	inst metric.Int64Counter
}

func (c *counter) Add(ctx context.Context, value int64, labels ...o11y.Label) {
	c.inst.Add(ctx, value, metric.WithAttributeSet(attributeSet(labels)))
}

type histogram struct {
	inst metric.Float64Histogram
}

func (h *histogram) Record(ctx context.Context, value float64, labels ...o11y.Label) {
	h.inst.Record(ctx, value, metric.WithAttributeSet(attributeSet(labels)))
}

type gauge struct {
	inst metric.Float64UpDownCounter

	mu   sync.Mutex
	last map[attribute.Distinct]float64
}

func (g *gauge) Set(ctx context.Context, value float64, labels ...o11y.Label) {
	set := attributeSet(labels)
	key := set.Equivalent()

	g.mu.Lock()
	delta := value - g.last[key]
	g.last[key] = value
	g.mu.Unlock()

	if delta != 0 {
		g.inst.Add(ctx, delta, metric.WithAttributeSet(set))
	}
}

type span struct {
	trace.Span
}

func (s span) SetAttributes(labels ...o11y.Label) {
	for _, label := range labels {
		s.Span.SetAttributes(attribute.String(label.Key, label.Value))
	}
}

func (s span) SetStatus(code o11y.SpanStatusCode, description string) {
	switch code {
	case o11y.SpanStatusOK:
		s.Span.SetStatus(codes.Ok, description)
	case o11y.SpanStatusError:
		s.Span.SetStatus(codes.Error, description)
	default:
		s.Span.SetStatus(codes.Unset, description)
	}
}

func (s span) End() {
	s.Span.End()
}
