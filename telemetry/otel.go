// Package telemetry provides an OpenTelemetry-backed implementation of
// the cart engine's Telemetry interface: spans around store commands and
// counters for swap/savings activity.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"github.com/groupkart/groupkart/cart"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelProvider implements cart.Telemetry with OpenTelemetry.
type OTelProvider struct {
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	countersMu sync.RWMutex
	counters   map[string]metric.Float64Counter
}

// NewOTelProvider creates an OpenTelemetry provider exporting traces over
// OTLP/gRPC to the given endpoint.
func NewOTelProvider(serviceName string, endpoint string) (*OTelProvider, error) {
	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	return newProvider(res, sdktrace.WithBatcher(exporter)), nil
}

// NewStdoutProvider creates an OpenTelemetry provider writing pretty
// traces to stdout, for local development.
func NewStdoutProvider(serviceName string) (*OTelProvider, error) {
	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	return newProvider(res, sdktrace.WithBatcher(exporter)), nil
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func newProvider(res *resource.Resource, opts ...sdktrace.TracerProviderOption) *OTelProvider {
	tp := sdktrace.NewTracerProvider(append(opts, sdktrace.WithResource(res))...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &OTelProvider{
		tracer:        tp.Tracer("groupkart-telemetry"),
		meter:         otel.Meter("groupkart-telemetry"),
		traceProvider: tp,
		counters:      make(map[string]metric.Float64Counter),
	}
}

// StartSpan starts a new telemetry span.
func (o *OTelProvider) StartSpan(ctx context.Context, name string) (context.Context, cart.Span) {
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records a counter increment. Counter instruments are cached
// by name.
func (o *OTelProvider) RecordMetric(name string, value float64, labels map[string]string) {
	counter, err := o.counter(name)
	if err != nil {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
}

func (o *OTelProvider) counter(name string) (metric.Float64Counter, error) {
	o.countersMu.RLock()
	counter, ok := o.counters[name]
	o.countersMu.RUnlock()
	if ok {
		return counter, nil
	}

	o.countersMu.Lock()
	defer o.countersMu.Unlock()
	if counter, ok := o.counters[name]; ok {
		return counter, nil
	}

	counter, err := o.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	o.counters[name] = counter
	return counter, nil
}

// Shutdown gracefully shuts down the telemetry provider, flushing pending
// spans.
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	return o.traceProvider.Shutdown(ctx)
}

// otelSpan wraps an OpenTelemetry span to implement cart.Span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

var _ cart.Telemetry = (*OTelProvider)(nil)
