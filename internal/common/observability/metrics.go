package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter and tracer providers.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider shutdowner
	meter          otelmetric.Meter

	submissionCounter  otelmetric.Int64Counter
	submissionDuration otelmetric.Float64Histogram
	jobCounter         otelmetric.Int64Counter
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// New registers a Prometheus-backed meter provider globally and, when
// tracing is configured, a tracer provider.
func New(serviceName string, tracing TracingOptions) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	o := &Observability{meterProvider: provider, meter: meter}

	if o.submissionCounter, err = meter.Int64Counter(
		"applications.submitted",
		otelmetric.WithDescription("Application submissions by variant and outcome"),
	); err != nil {
		return nil, err
	}
	if o.submissionDuration, err = meter.Float64Histogram(
		"applications.duration",
		otelmetric.WithDescription("End-to-end submission duration"),
		otelmetric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if o.jobCounter, err = meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	); err != nil {
		return nil, err
	}

	tp, err := newTracerProvider(serviceName, tracing)
	if err != nil {
		return nil, err
	}
	if tp != nil {
		o.tracerProvider = tp
	}

	return o, nil
}

func (o *Observability) RecordSubmission(ctx context.Context, variant, outcome string, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("variant", variant),
		attribute.String("outcome", outcome),
	)
	o.submissionCounter.Add(ctx, 1, attrs)
	o.submissionDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	var firstErr error
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if err := o.meterProvider.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
