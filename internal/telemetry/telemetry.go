// Package telemetry exposes the service's domain metrics through the
// OpenTelemetry metric API with a Prometheus exporter.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the tracer and metric instruments.
type Telemetry struct {
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter

	transfersTotal    metric.Int64Counter
	transferDuration  metric.Float64Histogram
	batchesActive     metric.Int64UpDownCounter
	batchItemsTotal   metric.Int64Counter
	broadcastsTotal   metric.Int64Counter
	floodWaitsTotal   metric.Int64Counter
	loginFlowsTotal   metric.Int64Counter
	stagingBytesTotal metric.Int64Counter
}

// New creates a telemetry instance backed by a Prometheus exporter.
func New(serviceName string) (*Telemetry, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        otel.Tracer(serviceName),
		meter:         otel.Meter(serviceName),
	}

	if err := t.initInstruments(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return t, nil
}

func (t *Telemetry) initInstruments() error {
	var err error

	if t.transfersTotal, err = t.meter.Int64Counter("transfers_total",
		metric.WithDescription("Item transfers by kind and status")); err != nil {
		return err
	}

	if t.transferDuration, err = t.meter.Float64Histogram("transfer_duration_seconds",
		metric.WithDescription("End-to-end duration of item transfers")); err != nil {
		return err
	}

	if t.batchesActive, err = t.meter.Int64UpDownCounter("batches_active",
		metric.WithDescription("Currently running batches")); err != nil {
		return err
	}

	if t.batchItemsTotal, err = t.meter.Int64Counter("batch_items_total",
		metric.WithDescription("Batch items processed by outcome")); err != nil {
		return err
	}

	if t.broadcastsTotal, err = t.meter.Int64Counter("broadcast_recipients_total",
		metric.WithDescription("Fan-out recipients by outcome")); err != nil {
		return err
	}

	if t.floodWaitsTotal, err = t.meter.Int64Counter("flood_waits_total",
		metric.WithDescription("Rate-limit suspensions observed")); err != nil {
		return err
	}

	if t.loginFlowsTotal, err = t.meter.Int64Counter("login_flows_total",
		metric.WithDescription("Interactive login flows by outcome")); err != nil {
		return err
	}

	if t.stagingBytesTotal, err = t.meter.Int64Counter("staging_bytes_total",
		metric.WithDescription("Bytes staged to local disk")); err != nil {
		return err
	}

	return nil
}

// StartSpan opens a span on the service tracer. Safe on a nil receiver, in
// which case the span is a no-op and ctx is returned unchanged.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Handler returns the Prometheus scrape endpoint.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTransfer records one item transfer outcome.
func (t *Telemetry) RecordTransfer(ctx context.Context, kind, status string, duration time.Duration) {
	if t.transfersTotal != nil {
		t.transfersTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		))
	}

	if t.transferDuration != nil {
		t.transferDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
			attribute.String("kind", kind),
		))
	}
}

// BatchStarted increments the active batch gauge.
func (t *Telemetry) BatchStarted(ctx context.Context) {
	if t.batchesActive != nil {
		t.batchesActive.Add(ctx, 1)
	}
}

// BatchFinished decrements the active batch gauge.
func (t *Telemetry) BatchFinished(ctx context.Context) {
	if t.batchesActive != nil {
		t.batchesActive.Add(ctx, -1)
	}
}

// RecordBatchItem records one processed batch item.
func (t *Telemetry) RecordBatchItem(ctx context.Context, outcome string) {
	if t.batchItemsTotal != nil {
		t.batchItemsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// RecordBroadcast records one fan-out recipient outcome.
func (t *Telemetry) RecordBroadcast(ctx context.Context, outcome string) {
	if t.broadcastsTotal != nil {
		t.broadcastsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// RecordFloodWait records one rate-limit suspension.
func (t *Telemetry) RecordFloodWait(ctx context.Context) {
	if t.floodWaitsTotal != nil {
		t.floodWaitsTotal.Add(ctx, 1)
	}
}

// RecordLogin records an interactive login flow outcome.
func (t *Telemetry) RecordLogin(ctx context.Context, outcome string) {
	if t.loginFlowsTotal != nil {
		t.loginFlowsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

// RecordStagedBytes records bytes written to the staging directory.
func (t *Telemetry) RecordStagedBytes(ctx context.Context, n int64) {
	if t.stagingBytesTotal != nil {
		t.stagingBytesTotal.Add(ctx, n)
	}
}
