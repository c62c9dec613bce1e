package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RunMetricsMeterName is the name used for the worker run metrics meter
	RunMetricsMeterName = "github.com/syncline/syncline/run"
)

// RunMetrics holds the OpenTelemetry instruments for worker run metrics
type RunMetrics struct {
	runDuration metric.Float64Histogram
	itemsSynced metric.Int64Counter
}

// NewRunMetrics creates a new RunMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRunMetrics(provider metric.MeterProvider) (*RunMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RunMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"syncline_run_duration_seconds",
		metric.WithDescription("Duration of worker runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	itemsSynced, err := meter.Int64Counter(
		"syncline_items_synced_total",
		metric.WithDescription("Number of records fetched and applied by worker runs"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &RunMetrics{
		runDuration: runDuration,
		itemsSynced: itemsSynced,
	}, nil
}

// RecordRunDuration records the duration of a worker run for a key
func (m *RunMetrics) RecordRunDuration(ctx context.Context, accountID, apiFamily string, duration time.Duration, success bool) {
	if m == nil || m.runDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("account_id", accountID),
		attribute.String("api_family", apiFamily),
		attribute.Bool("success", success),
	}

	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordItemsSynced records the number of records a run fetched and applied
func (m *RunMetrics) RecordItemsSynced(ctx context.Context, accountID, apiFamily string, count int64) {
	if m == nil || m.itemsSynced == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("account_id", accountID),
		attribute.String("api_family", apiFamily),
	}

	m.itemsSynced.Add(ctx, count, metric.WithAttributes(attrs...))
}
