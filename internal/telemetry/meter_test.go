package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMeterProvider_DisabledYieldsNoOp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []MeterProviderOption
	}{
		{name: "no options"},
		{
			name: "metrics section disabled",
			opts: []MeterProviderOption{WithMetricsConfig(&MetricsConfig{Enabled: false})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mp, err := NewMeterProvider(context.Background(), tt.opts...)
			require.NoError(t, err)

			_, ok := mp.(noop.MeterProvider)
			assert.True(t, ok, "disabled metrics must not build an SDK pipeline")
		})
	}
}

func TestNewMeterProvider_EnabledBuildsSDKPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mp, err := NewMeterProvider(ctx,
		WithMetricsConfig(&MetricsConfig{Enabled: true}),
		WithMeterServiceName("syncline-test"),
		WithMeterInsecure(true),
	)
	require.NoError(t, err)

	sdkMP, ok := mp.(*sdkmetric.MeterProvider)
	require.True(t, ok, "expected an SDK meter provider")

	// No collector is listening, so the final flush may fail.
	_ = sdkMP.Shutdown(ctx)
}

func TestMeterProviderOptions(t *testing.T) {
	t.Parallel()

	metricsCfg := &MetricsConfig{Enabled: true}
	cfg := &meterProviderConfig{}
	for _, opt := range []MeterProviderOption{
		WithMeterServiceName("syncline-api"),
		WithMeterServiceVersion("1.2.3"),
		WithMetricsConfig(metricsCfg),
		WithMeterEndpoint("collector.internal:4318"),
		WithMeterInsecure(true),
	} {
		opt(cfg)
	}

	assert.Equal(t, "syncline-api", cfg.serviceName)
	assert.Equal(t, "1.2.3", cfg.serviceVersion)
	assert.Same(t, metricsCfg, cfg.metricsConfig)
	assert.Equal(t, "collector.internal:4318", cfg.endpoint)
	assert.True(t, cfg.insecure)
}
