package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	tp, err := NewTracerProvider(context.Background(), Config{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("sync"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		s := samplerFor(tt.ratio)
		assert.Contains(t, s.Description(), tt.want)
		assert.Contains(t, s.Description(), "ParentBased")
	}
	var _ sdktrace.Sampler = samplerFor(0.5)
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), MetricsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("sync"))
	assert.NoError(t, mp.Shutdown(context.Background()))

	m, err := NewSyncMetrics(mp.Meter("sync"))
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestLoggerProvider_DisabledTeeIsIdentity(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{Enabled: false}, zap.NewNop())
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	assert.Same(t, logger, lp.Tee(logger))
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.Shutdown(context.Background()))
}

func TestNewResource(t *testing.T) {
	res, err := newResource("cardvault-sync")
	require.NoError(t, err)

	var found bool
	for _, kv := range res.Attributes() {
		if string(kv.Key) == "service.name" {
			found = true
			assert.Equal(t, "cardvault-sync", kv.Value.AsString())
		}
	}
	assert.True(t, found)
}
