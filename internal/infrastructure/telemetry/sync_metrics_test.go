package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumWhere(m metricdata.Metrics, kv ...attribute.KeyValue) int64 {
	var total int64
	for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
		match := true
		for _, want := range kv {
			got, ok := dp.Attributes.Value(want.Key)
			if !ok || got != want.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	_, err := NewSyncMetrics(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestSyncMetrics_RecordPass(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewSyncMetrics(provider.Meter("test"))
	require.NoError(t, err)

	start := time.Now()
	report := &integration.BatchReport{
		StoreID:     uuid.New(),
		Marketplace: integration.MarketplaceCardMarket,
		StartedAt:   start,
		FinishedAt:  start.Add(1500 * time.Millisecond),
	}
	report.Add(integration.RecordOutcome{RecordID: uuid.New(), State: integration.StateSynced, PricePushed: true})
	report.Add(integration.RecordOutcome{
		RecordID:  uuid.New(),
		State:     integration.StateFailed,
		FailedIn:  integration.StateResolvingProduct,
		ErrorKind: integration.KindRateLimited,
		Retryable: true,
	})

	m.RecordPass(context.Background(), report)
	metrics := collect(t, reader)

	marketplace := AttrMarketplace.String("CARDMARKET")
	assert.Equal(t, int64(1), sumWhere(metrics["sync_passes_total"], marketplace, AttrOutcome.String("partial")))
	assert.Equal(t, int64(2), sumWhere(metrics["sync_records_total"], marketplace))
	assert.Equal(t, int64(1), sumWhere(metrics["sync_records_total"],
		AttrErrorKind.String(integration.KindRateLimited.String())))
	assert.Equal(t, int64(1), sumWhere(metrics["sync_price_pushes_total"], marketplace))

	hist := metrics["sync_pass_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)
}

func TestPassOutcome(t *testing.T) {
	tests := []struct {
		name      string
		succeeded int
		failed    int
		want      string
	}{
		{"empty pass", 0, 0, "success"},
		{"all synced", 3, 0, "success"},
		{"mixed", 2, 1, "partial"},
		{"all failed", 0, 2, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &integration.BatchReport{Succeeded: tt.succeeded, Failed: tt.failed}
			assert.Equal(t, tt.want, passOutcome(r))
		})
	}
}
