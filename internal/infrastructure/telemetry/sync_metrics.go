package telemetry

import (
	"context"

	"github.com/cardvault/backend/internal/domain/integration"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetrics counts reconciliation passes and record outcomes per marketplace.
// Failed records carry the step they failed in and the error kind, so rate limits and
// transient failures stay distinguishable from permanent ones.
type SyncMetrics struct {
	passesTotal  *Counter
	recordsTotal *Counter
	pricePushes  *Counter
	passDuration *Histogram
}

// NewSyncMetrics creates the sync instruments on the given meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	passesTotal, err := NewCounter(meter, "sync_passes_total", "Reconciliation passes finished", "{pass}")
	if err != nil {
		return nil, err
	}
	recordsTotal, err := NewCounter(meter, "sync_records_total", "Inventory records reconciled", "{record}")
	if err != nil {
		return nil, err
	}
	pricePushes, err := NewCounter(meter, "sync_price_pushes_total", "Prices pushed to marketplaces", "{push}")
	if err != nil {
		return nil, err
	}
	passDuration, err := NewHistogram(meter, HistogramOpts{
		Name:        "sync_pass_duration_seconds",
		Description: "Wall time of a reconciliation pass",
		Unit:        "s",
		Boundaries:  PassDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		passesTotal:  passesTotal,
		recordsTotal: recordsTotal,
		pricePushes:  pricePushes,
		passDuration: passDuration,
	}, nil
}

// RecordPass records a finished pass and every record outcome in it
func (m *SyncMetrics) RecordPass(ctx context.Context, report *integration.BatchReport) {
	marketplace := AttrMarketplace.String(report.Marketplace.String())

	m.passesTotal.Inc(ctx, marketplace, AttrOutcome.String(passOutcome(report)))
	m.passDuration.RecordDuration(ctx, report.Duration(), marketplace)

	for _, o := range report.Outcomes {
		attrs := []attribute.KeyValue{marketplace, AttrState.String(o.State.String())}
		if !o.Succeeded() {
			attrs = append(attrs,
				AttrFailedIn.String(o.FailedIn.String()),
				AttrErrorKind.String(o.ErrorKind.String()),
			)
		}
		m.recordsTotal.Inc(ctx, attrs...)
		if o.PricePushed {
			m.pricePushes.Inc(ctx, marketplace)
		}
	}
}

func passOutcome(report *integration.BatchReport) string {
	switch {
	case report.Failed == 0:
		return "success"
	case report.Succeeded > 0:
		return "partial"
	default:
		return "failed"
	}
}
