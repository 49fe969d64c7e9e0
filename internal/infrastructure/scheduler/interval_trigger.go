package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// EnabledIntegrations lists the integrations the trigger keeps in sync
type EnabledIntegrations interface {
	ListEnabled(ctx context.Context) ([]integration.IntegrationCredential, error)
}

// IntervalTrigger submits a default pass for every enabled integration on a fixed period
type IntervalTrigger struct {
	interval     time.Duration
	scheduler    *SyncScheduler
	integrations EnabledIntegrations
	logger       *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(
	interval time.Duration,
	scheduler *SyncScheduler,
	integrations EnabledIntegrations,
	logger *zap.Logger,
) (*IntervalTrigger, error) {
	if interval <= 0 {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalTrigger{
		interval:     interval,
		scheduler:    scheduler,
		integrations: integrations,
		logger:       logger.Named("interval_trigger"),
	}, nil
}

// Start starts the trigger loop
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isRunning {
		return nil
	}
	t.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval sync trigger started", zap.Duration("interval", t.interval))
	return nil
}

// Stop stops the trigger loop
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval sync trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick submits a pass for every enabled integration and returns how many were queued.
// Integrations with a pass already in flight are skipped.
func (t *IntervalTrigger) Tick(ctx context.Context) int {
	creds, err := t.integrations.ListEnabled(ctx)
	if err != nil {
		t.logger.Error("Failed to list enabled integrations", zap.Error(err))
		return 0
	}

	queued := 0
	for _, cred := range creds {
		req := integration.SyncRequest{StoreID: cred.StoreID, Marketplace: cred.Marketplace}
		_, err := t.scheduler.Submit(req, TriggerInterval)
		switch {
		case err == nil:
			queued++
		case errors.Is(err, ErrSyncAlreadyInProgress):
			t.logger.Debug("Skipping integration with pass in flight", zap.String("key", req.Key().String()))
		default:
			t.logger.Warn("Failed to queue scheduled sync",
				zap.String("store_id", cred.StoreID.String()),
				zap.String("marketplace", cred.Marketplace.String()),
				zap.Error(err),
			)
			if errors.Is(err, ErrSchedulerNotRunning) {
				return queued
			}
		}
	}

	if queued > 0 {
		t.logger.Info("Scheduled sync passes queued", zap.Int("count", queued))
	}
	return queued
}
