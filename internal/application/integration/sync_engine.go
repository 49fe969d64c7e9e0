package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/cardvault/backend/internal/domain/shared"
	applog "github.com/cardvault/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/cardvault/backend/internal/application/integration"

// EngineConfig bounds the fan-out and the time budget of a pass
type EngineConfig struct {
	// Concurrency is the number of catalog items reconciled at once
	Concurrency int
	// CallTimeout bounds every adapter call
	CallTimeout time.Duration
	// BatchTimeout bounds a whole pass
	BatchTimeout time.Duration
}

// DefaultEngineConfig returns default configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Concurrency:  4,
		CallTimeout:  30 * time.Second,
		BatchTimeout: 5 * time.Minute,
	}
}

func (c *EngineConfig) applyDefaults() {
	d := DefaultEngineConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = d.BatchTimeout
	}
}

// SyncEngine reconciles the inventory records of a store against one marketplace.
// Records are grouped by catalog item; each group resolves its product once and then walks
// every record through variant, tracking, quantity and price. Failures stay within their record
// or, for product failures, within their catalog item.
type SyncEngine struct {
	credentials integration.CredentialRepository
	cards       catalog.CardRepository
	records     inventory.RecordRepository
	adapters    integration.AdapterResolver
	locks       *KeyedMutex
	config      EngineConfig
	logger      *zap.Logger
	tracer      trace.Tracer
	recorder    PassRecorder
	now         func() time.Time
}

// PassRecorder observes every finished pass
type PassRecorder interface {
	RecordPass(ctx context.Context, report *integration.BatchReport)
}

// NewSyncEngine creates a new SyncEngine
func NewSyncEngine(
	credentials integration.CredentialRepository,
	cards catalog.CardRepository,
	records inventory.RecordRepository,
	adapters integration.AdapterResolver,
	cfg EngineConfig,
	logger *zap.Logger,
) *SyncEngine {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncEngine{
		credentials: credentials,
		cards:       cards,
		records:     records,
		adapters:    adapters,
		locks:       NewKeyedMutex(),
		config:      cfg,
		logger:      logger.Named("sync_engine"),
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
	}
}

// WithRecorder attaches a recorder notified of every finished pass
func (e *SyncEngine) WithRecorder(r PassRecorder) *SyncEngine {
	e.recorder = r
	return e
}

// pass carries what every group of one SyncStore call shares
type pass struct {
	conn    *integration.Connection
	adapter integration.MarketplaceAdapter
	logger  *zap.Logger
}

func (p *pass) marketplace() string {
	return p.conn.Marketplace.String()
}

// cardGroup is the records of one catalog item selected for a pass
type cardGroup struct {
	cardID  uuid.UUID
	card    *catalog.Card
	records []*inventory.Record
}

// SyncStore runs one reconciliation pass. It fails only when the pass cannot start;
// per-record failures are reported in the BatchReport.
func (e *SyncEngine) SyncStore(ctx context.Context, req integration.SyncRequest) (*integration.BatchReport, error) {
	if req.StoreID == uuid.Nil {
		return nil, integration.ErrInvalidStoreID
	}
	if !req.Marketplace.IsValid() {
		return nil, integration.ErrInvalidMarketplace
	}

	cred, err := e.credentials.FindByKey(ctx, req.StoreID, req.Marketplace)
	if err != nil {
		return nil, err
	}
	if !cred.Enabled {
		return nil, integration.ErrCredentialDisabled
	}
	conn, err := cred.Connection()
	if err != nil {
		return nil, err
	}
	adapter, err := e.adapters.Adapter(req.Marketplace)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.BatchTimeout)
	defer cancel()
	ctx, logger := applog.WithIntegration(ctx, e.logger, req.StoreID.String(), req.Marketplace.String())
	ctx, span := e.tracer.Start(ctx, "integration.SyncStore", trace.WithAttributes(
		attribute.String("store_id", req.StoreID.String()),
		attribute.String("marketplace", req.Marketplace.String()),
		attribute.Bool("force", req.Force),
	))
	defer span.End()

	report := &integration.BatchReport{
		StoreID:     req.StoreID,
		Marketplace: req.Marketplace,
		Outcomes:    make([]integration.RecordOutcome, 0),
		StartedAt:   e.now(),
	}

	groups, err := e.loadGroups(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "selection failed")
		return nil, err
	}

	p := &pass{conn: conn, adapter: adapter, logger: logger}
	results := make([][]integration.RecordOutcome, len(groups))

	var g errgroup.Group
	g.SetLimit(e.config.Concurrency)
	for i := range groups {
		g.Go(func() error {
			results[i] = e.syncGroup(ctx, p, &groups[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, outcomes := range results {
		for _, o := range outcomes {
			report.Add(o)
		}
	}
	report.FinishedAt = e.now()

	if report.Failed == 0 {
		persistCtx := context.WithoutCancel(ctx)
		if err := e.credentials.UpdateLastSync(persistCtx, req.StoreID, req.Marketplace, report.FinishedAt); err != nil {
			logger.Warn("failed to record last sync time", zap.Error(err))
		}
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d records failed", report.Failed, report.Attempted))
	}
	if e.recorder != nil {
		e.recorder.RecordPass(ctx, report)
	}
	span.SetAttributes(
		attribute.Int("attempted", report.Attempted),
		attribute.Int("succeeded", report.Succeeded),
		attribute.Int("failed", report.Failed),
	)

	logger.Info("sync pass finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration()),
	)
	return report, nil
}

// loadGroups selects the records of the pass and groups them by catalog item, keeping selection order
func (e *SyncEngine) loadGroups(ctx context.Context, req integration.SyncRequest) ([]cardGroup, error) {
	records, err := e.records.FindForSync(ctx, inventory.SyncSelection{
		StoreID:     req.StoreID,
		Marketplace: req.Marketplace.String(),
		Force:       req.Force,
		RecordIDs:   req.RecordIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}

	index := make(map[uuid.UUID]int)
	groups := make([]cardGroup, 0)
	for i := range records {
		rec := &records[i]
		gi, ok := index[rec.CardID]
		if !ok {
			gi = len(groups)
			index[rec.CardID] = gi
			groups = append(groups, cardGroup{cardID: rec.CardID})
		}
		groups[gi].records = append(groups[gi].records, rec)
	}
	if len(groups) == 0 {
		return groups, nil
	}

	ids := make([]uuid.UUID, len(groups))
	for i := range groups {
		ids[i] = groups[i].cardID
	}
	cards, err := e.cards.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load catalog items: %w", err)
	}
	for i := range cards {
		if gi, ok := index[cards[i].ID]; ok {
			groups[gi].card = &cards[i]
		}
	}
	return groups, nil
}

// syncGroup resolves the product of one catalog item once, then reconciles each of its records in order
func (e *SyncEngine) syncGroup(ctx context.Context, p *pass, g *cardGroup) []integration.RecordOutcome {
	m := p.marketplace()
	outcomes := make([]integration.RecordOutcome, 0, len(g.records))

	if g.card == nil {
		err := fmt.Errorf("%w: catalog item %s", shared.ErrNotFound, g.cardID)
		for _, rec := range g.records {
			outcomes = append(outcomes, e.fail(ctx, p, rec, newOutcome(rec, ""), integration.StateResolvingProduct, err))
		}
		return outcomes
	}

	unlock := e.locks.Lock(p.conn.Key().String() + ":" + g.cardID.String())
	defer unlock()

	previous := g.card.RemoteProductID(p.conn.StoreID, m)
	var productID string
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		productID, err = p.adapter.EnsureRemoteProduct(ctx, p.conn, g.card)
		return err
	})
	if err != nil {
		for _, rec := range g.records {
			outcomes = append(outcomes, e.fail(ctx, p, rec, newOutcome(rec, ""), integration.StateResolvingProduct, err))
		}
		return outcomes
	}

	if previous != "" && previous != productID {
		// The adapter recreated the product; variant ids cached on these records point at the old one
		for _, rec := range g.records {
			rec.ClearRemoteVariantID(m)
		}
	}

	for _, rec := range g.records {
		outcomes = append(outcomes, e.syncRecord(ctx, p, g, rec, productID))
	}
	return outcomes
}

// syncRecord walks one record through variant, tracking, quantity and price
func (e *SyncEngine) syncRecord(ctx context.Context, p *pass, g *cardGroup, rec *inventory.Record, productID string) integration.RecordOutcome {
	m := p.marketplace()
	out := newOutcome(rec, productID)

	ctx, span := e.tracer.Start(ctx, "integration.SyncRecord", trace.WithAttributes(
		attribute.String("inventory_record_id", rec.ID.String()),
		attribute.String("catalog_item_id", rec.CardID.String()),
		attribute.String("sku", out.SKU),
	))
	defer span.End()

	siblings := make([]*inventory.Record, 0, len(g.records)-1)
	for _, other := range g.records {
		if other.ID != rec.ID {
			siblings = append(siblings, other)
		}
	}

	var variantID string
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		variantID, err = p.adapter.EnsureRemoteVariant(ctx, p.conn, g.card, rec, siblings)
		return err
	})
	if err != nil {
		return e.fail(ctx, p, rec, out, integration.StateResolvingVariant, err)
	}
	rec.SetRemoteVariantID(m, variantID)
	out.RemoteVariantID = variantID

	remoteLocation, ok := p.conn.Settings.RemoteLocationFor(rec.LocationID)
	if !ok {
		err := fmt.Errorf("%w: %s", integration.ErrRemoteLocationMissing, rec.LocationID)
		return e.fail(ctx, p, rec, out, integration.StateActivatingTracking, err)
	}

	if err := e.call(ctx, func(ctx context.Context) error {
		return p.adapter.EnsureInventoryTracking(ctx, p.conn, variantID, remoteLocation)
	}); err != nil {
		p.logger.Warn("inventory tracking activation failed, pushing quantity anyway",
			append(recordFields(rec, out.SKU), errorFields(err)...)...,
		)
	}

	if err := e.call(ctx, func(ctx context.Context) error {
		return p.adapter.PushQuantity(ctx, p.conn, variantID, remoteLocation, rec.Quantity)
	}); err != nil {
		return e.fail(ctx, p, rec, out, integration.StatePushingQuantity, err)
	}

	var pushed decimal.NullDecimal
	if rec.PriceChanged(m) {
		price := rec.SellPrice
		if err := e.call(ctx, func(ctx context.Context) error {
			return p.adapter.PushPrice(ctx, p.conn, variantID, price.Decimal)
		}); err != nil {
			return e.fail(ctx, p, rec, out, integration.StatePushingPrice, err)
		}
		pushed = price
		out.PricePushed = true
	}

	rec.MarkSynced(m, variantID, pushed, e.now())
	if err := e.persist(ctx, rec, m); err != nil {
		return e.persistFailed(ctx, p, out, err)
	}
	out.State = integration.StateSynced

	p.logger.Debug("record synced",
		append(recordFields(rec, out.SKU),
			zap.String("remote_variant_id", variantID),
			zap.Bool("price_pushed", out.PricePushed),
		)...,
	)
	return out
}

// fail records a failure in the given state, persists it and returns the outcome
func (e *SyncEngine) fail(ctx context.Context, p *pass, rec *inventory.Record, out integration.RecordOutcome, state integration.RecordState, err error) integration.RecordOutcome {
	remote := integration.AsRemoteError(err)
	out.State = integration.StateFailed
	out.FailedIn = state
	out.Error = err.Error()
	out.ErrorKind = remote.Kind
	out.Retryable = remote.Retryable

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(state))

	fields := append(recordFields(rec, out.SKU), zap.String("state", state.String()))
	p.logger.Warn("record sync failed", append(fields, errorFields(err)...)...)

	rec.MarkFailed(p.marketplace(), err.Error(), e.now())
	if perr := e.persist(ctx, rec, p.marketplace()); perr != nil {
		p.logger.Error("failed to persist sync failure", append(recordFields(rec, out.SKU), zap.Error(perr))...)
	}
	return out
}

// persistFailed turns a synced outcome into a failure when its state could not be stored.
// The remote side is already up to date; the record stays selectable for the next pass.
func (e *SyncEngine) persistFailed(ctx context.Context, p *pass, out integration.RecordOutcome, err error) integration.RecordOutcome {
	out.State = integration.StateFailed
	out.FailedIn = integration.StateSynced
	out.Error = fmt.Sprintf("persist sync state: %v", err)
	out.ErrorKind = integration.KindUnknown
	out.Retryable = true

	trace.SpanFromContext(ctx).RecordError(err)
	p.logger.Error("failed to persist sync state",
		zap.String("inventory_record_id", out.RecordID.String()),
		zap.String("sku", out.SKU),
		zap.Error(err),
	)
	return out
}

// persist stores the sync state of a record. It outlives batch cancellation so that
// work already applied remotely is not forgotten.
func (e *SyncEngine) persist(ctx context.Context, rec *inventory.Record, m string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.CallTimeout)
	defer cancel()
	return e.records.SaveSyncState(ctx, rec, m)
}

// call runs one adapter call under CallTimeout and turns a panic into an Unknown failure
func (e *SyncEngine) call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if cerr := ctx.Err(); cerr != nil {
		if errors.Is(cerr, context.DeadlineExceeded) {
			return integration.WrapRemoteError(integration.KindTransient, "batch_timeout", cerr)
		}
		return cerr
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("adapter panicked", zap.Any("panic", r), zap.Stack("stacktrace"))
			err = integration.NewRemoteError(integration.KindUnknown, "adapter_panic", fmt.Sprintf("adapter panicked: %v", r))
		}
	}()
	return fn(ctx)
}

func newOutcome(rec *inventory.Record, productID string) integration.RecordOutcome {
	return integration.RecordOutcome{
		RecordID:        rec.ID,
		CardID:          rec.CardID,
		SKU:             integration.SKUFor(rec),
		State:           integration.StatePending,
		RemoteProductID: productID,
	}
}

func recordFields(rec *inventory.Record, sku string) []zap.Field {
	return []zap.Field{
		zap.String("catalog_item_id", rec.CardID.String()),
		zap.String("inventory_record_id", rec.ID.String()),
		zap.String("sku", sku),
	}
}

func errorFields(err error) []zap.Field {
	remote := integration.AsRemoteError(err)
	return []zap.Field{
		zap.Error(err),
		zap.String("error_kind", remote.Kind.String()),
		zap.Bool("retryable", remote.Retryable),
	}
}
