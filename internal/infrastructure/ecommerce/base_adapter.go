package ecommerce

import (
	"context"
	"errors"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// baseAdapter holds what every marketplace adapter shares
type baseAdapter struct {
	marketplace integration.Marketplace
	config      AdapterConfig
	client      *apiClient
	refs        integration.RemoteRefStore
	logger      *zap.Logger
}

func newBaseAdapter(m integration.Marketplace, cfg AdapterConfig, deps Dependencies) baseAdapter {
	logger := deps.Logger.Named(string(m))
	return baseAdapter{
		marketplace: m,
		config:      cfg,
		client:      newAPIClient(m, cfg, logger),
		refs:        deps.Refs,
		logger:      logger,
	}
}

// Marketplace returns the marketplace served by the adapter
func (b *baseAdapter) Marketplace() integration.Marketplace {
	return b.marketplace
}

// baseURL picks the credential override, then the configured URL, then the marketplace default
func (b *baseAdapter) baseURL(conn *integration.Connection, fallback string) string {
	if u := conn.Settings.BaseURL(); u != "" {
		return u
	}
	if b.config.BaseURL != "" {
		return b.config.BaseURL
	}
	return fallback
}

// productSteps are the marketplace calls behind EnsureRemoteProduct
type productSteps struct {
	// verify checks that a cached id still resolves; a NotFound error means stale
	verify func(ctx context.Context, remoteID string) error
	// find looks up a product by a deterministic key; "" when none exists. Optional.
	find func(ctx context.Context) (string, error)
	// create creates the product from the card and returns its id
	create func(ctx context.Context) (string, error)
}

// ensureProduct verifies a cached product id, self-heals a stale one and creates the product
// when none exists. The resolved id is persisted and cached on the card.
func (b *baseAdapter) ensureProduct(ctx context.Context, conn *integration.Connection, card *catalog.Card, steps productSteps) (string, error) {
	m := string(b.marketplace)
	logger := b.logger.With(
		zap.String("store_id", conn.StoreID.String()),
		zap.String("catalog_item_id", card.ID.String()),
	)

	if cached := card.RemoteProductID(conn.StoreID, m); cached != "" {
		err := steps.verify(ctx, cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, integration.ErrNotFound) {
			return "", err
		}

		logger.Warn("cached remote product no longer resolves, recreating",
			zap.String("remote_product_id", cached),
		)
		if err := b.refs.InvalidateProduct(ctx, conn.StoreID, b.marketplace, card.ID); err != nil {
			return "", err
		}
		card.ClearRemoteProductID(conn.StoreID, m)
	}

	remoteID := ""
	if steps.find != nil {
		found, err := steps.find(ctx)
		if err != nil {
			return "", err
		}
		remoteID = found
	}
	if remoteID == "" {
		created, err := steps.create(ctx)
		if err != nil {
			return "", err
		}
		remoteID = created
		logger.Info("remote product created", zap.String("remote_product_id", remoteID))
	}

	if err := b.refs.SaveProductID(ctx, conn.StoreID, b.marketplace, card.ID, remoteID); err != nil {
		return "", err
	}
	card.SetRemoteProductID(conn.StoreID, m, remoteID)
	return remoteID, nil
}

// testConnection runs a probe and folds any failure into (false, cause)
func (b *baseAdapter) testConnection(ctx context.Context, probe func(ctx context.Context) error) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = integration.NewRemoteError(integration.KindUnknown, "panic", "connection test panicked")
		}
	}()
	if err := probe(ctx); err != nil {
		return false, err
	}
	return true, nil
}
