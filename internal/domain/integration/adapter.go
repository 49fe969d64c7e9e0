package integration

import (
	"context"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketplaceAdapter is implemented once per marketplace. Every method fails with *RemoteAPIError
// for expected failure modes; the wire protocol and auth flow stay inside the adapter.
type MarketplaceAdapter interface {
	// Marketplace returns the marketplace served by the adapter
	Marketplace() Marketplace

	// TestConnection performs a lightweight authenticated call.
	// It returns false with the cause on any failure and never panics across the boundary.
	TestConnection(ctx context.Context, conn *Connection) (bool, error)

	// EnsureRemoteProduct returns the remote product of a card, verifying a cached id and
	// recreating the product when the cached id no longer resolves. The resolved id is persisted.
	EnsureRemoteProduct(ctx context.Context, conn *Connection, card *catalog.Card) (string, error)

	// EnsureRemoteVariant resolves the variant of a record by SKU, then by option tuple, and only
	// then creates it. siblings are the other records of the same card in the pass.
	EnsureRemoteVariant(ctx context.Context, conn *Connection, card *catalog.Card, record *inventory.Record, siblings []*inventory.Record) (string, error)

	// EnsureInventoryTracking enables tracking of the variant at the remote location
	EnsureInventoryTracking(ctx context.Context, conn *Connection, variantID, remoteLocationID string) error

	// PushQuantity sets the absolute quantity of the variant at the remote location
	PushQuantity(ctx context.Context, conn *Connection, variantID, remoteLocationID string, quantity int) error

	// PushPrice sets the price of the variant
	PushPrice(ctx context.Context, conn *Connection, variantID string, price decimal.Decimal) error
}

// AdapterResolver resolves the adapter of a marketplace
type AdapterResolver interface {
	Adapter(m Marketplace) (MarketplaceAdapter, error)
}

// RemoteRefStore persists the remote ids adapters resolve
type RemoteRefStore interface {
	// SaveProductID caches the remote product id of a card
	SaveProductID(ctx context.Context, storeID uuid.UUID, m Marketplace, cardID uuid.UUID, remoteID string) error

	// InvalidateProduct drops the cached product id of a card and the cached variant ids
	// of every inventory record of that card
	InvalidateProduct(ctx context.Context, storeID uuid.UUID, m Marketplace, cardID uuid.UUID) error
}
