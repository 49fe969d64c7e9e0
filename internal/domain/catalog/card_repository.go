package catalog

import (
	"context"

	"github.com/google/uuid"
)

// CardRepository defines the interface for card persistence
type CardRepository interface {
	// FindByID finds a card by its ID, including its remote product refs
	FindByID(ctx context.Context, id uuid.UUID) (*Card, error)

	// FindByIDs finds multiple cards by their IDs
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Card, error)

	// Save creates or updates a card and its remote product refs
	Save(ctx context.Context, card *Card) error

	// SaveRemoteProductID upserts the cached remote product id of one card
	SaveRemoteProductID(ctx context.Context, cardID, storeID uuid.UUID, marketplace, remoteID string) error

	// ClearRemoteProductID removes the cached remote product id of one card
	ClearRemoteProductID(ctx context.Context, cardID, storeID uuid.UUID, marketplace string) error

	// ClearRemoteProductsForChannel removes every cached remote product id of a store + marketplace
	ClearRemoteProductsForChannel(ctx context.Context, storeID uuid.UUID, marketplace string) (int64, error)
}
