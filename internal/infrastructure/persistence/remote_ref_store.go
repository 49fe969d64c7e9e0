package persistence

import (
	"context"
	"fmt"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormRemoteRefStore persists the remote ids adapters resolve.
// Invalidating a product clears the product ref and every variant ref of the card in one transaction.
type GormRemoteRefStore struct {
	db *gorm.DB
}

// NewGormRemoteRefStore creates a new GormRemoteRefStore
func NewGormRemoteRefStore(db *gorm.DB) *GormRemoteRefStore {
	return &GormRemoteRefStore{db: db}
}

// SaveProductID caches the remote product id of a card
func (s *GormRemoteRefStore) SaveProductID(ctx context.Context, storeID uuid.UUID, m integration.Marketplace, cardID uuid.UUID, remoteID string) error {
	return NewGormCardRepository(s.db).SaveRemoteProductID(ctx, cardID, storeID, m.String(), remoteID)
}

// InvalidateProduct drops the cached product id of a card and the cached variant ids of its records
func (s *GormRemoteRefStore) InvalidateProduct(ctx context.Context, storeID uuid.UUID, m integration.Marketplace, cardID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := NewGormCardRepository(tx).ClearRemoteProductID(ctx, cardID, storeID, m.String()); err != nil {
			return err
		}
		_, err := NewGormRecordRepository(tx).ClearRemoteVariantsForCard(ctx, storeID, cardID, m.String())
		return err
	})
}

// RemoveIntegration clears the cached remote ids of a store + marketplace and deletes its
// credential in one transaction
func (s *GormRemoteRefStore) RemoveIntegration(ctx context.Context, storeID uuid.UUID, m integration.Marketplace) (integration.RemovedRefs, error) {
	var removed integration.RemovedRefs
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products, err := NewGormCardRepository(tx).ClearRemoteProductsForChannel(ctx, storeID, m.String())
		if err != nil {
			return fmt.Errorf("clear remote products: %w", err)
		}
		variants, err := NewGormRecordRepository(tx).ClearRemoteVariantsForChannel(ctx, storeID, m.String())
		if err != nil {
			return fmt.Errorf("clear remote variants: %w", err)
		}
		result := tx.Where("store_id = ? AND marketplace = ?", storeID, m.String()).
			Delete(&models.IntegrationCredentialModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return integration.ErrCredentialNotFound
		}
		removed = integration.RemovedRefs{Products: products, Variants: variants}
		return nil
	})
	return removed, err
}

// Ensure GormRemoteRefStore implements RemoteRefStore and IntegrationRemover
var (
	_ integration.RemoteRefStore     = (*GormRemoteRefStore)(nil)
	_ integration.IntegrationRemover = (*GormRemoteRefStore)(nil)
)
