package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/shared"
	"github.com/cardvault/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCardRepository implements CardRepository using GORM
type GormCardRepository struct {
	db *gorm.DB
}

// NewGormCardRepository creates a new GormCardRepository
func NewGormCardRepository(db *gorm.DB) *GormCardRepository {
	return &GormCardRepository{db: db}
}

// FindByID finds a card by its ID, including its remote product refs
func (r *GormCardRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Card, error) {
	var model models.CatalogItemModel
	if err := r.db.WithContext(ctx).Preload("RemoteProducts").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs finds multiple cards by their IDs
func (r *GormCardRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Card, error) {
	if len(ids) == 0 {
		return []catalog.Card{}, nil
	}
	var itemModels []models.CatalogItemModel
	if err := r.db.WithContext(ctx).
		Preload("RemoteProducts").
		Where("id IN ?", ids).
		Order("name ASC").
		Find(&itemModels).Error; err != nil {
		return nil, err
	}

	cards := make([]catalog.Card, len(itemModels))
	for i := range itemModels {
		cards[i] = *itemModels[i].ToDomain()
	}
	return cards, nil
}

// Save creates or updates a card and replaces its remote product refs
func (r *GormCardRepository) Save(ctx context.Context, card *catalog.Card) error {
	model := models.CatalogItemModelFromDomain(card)
	refs := model.RemoteProducts
	model.RemoteProducts = nil

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "game", "set_name", "rarity", "collector_number", "extra_tags", "updated_at"}),
		}).Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}
		if err := tx.Where("catalog_item_id = ?", card.ID).Delete(&models.CatalogItemRemoteProductModel{}).Error; err != nil {
			return err
		}
		if len(refs) == 0 {
			return nil
		}
		return tx.Create(&refs).Error
	})
}

// SaveRemoteProductID upserts the cached remote product id of one card
func (r *GormCardRepository) SaveRemoteProductID(ctx context.Context, cardID, storeID uuid.UUID, marketplace, remoteID string) error {
	ref := models.CatalogItemRemoteProductModel{
		CatalogItemID:   cardID,
		StoreID:         storeID,
		Marketplace:     marketplace,
		RemoteProductID: remoteID,
		UpdatedAt:       time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "catalog_item_id"}, {Name: "store_id"}, {Name: "marketplace"}},
		DoUpdates: clause.AssignmentColumns([]string{"remote_product_id", "updated_at"}),
	}).Create(&ref).Error
}

// ClearRemoteProductID removes the cached remote product id of one card
func (r *GormCardRepository) ClearRemoteProductID(ctx context.Context, cardID, storeID uuid.UUID, marketplace string) error {
	return r.db.WithContext(ctx).
		Where("catalog_item_id = ? AND store_id = ? AND marketplace = ?", cardID, storeID, marketplace).
		Delete(&models.CatalogItemRemoteProductModel{}).Error
}

// ClearRemoteProductsForChannel removes every cached remote product id of a store + marketplace
func (r *GormCardRepository) ClearRemoteProductsForChannel(ctx context.Context, storeID uuid.UUID, marketplace string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("store_id = ? AND marketplace = ?", storeID, marketplace).
		Delete(&models.CatalogItemRemoteProductModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormCardRepository implements CardRepository
var _ catalog.CardRepository = (*GormCardRepository)(nil)
