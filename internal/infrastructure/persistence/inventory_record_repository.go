package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/cardvault/backend/internal/domain/shared"
	"github.com/cardvault/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// remoteVariantUpsert upserts one channel state of a record
var remoteVariantUpsert = clause.OnConflict{
	Columns: []clause.Column{{Name: "inventory_record_id"}, {Name: "marketplace"}},
	DoUpdates: clause.AssignmentColumns([]string{
		"remote_variant_id", "last_synced_price", "sync_status", "sync_error", "last_synced_at",
	}),
}

// GormRecordRepository implements RecordRepository using GORM
type GormRecordRepository struct {
	db *gorm.DB
}

// NewGormRecordRepository creates a new GormRecordRepository
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

// FindByID finds a record by its ID, including its channel states
func (r *GormRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*inventory.Record, error) {
	var model models.InventoryRecordModel
	if err := r.db.WithContext(ctx).Preload("RemoteVariants").First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindForSync returns the records matching a selection, ordered by card.
// Without Force, records already synced to the marketplace are skipped.
func (r *GormRecordRepository) FindForSync(ctx context.Context, sel inventory.SyncSelection) ([]inventory.Record, error) {
	query := r.db.WithContext(ctx).
		Preload("RemoteVariants").
		Where("store_id = ?", sel.StoreID)
	if len(sel.RecordIDs) > 0 {
		query = query.Where("id IN ?", sel.RecordIDs)
	}
	if !sel.Force {
		query = query.Where(`NOT EXISTS (
			SELECT 1 FROM inventory_record_remote_variants v
			WHERE v.inventory_record_id = inventory_records.id AND v.marketplace = ? AND v.sync_status = ?
		)`, sel.Marketplace, inventory.SyncStatusSynced.String())
	}

	var recordModels []models.InventoryRecordModel
	if err := query.Order("card_id ASC").Order("id ASC").Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return toRecords(recordModels), nil
}

// FindByCard finds all records of a card within a store
func (r *GormRecordRepository) FindByCard(ctx context.Context, storeID, cardID uuid.UUID) ([]inventory.Record, error) {
	var recordModels []models.InventoryRecordModel
	if err := r.db.WithContext(ctx).
		Preload("RemoteVariants").
		Where("store_id = ? AND card_id = ?", storeID, cardID).
		Order("id ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return toRecords(recordModels), nil
}

// Save creates or updates a record and its channel states and bumps its version
func (r *GormRecordRepository) Save(ctx context.Context, record *inventory.Record) error {
	model := models.InventoryRecordModelFromDomain(record)
	model.Version = record.Version + 1
	channels := model.RemoteVariants
	model.RemoteVariants = nil

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"edition_label", "quantity", "sell_price", "buy_price",
				"sync_status", "sync_error", "last_synced_at", "updated_at", "version",
			}),
		}).Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}
		if len(channels) == 0 {
			return nil
		}
		return tx.Clauses(remoteVariantUpsert).Create(&channels).Error
	})
	if err != nil {
		return err
	}
	record.Version = model.Version
	return nil
}

// SaveSyncState persists the sync fields of a record and its state for one marketplace.
// Quantity and prices are not written. When the record was edited after it was loaded
// (its version moved on), the outcome is stored but the record stays pending so the
// next pass pushes the edit.
func (r *GormRecordRepository) SaveSyncState(ctx context.Context, record *inventory.Record, marketplace string) error {
	ch := record.Channel(marketplace)
	if ch == nil {
		return nil
	}
	variant := models.RemoteVariantModelFromDomain(record.ID, *ch)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.InventoryRecordModel{}).
			Where("id = ? AND version = ?", record.ID, record.Version).
			Updates(map[string]any{
				"sync_status":    record.SyncStatus.String(),
				"sync_error":     record.SyncError,
				"last_synced_at": record.LastSyncedAt,
				"updated_at":     time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.InventoryRecordModel{}).Where("id = ?", record.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return shared.ErrNotFound
			}
			variant.SyncStatus = inventory.SyncStatusPending.String()
		}
		return tx.Clauses(remoteVariantUpsert).Create(&variant).Error
	})
}

// ClearRemoteVariantsForCard drops cached variant ids of every record of a card for a store + marketplace
func (r *GormRecordRepository) ClearRemoteVariantsForCard(ctx context.Context, storeID, cardID uuid.UUID, marketplace string) (int64, error) {
	records := r.db.Model(&models.InventoryRecordModel{}).
		Select("id").
		Where("store_id = ? AND card_id = ?", storeID, cardID)
	return r.clearVariants(ctx, marketplace, records)
}

// ClearRemoteVariantsForChannel drops every cached variant id of a store + marketplace
func (r *GormRecordRepository) ClearRemoteVariantsForChannel(ctx context.Context, storeID uuid.UUID, marketplace string) (int64, error) {
	records := r.db.Model(&models.InventoryRecordModel{}).
		Select("id").
		Where("store_id = ?", storeID)
	return r.clearVariants(ctx, marketplace, records)
}

func (r *GormRecordRepository) clearVariants(ctx context.Context, marketplace string, records *gorm.DB) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.InventoryRecordRemoteVariantModel{}).
		Where("marketplace = ? AND inventory_record_id IN (?)", marketplace, records).
		Updates(map[string]any{
			"remote_variant_id": "",
			"sync_status":       inventory.SyncStatusPending.String(),
		})
	return result.RowsAffected, result.Error
}

func toRecords(recordModels []models.InventoryRecordModel) []inventory.Record {
	records := make([]inventory.Record, len(recordModels))
	for i := range recordModels {
		records[i] = *recordModels[i].ToDomain()
	}
	return records
}

// Ensure GormRecordRepository implements RecordRepository
var _ inventory.RecordRepository = (*GormRecordRepository)(nil)
