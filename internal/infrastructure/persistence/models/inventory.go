package models

import (
	"time"

	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryRecordModel is the persistence model for the Record domain entity.
type InventoryRecordModel struct {
	BaseModel
	StoreID      uuid.UUID           `gorm:"type:uuid;not null;index:idx_inventory_record_store_card,priority:1"`
	LocationID   uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_record_natural,priority:1"`
	CardID       uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:idx_inventory_record_natural,priority:2;index:idx_inventory_record_store_card,priority:2"`
	Foil         bool                `gorm:"not null;default:false;uniqueIndex:idx_inventory_record_natural,priority:3"`
	EditionID    *uuid.UUID          `gorm:"type:uuid;uniqueIndex:idx_inventory_record_natural,priority:4"`
	EditionLabel string              `gorm:"type:varchar(100)"`
	Quantity     int                 `gorm:"not null;default:0"`
	SellPrice    decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	BuyPrice     decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	SyncStatus   string              `gorm:"type:varchar(20);not null;default:'pending';index"`
	SyncError    string              `gorm:"type:text"`
	LastSyncedAt *time.Time
	Version      int `gorm:"not null;default:0"`

	RemoteVariants []InventoryRecordRemoteVariantModel `gorm:"foreignKey:InventoryRecordID"`
}

// TableName returns the table name for GORM
func (InventoryRecordModel) TableName() string {
	return "inventory_records"
}

// ToDomain converts the persistence model to a domain Record entity
func (m *InventoryRecordModel) ToDomain() *inventory.Record {
	r := &inventory.Record{
		BaseEntity:   m.BaseModel.ToDomain(),
		StoreID:      m.StoreID,
		LocationID:   m.LocationID,
		CardID:       m.CardID,
		Foil:         m.Foil,
		EditionID:    m.EditionID,
		EditionLabel: m.EditionLabel,
		Quantity:     m.Quantity,
		SellPrice:    m.SellPrice,
		BuyPrice:     m.BuyPrice,
		SyncStatus:   inventory.SyncStatus(m.SyncStatus),
		SyncError:    m.SyncError,
		LastSyncedAt: m.LastSyncedAt,
		Channels:     make([]inventory.ChannelState, 0, len(m.RemoteVariants)),
		Version:      m.Version,
	}
	for _, v := range m.RemoteVariants {
		r.Channels = append(r.Channels, v.ToDomain())
	}
	return r
}

// FromDomain populates the persistence model from a domain Record entity
func (m *InventoryRecordModel) FromDomain(r *inventory.Record) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.StoreID = r.StoreID
	m.LocationID = r.LocationID
	m.CardID = r.CardID
	m.Foil = r.Foil
	m.EditionID = r.EditionID
	m.EditionLabel = r.EditionLabel
	m.Quantity = r.Quantity
	m.SellPrice = r.SellPrice
	m.BuyPrice = r.BuyPrice
	m.SyncStatus = r.SyncStatus.String()
	m.SyncError = r.SyncError
	m.LastSyncedAt = r.LastSyncedAt
	m.Version = r.Version
	m.RemoteVariants = make([]InventoryRecordRemoteVariantModel, 0, len(r.Channels))
	for _, ch := range r.Channels {
		m.RemoteVariants = append(m.RemoteVariants, RemoteVariantModelFromDomain(r.ID, ch))
	}
}

// InventoryRecordModelFromDomain creates a new persistence model from domain Record entity
func InventoryRecordModelFromDomain(r *inventory.Record) *InventoryRecordModel {
	m := &InventoryRecordModel{}
	m.FromDomain(r)
	return m
}

// InventoryRecordRemoteVariantModel is the cached remote variant and last outcome of a record per marketplace.
// The store is implied by the record.
type InventoryRecordRemoteVariantModel struct {
	InventoryRecordID uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Marketplace       string              `gorm:"type:varchar(20);primaryKey;index"`
	RemoteVariantID   string              `gorm:"type:varchar(255)"`
	LastSyncedPrice   decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	SyncStatus        string              `gorm:"type:varchar(20);not null;default:'pending'"`
	SyncError         string              `gorm:"type:text"`
	LastSyncedAt      *time.Time
}

// TableName returns the table name for GORM
func (InventoryRecordRemoteVariantModel) TableName() string {
	return "inventory_record_remote_variants"
}

// ToDomain converts the persistence model to a domain ChannelState
func (m *InventoryRecordRemoteVariantModel) ToDomain() inventory.ChannelState {
	return inventory.ChannelState{
		Marketplace:     m.Marketplace,
		RemoteVariantID: m.RemoteVariantID,
		LastSyncedPrice: m.LastSyncedPrice,
		SyncStatus:      inventory.SyncStatus(m.SyncStatus),
		SyncError:       m.SyncError,
		LastSyncedAt:    m.LastSyncedAt,
	}
}

// RemoteVariantModelFromDomain creates the persistence model of one channel state
func RemoteVariantModelFromDomain(recordID uuid.UUID, ch inventory.ChannelState) InventoryRecordRemoteVariantModel {
	status := ch.SyncStatus
	if status == "" {
		status = inventory.SyncStatusPending
	}
	return InventoryRecordRemoteVariantModel{
		InventoryRecordID: recordID,
		Marketplace:       ch.Marketplace,
		RemoteVariantID:   ch.RemoteVariantID,
		LastSyncedPrice:   ch.LastSyncedPrice,
		SyncStatus:        status.String(),
		SyncError:         ch.SyncError,
		LastSyncedAt:      ch.LastSyncedAt,
	}
}
