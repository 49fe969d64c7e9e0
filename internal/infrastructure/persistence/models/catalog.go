package models

import (
	"encoding/json"
	"time"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/google/uuid"
)

// CatalogItemModel is the persistence model for the Card domain entity.
type CatalogItemModel struct {
	BaseModel
	Name            string                          `gorm:"type:varchar(255);not null;index"`
	Game            string                          `gorm:"type:varchar(100)"`
	SetName         string                          `gorm:"type:varchar(255);column:set_name"`
	Rarity          string                          `gorm:"type:varchar(50)"`
	CollectorNumber string                          `gorm:"type:varchar(50)"`
	ExtraTagsJSON   string                          `gorm:"type:text;column:extra_tags"`
	RemoteProducts  []CatalogItemRemoteProductModel `gorm:"foreignKey:CatalogItemID"`
}

// TableName returns the table name for GORM
func (CatalogItemModel) TableName() string {
	return "catalog_items"
}

// ToDomain converts the persistence model to a domain Card entity
func (m *CatalogItemModel) ToDomain() *catalog.Card {
	card := &catalog.Card{
		BaseEntity: m.BaseModel.ToDomain(),
		Name:       m.Name,
		Tags: catalog.Tags{
			Game:            m.Game,
			Set:             m.SetName,
			Rarity:          m.Rarity,
			CollectorNumber: m.CollectorNumber,
		},
		RemoteProducts: make([]catalog.RemoteProductRef, 0, len(m.RemoteProducts)),
	}
	if m.ExtraTagsJSON != "" {
		var extra []string
		if err := json.Unmarshal([]byte(m.ExtraTagsJSON), &extra); err == nil {
			card.Tags.Extra = extra
		}
	}
	for _, rp := range m.RemoteProducts {
		card.RemoteProducts = append(card.RemoteProducts, catalog.RemoteProductRef{
			StoreID:         rp.StoreID,
			Marketplace:     rp.Marketplace,
			RemoteProductID: rp.RemoteProductID,
		})
	}
	return card
}

// FromDomain populates the persistence model from a domain Card entity
func (m *CatalogItemModel) FromDomain(c *catalog.Card) {
	m.FromDomainBaseEntity(c.BaseEntity)
	m.Name = c.Name
	m.Game = c.Tags.Game
	m.SetName = c.Tags.Set
	m.Rarity = c.Tags.Rarity
	m.CollectorNumber = c.Tags.CollectorNumber
	m.ExtraTagsJSON = ""
	if len(c.Tags.Extra) > 0 {
		if data, err := json.Marshal(c.Tags.Extra); err == nil {
			m.ExtraTagsJSON = string(data)
		}
	}
	m.RemoteProducts = make([]CatalogItemRemoteProductModel, 0, len(c.RemoteProducts))
	for _, ref := range c.RemoteProducts {
		m.RemoteProducts = append(m.RemoteProducts, CatalogItemRemoteProductModel{
			CatalogItemID:   c.ID,
			StoreID:         ref.StoreID,
			Marketplace:     ref.Marketplace,
			RemoteProductID: ref.RemoteProductID,
			UpdatedAt:       c.UpdatedAt,
		})
	}
}

// CatalogItemModelFromDomain creates a new persistence model from domain Card entity
func CatalogItemModelFromDomain(c *catalog.Card) *CatalogItemModel {
	m := &CatalogItemModel{}
	m.FromDomain(c)
	return m
}

// CatalogItemRemoteProductModel caches the remote product id of a card per store + marketplace.
// The composite primary key holds at most one live remote product per channel.
type CatalogItemRemoteProductModel struct {
	CatalogItemID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	StoreID         uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_remote_product_channel,priority:1"`
	Marketplace     string    `gorm:"type:varchar(20);primaryKey;index:idx_remote_product_channel,priority:2"`
	RemoteProductID string    `gorm:"type:varchar(255);not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CatalogItemRemoteProductModel) TableName() string {
	return "catalog_item_remote_products"
}
