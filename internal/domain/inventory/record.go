package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/cardvault/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StandardEdition is the edition label used when a record has no edition
const StandardEdition = "Standard"

// SyncStatus represents the synchronization status of an inventory record
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// IsValid returns true if the status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSynced, SyncStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncStatus
func (s SyncStatus) String() string {
	return string(s)
}

// ChannelState is the cached remote variant and last outcome of a record for one marketplace
type ChannelState struct {
	Marketplace     string
	RemoteVariantID string
	LastSyncedPrice decimal.NullDecimal
	SyncStatus      SyncStatus
	SyncError       string
	LastSyncedAt    *time.Time
}

// NaturalKey is the unique composite identity of a record
type NaturalKey struct {
	LocationID uuid.UUID
	CardID     uuid.UUID
	Foil       bool
	EditionID  *uuid.UUID
}

// String returns a printable form of the key
func (k NaturalKey) String() string {
	edition := "none"
	if k.EditionID != nil {
		edition = k.EditionID.String()
	}
	return fmt.Sprintf("%s/%s/%t/%s", k.LocationID, k.CardID, k.Foil, edition)
}

// Record is the quantity and price of one card at one location for one variant (foil, edition).
// Any quantity or price mutation flips it back to pending so the next pass picks it up.
type Record struct {
	shared.BaseEntity
	StoreID      uuid.UUID
	LocationID   uuid.UUID
	CardID       uuid.UUID
	Foil         bool
	EditionID    *uuid.UUID
	EditionLabel string
	Quantity     int
	SellPrice    decimal.NullDecimal
	BuyPrice     decimal.NullDecimal

	// Outcome of the most recent pass against any marketplace
	SyncStatus   SyncStatus
	SyncError    string
	LastSyncedAt *time.Time

	Channels []ChannelState

	// Version counts persisted stock edits; sync outcomes leave it unchanged
	Version int
}

// NewRecord creates a new pending inventory record with zero quantity
func NewRecord(storeID, locationID, cardID uuid.UUID, foil bool, editionID *uuid.UUID, editionLabel string) (*Record, error) {
	if storeID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STORE", "Store ID cannot be empty")
	}
	if locationID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_LOCATION", "Location ID cannot be empty")
	}
	if cardID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CARD", "Card ID cannot be empty")
	}
	editionLabel = strings.TrimSpace(editionLabel)
	if editionID == nil {
		editionLabel = ""
	} else {
		// The label is the edition's option value on marketplaces and must tell editions apart
		if editionLabel == "" {
			return nil, shared.NewDomainError("INVALID_EDITION_LABEL", "Edition label is required when an edition is set")
		}
		if strings.EqualFold(editionLabel, StandardEdition) {
			return nil, shared.NewDomainError("RESERVED_EDITION_LABEL", "Edition label Standard is reserved for records without an edition")
		}
	}

	return &Record{
		BaseEntity:   shared.NewBaseEntity(),
		StoreID:      storeID,
		LocationID:   locationID,
		CardID:       cardID,
		Foil:         foil,
		EditionID:    editionID,
		EditionLabel: editionLabel,
		SyncStatus:   SyncStatusPending,
		Channels:     make([]ChannelState, 0),
	}, nil
}

// NaturalKey returns the composite identity of the record
func (r *Record) NaturalKey() NaturalKey {
	return NaturalKey{
		LocationID: r.LocationID,
		CardID:     r.CardID,
		Foil:       r.Foil,
		EditionID:  r.EditionID,
	}
}

// Edition returns the edition label, StandardEdition when the record has no edition.
// An edition stored without a label falls back to its id.
func (r *Record) Edition() string {
	if r.EditionID == nil {
		return StandardEdition
	}
	if r.EditionLabel == "" {
		return r.EditionID.String()
	}
	return r.EditionLabel
}

// SetQuantity sets an absolute quantity
func (r *Record) SetQuantity(quantity int) error {
	if quantity < 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity cannot be negative")
	}
	r.Quantity = quantity
	r.markPending()
	return nil
}

// Adjust applies a quantity delta
func (r *Record) Adjust(delta int) error {
	if r.Quantity+delta < 0 {
		return shared.NewDomainError("INSUFFICIENT_STOCK", "Adjustment would make quantity negative")
	}
	r.Quantity += delta
	r.markPending()
	return nil
}

// SetSellPrice sets or clears the sell price
func (r *Record) SetSellPrice(price decimal.NullDecimal) error {
	if price.Valid && price.Decimal.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Sell price cannot be negative")
	}
	r.SellPrice = price
	r.markPending()
	return nil
}

// SetBuyPrice sets or clears the buy price
func (r *Record) SetBuyPrice(price decimal.NullDecimal) error {
	if price.Valid && price.Decimal.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Buy price cannot be negative")
	}
	r.BuyPrice = price
	r.markPending()
	return nil
}

func (r *Record) markPending() {
	r.SyncStatus = SyncStatusPending
	for i := range r.Channels {
		r.Channels[i].SyncStatus = SyncStatusPending
	}
	r.UpdatedAt = time.Now()
}

// Channel returns the state for a marketplace, nil if the record was never synced there
func (r *Record) Channel(marketplace string) *ChannelState {
	for i := range r.Channels {
		if r.Channels[i].Marketplace == marketplace {
			return &r.Channels[i]
		}
	}
	return nil
}

func (r *Record) channel(marketplace string) *ChannelState {
	if ch := r.Channel(marketplace); ch != nil {
		return ch
	}
	r.Channels = append(r.Channels, ChannelState{
		Marketplace: marketplace,
		SyncStatus:  SyncStatusPending,
	})
	return &r.Channels[len(r.Channels)-1]
}

// RemoteVariantID returns the cached remote variant id for a marketplace
func (r *Record) RemoteVariantID(marketplace string) string {
	if ch := r.Channel(marketplace); ch != nil {
		return ch.RemoteVariantID
	}
	return ""
}

// SetRemoteVariantID caches a resolved remote variant id
func (r *Record) SetRemoteVariantID(marketplace, remoteID string) {
	r.channel(marketplace).RemoteVariantID = remoteID
}

// ClearRemoteVariantID drops the cached remote variant id for a marketplace
func (r *Record) ClearRemoteVariantID(marketplace string) {
	if ch := r.Channel(marketplace); ch != nil {
		ch.RemoteVariantID = ""
	}
}

// NeedsSync reports whether a default pass against the marketplace should pick this record
func (r *Record) NeedsSync(marketplace string) bool {
	ch := r.Channel(marketplace)
	return ch == nil || ch.SyncStatus != SyncStatusSynced
}

// PriceChanged reports whether the sell price differs from the last price pushed to the marketplace.
// A record without a sell price never needs a price push.
func (r *Record) PriceChanged(marketplace string) bool {
	if !r.SellPrice.Valid {
		return false
	}
	ch := r.Channel(marketplace)
	if ch == nil || !ch.LastSyncedPrice.Valid {
		return true
	}
	return !ch.LastSyncedPrice.Decimal.Equal(r.SellPrice.Decimal)
}

// MarkSynced records a successful pass. pushedPrice is the price sent in this pass, if any.
func (r *Record) MarkSynced(marketplace, remoteVariantID string, pushedPrice decimal.NullDecimal, at time.Time) {
	ch := r.channel(marketplace)
	ch.RemoteVariantID = remoteVariantID
	if pushedPrice.Valid {
		ch.LastSyncedPrice = pushedPrice
	}
	ch.SyncStatus = SyncStatusSynced
	ch.SyncError = ""
	ch.LastSyncedAt = &at

	r.SyncStatus = SyncStatusSynced
	r.SyncError = ""
	r.LastSyncedAt = &at
}

// MarkFailed records a failed pass. Remote ids resolved before the failure are kept.
func (r *Record) MarkFailed(marketplace, message string, at time.Time) {
	ch := r.channel(marketplace)
	ch.SyncStatus = SyncStatusFailed
	ch.SyncError = message
	ch.LastSyncedAt = &at

	r.SyncStatus = SyncStatusFailed
	r.SyncError = message
}
