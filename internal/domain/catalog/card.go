package catalog

import (
	"strings"
	"time"

	"github.com/cardvault/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Tags are the descriptive attributes of a card used as remote taxonomy
type Tags struct {
	Game            string
	Set             string
	Rarity          string
	CollectorNumber string
	Extra           []string
}

// Values returns the non-empty tag values in a stable order
func (t Tags) Values() []string {
	values := make([]string, 0, 4+len(t.Extra))
	for _, v := range []string{t.Game, t.Set, t.Rarity, t.CollectorNumber} {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	for _, v := range t.Extra {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// RemoteProductRef caches the remote product id of a card for one store + marketplace
type RemoteProductRef struct {
	StoreID         uuid.UUID
	Marketplace     string
	RemoteProductID string
}

// Card is a catalog item: one sellable card design, independent of stock or location.
// A card holds at most one live remote product per (store, marketplace).
type Card struct {
	shared.BaseEntity
	Name           string
	Tags           Tags
	RemoteProducts []RemoteProductRef
}

// NewCard creates a new card
func NewCard(name string, tags Tags) (*Card, error) {
	if err := validateCardName(name); err != nil {
		return nil, err
	}
	return &Card{
		BaseEntity:     shared.NewBaseEntity(),
		Name:           strings.TrimSpace(name),
		Tags:           tags,
		RemoteProducts: make([]RemoteProductRef, 0),
	}, nil
}

// RemoteProductID returns the cached remote product id, or "" when none is cached
func (c *Card) RemoteProductID(storeID uuid.UUID, marketplace string) string {
	for _, ref := range c.RemoteProducts {
		if ref.StoreID == storeID && ref.Marketplace == marketplace {
			return ref.RemoteProductID
		}
	}
	return ""
}

// SetRemoteProductID caches the remote product id for a store + marketplace
func (c *Card) SetRemoteProductID(storeID uuid.UUID, marketplace, remoteID string) {
	if remoteID == "" {
		c.ClearRemoteProductID(storeID, marketplace)
		return
	}
	for i := range c.RemoteProducts {
		if c.RemoteProducts[i].StoreID == storeID && c.RemoteProducts[i].Marketplace == marketplace {
			c.RemoteProducts[i].RemoteProductID = remoteID
			c.UpdatedAt = time.Now()
			return
		}
	}
	c.RemoteProducts = append(c.RemoteProducts, RemoteProductRef{
		StoreID:         storeID,
		Marketplace:     marketplace,
		RemoteProductID: remoteID,
	})
	c.UpdatedAt = time.Now()
}

// ClearRemoteProductID drops the cached remote product id for a store + marketplace
func (c *Card) ClearRemoteProductID(storeID uuid.UUID, marketplace string) {
	for i, ref := range c.RemoteProducts {
		if ref.StoreID == storeID && ref.Marketplace == marketplace {
			c.RemoteProducts = append(c.RemoteProducts[:i], c.RemoteProducts[i+1:]...)
			c.UpdatedAt = time.Now()
			return
		}
	}
}

// Rename updates the card name
func (c *Card) Rename(name string) error {
	if err := validateCardName(name); err != nil {
		return err
	}
	c.Name = strings.TrimSpace(name)
	c.UpdatedAt = time.Now()
	return nil
}

func validateCardName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Card name cannot be empty")
	}
	if len(name) > 255 {
		return shared.NewDomainError("INVALID_NAME", "Card name cannot exceed 255 characters")
	}
	return nil
}
