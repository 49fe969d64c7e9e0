package integration

import "strings"

// Marketplace identifies a remote marketplace channel
type Marketplace string

const (
	// MarketplaceStorefront is a hosted storefront platform with a GraphQL admin API
	MarketplaceStorefront Marketplace = "STOREFRONT"
	// MarketplaceAuction is an auction marketplace with a REST inventory API
	MarketplaceAuction Marketplace = "AUCTION"
	// MarketplaceCardMarket is a card-trading marketplace with a signed REST API
	MarketplaceCardMarket Marketplace = "CARDMARKET"
	// MarketplaceRetail is a global retail marketplace with a listings API
	MarketplaceRetail Marketplace = "RETAIL"
)

// AllMarketplaces returns every supported marketplace
func AllMarketplaces() []Marketplace {
	return []Marketplace{
		MarketplaceStorefront,
		MarketplaceAuction,
		MarketplaceCardMarket,
		MarketplaceRetail,
	}
}

// ParseMarketplace parses a marketplace code case-insensitively
func ParseMarketplace(s string) (Marketplace, error) {
	m := Marketplace(strings.ToUpper(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", ErrInvalidMarketplace
	}
	return m, nil
}

// IsValid returns true if the marketplace code is valid
func (m Marketplace) IsValid() bool {
	switch m {
	case MarketplaceStorefront, MarketplaceAuction, MarketplaceCardMarket, MarketplaceRetail:
		return true
	default:
		return false
	}
}

// String returns the string representation of Marketplace
func (m Marketplace) String() string {
	return string(m)
}

// DisplayName returns a human-readable name for the marketplace
func (m Marketplace) DisplayName() string {
	switch m {
	case MarketplaceStorefront:
		return "Storefront"
	case MarketplaceAuction:
		return "Auction"
	case MarketplaceCardMarket:
		return "Card Market"
	case MarketplaceRetail:
		return "Retail"
	default:
		return string(m)
	}
}
