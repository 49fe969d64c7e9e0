package ecommerce

// Auction marketplace REST constants
const (
	AuctionProductionURL = "https://api.auctionhouse.com"
	AuctionSandboxURL    = "https://api.sandbox.auctionhouse.com"

	AuctionTokenPath     = "/identity/v1/oauth2/token"
	AuctionInventoryPath = "/sell/inventory/v1"

	AuctionDefaultMarketplaceID = "AUCTION_US"
	AuctionDefaultCurrency      = "USD"
	AuctionDefaultScope         = "https://api.auctionhouse.com/oauth/api_scope/sell.inventory"
	AuctionContentLanguage      = "en-US"
	AuctionConditionNew         = "NEW"
	AuctionFormatFixedPrice     = "FIXED_PRICE"
)

// AuctionErrorResponse is the error body of the auction REST API
type AuctionErrorResponse struct {
	Errors []AuctionError `json:"errors"`
}

// AuctionError is one error entry
type AuctionError struct {
	ErrorID  int    `json:"errorId"`
	Domain   string `json:"domain,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// AuctionProduct is the catalog side of an inventory item or group
type AuctionProduct struct {
	Title   string              `json:"title"`
	Aspects map[string][]string `json:"aspects,omitempty"`
}

// AuctionShipToLocationAvailability is the available quantity of an item
type AuctionShipToLocationAvailability struct {
	Quantity                  int                               `json:"quantity,omitempty"`
	AvailabilityDistributions []AuctionAvailabilityDistribution `json:"availabilityDistributions,omitempty"`
}

// AuctionAvailabilityDistribution is the quantity at one merchant location
type AuctionAvailabilityDistribution struct {
	MerchantLocationKey string `json:"merchantLocationKey"`
	Quantity            int    `json:"quantity"`
}

// AuctionAvailability wraps the ship-to-location availability
type AuctionAvailability struct {
	ShipToLocationAvailability AuctionShipToLocationAvailability `json:"shipToLocationAvailability"`
}

// AuctionInventoryItem is a stock-keeping unit, keyed by SKU. It plays the variant role.
type AuctionInventoryItem struct {
	SKU                    string              `json:"sku,omitempty"`
	Condition              string              `json:"condition,omitempty"`
	Product                AuctionProduct      `json:"product"`
	Availability           AuctionAvailability `json:"availability"`
	InventoryItemGroupKeys []string            `json:"inventoryItemGroupKeys,omitempty"`
}

// AuctionSpecification is one varying aspect of a group
type AuctionSpecification struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// AuctionVariesBy lists the aspects variants of a group differ by
type AuctionVariesBy struct {
	AspectsImageVariesBy []string               `json:"aspectsImageVariesBy,omitempty"`
	Specifications       []AuctionSpecification `json:"specifications"`
}

// AuctionItemGroup groups the inventory items of one card. It plays the product role.
type AuctionItemGroup struct {
	InventoryItemGroupKey string              `json:"inventoryItemGroupKey,omitempty"`
	Title                 string              `json:"title"`
	Aspects               map[string][]string `json:"aspects,omitempty"`
	VariantSKUs           []string            `json:"variantSKUs"`
	VariesBy              AuctionVariesBy     `json:"variesBy"`
}

// AuctionAmount is a monetary value
type AuctionAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// AuctionPricingSummary holds the offer price
type AuctionPricingSummary struct {
	Price *AuctionAmount `json:"price,omitempty"`
}

// AuctionOffer lists an inventory item at a merchant location
type AuctionOffer struct {
	OfferID             string                 `json:"offerId,omitempty"`
	SKU                 string                 `json:"sku"`
	MarketplaceID       string                 `json:"marketplaceId"`
	Format              string                 `json:"format"`
	MerchantLocationKey string                 `json:"merchantLocationKey"`
	AvailableQuantity   int                    `json:"availableQuantity"`
	PricingSummary      *AuctionPricingSummary `json:"pricingSummary,omitempty"`
}

// AuctionOffers is a page of offers
type AuctionOffers struct {
	Total  int            `json:"total"`
	Offers []AuctionOffer `json:"offers"`
}

// AuctionCreatedOffer is the response of offer creation
type AuctionCreatedOffer struct {
	OfferID string `json:"offerId"`
}

// AuctionLocations is a page of merchant locations
type AuctionLocations struct {
	Total     int `json:"total"`
	Locations []struct {
		MerchantLocationKey string `json:"merchantLocationKey"`
	} `json:"locations"`
}

// AuctionPriceQuantityRequest updates the price or quantity of one SKU
type AuctionPriceQuantityRequest struct {
	SKU                        string                             `json:"sku"`
	ShipToLocationAvailability *AuctionShipToLocationAvailability `json:"shipToLocationAvailability,omitempty"`
	Offers                     []AuctionOfferPrice                `json:"offers,omitempty"`
}

// AuctionOfferPrice is the new price of one offer
type AuctionOfferPrice struct {
	OfferID string        `json:"offerId"`
	Price   AuctionAmount `json:"price"`
}

// AuctionBulkPriceQuantity is the bulk_update_price_quantity request body
type AuctionBulkPriceQuantity struct {
	Requests []AuctionPriceQuantityRequest `json:"requests"`
}

// AuctionBulkPriceQuantityResponse reports one status per SKU and offer
type AuctionBulkPriceQuantityResponse struct {
	Responses []struct {
		StatusCode int            `json:"statusCode"`
		SKU        string         `json:"sku"`
		OfferID    string         `json:"offerId,omitempty"`
		Errors     []AuctionError `json:"errors,omitempty"`
	} `json:"responses"`
}
