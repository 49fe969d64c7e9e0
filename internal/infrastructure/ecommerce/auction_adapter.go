package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// AuctionAdapter implements MarketplaceAdapter for the auction marketplace inventory API.
// A card maps to an inventory item group, a record to an inventory item keyed by SKU,
// and stocking at a location to an offer at the merchant location.
type AuctionAdapter struct {
	baseAdapter
	tokens *tokenProvider
}

// NewAuctionAdapter creates a new auction adapter
func NewAuctionAdapter(cfg AdapterConfig, deps Dependencies) (*AuctionAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(true); err != nil {
		return nil, err
	}
	base := newBaseAdapter(integration.MarketplaceAuction, cfg, deps)
	return &AuctionAdapter{
		baseAdapter: base,
		tokens:      newTokenProvider(deps.Tokens, base.logger),
	}, nil
}

// AuctionGroupKey returns the deterministic inventory item group key of a card
func AuctionGroupKey(card *catalog.Card) string {
	return integration.CardKey(card.ID)
}

// TestConnection lists merchant locations with a fresh or cached user token
func (a *AuctionAdapter) TestConnection(ctx context.Context, conn *integration.Connection) (bool, error) {
	return a.testConnection(ctx, func(ctx context.Context) error {
		var locations AuctionLocations
		return a.call(ctx, conn, http.MethodGet, "/location?limit=1", nil, &locations)
	})
}

// EnsureRemoteProduct returns the card's inventory item group
func (a *AuctionAdapter) EnsureRemoteProduct(ctx context.Context, conn *integration.Connection, card *catalog.Card) (string, error) {
	key := AuctionGroupKey(card)
	return a.ensureProduct(ctx, conn, card, productSteps{
		verify: func(ctx context.Context, remoteID string) error {
			_, err := a.getGroup(ctx, conn, remoteID)
			return err
		},
		find: func(ctx context.Context) (string, error) {
			group, err := a.getGroup(ctx, conn, key)
			if isNotFound(err) {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			return group.InventoryItemGroupKey, nil
		},
		create: func(ctx context.Context) (string, error) {
			group := AuctionItemGroup{
				InventoryItemGroupKey: key,
				Title:                 card.Name,
				Aspects:               auctionCardAspects(card),
				VariantSKUs:           []string{},
				VariesBy: AuctionVariesBy{Specifications: []AuctionSpecification{
					{Name: integration.OptionFinish, Values: []string{}},
					{Name: integration.OptionEdition, Values: []string{}},
				}},
			}
			if err := a.putGroup(ctx, conn, key, group); err != nil {
				return "", err
			}
			return key, nil
		},
	})
}

// EnsureRemoteVariant resolves the record's inventory item by cached SKU, derived SKU,
// then option tuple among the group's items, and creates it only when none matches
func (a *AuctionAdapter) EnsureRemoteVariant(ctx context.Context, conn *integration.Connection, card *catalog.Card, record *inventory.Record, _ []*inventory.Record) (string, error) {
	groupKey := card.RemoteProductID(conn.StoreID, string(a.marketplace))
	if groupKey == "" {
		return "", integration.NewRemoteError(integration.KindValidation, "product_unresolved", "remote product must be resolved before its variants")
	}
	sku := integration.SKUFor(record)
	opts := integration.OptionsFor(record)

	for _, candidate := range []string{record.RemoteVariantID(string(a.marketplace)), sku} {
		if candidate == "" {
			continue
		}
		_, err := a.getItem(ctx, conn, candidate)
		if err == nil {
			group, err := a.getGroup(ctx, conn, groupKey)
			if err != nil {
				return "", err
			}
			// A recreated group has lost its members
			if err := a.linkItem(ctx, conn, group, candidate, opts); err != nil {
				return "", err
			}
			return candidate, nil
		}
		if !isNotFound(err) {
			return "", err
		}
	}

	group, err := a.getGroup(ctx, conn, groupKey)
	if err != nil {
		return "", err
	}
	for _, existing := range group.VariantSKUs {
		item, err := a.getItem(ctx, conn, existing)
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		if auctionItemOptions(item).Equal(opts) {
			return existing, nil
		}
	}

	item := AuctionInventoryItem{
		Condition: AuctionConditionNew,
		Product: AuctionProduct{
			Title: card.Name,
			Aspects: map[string][]string{
				integration.OptionFinish:  {opts.Finish},
				integration.OptionEdition: {opts.Edition},
			},
		},
	}
	if err := a.call(ctx, conn, http.MethodPut, "/inventory_item/"+url.PathEscape(sku), item, nil); err != nil {
		return "", err
	}

	if err := a.linkItem(ctx, conn, group, sku, opts); err != nil {
		return "", err
	}

	a.logger.Info("inventory item created",
		zap.String("store_id", conn.StoreID.String()),
		zap.String("sku", sku),
		zap.String("remote_product_id", groupKey),
	)
	return sku, nil
}

// EnsureInventoryTracking makes sure an offer lists the item at the merchant location
func (a *AuctionAdapter) EnsureInventoryTracking(ctx context.Context, conn *integration.Connection, variantID, remoteLocationID string) error {
	offers, err := a.offers(ctx, conn, variantID)
	if err != nil {
		return err
	}
	for _, o := range offers {
		if o.MerchantLocationKey == remoteLocationID {
			return nil
		}
	}
	offer := AuctionOffer{
		SKU:                 variantID,
		MarketplaceID:       conn.Settings.Get(integration.SettingMarketplaceID, AuctionDefaultMarketplaceID),
		Format:              AuctionFormatFixedPrice,
		MerchantLocationKey: remoteLocationID,
	}
	var created AuctionCreatedOffer
	return a.call(ctx, conn, http.MethodPost, "/offer", offer, &created)
}

// PushQuantity sets the absolute quantity of the item at the merchant location
func (a *AuctionAdapter) PushQuantity(ctx context.Context, conn *integration.Connection, variantID, remoteLocationID string, quantity int) error {
	return a.bulkUpdate(ctx, conn, AuctionPriceQuantityRequest{
		SKU: variantID,
		ShipToLocationAvailability: &AuctionShipToLocationAvailability{
			AvailabilityDistributions: []AuctionAvailabilityDistribution{
				{MerchantLocationKey: remoteLocationID, Quantity: quantity},
			},
		},
	})
}

// PushPrice sets the price of every offer of the item
func (a *AuctionAdapter) PushPrice(ctx context.Context, conn *integration.Connection, variantID string, price decimal.Decimal) error {
	offers, err := a.offers(ctx, conn, variantID)
	if err != nil {
		return err
	}
	if len(offers) == 0 {
		return integration.NewRemoteError(integration.KindValidation, "offer_missing", "item "+variantID+" has no offer to price")
	}
	amount := AuctionAmount{
		Value:    price.StringFixed(2),
		Currency: conn.Settings.Get(integration.SettingCurrency, AuctionDefaultCurrency),
	}
	req := AuctionPriceQuantityRequest{SKU: variantID}
	for _, o := range offers {
		req.Offers = append(req.Offers, AuctionOfferPrice{OfferID: o.OfferID, Price: amount})
	}
	return a.bulkUpdate(ctx, conn, req)
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

func (a *AuctionAdapter) getGroup(ctx context.Context, conn *integration.Connection, key string) (*AuctionItemGroup, error) {
	var group AuctionItemGroup
	if err := a.call(ctx, conn, http.MethodGet, "/inventory_item_group/"+url.PathEscape(key), nil, &group); err != nil {
		return nil, err
	}
	if group.InventoryItemGroupKey == "" {
		group.InventoryItemGroupKey = key
	}
	return &group, nil
}

func (a *AuctionAdapter) putGroup(ctx context.Context, conn *integration.Connection, key string, group AuctionItemGroup) error {
	return a.call(ctx, conn, http.MethodPut, "/inventory_item_group/"+url.PathEscape(key), group, nil)
}

// linkItem adds sku and its option values to the group when the group does not list it yet
func (a *AuctionAdapter) linkItem(ctx context.Context, conn *integration.Connection, group *AuctionItemGroup, sku string, opts integration.VariantOptions) error {
	if slices.Contains(group.VariantSKUs, sku) {
		return nil
	}
	group.VariantSKUs = append(group.VariantSKUs, sku)
	group.VariesBy.Specifications = addSpecificationValue(group.VariesBy.Specifications, integration.OptionFinish, opts.Finish)
	group.VariesBy.Specifications = addSpecificationValue(group.VariesBy.Specifications, integration.OptionEdition, opts.Edition)
	return a.putGroup(ctx, conn, group.InventoryItemGroupKey, *group)
}

func (a *AuctionAdapter) getItem(ctx context.Context, conn *integration.Connection, sku string) (*AuctionInventoryItem, error) {
	var item AuctionInventoryItem
	if err := a.call(ctx, conn, http.MethodGet, "/inventory_item/"+url.PathEscape(sku), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (a *AuctionAdapter) offers(ctx context.Context, conn *integration.Connection, sku string) ([]AuctionOffer, error) {
	var page AuctionOffers
	err := a.call(ctx, conn, http.MethodGet, "/offer?sku="+url.QueryEscape(sku), nil, &page)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return page.Offers, nil
}

func (a *AuctionAdapter) bulkUpdate(ctx context.Context, conn *integration.Connection, req AuctionPriceQuantityRequest) error {
	var resp AuctionBulkPriceQuantityResponse
	body := AuctionBulkPriceQuantity{Requests: []AuctionPriceQuantityRequest{req}}
	if err := a.call(ctx, conn, http.MethodPost, "/bulk_update_price_quantity", body, &resp); err != nil {
		return err
	}
	for _, r := range resp.Responses {
		if r.StatusCode < 400 {
			continue
		}
		code, message := strconv.Itoa(r.StatusCode), "update rejected for "+r.SKU
		if len(r.Errors) > 0 {
			code, message = strconv.Itoa(r.Errors[0].ErrorID), r.Errors[0].Message
		}
		e := integration.NewRemoteError(classifyStatus(r.StatusCode), code, message)
		e.StatusCode = r.StatusCode
		return e
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (a *AuctionAdapter) apiBase(conn *integration.Connection) string {
	fallback := AuctionProductionURL
	if conn.Settings.IsSandbox() {
		fallback = AuctionSandboxURL
	}
	return a.baseURL(conn, fallback)
}

// accessToken exchanges the long-lived refresh token for a user access token
func (a *AuctionAdapter) accessToken(ctx context.Context, conn *integration.Connection) (string, error) {
	cred, ok := conn.Auth.(integration.AuctionCredential)
	if !ok {
		return "", integration.WrongCredentialError(a.marketplace, conn.Auth)
	}
	scopes := cred.Scopes
	if len(scopes) == 0 {
		scopes = []string{AuctionDefaultScope}
	}
	cfg := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  a.apiBase(conn) + AuctionTokenPath,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		Scopes: scopes,
	}
	return a.tokens.Token(ctx, conn.Key(), func(ctx context.Context) (*oauth2.Token, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client.httpClient)
		return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	})
}

func (a *AuctionAdapter) call(ctx context.Context, conn *integration.Connection, method, path string, body, out any) error {
	token, err := a.accessToken(ctx, conn)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("Content-Language", AuctionContentLanguage)

	_, err = a.client.doJSON(ctx, apiRequest{
		Method: method,
		URL:    a.apiBase(conn) + AuctionInventoryPath + path,
		Header: header,
		Body:   body,
	}, out, parseAuctionError)
	if isAuthFailure(err) {
		// A revoked grant must not keep serving the cached token
		a.tokens.Invalidate(ctx, conn.Key())
	}
	return err
}

func parseAuctionError(body []byte) (string, string) {
	var resp AuctionErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Errors) == 0 {
		return "", ""
	}
	return strconv.Itoa(resp.Errors[0].ErrorID), resp.Errors[0].Message
}

// ---------------------------------------------------------------------------
// Mapping
// ---------------------------------------------------------------------------

func auctionCardAspects(card *catalog.Card) map[string][]string {
	aspects := make(map[string][]string)
	add := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			aspects[name] = []string{value}
		}
	}
	add("Game", card.Tags.Game)
	add("Set", card.Tags.Set)
	add("Rarity", card.Tags.Rarity)
	add("Card Number", card.Tags.CollectorNumber)
	return aspects
}

func auctionItemOptions(item *AuctionInventoryItem) integration.VariantOptions {
	first := func(name string) string {
		for k, values := range item.Product.Aspects {
			if strings.EqualFold(k, name) && len(values) > 0 {
				return values[0]
			}
		}
		return ""
	}
	return integration.VariantOptions{
		Finish:  first(integration.OptionFinish),
		Edition: first(integration.OptionEdition),
	}
}

func addSpecificationValue(specs []AuctionSpecification, name, value string) []AuctionSpecification {
	for i := range specs {
		if !strings.EqualFold(specs[i].Name, name) {
			continue
		}
		if !slices.Contains(specs[i].Values, value) {
			specs[i].Values = append(specs[i].Values, value)
		}
		return specs
	}
	return append(specs, AuctionSpecification{Name: name, Values: []string{value}})
}

func isNotFound(err error) bool {
	return err != nil && integration.KindOf(err) == integration.KindNotFound
}

var _ integration.MarketplaceAdapter = (*AuctionAdapter)(nil)
