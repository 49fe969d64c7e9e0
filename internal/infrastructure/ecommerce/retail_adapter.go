package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/domain/inventory"
)

// RetailAdapter implements MarketplaceAdapter for the retail marketplace listings API.
// A card maps to a parent listing and a record to a child listing keyed by SKU. Children are
// found by option tuple through the listings search filtered on the parent SKU.
type RetailAdapter struct {
	baseAdapter
	tokens *tokenProvider
}

// NewRetailAdapter creates a new retail adapter
func NewRetailAdapter(cfg AdapterConfig, deps Dependencies) (*RetailAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(true); err != nil {
		return nil, err
	}
	base := newBaseAdapter(integration.MarketplaceRetail, cfg, deps)
	return &RetailAdapter{
		baseAdapter: base,
		tokens:      newTokenProvider(deps.Tokens, base.logger),
	}, nil
}

// RetailParentSKU returns the deterministic parent listing SKU of a card
func RetailParentSKU(card *catalog.Card) string {
	return integration.CardKey(card.ID) + "-P"
}

// TestConnection reads the seller's marketplace participations
func (a *RetailAdapter) TestConnection(ctx context.Context, conn *integration.Connection) (bool, error) {
	return a.testConnection(ctx, func(ctx context.Context) error {
		var resp RetailParticipations
		return a.call(ctx, conn, http.MethodGet, a.apiBase(conn)+"/sellers/v1/marketplaceParticipations", nil, &resp)
	})
}

// EnsureRemoteProduct returns the card's parent listing
func (a *RetailAdapter) EnsureRemoteProduct(ctx context.Context, conn *integration.Connection, card *catalog.Card) (string, error) {
	parentSKU := RetailParentSKU(card)
	return a.ensureProduct(ctx, conn, card, productSteps{
		verify: func(ctx context.Context, remoteID string) error {
			_, err := a.getListing(ctx, conn, remoteID)
			return err
		},
		find: func(ctx context.Context) (string, error) {
			_, err := a.getListing(ctx, conn, parentSKU)
			if isNotFound(err) {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			return parentSKU, nil
		},
		create: func(ctx context.Context) (string, error) {
			mp := a.marketplaceID(conn)
			attrs := map[string]any{
				"item_name":       []RetailAttributeValue{{Value: card.Name, MarketplaceID: mp}},
				"parentage_level": []RetailAttributeValue{{Value: "parent", MarketplaceID: mp}},
				"variation_theme": []map[string]string{{"name": RetailVariationTheme}},
			}
			if tags := card.Tags.Values(); len(tags) > 0 {
				attrs["generic_keyword"] = []RetailAttributeValue{{Value: strings.Join(tags, " "), MarketplaceID: mp}}
			}
			if err := a.putListing(ctx, conn, parentSKU, attrs); err != nil {
				return "", err
			}
			return parentSKU, nil
		},
	})
}

// EnsureRemoteVariant resolves the record's child listing by cached SKU, derived SKU,
// then option tuple among the parent's children, and creates it under the parent only
// when none matches
func (a *RetailAdapter) EnsureRemoteVariant(ctx context.Context, conn *integration.Connection, card *catalog.Card, record *inventory.Record, _ []*inventory.Record) (string, error) {
	parentSKU := card.RemoteProductID(conn.StoreID, string(a.marketplace))
	if parentSKU == "" {
		return "", integration.NewRemoteError(integration.KindValidation, "product_unresolved", "remote product must be resolved before its variants")
	}
	sku := integration.SKUFor(record)
	opts := integration.OptionsFor(record)

	for _, candidate := range []string{record.RemoteVariantID(string(a.marketplace)), sku} {
		if candidate == "" {
			continue
		}
		listing, err := a.getListing(ctx, conn, candidate)
		if err == nil {
			if err := a.linkChild(ctx, conn, candidate, listing, parentSKU); err != nil {
				return "", err
			}
			return candidate, nil
		}
		if !isNotFound(err) {
			return "", err
		}
	}

	children, err := a.children(ctx, conn, parentSKU)
	if err != nil {
		return "", err
	}
	for _, child := range children {
		if retailListingOptions(&child).Equal(opts) {
			return child.SKU, nil
		}
	}

	mp := a.marketplaceID(conn)
	attrs := map[string]any{
		"item_name":       []RetailAttributeValue{{Value: card.Name + " (" + opts.Finish + ", " + opts.Edition + ")", MarketplaceID: mp}},
		"parentage_level": []RetailAttributeValue{{Value: "child", MarketplaceID: mp}},
		"child_parent_sku_relationship": retailParentRelationship(parentSKU, mp),
		"finish":  []RetailAttributeValue{{Value: opts.Finish, MarketplaceID: mp}},
		"edition": []RetailAttributeValue{{Value: opts.Edition, MarketplaceID: mp}},
	}
	if err := a.putListing(ctx, conn, sku, attrs); err != nil {
		return "", err
	}
	a.logger.Info("child listing created",
		zap.String("store_id", conn.StoreID.String()),
		zap.String("sku", sku),
		zap.String("remote_product_id", parentSKU),
	)
	return sku, nil
}

// EnsureInventoryTracking adds the fulfillment channel to the listing when it has none
func (a *RetailAdapter) EnsureInventoryTracking(ctx context.Context, conn *integration.Connection, variantID, remoteLocationID string) error {
	listing, err := a.getListing(ctx, conn, variantID)
	if err != nil {
		return err
	}
	for _, fa := range listing.FulfillmentAvailability {
		if fa.FulfillmentChannelCode == remoteLocationID {
			return nil
		}
	}
	return a.patchListing(ctx, conn, variantID, RetailPatch{
		Op:    "add",
		Path:  "/attributes/fulfillment_availability",
		Value: []any{RetailFulfillmentAvailability{FulfillmentChannelCode: remoteLocationID}},
	})
}

// PushQuantity replaces the quantity of the fulfillment channel
func (a *RetailAdapter) PushQuantity(ctx context.Context, conn *integration.Connection, variantID, remoteLocationID string, quantity int) error {
	return a.patchListing(ctx, conn, variantID, RetailPatch{
		Op:    "replace",
		Path:  "/attributes/fulfillment_availability",
		Value: []any{RetailFulfillmentAvailability{FulfillmentChannelCode: remoteLocationID, Quantity: quantity}},
	})
}

// PushPrice replaces the listing's offer price
func (a *RetailAdapter) PushPrice(ctx context.Context, conn *integration.Connection, variantID string, price decimal.Decimal) error {
	offer := map[string]any{
		"marketplace_id": a.marketplaceID(conn),
		"currency":       conn.Settings.Get(integration.SettingCurrency, RetailDefaultCurrency),
		"our_price": []map[string]any{{
			"schedule": []map[string]any{{"value_with_tax": json.Number(price.StringFixed(2))}},
		}},
	}
	return a.patchListing(ctx, conn, variantID, RetailPatch{
		Op:    "replace",
		Path:  "/attributes/purchasable_offer",
		Value: []any{offer},
	})
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

func (a *RetailAdapter) listingURL(conn *integration.Connection, sku string, include string) (string, error) {
	cred, ok := conn.Auth.(integration.RetailCredential)
	if !ok {
		return "", integration.WrongCredentialError(a.marketplace, conn.Auth)
	}
	q := url.Values{}
	q.Set("marketplaceIds", a.marketplaceID(conn))
	if include != "" {
		q.Set("includedData", include)
	}
	return a.apiBase(conn) + RetailListingsPath + "/" + url.PathEscape(cred.SellerID) + "/" + url.PathEscape(sku) + "?" + q.Encode(), nil
}

func (a *RetailAdapter) getListing(ctx context.Context, conn *integration.Connection, sku string) (*RetailListing, error) {
	endpoint, err := a.listingURL(conn, sku, "summaries,attributes,fulfillmentAvailability")
	if err != nil {
		return nil, err
	}
	var listing RetailListing
	if err := a.call(ctx, conn, http.MethodGet, endpoint, nil, &listing); err != nil {
		return nil, err
	}
	return &listing, nil
}

// children returns every child listing of the parent
func (a *RetailAdapter) children(ctx context.Context, conn *integration.Connection, parentSKU string) ([]RetailListing, error) {
	cred, ok := conn.Auth.(integration.RetailCredential)
	if !ok {
		return nil, integration.WrongCredentialError(a.marketplace, conn.Auth)
	}
	var listings []RetailListing
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("marketplaceIds", a.marketplaceID(conn))
		q.Set("variationParentSku", parentSKU)
		q.Set("includedData", "summaries,attributes")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		var page RetailListingPage
		endpoint := a.apiBase(conn) + RetailListingsPath + "/" + url.PathEscape(cred.SellerID) + "?" + q.Encode()
		if err := a.call(ctx, conn, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}
		listings = append(listings, page.Items...)
		if page.Pagination.NextToken == "" {
			return listings, nil
		}
		pageToken = page.Pagination.NextToken
	}
}

// linkChild points the listing at the parent when it names a different one or none
func (a *RetailAdapter) linkChild(ctx context.Context, conn *integration.Connection, sku string, listing *RetailListing, parentSKU string) error {
	if retailAttribute(listing, "child_parent_sku_relationship", "parent_sku") == parentSKU {
		return nil
	}
	rel := retailParentRelationship(parentSKU, a.marketplaceID(conn))
	return a.patchListing(ctx, conn, sku, RetailPatch{
		Op:    "replace",
		Path:  "/attributes/child_parent_sku_relationship",
		Value: []any{rel[0]},
	})
}

func retailParentRelationship(parentSKU, marketplaceID string) []map[string]string {
	return []map[string]string{{
		"child_relationship_type": "variation",
		"parent_sku":              parentSKU,
		"marketplace_id":          marketplaceID,
	}}
}

// retailAttribute returns field of the attribute's first value as a string
func retailAttribute(listing *RetailListing, name, field string) string {
	values, ok := listing.Attributes[name].([]any)
	if !ok || len(values) == 0 {
		return ""
	}
	entry, ok := values[0].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := entry[field].(string)
	return s
}

func retailListingOptions(listing *RetailListing) integration.VariantOptions {
	return integration.VariantOptions{
		Finish:  retailAttribute(listing, "finish", "value"),
		Edition: retailAttribute(listing, "edition", "value"),
	}
}

func (a *RetailAdapter) putListing(ctx context.Context, conn *integration.Connection, sku string, attrs map[string]any) error {
	endpoint, err := a.listingURL(conn, sku, "")
	if err != nil {
		return err
	}
	var sub RetailSubmission
	body := RetailListingRequest{ProductType: RetailProductType, Requirements: "LISTING", Attributes: attrs}
	if err := a.call(ctx, conn, http.MethodPut, endpoint, body, &sub); err != nil {
		return err
	}
	return submissionError(sub)
}

func (a *RetailAdapter) patchListing(ctx context.Context, conn *integration.Connection, sku string, patch RetailPatch) error {
	endpoint, err := a.listingURL(conn, sku, "")
	if err != nil {
		return err
	}
	var sub RetailSubmission
	body := RetailPatchRequest{ProductType: RetailProductType, Patches: []RetailPatch{patch}}
	if err := a.call(ctx, conn, http.MethodPatch, endpoint, body, &sub); err != nil {
		return err
	}
	return submissionError(sub)
}

// submissionError turns an INVALID submission or ERROR issues into a validation failure
func submissionError(sub RetailSubmission) error {
	for _, issue := range sub.Issues {
		if issue.Severity == RetailSeverityError {
			return integration.NewRemoteError(integration.KindValidation, issue.Code, issue.Message)
		}
	}
	if sub.Status == RetailStatusInvalid {
		return integration.NewRemoteError(integration.KindValidation, RetailStatusInvalid, "listing submission rejected")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (a *RetailAdapter) apiBase(conn *integration.Connection) string {
	fallback := RetailProductionURL
	if conn.Settings.IsSandbox() {
		fallback = RetailSandboxURL
	}
	return a.baseURL(conn, fallback)
}

func (a *RetailAdapter) marketplaceID(conn *integration.Connection) string {
	return conn.Settings.Get(integration.SettingMarketplaceID, RetailDefaultMarketplaceID)
}

// accessToken exchanges the client credentials for an access token
func (a *RetailAdapter) accessToken(ctx context.Context, conn *integration.Connection) (string, error) {
	cred, ok := conn.Auth.(integration.RetailCredential)
	if !ok {
		return "", integration.WrongCredentialError(a.marketplace, conn.Auth)
	}
	scope := cred.Scope
	if scope == "" {
		scope = RetailDefaultScope
	}
	cfg := clientcredentials.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		TokenURL:     a.apiBase(conn) + RetailTokenPath,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return a.tokens.Token(ctx, conn.Key(), func(ctx context.Context) (*oauth2.Token, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client.httpClient)
		return cfg.Token(ctx)
	})
}

func (a *RetailAdapter) call(ctx context.Context, conn *integration.Connection, method, endpoint string, body, out any) error {
	token, err := a.accessToken(ctx, conn)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("x-access-token", token)

	_, err = a.client.doJSON(ctx, apiRequest{Method: method, URL: endpoint, Header: header, Body: body}, out, parseRetailError)
	if isAuthFailure(err) {
		a.tokens.Invalidate(ctx, conn.Key())
	}
	return err
}

func parseRetailError(body []byte) (string, string) {
	var resp RetailErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Errors) == 0 {
		return "", ""
	}
	return resp.Errors[0].Code, resp.Errors[0].Message
}

var _ integration.MarketplaceAdapter = (*RetailAdapter)(nil)
