package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/domain/inventory"
)

// CardMarketAdapter implements MarketplaceAdapter for the CardMarket seller API.
// Products come from the marketplace catalog and are never created; a record maps to a stock
// article of that product. Stock is not per location, so each SKU keeps its own article.
type CardMarketAdapter struct {
	baseAdapter
}

// NewCardMarketAdapter creates a new CardMarket adapter
func NewCardMarketAdapter(cfg AdapterConfig, deps Dependencies) (*CardMarketAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(false); err != nil {
		return nil, err
	}
	return &CardMarketAdapter{
		baseAdapter: newBaseAdapter(integration.MarketplaceCardMarket, cfg, deps),
	}, nil
}

// TestConnection reads the authenticated account
func (a *CardMarketAdapter) TestConnection(ctx context.Context, conn *integration.Connection) (bool, error) {
	return a.testConnection(ctx, func(ctx context.Context) error {
		var account CardMarketAccount
		return a.call(ctx, conn, http.MethodGet, "/account", nil, &account)
	})
}

// EnsureRemoteProduct looks the card up in the marketplace catalog
func (a *CardMarketAdapter) EnsureRemoteProduct(ctx context.Context, conn *integration.Connection, card *catalog.Card) (string, error) {
	return a.ensureProduct(ctx, conn, card, productSteps{
		verify: func(ctx context.Context, remoteID string) error {
			var resp CardMarketProductResponse
			return a.call(ctx, conn, http.MethodGet, "/products/"+url.PathEscape(remoteID), nil, &resp)
		},
		find: func(ctx context.Context) (string, error) {
			q := url.Values{}
			q.Set("search", card.Name)
			q.Set("exact", "true")
			var list CardMarketProductList
			err := a.call(ctx, conn, http.MethodGet, "/products/find?"+q.Encode(), nil, &list)
			if isNotFound(err) {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			if p, ok := matchCardMarketProduct(list.Product, card); ok {
				return strconv.FormatInt(p.IDProduct, 10), nil
			}
			return "", nil
		},
		create: func(ctx context.Context) (string, error) {
			return "", integration.NewRemoteError(integration.KindValidation, "product_not_in_catalog",
				"no catalog product matches "+card.Name)
		},
	})
}

// EnsureRemoteVariant resolves the record's stock article by cached id, then SKU, then an
// unclaimed article of the same (foil, edition), and otherwise adds a new article
func (a *CardMarketAdapter) EnsureRemoteVariant(ctx context.Context, conn *integration.Connection, card *catalog.Card, record *inventory.Record, _ []*inventory.Record) (string, error) {
	productID := card.RemoteProductID(conn.StoreID, string(a.marketplace))
	if productID == "" {
		return "", integration.NewRemoteError(integration.KindValidation, "product_unresolved", "remote product must be resolved before its variants")
	}
	idProduct, err := strconv.ParseInt(productID, 10, 64)
	if err != nil {
		return "", integration.WrapRemoteError(integration.KindValidation, "product_id", err)
	}
	sku := integration.SKUFor(record)
	edition := record.Edition()

	var stock CardMarketStock
	if err := a.call(ctx, conn, http.MethodGet, "/stock", nil, &stock); err != nil && !isNotFound(err) {
		return "", err
	}

	articles := make([]CardMarketArticle, 0, len(stock.Article))
	for _, art := range stock.Article {
		if art.IDProduct == idProduct {
			articles = append(articles, art)
		}
	}
	if cached := record.RemoteVariantID(string(a.marketplace)); cached != "" {
		for _, art := range articles {
			if strconv.FormatInt(art.IDArticle, 10) == cached {
				return cached, nil
			}
		}
	}
	for _, art := range articles {
		if art.SKU() == sku {
			return strconv.FormatInt(art.IDArticle, 10), nil
		}
	}
	for _, art := range articles {
		if art.SKU() != "" || art.Foil() != record.Foil || !strings.EqualFold(art.Edition(), edition) {
			continue
		}
		id := strconv.FormatInt(art.IDArticle, 10)
		if err := a.updateArticle(ctx, conn, CardMarketArticle{IDArticle: art.IDArticle, Comments: cardMarketComments(sku, edition)}); err != nil {
			return "", err
		}
		return id, nil
	}

	foil := record.Foil
	zero := 0
	req := CardMarketStockRequest{Article: []CardMarketArticle{{
		IDProduct:  idProduct,
		IDLanguage: CardMarketLanguageEnglish,
		Comments:   cardMarketComments(sku, edition),
		Count:      &zero,
		Condition:  "NM",
		IsFoil:     &foil,
	}}}
	var result CardMarketInsertResult
	if err := a.call(ctx, conn, http.MethodPost, "/stock", req, &result); err != nil {
		return "", err
	}
	if len(result.Inserted) == 0 || !result.Inserted[0].Success {
		msg := "article was not inserted"
		if len(result.Inserted) > 0 && result.Inserted[0].Error != "" {
			msg = result.Inserted[0].Error
		}
		return "", integration.NewRemoteError(integration.KindValidation, "insert_rejected", msg)
	}

	id := strconv.FormatInt(result.Inserted[0].Article.IDArticle, 10)
	a.logger.Info("stock article created",
		zap.String("store_id", conn.StoreID.String()),
		zap.String("sku", sku),
		zap.String("remote_variant_id", id),
	)
	return id, nil
}

// EnsureInventoryTracking is a no-op; every stock article is tracked
func (a *CardMarketAdapter) EnsureInventoryTracking(context.Context, *integration.Connection, string, string) error {
	return nil
}

// PushQuantity sets the absolute article count; stock is not per location
func (a *CardMarketAdapter) PushQuantity(ctx context.Context, conn *integration.Connection, variantID, _ string, quantity int) error {
	id, err := parseArticleID(variantID)
	if err != nil {
		return err
	}
	return a.updateArticle(ctx, conn, CardMarketArticle{IDArticle: id, Count: &quantity})
}

// PushPrice sets the article price
func (a *CardMarketAdapter) PushPrice(ctx context.Context, conn *integration.Connection, variantID string, price decimal.Decimal) error {
	id, err := parseArticleID(variantID)
	if err != nil {
		return err
	}
	return a.updateArticle(ctx, conn, CardMarketArticle{IDArticle: id, Price: json.Number(price.StringFixed(2))})
}

func (a *CardMarketAdapter) updateArticle(ctx context.Context, conn *integration.Connection, art CardMarketArticle) error {
	var result CardMarketUpdateResult
	req := CardMarketStockRequest{Article: []CardMarketArticle{art}}
	if err := a.call(ctx, conn, http.MethodPut, "/stock", req, &result); err != nil {
		return err
	}
	if len(result.NotUpdatedArticles) == 0 {
		return nil
	}
	msg := result.NotUpdatedArticles[0].Error
	// The rejection carries no code; the article lookup tells a missing article apart
	if err := a.call(ctx, conn, http.MethodGet, "/stock/article/"+strconv.FormatInt(art.IDArticle, 10), nil, nil); err != nil {
		if isNotFound(err) {
			return integration.NewRemoteError(integration.KindNotFound, "article_missing", msg)
		}
		return err
	}
	return integration.NewRemoteError(integration.KindValidation, "update_rejected", msg)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (a *CardMarketAdapter) call(ctx context.Context, conn *integration.Connection, method, path string, body, out any) error {
	cred, ok := conn.Auth.(integration.CardMarketCredential)
	if !ok {
		return integration.WrongCredentialError(a.marketplace, conn.Auth)
	}
	fallback := CardMarketProductionURL
	if conn.Settings.IsSandbox() {
		fallback = CardMarketSandboxURL
	}
	endpoint := a.baseURL(conn, fallback) + path

	auth, err := newCardMarketSigner(cred).Authorization(method, endpoint)
	if err != nil {
		return integration.WrapRemoteError(integration.KindValidation, "build_request", err)
	}
	header := http.Header{}
	header.Set("Authorization", auth)

	_, err = a.client.doJSON(ctx, apiRequest{Method: method, URL: endpoint, Header: header, Body: body}, out, parseCardMarketError)
	return err
}

func parseCardMarketError(body []byte) (string, string) {
	var resp CardMarketErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", ""
	}
	if resp.Message != "" {
		return resp.Error, resp.Message
	}
	return "", resp.Error
}

// matchCardMarketProduct prefers the product of the card's set, then the only candidate
func matchCardMarketProduct(products []CardMarketProduct, card *catalog.Card) (CardMarketProduct, bool) {
	for _, p := range products {
		if card.Tags.Set != "" && strings.EqualFold(p.ExpansionName, card.Tags.Set) &&
			(card.Tags.CollectorNumber == "" || p.Number == "" || p.Number == card.Tags.CollectorNumber) {
			return p, true
		}
	}
	if len(products) == 1 {
		return products[0], true
	}
	return CardMarketProduct{}, false
}

func parseArticleID(variantID string) (int64, error) {
	id, err := strconv.ParseInt(variantID, 10, 64)
	if err != nil {
		return 0, integration.WrapRemoteError(integration.KindValidation, "article_id", err)
	}
	return id, nil
}

var _ integration.MarketplaceAdapter = (*CardMarketAdapter)(nil)
