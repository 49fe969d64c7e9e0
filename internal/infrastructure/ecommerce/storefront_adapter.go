package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StorefrontAdapter implements MarketplaceAdapter for the hosted storefront platform.
// Products are created with Finish and Edition options; the platform auto-creates a
// placeholder variant without SKU that is replaced or claimed on first variant resolution.
type StorefrontAdapter struct {
	baseAdapter
}

// NewStorefrontAdapter creates a new storefront adapter
func NewStorefrontAdapter(cfg AdapterConfig, deps Dependencies) (*StorefrontAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(false); err != nil {
		return nil, err
	}
	return &StorefrontAdapter{
		baseAdapter: newBaseAdapter(integration.MarketplaceStorefront, cfg, deps),
	}, nil
}

// StorefrontHandle returns the deterministic product handle of a card
func StorefrontHandle(card *catalog.Card) string {
	return "cardvault-" + card.ID.String()
}

// TestConnection reads the shop with the admin token
func (a *StorefrontAdapter) TestConnection(ctx context.Context, conn *integration.Connection) (bool, error) {
	return a.testConnection(ctx, func(ctx context.Context) error {
		var data struct {
			Shop *struct {
				Name string `json:"name"`
			} `json:"shop"`
		}
		if err := a.graphql(ctx, conn, StorefrontOpShop, nil, &data); err != nil {
			return err
		}
		if data.Shop == nil {
			return integration.NewRemoteError(integration.KindAuth, "no_shop", "shop is not visible to this token")
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// EnsureRemoteProduct returns the card's product, recreating it when the cached id is stale
func (a *StorefrontAdapter) EnsureRemoteProduct(ctx context.Context, conn *integration.Connection, card *catalog.Card) (string, error) {
	handle := StorefrontHandle(card)
	return a.ensureProduct(ctx, conn, card, productSteps{
		verify: func(ctx context.Context, remoteID string) error {
			var data struct {
				Product *StorefrontProduct `json:"product"`
			}
			if err := a.graphql(ctx, conn, StorefrontOpProduct, map[string]any{"id": remoteID}, &data); err != nil {
				return err
			}
			if data.Product == nil {
				return integration.NewRemoteError(integration.KindNotFound, StorefrontCodeProductNotFound, "product "+remoteID+" does not exist")
			}
			return nil
		},
		find: func(ctx context.Context) (string, error) {
			var data struct {
				Product *StorefrontProduct `json:"productByHandle"`
			}
			if err := a.graphql(ctx, conn, StorefrontOpProductByHandle, map[string]any{"handle": handle}, &data); err != nil {
				return "", err
			}
			if data.Product == nil {
				return "", nil
			}
			return data.Product.ID, nil
		},
		create: func(ctx context.Context) (string, error) {
			input := StorefrontProductInput{
				Title:  card.Name,
				Handle: handle,
				Tags:   card.Tags.Values(),
				ProductOptions: []StorefrontProductOptionInput{
					{Name: integration.OptionFinish, Values: []StorefrontOptionValueInput{{Name: integration.FinishNonFoil}}},
					{Name: integration.OptionEdition, Values: []StorefrontOptionValueInput{{Name: inventory.StandardEdition}}},
				},
			}
			var data struct {
				ProductCreate struct {
					Product    *StorefrontProduct    `json:"product"`
					UserErrors []StorefrontUserError `json:"userErrors"`
				} `json:"productCreate"`
			}
			if err := a.graphql(ctx, conn, StorefrontOpProductCreate, map[string]any{"product": input}, &data); err != nil {
				return "", err
			}
			if err := classifyUserErrors(data.ProductCreate.UserErrors); err != nil {
				return "", err
			}
			if data.ProductCreate.Product == nil || data.ProductCreate.Product.ID == "" {
				return "", integration.NewRemoteError(integration.KindUnknown, "invalid_response", "productCreate returned no product")
			}
			return data.ProductCreate.Product.ID, nil
		},
	})
}

// ---------------------------------------------------------------------------
// Variants
// ---------------------------------------------------------------------------

type variantTarget struct {
	sku      string
	options  integration.VariantOptions
	cachedID string
}

// EnsureRemoteVariant resolves the record's variant by cached id or SKU, then by option tuple,
// and only then creates it. While the product holds only its placeholder, all sibling variants
// are created in one call that replaces the placeholder.
func (a *StorefrontAdapter) EnsureRemoteVariant(ctx context.Context, conn *integration.Connection, card *catalog.Card, record *inventory.Record, siblings []*inventory.Record) (string, error) {
	productID := card.RemoteProductID(conn.StoreID, string(a.marketplace))
	if productID == "" {
		return "", integration.NewRemoteError(integration.KindValidation, "product_unresolved", "remote product must be resolved before its variants")
	}
	target := variantTarget{
		sku:      integration.SKUFor(record),
		options:  integration.OptionsFor(record),
		cachedID: record.RemoteVariantID(string(a.marketplace)),
	}
	logger := a.logger.With(
		zap.String("store_id", conn.StoreID.String()),
		zap.String("inventory_record_id", record.ID.String()),
		zap.String("sku", target.sku),
	)

	variants, err := a.listVariants(ctx, conn, productID)
	if err != nil {
		return "", err
	}
	if id, ok, err := a.resolveExisting(ctx, conn, productID, variants, target); err != nil || ok {
		return id, err
	}

	if placeholderOnly(variants) {
		id, err := a.replacePlaceholder(ctx, conn, productID, record, siblings)
		if err == nil {
			return id, nil
		}
		logger.Warn("batch variant creation failed, falling back to per-record creation",
			zap.String("error_kind", integration.KindOf(err).String()),
			zap.Error(err),
		)

		// The batch may have partially applied; look again before creating anything
		variants, err = a.listVariants(ctx, conn, productID)
		if err != nil {
			return "", err
		}
		if id, ok, err := a.resolveExisting(ctx, conn, productID, variants, target); err != nil || ok {
			return id, err
		}
	}

	return a.createVariant(ctx, conn, productID, target)
}

// resolveExisting matches a variant by cached id, then SKU, then option tuple.
// A tuple match without SKU is claimed by writing the target SKU onto it.
func (a *StorefrontAdapter) resolveExisting(ctx context.Context, conn *integration.Connection, productID string, variants []StorefrontVariant, t variantTarget) (string, bool, error) {
	if t.cachedID != "" {
		for _, v := range variants {
			if v.ID == t.cachedID {
				return v.ID, true, nil
			}
		}
	}
	for _, v := range variants {
		if v.SKU == t.sku {
			return v.ID, true, nil
		}
	}
	for _, v := range variants {
		if !v.Options().Equal(t.options) {
			continue
		}
		if v.SKU == "" {
			if err := a.claimVariant(ctx, conn, productID, v.ID, t.sku); err != nil {
				return "", false, err
			}
		}
		return v.ID, true, nil
	}
	return "", false, nil
}

// placeholderOnly reports whether the product holds nothing but the auto-created variant
func placeholderOnly(variants []StorefrontVariant) bool {
	if len(variants) == 0 {
		return true
	}
	return len(variants) == 1 && variants[0].SKU == ""
}

// replacePlaceholder creates one variant per distinct option tuple among the record and its
// siblings, removing the placeholder, and maps the record's variant back by SKU
func (a *StorefrontAdapter) replacePlaceholder(ctx context.Context, conn *integration.Connection, productID string, record *inventory.Record, siblings []*inventory.Record) (string, error) {
	seen := make(map[string]bool)
	inputs := make([]StorefrontVariantInput, 0, len(siblings)+1)
	for _, r := range append([]*inventory.Record{record}, siblings...) {
		if r.CardID != record.CardID {
			continue
		}
		opts := integration.OptionsFor(r)
		if seen[opts.Key()] {
			continue
		}
		seen[opts.Key()] = true
		inputs = append(inputs, newVariantInput(integration.SKUFor(r), opts))
	}

	created, err := a.bulkCreate(ctx, conn, productID, StorefrontStrategyRemoveStandalone, inputs)
	if err != nil {
		return "", err
	}
	sku := integration.SKUFor(record)
	for _, v := range created {
		if v.SKU == sku {
			return v.ID, nil
		}
	}
	return "", integration.NewRemoteError(integration.KindUnknown, "batch_unmapped", "batch creation returned no variant for "+sku)
}

// createVariant creates a single variant; a placeholder already holding the tuple is reused
func (a *StorefrontAdapter) createVariant(ctx context.Context, conn *integration.Connection, productID string, t variantTarget) (string, error) {
	created, err := a.bulkCreate(ctx, conn, productID, StorefrontStrategyDefault, []StorefrontVariantInput{newVariantInput(t.sku, t.options)})
	if err == nil {
		if len(created) == 0 {
			return "", integration.NewRemoteError(integration.KindUnknown, "invalid_response", "variant creation returned no variant")
		}
		return created[0].ID, nil
	}
	if !errors.Is(err, integration.ErrPlaceholderConflict) {
		return "", err
	}

	a.logger.Info("variant with these options already exists, reusing it",
		zap.String("store_id", conn.StoreID.String()),
		zap.String("sku", t.sku),
	)
	variants, lerr := a.listVariants(ctx, conn, productID)
	if lerr != nil {
		return "", lerr
	}
	if id, ok, rerr := a.resolveExisting(ctx, conn, productID, variants, t); rerr != nil || ok {
		return id, rerr
	}
	return "", err
}

func newVariantInput(sku string, opts integration.VariantOptions) StorefrontVariantInput {
	tracked := true
	return StorefrontVariantInput{
		OptionValues: []StorefrontOptionValueInput{
			{OptionName: integration.OptionFinish, Name: opts.Finish},
			{OptionName: integration.OptionEdition, Name: opts.Edition},
		},
		InventoryItem: &StorefrontInventoryItemInput{SKU: sku, Tracked: &tracked},
	}
}

func (a *StorefrontAdapter) claimVariant(ctx context.Context, conn *integration.Connection, productID, variantID, sku string) error {
	tracked := true
	_, err := a.bulkUpdate(ctx, conn, productID, []StorefrontVariantInput{{
		ID:            variantID,
		InventoryItem: &StorefrontInventoryItemInput{SKU: sku, Tracked: &tracked},
	}})
	return err
}

func (a *StorefrontAdapter) listVariants(ctx context.Context, conn *integration.Connection, productID string) ([]StorefrontVariant, error) {
	var data struct {
		Product *StorefrontProduct `json:"product"`
	}
	vars := map[string]any{"id": productID, "first": storefrontVariantPageSize}
	if err := a.graphql(ctx, conn, StorefrontOpProductVariants, vars, &data); err != nil {
		return nil, err
	}
	if data.Product == nil {
		return nil, integration.NewRemoteError(integration.KindNotFound, StorefrontCodeProductNotFound, "product "+productID+" does not exist")
	}
	return data.Product.Variants.Nodes, nil
}

func (a *StorefrontAdapter) bulkCreate(ctx context.Context, conn *integration.Connection, productID, strategy string, inputs []StorefrontVariantInput) ([]StorefrontVariant, error) {
	var data struct {
		Result struct {
			ProductVariants []StorefrontVariant   `json:"productVariants"`
			UserErrors      []StorefrontUserError `json:"userErrors"`
		} `json:"productVariantsBulkCreate"`
	}
	vars := map[string]any{"productId": productID, "strategy": strategy, "variants": inputs}
	if err := a.graphql(ctx, conn, StorefrontOpVariantsBulkCreate, vars, &data); err != nil {
		return nil, err
	}
	if err := classifyUserErrors(data.Result.UserErrors); err != nil {
		return nil, err
	}
	return data.Result.ProductVariants, nil
}

func (a *StorefrontAdapter) bulkUpdate(ctx context.Context, conn *integration.Connection, productID string, inputs []StorefrontVariantInput) ([]StorefrontVariant, error) {
	var data struct {
		Result struct {
			ProductVariants []StorefrontVariant   `json:"productVariants"`
			UserErrors      []StorefrontUserError `json:"userErrors"`
		} `json:"productVariantsBulkUpdate"`
	}
	vars := map[string]any{"productId": productID, "variants": inputs}
	if err := a.graphql(ctx, conn, StorefrontOpVariantsBulkUpdate, vars, &data); err != nil {
		return nil, err
	}
	if err := classifyUserErrors(data.Result.UserErrors); err != nil {
		return nil, err
	}
	return data.Result.ProductVariants, nil
}

func (a *StorefrontAdapter) fetchVariant(ctx context.Context, conn *integration.Connection, variantID, locationID string) (*StorefrontVariant, error) {
	var data struct {
		Variant *StorefrontVariant `json:"productVariant"`
	}
	vars := map[string]any{"id": variantID}
	if locationID != "" {
		vars["locationId"] = locationID
	}
	if err := a.graphql(ctx, conn, StorefrontOpProductVariant, vars, &data); err != nil {
		return nil, err
	}
	if data.Variant == nil {
		return nil, integration.NewRemoteError(integration.KindNotFound, StorefrontCodeVariantNotFound, "variant "+variantID+" does not exist")
	}
	return data.Variant, nil
}

// ---------------------------------------------------------------------------
// Inventory and price
// ---------------------------------------------------------------------------

// EnsureInventoryTracking turns on tracking and stocks the item at the location when needed
func (a *StorefrontAdapter) EnsureInventoryTracking(ctx context.Context, conn *integration.Connection, variantID, remoteLocationID string) error {
	v, err := a.fetchVariant(ctx, conn, variantID, remoteLocationID)
	if err != nil {
		return err
	}
	item := v.InventoryItem

	if !item.Tracked {
		var data struct {
			Result struct {
				UserErrors []StorefrontUserError `json:"userErrors"`
			} `json:"inventoryItemUpdate"`
		}
		vars := map[string]any{"id": item.ID, "input": map[string]any{"tracked": true}}
		if err := a.graphql(ctx, conn, StorefrontOpInventoryItemUpdate, vars, &data); err != nil {
			return err
		}
		if err := classifyUserErrors(data.Result.UserErrors); err != nil {
			return err
		}
	}

	if item.InventoryLevel == nil {
		var data struct {
			Result struct {
				UserErrors []StorefrontUserError `json:"userErrors"`
			} `json:"inventoryActivate"`
		}
		vars := map[string]any{"inventoryItemId": item.ID, "locationId": remoteLocationID}
		if err := a.graphql(ctx, conn, StorefrontOpInventoryActivate, vars, &data); err != nil {
			return err
		}
		if err := classifyUserErrors(data.Result.UserErrors); err != nil {
			return err
		}
	}
	return nil
}

// PushQuantity sets the absolute available quantity at the location
func (a *StorefrontAdapter) PushQuantity(ctx context.Context, conn *integration.Connection, variantID, remoteLocationID string, quantity int) error {
	v, err := a.fetchVariant(ctx, conn, variantID, remoteLocationID)
	if err != nil {
		return err
	}
	input := StorefrontSetQuantitiesInput{
		Name:                  "available",
		Reason:                "correction",
		IgnoreCompareQuantity: true,
		Quantities: []StorefrontQuantityInput{{
			InventoryItemID: v.InventoryItem.ID,
			LocationID:      remoteLocationID,
			Quantity:        quantity,
		}},
	}
	var data struct {
		Result struct {
			UserErrors []StorefrontUserError `json:"userErrors"`
		} `json:"inventorySetQuantities"`
	}
	if err := a.graphql(ctx, conn, StorefrontOpInventorySetQuantities, map[string]any{"input": input}, &data); err != nil {
		return err
	}
	return classifyUserErrors(data.Result.UserErrors)
}

// PushPrice sets the variant price
func (a *StorefrontAdapter) PushPrice(ctx context.Context, conn *integration.Connection, variantID string, price decimal.Decimal) error {
	v, err := a.fetchVariant(ctx, conn, variantID, "")
	if err != nil {
		return err
	}
	if v.Product == nil || v.Product.ID == "" {
		return integration.NewRemoteError(integration.KindUnknown, "invalid_response", "variant "+variantID+" has no product")
	}
	_, err = a.bulkUpdate(ctx, conn, v.Product.ID, []StorefrontVariantInput{{
		ID:    variantID,
		Price: price.StringFixed(2),
	}})
	return err
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (a *StorefrontAdapter) graphql(ctx context.Context, conn *integration.Connection, op string, vars map[string]any, out any) error {
	cred, ok := conn.Auth.(integration.StorefrontCredential)
	if !ok {
		return integration.WrongCredentialError(a.marketplace, conn.Auth)
	}
	version := cred.APIVersion
	if version == "" {
		version = StorefrontDefaultAPIVersion
	}
	endpoint := a.baseURL(conn, "https://"+cred.ShopDomain) + "/admin/api/" + version + "/graphql.json"

	header := http.Header{}
	header.Set(StorefrontAccessTokenHeader, cred.AccessToken)

	var resp StorefrontGraphQLResponse
	_, err := a.client.doJSON(ctx, apiRequest{
		Method: http.MethodPost,
		URL:    endpoint,
		Header: header,
		Body: StorefrontGraphQLRequest{
			OperationName: op,
			Query:         storefrontDocuments[op],
			Variables:     vars,
		},
	}, &resp, parseStorefrontErrorBody)
	if err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return classifyGraphQLErrors(resp.Errors)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return integration.WrapRemoteError(integration.KindUnknown, "invalid_response", err)
		}
	}
	return nil
}

func parseStorefrontErrorBody(body []byte) (string, string) {
	var resp StorefrontGraphQLResponse
	if err := json.Unmarshal(body, &resp); err == nil && len(resp.Errors) > 0 {
		return resp.Errors[0].Extensions.Code, resp.Errors[0].Message
	}
	var plain struct {
		Errors string `json:"errors"`
	}
	if err := json.Unmarshal(body, &plain); err == nil {
		return "", plain.Errors
	}
	return "", ""
}

// classifyGraphQLErrors maps top-level GraphQL errors onto the remote error taxonomy
func classifyGraphQLErrors(errs []StorefrontGraphQLError) error {
	first := errs[0]
	kind := integration.KindValidation
	switch first.Extensions.Code {
	case StorefrontCodeThrottled:
		kind = integration.KindRateLimited
	case StorefrontCodeAccessDenied:
		kind = integration.KindAuth
	case StorefrontCodeInternalError:
		kind = integration.KindTransient
	case StorefrontCodeNotFound:
		kind = integration.KindNotFound
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	return integration.NewRemoteError(kind, first.Extensions.Code, strings.Join(messages, "; "))
}

// classifyUserErrors maps mutation user errors onto the remote error taxonomy, nil when empty
func classifyUserErrors(errs []StorefrontUserError) error {
	if len(errs) == 0 {
		return nil
	}
	kind := integration.KindValidation
	for _, e := range errs {
		switch e.Code {
		case StorefrontCodeVariantAlreadyExists:
			kind = integration.KindPlaceholderConflict
		case StorefrontCodeProductNotFound, StorefrontCodeVariantNotFound, StorefrontCodeNotFound:
			if kind == integration.KindValidation {
				kind = integration.KindNotFound
			}
		}
	}
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	return integration.NewRemoteError(kind, errs[0].Code, strings.Join(messages, "; "))
}

var _ integration.MarketplaceAdapter = (*StorefrontAdapter)(nil)
