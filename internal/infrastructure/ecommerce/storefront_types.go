package ecommerce

import (
	"encoding/json"
	"strings"

	"github.com/cardvault/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Storefront GraphQL envelope
// ---------------------------------------------------------------------------

const (
	// StorefrontDefaultAPIVersion is used when the credential carries no api_version
	StorefrontDefaultAPIVersion = "2024-10"
	// StorefrontAccessTokenHeader carries the static admin API token
	StorefrontAccessTokenHeader = "X-Storefront-Access-Token"

	storefrontVariantPageSize = 250
)

// Storefront GraphQL operation names
const (
	StorefrontOpShop                   = "Shop"
	StorefrontOpProduct                = "Product"
	StorefrontOpProductByHandle        = "ProductByHandle"
	StorefrontOpProductCreate          = "ProductCreate"
	StorefrontOpProductVariants        = "ProductVariants"
	StorefrontOpVariantsBulkCreate     = "ProductVariantsBulkCreate"
	StorefrontOpVariantsBulkUpdate     = "ProductVariantsBulkUpdate"
	StorefrontOpProductVariant         = "ProductVariant"
	StorefrontOpInventoryItemUpdate    = "InventoryItemUpdate"
	StorefrontOpInventoryActivate      = "InventoryActivate"
	StorefrontOpInventorySetQuantities = "InventorySetQuantities"
)

// Storefront bulk variant creation strategies
const (
	StorefrontStrategyDefault          = "DEFAULT"
	StorefrontStrategyRemoveStandalone = "REMOVE_STANDALONE_VARIANT"
)

// Storefront user error codes with a dedicated classification
const (
	StorefrontCodeVariantAlreadyExists = "VARIANT_ALREADY_EXISTS"
	StorefrontCodeProductNotFound      = "PRODUCT_DOES_NOT_EXIST"
	StorefrontCodeVariantNotFound      = "PRODUCT_VARIANT_DOES_NOT_EXIST"
	StorefrontCodeNotFound             = "NOT_FOUND"
	StorefrontCodeThrottled            = "THROTTLED"
	StorefrontCodeAccessDenied         = "ACCESS_DENIED"
	StorefrontCodeInternalError        = "INTERNAL_SERVER_ERROR"
)

// StorefrontGraphQLRequest is the body of every storefront call
type StorefrontGraphQLRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// StorefrontGraphQLError is a top-level GraphQL error
type StorefrontGraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// StorefrontGraphQLResponse is the envelope of every storefront response
type StorefrontGraphQLResponse struct {
	Data   json.RawMessage          `json:"data"`
	Errors []StorefrontGraphQLError `json:"errors,omitempty"`
}

// StorefrontUserError is a mutation-level validation error
type StorefrontUserError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

// ---------------------------------------------------------------------------
// Storefront resources
// ---------------------------------------------------------------------------

// StorefrontSelectedOption is one option value of a variant
type StorefrontSelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// StorefrontInventoryLevel is the stocking of an inventory item at a location
type StorefrontInventoryLevel struct {
	ID string `json:"id"`
}

// StorefrontInventoryItem is the stock-keeping side of a variant
type StorefrontInventoryItem struct {
	ID             string                    `json:"id"`
	Tracked        bool                      `json:"tracked"`
	InventoryLevel *StorefrontInventoryLevel `json:"inventoryLevel,omitempty"`
}

// StorefrontVariant is a sellable sub-unit of a product
type StorefrontVariant struct {
	ID              string                     `json:"id"`
	SKU             string                     `json:"sku"`
	Price           string                     `json:"price,omitempty"`
	SelectedOptions []StorefrontSelectedOption `json:"selectedOptions"`
	InventoryItem   StorefrontInventoryItem    `json:"inventoryItem"`
	Product         *StorefrontProductRef      `json:"product,omitempty"`
}

// Options returns the (finish, edition) tuple of the variant
func (v StorefrontVariant) Options() integration.VariantOptions {
	var opts integration.VariantOptions
	for _, o := range v.SelectedOptions {
		switch {
		case strings.EqualFold(o.Name, integration.OptionFinish):
			opts.Finish = o.Value
		case strings.EqualFold(o.Name, integration.OptionEdition):
			opts.Edition = o.Value
		}
	}
	return opts
}

// StorefrontProductRef identifies a product
type StorefrontProductRef struct {
	ID string `json:"id"`
}

// StorefrontVariantConnection is a page of variants
type StorefrontVariantConnection struct {
	Nodes []StorefrontVariant `json:"nodes"`
}

// StorefrontProduct is a remote product
type StorefrontProduct struct {
	ID       string                      `json:"id"`
	Title    string                      `json:"title"`
	Handle   string                      `json:"handle"`
	Tags     []string                    `json:"tags,omitempty"`
	Variants StorefrontVariantConnection `json:"variants"`
}

// ---------------------------------------------------------------------------
// Storefront mutation inputs
// ---------------------------------------------------------------------------

// StorefrontOptionValueInput names one option value
type StorefrontOptionValueInput struct {
	OptionName string `json:"optionName,omitempty"`
	Name       string `json:"name"`
}

// StorefrontProductOptionInput declares an option and its initial values
type StorefrontProductOptionInput struct {
	Name   string                       `json:"name"`
	Values []StorefrontOptionValueInput `json:"values"`
}

// StorefrontProductInput creates a product
type StorefrontProductInput struct {
	Title          string                         `json:"title"`
	Handle         string                         `json:"handle"`
	Tags           []string                       `json:"tags,omitempty"`
	ProductOptions []StorefrontProductOptionInput `json:"productOptions"`
}

// StorefrontInventoryItemInput updates the stock-keeping side of a variant
type StorefrontInventoryItemInput struct {
	SKU     string `json:"sku,omitempty"`
	Tracked *bool  `json:"tracked,omitempty"`
}

// StorefrontVariantInput creates or updates a variant in bulk
type StorefrontVariantInput struct {
	ID            string                        `json:"id,omitempty"`
	OptionValues  []StorefrontOptionValueInput  `json:"optionValues,omitempty"`
	Price         string                        `json:"price,omitempty"`
	InventoryItem *StorefrontInventoryItemInput `json:"inventoryItem,omitempty"`
}

// StorefrontQuantityInput is one absolute quantity assignment
type StorefrontQuantityInput struct {
	InventoryItemID string `json:"inventoryItemId"`
	LocationID      string `json:"locationId"`
	Quantity        int    `json:"quantity"`
}

// StorefrontSetQuantitiesInput sets absolute quantities
type StorefrontSetQuantitiesInput struct {
	Name                  string                    `json:"name"`
	Reason                string                    `json:"reason"`
	IgnoreCompareQuantity bool                      `json:"ignoreCompareQuantity"`
	Quantities            []StorefrontQuantityInput `json:"quantities"`
}

// ---------------------------------------------------------------------------
// GraphQL documents
// ---------------------------------------------------------------------------

var storefrontDocuments = map[string]string{
	StorefrontOpShop: `query Shop { shop { name } }`,
	StorefrontOpProduct: `query Product($id: ID!) {
  product(id: $id) { id title handle }
}`,
	StorefrontOpProductByHandle: `query ProductByHandle($handle: String!) {
  productByHandle(handle: $handle) { id title handle }
}`,
	StorefrontOpProductCreate: `mutation ProductCreate($product: ProductCreateInput!) {
  productCreate(product: $product) {
    product { id handle variants(first: 1) { nodes { id sku selectedOptions { name value } } } }
    userErrors { field message code }
  }
}`,
	StorefrontOpProductVariants: `query ProductVariants($id: ID!, $first: Int!) {
  product(id: $id) {
    id
    variants(first: $first) {
      nodes { id sku price selectedOptions { name value } inventoryItem { id tracked } }
    }
  }
}`,
	StorefrontOpVariantsBulkCreate: `mutation ProductVariantsBulkCreate($productId: ID!, $strategy: ProductVariantsBulkCreateStrategy, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkCreate(productId: $productId, strategy: $strategy, variants: $variants) {
    productVariants { id sku selectedOptions { name value } }
    userErrors { field message code }
  }
}`,
	StorefrontOpVariantsBulkUpdate: `mutation ProductVariantsBulkUpdate($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkUpdate(productId: $productId, variants: $variants) {
    productVariants { id sku price }
    userErrors { field message code }
  }
}`,
	StorefrontOpProductVariant: `query ProductVariant($id: ID!, $locationId: ID) {
  productVariant(id: $id) {
    id sku price
    product { id }
    inventoryItem { id tracked inventoryLevel(locationId: $locationId) { id } }
  }
}`,
	StorefrontOpInventoryItemUpdate: `mutation InventoryItemUpdate($id: ID!, $input: InventoryItemInput!) {
  inventoryItemUpdate(id: $id, input: $input) {
    inventoryItem { id tracked }
    userErrors { field message code }
  }
}`,
	StorefrontOpInventoryActivate: `mutation InventoryActivate($inventoryItemId: ID!, $locationId: ID!) {
  inventoryActivate(inventoryItemId: $inventoryItemId, locationId: $locationId) {
    inventoryLevel { id }
    userErrors { field message code }
  }
}`,
	StorefrontOpInventorySetQuantities: `mutation InventorySetQuantities($input: InventorySetQuantitiesInput!) {
  inventorySetQuantities(input: $input) {
    inventoryAdjustmentGroup { reason }
    userErrors { field message code }
  }
}`,
}
