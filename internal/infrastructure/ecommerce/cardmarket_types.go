package ecommerce

import (
	"encoding/json"
	"strings"
)

// CardMarket REST constants
const (
	CardMarketProductionURL = "https://api.cardmarket.com/ws/v2.0/output.json"
	CardMarketSandboxURL    = "https://sandbox.cardmarket.com/ws/v2.0/output.json"

	// CardMarketLanguageEnglish is the article language used for created stock
	CardMarketLanguageEnglish = 1

	// cardMarketCommentSeparator separates the SKU from the edition in article comments
	cardMarketCommentSeparator = " | "
)

// CardMarketErrorResponse is the error body of the CardMarket API
type CardMarketErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CardMarketAccount is the authenticated account
type CardMarketAccount struct {
	Account struct {
		IDUser   int64  `json:"idUser"`
		Username string `json:"username"`
	} `json:"account"`
}

// CardMarketProduct is a catalog product of the marketplace
type CardMarketProduct struct {
	IDProduct     int64  `json:"idProduct"`
	IDGame        int64  `json:"idGame,omitempty"`
	EnName        string `json:"enName"`
	ExpansionName string `json:"expansionName,omitempty"`
	Number        string `json:"number,omitempty"`
	Rarity        string `json:"rarity,omitempty"`
}

// CardMarketProductResponse wraps a single product
type CardMarketProductResponse struct {
	Product CardMarketProduct `json:"product"`
}

// CardMarketProductList wraps a product search result
type CardMarketProductList struct {
	Product []CardMarketProduct `json:"product"`
}

// CardMarketArticle is a stock article: the seller's offer of a product in one condition.
// It plays the variant role; the comments carry "<sku> | <edition>".
type CardMarketArticle struct {
	IDArticle  int64       `json:"idArticle,omitempty"`
	IDProduct  int64       `json:"idProduct,omitempty"`
	IDLanguage int         `json:"idLanguage,omitempty"`
	Comments   string      `json:"comments,omitempty"`
	Count      *int        `json:"count,omitempty"`
	Price      json.Number `json:"price,omitempty"`
	Condition  string      `json:"condition,omitempty"`
	IsFoil     *bool       `json:"isFoil,omitempty"`
}

// SKU returns the SKU recorded in the article comments, "" when none
func (a CardMarketArticle) SKU() string {
	sku, _, found := strings.Cut(a.Comments, cardMarketCommentSeparator)
	if !found {
		return ""
	}
	return strings.TrimSpace(sku)
}

// Edition returns the edition recorded in the article comments
func (a CardMarketArticle) Edition() string {
	_, edition, found := strings.Cut(a.Comments, cardMarketCommentSeparator)
	if !found {
		return strings.TrimSpace(a.Comments)
	}
	return strings.TrimSpace(edition)
}

// Foil reports whether the article is foil
func (a CardMarketArticle) Foil() bool {
	return a.IsFoil != nil && *a.IsFoil
}

// CardMarketStock is the seller's stock
type CardMarketStock struct {
	Article []CardMarketArticle `json:"article"`
}

// CardMarketStockRequest adds or updates articles
type CardMarketStockRequest struct {
	Article []CardMarketArticle `json:"article"`
}

// CardMarketInsertResult is the result of adding stock
type CardMarketInsertResult struct {
	Inserted []struct {
		Success bool              `json:"success"`
		Article CardMarketArticle `json:"idArticle"`
		Error   string            `json:"error,omitempty"`
	} `json:"inserted"`
}

// CardMarketUpdateResult is the result of changing stock
type CardMarketUpdateResult struct {
	UpdatedArticles    []CardMarketArticle `json:"updatedArticles"`
	NotUpdatedArticles []struct {
		Success bool              `json:"success"`
		Article CardMarketArticle `json:"tried"`
		Error   string            `json:"error"`
	} `json:"notUpdatedArticles"`
}

func cardMarketComments(sku, edition string) string {
	return sku + cardMarketCommentSeparator + edition
}
