package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardvault/backend/internal/domain/integration"
)

var testCardMarketCredential = integration.CardMarketCredential{
	AppToken:          "app-token",
	AppSecret:         "app-secret",
	AccessToken:       "access-token",
	AccessTokenSecret: "access-secret",
}

// ---------------------------------------------------------------------------
// Signer Tests
// ---------------------------------------------------------------------------

func TestCardMarketSigner_Sign(t *testing.T) {
	// Reference vector from the OAuth 1.0 specification
	signer := newCardMarketSigner(integration.CardMarketCredential{
		AppSecret:         "kd94hf93k423kf44",
		AccessTokenSecret: "pfkkdhi9sl3r4s00",
	})
	params := map[string]string{
		"file":                   "vacation.jpg",
		"size":                   "original",
		"oauth_consumer_key":     "dpf43f3p2l4k3l03",
		"oauth_token":            "nnch734d00sl2jdk",
		"oauth_nonce":            "kllo9940pd9333jh",
		"oauth_timestamp":        "1191242096",
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_version":          "1.0",
	}
	assert.Equal(t, "tR3+Ty81lMeYAr/Fid0kMTYa/WM=", signer.Sign("GET", "http://photos.example.net/photos", params))
}

func TestCardMarketSigner_Authorization(t *testing.T) {
	signer := newCardMarketSigner(testCardMarketCredential)
	signer.now = func() time.Time { return time.Unix(1700000000, 0) }
	signer.nonce = func() string { return "fixednonce" }

	header, err := signer.Authorization("GET", "https://api.example.com/ws/v2.0/output.json/products/find?search=Black+Lotus")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(header, `OAuth realm="https%3A%2F%2Fapi.example.com%2Fws%2Fv2.0%2Foutput.json%2Fproducts%2Ffind"`))
	assert.Contains(t, header, `oauth_consumer_key="app-token"`)
	assert.Contains(t, header, `oauth_token="access-token"`)
	assert.Contains(t, header, `oauth_timestamp="1700000000"`)
	assert.Contains(t, header, `oauth_nonce="fixednonce"`)
	assert.Contains(t, header, `oauth_signature="`)

	again, err := signer.Authorization("GET", "https://api.example.com/ws/v2.0/output.json/products/find?search=Black+Lotus")
	require.NoError(t, err)
	assert.Equal(t, header, again)
}

func TestOAuthEscape(t *testing.T) {
	assert.Equal(t, "a%20b~c%2Bd%26", oauthEscape("a b~c+d&"))
}

// ---------------------------------------------------------------------------
// Adapter Tests
// ---------------------------------------------------------------------------

// fakeCardMarket serves a catalog and one seller's stock, verifying every signature
type fakeCardMarket struct {
	mu       sync.Mutex
	server   *httptest.Server
	catalog  []CardMarketProduct
	stock    []CardMarketArticle
	nextID   int64
	badSigns int
	// rejectCount makes updates setting this count fail
	rejectCount int
}

func newFakeCardMarket(t *testing.T) *fakeCardMarket {
	f := &fakeCardMarket{nextID: 1000}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCardMarket) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.verify(r) {
		f.badSigns++
		writeTestJSON(w, http.StatusUnauthorized, CardMarketErrorResponse{Error: "Invalid signature"})
		return
	}

	switch {
	case r.URL.Path == "/account":
		writeTestJSON(w, http.StatusOK, map[string]any{"account": map[string]any{"idUser": 1, "username": "seller"}})
	case r.URL.Path == "/products/find":
		search := r.URL.Query().Get("search")
		list := CardMarketProductList{}
		for _, p := range f.catalog {
			if strings.EqualFold(p.EnName, search) {
				list.Product = append(list.Product, p)
			}
		}
		if len(list.Product) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeTestJSON(w, http.StatusOK, list)
	case strings.HasPrefix(r.URL.Path, "/products/"):
		id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/products/"), 10, 64)
		for _, p := range f.catalog {
			if p.IDProduct == id {
				writeTestJSON(w, http.StatusOK, CardMarketProductResponse{Product: p})
				return
			}
		}
		writeTestJSON(w, http.StatusNotFound, CardMarketErrorResponse{Error: "Product not found"})
	case r.URL.Path == "/stock" && r.Method == http.MethodGet:
		writeTestJSON(w, http.StatusOK, CardMarketStock{Article: f.stock})
	case r.URL.Path == "/stock" && r.Method == http.MethodPost:
		var req CardMarketStockRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var result CardMarketInsertResult
		for _, art := range req.Article {
			f.nextID++
			art.IDArticle = f.nextID
			f.stock = append(f.stock, art)
			result.Inserted = append(result.Inserted, struct {
				Success bool              `json:"success"`
				Article CardMarketArticle `json:"idArticle"`
				Error   string            `json:"error,omitempty"`
			}{Success: true, Article: art})
		}
		writeTestJSON(w, http.StatusCreated, result)
	case r.URL.Path == "/stock" && r.Method == http.MethodPut:
		var req CardMarketStockRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var result CardMarketUpdateResult
		for _, change := range req.Article {
			i := f.articleIndex(change.IDArticle)
			if i < 0 || (change.Count != nil && f.rejectCount != 0 && *change.Count == f.rejectCount) {
				result.NotUpdatedArticles = append(result.NotUpdatedArticles, struct {
					Success bool              `json:"success"`
					Article CardMarketArticle `json:"tried"`
					Error   string            `json:"error"`
				}{Article: change, Error: "Article not found"})
				continue
			}
			if change.Count != nil {
				f.stock[i].Count = change.Count
			}
			if change.Price != "" {
				f.stock[i].Price = change.Price
			}
			if change.Comments != "" {
				f.stock[i].Comments = change.Comments
			}
			result.UpdatedArticles = append(result.UpdatedArticles, f.stock[i])
		}
		writeTestJSON(w, http.StatusOK, result)
	case strings.HasPrefix(r.URL.Path, "/stock/article/") && r.Method == http.MethodGet:
		id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/stock/article/"), 10, 64)
		if i := f.articleIndex(id); i >= 0 {
			writeTestJSON(w, http.StatusOK, map[string]any{"article": f.stock[i]})
			return
		}
		writeTestJSON(w, http.StatusNotFound, CardMarketErrorResponse{Error: "Article not found"})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCardMarket) articleIndex(id int64) int {
	for i, art := range f.stock {
		if art.IDArticle == id {
			return i
		}
	}
	return -1
}

// verify recomputes the OAuth signature from the Authorization header
func (f *fakeCardMarket) verify(r *http.Request) bool {
	header := strings.TrimPrefix(r.Header.Get("Authorization"), "OAuth ")
	params := make(map[string]string)
	for _, part := range strings.Split(header, ", ") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return false
		}
		v, err := url.PathUnescape(strings.Trim(v, `"`))
		if err != nil {
			return false
		}
		params[k] = v
	}
	signature := params["oauth_signature"]
	realm := params["realm"]
	delete(params, "oauth_signature")
	delete(params, "realm")
	for k, values := range r.URL.Query() {
		params[k] = values[0]
	}
	want := newCardMarketSigner(testCardMarketCredential).Sign(r.Method, realm, params)
	return signature != "" && signature == want && params["oauth_consumer_key"] == "app-token"
}

type cardMarketFixture struct {
	fake    *fakeCardMarket
	adapter *CardMarketAdapter
	refs    *memoryRefs
	conn    *integration.Connection
}

func newCardMarketFixture(t *testing.T) *cardMarketFixture {
	t.Helper()
	fake := newFakeCardMarket(t)
	refs := newMemoryRefs()
	adapter, err := NewCardMarketAdapter(testAdapterConfig(), testDeps(refs, nil))
	require.NoError(t, err)
	return &cardMarketFixture{
		fake:    fake,
		adapter: adapter,
		refs:    refs,
		conn: &integration.Connection{
			StoreID:     uuid.New(),
			Marketplace: integration.MarketplaceCardMarket,
			Auth:        testCardMarketCredential,
			Settings:    integration.Settings{integration.SettingBaseURL: fake.server.URL},
		},
	}
}

func TestCardMarketAdapter_TestConnection(t *testing.T) {
	f := newCardMarketFixture(t)

	ok, err := f.adapter.TestConnection(context.Background(), f.conn)
	require.NoError(t, err)
	assert.True(t, ok)

	bad := testCardMarketCredential
	bad.AppSecret = "wrong"
	f.conn.Auth = bad
	ok, err = f.adapter.TestConnection(context.Background(), f.conn)
	assert.False(t, ok)
	assert.ErrorIs(t, err, integration.ErrAuth)
	assert.Equal(t, 1, f.fake.badSigns)
}

func TestCardMarketAdapter_EnsureRemoteProduct(t *testing.T) {
	f := newCardMarketFixture(t)
	ctx := context.Background()
	f.fake.catalog = []CardMarketProduct{
		{IDProduct: 11, EnName: "Elsa", ExpansionName: "Into the Inklands"},
		{IDProduct: 12, EnName: "Elsa", ExpansionName: "The First Chapter"},
	}
	card := newTestCard(t, "Elsa")

	id, err := f.adapter.EnsureRemoteProduct(ctx, f.conn, card)
	require.NoError(t, err)
	assert.Equal(t, "12", id, "matched by set")
	assert.Equal(t, "12", f.refs.productID(card.ID))

	// Product withdrawn from the catalog and re-listed under a new id
	f.fake.catalog = []CardMarketProduct{{IDProduct: 99, EnName: "Elsa", ExpansionName: "The First Chapter"}}
	healed, err := f.adapter.EnsureRemoteProduct(ctx, f.conn, card)
	require.NoError(t, err)
	assert.Equal(t, "99", healed)
	assert.Equal(t, []uuid.UUID{card.ID}, f.refs.invalidated)
}

func TestCardMarketAdapter_EnsureRemoteProduct_NotInCatalog(t *testing.T) {
	f := newCardMarketFixture(t)

	_, err := f.adapter.EnsureRemoteProduct(context.Background(), f.conn, newTestCard(t, "Unknown Card"))
	assert.ErrorIs(t, err, integration.ErrValidation)
	assert.False(t, integration.IsRetryable(err))
}

func TestCardMarketAdapter_VariantsQuantityAndPrice(t *testing.T) {
	f := newCardMarketFixture(t)
	ctx := context.Background()
	f.fake.catalog = []CardMarketProduct{{IDProduct: 12, EnName: "Elsa", ExpansionName: "The First Chapter"}}
	card := newTestCard(t, "Elsa")
	_, err := f.adapter.EnsureRemoteProduct(ctx, f.conn, card)
	require.NoError(t, err)

	foil := newTestRecord(t, f.conn.StoreID, card, uuid.New(), true)
	manualFoil := true
	f.fake.stock = []CardMarketArticle{{IDArticle: 500, IDProduct: 12, Comments: "Standard", IsFoil: &manualFoil}}

	// An unclaimed article of the same tuple is claimed
	articleID, err := f.adapter.EnsureRemoteVariant(ctx, f.conn, card, foil, nil)
	require.NoError(t, err)
	assert.Equal(t, "500", articleID)
	assert.Equal(t, integration.SKUFor(foil), f.fake.stock[0].SKU())

	again, err := f.adapter.EnsureRemoteVariant(ctx, f.conn, card, foil, nil)
	require.NoError(t, err)
	assert.Equal(t, articleID, again)

	nonFoil := newTestRecord(t, f.conn.StoreID, card, uuid.New(), false)
	created, err := f.adapter.EnsureRemoteVariant(ctx, f.conn, card, nonFoil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, articleID, created)
	require.Len(t, f.fake.stock, 2)
	assert.Equal(t, integration.SKUFor(nonFoil), f.fake.stock[1].SKU())
	assert.Equal(t, "Standard", f.fake.stock[1].Edition())

	require.NoError(t, f.adapter.EnsureInventoryTracking(ctx, f.conn, created, ""))
	require.NoError(t, f.adapter.PushQuantity(ctx, f.conn, created, "", 7))
	require.NoError(t, f.adapter.PushQuantity(ctx, f.conn, created, "", 7))
	assert.Equal(t, 7, *f.fake.stock[1].Count)

	require.NoError(t, f.adapter.PushPrice(ctx, f.conn, created, decimal.RequireFromString("4.5")))
	assert.Equal(t, "4.50", f.fake.stock[1].Price.String())

	err = f.adapter.PushQuantity(ctx, f.conn, "424242", "", 1)
	assert.ErrorIs(t, err, integration.ErrNotFound)
}

func TestCardMarketAdapter_RejectedUpdateOfExistingArticle(t *testing.T) {
	f := newCardMarketFixture(t)
	ctx := context.Background()
	foil := true
	f.fake.stock = []CardMarketArticle{{IDArticle: 500, IDProduct: 12, Comments: "CV-X | Standard", IsFoil: &foil}}
	f.fake.rejectCount = 9999

	err := f.adapter.PushQuantity(ctx, f.conn, "500", "", 9999)
	assert.ErrorIs(t, err, integration.ErrValidation, "the article exists even though the message says otherwise")
	assert.False(t, integration.IsRetryable(err))

	err = f.adapter.PushQuantity(ctx, f.conn, "501", "", 1)
	assert.ErrorIs(t, err, integration.ErrNotFound)
}

func TestCardMarketAdapter_ClaimedArticleIsNotReclaimed(t *testing.T) {
	f := newCardMarketFixture(t)
	ctx := context.Background()
	f.fake.catalog = []CardMarketProduct{{IDProduct: 12, EnName: "Elsa", ExpansionName: "The First Chapter"}}
	card := newTestCard(t, "Elsa")
	_, err := f.adapter.EnsureRemoteProduct(ctx, f.conn, card)
	require.NoError(t, err)

	foil := true
	f.fake.stock = []CardMarketArticle{{IDArticle: 500, IDProduct: 12, Comments: "CV-OTHERRECORD0000-F | Standard", IsFoil: &foil}}
	rec := newTestRecord(t, f.conn.StoreID, card, uuid.New(), true)

	id, err := f.adapter.EnsureRemoteVariant(ctx, f.conn, card, rec, nil)
	require.NoError(t, err)
	assert.NotEqual(t, "500", id)
	require.Len(t, f.fake.stock, 2)
	assert.Equal(t, "CV-OTHERRECORD0000-F", f.fake.stock[0].SKU(), "claimed article keeps its SKU")
	assert.Equal(t, integration.SKUFor(rec), f.fake.stock[1].SKU())
}
