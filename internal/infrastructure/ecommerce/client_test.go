package ecommerce

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/cardvault/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestAdapterConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  AdapterConfig
		wantErr error
	}{
		{name: "defaults", config: DefaultAdapterConfig()},
		{name: "negative rate", config: AdapterConfig{RequestsPerSecond: -1}, wantErr: ErrConfigInvalidRate},
		{name: "negative burst", config: AdapterConfig{Burst: -1}, wantErr: ErrConfigInvalidBurst},
		{name: "bad base url", config: AdapterConfig{BaseURL: "ftp://example.com"}, wantErr: ErrConfigInvalidBaseURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 30*time.Second, tt.config.Timeout())
		})
	}

	cfg := AdapterConfig{BaseURL: "https://example.com/", RequestsPerSecond: 5}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://example.com", cfg.BaseURL)
	assert.Equal(t, 1, cfg.Burst)
}

// ---------------------------------------------------------------------------
// Client Tests
// ---------------------------------------------------------------------------

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   integration.ErrorKind
	}{
		{http.StatusUnauthorized, integration.KindAuth},
		{http.StatusForbidden, integration.KindAuth},
		{http.StatusNotFound, integration.KindNotFound},
		{http.StatusGone, integration.KindNotFound},
		{http.StatusTooManyRequests, integration.KindRateLimited},
		{http.StatusRequestTimeout, integration.KindTransient},
		{http.StatusBadGateway, integration.KindTransient},
		{http.StatusUnprocessableEntity, integration.KindValidation},
		{http.StatusOK, integration.KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyStatus(tt.status), "status %d", tt.status)
	}
}

func TestAPIClient_DoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			writeTestJSON(w, http.StatusOK, map[string]string{"echo": r.Header.Get("X-Test")})
		case "/garbage":
			_, _ = w.Write([]byte("<html>"))
		default:
			writeTestJSON(w, http.StatusTooManyRequests, map[string]string{"code": "SLOW_DOWN", "message": "too many"})
		}
	}))
	defer server.Close()

	client := newAPIClient(integration.MarketplaceStorefront, testAdapterConfig(), zap.NewNop())
	ctx := context.Background()
	parse := func(body []byte) (string, string) { return "SLOW_DOWN", "too many" }

	var out map[string]string
	header := http.Header{}
	header.Set("X-Test", "hello")
	_, err := client.doJSON(ctx, apiRequest{Method: http.MethodPost, URL: server.URL + "/ok", Header: header, Body: map[string]int{"a": 1}}, &out, parse)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["echo"])

	_, err = client.doJSON(ctx, apiRequest{Method: http.MethodGet, URL: server.URL + "/garbage"}, &out, parse)
	assert.Equal(t, integration.KindUnknown, integration.KindOf(err))

	resp, err := client.doJSON(ctx, apiRequest{Method: http.MethodGet, URL: server.URL + "/limited"}, &out, parse)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	remote := integration.AsRemoteError(err)
	assert.Equal(t, "SLOW_DOWN", remote.Code)
	assert.Equal(t, http.StatusTooManyRequests, remote.StatusCode)
	assert.True(t, remote.Retryable)
}

func TestAPIClient_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newAPIClient(integration.MarketplaceStorefront, testAdapterConfig(), zap.NewNop())
	_, err := client.do(context.Background(), apiRequest{Method: http.MethodGet, URL: url})
	assert.ErrorIs(t, err, integration.ErrTransient)
}

func TestAPIClient_RateLimiterHonoursContext(t *testing.T) {
	cfg := AdapterConfig{RequestsPerSecond: 0.001, Burst: 1}
	require.NoError(t, cfg.Validate())
	client := newAPIClient(integration.MarketplaceStorefront, cfg, zap.NewNop())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	_, err := client.do(context.Background(), apiRequest{Method: http.MethodGet, URL: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.do(ctx, apiRequest{Method: http.MethodGet, URL: server.URL})
	assert.ErrorIs(t, err, integration.ErrTransient)
}

// ---------------------------------------------------------------------------
// Token Provider Tests
// ---------------------------------------------------------------------------

func TestTokenProvider_ConcurrentMissesShareOneMint(t *testing.T) {
	tokens := newMemoryTokens()
	provider := newTokenProvider(tokens, zap.NewNop())
	key := integration.CredentialKey{StoreID: uuid.New(), Marketplace: integration.MarketplaceAuction}

	var mints atomic.Int32
	release := make(chan struct{})
	mint := func(ctx context.Context) (*oauth2.Token, error) {
		mints.Add(1)
		<-release
		return &oauth2.Token{AccessToken: "shared", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := provider.Token(context.Background(), key, mint)
			assert.NoError(t, err)
			results[i] = token
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), mints.Load())
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}

	provider.Invalidate(context.Background(), key)
	_, found, _ := tokens.Get(context.Background(), key)
	assert.False(t, found)
}

func TestClassifyTokenError(t *testing.T) {
	retrieve := func(status int, code string) error {
		return &oauth2.RetrieveError{Response: &http.Response{StatusCode: status}, ErrorCode: code}
	}

	err := classifyTokenError(retrieve(http.StatusBadRequest, "invalid_grant"))
	assert.ErrorIs(t, err, integration.ErrAuth)
	assert.Equal(t, "invalid_grant", err.Code)

	assert.ErrorIs(t, classifyTokenError(retrieve(http.StatusTooManyRequests, "")), integration.ErrRateLimited)
	assert.ErrorIs(t, classifyTokenError(retrieve(http.StatusBadGateway, "")), integration.ErrTransient)
	assert.ErrorIs(t, classifyTokenError(errors.New("dial tcp: connection refused")), integration.ErrTransient)
}

// ---------------------------------------------------------------------------
// Registry Tests
// ---------------------------------------------------------------------------

func TestRegistry(t *testing.T) {
	storefront, err := NewStorefrontAdapter(testAdapterConfig(), testDeps(newMemoryRefs(), nil))
	require.NoError(t, err)
	cardMarket, err := NewCardMarketAdapter(testAdapterConfig(), testDeps(newMemoryRefs(), nil))
	require.NoError(t, err)

	registry := NewRegistry(storefront, cardMarket)

	got, err := registry.Adapter(integration.MarketplaceStorefront)
	require.NoError(t, err)
	assert.Same(t, storefront, got)

	_, err = registry.Adapter(integration.MarketplaceRetail)
	assert.ErrorIs(t, err, integration.ErrAdapterNotRegistered)

	assert.Equal(t, []integration.Marketplace{integration.MarketplaceCardMarket, integration.MarketplaceStorefront}, registry.Marketplaces())
}
