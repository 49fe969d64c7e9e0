package integration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Marketplace Tests
// ---------------------------------------------------------------------------

func TestParseMarketplace(t *testing.T) {
	tests := []struct {
		input   string
		want    Marketplace
		wantErr bool
	}{
		{"STOREFRONT", MarketplaceStorefront, false},
		{" auction ", MarketplaceAuction, false},
		{"cardmarket", MarketplaceCardMarket, false},
		{"Retail", MarketplaceRetail, false},
		{"", "", true},
		{"ebay", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMarketplace(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidMarketplace)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarketplace_DisplayName(t *testing.T) {
	assert.Equal(t, "Card Market", MarketplaceCardMarket.DisplayName())
	assert.Equal(t, "OTHER", Marketplace("OTHER").DisplayName())
	assert.Len(t, AllMarketplaces(), 4)
}

// ---------------------------------------------------------------------------
// Error taxonomy Tests
// ---------------------------------------------------------------------------

func TestRemoteAPIError_Is(t *testing.T) {
	err := fmt.Errorf("ensure product: %w", NewRemoteError(KindNotFound, "404", "product gone"))

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAuth)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.False(t, IsRetryable(err))
}

func TestErrorKind_Retryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindAuth, false},
		{KindValidation, false},
		{KindNotFound, false},
		{KindRateLimited, true},
		{KindTransient, true},
		{KindPlaceholderConflict, false},
		{KindUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.Retryable())
			assert.Equal(t, tt.want, NewRemoteError(tt.kind, "", "x").Retryable)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindTransient, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindTransient, KindOf(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}

func TestAsRemoteError(t *testing.T) {
	assert.Nil(t, AsRemoteError(nil))

	plain := errors.New("boom")
	remote := AsRemoteError(plain)
	assert.Equal(t, KindUnknown, remote.Kind)
	assert.ErrorIs(t, remote, plain)

	original := NewRemoteError(KindRateLimited, "429", "slow down")
	assert.Same(t, original, AsRemoteError(fmt.Errorf("wrap: %w", original)))
	assert.True(t, IsRetryable(original))
	assert.False(t, IsRetryable(nil))
}

// ---------------------------------------------------------------------------
// Credential Tests
// ---------------------------------------------------------------------------

func TestDecodeCredential(t *testing.T) {
	t.Run("storefront", func(t *testing.T) {
		cred, err := DecodeCredential(MarketplaceStorefront, map[string]string{
			"shop_domain":  "cards.example.com",
			"access_token": "shpat_123",
		})
		require.NoError(t, err)
		sf, ok := cred.(StorefrontCredential)
		require.True(t, ok)
		assert.Equal(t, "cards.example.com", sf.ShopDomain)
		assert.Equal(t, MarketplaceStorefront, cred.Marketplace())
	})

	t.Run("auction splits scopes", func(t *testing.T) {
		cred, err := DecodeCredential(MarketplaceAuction, map[string]string{
			"client_id":     "id",
			"client_secret": "secret",
			"refresh_token": "refresh",
			"scopes":        "inventory  account",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"inventory", "account"}, cred.(AuctionCredential).Scopes)
	})

	t.Run("missing fields are listed", func(t *testing.T) {
		_, err := DecodeCredential(MarketplaceCardMarket, map[string]string{"app_token": "a"})
		require.ErrorIs(t, err, ErrInvalidCredential)
		assert.Contains(t, err.Error(), "access_token, access_token_secret, app_secret")
	})

	t.Run("unknown marketplace", func(t *testing.T) {
		_, err := DecodeCredential(Marketplace("X"), nil)
		assert.ErrorIs(t, err, ErrInvalidMarketplace)
	})
}

func TestWrongCredentialError(t *testing.T) {
	err := WrongCredentialError(MarketplaceRetail, StorefrontCredential{})
	assert.ErrorIs(t, err, ErrAuth)
	assert.False(t, err.Retryable)
	assert.Contains(t, err.Error(), "got STOREFRONT")
}

func TestIntegrationCredential_Lifecycle(t *testing.T) {
	storeID := uuid.New()
	secrets := map[string]string{"shop_domain": "shop", "access_token": "t"}

	cred, err := NewIntegrationCredential(storeID, MarketplaceStorefront, secrets, nil)
	require.NoError(t, err)
	assert.True(t, cred.Enabled)
	assert.NotNil(t, cred.Settings)
	assert.Equal(t, CredentialKey{StoreID: storeID, Marketplace: MarketplaceStorefront}, cred.Key())

	secrets["access_token"] = "mutated"
	assert.Equal(t, "t", cred.Secrets["access_token"], "secrets are copied")

	assert.Error(t, cred.UpdateSecrets(map[string]string{"shop_domain": "shop"}))
	require.NoError(t, cred.UpdateSecrets(map[string]string{"shop_domain": "shop", "access_token": "new"}))

	now := time.Now()
	cred.RecordTest(false, errors.New("401"), now)
	assert.False(t, cred.LastTestOK)
	assert.Equal(t, "401", cred.LastTestError)
	cred.RecordTest(true, nil, now)
	assert.Empty(t, cred.LastTestError)

	cred.RecordSync(now)
	require.NotNil(t, cred.LastSyncAt)

	conn, err := cred.Connection()
	require.NoError(t, err)
	assert.Equal(t, "new", conn.Auth.(StorefrontCredential).AccessToken)

	_, err = NewIntegrationCredential(uuid.Nil, MarketplaceStorefront, secrets, nil)
	assert.ErrorIs(t, err, ErrInvalidStoreID)
}

func TestSettings_RemoteLocationFor(t *testing.T) {
	mapped := uuid.New()
	unmapped := uuid.New()

	s := Settings{
		SettingDefaultLocationID: "gid://Location/1",
		SettingSandbox:           "true",
		SettingBaseURL:           "https://api.example.com/",
	}
	s[SettingLocationMapPrefix+mapped.String()] = "gid://Location/2"

	loc, ok := s.RemoteLocationFor(mapped)
	assert.True(t, ok)
	assert.Equal(t, "gid://Location/2", loc)

	loc, ok = s.RemoteLocationFor(unmapped)
	assert.True(t, ok)
	assert.Equal(t, "gid://Location/1", loc)

	_, ok = Settings{}.RemoteLocationFor(unmapped)
	assert.False(t, ok)

	assert.True(t, s.IsSandbox())
	assert.Equal(t, "https://api.example.com", s.BaseURL())
	assert.Equal(t, "EUR", s.Get(SettingCurrency, "EUR"))
}

// ---------------------------------------------------------------------------
// SKU Tests
// ---------------------------------------------------------------------------

func TestDeriveSKU(t *testing.T) {
	card := uuid.MustParse("0a1b2c3d-1111-2222-3333-444455556666")
	loc := uuid.MustParse("9f8e7d6c-aaaa-bbbb-cccc-ddddeeeeffff")
	edition := uuid.MustParse("deadbeef-0000-0000-0000-000000000000")

	plain := DeriveSKU(card, loc, false, nil)
	assert.Regexp(t, `^CV-[A-Z2-7]{16}-N$`, plain)
	assert.Regexp(t, `^CV-[A-Z2-7]{16}-F$`, DeriveSKU(card, loc, true, &edition))
	assert.Equal(t, plain, DeriveSKU(card, loc, false, nil))

	seen := map[string]bool{
		plain:                                 true,
		DeriveSKU(card, loc, true, nil):       true,
		DeriveSKU(card, loc, false, &edition): true,
		DeriveSKU(card, loc, true, &edition):  true,
	}
	assert.Len(t, seen, 4)
}

func TestDeriveSKU_IDsSharingPrefix(t *testing.T) {
	first := uuid.MustParse("abcdef12-0000-0000-0000-000000000001")
	second := uuid.MustParse("abcdef12-1111-1111-1111-000000000002")
	loc := uuid.MustParse("b5bc980f-0000-0000-0000-000000000000")
	otherLoc := uuid.MustParse("b5bc980f-ffff-ffff-ffff-ffffffffffff")
	edition := uuid.MustParse("deadbeef-0000-0000-0000-000000000000")
	otherEdition := uuid.MustParse("deadbeef-9999-9999-9999-999999999999")

	assert.NotEqual(t, DeriveSKU(first, loc, false, nil), DeriveSKU(second, loc, false, nil))
	assert.NotEqual(t, DeriveSKU(first, loc, false, nil), DeriveSKU(first, otherLoc, false, nil))
	assert.NotEqual(t, DeriveSKU(first, loc, true, &edition), DeriveSKU(first, loc, true, &otherEdition))
	assert.NotEqual(t, CardKey(first), CardKey(second))
	assert.Regexp(t, `^CV-[A-Z2-7]{16}$`, CardKey(first))
}

func TestSKUForAndOptionsFor(t *testing.T) {
	edition := uuid.New()
	rec, err := inventory.NewRecord(uuid.New(), uuid.New(), uuid.New(), true, &edition, "First Edition")
	require.NoError(t, err)

	assert.Equal(t, DeriveSKU(rec.CardID, rec.LocationID, true, &edition), SKUFor(rec))
	assert.Equal(t, VariantOptions{Finish: FinishFoil, Edition: "First Edition"}, OptionsFor(rec))

	assert.True(t, VariantOptions{Finish: "foil", Edition: "standard"}.Equal(VariantOptions{Finish: "Foil ", Edition: "Standard"}))
	assert.False(t, VariantOptions{Finish: FinishFoil, Edition: "Standard"}.Equal(VariantOptions{Finish: FinishNonFoil, Edition: "Standard"}))
}

// ---------------------------------------------------------------------------
// Report Tests
// ---------------------------------------------------------------------------

func TestBatchReport_Add(t *testing.T) {
	report := &BatchReport{}
	ok := RecordOutcome{RecordID: uuid.New(), State: StateSynced}
	bad := RecordOutcome{RecordID: uuid.New(), State: StateFailed, FailedIn: StateResolvingProduct}

	report.Add(ok)
	report.Add(bad)

	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	got, found := report.Outcome(bad.RecordID)
	require.True(t, found)
	assert.Equal(t, StateResolvingProduct, got.FailedIn)

	_, found = report.Outcome(uuid.New())
	assert.False(t, found)
}

func TestToken_ValidAt(t *testing.T) {
	now := time.Now()
	assert.False(t, Token{}.ValidAt(now))
	assert.True(t, Token{AccessToken: "a"}.ValidAt(now))
	assert.True(t, Token{AccessToken: "a", ExpiresAt: now.Add(time.Minute)}.ValidAt(now))
	assert.False(t, Token{AccessToken: "a", ExpiresAt: now.Add(-time.Minute)}.ValidAt(now))
}
