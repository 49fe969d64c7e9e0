package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var cardMarketSecrets = map[string]string{
	"app_token": "a", "app_secret": "b", "access_token": "c", "access_token_secret": "d",
}

func newCredentialService(t *testing.T) (*CredentialService, *syncFixture, *MockAdapter, *cache.InMemoryTokenCache) {
	t.Helper()
	a := newMockAdapter(integration.MarketplaceCardMarket)
	f := newSyncFixture(t, a)
	tokens := cache.NewInMemoryTokenCache(time.Minute)
	svc := NewCredentialService(f.credentials, f.refs, f.registry, tokens, time.Second, zap.NewNop())
	return svc, f, a, tokens
}

func seedToken(t *testing.T, tokens *cache.InMemoryTokenCache, key integration.CredentialKey) {
	t.Helper()
	require.NoError(t, tokens.Set(context.Background(), key, integration.Token{
		AccessToken: "minted",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))
}

func TestCredentialService_Create(t *testing.T) {
	svc, f, _, _ := newCredentialService(t)
	ctx := context.Background()
	input := CreateCredentialInput{StoreID: f.storeID, Marketplace: integration.MarketplaceCardMarket, Secrets: cardMarketSecrets}

	cred, err := svc.Create(ctx, input)
	require.NoError(t, err)
	assert.True(t, cred.Enabled)

	_, err = svc.Create(ctx, input)
	assert.ErrorIs(t, err, integration.ErrCredentialExists)

	input.Marketplace = integration.MarketplaceRetail
	input.Secrets = map[string]string{"client_id": "only"}
	_, err = svc.Create(ctx, input)
	assert.ErrorIs(t, err, integration.ErrInvalidCredential)
}

func TestCredentialService_UpdateInvalidatesToken(t *testing.T) {
	svc, f, _, tokens := newCredentialService(t)
	ctx := context.Background()
	cred := f.connect(t, integration.MarketplaceCardMarket, cardMarketSecrets, nil)
	seedToken(t, tokens, cred.Key())

	rotated := map[string]string{
		"app_token": "a2", "app_secret": "b2", "access_token": "c2", "access_token_secret": "d2",
	}
	updated, err := svc.Update(ctx, UpdateCredentialInput{
		StoreID:     f.storeID,
		Marketplace: integration.MarketplaceCardMarket,
		Secrets:     rotated,
		Settings:    integration.Settings{integration.SettingDefaultLocationID: "warehouse-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "warehouse-2", updated.Settings.DefaultLocationID())

	_, found, err := tokens.Get(ctx, cred.Key())
	require.NoError(t, err)
	assert.False(t, found)

	stored, err := f.credentials.FindByKey(ctx, f.storeID, integration.MarketplaceCardMarket)
	require.NoError(t, err)
	assert.Equal(t, "a2", stored.Secrets["app_token"])

	// Settings-only update keeps secrets
	_, err = svc.Update(ctx, UpdateCredentialInput{
		StoreID:     f.storeID,
		Marketplace: integration.MarketplaceCardMarket,
		Settings:    integration.Settings{integration.SettingSandbox: "true"},
	})
	require.NoError(t, err)
	stored, err = f.credentials.FindByKey(ctx, f.storeID, integration.MarketplaceCardMarket)
	require.NoError(t, err)
	assert.Equal(t, "a2", stored.Secrets["app_token"])
	assert.True(t, stored.Settings.IsSandbox())
}

func TestCredentialService_SetEnabled(t *testing.T) {
	svc, f, _, _ := newCredentialService(t)
	ctx := context.Background()
	f.connect(t, integration.MarketplaceCardMarket, cardMarketSecrets, nil)

	cred, err := svc.SetEnabled(ctx, f.storeID, integration.MarketplaceCardMarket, false)
	require.NoError(t, err)
	assert.False(t, cred.Enabled)

	enabled, err := svc.ListEnabled(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	_, err = svc.SetEnabled(ctx, f.storeID, integration.MarketplaceAuction, true)
	assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
}

func TestCredentialService_Test(t *testing.T) {
	t.Run("success is recorded", func(t *testing.T) {
		svc, f, a, _ := newCredentialService(t)
		f.connect(t, integration.MarketplaceCardMarket, cardMarketSecrets, nil)
		a.On("TestConnection", mock.Anything, mock.Anything).Return(true, nil).Once()

		result, err := svc.Test(context.Background(), f.storeID, integration.MarketplaceCardMarket)
		require.NoError(t, err)
		assert.True(t, result.OK)

		stored, err := f.credentials.FindByKey(context.Background(), f.storeID, integration.MarketplaceCardMarket)
		require.NoError(t, err)
		assert.True(t, stored.LastTestOK)
		assert.NotNil(t, stored.LastTestedAt)
	})

	t.Run("failure is a result, not an error", func(t *testing.T) {
		svc, f, a, _ := newCredentialService(t)
		f.connect(t, integration.MarketplaceCardMarket, cardMarketSecrets, nil)
		a.On("TestConnection", mock.Anything, mock.Anything).
			Return(false, integration.NewRemoteError(integration.KindAuth, "401", "invalid signature")).Once()

		result, err := svc.Test(context.Background(), f.storeID, integration.MarketplaceCardMarket)
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Equal(t, integration.KindAuth, result.ErrorKind)
		assert.Contains(t, result.Error, "invalid signature")

		stored, err := f.credentials.FindByKey(context.Background(), f.storeID, integration.MarketplaceCardMarket)
		require.NoError(t, err)
		assert.False(t, stored.LastTestOK)
		assert.Contains(t, stored.LastTestError, "invalid signature")
	})

	t.Run("panic is folded into a failed result", func(t *testing.T) {
		svc, f, a, _ := newCredentialService(t)
		f.connect(t, integration.MarketplaceCardMarket, cardMarketSecrets, nil)
		a.On("TestConnection", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("boom") })

		result, err := svc.Test(context.Background(), f.storeID, integration.MarketplaceCardMarket)
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Equal(t, integration.KindUnknown, result.ErrorKind)
	})

	t.Run("missing credential", func(t *testing.T) {
		svc, f, _, _ := newCredentialService(t)
		_, err := svc.Test(context.Background(), f.storeID, integration.MarketplaceCardMarket)
		assert.True(t, errors.Is(err, integration.ErrCredentialNotFound))
	})
}

func TestCredentialService_DeleteClearsRemoteIDs(t *testing.T) {
	svc, f, _, tokens := newCredentialService(t)
	ctx := context.Background()
	m := integration.MarketplaceCardMarket.String()
	cred := f.connect(t, integration.MarketplaceCardMarket, cardMarketSecrets, nil)
	seedToken(t, tokens, cred.Key())

	card := f.newCard(t, "Simba - Returned King")
	card.SetRemoteProductID(f.storeID, m, "P-1")
	card.SetRemoteProductID(f.storeID, integration.MarketplaceStorefront.String(), "gid://storefront/Product/1")
	require.NoError(t, f.cards.Save(ctx, card))
	rec := f.newRecord(t, card, false, 1, "")
	rec.MarkSynced(m, "V-1", rec.SellPrice, time.Now())
	require.NoError(t, f.records.Save(ctx, rec))

	result, err := svc.Delete(ctx, f.storeID, integration.MarketplaceCardMarket)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ClearedProducts)
	assert.Equal(t, int64(1), result.ClearedVariants)

	_, err = f.credentials.FindByKey(ctx, f.storeID, integration.MarketplaceCardMarket)
	assert.ErrorIs(t, err, integration.ErrCredentialNotFound)

	stored, err := f.cards.FindByID(ctx, card.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.RemoteProductID(f.storeID, m))
	assert.Equal(t, "gid://storefront/Product/1", stored.RemoteProductID(f.storeID, integration.MarketplaceStorefront.String()),
		"other channels are untouched")
	assert.Empty(t, f.reload(t, rec).RemoteVariantID(m))

	_, found, err := tokens.Get(ctx, cred.Key())
	require.NoError(t, err)
	assert.False(t, found)

	_, err = svc.Delete(ctx, f.storeID, integration.MarketplaceCardMarket)
	assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
}

// failingRemover refuses every removal
type failingRemover struct{ err error }

func (r failingRemover) RemoveIntegration(context.Context, uuid.UUID, integration.Marketplace) (integration.RemovedRefs, error) {
	return integration.RemovedRefs{}, r.err
}

func TestCredentialService_DeleteFailureKeepsToken(t *testing.T) {
	_, f, _, tokens := newCredentialService(t)
	ctx := context.Background()
	cred := f.connect(t, integration.MarketplaceCardMarket, cardMarketSecrets, nil)
	seedToken(t, tokens, cred.Key())
	boom := errors.New("database unavailable")
	svc := NewCredentialService(f.credentials, failingRemover{err: boom}, f.registry, tokens, time.Second, zap.NewNop())

	_, err := svc.Delete(ctx, f.storeID, integration.MarketplaceCardMarket)
	assert.ErrorIs(t, err, boom)

	_, found, err := tokens.Get(ctx, cred.Key())
	require.NoError(t, err)
	assert.True(t, found)
}

func TestToCredentialResponse_OmitsSecretValues(t *testing.T) {
	cred, err := integration.NewIntegrationCredential(uuid.New(), integration.MarketplaceCardMarket, cardMarketSecrets, nil)
	require.NoError(t, err)

	resp := ToCredentialResponse(cred)
	assert.Equal(t, []string{"access_token", "access_token_secret", "app_secret", "app_token"}, resp.SecretKeys)
	assert.Equal(t, "Card Market", resp.DisplayName)
}
