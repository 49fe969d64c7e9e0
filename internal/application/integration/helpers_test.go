package integration

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/cardvault/backend/internal/infrastructure/crypto"
	"github.com/cardvault/backend/internal/infrastructure/ecommerce"
	"github.com/cardvault/backend/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testRemoteLocation = "gid://storefront/Location/1"

// MockAdapter is a scripted MarketplaceAdapter
type MockAdapter struct {
	mock.Mock
	marketplace integration.Marketplace
}

func newMockAdapter(m integration.Marketplace) *MockAdapter {
	return &MockAdapter{marketplace: m}
}

func (a *MockAdapter) Marketplace() integration.Marketplace {
	return a.marketplace
}

func (a *MockAdapter) TestConnection(ctx context.Context, conn *integration.Connection) (bool, error) {
	args := a.Called(ctx, conn)
	return args.Bool(0), args.Error(1)
}

func (a *MockAdapter) EnsureRemoteProduct(ctx context.Context, conn *integration.Connection, card *catalog.Card) (string, error) {
	args := a.Called(ctx, conn, card)
	return args.String(0), args.Error(1)
}

func (a *MockAdapter) EnsureRemoteVariant(ctx context.Context, conn *integration.Connection, card *catalog.Card, record *inventory.Record, siblings []*inventory.Record) (string, error) {
	args := a.Called(ctx, conn, card, record, siblings)
	return args.String(0), args.Error(1)
}

func (a *MockAdapter) EnsureInventoryTracking(ctx context.Context, conn *integration.Connection, variantID, remoteLocationID string) error {
	args := a.Called(ctx, conn, variantID, remoteLocationID)
	return args.Error(0)
}

func (a *MockAdapter) PushQuantity(ctx context.Context, conn *integration.Connection, variantID, remoteLocationID string, quantity int) error {
	args := a.Called(ctx, conn, variantID, remoteLocationID, quantity)
	return args.Error(0)
}

func (a *MockAdapter) PushPrice(ctx context.Context, conn *integration.Connection, variantID string, price decimal.Decimal) error {
	args := a.Called(ctx, conn, variantID, price)
	return args.Error(0)
}

// syncFixture wires the engine to an in-memory SQLite database
type syncFixture struct {
	db          *gorm.DB
	storeID     uuid.UUID
	cards       *persistence.GormCardRepository
	records     *persistence.GormRecordRepository
	credentials *persistence.GormCredentialRepository
	refs        *persistence.GormRemoteRefStore
	registry    *ecommerce.Registry
	engine      *SyncEngine
}

func newSyncFixture(t *testing.T, adapters ...integration.MarketplaceAdapter) *syncFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, (&persistence.Database{DB: db}).Migrate())

	sealer, err := crypto.NewSealer(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	f := &syncFixture{
		db:          db,
		storeID:     uuid.New(),
		cards:       persistence.NewGormCardRepository(db),
		records:     persistence.NewGormRecordRepository(db),
		credentials: persistence.NewGormCredentialRepository(db, sealer),
		refs:        persistence.NewGormRemoteRefStore(db),
		registry:    ecommerce.NewRegistry(adapters...),
	}
	f.engine = NewSyncEngine(f.credentials, f.cards, f.records, f.registry, EngineConfig{
		Concurrency:  2,
		CallTimeout:  5 * time.Second,
		BatchTimeout: 30 * time.Second,
	}, zap.NewNop())
	return f
}

func (f *syncFixture) connect(t *testing.T, m integration.Marketplace, secrets map[string]string, settings integration.Settings) *integration.IntegrationCredential {
	t.Helper()
	cred, err := integration.NewIntegrationCredential(f.storeID, m, secrets, settings)
	require.NoError(t, err)
	require.NoError(t, f.credentials.Save(context.Background(), cred))
	return cred
}

func (f *syncFixture) connectStorefront(t *testing.T, baseURL string) *integration.IntegrationCredential {
	t.Helper()
	return f.connect(t, integration.MarketplaceStorefront,
		map[string]string{"shop_domain": "cardvault-test.example.com", "access_token": "shpat_test_token"},
		integration.Settings{
			integration.SettingBaseURL:           baseURL,
			integration.SettingDefaultLocationID: testRemoteLocation,
		},
	)
}

func (f *syncFixture) newCard(t *testing.T, name string) *catalog.Card {
	t.Helper()
	card, err := catalog.NewCard(name, catalog.Tags{Game: "Lorcana", Set: "The First Chapter", Rarity: "Rare"})
	require.NoError(t, err)
	require.NoError(t, f.cards.Save(context.Background(), card))
	return card
}

func (f *syncFixture) newRecord(t *testing.T, card *catalog.Card, foil bool, quantity int, price string) *inventory.Record {
	t.Helper()
	rec, err := inventory.NewRecord(f.storeID, uuid.New(), card.ID, foil, nil, "")
	require.NoError(t, err)
	require.NoError(t, rec.SetQuantity(quantity))
	if price != "" {
		require.NoError(t, rec.SetSellPrice(decimal.NewNullDecimal(decimal.RequireFromString(price))))
	}
	require.NoError(t, f.records.Save(context.Background(), rec))
	return rec
}

func (f *syncFixture) reload(t *testing.T, rec *inventory.Record) *inventory.Record {
	t.Helper()
	got, err := f.records.FindByID(context.Background(), rec.ID)
	require.NoError(t, err)
	return got
}

func (f *syncFixture) request(m integration.Marketplace) integration.SyncRequest {
	return integration.SyncRequest{StoreID: f.storeID, Marketplace: m}
}

// forRecord matches the record argument of an adapter call by id
func forRecord(rec *inventory.Record) any {
	return mock.MatchedBy(func(r *inventory.Record) bool { return r.ID == rec.ID })
}

// forCard matches the card argument of an adapter call by id
func forCard(card *catalog.Card) any {
	return mock.MatchedBy(func(c *catalog.Card) bool { return c.ID == card.ID })
}
