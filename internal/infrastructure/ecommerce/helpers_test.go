package ecommerce

import (
	"context"
	"sync"
	"testing"

	"github.com/cardvault/backend/internal/domain/catalog"
	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/domain/inventory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memoryRefs records the remote ids adapters persist
type memoryRefs struct {
	mu          sync.Mutex
	products    map[uuid.UUID]string
	invalidated []uuid.UUID
}

func newMemoryRefs() *memoryRefs {
	return &memoryRefs{products: make(map[uuid.UUID]string)}
}

func (r *memoryRefs) SaveProductID(_ context.Context, _ uuid.UUID, _ integration.Marketplace, cardID uuid.UUID, remoteID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[cardID] = remoteID
	return nil
}

func (r *memoryRefs) InvalidateProduct(_ context.Context, _ uuid.UUID, _ integration.Marketplace, cardID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, cardID)
	r.invalidated = append(r.invalidated, cardID)
	return nil
}

func (r *memoryRefs) productID(cardID uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[cardID]
}

// memoryTokens is a TokenCache over a plain map
type memoryTokens struct {
	mu     sync.Mutex
	tokens map[integration.CredentialKey]integration.Token
}

func newMemoryTokens() *memoryTokens {
	return &memoryTokens{tokens: make(map[integration.CredentialKey]integration.Token)}
}

func (c *memoryTokens) Get(_ context.Context, key integration.CredentialKey) (integration.Token, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[key]
	return t, ok, nil
}

func (c *memoryTokens) Set(_ context.Context, key integration.CredentialKey, token integration.Token) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = token
	return nil
}

func (c *memoryTokens) Invalidate(_ context.Context, key integration.CredentialKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, key)
	return nil
}

func testAdapterConfig() AdapterConfig {
	cfg := DefaultAdapterConfig()
	cfg.RequestsPerSecond = 0
	return cfg
}

func testDeps(refs *memoryRefs, tokens *memoryTokens) Dependencies {
	deps := Dependencies{Refs: refs, Logger: zap.NewNop()}
	if tokens != nil {
		deps.Tokens = tokens
	}
	return deps
}

func newTestCard(t *testing.T, name string) *catalog.Card {
	t.Helper()
	card, err := catalog.NewCard(name, catalog.Tags{Game: "Lorcana", Set: "The First Chapter", Rarity: "Rare"})
	require.NoError(t, err)
	return card
}

func newTestRecord(t *testing.T, storeID uuid.UUID, card *catalog.Card, locationID uuid.UUID, foil bool) *inventory.Record {
	t.Helper()
	rec, err := inventory.NewRecord(storeID, locationID, card.ID, foil, nil, "")
	require.NoError(t, err)
	return rec
}
