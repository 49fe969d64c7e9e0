package cache

import (
	"context"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	gocache "github.com/patrickmn/go-cache"
)

// InMemoryTokenCache implements TokenCache with a process-local expiring map.
// This is suitable for single-instance deployments and testing.
type InMemoryTokenCache struct {
	entries *gocache.Cache
	margin  time.Duration
	now     func() time.Time
}

// NewInMemoryTokenCache creates an in-memory token cache; entries expire margin before the token does
func NewInMemoryTokenCache(margin time.Duration) *InMemoryTokenCache {
	if margin < 0 {
		margin = integration.DefaultTokenExpiryMargin
	}
	return &InMemoryTokenCache{
		entries: gocache.New(5*time.Minute, 10*time.Minute),
		margin:  margin,
		now:     time.Now,
	}
}

// Get returns the cached token of an integration
func (c *InMemoryTokenCache) Get(_ context.Context, key integration.CredentialKey) (integration.Token, bool, error) {
	v, found := c.entries.Get(key.String())
	if !found {
		return integration.Token{}, false, nil
	}
	token := v.(integration.Token)
	// go-cache only evicts on its janitor tick or on read after expiry
	if !token.ValidAt(c.now().Add(c.margin)) {
		c.entries.Delete(key.String())
		return integration.Token{}, false, nil
	}
	return token, true, nil
}

// Set caches a token until its expiry minus the margin
func (c *InMemoryTokenCache) Set(_ context.Context, key integration.CredentialKey, token integration.Token) error {
	ttl, ok := cacheTTL(token, c.margin, c.now())
	if !ok {
		c.entries.Delete(key.String())
		return nil
	}
	c.entries.Set(key.String(), token, ttl)
	return nil
}

// Invalidate drops the cached token of an integration
func (c *InMemoryTokenCache) Invalidate(_ context.Context, key integration.CredentialKey) error {
	c.entries.Delete(key.String())
	return nil
}

// Size returns the number of entries in the cache (for testing/monitoring)
func (c *InMemoryTokenCache) Size() int {
	return c.entries.ItemCount()
}

// cacheTTL returns how long a token may be cached; ok is false when it is already inside the margin.
// Tokens without an expiry are cached without a TTL.
func cacheTTL(token integration.Token, margin time.Duration, now time.Time) (time.Duration, bool) {
	if token.AccessToken == "" {
		return 0, false
	}
	if token.ExpiresAt.IsZero() {
		return gocache.NoExpiration, true
	}
	ttl := token.ExpiresAt.Sub(now) - margin
	if ttl <= 0 {
		return 0, false
	}
	return ttl, true
}

// Ensure InMemoryTokenCache implements TokenCache
var _ integration.TokenCache = (*InMemoryTokenCache)(nil)
