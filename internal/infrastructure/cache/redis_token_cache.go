package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/redis/go-redis/v9"
)

const defaultTokenKeyPrefix = "cardvault:token:"

// RedisTokenCache implements TokenCache using Redis
// This is suitable for distributed deployments where multiple instances
// need to share minted tokens
type RedisTokenCache struct {
	client    *redis.Client
	keyPrefix string
	margin    time.Duration
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisTokenCache creates a new Redis-based token cache
func NewRedisTokenCache(cfg RedisConfig, margin time.Duration) (*RedisTokenCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisTokenCacheWithClient(client, "", margin), nil
}

// NewRedisTokenCacheWithClient creates a cache with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisTokenCacheWithClient(client *redis.Client, keyPrefix string, margin time.Duration) *RedisTokenCache {
	if keyPrefix == "" {
		keyPrefix = defaultTokenKeyPrefix
	}
	if margin < 0 {
		margin = integration.DefaultTokenExpiryMargin
	}
	return &RedisTokenCache{
		client:    client,
		keyPrefix: keyPrefix,
		margin:    margin,
	}
}

func (c *RedisTokenCache) key(k integration.CredentialKey) string {
	return c.keyPrefix + k.String()
}

// Get returns the cached token of an integration
func (c *RedisTokenCache) Get(ctx context.Context, key integration.CredentialKey) (integration.Token, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return integration.Token{}, false, nil
	}
	if err != nil {
		return integration.Token{}, false, fmt.Errorf("failed to read token: %w", err)
	}

	var token integration.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return integration.Token{}, false, fmt.Errorf("failed to decode token: %w", err)
	}
	if !token.ValidAt(time.Now().Add(c.margin)) {
		return integration.Token{}, false, nil
	}
	return token, true, nil
}

// Set caches a token with a TTL of its expiry minus the margin
func (c *RedisTokenCache) Set(ctx context.Context, key integration.CredentialKey, token integration.Token) error {
	ttl, ok := cacheTTL(token, c.margin, time.Now())
	if !ok {
		return c.Invalidate(ctx, key)
	}
	if ttl < 0 {
		// go-cache's NoExpiration is -1; redis keeps the key forever at 0
		ttl = 0
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Invalidate drops the cached token of an integration
func (c *RedisTokenCache) Invalidate(ctx context.Context, key integration.CredentialKey) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisTokenCache) Close() error {
	return c.client.Close()
}

// GetClient returns the underlying Redis client (for testing/monitoring)
func (c *RedisTokenCache) GetClient() *redis.Client {
	return c.client
}

// Ensure RedisTokenCache implements TokenCache
var _ integration.TokenCache = (*RedisTokenCache)(nil)
