package cache

import (
	"fmt"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// TokenCacheFactory creates token caches based on configuration
type TokenCacheFactory struct {
	redisConfig           config.RedisConfig
	margin                time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// TokenCacheFactoryOption is a functional option for configuring the factory
type TokenCacheFactoryOption func(*TokenCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) TokenCacheFactoryOption {
	return func(f *TokenCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory cache when Redis is unavailable
// Default is true (allow fallback)
func WithInMemoryFallback(allow bool) TokenCacheFactoryOption {
	return func(f *TokenCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewTokenCacheFactory creates a new factory
func NewTokenCacheFactory(cfg config.RedisConfig, margin time.Duration, opts ...TokenCacheFactoryOption) *TokenCacheFactory {
	f := &TokenCacheFactory{
		redisConfig:           cfg,
		margin:                margin,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// CreateRedisCache creates a Redis-based token cache
func (f *TokenCacheFactory) CreateRedisCache() (*RedisTokenCache, error) {
	redisCfg := RedisConfig{
		Host:     f.redisConfig.Host,
		Port:     f.redisConfig.Port,
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	}

	c, err := NewRedisTokenCache(redisCfg, f.margin)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis token cache: %w", err)
	}

	return c, nil
}

// CreateInMemoryCache creates an in-memory token cache
// WARNING: In-memory caches do not share tokens across process instances,
// so each instance mints its own
func (f *TokenCacheFactory) CreateInMemoryCache() *InMemoryTokenCache {
	return NewInMemoryTokenCache(f.margin)
}

// CreateCache creates the token cache of the configured backend.
// The redis backend falls back to memory when Redis is unreachable and fallback is allowed.
func (f *TokenCacheFactory) CreateCache(backend string) (integration.TokenCache, error) {
	if backend != config.TokenCacheRedis {
		f.logger.Info("using in-memory token cache")
		return f.CreateInMemoryCache(), nil
	}

	c, err := f.CreateRedisCache()
	if err == nil {
		f.logger.Info("using Redis token cache")
		return c, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for token cache but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory token cache. "+
		"Instances will not share minted tokens.",
		zap.Error(err),
	)
	return f.CreateInMemoryCache(), nil
}
