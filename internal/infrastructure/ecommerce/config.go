package ecommerce

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"go.uber.org/zap"
)

// Errors for adapter configuration
var (
	ErrConfigInvalidRate    = errors.New("ecommerce: requests per second cannot be negative")
	ErrConfigInvalidBurst   = errors.New("ecommerce: burst cannot be negative")
	ErrConfigMissingRefs    = errors.New("ecommerce: remote ref store is required")
	ErrConfigMissingTokens  = errors.New("ecommerce: token cache is required")
	ErrConfigInvalidBaseURL = errors.New("ecommerce: base URL must be http or https")
)

// AdapterConfig holds the per-marketplace transport settings
type AdapterConfig struct {
	// BaseURL overrides the marketplace default API endpoint
	BaseURL string
	// TimeoutSeconds is the HTTP client timeout
	TimeoutSeconds int
	// RequestsPerSecond bounds outgoing calls per adapter; 0 disables limiting
	RequestsPerSecond float64
	// Burst is the limiter bucket size
	Burst int
}

// DefaultAdapterConfig returns a configuration with defaults
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		TimeoutSeconds:    30,
		RequestsPerSecond: 2,
		Burst:             4,
	}
}

// Validate validates the configuration and fills defaults
func (c *AdapterConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return ErrConfigInvalidRate
	}
	if c.Burst < 0 {
		return ErrConfigInvalidBurst
	}
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("%w: %s", ErrConfigInvalidBaseURL, c.BaseURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.RequestsPerSecond > 0 && c.Burst == 0 {
		c.Burst = 1
	}
	return nil
}

// Timeout returns the HTTP client timeout
func (c AdapterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Dependencies are the collaborators every adapter needs
type Dependencies struct {
	// Refs persists resolved remote product ids
	Refs integration.RemoteRefStore
	// Tokens caches minted access tokens; only needed by token-exchanging adapters
	Tokens integration.TokenCache
	Logger *zap.Logger
}

func (d *Dependencies) validate(needsTokens bool) error {
	if d.Refs == nil {
		return ErrConfigMissingRefs
	}
	if needsTokens && d.Tokens == nil {
		return ErrConfigMissingTokens
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return nil
}
