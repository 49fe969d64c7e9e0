package integration

import (
	"context"
	"time"
)

// DefaultTokenExpiryMargin is subtracted from a token's real expiry before it is cached
const DefaultTokenExpiryMargin = 5 * time.Minute

// Token is a short-lived access token minted for one integration
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether the token can still be used at the given time
func (t Token) ValidAt(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	return t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt)
}

// TokenCache holds minted tokens per (store, marketplace).
// Implementations store entries only until ExpiresAt minus their expiry margin.
type TokenCache interface {
	// Get returns the cached token; found is false on a miss or an expired entry
	Get(ctx context.Context, key CredentialKey) (token Token, found bool, err error)

	// Set caches a token until its expiry minus the margin
	Set(ctx context.Context, key CredentialKey, token Token) error

	// Invalidate drops the cached token of an integration
	Invalidate(ctx context.Context, key CredentialKey) error
}
