package ecommerce

import (
	"context"
	"errors"
	"net/http"

	"github.com/cardvault/backend/internal/domain/integration"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// mintFunc obtains a fresh token from the marketplace token endpoint
type mintFunc func(ctx context.Context) (*oauth2.Token, error)

// tokenProvider serves access tokens from the TokenCache and mints one on a miss.
// Concurrent misses for the same integration share a single exchange.
type tokenProvider struct {
	cache  integration.TokenCache
	group  singleflight.Group
	logger *zap.Logger
}

func newTokenProvider(cache integration.TokenCache, logger *zap.Logger) *tokenProvider {
	return &tokenProvider{cache: cache, logger: logger}
}

// Token returns a usable access token for the integration
func (p *tokenProvider) Token(ctx context.Context, key integration.CredentialKey, mint mintFunc) (string, error) {
	cached, found, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn("token cache read failed, minting a new token",
			zap.String("credential_key", key.String()),
			zap.Error(err),
		)
	} else if found {
		return cached.AccessToken, nil
	}

	v, err, _ := p.group.Do(key.String(), func() (any, error) {
		minted, err := mint(ctx)
		if err != nil {
			return "", classifyTokenError(err)
		}
		token := integration.Token{
			AccessToken: minted.AccessToken,
			TokenType:   minted.Type(),
			ExpiresAt:   minted.Expiry,
		}
		if err := p.cache.Set(ctx, key, token); err != nil {
			p.logger.Warn("token cache write failed",
				zap.String("credential_key", key.String()),
				zap.Error(err),
			)
		}
		return token.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call mints a new one
func (p *tokenProvider) Invalidate(ctx context.Context, key integration.CredentialKey) {
	if err := p.cache.Invalidate(ctx, key); err != nil {
		p.logger.Warn("token cache invalidation failed",
			zap.String("credential_key", key.String()),
			zap.Error(err),
		)
	}
}

// classifyTokenError maps a failed token exchange onto the remote error taxonomy.
// A rejected grant is a permanent auth failure until an operator fixes the credential.
func classifyTokenError(err error) *integration.RemoteAPIError {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		status := 0
		if retrieve.Response != nil {
			status = retrieve.Response.StatusCode
		}
		kind := integration.KindAuth
		switch {
		case status == http.StatusTooManyRequests:
			kind = integration.KindRateLimited
		case status >= 500:
			kind = integration.KindTransient
		}
		code := retrieve.ErrorCode
		if code == "" {
			code = "token_exchange"
		}
		e := integration.WrapRemoteError(kind, code, err)
		e.StatusCode = status
		return e
	}
	// Anything else never reached the token endpoint
	return integration.WrapRemoteError(integration.KindTransient, "token_exchange", err)
}
