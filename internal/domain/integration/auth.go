package integration

import (
	"fmt"
	"slices"
	"strings"
)

// Credential is the marketplace-shaped authentication material decoded from a credential's secrets.
// Each adapter accepts only its own variant.
type Credential interface {
	Marketplace() Marketplace
	Validate() error
	isCredential()
}

// StorefrontCredential is a static admin API token for one shop
type StorefrontCredential struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
}

// AuctionCredential is a user-delegated OAuth grant; access tokens are minted from the refresh token
type AuctionCredential struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Scopes       []string
}

// CardMarketCredential is a dedicated app token pair plus access token pair, used to sign each request
type CardMarketCredential struct {
	AppToken          string
	AppSecret         string
	AccessToken       string
	AccessTokenSecret string
}

// RetailCredential is exchanged at the token endpoint for short-lived access tokens
type RetailCredential struct {
	ClientID     string
	ClientSecret string
	SellerID     string
	Scope        string
}

func (StorefrontCredential) Marketplace() Marketplace { return MarketplaceStorefront }
func (AuctionCredential) Marketplace() Marketplace    { return MarketplaceAuction }
func (CardMarketCredential) Marketplace() Marketplace { return MarketplaceCardMarket }
func (RetailCredential) Marketplace() Marketplace     { return MarketplaceRetail }

func (StorefrontCredential) isCredential() {}
func (AuctionCredential) isCredential()    {}
func (CardMarketCredential) isCredential() {}
func (RetailCredential) isCredential()     {}

// Validate checks the required storefront fields
func (c StorefrontCredential) Validate() error {
	return requireFields(map[string]string{
		"shop_domain":  c.ShopDomain,
		"access_token": c.AccessToken,
	})
}

// Validate checks the required auction fields
func (c AuctionCredential) Validate() error {
	return requireFields(map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"refresh_token": c.RefreshToken,
	})
}

// Validate checks the required card market fields
func (c CardMarketCredential) Validate() error {
	return requireFields(map[string]string{
		"app_token":           c.AppToken,
		"app_secret":          c.AppSecret,
		"access_token":        c.AccessToken,
		"access_token_secret": c.AccessTokenSecret,
	})
}

// Validate checks the required retail fields
func (c RetailCredential) Validate() error {
	return requireFields(map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"seller_id":     c.SellerID,
	})
}

// DecodeCredential builds the credential variant of a marketplace from its opaque secret map
func DecodeCredential(m Marketplace, secrets map[string]string) (Credential, error) {
	get := func(key string) string { return strings.TrimSpace(secrets[key]) }

	var cred Credential
	switch m {
	case MarketplaceStorefront:
		cred = StorefrontCredential{
			ShopDomain:  get("shop_domain"),
			AccessToken: get("access_token"),
			APIVersion:  get("api_version"),
		}
	case MarketplaceAuction:
		cred = AuctionCredential{
			ClientID:     get("client_id"),
			ClientSecret: get("client_secret"),
			RefreshToken: get("refresh_token"),
			Scopes:       strings.Fields(get("scopes")),
		}
	case MarketplaceCardMarket:
		cred = CardMarketCredential{
			AppToken:          get("app_token"),
			AppSecret:         get("app_secret"),
			AccessToken:       get("access_token"),
			AccessTokenSecret: get("access_token_secret"),
		}
	case MarketplaceRetail:
		cred = RetailCredential{
			ClientID:     get("client_id"),
			ClientSecret: get("client_secret"),
			SellerID:     get("seller_id"),
			Scope:        get("scope"),
		}
	default:
		return nil, ErrInvalidMarketplace
	}

	if err := cred.Validate(); err != nil {
		return nil, err
	}
	return cred, nil
}

// WrongCredentialError is the permanent auth failure an adapter returns for another marketplace's variant
func WrongCredentialError(want Marketplace, got Credential) *RemoteAPIError {
	gotName := "none"
	if got != nil {
		gotName = got.Marketplace().String()
	}
	return NewRemoteError(KindAuth, "credential_mismatch",
		fmt.Sprintf("expected %s credential, got %s", want, gotName))
}

func requireFields(fields map[string]string) error {
	missing := make([]string, 0)
	for name, value := range fields {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: missing %s", ErrInvalidCredential, strings.Join(missing, ", "))
}
