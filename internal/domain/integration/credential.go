package integration

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Well-known settings keys
const (
	SettingDefaultLocationID = "default_location_id"
	SettingLocationMapPrefix = "location_map."
	SettingPricingStrategy   = "pricing_strategy"
	SettingSandbox           = "sandbox"
	SettingBaseURL           = "base_url"
	SettingCurrency          = "currency"
	SettingMarketplaceID     = "marketplace_id"
)

// Settings is the free-form, marketplace-defined configuration of a credential
type Settings map[string]string

// DefaultLocationID returns the remote location used when a local location has no mapping
func (s Settings) DefaultLocationID() string {
	return strings.TrimSpace(s[SettingDefaultLocationID])
}

// RemoteLocationFor maps a local location to a remote location id, falling back to the default
func (s Settings) RemoteLocationFor(localID uuid.UUID) (string, bool) {
	if id := strings.TrimSpace(s[SettingLocationMapPrefix+localID.String()]); id != "" {
		return id, true
	}
	if id := s.DefaultLocationID(); id != "" {
		return id, true
	}
	return "", false
}

// IsSandbox reports whether the credential targets the marketplace sandbox
func (s Settings) IsSandbox() bool {
	v, err := strconv.ParseBool(s[SettingSandbox])
	return err == nil && v
}

// BaseURL returns the API base URL override, "" when unset
func (s Settings) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(s[SettingBaseURL]), "/")
}

// Get returns a setting or the fallback
func (s Settings) Get(key, fallback string) string {
	if v := strings.TrimSpace(s[key]); v != "" {
		return v
	}
	return fallback
}

// CredentialKey scopes tokens and locks to one (store, marketplace) integration
type CredentialKey struct {
	StoreID     uuid.UUID
	Marketplace Marketplace
}

// String returns the key as "store:marketplace"
func (k CredentialKey) String() string {
	return fmt.Sprintf("%s:%s", k.StoreID, k.Marketplace)
}

// IntegrationCredential holds, per store and marketplace, the enable flag, secrets and settings.
// Secrets are plaintext in the domain and sealed at rest by the repository.
type IntegrationCredential struct {
	ID            uuid.UUID
	StoreID       uuid.UUID
	Marketplace   Marketplace
	Enabled       bool
	Secrets       map[string]string
	Settings      Settings
	LastSyncAt    *time.Time
	LastTestedAt  *time.Time
	LastTestOK    bool
	LastTestError string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewIntegrationCredential creates a new enabled credential. Secrets must decode for the marketplace.
func NewIntegrationCredential(storeID uuid.UUID, m Marketplace, secrets map[string]string, settings Settings) (*IntegrationCredential, error) {
	if storeID == uuid.Nil {
		return nil, ErrInvalidStoreID
	}
	if !m.IsValid() {
		return nil, ErrInvalidMarketplace
	}
	if _, err := DecodeCredential(m, secrets); err != nil {
		return nil, err
	}
	if settings == nil {
		settings = Settings{}
	}

	now := time.Now()
	return &IntegrationCredential{
		ID:          uuid.New(),
		StoreID:     storeID,
		Marketplace: m,
		Enabled:     true,
		Secrets:     maps.Clone(secrets),
		Settings:    maps.Clone(settings),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Key returns the (store, marketplace) key of the credential
func (c *IntegrationCredential) Key() CredentialKey {
	return CredentialKey{StoreID: c.StoreID, Marketplace: c.Marketplace}
}

// Enable enables the integration
func (c *IntegrationCredential) Enable() {
	c.Enabled = true
	c.UpdatedAt = time.Now()
}

// Disable disables the integration
func (c *IntegrationCredential) Disable() {
	c.Enabled = false
	c.UpdatedAt = time.Now()
}

// UpdateSecrets replaces the secrets after checking they decode
func (c *IntegrationCredential) UpdateSecrets(secrets map[string]string) error {
	if _, err := DecodeCredential(c.Marketplace, secrets); err != nil {
		return err
	}
	c.Secrets = maps.Clone(secrets)
	c.UpdatedAt = time.Now()
	return nil
}

// UpdateSettings replaces the settings
func (c *IntegrationCredential) UpdateSettings(settings Settings) {
	if settings == nil {
		settings = Settings{}
	}
	c.Settings = maps.Clone(settings)
	c.UpdatedAt = time.Now()
}

// RecordTest stores the outcome of a connection test
func (c *IntegrationCredential) RecordTest(ok bool, cause error, at time.Time) {
	c.LastTestedAt = &at
	c.LastTestOK = ok
	c.LastTestError = ""
	if cause != nil {
		c.LastTestError = cause.Error()
	}
	c.UpdatedAt = at
}

// RecordSync stores the time of the last successful pass
func (c *IntegrationCredential) RecordSync(at time.Time) {
	c.LastSyncAt = &at
	c.UpdatedAt = at
}

// Connection decodes the credential into what adapters need to talk to the marketplace
func (c *IntegrationCredential) Connection() (*Connection, error) {
	auth, err := DecodeCredential(c.Marketplace, c.Secrets)
	if err != nil {
		return nil, err
	}
	return &Connection{
		StoreID:     c.StoreID,
		Marketplace: c.Marketplace,
		Auth:        auth,
		Settings:    maps.Clone(c.Settings),
	}, nil
}

// Connection is the per-pass view of a credential handed to adapters
type Connection struct {
	StoreID     uuid.UUID
	Marketplace Marketplace
	Auth        Credential
	Settings    Settings
}

// Key returns the (store, marketplace) key of the connection
func (c *Connection) Key() CredentialKey {
	return CredentialKey{StoreID: c.StoreID, Marketplace: c.Marketplace}
}

// CredentialRepository defines the interface for credential persistence
type CredentialRepository interface {
	// FindByKey finds the credential of a store + marketplace
	FindByKey(ctx context.Context, storeID uuid.UUID, m Marketplace) (*IntegrationCredential, error)

	// FindEnabled finds every enabled credential
	FindEnabled(ctx context.Context) ([]IntegrationCredential, error)

	// Save creates or updates a credential
	Save(ctx context.Context, cred *IntegrationCredential) error

	// UpdateLastSync sets last_sync_at without touching secrets or settings
	UpdateLastSync(ctx context.Context, storeID uuid.UUID, m Marketplace, at time.Time) error

	// Delete removes a credential
	Delete(ctx context.Context, storeID uuid.UUID, m Marketplace) error
}

// RemovedRefs counts the cached remote ids dropped with an integration
type RemovedRefs struct {
	Products int64
	Variants int64
}

// IntegrationRemover deletes a credential and every remote id cached for its store + marketplace.
// Either all of it is removed or none of it.
type IntegrationRemover interface {
	RemoveIntegration(ctx context.Context, storeID uuid.UUID, m Marketplace) (RemovedRefs, error)
}
