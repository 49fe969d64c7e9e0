package integration

import (
	"slices"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Credential DTOs
// ---------------------------------------------------------------------------

// CreateCredentialInput holds the data to connect a store to a marketplace
type CreateCredentialInput struct {
	StoreID     uuid.UUID
	Marketplace integration.Marketplace
	Secrets     map[string]string
	Settings    integration.Settings
}

// UpdateCredentialInput replaces secrets and/or settings; nil fields are left untouched
type UpdateCredentialInput struct {
	StoreID     uuid.UUID
	Marketplace integration.Marketplace
	Secrets     map[string]string
	Settings    integration.Settings
}

// CredentialResponse is a credential without its secrets
type CredentialResponse struct {
	ID            uuid.UUID               `json:"id"`
	StoreID       uuid.UUID               `json:"store_id"`
	Marketplace   integration.Marketplace `json:"marketplace"`
	DisplayName   string                  `json:"display_name"`
	Enabled       bool                    `json:"enabled"`
	SecretKeys    []string                `json:"secret_keys"`
	Settings      integration.Settings    `json:"settings"`
	LastSyncAt    *time.Time              `json:"last_sync_at,omitempty"`
	LastTestedAt  *time.Time              `json:"last_tested_at,omitempty"`
	LastTestOK    bool                    `json:"last_test_ok"`
	LastTestError string                  `json:"last_test_error,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// ToCredentialResponse converts a credential, listing only the names of its secrets
func ToCredentialResponse(c *integration.IntegrationCredential) CredentialResponse {
	keys := make([]string, 0, len(c.Secrets))
	for k := range c.Secrets {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return CredentialResponse{
		ID:            c.ID,
		StoreID:       c.StoreID,
		Marketplace:   c.Marketplace,
		DisplayName:   c.Marketplace.DisplayName(),
		Enabled:       c.Enabled,
		SecretKeys:    keys,
		Settings:      c.Settings,
		LastSyncAt:    c.LastSyncAt,
		LastTestedAt:  c.LastTestedAt,
		LastTestOK:    c.LastTestOK,
		LastTestError: c.LastTestError,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// ConnectionTestResult is the outcome of a credential test
type ConnectionTestResult struct {
	StoreID     uuid.UUID               `json:"store_id"`
	Marketplace integration.Marketplace `json:"marketplace"`
	OK          bool                    `json:"ok"`
	Error       string                  `json:"error,omitempty"`
	ErrorKind   integration.ErrorKind   `json:"error_kind,omitempty"`
	TestedAt    time.Time               `json:"tested_at"`
}

// CredentialDeleteResult reports what deleting a credential cleared
type CredentialDeleteResult struct {
	ClearedProducts int64 `json:"cleared_products"`
	ClearedVariants int64 `json:"cleared_variants"`
}
