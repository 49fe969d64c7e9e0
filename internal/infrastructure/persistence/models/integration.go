package models

import (
	"encoding/json"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/google/uuid"
)

// IntegrationCredentialModel is the persistence model for the IntegrationCredential domain entity.
// SecretsSealed holds the sealed JSON of the secrets map; the repository seals and opens it.
type IntegrationCredentialModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	StoreID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_integration_credential_channel,priority:1"`
	Marketplace   string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_integration_credential_channel,priority:2"`
	Enabled       bool       `gorm:"not null;default:true;index"`
	SecretsSealed string     `gorm:"type:text;not null;column:secrets_sealed"`
	SettingsJSON  string     `gorm:"type:text;column:settings"`
	LastSyncAt    *time.Time `gorm:"index"`
	LastTestedAt  *time.Time `gorm:"column:last_tested_at"`
	LastTestOK    bool       `gorm:"not null;default:false"`
	LastTestError string     `gorm:"type:text"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IntegrationCredentialModel) TableName() string {
	return "integration_credentials"
}

// ToDomain converts the persistence model to a domain IntegrationCredential; secrets are set by the caller
func (m *IntegrationCredentialModel) ToDomain() *integration.IntegrationCredential {
	cred := &integration.IntegrationCredential{
		ID:            m.ID,
		StoreID:       m.StoreID,
		Marketplace:   integration.Marketplace(m.Marketplace),
		Enabled:       m.Enabled,
		Secrets:       map[string]string{},
		Settings:      integration.Settings{},
		LastSyncAt:    m.LastSyncAt,
		LastTestedAt:  m.LastTestedAt,
		LastTestOK:    m.LastTestOK,
		LastTestError: m.LastTestError,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.SettingsJSON != "" {
		var settings integration.Settings
		if err := json.Unmarshal([]byte(m.SettingsJSON), &settings); err == nil && settings != nil {
			cred.Settings = settings
		}
	}
	return cred
}

// FromDomain populates the persistence model from a domain IntegrationCredential; sealed secrets are set by the caller
func (m *IntegrationCredentialModel) FromDomain(c *integration.IntegrationCredential) {
	m.ID = c.ID
	m.StoreID = c.StoreID
	m.Marketplace = c.Marketplace.String()
	m.Enabled = c.Enabled
	m.SettingsJSON = "{}"
	if len(c.Settings) > 0 {
		if data, err := json.Marshal(c.Settings); err == nil {
			m.SettingsJSON = string(data)
		}
	}
	m.LastSyncAt = c.LastSyncAt
	m.LastTestedAt = c.LastTestedAt
	m.LastTestOK = c.LastTestOK
	m.LastTestError = c.LastTestError
	m.CreatedAt = c.CreatedAt
	m.UpdatedAt = c.UpdatedAt
}
