package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SecretSealer encrypts credential secrets at rest
type SecretSealer interface {
	Seal(plaintext, additional []byte) (string, error)
	Open(sealed string, additional []byte) ([]byte, error)
}

// GormCredentialRepository implements CredentialRepository using GORM.
// Secrets are sealed bound to their (store, marketplace) so a sealed blob cannot be moved between rows.
type GormCredentialRepository struct {
	db     *gorm.DB
	sealer SecretSealer
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB, sealer SecretSealer) *GormCredentialRepository {
	return &GormCredentialRepository{db: db, sealer: sealer}
}

// FindByKey finds the credential of a store + marketplace
func (r *GormCredentialRepository) FindByKey(ctx context.Context, storeID uuid.UUID, m integration.Marketplace) (*integration.IntegrationCredential, error) {
	var model models.IntegrationCredentialModel
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND marketplace = ?", storeID, m.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCredentialNotFound
		}
		return nil, err
	}
	return r.toDomain(&model)
}

// FindEnabled finds every enabled credential
func (r *GormCredentialRepository) FindEnabled(ctx context.Context) ([]integration.IntegrationCredential, error) {
	var credModels []models.IntegrationCredentialModel
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("store_id ASC").
		Order("marketplace ASC").
		Find(&credModels).Error; err != nil {
		return nil, err
	}

	creds := make([]integration.IntegrationCredential, 0, len(credModels))
	for i := range credModels {
		cred, err := r.toDomain(&credModels[i])
		if err != nil {
			return nil, err
		}
		creds = append(creds, *cred)
	}
	return creds, nil
}

// Save creates or updates a credential
func (r *GormCredentialRepository) Save(ctx context.Context, cred *integration.IntegrationCredential) error {
	var model models.IntegrationCredentialModel
	model.FromDomain(cred)

	plaintext, err := json.Marshal(cred.Secrets)
	if err != nil {
		return fmt.Errorf("failed to encode secrets: %w", err)
	}
	model.SecretsSealed, err = r.sealer.Seal(plaintext, sealBinding(cred.StoreID, cred.Marketplace))
	if err != nil {
		return fmt.Errorf("failed to seal secrets: %w", err)
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "store_id"}, {Name: "marketplace"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled", "secrets_sealed", "settings", "last_sync_at",
			"last_tested_at", "last_test_ok", "last_test_error", "updated_at",
		}),
	}).Create(&model).Error
}

// UpdateLastSync sets last_sync_at without touching secrets or settings
func (r *GormCredentialRepository) UpdateLastSync(ctx context.Context, storeID uuid.UUID, m integration.Marketplace, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.IntegrationCredentialModel{}).
		Where("store_id = ? AND marketplace = ?", storeID, m.String()).
		Updates(map[string]any{"last_sync_at": at, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrCredentialNotFound
	}
	return nil
}

// Delete removes a credential
func (r *GormCredentialRepository) Delete(ctx context.Context, storeID uuid.UUID, m integration.Marketplace) error {
	result := r.db.WithContext(ctx).
		Where("store_id = ? AND marketplace = ?", storeID, m.String()).
		Delete(&models.IntegrationCredentialModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrCredentialNotFound
	}
	return nil
}

func (r *GormCredentialRepository) toDomain(model *models.IntegrationCredentialModel) (*integration.IntegrationCredential, error) {
	cred := model.ToDomain()
	plaintext, err := r.sealer.Open(model.SecretsSealed, sealBinding(model.StoreID, cred.Marketplace))
	if err != nil {
		return nil, fmt.Errorf("failed to open secrets of %s: %w", cred.Key(), err)
	}
	if err := json.Unmarshal(plaintext, &cred.Secrets); err != nil {
		return nil, fmt.Errorf("failed to decode secrets of %s: %w", cred.Key(), err)
	}
	return cred, nil
}

func sealBinding(storeID uuid.UUID, m integration.Marketplace) []byte {
	return []byte(integration.CredentialKey{StoreID: storeID, Marketplace: m}.String())
}

// Ensure GormCredentialRepository implements CredentialRepository
var _ integration.CredentialRepository = (*GormCredentialRepository)(nil)
