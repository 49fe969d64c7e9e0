package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CredentialService manages the lifecycle of marketplace integrations of a store
type CredentialService struct {
	credentials integration.CredentialRepository
	remover     integration.IntegrationRemover
	adapters    integration.AdapterResolver
	tokens      integration.TokenCache
	testTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(
	credentials integration.CredentialRepository,
	remover integration.IntegrationRemover,
	adapters integration.AdapterResolver,
	tokens integration.TokenCache,
	testTimeout time.Duration,
	logger *zap.Logger,
) *CredentialService {
	if testTimeout <= 0 {
		testTimeout = DefaultEngineConfig().CallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialService{
		credentials: credentials,
		remover:     remover,
		adapters:    adapters,
		tokens:      tokens,
		testTimeout: testTimeout,
		logger:      logger.Named("credential_service"),
		now:         time.Now,
	}
}

// Get returns the credential of a store + marketplace
func (s *CredentialService) Get(ctx context.Context, storeID uuid.UUID, m integration.Marketplace) (*integration.IntegrationCredential, error) {
	return s.credentials.FindByKey(ctx, storeID, m)
}

// Create connects a store to a marketplace
func (s *CredentialService) Create(ctx context.Context, input CreateCredentialInput) (*integration.IntegrationCredential, error) {
	_, err := s.credentials.FindByKey(ctx, input.StoreID, input.Marketplace)
	switch {
	case err == nil:
		return nil, integration.ErrCredentialExists
	case !errors.Is(err, integration.ErrCredentialNotFound):
		return nil, err
	}

	cred, err := integration.NewIntegrationCredential(input.StoreID, input.Marketplace, input.Secrets, input.Settings)
	if err != nil {
		return nil, err
	}
	if err := s.credentials.Save(ctx, cred); err != nil {
		return nil, err
	}
	s.logger.Info("integration created",
		zap.String("store_id", cred.StoreID.String()),
		zap.String("marketplace", cred.Marketplace.String()),
	)
	return cred, nil
}

// Update replaces secrets and/or settings and drops any token minted from the old secrets
func (s *CredentialService) Update(ctx context.Context, input UpdateCredentialInput) (*integration.IntegrationCredential, error) {
	cred, err := s.credentials.FindByKey(ctx, input.StoreID, input.Marketplace)
	if err != nil {
		return nil, err
	}
	if input.Secrets != nil {
		if err := cred.UpdateSecrets(input.Secrets); err != nil {
			return nil, err
		}
	}
	if input.Settings != nil {
		cred.UpdateSettings(input.Settings)
	}
	if err := s.credentials.Save(ctx, cred); err != nil {
		return nil, err
	}
	s.invalidateToken(ctx, cred.Key())
	return cred, nil
}

// SetEnabled enables or disables an integration
func (s *CredentialService) SetEnabled(ctx context.Context, storeID uuid.UUID, m integration.Marketplace, enabled bool) (*integration.IntegrationCredential, error) {
	cred, err := s.credentials.FindByKey(ctx, storeID, m)
	if err != nil {
		return nil, err
	}
	if enabled {
		cred.Enable()
	} else {
		cred.Disable()
	}
	if err := s.credentials.Save(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// Test performs an authenticated call with the stored credential and records the outcome.
// A failed test is a result, not an error; errors are returned only when the test cannot run.
func (s *CredentialService) Test(ctx context.Context, storeID uuid.UUID, m integration.Marketplace) (*ConnectionTestResult, error) {
	cred, err := s.credentials.FindByKey(ctx, storeID, m)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.Adapter(m)
	if err != nil {
		return nil, err
	}

	ok, cause := s.probe(ctx, adapter, cred)
	at := s.now()
	result := &ConnectionTestResult{StoreID: storeID, Marketplace: m, OK: ok, TestedAt: at}
	if cause != nil {
		result.OK = false
		result.Error = cause.Error()
		result.ErrorKind = integration.KindOf(cause)
	}

	cred.RecordTest(result.OK, cause, at)
	if err := s.credentials.Save(context.WithoutCancel(ctx), cred); err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("store_id", storeID.String()), zap.String("marketplace", m.String()))
	if result.OK {
		logger.Info("connection test passed")
	} else {
		logger.Warn("connection test failed", zap.String("error_kind", result.ErrorKind.String()), zap.Error(cause))
	}
	return result, nil
}

func (s *CredentialService) probe(ctx context.Context, adapter integration.MarketplaceAdapter, cred *integration.IntegrationCredential) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = integration.NewRemoteError(integration.KindUnknown, "adapter_panic", fmt.Sprintf("adapter panicked: %v", r))
		}
	}()

	conn, err := cred.Connection()
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.testTimeout)
	defer cancel()
	return adapter.TestConnection(ctx, conn)
}

// Delete removes an integration and every remote id cached for it, so reconnecting later
// starts from a clean slate
func (s *CredentialService) Delete(ctx context.Context, storeID uuid.UUID, m integration.Marketplace) (*CredentialDeleteResult, error) {
	removed, err := s.remover.RemoveIntegration(ctx, storeID, m)
	if err != nil {
		return nil, err
	}

	s.invalidateToken(ctx, integration.CredentialKey{StoreID: storeID, Marketplace: m})
	s.logger.Info("integration deleted",
		zap.String("store_id", storeID.String()),
		zap.String("marketplace", m.String()),
		zap.Int64("cleared_products", removed.Products),
		zap.Int64("cleared_variants", removed.Variants),
	)
	return &CredentialDeleteResult{ClearedProducts: removed.Products, ClearedVariants: removed.Variants}, nil
}

// ListEnabled returns every enabled integration
func (s *CredentialService) ListEnabled(ctx context.Context) ([]integration.IntegrationCredential, error) {
	return s.credentials.FindEnabled(ctx)
}

func (s *CredentialService) invalidateToken(ctx context.Context, key integration.CredentialKey) {
	if s.tokens == nil {
		return
	}
	if err := s.tokens.Invalidate(ctx, key); err != nil {
		s.logger.Warn("failed to invalidate cached token", zap.String("key", key.String()), zap.Error(err))
	}
}
