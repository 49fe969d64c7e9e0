package handler

import (
	"context"

	appintegration "github.com/cardvault/backend/internal/application/integration"
	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/infrastructure/logger"
	"github.com/cardvault/backend/internal/infrastructure/scheduler"
	"github.com/cardvault/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CredentialManager manages the credential of one store on one marketplace
type CredentialManager interface {
	Get(ctx context.Context, storeID uuid.UUID, m integration.Marketplace) (*integration.IntegrationCredential, error)
	Create(ctx context.Context, input appintegration.CreateCredentialInput) (*integration.IntegrationCredential, error)
	Update(ctx context.Context, input appintegration.UpdateCredentialInput) (*integration.IntegrationCredential, error)
	SetEnabled(ctx context.Context, storeID uuid.UUID, m integration.Marketplace, enabled bool) (*integration.IntegrationCredential, error)
	Test(ctx context.Context, storeID uuid.UUID, m integration.Marketplace) (*appintegration.ConnectionTestResult, error)
	Delete(ctx context.Context, storeID uuid.UUID, m integration.Marketplace) (*appintegration.CredentialDeleteResult, error)
}

// SyncRunner runs a pass in the calling request
type SyncRunner interface {
	SyncStore(ctx context.Context, req integration.SyncRequest) (*integration.BatchReport, error)
}

// SyncQueue runs passes in the background
type SyncQueue interface {
	Submit(req integration.SyncRequest, trigger string) (*scheduler.SyncJob, error)
	Job(id uuid.UUID) (*scheduler.SyncJob, error)
	InProgress(key integration.CredentialKey) bool
	GetJobHistoryByStore(storeID uuid.UUID, limit int) []scheduler.SyncJob
}

// IntegrationHandler exposes the marketplace integrations of a store
type IntegrationHandler struct {
	BaseHandler
	credentials CredentialManager
	runner      SyncRunner
	queue       SyncQueue
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(credentials CredentialManager, runner SyncRunner, queue SyncQueue) *IntegrationHandler {
	return &IntegrationHandler{
		credentials: credentials,
		runner:      runner,
		queue:       queue,
	}
}

// bindIntegration parses the store and marketplace path parameters.
// It writes the error response itself and reports whether the handler may continue.
func (h *IntegrationHandler) bindIntegration(c *gin.Context) (uuid.UUID, integration.Marketplace, bool) {
	var uri dto.StoreIntegrationURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindingError(c, err)
		return uuid.Nil, "", false
	}
	storeID, err := uuid.Parse(uri.StoreID)
	if err != nil {
		h.HandleError(c, integration.ErrInvalidStoreID)
		return uuid.Nil, "", false
	}
	m, err := integration.ParseMarketplace(uri.Marketplace)
	if err != nil {
		h.HandleError(c, err)
		return uuid.Nil, "", false
	}
	return storeID, m, true
}

// Get returns the integration without its secret values
// GET /stores/:store_id/integrations/:marketplace
func (h *IntegrationHandler) Get(c *gin.Context) {
	storeID, m, ok := h.bindIntegration(c)
	if !ok {
		return
	}
	cred, err := h.credentials.Get(c.Request.Context(), storeID, m)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToCredentialResponse(cred))
}

// Create connects the store to the marketplace
// POST /stores/:store_id/integrations/:marketplace
func (h *IntegrationHandler) Create(c *gin.Context) {
	storeID, m, ok := h.bindIntegration(c)
	if !ok {
		return
	}
	var req dto.CreateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	cred, err := h.credentials.Create(c.Request.Context(), appintegration.CreateCredentialInput{
		StoreID:     storeID,
		Marketplace: m,
		Secrets:     req.Secrets,
		Settings:    integration.Settings(req.Settings),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logger.GetGinLogger(c).Info("Integration connected",
		zap.String("store_id", storeID.String()),
		zap.String("marketplace", m.String()),
	)
	h.Created(c, appintegration.ToCredentialResponse(cred))
}

// Update replaces secrets and/or settings
// PATCH /stores/:store_id/integrations/:marketplace
func (h *IntegrationHandler) Update(c *gin.Context) {
	storeID, m, ok := h.bindIntegration(c)
	if !ok {
		return
	}
	var req dto.UpdateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}
	if req.Secrets == nil && req.Settings == nil {
		h.BadRequest(c, "Nothing to update: provide secrets or settings")
		return
	}

	cred, err := h.credentials.Update(c.Request.Context(), appintegration.UpdateCredentialInput{
		StoreID:     storeID,
		Marketplace: m,
		Secrets:     req.Secrets,
		Settings:    integration.Settings(req.Settings),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToCredentialResponse(cred))
}

// SetEnabled turns the integration on or off
// PUT /stores/:store_id/integrations/:marketplace/enabled
func (h *IntegrationHandler) SetEnabled(c *gin.Context) {
	storeID, m, ok := h.bindIntegration(c)
	if !ok {
		return
	}
	var req dto.SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	cred, err := h.credentials.SetEnabled(c.Request.Context(), storeID, m, *req.Enabled)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, appintegration.ToCredentialResponse(cred))
}

// Test checks the stored credential against the marketplace.
// A rejected credential is a successful request with ok=false.
// POST /stores/:store_id/integrations/:marketplace/test
func (h *IntegrationHandler) Test(c *gin.Context) {
	storeID, m, ok := h.bindIntegration(c)
	if !ok {
		return
	}
	result, err := h.credentials.Test(c.Request.Context(), storeID, m)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Delete disconnects the store and forgets the remote ids recorded for the marketplace
// DELETE /stores/:store_id/integrations/:marketplace
func (h *IntegrationHandler) Delete(c *gin.Context) {
	storeID, m, ok := h.bindIntegration(c)
	if !ok {
		return
	}
	result, err := h.credentials.Delete(c.Request.Context(), storeID, m)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	logger.GetGinLogger(c).Info("Integration disconnected",
		zap.String("store_id", storeID.String()),
		zap.String("marketplace", m.String()),
		zap.Int64("cleared_products", result.ClearedProducts),
		zap.Int64("cleared_variants", result.ClearedVariants),
	)
	h.Success(c, result)
}

// Sync reconciles the store against the marketplace.
// With async=true the pass is queued and a job is returned; otherwise the batch report is.
// POST /stores/:store_id/integrations/:marketplace/sync?force=&async=
func (h *IntegrationHandler) Sync(c *gin.Context) {
	storeID, m, ok := h.bindIntegration(c)
	if !ok {
		return
	}
	var query dto.SyncQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindingError(c, err)
		return
	}
	var body dto.SyncRequestBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.BindingError(c, err)
			return
		}
	}

	req := integration.SyncRequest{StoreID: storeID, Marketplace: m, Force: query.Force}
	for _, raw := range body.RecordIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid record id: "+raw)
			return
		}
		req.RecordIDs = append(req.RecordIDs, id)
	}

	if query.Async {
		job, err := h.queue.Submit(req, scheduler.TriggerManual)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Accepted(c, job)
		return
	}

	if h.queue.InProgress(req.Key()) {
		h.HandleError(c, scheduler.ErrSyncAlreadyInProgress)
		return
	}
	report, err := h.runner.SyncStore(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ListJobs returns the most recent background passes of the store
// GET /stores/:store_id/sync-jobs?limit=
func (h *IntegrationHandler) ListJobs(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("store_id"))
	if err != nil {
		h.HandleError(c, integration.ErrInvalidStoreID)
		return
	}
	var query dto.JobHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindingError(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = 20
	}
	h.Success(c, h.queue.GetJobHistoryByStore(storeID, query.Limit))
}

// GetJob returns one background pass of the store
// GET /stores/:store_id/sync-jobs/:job_id
func (h *IntegrationHandler) GetJob(c *gin.Context) {
	var uri dto.SyncJobURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindingError(c, err)
		return
	}
	job, err := h.queue.Job(uuid.MustParse(uri.JobID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	// Jobs of other stores are reported as missing
	if job.Request.StoreID != uuid.MustParse(uri.StoreID) {
		h.HandleError(c, scheduler.ErrJobNotFound)
		return
	}
	h.Success(c, job)
}
