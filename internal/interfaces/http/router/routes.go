package router

import (
	"net/http"

	"github.com/cardvault/backend/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// IntegrationRoutes builds the store integration API.
// syncGuards run only in front of the sync trigger, e.g. a per-store rate limit.
func IntegrationRoutes(h *handler.IntegrationHandler, syncGuards ...gin.HandlerFunc) *DomainGroup {
	stores := NewDomainGroup("stores", "/stores/:store_id")

	integrations := stores.Group("integrations", "/integrations/:marketplace")
	integrations.
		Handle(http.MethodGet, "", "Get an integration without its secret values", h.Get).
		Handle(http.MethodPost, "", "Connect the store to a marketplace", h.Create).
		Handle(http.MethodPatch, "", "Replace secrets and/or settings", h.Update).
		Handle(http.MethodDelete, "", "Disconnect and forget remote ids", h.Delete).
		Handle(http.MethodPut, "/enabled", "Enable or disable the integration", h.SetEnabled).
		Handle(http.MethodPost, "/test", "Test the stored credential", h.Test).
		Handle(http.MethodPost, "/sync", "Reconcile inventory (force, async)", append(syncGuards, h.Sync)...)

	stores.Group("sync-jobs", "/sync-jobs").
		Handle(http.MethodGet, "", "List recent background passes", h.ListJobs).
		Handle(http.MethodGet, "/:job_id", "Get a background pass", h.GetJob)

	return stores
}

// SystemRoutes builds the system information endpoints
func SystemRoutes(h *handler.SystemHandler) *DomainGroup {
	return NewDomainGroup("system", "/system").
		Handle(http.MethodGet, "/info", "Version, uptime and supported marketplaces", h.GetSystemInfo)
}

// RegisterHealth mounts the probes at the root, outside the versioned API
func RegisterHealth(engine *gin.Engine, h *handler.SystemHandler) {
	engine.GET("/health/live", h.Live)
	engine.GET("/health/ready", h.Ready)
}
