package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// HealthProbe reports whether a dependency is reachable
type HealthProbe interface {
	Ping() error
}

// SchedulerStatus reports whether background passes are accepted
type SchedulerStatus interface {
	IsRunning() bool
}

// MarketplaceCatalog lists the marketplaces with a registered adapter
type MarketplaceCatalog interface {
	Marketplaces() []integration.Marketplace
}

// SystemHandler serves liveness, readiness and build information
type SystemHandler struct {
	BaseHandler
	name         string
	version      string
	startTime    time.Time
	database     HealthProbe
	scheduler    SchedulerStatus
	marketplaces MarketplaceCatalog
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, database HealthProbe, scheduler SchedulerStatus, marketplaces MarketplaceCatalog) *SystemHandler {
	return &SystemHandler{
		name:         name,
		version:      version,
		startTime:    time.Now(),
		database:     database,
		scheduler:    scheduler,
		marketplaces: marketplaces,
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	GoVersion        string   `json:"go_version"`
	Uptime           string   `json:"uptime"`
	Marketplaces     []string `json:"marketplaces"`
	SchedulerRunning bool     `json:"scheduler_running"`
}

// GetSystemInfo returns version, uptime and the marketplaces this deployment can sync
// GET /system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	var codes []string
	for _, m := range h.marketplaces.Marketplaces() {
		codes = append(codes, m.String())
	}
	h.Success(c, SystemInfoResponse{
		Name:             h.name,
		Version:          h.version,
		GoVersion:        runtime.Version(),
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
		Marketplaces:     codes,
		SchedulerRunning: h.scheduler.IsRunning(),
	})
}

// Live answers as long as the process serves HTTP
// GET /health/live
func (h *SystemHandler) Live(c *gin.Context) {
	h.Success(c, gin.H{"status": "ok"})
}

// ReadyResponse details readiness per dependency
type ReadyResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Scheduler string `json:"scheduler"`
}

// Ready reports 503 until the database answers and the scheduler accepts passes
// GET /health/ready
func (h *SystemHandler) Ready(c *gin.Context) {
	resp := ReadyResponse{Status: "ok", Database: "ok", Scheduler: "ok"}
	if err := h.database.Ping(); err != nil {
		resp.Status, resp.Database = "unavailable", err.Error()
	}
	if !h.scheduler.IsRunning() {
		resp.Status, resp.Scheduler = "unavailable", "stopped"
	}

	if resp.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}
