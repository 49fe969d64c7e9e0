package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/cardvault/backend/internal/domain/integration"
	"github.com/cardvault/backend/internal/domain/shared"
	"github.com/cardvault/backend/internal/infrastructure/logger"
	"github.com/cardvault/backend/internal/infrastructure/scheduler"
	"github.com/cardvault/backend/internal/interfaces/http/dto"
	"github.com/cardvault/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID returns the id set by logger.RequestID, falling back to the header
func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return c.GetHeader(logger.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work queued in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, code, message string) {
	h.Error(c, http.StatusConflict, code, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// BindingError answers a failed bind with field level details
func (h *BaseHandler) BindingError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// errorMapping maps a sentinel to its API code and message
type errorMapping struct {
	target  error
	code    string
	message string
}

var errorMappings = []errorMapping{
	{integration.ErrInvalidStoreID, dto.ErrCodeInvalidInput, "Invalid store ID"},
	{integration.ErrInvalidMarketplace, dto.ErrCodeMarketplaceUnsupported, "Unknown marketplace"},
	{integration.ErrInvalidCredential, dto.ErrCodeInvalidInput, "Credential secrets are incomplete for this marketplace"},
	{integration.ErrCredentialNotFound, dto.ErrCodeNotFound, "Integration not found"},
	{integration.ErrCredentialExists, dto.ErrCodeAlreadyExists, "Integration already exists"},
	{integration.ErrCredentialDisabled, dto.ErrCodeIntegrationDisabled, "Integration is disabled"},
	{integration.ErrAdapterNotRegistered, dto.ErrCodeMarketplaceUnsupported, "Marketplace is not supported by this deployment"},
	{scheduler.ErrJobNotFound, dto.ErrCodeNotFound, "Sync job not found"},
	{scheduler.ErrSyncAlreadyInProgress, dto.ErrCodeSyncInProgress, "A sync is already running for this integration"},
	{scheduler.ErrJobQueueFull, dto.ErrCodeSchedulerUnavailable, "Sync queue is full, please retry later"},
	{scheduler.ErrSchedulerNotRunning, dto.ErrCodeSchedulerUnavailable, "Background sync is not running"},
	{context.DeadlineExceeded, dto.ErrCodeTimeout, "The operation timed out"},
}

// HandleError converts application errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := getRequestID(c)

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(dto.GetHTTPStatus(m.code), dto.NewErrorResponseWithRequestID(m.code, m.message, requestID))
			return
		}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	logger.GetGinLogger(c).Error("Unhandled request error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}
