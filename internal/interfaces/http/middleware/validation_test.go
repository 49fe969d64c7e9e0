package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cardvault/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationRouter() *gin.Engine {
	SetupValidator()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/stores/:store_id/integrations", func(c *gin.Context) {
		var uri struct {
			StoreID string `uri:"store_id" binding:"required,uuid"`
		}
		if err := c.ShouldBindUri(&uri); err != nil {
			HandleValidationError(c, err)
			return
		}
		var req dto.CreateIntegrationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(nil))
	})
	router.POST("/sync", func(c *gin.Context) {
		var req dto.SyncRequestBody
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(nil))
	})
	return router
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestHandleValidationError_MissingSecrets(t *testing.T) {
	router := validationRouter()
	storePath := "/stores/6f1c2d9e-8a0b-4c55-9d1e-0a7b3c2f4e11/integrations"

	w := postJSON(router, storePath, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-123", resp.Error.RequestID)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "secrets", resp.Error.Details[0].Field)
	assert.Equal(t, "This field is required", resp.Error.Details[0].Message)
}

func TestHandleValidationError_EmptySecretValue(t *testing.T) {
	router := validationRouter()
	storePath := "/stores/6f1c2d9e-8a0b-4c55-9d1e-0a7b3c2f4e11/integrations"

	w := postJSON(router, storePath, `{"secrets":{"access_token":""}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(router, storePath, `{"secrets":{"access_token":"shpat_x"}}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleValidationError_BadStoreID(t *testing.T) {
	router := validationRouter()

	w := postJSON(router, "/stores/not-a-uuid/integrations", `{"secrets":{"a":"b"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode(t, w)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "store_id", resp.Error.Details[0].Field)
	assert.Equal(t, "Invalid UUID format", resp.Error.Details[0].Message)
}

func TestHandleValidationError_RecordIDs(t *testing.T) {
	router := validationRouter()

	w := postJSON(router, "/sync", `{"record_ids":["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid UUID format")

	w = postJSON(router, "/sync", `{}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFormatValidationErrors_NonValidatorError(t *testing.T) {
	resp := FormatValidationErrors(assert.AnError, "req-1")

	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Empty(t, resp.Error.Details)
}

func TestGetValidationMessage(t *testing.T) {
	type sample struct {
		Required string            `validate:"required"`
		MinStr   string            `validate:"min=5"`
		MaxStr   string            `validate:"max=3"`
		MinMap   map[string]string `validate:"min=1"`
		UUID     string            `validate:"uuid"`
		OneOf    string            `validate:"oneof=a b"`
		URL      string            `validate:"url"`
	}

	err := validator.New().Struct(sample{
		MinStr: "ab",
		MaxStr: "abcdef",
		MinMap: map[string]string{},
		UUID:   "x",
		OneOf:  "c",
		URL:    "nope",
	})
	require.Error(t, err)

	got := make(map[string]string)
	for _, e := range err.(validator.ValidationErrors) {
		got[e.Field()] = getValidationMessage(e)
	}

	assert.Equal(t, map[string]string{
		"Required": "This field is required",
		"MinStr":   "Must be at least 5 characters",
		"MaxStr":   "Must be at most 3 characters",
		"MinMap":   "Must contain at least 1 entries",
		"UUID":     "Invalid UUID format",
		"OneOf":    "Must be one of: a b",
		"URL":      "Invalid URL format",
	}, got)
}
