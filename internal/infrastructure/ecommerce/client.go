package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/cardvault/backend/internal/domain/integration"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize is the maximum allowed response size from a marketplace API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// apiClient is the HTTP transport shared by every adapter: one rate limiter per marketplace,
// bounded response bodies, and HTTP status classification into the remote error taxonomy.
type apiClient struct {
	marketplace integration.Marketplace
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

func newAPIClient(m integration.Marketplace, cfg AdapterConfig, logger *zap.Logger) *apiClient {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return &apiClient{
		marketplace: m,
		httpClient:  &http.Client{Timeout: cfg.Timeout()},
		limiter:     limiter,
		logger:      logger,
	}
}

type apiRequest struct {
	Method string
	URL    string
	Header http.Header
	// Body is JSON encoded when non-nil
	Body any
}

type apiResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// errorParser extracts the marketplace error code and message from a failed response body
type errorParser func(body []byte) (code, message string)

// do sends a request and returns the raw response; only transport failures are errors
func (c *apiClient) do(ctx context.Context, r apiRequest) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, integration.WrapRemoteError(integration.KindTransient, "rate_wait", err)
	}

	var body io.Reader
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, integration.WrapRemoteError(integration.KindValidation, "encode_request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, integration.WrapRemoteError(integration.KindValidation, "build_request", err)
	}
	for k, values := range r.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if r.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, integration.WrapRemoteError(integration.KindTransient, "network", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, integration.WrapRemoteError(integration.KindTransient, "read_response", err)
	}

	c.logger.Debug("marketplace call",
		zap.String("marketplace", c.marketplace.String()),
		zap.String("method", r.Method),
		zap.String("url", r.URL),
		zap.Int("status", resp.StatusCode),
	)

	return &apiResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// doJSON sends a request, classifies HTTP failures and decodes a successful body into out
func (c *apiClient) doJSON(ctx context.Context, r apiRequest, out any, parse errorParser) (*apiResponse, error) {
	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return resp, statusError(resp, parse)
	}
	if out != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, integration.WrapRemoteError(integration.KindUnknown, "invalid_response", err)
		}
	}
	return resp, nil
}

// classifyStatus maps an HTTP status onto the remote error taxonomy
func classifyStatus(status int) integration.ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return integration.KindAuth
	case status == http.StatusNotFound, status == http.StatusGone:
		return integration.KindNotFound
	case status == http.StatusTooManyRequests:
		return integration.KindRateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		return integration.KindTransient
	case status >= 400:
		return integration.KindValidation
	default:
		return integration.KindUnknown
	}
}

func statusError(resp *apiResponse, parse errorParser) *integration.RemoteAPIError {
	code, message := "", ""
	if parse != nil {
		code, message = parse(resp.Body)
	}
	if code == "" {
		code = strconv.Itoa(resp.StatusCode)
	}
	if message == "" {
		message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	e := integration.NewRemoteError(classifyStatus(resp.StatusCode), code, message)
	e.StatusCode = resp.StatusCode
	return e
}

// isAuthFailure reports whether a cached token should be dropped after err
func isAuthFailure(err error) bool {
	return errors.Is(err, integration.ErrAuth)
}
