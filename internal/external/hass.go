package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"homeweather/internal/types"
)

const (
	hassUserAgent = "HomeWeather/1.0"

	// maxErrorBody bounds how much of an error response is kept for messages.
	maxErrorBody = 4 << 10
)

// HomeAssistantConfig holds the settings for HomeAssistantClient.
type HomeAssistantConfig struct {
	BaseURL string
	Token   types.SecretString
	Logger  *slog.Logger
}

// HomeAssistantClient calls the host's REST API: entity states and service
// (action) invocation.
type HomeAssistantClient struct {
	base    *BaseClient
	baseURL string
	token   types.SecretString
	logger  *slog.Logger
}

// NewHomeAssistantClient creates a client with the default retry policy.
func NewHomeAssistantClient(httpClient *http.Client, cfg HomeAssistantConfig) *HomeAssistantClient {
	return NewHomeAssistantClientWithBase(
		NewBaseClient(httpClient, "home-assistant", DefaultRetryPolicy(), hassUserAgent),
		cfg,
	)
}

// NewHomeAssistantClientWithBase creates a client over a pre-configured
// BaseClient.
func NewHomeAssistantClientWithBase(base *BaseClient, cfg HomeAssistantConfig) *HomeAssistantClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HomeAssistantClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		logger:  logger,
	}
}

// serviceCallResponse is the body of a service call made with
// ?return_response.
type serviceCallResponse struct {
	ChangedStates   []json.RawMessage `json:"changed_states"`
	ServiceResponse map[string]any    `json:"service_response"`
}

// GetState returns the current state of an entity. A missing entity is an
// ErrCodeNotFoundEntity error.
func (c *HomeAssistantClient) GetState(ctx context.Context, entityID string) (*types.EntityState, error) {
	if entityID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "entity id is required", nil)
	}

	resp, err := c.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeNotFoundEntity,
			"entity not found", nil, map[string]any{"entity_id": entityID})
	}
	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "GetState")
	}

	var state types.EntityState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, types.NewAppError(types.ErrCodeParseHostResponse, "failed to decode entity state", err)
	}
	return &state, nil
}

// InvokeAction calls a host service. Target keys are merged into the service
// data the way the REST API expects. When req.ReturnResponse is set the
// service_response object is returned.
func (c *HomeAssistantClient) InvokeAction(ctx context.Context, req types.ActionRequest) (map[string]any, error) {
	if req.Domain == "" || req.Action == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "action domain and name are required", nil)
	}

	payload := make(map[string]any, len(req.Data)+len(req.Target))
	for k, v := range req.Target {
		payload[k] = v
	}
	for k, v := range req.Data {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to serialize action data", err)
	}

	path := fmt.Sprintf("/api/services/%s/%s", url.PathEscape(req.Domain), url.PathEscape(req.Action))
	if req.ReturnResponse {
		path += "?return_response"
	}

	c.logger.DebugContext(ctx, "invoking host action", "action", req.Name())

	// Actions have side effects and are never retried.
	resp, err := c.do(ctx, http.MethodPost, path, body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, req.Name())
	}
	if !req.ReturnResponse {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	var out serviceCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewAppError(types.ErrCodeParseHostResponse, "failed to decode action response", err)
	}
	return out.ServiceResponse, nil
}

// Name implements the health probe contract.
func (c *HomeAssistantClient) Name() string { return "home_assistant" }

// Check pings the API root.
func (c *HomeAssistantClient) Check(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/", nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp, "Check")
	}
	return nil
}

// do sends one API request. Only idempotent reads set retry.
func (c *HomeAssistantClient) do(ctx context.Context, method, path string, body []byte, retry bool) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create host request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token.Unmask())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	send := c.base.DoOnce
	if retry {
		send = c.base.Do
	}
	start := time.Now()
	resp, err := send(req)
	if err != nil {
		c.logger.WarnContext(ctx, "host request failed",
			"method", method, "path", path, "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
		return nil, err
	}
	return resp, nil
}

// handleErrorResponse maps a 4xx that BaseClient passed through.
func (c *HomeAssistantClient) handleErrorResponse(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
		msg = envelope.Message
	}
	details := map[string]any{"status": resp.StatusCode, "operation": op}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamAuth, "host rejected the access token", nil, details)
	default:
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamActionFailed,
			fmt.Sprintf("%s failed: %s", op, msg), nil, details)
	}
}
