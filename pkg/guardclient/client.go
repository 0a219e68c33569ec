// Package guardclient is a thin Go client for the Chainguard HTTP API.
//
// It is the foundation for tooling that talks to a running gateway: the
// bundled MCP server uses it, and external integrations can too. Responses
// are returned as raw JSON so callers decide how much structure they need.
package guardclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the connection settings for a Chainguard deployment.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional API key for authenticated deployments
}

// Client is a pure HTTP client for the Chainguard API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a client for the Chainguard API.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ValidateTransaction submits a transaction for validation.
func (c *Client) ValidateTransaction(ctx context.Context, transaction map[string]any) (json.RawMessage, error) {
	body := map[string]any{"transaction": transaction}
	return c.doRequest(ctx, http.MethodPost, "/v1/validate", nil, body)
}

// GetAssetRisk looks up risk metrics for an asset address.
func (c *Client) GetAssetRisk(ctx context.Context, asset string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/risk/"+url.PathEscape(asset), nil, nil)
}

// ActivateEmergencyStop blocks all validations until deactivated.
func (c *Client) ActivateEmergencyStop(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/emergency-stop", nil, nil)
}

// DeactivateEmergencyStop resumes normal validation.
func (c *Client) DeactivateEmergencyStop(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodDelete, "/v1/emergency-stop", nil, nil)
}

// GetEmergencyStopStatus reports whether the emergency stop is active.
func (c *Client) GetEmergencyStopStatus(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/emergency-stop", nil, nil)
}

// GetWarningHistory returns accumulated validation warnings.
func (c *Client) GetWarningHistory(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/warnings", nil, nil)
}

// ClearWarningHistory wipes the warning history.
func (c *Client) ClearWarningHistory(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodDelete, "/v1/warnings", nil, nil)
}

// GetConfig returns the active guard configuration.
func (c *Client) GetConfig(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/config", nil, nil)
}
