package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/terra-clan/progress-engine/internal/models"
)

// Client is a Go SDK for the progress-engine API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new progress-engine client authenticating with a user token
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListTools returns the catalog tool list
func (c *Client) ListTools(ctx context.Context) ([]models.ToolInfo, error) {
	var result struct {
		Tools []models.ToolInfo `json:"tools"`
		Total int               `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/tools", nil, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// GetTool returns a tool's full learning path
func (c *Client) GetTool(ctx context.Context, toolID string) (*models.OptimizationPath, error) {
	var tool models.OptimizationPath
	if err := c.call(ctx, http.MethodGet, "/api/v1/tools/"+url.PathEscape(toolID), nil, &tool); err != nil {
		return nil, err
	}
	return &tool, nil
}

// GetSummary returns the signed-in user's progress across all tools.
// refresh forces the server to re-read the store first.
func (c *Client) GetSummary(ctx context.Context, refresh bool) (*models.SummaryResponse, error) {
	path := "/api/v1/progress"
	if refresh {
		path += "?refresh=true"
	}

	var summary models.SummaryResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// GetToolProgress returns the signed-in user's progress for one tool
func (c *Client) GetToolProgress(ctx context.Context, toolID string) (*models.ToolViewResponse, error) {
	var view models.ToolViewResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/progress/"+url.PathEscape(toolID), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// MarkComplete marks a step complete
func (c *Client) MarkComplete(ctx context.Context, toolID, stepID string) error {
	return c.call(ctx, http.MethodPut, stepPath(toolID, stepID), nil, nil)
}

// MarkIncomplete clears a step's completion
func (c *Client) MarkIncomplete(ctx context.Context, toolID, stepID string) error {
	return c.call(ctx, http.MethodDelete, stepPath(toolID, stepID), nil, nil)
}

// Health checks API health
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

func stepPath(toolID, stepID string) string {
	return fmt.Sprintf("/api/v1/progress/%s/steps/%s", url.PathEscape(toolID), url.PathEscape(stepID))
}

// call performs a request and decodes the envelope's data into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result envelope
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		apiErr := &APIError{StatusCode: http.StatusOK}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		return apiErr
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var result envelope
		if json.Unmarshal(respBody, &result) == nil && result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		return nil, apiErr
	}

	return respBody, nil
}
