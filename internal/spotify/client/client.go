package client

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

	rerrors "github.com/tessro/reprise/internal/errors"
)

const (
	// BaseURL is the Spotify Web API base URL.
	BaseURL = "https://api.spotify.com/v1"

	// Retry configuration for transient errors
	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// TokenSource supplies a currently valid access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is a Spotify Web API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *slog.Logger
	retryWait  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetryWait sets the base backoff between retries of transient failures.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) { c.retryWait = d }
}

// New creates a new Spotify client.
func New(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    BaseURL,
		tokens:     tokens,
		logger:     slog.Default(),
		retryWait:  baseRetryWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request to the Spotify API.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	_, err := c.request(ctx, http.MethodGet, path, nil, result)
	return err
}

// Post performs a POST request to the Spotify API.
func (c *Client) Post(ctx context.Context, path string, body interface{}, result interface{}) error {
	_, err := c.request(ctx, http.MethodPost, path, body, result)
	return err
}

// Put performs a PUT request to the Spotify API.
func (c *Client) Put(ctx context.Context, path string, body interface{}, result interface{}) error {
	_, err := c.request(ctx, http.MethodPut, path, body, result)
	return err
}

// request sends one API call, retrying network failures and 5xx responses
// with exponential backoff. It returns the final HTTP status.
func (c *Client) request(ctx context.Context, method, path string, body interface{}, result interface{}) (int, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return 0, err
	}

	var jsonBody []byte
	if body != nil {
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	fullURL := c.baseURL + path
	c.logger.Debug("spotify request", "method", method, "url", fullURL, "body", string(jsonBody))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryWait * time.Duration(1<<(attempt-1))
			c.logger.Debug("spotify retry", "attempt", attempt, "max", maxRetries, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(wait):
			}
		}

		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return 0, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			c.logger.Debug("spotify network error", "error", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		c.logger.Debug("spotify response", "status", resp.StatusCode, "method", method, "path", path)

		if resp.StatusCode == http.StatusNoContent {
			return resp.StatusCode, nil
		}

		if resp.StatusCode >= 500 {
			lastErr = newAPIError(resp.StatusCode, respBody)
			c.logger.Debug("spotify server error, will retry", "error", lastErr)
			continue
		}

		if resp.StatusCode >= 400 {
			apiErr := newAPIError(resp.StatusCode, respBody)
			c.logger.Debug("spotify client error", "status", resp.StatusCode, "message", apiErr.ErrorInfo.Message)
			return resp.StatusCode, apiErr
		}

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return resp.StatusCode, fmt.Errorf("failed to parse response: %w", err)
			}
		}

		return resp.StatusCode, nil
	}

	return 0, fmt.Errorf("%w: request failed after %d retries: %w", rerrors.ErrRemoteService, maxRetries, lastErr)
}

// APIError represents a Spotify API error response.
type APIError struct {
	ErrorInfo struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func newAPIError(status int, body []byte) *APIError {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.ErrorInfo.Message == "" {
		apiErr.ErrorInfo.Message = strings.TrimSpace(string(body))
		if apiErr.ErrorInfo.Message == "" {
			apiErr.ErrorInfo.Message = http.StatusText(status)
		}
	}
	apiErr.ErrorInfo.Status = status
	return &apiErr
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Spotify API error %d: %s", e.ErrorInfo.Status, e.ErrorInfo.Message)
}

// Unwrap maps the status class onto the shared error taxonomy, so callers
// can test with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.ErrorInfo.Status {
	case http.StatusNotFound:
		return rerrors.ErrDeviceInactive
	case http.StatusForbidden:
		return rerrors.ErrPermissionDenied
	case http.StatusUnauthorized:
		return rerrors.ErrAuthRequired
	default:
		return rerrors.ErrRemoteService
	}
}

// BuildURL builds a URL with query parameters.
func BuildURL(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}

	u, _ := url.Parse(path)
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func withDevice(path, deviceID string) string {
	if deviceID == "" {
		return path
	}
	return BuildURL(path, map[string]string{"device_id": deviceID})
}
