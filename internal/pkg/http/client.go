package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/piresc/tumpang/internal/pkg/credentials"
	"github.com/piresc/tumpang/internal/pkg/logger"
)

const (
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 10 * time.Second
)

// ErrUnauthorized indicates the backend rejected the stored credential.
// The shared invalid-session path has already run by the time callers see it.
var ErrUnauthorized = errors.New("unauthorized")

// SessionExpiredHandler is invoked exactly once when any request returns 401
type SessionExpiredHandler func()

// Client is an HTTP client with bearer token authentication and the shared
// invalid-session path: a 401 from any request clears the credential store
// and fires the handler once, instead of crashing or retrying.
type Client struct {
	client    *nethttp.Client
	baseURL   string
	creds     credentials.Store
	onExpired SessionExpiredHandler
	expireOne sync.Once
}

// NewClient creates a bearer-authenticated REST client
func NewClient(baseURL string, creds credentials.Store, onExpired SessionExpiredHandler) *Client {
	return &Client{
		client:    &nethttp.Client{Timeout: DefaultTimeout},
		baseURL:   baseURL,
		creds:     creds,
		onExpired: onExpired,
	}
}

// SetTimeout sets the HTTP client timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// Get performs a GET request with bearer authentication
func (c *Client) Get(ctx context.Context, endpoint string) (*nethttp.Response, error) {
	return c.doRequest(ctx, nethttp.MethodGet, endpoint, nil)
}

// Post performs a POST request with bearer authentication
func (c *Client) Post(ctx context.Context, endpoint string, body interface{}) (*nethttp.Response, error) {
	return c.doRequest(ctx, nethttp.MethodPost, endpoint, body)
}

// GetJSON performs a GET request and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, endpoint string, result interface{}) error {
	resp, err := c.Get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.CheckStatus(resp); err != nil {
		return err
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// PostJSON performs a POST request with a JSON body and decodes the JSON response
func (c *Client) PostJSON(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	resp, err := c.Post(ctx, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.CheckStatus(resp); err != nil {
		return err
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// CheckStatus maps response codes to errors, routing 401 through the
// shared invalid-session path. Gateways doing their own body handling
// call it directly.
func (c *Client) CheckStatus(resp *nethttp.Response) error {
	switch {
	case resp.StatusCode == nethttp.StatusUnauthorized:
		c.sessionExpired()
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil {
			if apiErr.Error != "" {
				return fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiErr.Error)
			}
			if apiErr.Message != "" {
				return fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiErr.Message)
			}
		}
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}
	return nil
}

func (c *Client) sessionExpired() {
	c.expireOne.Do(func() {
		logger.Warn("Session rejected by backend, clearing credential")
		if err := c.creds.Clear(); err != nil {
			logger.Error("Failed to clear credential", logger.Err(err))
		}
		if c.onExpired != nil {
			c.onExpired()
		}
	})
}

// doRequest performs the actual HTTP request with bearer authentication
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) (*nethttp.Response, error) {
	url := c.baseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if token, err := c.creds.Get(); err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		logger.Debug("HTTP request failed",
			logger.String("method", method),
			logger.String("url", url),
			logger.Err(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}

	logger.Debug("HTTP request completed",
		logger.String("method", method),
		logger.String("url", url),
		logger.Int("status_code", resp.StatusCode))

	return resp, nil
}
