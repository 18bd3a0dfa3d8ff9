// Package httpapi is the JSON-over-HTTPS client for the platform's HTTP
// surface: /health, /auth/validate, /chat/history. All calls carry bearer
// auth when a token is set.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/goldenpath-ai/staging-e2e/pkg/version"
)

// Client issues authenticated JSON calls against one deployment.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client. An empty token means unauthenticated calls.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// GetJSON performs a GET and decodes the JSON object response.
// The status code is returned alongside so negative tests can assert on it.
func (c *Client) GetJSON(ctx context.Context, path string) (map[string]any, int, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// PostJSON performs a POST with a JSON body and decodes the response.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (map[string]any, int, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (map[string]any, int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("User-Agent", version.Full())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Some infrastructure responses (load balancer errors, empty bodies)
	// are not JSON; callers assert on the status code in those cases.
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		result = nil
	}
	return result, resp.StatusCode, nil
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (map[string]any, int, error) {
	return c.GetJSON(ctx, "/health")
}

// ValidateToken calls GET /auth/validate with the client's bearer token.
func (c *Client) ValidateToken(ctx context.Context) (map[string]any, int, error) {
	return c.GetJSON(ctx, "/auth/validate")
}

// ChatHistory calls GET /chat/history for one thread.
func (c *Client) ChatHistory(ctx context.Context, threadID string) (map[string]any, int, error) {
	return c.GetJSON(ctx, "/chat/history?thread_id="+url.QueryEscape(threadID))
}

// WaitReady polls /health with exponential backoff until the deployment
// reports healthy or maxElapsed passes.
func (c *Client) WaitReady(ctx context.Context, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxElapsed

	return backoff.Retry(func() error {
		body, status, err := c.Health(ctx)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("health returned status %d", status)
		}
		if s, _ := body["status"].(string); s != "healthy" {
			return fmt.Errorf("health status %q", s)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}
