package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion under
// long-lived polling
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Envelope is the wire format of the hosting backend's status endpoint:
// a success flag plus an optional status payload.
type Envelope struct {
	// Success reports whether the backend considered the request
	// successful. A false value is treated as a fetch failure even when
	// the HTTP layer succeeded.
	Success bool `json:"success"`

	// Status is the block status payload. May be nil when Success is
	// false.
	Status *BlockStatus `json:"status"`
}

// BlockStatus is the status payload carried inside [Envelope].
//
// This is the fetch-internal representation, decoupled from the public
// blockwatch.Snapshot type to avoid a circular dependency.
type BlockStatus struct {
	BlockID   string    `json:"block_id"`
	Height    int64     `json:"height"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
	Category  string    `json:"category"`
}

// Client is an HTTP client wrapper for polling the status endpoint.
//
// Client uses per-request timeouts via context rather than a global
// timeout. Response bodies are limited to 1MB.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new polling [Client] with pooled connections.
//
// Timeouts are applied per-request via the context parameter in
// [Client.Fetch], not as a global client timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - per-request timeouts via context
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
				DisableKeepAlives:   false,
			},
		},
	}
}

// Fetch performs one GET against the status endpoint and decodes the
// envelope.
//
// Any failure along the way (request creation, transport, non-2xx status,
// body read, JSON decode, success=false, missing payload) is returned as
// an error; the caller decides whether to fall back to synthesized data.
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) (*BlockStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	// read body with size limit
	limitedReader := io.LimitReader(resp.Body, maxResponseBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode status envelope: %w", err)
	}

	if !env.Success {
		return nil, fmt.Errorf("backend reported failure")
	}
	if env.Status == nil {
		return nil, fmt.Errorf("backend returned no status payload")
	}

	return env.Status, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable
// but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
