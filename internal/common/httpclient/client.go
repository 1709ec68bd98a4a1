// Package httpclient is the JSON-over-HTTP transport shared by every outbound client.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"codearena/internal/platform/credential"
)

const defaultTimeout = 10 * time.Second

// ResponseInfo carries response details.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r ResponseInfo) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client sends requests relative to a base URL, attaching credentials once per call.
type Client struct {
	mu          sync.RWMutex
	baseURL     string
	timeout     time.Duration
	credentials credential.Provider
	httpClient  *http.Client
}

// New creates a client. A nil provider attaches no credentials.
func New(baseURL string, timeout time.Duration, credentials credential.Provider) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if credentials == nil {
		credentials = credential.None()
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		timeout:     timeout,
		credentials: credentials,
		httpClient:  &http.Client{},
	}
}

// WithHTTPClient swaps the underlying http.Client, e.g. for httptest servers.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.mu.Unlock()
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.mu.Lock()
	c.timeout = timeout
	c.mu.Unlock()
}

// Do sends one request. Non-2xx responses are not errors; callers inspect StatusCode.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo

	c.mu.RLock()
	baseURL, timeout := c.baseURL, c.timeout
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if err := c.credentials.Apply(ctx, req.Header); err != nil {
		return info, fmt.Errorf("attach credentials failed: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	info.Body = bodyBytes
	return info, nil
}
