// Package client is the Go SDK for the royalty engine REST API. It wraps
// the /api/v1 surface with typed sub-clients for records, contracts, and
// reports, with retry and backoff on transient failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const Version = "0.1.0"

// Logger is the minimal logging interface the client writes to. The zero
// value of the client discards all log output.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client talks to one royalty engine API server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	actor        string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration

	records       *RecordsClient
	recordsOnce   sync.Once
	contracts     *ContractsClient
	contractsOnce sync.Once
	reports       *ReportsClient
	reportsOnce   sync.Once
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int             `json:"status_code"`
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
	RequestID  string          `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("royalty: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, e.Message, e.RequestID)
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (e *APIError) IsValidation() bool {
	return e.StatusCode == http.StatusUnprocessableEntity
}

func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NewClient builds a client for the given base URL, attributing mutations
// to the given actor. Actor may be empty; the server falls back to a
// generic API identity.
func NewClient(baseURL string, actor string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("client: baseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: invalid baseURL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("client: baseURL scheme must be http or https")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		actor:        actor,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		userAgent:    fmt.Sprintf("royalty-go-sdk/%s", Version),
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Records returns the royalty record sub-client.
func (c *Client) Records() *RecordsClient {
	c.recordsOnce.Do(func() {
		c.records = &RecordsClient{client: c}
	})
	return c.records
}

// Contracts returns the contract sub-client.
func (c *Client) Contracts() *ContractsClient {
	c.contractsOnce.Do(func() {
		c.contracts = &ContractsClient{client: c}
	})
	return c.contracts
}

// Reports returns the reporting sub-client.
func (c *Client) Reports() *ReportsClient {
	c.reportsOnce.Do(func() {
		c.reports = &ReportsClient{client: c}
	})
	return c.reports
}

// do performs one JSON request with retries on transient failures.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: marshal request body: %w", err)
		}
	}
	return c.doRaw(ctx, method, path, "application/json", bodyBytes, result)
}

// doRaw sends a prepared payload, retrying per the client's retry policy.
// The payload is kept as bytes so the body can be replayed on retry.
func (c *Client) doRaw(ctx context.Context, method, path, contentType string, payload []byte, result interface{}) error {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	fullURL := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debugf("retry attempt %d after %v", attempt, backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
		if err != nil {
			return fmt.Errorf("client: create request: %w", err)
		}

		requestID := uuid.New().String()
		if payload != nil {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)
		if c.actor != "" {
			req.Header.Set("X-Actor", c.actor)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Errorf("request failed: %v", err)
			lastErr = err
			continue
		}
		c.logger.Debugf("%s %s %d (%v)", method, path, resp.StatusCode, time.Since(start))

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("client: read response body: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.retryMax {
			if seconds, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil {
				c.logger.Infof("rate limited, retrying after %ds", seconds)
				select {
				case <-time.After(time.Duration(seconds) * time.Second):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}

		if resp.StatusCode >= 400 {
			apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
			if len(respBody) > 0 {
				if err := json.Unmarshal(respBody, apiErr); err != nil {
					apiErr.Message = strings.TrimSpace(string(respBody))
				}
				if len(apiErr.Details) == 0 {
					apiErr.Details = respBody
				}
			}
			lastErr = apiErr
			if apiErr.IsServerError() {
				continue
			}
			return apiErr
		}

		if result != nil && len(respBody) > 0 {
			if w, ok := result.(io.Writer); ok {
				_, err = w.Write(respBody)
				return err
			}
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("client: unmarshal response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) put(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// calculateBackoff grows exponentially from retryWaitMin, capped at
// retryWaitMax, with up to 25% jitter.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
	return backoff + jitter
}
