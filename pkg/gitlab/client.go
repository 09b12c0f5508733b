// Package gitlab talks to the GitLab GraphQL and REST APIs.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mrsync/pkg/config"
	"mrsync/pkg/errors"
	"mrsync/pkg/logger"
	"mrsync/pkg/ratelimit"
	"mrsync/pkg/retry"
)

const graphQLPath = "/api/graphql"

// Client is a GitLab GraphQL client
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	headers    map[string]string
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter paces requests
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetry sets the in-process retry policy of a single request
func WithRetry(rc *retry.Config) Option {
	return func(c *Client) { c.retry = rc }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the instance at cfg.URL
func NewClient(cfg config.GitLabConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		headers: map[string]string{
			"User-Agent":   "mrsync/" + logger.Version,
			"Accept":       "application/json",
			"Content-Type": "application/json",
		},
		limiter: ratelimit.Unlimited{},
		retry:   retry.DefaultConfig(),
		logger:  logger.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// doRequest sends req with auth and default headers. Transport failures are
// network source errors.
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("PRIVATE-TOKEN", c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.Source(errors.SourceNetwork, 0, fmt.Sprintf("network error: %v", err))
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)
	return resp, nil
}

// postJSON posts body to path and decodes a 2xx JSON response into target
func (c *Client) postJSON(ctx context.Context, path string, body, target interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(errors.KindSource, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Source(errors.SourceUnknown, 0, fmt.Sprintf("failed to create request: %v", err))
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Source(errors.SourceNetwork, resp.StatusCode, fmt.Sprintf("failed to read response body: %v", err))
	}

	if err := json.Unmarshal(data, target); err != nil {
		preview := string(data)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("Failed to parse JSON response", map[string]interface{}{
			"url":          req.URL.String(),
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return errors.Source(errors.SourceParsing, resp.StatusCode, fmt.Sprintf("failed to parse JSON: %v", err))
	}

	return nil
}

// checkResponseStatus maps non-2xx statuses to source errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	typ := errors.SourceTypeForStatus(resp.StatusCode)

	var message string
	switch typ {
	case errors.SourceAuth:
		message = "authentication failed; check the GitLab token and its read_api scope"
	case errors.SourceNotFound:
		message = "GraphQL endpoint not found; check gitlab.url"
	case errors.SourceRateLimit:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		logger.LogRateLimit(c.logger, resp.Request.URL.Path, retryAfter)
		message = "rate limit exceeded"
	case errors.SourceServer:
		message = "server error"
	default:
		message = fmt.Sprintf("unexpected status code: %d", resp.StatusCode)
	}
	if detail := strings.TrimSpace(string(body)); detail != "" && typ != errors.SourceAuth {
		message += ": " + detail
	}

	return errors.Source(typ, resp.StatusCode, message)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
