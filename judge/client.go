package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// maxResponseSize limits the judgment response body to prevent memory exhaustion.
const maxResponseSize = 1 * 1024 * 1024 // 1MB

// Client is a provider-agnostic judgment service client with retry support.
// It implements Interface over HTTP against a configured model endpoint.
type Client struct {
	provider    string
	endpoint    string
	model       string
	temperature *float64
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// WithTemperature sets an explicit sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(client *Client) {
		client.temperature = &t
	}
}

// NewClient creates a judgment client for the given provider and endpoint.
func NewClient(provider, endpoint, model string, opts ...ClientOption) *Client {
	c := &Client{
		provider:    provider,
		endpoint:    endpoint,
		model:       model,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // Allow time for model responses
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Judge sends a validation request, handling retry with backoff.
func (c *Client) Judge(ctx context.Context, req Request) (*Judgment, error) {
	if req.SubmissionText == "" {
		return nil, fmt.Errorf("submission text is required")
	}
	if req.Explanation == "" {
		return nil, fmt.Errorf("explanation is required")
	}

	requestID := uuid.New().String()
	prompt := buildPrompt(req)

	var lastErr error
	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		judgment, err := c.doRequest(ctx, prompt)
		if err == nil {
			c.logger.Debug("Judgment received",
				"request_id", requestID,
				"criterion", req.Criterion.ID,
				"status", judgment.Status,
				"attempt", attempt)
			return judgment, nil
		}

		lastErr = err

		if IsFatal(err) {
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("Judgment request failed, retrying",
				"request_id", requestID,
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				// Continue to retry
			}
		}
	}

	return nil, fmt.Errorf("judgment request failed after %d attempts: %w",
		c.retryConfig.MaxAttempts, lastErr)
}

// calculateBackoff computes exponential backoff duration with jitter.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	// Add jitter: +/- 25% to prevent synchronized retries
	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP request against the judgment endpoint.
func (c *Client) doRequest(ctx context.Context, prompt string) (*Judgment, error) {
	provider := GetProvider(c.provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", c.provider))
	}

	url := provider.BuildURL(c.endpoint, c.model)

	body, err := provider.BuildRequestBody(c.model, prompt, c.temperature)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	content, err := provider.ParseResponse(respBody)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("parse provider response: %w", err))
	}

	return parseJudgment(content)
}

// parseJudgment decodes the model's text output into a Judgment. A response
// that is not valid JSON or carries an unknown status is a fatal error;
// the dispatcher treats it the same as a transport failure.
func parseJudgment(content string) (*Judgment, error) {
	raw := ExtractJSON(content)
	if raw == "" {
		return nil, NewFatalError(fmt.Errorf("no JSON object in judgment response"))
	}

	var wire struct {
		Status              string `json:"status"`
		ReferencedExcerpt   string `json:"referencedExcerpt"`
		Reasoning           string `json:"reasoning"`
		SuggestedRefinement string `json:"suggestedRefinement"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, NewFatalError(fmt.Errorf("decode judgment JSON: %w", err))
	}

	status, err := ParseStatus(wire.Status)
	if err != nil {
		return nil, NewFatalError(err)
	}

	return &Judgment{
		Status:              status,
		ReferencedExcerpt:   wire.ReferencedExcerpt,
		Reasoning:           wire.Reasoning,
		SuggestedRefinement: wire.SuggestedRefinement,
	}, nil
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("judgment API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		// Rate limiting is transient
		return NewTransientError(err)
	case statusCode >= 500:
		// Server errors are transient
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		// Auth errors are fatal
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		// Bad requests are fatal
		return NewFatalError(err)
	default:
		// Unknown errors default to fatal
		return NewFatalError(err)
	}
}
