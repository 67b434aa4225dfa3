// Package ml implements the HTTP client for the external ML inference
// service that performs batch embedding and captioning.
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the embed request timeout. Large batches of RAW
	// images can legitimately take minutes on a busy GPU.
	DefaultTimeout = 300 * time.Second

	// DefaultCapabilityTimeout bounds the lightweight capability request.
	DefaultCapabilityTimeout = 5 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 10
)

// Client is an ML inference service client.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	capabilityTimeout time.Duration
	logger            arbor.ILogger
	limiter           *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithTimeout sets the embed request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithCapabilityTimeout sets the capability request timeout.
func WithCapabilityTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.capabilityTimeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new ML service client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		capabilityTimeout: DefaultCapabilityTimeout,
		limiter:           rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

var _ interfaces.MLClient = (*Client)(nil)

type embedRequest struct {
	Images []models.MLImage `json:"images"`
}

type embedResponse struct {
	Results []models.MLResult `json:"results"`
}

type capabilityResponse struct {
	SafeClipBatch int  `json:"safe_clip_batch"`
	Ready         bool `json:"ready"`
}

// EmbedBatch submits one batch embed request and returns one result per
// input image, matched by unique id.
func (c *Client) EmbedBatch(ctx context.Context, images []models.MLImage) ([]models.MLResult, error) {
	if len(images) == 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	body, err := json.Marshal(embedRequest{Images: images})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.logger != nil {
		c.logger.Debug().
			Int("batch_size", len(images)).
			Msg("ML embed request")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute embed request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Int("batch_size", len(images)).
			Int("results", len(parsed.Results)).
			Dur("duration", time.Since(start)).
			Msg("ML embed response")
	}

	return parsed.Results, nil
}

// Capability queries the service's declared safe batch size and readiness.
func (c *Client) Capability(ctx context.Context) (models.CapabilitySnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.capabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/capability", nil)
	if err != nil {
		return models.CapabilitySnapshot{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.CapabilitySnapshot{}, fmt.Errorf("failed to execute capability request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.CapabilitySnapshot{}, fmt.Errorf("failed to read capability response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return models.CapabilitySnapshot{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed capabilityResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return models.CapabilitySnapshot{}, fmt.Errorf("failed to decode capability response: %w", err)
	}

	return models.CapabilitySnapshot{
		SafeBatch:   parsed.SafeClipBatch,
		Ready:       parsed.Ready,
		RefreshedAt: time.Now(),
	}, nil
}
