// Package vectorstore implements the Qdrant HTTP client used for bulk
// point upserts and collection management.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/imago/internal/interfaces"
	"github.com/ternarybob/imago/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a bulk upsert call.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 20
)

// Client is a Qdrant REST API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
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

// NewClient creates a new vector store client for the given base URL
// (e.g. "http://localhost:6333").
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

var _ interfaces.VectorStore = (*Client)(nil)

// StatusError is returned when the store answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vector store returned status %d: %s", e.StatusCode, e.Body)
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

// do executes a request and decodes the qdrant result envelope into result
// (which may be nil when the caller only cares about success).
func (c *Client) do(ctx context.Context, method, path string, payload, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter interrupted: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Msg("Vector store request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if result != nil {
		var envelope qdrantEnvelope
		if err := json.Unmarshal(respBody, &envelope); err != nil {
			return fmt.Errorf("failed to decode response envelope: %w", err)
		}
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode response result: %w", err)
		}
	}

	return nil
}

// ListCollections returns the collections known to the store.
func (c *Client) ListCollections(ctx context.Context) ([]models.CollectionInfo, error) {
	var result struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections", nil, &result); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	infos := make([]models.CollectionInfo, 0, len(result.Collections))
	for _, col := range result.Collections {
		infos = append(infos, models.CollectionInfo{Name: col.Name})
	}
	return infos, nil
}

// CreateCollection creates a named collection with the given vector size
// and distance metric.
func (c *Client) CreateCollection(ctx context.Context, name string, vectorSize int, distance string) error {
	payload := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     vectorSize,
			"distance": distance,
		},
	}
	if err := c.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name), payload, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	if c.logger != nil {
		c.logger.Info().
			Str("collection", name).
			Int("vector_size", vectorSize).
			Str("distance", distance).
			Msg("Collection created")
	}
	return nil
}

// DeleteCollection removes a collection and all its points.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(name), nil, nil); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	return nil
}

// CollectionExists checks collection existence.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	var result struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, http.MethodGet, "/collections/"+url.PathEscape(name)+"/exists", nil, &result); err != nil {
		return false, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	return result.Exists, nil
}

// UpsertPoints performs one bulk upsert into the named collection. The call
// waits for the write to be applied so a success means durable store state.
func (c *Client) UpsertPoints(ctx context.Context, collection string, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}

	payload := map[string]interface{}{
		"points": points,
	}
	path := "/collections/" + url.PathEscape(collection) + "/points?wait=true"
	if err := c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
		return fmt.Errorf("failed to upsert %d points into %s: %w", len(points), collection, err)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("collection", collection).
			Int("points", len(points)).
			Msg("Points upserted")
	}
	return nil
}
