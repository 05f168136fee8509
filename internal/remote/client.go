// Package remote provides the HTTP client used to push and pull records
// against the remote authority.
//
// Retry policy lives here, not in the sync controller: calls are retried
// with exponential backoff on 5xx responses and transport failures, while
// 4xx responses are surfaced immediately. The controller sees each call
// as succeed-or-fail.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/localsync/tasksync/internal/model"
)

// Default client tuning.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// NetworkError reports a failed remote call.
type NetworkError struct {
	// StatusCode is the HTTP status, or 0 for transport failures.
	StatusCode int
	Message    string
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote request failed: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("remote request failed: %s", e.Message)
}

// Retryable reports whether the failure is worth retrying.
// Client errors (4xx) are not; server errors and transport failures are.
func (e *NetworkError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// Client is the remote API surface consumed by the sync controller.
type Client interface {
	// FetchChanged returns records of entityType modified since the given
	// timestamp. A zero since fetches everything.
	FetchChanged(ctx context.Context, entityType model.EntityType, since time.Time) ([]json.RawMessage, error)

	// Create pushes a new record.
	Create(ctx context.Context, entityType model.EntityType, data json.RawMessage) error

	// Update replaces a remote record in full.
	Update(ctx context.Context, entityType model.EntityType, id string, data json.RawMessage) error

	// Delete removes a remote record. Deleting a record the server never
	// saw is not an error.
	Delete(ctx context.Context, entityType model.EntityType, id string) error

	// Ping probes server reachability.
	Ping(ctx context.Context) error
}

// HTTPClient implements Client against a REST API:
// GET/POST /tasks, PUT/DELETE /tasks/{id}, same for /categories.
type HTTPClient struct {
	baseURL     string
	httpClient  *http.Client
	maxAttempts uint64
	baseDelay   time.Duration
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.httpClient.Timeout = d }
}

// WithMaxAttempts overrides the total number of attempts per call.
func WithMaxAttempts(n int) Option {
	return func(c *HTTPClient) { c.maxAttempts = uint64(n) }
}

// WithBaseDelay overrides the initial backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *HTTPClient) { c.baseDelay = d }
}

// NewHTTPClient creates a client for the given base URL,
// e.g. "http://localhost:3000/api".
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// collectionPath maps an entity type to its REST collection.
func collectionPath(entityType model.EntityType) (string, error) {
	switch entityType {
	case model.EntityTask:
		return "/tasks", nil
	case model.EntityCategory:
		return "/categories", nil
	default:
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
}

// FetchChanged implements Client.
func (c *HTTPClient) FetchChanged(ctx context.Context, entityType model.EntityType, since time.Time) ([]json.RawMessage, error) {
	path, err := collectionPath(entityType)
	if err != nil {
		return nil, err
	}
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", entityType, err)
	}
	return records, nil
}

// Create implements Client.
func (c *HTTPClient) Create(ctx context.Context, entityType model.EntityType, data json.RawMessage) error {
	path, err := collectionPath(entityType)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, path, data)
	return err
}

// Update implements Client.
func (c *HTTPClient) Update(ctx context.Context, entityType model.EntityType, id string, data json.RawMessage) error {
	path, err := collectionPath(entityType)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPut, path+"/"+url.PathEscape(id), data)
	return err
}

// Delete implements Client.
func (c *HTTPClient) Delete(ctx context.Context, entityType model.EntityType, id string) error {
	path, err := collectionPath(entityType)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, path+"/"+url.PathEscape(id), nil)
	if nerr, ok := err.(*NetworkError); ok && nerr.StatusCode == http.StatusNotFound {
		// Already gone remotely; the delete achieved its goal.
		return nil
	}
	return err
}

// Ping implements Client. Uses a single attempt: reachability probes
// should answer quickly rather than retry.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.attempt(ctx, http.MethodGet, "/health", nil, io.Discard)
}

// do performs one logical request with the retry policy applied.
func (c *HTTPClient) do(ctx context.Context, method, path string, body json.RawMessage) ([]byte, error) {
	var out bytes.Buffer

	backoff := retry.WithMaxRetries(c.maxAttempts-1, retry.NewExponential(c.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out.Reset()
		err := c.attempt(ctx, method, path, body, &out)
		if err == nil {
			return nil
		}
		if nerr, ok := err.(*NetworkError); ok && nerr.Retryable() {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// attempt performs a single HTTP round trip.
func (c *HTTPClient) attempt(ctx context.Context, method, path string, body json.RawMessage, out io.Writer) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &NetworkError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		return &NetworkError{Message: fmt.Sprintf("failed to read response: %v", err)}
	}
	return nil
}
