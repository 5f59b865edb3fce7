package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/resilient"
	"github.com/dmitrymomot/stash/pkg/retrieve"
)

// KeyPrefix namespaces cached API responses.
const KeyPrefix = "fetch:"

// Key returns the cache key for path, e.g. "fetch:/api/articles".
func Key(path string) string {
	return KeyPrefix + path
}

// Client reads JSON resources from an upstream API through a Retriever.
type Client struct {
	base      *url.URL
	http      *http.Client
	retriever *retrieve.Retriever
	header    http.Header
	strategy  retrieve.Strategy
	maxBody   int64
	ttl       time.Duration
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, r *retrieve.Retriever, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		base:      base,
		http:      &http.Client{},
		retriever: r,
		header:    make(http.Header),
		strategy:  retrieve.StrategyStaleWhileRevalidate,
		maxBody:   DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetJSON decodes the resource at path into T using the client's strategy.
func GetJSON[T any](ctx context.Context, c *Client, path string, opts ...cache.EntryOption) (T, error) {
	var zero T

	raw, err := c.Raw(ctx, path, c.strategy, opts...)
	if err != nil {
		return zero, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return v, nil
}

// Raw returns the JSON body at path, cached under Key(path) with strategy s.
// path may carry a query string; it is part of the key.
func (c *Client) Raw(ctx context.Context, path string, s retrieve.Strategy, opts ...cache.EntryOption) (json.RawMessage, error) {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if c.ttl != 0 {
		opts = append([]cache.EntryOption{cache.WithTTL(c.ttl)}, opts...)
	}
	return retrieve.Run(ctx, c.retriever, s, Key(path), c.fetcher(path), opts...)
}

// Strategy returns the strategy GetJSON uses.
func (c *Client) Strategy() retrieve.Strategy {
	return c.strategy
}

func (c *Client) fetcher(path string) retrieve.Fetch[json.RawMessage] {
	return func(ctx context.Context) (json.RawMessage, error) {
		return c.Fetch(ctx, path)
	}
}

// Fetch performs a single uncached GET of path. Transient statuses come
// back as retryable *resilient.StatusError values.
func (c *Client) Fetch(ctx context.Context, path string) (json.RawMessage, error) {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	target := c.base.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, resilient.Retryable(err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, ErrBodyTooLarge
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &resilient.StatusError{Code: resp.StatusCode, Body: body}
	}
	if !json.Valid(body) {
		return nil, ErrInvalidResponse
	}
	return json.RawMessage(body), nil
}
