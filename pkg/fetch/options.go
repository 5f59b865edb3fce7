package fetch

import (
	"net/http"
	"time"

	"github.com/dmitrymomot/stash/pkg/retrieve"
)

// DefaultMaxBodySize bounds a cached response body.
const DefaultMaxBodySize = 4 << 20

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for upstream requests.
// Default: a client without a timeout; each attempt is bounded by the
// retry policy instead.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithStrategy sets the strategy used by GetJSON.
// Default: retrieve.StrategyStaleWhileRevalidate.
func WithStrategy(s retrieve.Strategy) Option {
	return func(c *Client) {
		if s != "" {
			c.strategy = s
		}
	}
}

// WithHeader adds a header sent with every upstream request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// WithMaxBodySize caps the size of an upstream response body.
// Default: DefaultMaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithTTL sets the TTL applied when no cache.WithTTL option is passed per call.
// Default: the cache default TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
	}
}
