package cache

import (
	"time"
)

// Default configuration values.
const (
	DefaultTTL     = 5 * time.Minute
	DefaultBackend = KindMemory
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	now         func() time.Time
	observer    Observer
	backends    []Backend
	memoryOpts  []MemoryOption
	defaultTTL  time.Duration
	defaultKind Kind
	threshold   int
}

func defaultOptions() *options {
	return &options{
		now:         time.Now,
		observer:    NopObserver(),
		defaultTTL:  DefaultTTL,
		defaultKind: DefaultBackend,
		threshold:   DefaultCompressThreshold,
	}
}

// WithDefaultTTL sets the TTL used when Set is called without WithTTL.
// Default: 5 minutes.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.defaultTTL = ttl
		}
	}
}

// WithDefaultBackend selects the backend used when no InBackend option is given.
// Default: KindMemory.
func WithDefaultBackend(kind Kind) Option {
	return func(o *options) {
		o.defaultKind = kind
	}
}

// WithCompressThreshold sets the payload size in bytes above which
// compression is applied for entries written with WithCompression.
// Default: 1024.
func WithCompressThreshold(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.threshold = n
		}
	}
}

// WithObserver sets the observer receiving cache events. Attached backends
// that report storage faults share it.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithBackend attaches a backend. A later backend of the same kind replaces
// an earlier one; a Memory passed here replaces the built-in one.
func WithBackend(b Backend) Option {
	return func(o *options) {
		if b != nil {
			o.backends = append(o.backends, b)
		}
	}
}

// WithMemoryOptions configures the built-in memory backend.
func WithMemoryOptions(opts ...MemoryOption) Option {
	return func(o *options) {
		o.memoryOpts = append(o.memoryOpts, opts...)
	}
}

// WithClock sets the time source for entry creation and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// EntryOption configures a single Get, Set, or Has call.
type EntryOption func(*entryOptions)

type entryOptions struct {
	kind     Kind
	tags     []string
	ttl      time.Duration
	ttlSet   bool
	compress bool
}

// WithTTL sets the entry TTL. Zero or negative means "never cache":
// Set becomes a no-op.
func WithTTL(ttl time.Duration) EntryOption {
	return func(o *entryOptions) {
		o.ttl = ttl
		o.ttlSet = true
	}
}

// InBackend selects the backend the call targets.
func InBackend(kind Kind) EntryOption {
	return func(o *entryOptions) {
		o.kind = kind
	}
}

// WithCompression compresses payloads larger than the cache threshold.
func WithCompression() EntryOption {
	return func(o *entryOptions) {
		o.compress = true
	}
}

// WithTags attaches dependency tags used by InvalidateByTag.
func WithTags(tags ...string) EntryOption {
	return func(o *entryOptions) {
		o.tags = append(o.tags, tags...)
	}
}
