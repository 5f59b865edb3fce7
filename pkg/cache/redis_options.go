package cache

// RedisOption configures the Redis KV driver.
type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix    string
	scanCount int64
}

func defaultRedisOptions() *redisOptions {
	return &redisOptions{
		prefix:    "stash",
		scanCount: 100,
	}
}

// WithPrefix sets a key prefix for all Redis operations.
// Keys are stored as "{prefix}:{key}". This is useful for namespacing
// when several applications share the same Redis instance.
// Default: "stash". An empty prefix stores keys unprefixed.
func WithPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		o.prefix = prefix
	}
}

// WithScanCount sets the COUNT hint used when scanning keys.
// Default: 100.
func WithScanCount(n int64) RedisOption {
	return func(o *redisOptions) {
		if n > 0 {
			o.scanCount = n
		}
	}
}
