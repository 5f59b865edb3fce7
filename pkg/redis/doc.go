// Package redis opens the Redis client shared by the cache drivers and the
// invalidation signal bus.
//
// It wraps [github.com/redis/go-redis/v9] with pool defaults, a startup
// retry loop built on [resilient.Call], a health check, and a shutdown hook.
//
// # Configuration
//
// All settings are configured via functional options:
//
//   - WithPoolSize(n int): Maximum number of connections (default: 10)
//   - WithMinIdleConns(n int): Minimum idle connections (default: 5)
//   - WithMaxIdleTime(d time.Duration): Maximum connection idle time (default: 10m)
//   - WithMaxActiveTime(d time.Duration): Maximum connection lifetime (default: 30m)
//   - WithRetry(attempts int, interval time.Duration): Retry attempts and base interval (default: 3 attempts, 5s)
//   - WithReadTimeout(d time.Duration): Read operation timeout (default: 3s)
//   - WithWriteTimeout(d time.Duration): Write operation timeout (default: 3s)
//   - WithDialTimeout(d time.Duration): Connection dial timeout (default: 5s)
//
// # Usage
//
//	client, err := redis.Open(ctx, os.Getenv("REDIS_URL"),
//		redis.WithPoolSize(20),
//		redis.WithRetry(5, 2*time.Second),
//	)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	persistent := cache.NewPersistent(cache.NewRedisKV(client))
//
// Startup attempts are spaced linearly: the wait after attempt n is n times
// the retry interval. Each attempt is bounded by the dial plus read timeout.
//
// # Health Checks
//
// [Healthcheck] returns a closure for readiness probes:
//
//	checks := health.Checks{"redis": redis.Healthcheck(client)}
//
// # Error Handling
//
// The package defines sentinel errors for common failure modes:
//
//   - [ErrEmptyConnectionURL] - Empty connection URL provided
//   - [ErrFailedToParseURL] - Invalid connection URL format or scheme
//   - [ErrConnectionFailed] - Connection failed after all retry attempts
//   - [ErrHealthcheckFailed] - Redis ping failed
//
// Errors are wrapped using [errors.Join] to preserve the original error context.
package redis
