// Package config loads the stash service configuration: defaults, then an
// optional YAML file, then STASH_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/stash/pkg/cache"
	"github.com/dmitrymomot/stash/pkg/db"
	"github.com/dmitrymomot/stash/pkg/logger"
	"github.com/dmitrymomot/stash/pkg/redis"
	"github.com/dmitrymomot/stash/pkg/resilient"
	"github.com/dmitrymomot/stash/pkg/retrieve"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "STASH_"

// Store drivers for the persistent and session backends.
const (
	DriverNone     = "none"
	DriverMap      = "map"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
)

var (
	ErrReadFile      = errors.New("config: failed to read file")
	ErrParseFile     = errors.New("config: failed to parse file")
	ErrParseEnv      = errors.New("config: failed to parse environment")
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config is the complete service configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" envPrefix:"HTTP_"`
	Log         logger.Config     `yaml:"log" envPrefix:"LOG_"`
	Cache       CacheConfig       `yaml:"cache" envPrefix:"CACHE_"`
	Redis       RedisConfig       `yaml:"redis" envPrefix:"REDIS_"`
	Database    db.Config         `yaml:"database" envPrefix:"DATABASE_"`
	S3          cache.S3Config    `yaml:"s3" envPrefix:"S3_"`
	Retry       resilient.Policy  `yaml:"retry" envPrefix:"RETRY_"`
	Maintenance MaintenanceConfig `yaml:"maintenance" envPrefix:"MAINTENANCE_"`
	Upstream    UpstreamConfig    `yaml:"upstream" envPrefix:"UPSTREAM_"`
	Session     SessionConfig     `yaml:"session" envPrefix:"SESSION_"`
	Metrics     MetricsConfig     `yaml:"metrics" envPrefix:"METRICS_"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Address         string        `yaml:"address" env:"ADDRESS"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// CacheConfig selects and tunes the cache backends.
type CacheConfig struct {
	Namespace         string        `yaml:"namespace" env:"NAMESPACE"`
	DefaultBackend    string        `yaml:"default_backend" env:"DEFAULT_BACKEND"`
	Persistent        string        `yaml:"persistent" env:"PERSISTENT"`
	Session           string        `yaml:"session" env:"SESSION"`
	DefaultTTL        time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	CompressThreshold int           `yaml:"compress_threshold" env:"COMPRESS_THRESHOLD"`
	MemoryMaxEntries  int           `yaml:"memory_max_entries" env:"MEMORY_MAX_ENTRIES"`
}

// RedisConfig configures the Redis client shared by the Redis store and
// invalidation signals. An empty URL disables Redis.
type RedisConfig struct {
	URL           string        `yaml:"url" env:"URL"`
	RetryAttempts int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryInterval time.Duration `yaml:"retry_interval" env:"RETRY_INTERVAL"`
	PoolSize      int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns  int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DialTimeout   time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout   time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout  time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	MaxIdleTime   time.Duration `yaml:"max_idle_time" env:"MAX_IDLE_TIME"`
	MaxActiveTime time.Duration `yaml:"max_active_time" env:"MAX_ACTIVE_TIME"`
}

// Options converts the section into client options for redis.Open.
func (c RedisConfig) Options() []redis.Option {
	opts := []redis.Option{redis.WithRetry(c.RetryAttempts, c.RetryInterval)}
	if c.PoolSize > 0 {
		opts = append(opts, redis.WithPoolSize(c.PoolSize))
	}
	if c.MinIdleConns > 0 {
		opts = append(opts, redis.WithMinIdleConns(c.MinIdleConns))
	}
	if c.DialTimeout > 0 {
		opts = append(opts, redis.WithDialTimeout(c.DialTimeout))
	}
	if c.ReadTimeout > 0 {
		opts = append(opts, redis.WithReadTimeout(c.ReadTimeout))
	}
	if c.WriteTimeout > 0 {
		opts = append(opts, redis.WithWriteTimeout(c.WriteTimeout))
	}
	if c.MaxIdleTime > 0 {
		opts = append(opts, redis.WithMaxIdleTime(c.MaxIdleTime))
	}
	if c.MaxActiveTime > 0 {
		opts = append(opts, redis.WithMaxActiveTime(c.MaxActiveTime))
	}
	return opts
}

// MaintenanceConfig configures the maintenance scheduler.
type MaintenanceConfig struct {
	MemoryClearInterval time.Duration `yaml:"memory_clear_interval" env:"MEMORY_CLEAR_INTERVAL"`
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval" env:"EXPIRY_SWEEP_INTERVAL"`
	MemoryClearSchedule string        `yaml:"memory_clear_schedule" env:"MEMORY_CLEAR_SCHEDULE"`
	ExpirySweepSchedule string        `yaml:"expiry_sweep_schedule" env:"EXPIRY_SWEEP_SCHEDULE"`
	// Signals subscribes to Redis invalidation signals when Redis is configured.
	Signals bool   `yaml:"signals" env:"SIGNALS"`
	Channel string `yaml:"channel" env:"CHANNEL"`
}

// UpstreamConfig points the cached API proxy at the remote source.
// An empty BaseURL disables the proxy.
type UpstreamConfig struct {
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	Strategy string        `yaml:"strategy" env:"STRATEGY"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	// ProfilePath is the upstream path serving the current session's profile.
	ProfilePath string `yaml:"profile_path" env:"PROFILE_PATH"`
}

// SessionConfig configures visitor sessions.
type SessionConfig struct {
	Header     string        `yaml:"header" env:"HEADER"`
	Lifetime   time.Duration `yaml:"lifetime" env:"LIFETIME"`
	ProfileTTL time.Duration `yaml:"profile_ttl" env:"PROFILE_TTL"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Default returns the built-in configuration: an in-process stack with no
// external services.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: logger.DefaultConfig(),
		Cache: CacheConfig{
			Namespace:         "stash",
			DefaultBackend:    string(cache.KindMemory),
			Persistent:        DriverMap,
			Session:           DriverMap,
			DefaultTTL:        cache.DefaultTTL,
			CompressThreshold: cache.DefaultCompressThreshold,
		},
		Redis: RedisConfig{
			RetryAttempts: 3,
			RetryInterval: 2 * time.Second,
			PoolSize:      10,
		},
		Database: db.DefaultConfig(),
		Retry:    resilient.DefaultPolicy(),
		Maintenance: MaintenanceConfig{
			MemoryClearInterval: 30 * time.Minute,
			ExpirySweepInterval: 5 * time.Minute,
			Signals:             true,
			Channel:             "stash:cache:signals",
		},
		Upstream: UpstreamConfig{
			Strategy:    string(retrieve.StrategyStaleWhileRevalidate),
			TTL:         time.Minute,
			ProfilePath: "/api/profile",
		},
		Session: SessionConfig{
			Header:     "X-Session-ID",
			Lifetime:   24 * time.Hour,
			ProfileTTL: 10 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "stash",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Join(ErrReadFile, err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, errors.Join(ErrParseEnv, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeYAML overlays raw onto cfg, rejecting unknown fields.
func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(ErrParseFile, err)
	}
	return nil
}

// Validate checks values the service cannot start with.
func (c Config) Validate() error {
	var errs []error

	if _, err := cache.ParseKind(c.Cache.DefaultBackend); err != nil {
		errs = append(errs, err)
	}
	if _, err := retrieve.ParseStrategy(c.Upstream.Strategy); err != nil {
		errs = append(errs, err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	stores := []struct{ name, driver string }{
		{"persistent", c.Cache.Persistent},
		{"session", c.Cache.Session},
	}
	for _, st := range stores {
		name, driver := st.name, st.driver
		switch driver {
		case DriverNone, DriverMap:
		case DriverRedis:
			if c.Redis.URL == "" {
				errs = append(errs, fmt.Errorf("%s store %q requires redis.url", name, driver))
			}
		case DriverPostgres:
			if name == "session" {
				errs = append(errs, fmt.Errorf("session store cannot use %q", driver))
			} else if c.Database.ConnectionString == "" {
				errs = append(errs, fmt.Errorf("%s store %q requires database.url", name, driver))
			}
		case DriverS3:
			if name == "session" {
				errs = append(errs, fmt.Errorf("session store cannot use %q", driver))
			} else if c.S3.Bucket == "" {
				errs = append(errs, fmt.Errorf("%s store %q requires s3.bucket", name, driver))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown %s store %q", name, driver))
		}
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must not be negative"))
	}
	if c.Session.Lifetime <= 0 {
		errs = append(errs, errors.New("session.lifetime must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}
