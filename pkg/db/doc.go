// Package db opens the PostgreSQL pool behind cache.PostgresKV and applies
// its schema.
//
// It wraps [github.com/jackc/pgx/v5/pgxpool] with pool defaults, a startup
// retry loop built on [resilient.Call], a health check, and migrations run
// with [github.com/pressly/goose/v3].
//
// # Configuration
//
// [Config] carries yaml and env tags; the application config nests it under
// "database" / STASH_DATABASE_*:
//
//	url                 - PostgreSQL connection URL (empty disables Postgres)
//	max_open_conns      - Maximum open connections (default: 10)
//	min_conns           - Minimum idle connections (default: 2)
//	healthcheck_period  - Health check interval (default: 1m)
//	max_conn_idle_time  - Maximum connection idle time (default: 10m)
//	max_conn_lifetime   - Maximum connection lifetime (default: 30m)
//	retry_attempts      - Connection attempts (default: 3)
//	retry_interval      - Base retry interval (default: 5s)
//	connect_timeout     - Bound for one attempt (default: 10s)
//	migrations_table    - goose version table (default: stash_migrations)
//
// # Usage
//
//	pool, err := db.Connect(ctx, cfg.Database)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := db.MigrateCache(ctx, pool, cfg.Database.MigrationsTable, log); err != nil {
//		return err
//	}
//
//	persistent := cache.NewPersistent(cache.NewPostgresKV(pool))
//
// # Error Handling
//
// The package defines sentinel errors for common failure modes:
//
//   - [ErrEmptyConnectionString] - No connection URL configured
//   - [ErrFailedToParseDBConfig] - Invalid connection string format
//   - [ErrFailedToOpenDBConnection] - Connection failed after all retries
//   - [ErrHealthcheckFailed] - Database ping failed
//   - [ErrSetDialect] - Migration dialect configuration error
//   - [ErrApplyMigrations] - Migration execution failed
//
// Errors are wrapped using [errors.Join] to preserve the original error context.
package db
