package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultPostgresTable is the table created by the bundled migration.
const DefaultPostgresTable = "stash_cache_entries"

// PgxPool is the subset of *pgxpool.Pool used by PostgresKV.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresOption configures the Postgres KV driver.
type PostgresOption func(*PostgresKV)

// WithTable overrides the table name. The table must have the layout
// created by the bundled migration.
func WithTable(name string) PostgresOption {
	return func(p *PostgresKV) {
		if name != "" {
			p.table = pgx.Identifier{name}.Sanitize()
		}
	}
}

// WithPostgresClock sets the time source used to compute expires_at.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(p *PostgresKV) {
		if now != nil {
			p.now = now
		}
	}
}

// PostgresKV is a KV driver that keeps entries in a PostgreSQL table.
// Expired rows are invisible to reads and removed by PruneExpired.
type PostgresKV struct {
	pool  PgxPool
	now   func() time.Time
	table string
}

// NewPostgresKV creates a Postgres-backed KV driver over pool.
func NewPostgresKV(pool PgxPool, opts ...PostgresOption) *PostgresKV {
	p := &PostgresKV{
		pool:  pool,
		now:   time.Now,
		table: pgx.Identifier{DefaultPostgresTable}.Sanitize(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the stored value or ErrNotFound.
func (p *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM `+p.table+` WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`,
		key, p.now(),
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Set upserts value. A non-positive ttl stores the row without expiry.
func (p *PostgresKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := p.now().Add(ttl)
		expiresAt = &t
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO `+p.table+` (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`,
		key, value, expiresAt, p.now(),
	)
	return err
}

// Delete removes keys.
func (p *PostgresKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM `+p.table+` WHERE key = ANY($1)`, keys)
	return err
}

// Scan lists live keys starting with prefix in lexical order.
func (p *PostgresKV) Scan(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT key FROM `+p.table+`
		WHERE starts_with(key, $1) AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY key`,
		prefix, p.now(),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// PruneExpired deletes rows whose expires_at has passed and returns how
// many were removed.
func (p *PostgresKV) PruneExpired(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM `+p.table+` WHERE expires_at IS NOT NULL AND expires_at <= $1`,
		p.now(),
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Ping verifies connectivity to the database.
func (p *PostgresKV) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

var (
	_ KV     = (*PostgresKV)(nil)
	_ Pinger = (*PostgresKV)(nil)
	_ Pruner = (*PostgresKV)(nil)
)
