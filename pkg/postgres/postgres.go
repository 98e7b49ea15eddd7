// Package postgres provides the PostgreSQL connection pool used by the watch store.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	URL             string        `split_words:"true"`
	MaxConns        int32         `split_words:"true" default:"10"`
	MinConns        int32         `split_words:"true" default:"2"`
	MaxConnLifetime time.Duration `split_words:"true" default:"1h"`
	MaxConnIdleTime time.Duration `split_words:"true" default:"30m"`
}

// Enabled reports whether a database URL was configured.
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// NewPool creates a pool and verifies connectivity before returning it.
func (c *Config) NewPool(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = c.MaxConns
	poolConfig.MinConns = c.MinConns
	poolConfig.MaxConnLifetime = c.MaxConnLifetime
	poolConfig.MaxConnIdleTime = c.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
