// Package database provides PostgreSQL connection management, transaction
// scoping and schema migrations using pgx.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-admission/internal/config"
)

// DB wraps the pool together with the per-transaction lock timeout.
type DB struct {
	Pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPool creates and validates a pgxpool connection pool.
// It retries to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.Database) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		slog.Warn("db connect attempt failed", "attempt", attempt, "max_attempts", attempts, "error", err)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	slog.Info("connected to postgres", "max_conns", cfg.MaxConns, "lock_timeout", cfg.LockTimeout)
	return New(pool, cfg.LockTimeout), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, lockTimeout time.Duration) *DB {
	return &DB{Pool: pool, lockTimeout: lockTimeout}
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close releases all pooled connections.
func (db *DB) Close() {
	db.Pool.Close()
}
