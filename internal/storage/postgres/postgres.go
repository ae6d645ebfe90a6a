// Package postgres provides the PostgreSQL-backed session store.
package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sokrith/pos-settlement/db"
)

// NewPool creates a pgxpool.Pool sized for the terminal workload and
// configured with shopspring/decimal support for NUMERIC columns. maxConns
// caps the pool when positive; zero keeps the driver default.
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	// Sessions are touched in short bursts while a cashier settles an order,
	// so idle connections can be released quickly.
	cfg.MaxConnIdleTime = time.Minute

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}
