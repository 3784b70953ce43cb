// Package rdb provides the PostgreSQL-backed cluster store: the
// persistence layer for the six cluster/redirect tables plus the listen
// archive they are built from.
package rdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pannpers/go-logging/logging"
)

// Database wraps a pgx connection pool.
type Database struct {
	Pool   *pgxpool.Pool
	logger *logging.Logger
}

// New creates a Database from a DSN and verifies connectivity with a single
// ping. It does not retry; callers on the worker's startup path use Connect
// instead.
func New(ctx context.Context, dsn string, logger *logging.Logger) (*Database, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgxpool: %w", err)
	}

	db := &Database{Pool: pool, logger: logger}

	if err := db.Ping(ctx); err != nil {
		db.Pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// Connect retries New forever, sleeping retryDelay between attempts and
// logging each failure, until it succeeds or ctx is cancelled. This is the
// INIT -> DB_READY transition of the worker state machine: the
// specification requires the retry loop to have no upper bound, because
// the worker process waits forever for its dependencies to become
// available.
func Connect(ctx context.Context, dsn string, retryDelay time.Duration, logger *logging.Logger) (*Database, error) {
	for {
		db, err := New(ctx, dsn, logger)
		if err == nil {
			return db, nil
		}

		logger.Error(ctx, "cannot connect to database, retrying", err,
			slog.Duration("retry_delay", retryDelay))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

const pingTimeout = 5 * time.Second

// Ping verifies the database connection.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := d.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	return nil
}

// NewStdlibDB opens a *sql.DB via pgx/v5/stdlib for running goose
// migrations. The caller must close it after use.
func NewStdlibDB(dsn string) (*sql.DB, error) {
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config for migrations: %w", err)
	}

	return stdlib.OpenDB(*connConfig), nil
}

// Close closes the database connection pool.
func (d *Database) Close() error {
	d.logger.Info(context.Background(), "closing database connection")
	if d.Pool != nil {
		d.Pool.Close()
	}
	return nil
}
