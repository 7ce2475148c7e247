// Package db provides the PostgreSQL-backed unit store and message-record
// store. Repositories accept a DBTX interface that is satisfied by both
// *pgxpool.Pool and pgx.Tx.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"receiptnotifier/internal/config"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// NewPool opens a connection pool tuned by cfg. The pool is created once per
// Lambda container and reused across invocations.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	if cfg.AcquireTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

// Schema is the DDL of the two stores. Payload holds the full unit document;
// the scalar columns duplicate what the ops API filters on.
const Schema = `
CREATE TABLE IF NOT EXISTS notifiable_units (
	id                     TEXT PRIMARY KEY,
	kind                   TEXT NOT NULL,
	status                 TEXT NOT NULL,
	payload                JSONB NOT NULL,
	notification_num_retry INTEGER NOT NULL DEFAULT 0,
	notified_at            TIMESTAMPTZ,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notifiable_units_status ON notifiable_units (status, updated_at);

CREATE TABLE IF NOT EXISTS io_messages (
	id          TEXT PRIMARY KEY,
	unit_id     TEXT NOT NULL,
	sub_unit_id TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL,
	message_id  TEXT NOT NULL,
	subject     TEXT NOT NULL,
	markdown    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (unit_id, sub_unit_id, role)
);
`

// Migrate applies Schema. Statements are idempotent.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
