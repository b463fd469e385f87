// Package postgres implements the domain repositories on PostgreSQL via pgx.
package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// PoolConfig tunes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MaxConnIdleTime time.Duration
}

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}

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

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// TxConfig bounds how long a transaction waits on locks and statements.
type TxConfig struct {
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is the shared handle of every repository. Repositories run their
// statements in the transaction carried by ctx, or directly on the pool when
// there is none.
type DB struct {
	pool   *pgxpool.Pool
	cfg    TxConfig
	tracer trace.Tracer
}

// NewDB wraps pool. A nil tracer provider disables tracing.
func NewDB(pool *pgxpool.Pool, cfg TxConfig, tp trace.TracerProvider) *DB {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &DB{
		pool:   pool,
		cfg:    cfg,
		tracer: tp.Tracer("github.com/xenking/order-engine/internal/storage/postgres"),
	}
}

// Pool returns the underlying pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

type txKey struct{}

func (db *DB) q(ctx context.Context) querier {
	if t, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return t
	}
	return db.pool
}
