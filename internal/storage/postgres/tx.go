package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/codes"

	"github.com/xenking/order-engine/internal/domain/tx"
)

var _ tx.Transactor = (*DB)(nil)

// InTx runs fn in a READ COMMITTED transaction with the configured lock and
// statement timeouts applied locally. A call nested in another InTx joins
// the outer transaction. Nothing is retried: conflicts surface as
// tx.ErrRetryable.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) (rerr error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	ctx, span := db.tracer.Start(ctx, "postgres.tx")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	t, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapErr(err, "begin transaction")
	}
	defer func() {
		// No-op once committed.
		_ = t.Rollback(context.WithoutCancel(ctx))
	}()

	if stmt := db.timeoutsSQL(); stmt != "" {
		if _, err := t.Exec(ctx, stmt); err != nil {
			return wrapErr(err, "set transaction timeouts")
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	return wrapErr(t.Commit(ctx), "commit")
}

func (db *DB) timeoutsSQL() string {
	var stmt string
	if ms := db.cfg.LockTimeout.Milliseconds(); ms > 0 {
		stmt += fmt.Sprintf("SET LOCAL lock_timeout = '%dms';", ms)
	}
	if ms := db.cfg.StatementTimeout.Milliseconds(); ms > 0 {
		stmt += fmt.Sprintf("SET LOCAL statement_timeout = '%dms';", ms)
	}
	return stmt
}

// mustTx returns an error when ctx carries no transaction. Row locks taken
// outside a transaction would be released immediately.
func mustTx(ctx context.Context) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); !ok {
		return errors.New("row locks require a transaction")
	}
	return nil
}
