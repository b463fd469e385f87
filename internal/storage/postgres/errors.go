package postgres

import (
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/order-engine/internal/domain/tx"
)

// PostgreSQL error codes the repositories react to.
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeQueryCanceled        = "57014"
)

// wrapErr annotates err with msg. Lock timeouts, deadlocks, serialization
// failures, cancelled statements and broken connections additionally match
// tx.ErrRetryable.
func wrapErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if isRetryable(err) {
		return errors.Wrapf(tx.ErrRetryable, "%s: %v", msg, err)
	}
	return errors.Wrap(err, msg)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeDeadlockDetected, codeSerializationFailure, codeQueryCanceled:
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}

// isUniqueViolation reports whether err violates the named unique constraint
// or index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == codeUniqueViolation &&
		pgErr.ConstraintName == constraint
}
