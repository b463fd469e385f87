// Package tx defines the transaction boundary shared by the domain services.
package tx

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrRetryable marks infrastructure failures (lock timeouts, deadlocks,
// serialization conflicts, statement cancellation) that left no committed
// state behind. Callers decide whether to retry.
var ErrRetryable = errors.New("transient storage conflict, retry the operation")

// Transactor runs fn inside a single database transaction. Repositories
// called with the ctx passed to fn join that transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactorFunc adapts a function to the Transactor interface.
type TransactorFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// InTx calls f(ctx, fn).
func (f TransactorFunc) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}
