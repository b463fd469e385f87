package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-engine/internal/domain/cart"
)

const (
	listCartSQL = `SELECT product_id, quantity, added_at FROM cart_items
		WHERE owner_id = $1 ORDER BY added_at, product_id`

	listCartForUpdateSQL = listCartSQL + ` FOR UPDATE`

	setCartLineSQL = `INSERT INTO cart_items (owner_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	removeCartLineSQL = `DELETE FROM cart_items WHERE owner_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE owner_id = $1`

	mergeCartSQL = `INSERT INTO cart_items (owner_id, product_id, quantity, added_at)
		SELECT $2, product_id, quantity, added_at FROM cart_items WHERE owner_id = $1
		ON CONFLICT (owner_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db *DB
}

// NewCartRepository returns a CartRepository that uses db.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) List(ctx context.Context, owner string) ([]cart.Line, error) {
	return r.list(ctx, listCartSQL, owner)
}

// ListForUpdate locks the owner's cart rows. It must run inside InTx.
func (r *CartRepository) ListForUpdate(ctx context.Context, owner string) ([]cart.Line, error) {
	if err := mustTx(ctx); err != nil {
		return nil, err
	}
	return r.list(ctx, listCartForUpdateSQL, owner)
}

func (r *CartRepository) list(ctx context.Context, query, owner string) ([]cart.Line, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, owner)
	if err != nil {
		return nil, wrapErr(err, "list cart")
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.Quantity, &l.AddedAt)
		return l, err
	})
	return lines, wrapErr(err, "list cart")
}

func (r *CartRepository) Set(ctx context.Context, owner, productID string, quantity int) error {
	_, err := r.db.q(ctx).Exec(ctx, setCartLineSQL, owner, productID, quantity)
	return wrapErr(err, "set cart line")
}

func (r *CartRepository) Remove(ctx context.Context, owner, productID string) error {
	_, err := r.db.q(ctx).Exec(ctx, removeCartLineSQL, owner, productID)
	return wrapErr(err, "remove cart line")
}

func (r *CartRepository) Clear(ctx context.Context, owner string) error {
	_, err := r.db.q(ctx).Exec(ctx, clearCartSQL, owner)
	return wrapErr(err, "clear cart")
}

// Merge copies the lines of from into to and deletes them from from, in one
// round trip.
func (r *CartRepository) Merge(ctx context.Context, from, to string) error {
	b := &pgx.Batch{}
	b.Queue(mergeCartSQL, from, to)
	b.Queue(clearCartSQL, from)
	return wrapErr(r.db.q(ctx).SendBatch(ctx, b).Close(), "merge carts")
}
