package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-engine/internal/domain/product"
)

const (
	productColumns = `id, name, price, stock, deactivated, updated_at`

	getProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	lockProductsSQL = `SELECT ` + productColumns + ` FROM products
		WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	adjustStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (id, name, price, stock, deactivated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			stock = EXCLUDED.stock,
			deactivated = EXCLUDED.deactivated,
			updated_at = now()`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	db *DB
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db *DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.db.q(ctx).Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, wrapErr(err, "get product")
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, wrapErr(err, "get product")
	}
	return &p, nil
}

// LockForUpdate selects the products FOR UPDATE in id order.
func (r *ProductRepository) LockForUpdate(ctx context.Context, ids []string) ([]product.Product, error) {
	if err := mustTx(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.q(ctx).Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, wrapErr(err, "lock products")
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, wrapErr(err, "lock products")
	}
	return products, nil
}

// AdjustStock adds delta to the product stock. The stock >= 0 check
// constraint rejects a decrement below zero.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) error {
	tag, err := r.db.q(ctx).Exec(ctx, adjustStockSQL, id, delta)
	if err != nil {
		return wrapErr(err, "adjust stock")
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Upsert creates or replaces a catalog entry, stock included.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	_, err := r.db.q(ctx).Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Stock, p.Deactivated)
	return wrapErr(err, "upsert product")
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Deactivated, &p.UpdatedAt)
	return p, err
}
