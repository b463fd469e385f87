package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item together with its remaining inventory.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Stock       int
	Deactivated bool
	UpdatedAt   time.Time
}

// IsActive reports whether the product can be sold: it has stock left and
// has not been switched off explicitly.
func (p Product) IsActive() bool {
	return !p.Deactivated && p.Stock > 0
}

// Item is a requested quantity of a single product.
type Item struct {
	ProductID string
	Quantity  int
}

// Reservation is a quantity taken out of stock, priced at the moment it was
// reserved.
type Reservation struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// Subtotal returns Price × Quantity.
func (r Reservation) Subtotal() decimal.Decimal {
	return r.Price.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// ProductNotFoundError indicates a requested product does not exist or has
// been deactivated.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates a product has fewer units left than
// requested.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d available, %d requested", e.Name, e.Available, e.Requested)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Repository defines access to products and their stock counters.
//
// LockForUpdate and AdjustStock must be called inside a transaction; the
// returned rows stay locked until it ends.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	// LockForUpdate returns the products with the given ids ordered by id,
	// holding a row lock on each. Missing ids are silently skipped.
	LockForUpdate(ctx context.Context, ids []string) ([]Product, error)
	// AdjustStock adds delta to the stock of the product.
	AdjustStock(ctx context.Context, id string, delta int) error
}
