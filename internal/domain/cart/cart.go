// Package cart keeps the per-owner list of products a customer intends to buy.
package cart

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/domain/tx"
)

// ErrEmptyOwner is returned when no cart owner could be determined.
var ErrEmptyOwner = errors.New("cart owner required")

const sessionPrefix = "session:"

// SessionOwner returns the owner key of an anonymous cart.
func SessionOwner(sessionID string) string {
	return sessionPrefix + sessionID
}

// IsSessionOwner reports whether owner refers to an anonymous cart.
func IsSessionOwner(owner string) bool {
	return strings.HasPrefix(owner, sessionPrefix)
}

// Line is a single product entry of a cart.
type Line struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Repository persists cart lines. Lines are unique per (owner, product).
type Repository interface {
	List(ctx context.Context, owner string) ([]Line, error)
	// ListForUpdate is List that also locks the lines until the surrounding
	// transaction ends. A concurrent caller blocks and then sees the lines
	// as committed by the holder.
	ListForUpdate(ctx context.Context, owner string) ([]Line, error)
	// Set inserts the line or replaces its quantity.
	Set(ctx context.Context, owner, productID string, quantity int) error
	Remove(ctx context.Context, owner, productID string) error
	Clear(ctx context.Context, owner string) error
	// Merge moves every line of from into to, summing quantities of
	// products present in both, and empties from.
	Merge(ctx context.Context, from, to string) error
}

// Service validates cart edits against the catalog.
type Service struct {
	repo     Repository
	products product.Repository
	tx       tx.Transactor
}

// NewService creates a cart Service.
func NewService(repo Repository, products product.Repository, t tx.Transactor) *Service {
	return &Service{repo: repo, products: products, tx: t}
}

// Lines returns the lines of the owner's cart.
func (s *Service) Lines(ctx context.Context, owner string) ([]Line, error) {
	if owner == "" {
		return nil, ErrEmptyOwner
	}
	lines, err := s.repo.List(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "list cart")
	}
	return lines, nil
}

// SetQuantity puts quantity units of the product into the owner's cart. The
// product must exist and be purchasable; stock is checked again at checkout.
func (s *Service) SetQuantity(ctx context.Context, owner, productID string, quantity int) error {
	if owner == "" {
		return ErrEmptyOwner
	}
	if quantity <= 0 {
		return &product.InvalidQuantityError{ProductID: productID}
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return &product.ProductNotFoundError{ProductID: productID}
		}
		return errors.Wrap(err, "get product")
	}
	if !p.IsActive() {
		if p.Deactivated {
			return &product.ProductNotFoundError{ProductID: productID}
		}
		return &product.InsufficientStockError{
			ProductID: p.ID,
			Name:      p.Name,
			Available: p.Stock,
			Requested: quantity,
		}
	}
	if err := s.repo.Set(ctx, owner, productID, quantity); err != nil {
		return errors.Wrap(err, "set cart line")
	}
	return nil
}

// Remove deletes the product from the owner's cart. Removing an absent line
// is not an error.
func (s *Service) Remove(ctx context.Context, owner, productID string) error {
	if owner == "" {
		return ErrEmptyOwner
	}
	if err := s.repo.Remove(ctx, owner, productID); err != nil {
		return errors.Wrap(err, "remove cart line")
	}
	return nil
}

// MergeSession moves the anonymous cart of sessionID into the cart of
// userID, typically right after login.
func (s *Service) MergeSession(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return ErrEmptyOwner
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Merge(ctx, SessionOwner(sessionID), userID); err != nil {
			return errors.Wrap(err, "merge carts")
		}
		return nil
	})
}
