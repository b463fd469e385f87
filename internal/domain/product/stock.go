package product

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Stock reserves and restores inventory. Every method must run inside the
// caller's transaction so that a failure anywhere in the surrounding
// operation also undoes the stock change.
type Stock struct {
	repo Repository
}

// NewStock creates a Stock backed by repo.
func NewStock(repo Repository) *Stock {
	return &Stock{repo: repo}
}

// CheckAndReserve locks every requested product, verifies it is available in
// the requested quantity and decrements its stock. Rows are locked in id
// order so that concurrent reservations over overlapping products cannot
// deadlock. Duplicate product ids are summed.
//
// The first failing line aborts the whole reservation with a
// *ProductNotFoundError or *InsufficientStockError. Stock decremented before
// the failure is undone by the caller's rollback.
func (s *Stock) CheckAndReserve(ctx context.Context, items []Item) ([]Reservation, error) {
	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(merged))
	for i, it := range merged {
		ids[i] = it.ProductID
	}

	locked, err := s.repo.LockForUpdate(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lock products")
	}
	byID := make(map[string]Product, len(locked))
	for _, p := range locked {
		byID[p.ID] = p
	}

	reservations := make([]Reservation, 0, len(merged))
	for _, it := range merged {
		p, ok := byID[it.ProductID]
		if !ok || p.Deactivated {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if p.Stock < it.Quantity {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: it.Quantity,
			}
		}
		reservations = append(reservations, Reservation{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  it.Quantity,
		})
	}

	for _, r := range reservations {
		if err := s.repo.AdjustStock(ctx, r.ProductID, -r.Quantity); err != nil {
			return nil, errors.Wrapf(err, "decrement stock of %s", r.ProductID)
		}
	}

	zctx.From(ctx).Debug("Stock reserved", zap.Int("products", len(reservations)))
	return reservations, nil
}

// Restore returns the given quantities to stock. Products are locked in id
// order, the same order CheckAndReserve uses. Products no longer in the
// catalog are skipped.
func (s *Stock) Restore(ctx context.Context, items []Item) error {
	merged, err := mergeItems(items)
	if err != nil {
		return err
	}
	ids := make([]string, len(merged))
	for i, it := range merged {
		ids[i] = it.ProductID
	}
	locked, err := s.repo.LockForUpdate(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "lock products")
	}
	present := make(map[string]struct{}, len(locked))
	for _, p := range locked {
		present[p.ID] = struct{}{}
	}
	for _, it := range merged {
		if _, ok := present[it.ProductID]; !ok {
			zctx.From(ctx).Warn("Product removed from catalog, stock not restored",
				zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
			)
			continue
		}
		if err := s.repo.AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
			return errors.Wrapf(err, "restore stock of %s", it.ProductID)
		}
	}
	return nil
}

// mergeItems validates quantities, sums duplicates and sorts by product id.
func mergeItems(items []Item) ([]Item, error) {
	totals := make(map[string]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: it.ProductID}
		}
		totals[it.ProductID] += it.Quantity
	}
	merged := make([]Item, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Item{ProductID: id, Quantity: qty})
	}
	slices.SortFunc(merged, func(a, b Item) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return merged, nil
}
