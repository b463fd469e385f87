package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/order-engine/internal/domain/cancellation"
	"github.com/xenking/order-engine/internal/domain/cart"
	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/product"
)

var (
	_ product.Repository      = (*Products)(nil)
	_ cart.Repository         = (*Carts)(nil)
	_ coupon.Repository       = (*Coupons)(nil)
	_ order.Repository        = (*Orders)(nil)
	_ cancellation.Repository = (*Requests)(nil)
)

// Products implements product.Repository.
type Products struct{ s *Store }

func (r *Products) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := r.s.do(ctx, func(st *state) error {
		var ok bool
		if p, ok = st.products[id]; !ok {
			return product.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Products) LockForUpdate(ctx context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				out = append(out, p)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b product.Product) int { return strings.Compare(a.ID, b.ID) })
	return out, err
}

func (r *Products) AdjustStock(ctx context.Context, id string, delta int) error {
	return r.s.do(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return product.ErrNotFound
		}
		p.Stock += delta
		if p.Stock < 0 {
			return &product.InsufficientStockError{ProductID: id, Name: p.Name, Available: p.Stock - delta, Requested: -delta}
		}
		st.products[id] = p
		return nil
	})
}

// Carts implements cart.Repository.
type Carts struct{ s *Store }

func (r *Carts) List(ctx context.Context, owner string) ([]cart.Line, error) {
	var lines []cart.Line
	var seqs []int64
	err := r.s.do(ctx, func(st *state) error {
		for k, q := range st.carts {
			if k.owner == owner {
				lines = append(lines, cart.Line{ProductID: k.product, Quantity: q})
				seqs = append(seqs, st.cartOrder[k])
			}
		}
		return nil
	})
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int { return int(seqs[a] - seqs[b]) })
	sorted := make([]cart.Line, len(lines))
	for i, j := range idx {
		sorted[i] = lines[j]
	}
	return sorted, err
}

// ListForUpdate is List; transactions on the Store are already serialized.
func (r *Carts) ListForUpdate(ctx context.Context, owner string) ([]cart.Line, error) {
	return r.List(ctx, owner)
}

func (r *Carts) Set(ctx context.Context, owner, productID string, quantity int) error {
	return r.s.do(ctx, func(st *state) error {
		k := cartKey{owner, productID}
		if _, ok := st.carts[k]; !ok {
			st.seq++
			st.cartOrder[k] = st.seq
		}
		st.carts[k] = quantity
		return nil
	})
}

func (r *Carts) Remove(ctx context.Context, owner, productID string) error {
	return r.s.do(ctx, func(st *state) error {
		k := cartKey{owner, productID}
		delete(st.carts, k)
		delete(st.cartOrder, k)
		return nil
	})
}

func (r *Carts) Clear(ctx context.Context, owner string) error {
	return r.s.do(ctx, func(st *state) error {
		for k := range st.carts {
			if k.owner == owner {
				delete(st.carts, k)
				delete(st.cartOrder, k)
			}
		}
		return nil
	})
}

func (r *Carts) Merge(ctx context.Context, from, to string) error {
	return r.s.do(ctx, func(st *state) error {
		for k, q := range st.carts {
			if k.owner != from {
				continue
			}
			dst := cartKey{to, k.product}
			if _, ok := st.carts[dst]; !ok {
				st.seq++
				st.cartOrder[dst] = st.seq
			}
			st.carts[dst] += q
			delete(st.carts, k)
			delete(st.cartOrder, k)
		}
		return nil
	})
}

// Coupons implements coupon.Repository.
type Coupons struct{ s *Store }

func (r *Coupons) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var found *coupon.Coupon
	err := r.s.do(ctx, func(st *state) error {
		for _, c := range st.coupons {
			if strings.EqualFold(c.Code, code) {
				found = &c
				return nil
			}
		}
		return coupon.ErrNotFound
	})
	return found, err
}

func (r *Coupons) HasRedeemed(ctx context.Context, couponID, userID string) (bool, error) {
	var used bool
	err := r.s.do(ctx, func(st *state) error {
		_, used = st.redemptions[redemptionKey{couponID, userID}]
		return nil
	})
	return used, err
}

func (r *Coupons) IncrementUsage(ctx context.Context, couponID string) error {
	return r.s.do(ctx, func(st *state) error {
		c, ok := st.coupons[couponID]
		if !ok {
			return coupon.ErrNotFound
		}
		if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
			return coupon.ErrUsageLimitReached
		}
		c.UsedCount++
		st.coupons[couponID] = c
		return nil
	})
}

func (r *Coupons) InsertRedemption(ctx context.Context, red coupon.Redemption) error {
	return r.s.do(ctx, func(st *state) error {
		k := redemptionKey{red.CouponID, red.UserID}
		if _, ok := st.redemptions[k]; ok {
			return coupon.ErrAlreadyUsedByUser
		}
		st.redemptions[k] = red
		return nil
	})
}

func (r *Coupons) Upsert(ctx context.Context, c coupon.Coupon) error {
	return r.s.do(ctx, func(st *state) error {
		for id, existing := range st.coupons {
			if strings.EqualFold(existing.Code, c.Code) {
				c.ID = id
				c.UsedCount = existing.UsedCount
				st.coupons[id] = c
				return nil
			}
		}
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		st.coupons[c.ID] = c
		return nil
	})
}

// Orders implements order.Repository.
type Orders struct{ s *Store }

func (r *Orders) Create(ctx context.Context, o *order.Order) error {
	return r.s.do(ctx, func(st *state) error {
		cp := *o
		cp.Lines = slices.Clone(o.Lines)
		st.orders[o.ID] = cp
		return nil
	})
}

func (r *Orders) Get(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := r.s.do(ctx, func(st *state) error {
		var ok bool
		if o, ok = st.orders[id]; !ok {
			return order.ErrNotFound
		}
		o.Lines = slices.Clone(o.Lines)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Orders) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r *Orders) UpdateStatus(ctx context.Context, o *order.Order) error {
	return r.s.do(ctx, func(st *state) error {
		cur, ok := st.orders[o.ID]
		if !ok {
			return order.ErrNotFound
		}
		cur.Status = o.Status
		cur.TrackingNumber = o.TrackingNumber
		cur.ConfirmedAt = o.ConfirmedAt
		cur.UpdatedAt = o.UpdatedAt
		st.orders[o.ID] = cur
		return nil
	})
}

func (r *Orders) AppendEvent(ctx context.Context, e order.Event) error {
	return r.s.do(ctx, func(st *state) error {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		st.events = append(st.events, e)
		return nil
	})
}

func (r *Orders) Events(ctx context.Context, orderID string) ([]order.Event, error) {
	var out []order.Event
	err := r.s.do(ctx, func(st *state) error {
		for _, e := range st.events {
			if e.OrderID == orderID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// Requests implements cancellation.Repository.
type Requests struct{ s *Store }

func (r *Requests) Create(ctx context.Context, req *cancellation.Request) error {
	return r.s.do(ctx, func(st *state) error {
		for _, existing := range st.requests {
			if existing.OrderID == req.OrderID && existing.Status.Outstanding() {
				return cancellation.ErrRequestAlreadyPending
			}
		}
		st.requests[req.ID] = *req
		return nil
	})
}

func (r *Requests) Get(ctx context.Context, id string) (*cancellation.Request, error) {
	var req cancellation.Request
	err := r.s.do(ctx, func(st *state) error {
		var ok bool
		if req, ok = st.requests[id]; !ok {
			return cancellation.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *Requests) GetForUpdate(ctx context.Context, id string) (*cancellation.Request, error) {
	return r.Get(ctx, id)
}

func (r *Requests) HasOutstanding(ctx context.Context, orderID string) (bool, error) {
	var found bool
	err := r.s.do(ctx, func(st *state) error {
		for _, req := range st.requests {
			if req.OrderID == orderID && req.Status.Outstanding() {
				found = true
			}
		}
		return nil
	})
	return found, err
}

func (r *Requests) Update(ctx context.Context, req *cancellation.Request) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.requests[req.ID]; !ok {
			return cancellation.ErrNotFound
		}
		st.requests[req.ID] = *req
		return nil
	})
}

func (r *Requests) ListByOrder(ctx context.Context, orderID string) ([]cancellation.Request, error) {
	var out []cancellation.Request
	err := r.s.do(ctx, func(st *state) error {
		for _, req := range st.requests {
			if req.OrderID == orderID {
				out = append(out, req)
			}
		}
		return nil
	})
	slices.SortFunc(out, func(a, b cancellation.Request) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, err
}
