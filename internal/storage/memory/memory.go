// Package memory is an in-process implementation of the repositories. A
// transaction holds a store-wide lock and restores a snapshot when it fails,
// which makes it a stand-in for PostgreSQL in tests and local runs.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/xenking/order-engine/internal/domain/cancellation"
	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/domain/tx"
)

type cartKey struct {
	owner, product string
}

type redemptionKey struct {
	coupon, user string
}

type state struct {
	products    map[string]product.Product
	carts       map[cartKey]int
	cartOrder   map[cartKey]int64
	coupons     map[string]coupon.Coupon
	redemptions map[redemptionKey]coupon.Redemption
	orders      map[string]order.Order
	events      []order.Event
	requests    map[string]cancellation.Request
	seq         int64
}

func (s *state) clone() *state {
	return &state{
		products:    maps.Clone(s.products),
		carts:       maps.Clone(s.carts),
		cartOrder:   maps.Clone(s.cartOrder),
		coupons:     maps.Clone(s.coupons),
		redemptions: maps.Clone(s.redemptions),
		orders:      maps.Clone(s.orders),
		events:      append([]order.Event(nil), s.events...),
		requests:    maps.Clone(s.requests),
		seq:         s.seq,
	}
}

// Store holds all data in memory.
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty Store.
func New() *Store {
	return &Store{st: &state{
		products:    make(map[string]product.Product),
		carts:       make(map[cartKey]int),
		cartOrder:   make(map[cartKey]int64),
		coupons:     make(map[string]coupon.Coupon),
		redemptions: make(map[redemptionKey]coupon.Redemption),
		orders:      make(map[string]order.Order),
		requests:    make(map[string]cancellation.Request),
	}}
}

type txKey struct{}

var _ tx.Transactor = (*Store)(nil)

// InTx runs fn while holding the store lock. Changes made by fn are
// discarded when it returns an error.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// do runs fn against the state, taking the lock unless ctx is already inside
// a transaction.
func (s *Store) do(ctx context.Context, fn func(st *state) error) error {
	if ctx.Value(txKey{}) == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}

// PutProduct creates or replaces a product.
func (s *Store) PutProduct(p product.Product) {
	_ = s.do(context.Background(), func(st *state) error {
		st.products[p.ID] = p
		return nil
	})
}

// Product returns the stored product.
func (s *Store) Product(id string) (product.Product, bool) {
	var (
		p  product.Product
		ok bool
	)
	_ = s.do(context.Background(), func(st *state) error {
		p, ok = st.products[id]
		return nil
	})
	return p, ok
}

// Coupon returns the stored coupon with the given id.
func (s *Store) Coupon(id string) (coupon.Coupon, bool) {
	var (
		c  coupon.Coupon
		ok bool
	)
	_ = s.do(context.Background(), func(st *state) error {
		c, ok = st.coupons[id]
		return nil
	})
	return c, ok
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	var n int
	_ = s.do(context.Background(), func(st *state) error {
		n = len(st.orders)
		return nil
	})
	return n
}

// Products returns the product repository view.
func (s *Store) Products() *Products { return &Products{s: s} }

// Carts returns the cart repository view.
func (s *Store) Carts() *Carts { return &Carts{s: s} }

// Coupons returns the coupon repository view.
func (s *Store) Coupons() *Coupons { return &Coupons{s: s} }

// Orders returns the order repository view.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Requests returns the cancellation request repository view.
func (s *Store) Requests() *Requests { return &Requests{s: s} }
