// Package checkout converts a cart into an order in a single transaction.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/order-engine/internal/domain/auth"
	"github.com/xenking/order-engine/internal/domain/cart"
	"github.com/xenking/order-engine/internal/domain/coupon"
	"github.com/xenking/order-engine/internal/domain/notify"
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/payment"
	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/domain/tx"
)

// NoteCreated is recorded on the creation event of every order.
const NoteCreated = "order created"

// ErrEmptyCart is returned when the cart being checked out has no lines.
var ErrEmptyCart = errors.New("cart is empty")

// Request holds the input of a checkout.
type Request struct {
	Actor auth.Actor
	// CartOwner is the cart to check out. It defaults to the actor's cart.
	// Any authenticated actor may check out an anonymous session cart it
	// holds the session id of; other users' carts need an administrator.
	CartOwner       string
	ShippingAddress order.ShippingAddress
	Card            payment.Card
	CouponCode      string
}

// Reserver takes quantities out of stock.
type Reserver interface {
	CheckAndReserve(ctx context.Context, items []product.Item) ([]product.Reservation, error)
}

// CouponLedger validates and redeems coupons.
type CouponLedger interface {
	Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*coupon.Discount, error)
	Redeem(ctx context.Context, d *coupon.Discount, userID, orderID string) error
}

// Service orchestrates checkout.
type Service struct {
	tx        tx.Transactor
	carts     cart.Repository
	stock     Reserver
	coupons   CouponLedger
	orders    order.Repository
	payments  payment.Authorizer
	publisher notify.Publisher
	now       func() time.Time
}

// Deps groups the collaborators of Service.
type Deps struct {
	Tx        tx.Transactor
	Carts     cart.Repository
	Stock     Reserver
	Coupons   CouponLedger
	Orders    order.Repository
	Payments  payment.Authorizer
	Publisher notify.Publisher
}

// NewService creates a checkout Service.
func NewService(d Deps) *Service {
	if d.Publisher == nil {
		d.Publisher = notify.Discard{}
	}
	return &Service{
		tx:        d.Tx,
		carts:     d.Carts,
		stock:     d.Stock,
		coupons:   d.Coupons,
		orders:    d.Orders,
		payments:  d.Payments,
		publisher: d.Publisher,
		now:       time.Now,
	}
}

// Checkout places an order for the contents of the cart. Input is validated
// and the card authorized before the transaction opens. Inside it, stock is
// reserved, the total is computed from live prices, the coupon is applied,
// the order, its lines and its creation event are written, the coupon is
// redeemed and the cart is cleared. Any failure rolls all of it back.
func (s *Service) Checkout(ctx context.Context, req Request) (*order.Order, error) {
	if req.Actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	owner := req.CartOwner
	if owner == "" {
		owner = req.Actor.ID
	}
	if owner != req.Actor.ID && !req.Actor.Admin && !cart.IsSessionOwner(owner) {
		return nil, auth.ErrForbidden
	}
	if err := req.ShippingAddress.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, req.Card); err != nil {
		return nil, err
	}

	var o *order.Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		o, err = s.place(ctx, owner, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Stringer("total", o.Total),
		zap.Stringer("discount", o.Discount),
	)
	s.publisher.Publish(ctx, notify.Event{
		Kind:    notify.OrderCreated,
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status.String(),
		At:      o.CreatedAt,
	})
	return o, nil
}

// authorize passes card and decline errors through. Anything else is an
// authorizer outage, reported as retryable rather than as a decline.
func (s *Service) authorize(ctx context.Context, card payment.Card) error {
	err := s.payments.Authorize(ctx, card)
	if err == nil {
		return nil
	}
	var fe *payment.FieldError
	if errors.As(err, &fe) || errors.Is(err, payment.ErrDeclined) {
		return err
	}
	return errors.Wrapf(tx.ErrRetryable, "authorize payment: %v", err)
}

func (s *Service) place(ctx context.Context, owner string, req Request) (*order.Order, error) {
	lines, err := s.carts.ListForUpdate(ctx, owner)
	if err != nil {
		return nil, errors.Wrap(err, "lock cart")
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]product.Item, len(lines))
	for i, l := range lines {
		items[i] = product.Item{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	reserved, err := s.stock.CheckAndReserve(ctx, items)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	orderLines := make([]order.Line, len(reserved))
	for i, r := range reserved {
		total = total.Add(r.Subtotal())
		orderLines[i] = order.Line{
			ProductID: r.ProductID,
			Name:      r.Name,
			Price:     r.Price,
			Quantity:  r.Quantity,
		}
	}
	total = total.Round(2)

	var discount *coupon.Discount
	if req.CouponCode != "" {
		if discount, err = s.coupons.Validate(ctx, req.CouponCode, req.Actor.ID, total); err != nil {
			return nil, err
		}
	}

	now := s.now()
	o := &order.Order{
		ID:              uuid.New().String(),
		UserID:          req.Actor.ID,
		Total:           total,
		Discount:        decimal.Zero,
		Status:          order.StatusPending,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
		Lines:           orderLines,
	}
	if discount != nil {
		o.Discount = discount.Amount
		o.CouponCode = discount.Code
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if err := s.orders.AppendEvent(ctx, order.Event{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		ActorID:   req.Actor.ID,
		NewStatus: order.StatusPending,
		Note:      NoteCreated,
		CreatedAt: now,
	}); err != nil {
		return nil, errors.Wrap(err, "append creation event")
	}

	if discount != nil {
		if err := s.coupons.Redeem(ctx, discount, req.Actor.ID, o.ID); err != nil {
			return nil, err
		}
	}

	if err := s.carts.Clear(ctx, owner); err != nil {
		return nil, errors.Wrap(err, "clear cart")
	}
	return o, nil
}
