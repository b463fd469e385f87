package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/order-engine/internal/domain/auth"
	"github.com/xenking/order-engine/internal/domain/notify"
	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/domain/tx"
)

// NoteCancelled is recorded on the history event of every cancellation that
// carries no note of its own.
const NoteCancelled = "order cancelled"

// StockRestorer returns reserved quantities to stock.
type StockRestorer interface {
	Restore(ctx context.Context, items []product.Item) error
}

// Change describes a requested status change.
type Change struct {
	To             Status
	ActorID        string
	TrackingNumber string
	Note           string
}

// Service reads orders and drives their status machine.
type Service struct {
	orders    Repository
	stock     StockRestorer
	tx        tx.Transactor
	publisher notify.Publisher
	now       func() time.Time
}

// NewService creates an order Service.
func NewService(orders Repository, stock StockRestorer, t tx.Transactor, publisher notify.Publisher) *Service {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	return &Service{
		orders:    orders,
		stock:     stock,
		tx:        t,
		publisher: publisher,
		now:       time.Now,
	}
}

// Get returns the order if actor owns it or is an administrator.
func (s *Service) Get(ctx context.Context, id string, actor auth.Actor) (*Order, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.UserID) {
		return nil, auth.ErrForbidden
	}
	return o, nil
}

// History returns the status events of the order, oldest first.
func (s *Service) History(ctx context.Context, id string, actor auth.Actor) ([]Event, error) {
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	events, err := s.orders.Events(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "list events")
	}
	return events, nil
}

// Transition moves the order to c.To on behalf of an administrator. Moving
// to CANCELLED restores the stock of every line in the same transaction.
func (s *Service) Transition(ctx context.Context, id string, c Change, actor auth.Actor) (*Order, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	c.ActorID = actor.ID

	var o *Order
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.orders.GetForUpdate(ctx, id); err != nil {
			return err
		}
		return s.Apply(ctx, o, c)
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("status", o.Status.String()),
	)
	s.publishChange(ctx, o, c.Note)
	return o, nil
}

// Apply validates and performs the change on o, which must have been loaded
// with GetForUpdate in the transaction carried by ctx. It writes the new
// status and exactly one history event. Cancelling restores stock.
func (s *Service) Apply(ctx context.Context, o *Order, c Change) error {
	if !o.Status.CanTransition(c.To) {
		return &InvalidTransitionError{From: o.Status, To: c.To}
	}
	tracking := strings.TrimSpace(c.TrackingNumber)
	if c.To == StatusShipped && tracking == "" {
		return ErrTrackingNumberRequired
	}

	now := s.now()
	old := o.Status
	o.Status = c.To
	o.UpdatedAt = now
	switch c.To {
	case StatusConfirmed:
		o.ConfirmedAt = &now
	case StatusShipped:
		o.TrackingNumber = tracking
	case StatusCancelled:
		if c.Note == "" {
			c.Note = NoteCancelled
		}
		if err := s.stock.Restore(ctx, o.Items()); err != nil {
			return errors.Wrap(err, "restore stock")
		}
	}

	if err := s.orders.UpdateStatus(ctx, o); err != nil {
		return errors.Wrap(err, "update status")
	}
	if err := s.orders.AppendEvent(ctx, Event{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		ActorID:   c.ActorID,
		OldStatus: old,
		NewStatus: c.To,
		Note:      c.Note,
		CreatedAt: now,
	}); err != nil {
		return errors.Wrap(err, "append event")
	}
	return nil
}

func (s *Service) publishChange(ctx context.Context, o *Order, note string) {
	kind := notify.OrderStatusChanged
	if o.Status == StatusCancelled {
		kind = notify.OrderCancelled
	}
	s.publisher.Publish(ctx, notify.Event{
		Kind:    kind,
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status.String(),
		Note:    note,
		At:      o.UpdatedAt,
	})
}

// Items returns the product quantities of the order lines.
func (o *Order) Items() []product.Item {
	items := make([]product.Item, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = product.Item{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return items
}

// Replay reconstructs the status an order reached from its history.
func Replay(events []Event) (Status, error) {
	var current Status
	for i, e := range events {
		if e.OldStatus != current {
			return "", errors.Errorf("event %d: expected previous status %q, got %q", i, current, e.OldStatus)
		}
		if current == "" && e.NewStatus != StatusPending {
			return "", errors.Errorf("event %d: history must start with %s", i, StatusPending)
		}
		if current != "" && !current.CanTransition(e.NewStatus) {
			return "", &InvalidTransitionError{From: current, To: e.NewStatus}
		}
		current = e.NewStatus
	}
	if current == "" {
		return "", errors.New("empty history")
	}
	return current, nil
}
