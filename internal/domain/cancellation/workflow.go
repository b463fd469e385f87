package cancellation

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
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/tx"
)

// StatusApplier performs a status change on an order locked in the current
// transaction.
type StatusApplier interface {
	Apply(ctx context.Context, o *order.Order, c order.Change) error
}

// Workflow cancels orders and manages cancellation requests. Orders are
// always locked before requests.
type Workflow struct {
	tx        tx.Transactor
	orders    order.Repository
	requests  Repository
	status    StatusApplier
	publisher notify.Publisher
	now       func() time.Time
}

// NewWorkflow creates a Workflow.
func NewWorkflow(
	t tx.Transactor,
	orders order.Repository,
	requests Repository,
	status StatusApplier,
	publisher notify.Publisher,
) *Workflow {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	return &Workflow{
		tx:        t,
		orders:    orders,
		requests:  requests,
		status:    status,
		publisher: publisher,
		now:       time.Now,
	}
}

// Cancel cancels the order at once on behalf of its owner or an
// administrator, restoring the stock of every line.
func (w *Workflow) Cancel(ctx context.Context, orderID string, actor auth.Actor, note string) (*order.Order, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	var o *order.Order
	err := w.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = w.orders.GetForUpdate(ctx, orderID); err != nil {
			return err
		}
		if !actor.CanAccess(o.UserID) {
			return auth.ErrForbidden
		}
		return w.cancelLocked(ctx, o, actor.ID, note)
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order cancelled", zap.String("order_id", o.ID), zap.String("actor_id", actor.ID))
	w.publisher.Publish(ctx, notify.Event{
		Kind:    notify.OrderCancelled,
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status.String(),
		Note:    note,
		At:      o.UpdatedAt,
	})
	return o, nil
}

func (w *Workflow) cancelLocked(ctx context.Context, o *order.Order, actorID, note string) error {
	if !o.Status.Cancellable() {
		return order.ErrNotCancellable
	}
	if strings.TrimSpace(note) == "" {
		note = order.NoteCancelled
	}
	return w.status.Apply(ctx, o, order.Change{
		To:      order.StatusCancelled,
		ActorID: actorID,
		Note:    note,
	})
}

// RequestCancellation files a request to cancel the order. Only one request
// per order may be outstanding at a time.
func (w *Workflow) RequestCancellation(ctx context.Context, orderID string, actor auth.Actor, reason string) (*Request, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	var r *Request
	err := w.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := w.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(o.UserID) {
			return auth.ErrForbidden
		}
		if !o.Status.Cancellable() {
			return order.ErrNotCancellable
		}
		pending, err := w.requests.HasOutstanding(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "check outstanding requests")
		}
		if pending {
			return ErrRequestAlreadyPending
		}

		r = &Request{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			UserID:    o.UserID,
			Reason:    reason,
			Status:    StatusPending,
			CreatedAt: w.now(),
		}
		if err := w.requests.Create(ctx, r); err != nil {
			if errors.Is(err, ErrRequestAlreadyPending) {
				return ErrRequestAlreadyPending
			}
			return errors.Wrap(err, "create request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.publisher.Publish(ctx, notify.Event{
		Kind:    notify.CancellationRequested,
		OrderID: r.OrderID,
		UserID:  r.UserID,
		Status:  string(r.Status),
		Note:    r.Reason,
		At:      r.CreatedAt,
	})
	return r, nil
}

// Resolve applies an administrator's decision to a pending request.
// Approving cancels the order exactly like Cancel and completes the request;
// rejecting only records the decision. Approving a request whose order is
// already cancelled completes it without touching the order or stock.
func (w *Workflow) Resolve(ctx context.Context, requestID string, d Decision, actor auth.Actor, note string) (*Request, error) {
	if err := actor.RequireAdmin(); err != nil {
		return nil, err
	}
	if d != Approve && d != Reject {
		return nil, ErrUnknownDecision
	}

	// The order id is needed to lock the order first.
	peek, err := w.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}

	var r *Request
	err = w.tx.InTx(ctx, func(ctx context.Context) error {
		o, err := w.orders.GetForUpdate(ctx, peek.OrderID)
		if err != nil {
			return err
		}
		if r, err = w.requests.GetForUpdate(ctx, requestID); err != nil {
			return err
		}
		if r.Status != StatusPending {
			return ErrRequestNotPending
		}

		now := w.now()
		r.AdminID = actor.ID
		r.AdminNote = strings.TrimSpace(note)
		r.ProcessedAt = &now
		r.Status = StatusRejected
		switch {
		case d == Approve && o.Status == order.StatusCancelled:
			// Cancelled directly while the request was pending.
			r.Status = StatusCompleted
		case d == Approve:
			if err := w.cancelLocked(ctx, o, actor.ID, note); err != nil {
				return err
			}
			r.Status = StatusCompleted
		}
		if err := w.requests.Update(ctx, r); err != nil {
			return errors.Wrap(err, "update request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Cancellation request resolved",
		zap.String("request_id", r.ID),
		zap.String("order_id", r.OrderID),
		zap.String("status", string(r.Status)),
	)
	w.publisher.Publish(ctx, notify.Event{
		Kind:    notify.CancellationResolved,
		OrderID: r.OrderID,
		UserID:  r.UserID,
		Status:  string(r.Status),
		Note:    r.AdminNote,
		At:      *r.ProcessedAt,
	})
	return r, nil
}

// List returns the cancellation requests of the order, oldest first.
func (w *Workflow) List(ctx context.Context, orderID string, actor auth.Actor) ([]Request, error) {
	if actor.IsZero() {
		return nil, auth.ErrUnauthenticated
	}
	o, err := w.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.UserID) {
		return nil, auth.ErrForbidden
	}
	requests, err := w.requests.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list requests")
	}
	return requests, nil
}
