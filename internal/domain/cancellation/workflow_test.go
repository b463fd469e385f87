package cancellation_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/order-engine/internal/domain/auth"
	"github.com/xenking/order-engine/internal/domain/cancellation"
	"github.com/xenking/order-engine/internal/domain/notify"
	"github.com/xenking/order-engine/internal/domain/order"
	"github.com/xenking/order-engine/internal/domain/product"
	"github.com/xenking/order-engine/internal/storage/memory"
)

var (
	owner    = auth.Actor{ID: "user-1"}
	stranger = auth.Actor{ID: "user-2"}
	admin    = auth.Actor{ID: "admin-1", Admin: true}
)

type fixture struct {
	store    *memory.Store
	orders   *order.Service
	workflow *cancellation.Workflow
}

// newFixture stores order o1 owned by owner in the given status, holding two
// units of product A whose remaining stock is 3.
func newFixture(t *testing.T, status order.Status) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	store.PutProduct(product.Product{ID: "A", Name: "Alpha", Price: decimal.NewFromInt(100), Stock: 3})
	require.NoError(t, store.Orders().Create(ctx, &order.Order{
		ID:        "o1",
		UserID:    owner.ID,
		Total:     decimal.NewFromInt(200),
		Status:    status,
		CreatedAt: time.Now(),
		Lines:     []order.Line{{ProductID: "A", Name: "Alpha", Price: decimal.NewFromInt(100), Quantity: 2}},
	}))

	orders := order.NewService(store.Orders(), product.NewStock(store.Products()), store, notify.Discard{})
	wf := cancellation.NewWorkflow(store, store.Orders(), store.Requests(), orders, nil)
	return &fixture{store: store, orders: orders, workflow: wf}
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	p, ok := f.store.Product("A")
	require.True(t, ok)
	return p.Stock
}

func (f *fixture) events(t *testing.T) []order.Event {
	t.Helper()
	events, err := f.store.Orders().Events(context.Background(), "o1")
	require.NoError(t, err)
	return events
}

func TestWorkflow_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels confirmed order", func(t *testing.T) {
		f := newFixture(t, order.StatusConfirmed)

		o, err := f.workflow.Cancel(ctx, "o1", owner, "")
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, o.Status)
		assert.Equal(t, 5, f.stock(t))

		events := f.events(t)
		require.Len(t, events, 1)
		assert.Equal(t, order.StatusConfirmed, events[0].OldStatus)
		assert.Equal(t, order.StatusCancelled, events[0].NewStatus)
		assert.Equal(t, "order cancelled", events[0].Note)
		assert.Equal(t, owner.ID, events[0].ActorID)
	})

	t.Run("admin cancels with note", func(t *testing.T) {
		f := newFixture(t, order.StatusPending)
		_, err := f.workflow.Cancel(ctx, "o1", admin, "fraud check")
		require.NoError(t, err)
		assert.Equal(t, "fraud check", f.events(t)[0].Note)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		f := newFixture(t, order.StatusPending)
		_, err := f.workflow.Cancel(ctx, "o1", stranger, "")
		require.ErrorIs(t, err, auth.ErrForbidden)
		assert.Equal(t, 3, f.stock(t))
		assert.Empty(t, f.events(t))
	})

	t.Run("shipped order is not cancellable", func(t *testing.T) {
		f := newFixture(t, order.StatusShipped)
		_, err := f.workflow.Cancel(ctx, "o1", owner, "")
		require.ErrorIs(t, err, order.ErrNotCancellable)
		assert.Equal(t, 3, f.stock(t))
	})

	t.Run("second cancel restores nothing", func(t *testing.T) {
		f := newFixture(t, order.StatusPending)
		_, err := f.workflow.Cancel(ctx, "o1", owner, "")
		require.NoError(t, err)
		_, err = f.workflow.Cancel(ctx, "o1", owner, "")
		require.ErrorIs(t, err, order.ErrNotCancellable)
		assert.Equal(t, 5, f.stock(t))
		assert.Len(t, f.events(t), 1)
	})

	t.Run("missing order", func(t *testing.T) {
		f := newFixture(t, order.StatusPending)
		_, err := f.workflow.Cancel(ctx, "nope", owner, "")
		require.ErrorIs(t, err, order.ErrNotFound)
	})
}

func TestWorkflow_RequestAndApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, order.StatusConfirmed)

	r, err := f.workflow.RequestCancellation(ctx, "o1", owner, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, cancellation.StatusPending, r.Status)
	assert.Equal(t, 3, f.stock(t), "request alone has no effect")

	_, err = f.workflow.RequestCancellation(ctx, "o1", owner, "again")
	require.ErrorIs(t, err, cancellation.ErrRequestAlreadyPending)

	_, err = f.workflow.Resolve(ctx, r.ID, cancellation.Approve, owner, "")
	require.ErrorIs(t, err, auth.ErrForbidden)

	resolved, err := f.workflow.Resolve(ctx, r.ID, cancellation.Approve, admin, "ok")
	require.NoError(t, err)
	assert.Equal(t, cancellation.StatusCompleted, resolved.Status)
	assert.Equal(t, admin.ID, resolved.AdminID)
	require.NotNil(t, resolved.ProcessedAt)

	o, err := f.orders.Get(ctx, "o1", owner)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Equal(t, 5, f.stock(t))
	require.Len(t, f.events(t), 1)

	_, err = f.workflow.Resolve(ctx, r.ID, cancellation.Reject, admin, "")
	require.ErrorIs(t, err, cancellation.ErrRequestNotPending)
}

func TestWorkflow_RequestAndReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, order.StatusPending)

	r, err := f.workflow.RequestCancellation(ctx, "o1", owner, "wrong size")
	require.NoError(t, err)

	resolved, err := f.workflow.Resolve(ctx, r.ID, cancellation.Reject, admin, "already packed")
	require.NoError(t, err)
	assert.Equal(t, cancellation.StatusRejected, resolved.Status)
	assert.Equal(t, "already packed", resolved.AdminNote)

	o, err := f.orders.Get(ctx, "o1", admin)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, 3, f.stock(t))
	assert.Empty(t, f.events(t))

	// A rejected request no longer blocks a new one.
	_, err = f.workflow.RequestCancellation(ctx, "o1", owner, "please")
	require.NoError(t, err)

	list, err := f.workflow.List(ctx, "o1", owner)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.workflow.List(ctx, "o1", stranger)
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestWorkflow_ApproveAfterShippingFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, order.StatusConfirmed)

	r, err := f.workflow.RequestCancellation(ctx, "o1", owner, "late")
	require.NoError(t, err)

	_, err = f.orders.Transition(ctx, "o1", order.Change{To: order.StatusShipped, TrackingNumber: "TRK"}, admin)
	require.NoError(t, err)

	_, err = f.workflow.Resolve(ctx, r.ID, cancellation.Approve, admin, "")
	require.ErrorIs(t, err, order.ErrNotCancellable)

	req, err := f.store.Requests().Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, cancellation.StatusPending, req.Status)
	assert.Equal(t, 3, f.stock(t))
}

func TestWorkflow_ApproveAfterDirectCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, order.StatusConfirmed)

	r, err := f.workflow.RequestCancellation(ctx, "o1", owner, "changed my mind")
	require.NoError(t, err)

	_, err = f.workflow.Cancel(ctx, "o1", admin, "")
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t))

	resolved, err := f.workflow.Resolve(ctx, r.ID, cancellation.Approve, admin, "already done")
	require.NoError(t, err)
	assert.Equal(t, cancellation.StatusCompleted, resolved.Status)
	assert.Equal(t, 5, f.stock(t), "stock restored once")
	assert.Len(t, f.events(t), 1)

	outstanding, err := f.store.Requests().HasOutstanding(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, outstanding)
}

func TestWorkflow_RequestValidation(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, order.StatusPending)
	_, err := f.workflow.RequestCancellation(ctx, "o1", owner, "   ")
	require.ErrorIs(t, err, cancellation.ErrReasonRequired)

	_, err = f.workflow.RequestCancellation(ctx, "o1", stranger, "mine now")
	require.ErrorIs(t, err, auth.ErrForbidden)

	f = newFixture(t, order.StatusDelivered)
	_, err = f.workflow.RequestCancellation(ctx, "o1", owner, "too late")
	require.ErrorIs(t, err, order.ErrNotCancellable)

	_, err = f.workflow.Resolve(ctx, "missing", cancellation.Approve, admin, "")
	require.ErrorIs(t, err, cancellation.ErrNotFound)
}

func TestParseDecision(t *testing.T) {
	d, err := cancellation.ParseDecision("approve")
	require.NoError(t, err)
	assert.Equal(t, cancellation.Approve, d)

	_, err = cancellation.ParseDecision("maybe")
	require.True(t, errors.Is(err, cancellation.ErrUnknownDecision))
}
