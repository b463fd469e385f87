package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-engine/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, user_id, total, discount, coupon_code, status,
			shipping_address, tracking_number, created_at, updated_at, confirmed_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10, $11)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)`

	orderColumns = `id, user_id, total, discount, COALESCE(coupon_code, ''), status,
		shipping_address, COALESCE(tracking_number, ''), created_at, updated_at, confirmed_at`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderForUpdateSQL = getOrderSQL + ` FOR UPDATE`

	listOrderItemsSQL = `SELECT product_id, name, price, quantity FROM order_items
		WHERE order_id = $1 ORDER BY product_id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, tracking_number = NULLIF($3, ''),
			confirmed_at = $4, updated_at = $5
		WHERE id = $1`

	insertOrderEventSQL = `INSERT INTO order_status_history (id, order_id, actor_id, old_status, new_status, note, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), COALESCE($7, now()))`

	listOrderEventsSQL = `SELECT id, order_id, actor_id, COALESCE(old_status, ''), new_status,
			COALESCE(note, ''), created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY seq`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order row and its lines in one batch.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	b := &pgx.Batch{}
	b.Queue(insertOrderSQL,
		o.ID, o.UserID, o.Total, o.Discount, o.CouponCode, string(o.Status),
		o.ShippingAddress, o.TrackingNumber, o.CreatedAt, o.UpdatedAt, o.ConfirmedAt,
	)
	for _, l := range o.Lines {
		b.Queue(insertOrderItemSQL, o.ID, l.ProductID, l.Name, l.Price, l.Quantity)
	}
	if err := r.db.q(ctx).SendBatch(ctx, b).Close(); err != nil {
		return wrapErr(err, "insert order")
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.get(ctx, getOrderSQL, id)
}

// GetForUpdate locks the order row until the surrounding transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	if err := mustTx(ctx); err != nil {
		return nil, err
	}
	return r.get(ctx, getOrderForUpdateSQL, id)
}

func (r *OrderRepository) get(ctx context.Context, query, id string) (*order.Order, error) {
	q := r.db.q(ctx)
	rows, err := q.Query(ctx, query, id)
	if err != nil {
		return nil, wrapErr(err, "get order")
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, wrapErr(err, "get order")
	}

	rows, err = q.Query(ctx, listOrderItemsSQL, id)
	if err != nil {
		return nil, wrapErr(err, "list order items")
	}
	o.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Line, error) {
		var l order.Line
		err := row.Scan(&l.ProductID, &l.Name, &l.Price, &l.Quantity)
		return l, err
	})
	if err != nil {
		return nil, wrapErr(err, "list order items")
	}
	return &o, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order) error {
	tag, err := r.db.q(ctx).Exec(ctx, updateOrderStatusSQL,
		o.ID, string(o.Status), o.TrackingNumber, o.ConfirmedAt, o.UpdatedAt,
	)
	if err != nil {
		return wrapErr(err, "update order status")
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) AppendEvent(ctx context.Context, e order.Event) error {
	var createdAt any
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}
	_, err := r.db.q(ctx).Exec(ctx, insertOrderEventSQL,
		e.ID, e.OrderID, e.ActorID, string(e.OldStatus), string(e.NewStatus), e.Note, createdAt,
	)
	return wrapErr(err, "append order event")
}

// Events returns the history in insertion order.
func (r *OrderRepository) Events(ctx context.Context, orderID string) ([]order.Event, error) {
	rows, err := r.db.q(ctx).Query(ctx, listOrderEventsSQL, orderID)
	if err != nil {
		return nil, wrapErr(err, "list order events")
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Event, error) {
		var (
			e            order.Event
			oldSt, newSt string
		)
		err := row.Scan(&e.ID, &e.OrderID, &e.ActorID, &oldSt, &newSt, &e.Note, &e.CreatedAt)
		e.OldStatus, e.NewStatus = order.Status(oldSt), order.Status(newSt)
		return e, err
	})
	if err != nil {
		return nil, wrapErr(err, "list order events")
	}
	return events, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Total, &o.Discount, &o.CouponCode, &status,
		&o.ShippingAddress, &o.TrackingNumber, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status, err = order.ParseStatus(status)
	return o, err
}
