package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-engine/internal/domain/cancellation"
)

const (
	requestColumns = `id, order_id, user_id, reason, status, COALESCE(admin_id, ''),
		COALESCE(admin_note, ''), created_at, processed_at`

	insertRequestSQL = `INSERT INTO order_returns (id, order_id, user_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	getRequestSQL = `SELECT ` + requestColumns + ` FROM order_returns WHERE id = $1`

	getRequestForUpdateSQL = getRequestSQL + ` FOR UPDATE`

	hasOutstandingRequestSQL = `SELECT EXISTS (SELECT 1 FROM order_returns
		WHERE order_id = $1 AND status IN ('PENDING', 'PROCESSING'))`

	updateRequestSQL = `UPDATE order_returns SET status = $2, admin_id = NULLIF($3, ''),
			admin_note = NULLIF($4, ''), processed_at = $5
		WHERE id = $1`

	listRequestsSQL = `SELECT ` + requestColumns + ` FROM order_returns
		WHERE order_id = $1 ORDER BY created_at, id`

	outstandingRequestIndex = "order_returns_outstanding_idx"
)

var _ cancellation.Repository = (*CancellationRepository)(nil)

// CancellationRepository implements cancellation.Repository backed by
// PostgreSQL.
type CancellationRepository struct {
	db *DB
}

func NewCancellationRepository(db *DB) *CancellationRepository {
	return &CancellationRepository{db: db}
}

// Create inserts a pending request. The partial unique index on outstanding
// requests backs the one-open-request-per-order rule.
func (r *CancellationRepository) Create(ctx context.Context, req *cancellation.Request) error {
	_, err := r.db.q(ctx).Exec(ctx, insertRequestSQL,
		req.ID, req.OrderID, req.UserID, req.Reason, string(req.Status), req.CreatedAt,
	)
	if isUniqueViolation(err, outstandingRequestIndex) {
		return cancellation.ErrRequestAlreadyPending
	}
	return wrapErr(err, "insert cancellation request")
}

func (r *CancellationRepository) Get(ctx context.Context, id string) (*cancellation.Request, error) {
	return r.get(ctx, getRequestSQL, id)
}

func (r *CancellationRepository) GetForUpdate(ctx context.Context, id string) (*cancellation.Request, error) {
	if err := mustTx(ctx); err != nil {
		return nil, err
	}
	return r.get(ctx, getRequestForUpdateSQL, id)
}

func (r *CancellationRepository) get(ctx context.Context, query, id string) (*cancellation.Request, error) {
	rows, err := r.db.q(ctx).Query(ctx, query, id)
	if err != nil {
		return nil, wrapErr(err, "get cancellation request")
	}
	req, err := pgx.CollectExactlyOneRow(rows, scanRequest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cancellation.ErrNotFound
		}
		return nil, wrapErr(err, "get cancellation request")
	}
	return &req, nil
}

func (r *CancellationRepository) HasOutstanding(ctx context.Context, orderID string) (bool, error) {
	var found bool
	err := r.db.q(ctx).QueryRow(ctx, hasOutstandingRequestSQL, orderID).Scan(&found)
	return found, wrapErr(err, "check outstanding request")
}

func (r *CancellationRepository) Update(ctx context.Context, req *cancellation.Request) error {
	tag, err := r.db.q(ctx).Exec(ctx, updateRequestSQL,
		req.ID, string(req.Status), req.AdminID, req.AdminNote, req.ProcessedAt,
	)
	if err != nil {
		return wrapErr(err, "update cancellation request")
	}
	if tag.RowsAffected() == 0 {
		return cancellation.ErrNotFound
	}
	return nil
}

func (r *CancellationRepository) ListByOrder(ctx context.Context, orderID string) ([]cancellation.Request, error) {
	rows, err := r.db.q(ctx).Query(ctx, listRequestsSQL, orderID)
	if err != nil {
		return nil, wrapErr(err, "list cancellation requests")
	}
	reqs, err := pgx.CollectRows(rows, scanRequest)
	if err != nil {
		return nil, wrapErr(err, "list cancellation requests")
	}
	return reqs, nil
}

func scanRequest(row pgx.CollectableRow) (cancellation.Request, error) {
	var (
		req    cancellation.Request
		status string
	)
	err := row.Scan(
		&req.ID, &req.OrderID, &req.UserID, &req.Reason, &status,
		&req.AdminID, &req.AdminNote, &req.CreatedAt, &req.ProcessedAt,
	)
	if err != nil {
		return req, err
	}
	req.Status, err = cancellation.ParseStatus(status)
	return req, err
}
