package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/order-engine/internal/domain/coupon"
)

const (
	findCouponSQL = `SELECT id, code, discount_type, discount_value, min_purchase_amount,
			max_discount_amount, usage_limit, used_count, valid_from, valid_until, is_active, description
		FROM coupons WHERE lower(code) = lower($1)`

	hasRedeemedSQL = `SELECT EXISTS (SELECT 1 FROM coupon_usage WHERE coupon_id = $1 AND user_id = $2)`

	incrementUsageSQL = `UPDATE coupons SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)`

	insertRedemptionSQL = `INSERT INTO coupon_usage (coupon_id, user_id, order_id, used_at)
		VALUES ($1, $2, $3, $4)`

	upsertCouponSQL = `INSERT INTO coupons (id, code, discount_type, discount_value, min_purchase_amount,
			max_discount_amount, usage_limit, valid_from, valid_until, is_active, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT ((lower(code))) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_purchase_amount = EXCLUDED.min_purchase_amount,
			max_discount_amount = EXCLUDED.max_discount_amount,
			usage_limit = EXCLUDED.usage_limit,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			is_active = EXCLUDED.is_active,
			description = EXCLUDED.description`

	couponUsageUniqueConstraint = "coupon_usage_coupon_user_key"
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db *DB
}

// NewCouponRepository returns a CouponRepository that uses db.
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// FindByCode looks a coupon up case-insensitively.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.db.q(ctx).Query(ctx, findCouponSQL, code)
	if err != nil {
		return nil, wrapErr(err, "find coupon")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, wrapErr(err, "find coupon")
	}
	return &c, nil
}

func (r *CouponRepository) HasRedeemed(ctx context.Context, couponID, userID string) (bool, error) {
	var used bool
	err := r.db.q(ctx).QueryRow(ctx, hasRedeemedSQL, couponID, userID).Scan(&used)
	return used, wrapErr(err, "check redemption")
}

// IncrementUsage bumps used_count only while it is below usage_limit, so two
// racing redemptions of the last use cannot both succeed.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string) error {
	tag, err := r.db.q(ctx).Exec(ctx, incrementUsageSQL, couponID)
	if err != nil {
		return wrapErr(err, "increment coupon usage")
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrUsageLimitReached
	}
	return nil
}

func (r *CouponRepository) InsertRedemption(ctx context.Context, red coupon.Redemption) error {
	_, err := r.db.q(ctx).Exec(ctx, insertRedemptionSQL, red.CouponID, red.UserID, red.OrderID, red.UsedAt)
	if isUniqueViolation(err, couponUsageUniqueConstraint) {
		return coupon.ErrAlreadyUsedByUser
	}
	return wrapErr(err, "insert redemption")
}

func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	_, err := r.db.q(ctx).Exec(ctx, upsertCouponSQL, upsertArgs(c)...)
	return wrapErr(err, "upsert coupon")
}

// UpsertMany upserts the coupons in batches of batchSize statements.
func (r *CouponRepository) UpsertMany(ctx context.Context, coupons []coupon.Coupon, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	for start := 0; start < len(coupons); start += batchSize {
		end := min(start+batchSize, len(coupons))
		b := &pgx.Batch{}
		for _, c := range coupons[start:end] {
			b.Queue(upsertCouponSQL, upsertArgs(c)...)
		}
		if err := r.db.q(ctx).SendBatch(ctx, b).Close(); err != nil {
			return wrapErr(err, "upsert coupon batch")
		}
	}
	return nil
}

func upsertArgs(c coupon.Coupon) []any {
	id := c.ID
	if id == "" {
		id = uuid.New().String()
	}
	return []any{
		id, c.Code, string(c.DiscountType), c.DiscountValue, c.MinPurchaseAmount,
		c.MaxDiscountAmount, c.UsageLimit, c.ValidFrom, c.ValidUntil, c.Active, c.Description,
	}
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.DiscountValue, &c.MinPurchaseAmount,
		&c.MaxDiscountAmount, &c.UsageLimit, &c.UsedCount, &c.ValidFrom, &c.ValidUntil, &c.Active, &c.Description,
	)
	if err != nil {
		return c, err
	}
	c.DiscountType, err = coupon.ParseDiscountType(discountType)
	return c, err
}
