package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the subtotal, optionally
	// capped by MaxDiscountAmount.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixed takes a fixed amount off the subtotal.
	DiscountFixed DiscountType = "FIXED"
)

// ErrUnknownDiscountType is returned by ParseDiscountType for values outside
// the closed set of discount types.
var ErrUnknownDiscountType = errors.New("unknown discount type")

// ParseDiscountType converts s (case-insensitive) into a DiscountType.
func ParseDiscountType(s string) (DiscountType, error) {
	switch t := DiscountType(strings.ToUpper(strings.TrimSpace(s))); t {
	case DiscountPercentage, DiscountFixed:
		return t, nil
	default:
		return "", errors.Wrapf(ErrUnknownDiscountType, "%q", s)
	}
}

// Rule violations, reported in this order by Ledger.Validate.
var (
	ErrNotFound             = errors.New("coupon not found")
	ErrInactive             = errors.New("coupon is not active")
	ErrNotYetValid          = errors.New("coupon is not yet valid")
	ErrExpired              = errors.New("coupon expired")
	ErrUsageLimitReached    = errors.New("coupon usage limit reached")
	ErrBelowMinimumPurchase = errors.New("order total is below the coupon minimum purchase amount")
	ErrAlreadyUsedByUser    = errors.New("coupon already used by this user")
)

// Coupon is a discount code and its eligibility constraints.
type Coupon struct {
	ID                string
	Code              string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MinPurchaseAmount decimal.NullDecimal
	MaxDiscountAmount decimal.NullDecimal
	// UsageLimit is nil for unlimited coupons.
	UsageLimit  *int
	UsedCount   int
	ValidFrom   time.Time
	ValidUntil  *time.Time
	Active      bool
	Description string
}

// Discount is the outcome of applying a coupon to a subtotal.
type Discount struct {
	CouponID    string
	Code        string
	Amount      decimal.Decimal
	Description string
}

// Redemption records that a user spent a coupon on an order.
type Redemption struct {
	CouponID string
	UserID   string
	OrderID  string
	UsedAt   time.Time
}

// Repository provides lookup and redemption bookkeeping for coupons.
type Repository interface {
	// FindByCode looks the coupon up case-insensitively and returns
	// ErrNotFound when there is none.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	HasRedeemed(ctx context.Context, couponID, userID string) (bool, error)
	// IncrementUsage bumps used_count unless the usage limit is already
	// reached, in which case it returns ErrUsageLimitReached.
	IncrementUsage(ctx context.Context, couponID string) error
	// InsertRedemption returns ErrAlreadyUsedByUser when the user already
	// redeemed the coupon.
	InsertRedemption(ctx context.Context, r Redemption) error
	// Upsert creates the coupon or updates the rule of an existing one with
	// the same code. Usage counters are left untouched.
	Upsert(ctx context.Context, c Coupon) error
}

// NormalizeCode trims and upper-cases a user-supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
