package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Ledger evaluates coupon rules and records redemptions.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger backed by the given Repository.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Validate checks every rule of the coupon against userID and subtotal and
// returns the discount it would grant. Nothing is written. The first failing
// rule is reported, in the order: not found, inactive, not yet valid,
// expired, usage limit, minimum purchase, already used by the user.
//
// An empty userID skips the per-user check.
func (l *Ledger) Validate(ctx context.Context, code, userID string, subtotal decimal.Decimal) (*Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrNotFound
	}
	c, err := l.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if err := l.checkRules(c, subtotal); err != nil {
		return nil, err
	}

	if userID != "" {
		used, err := l.repo.HasRedeemed(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "check redemption")
		}
		if used {
			return nil, ErrAlreadyUsedByUser
		}
	}

	amount, err := Compute(c, subtotal)
	if err != nil {
		return nil, err
	}
	return &Discount{
		CouponID:    c.ID,
		Code:        c.Code,
		Amount:      amount,
		Description: c.Description,
	}, nil
}

func (l *Ledger) checkRules(c *Coupon, subtotal decimal.Decimal) error {
	now := l.now()
	switch {
	case !c.Active:
		return ErrInactive
	case now.Before(c.ValidFrom):
		return ErrNotYetValid
	case c.ValidUntil != nil && now.After(*c.ValidUntil):
		return ErrExpired
	case c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit:
		return ErrUsageLimitReached
	case c.MinPurchaseAmount.Valid && subtotal.LessThan(c.MinPurchaseAmount.Decimal):
		return ErrBelowMinimumPurchase
	}
	return nil
}

// Redeem spends the coupon of d for userID on orderID. It must run in the
// same transaction that created the order. The usage counter is incremented
// only while below the limit, and the (coupon, user) uniqueness of
// redemptions rejects a second use even when two checkouts race past
// Validate.
func (l *Ledger) Redeem(ctx context.Context, d *Discount, userID, orderID string) error {
	if err := l.repo.IncrementUsage(ctx, d.CouponID); err != nil {
		if errors.Is(err, ErrUsageLimitReached) {
			return ErrUsageLimitReached
		}
		return errors.Wrap(err, "increment coupon usage")
	}
	err := l.repo.InsertRedemption(ctx, Redemption{
		CouponID: d.CouponID,
		UserID:   userID,
		OrderID:  orderID,
		UsedAt:   l.now(),
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyUsedByUser) {
			return ErrAlreadyUsedByUser
		}
		return errors.Wrap(err, "insert redemption")
	}
	return nil
}
