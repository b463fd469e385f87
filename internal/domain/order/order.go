package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// transitions lists the allowed next states of every non-terminal status.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

// ParseStatus converts s into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Cancellable reports whether an order in status s may still be cancelled.
func (s Status) Cancellable() bool {
	return s.CanTransition(StatusCancelled)
}

// CanTransition reports whether to is a legal next state of s.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrUnknownStatus is returned for status values outside the lifecycle.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrTrackingNumberRequired is returned when shipping without a tracking number.
	ErrTrackingNumberRequired = errors.New("tracking number is required to ship an order")
	// ErrNotCancellable is returned when the order already left the
	// cancellable states.
	ErrNotCancellable = errors.New("order can no longer be cancelled")
)

// InvalidTransitionError reports a disallowed status change.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// Order is a placed customer order. Total is the gross sum of the lines;
// Discount is kept separately so the payable amount is Total - Discount.
type Order struct {
	ID              string
	UserID          string
	Total           decimal.Decimal
	Discount        decimal.Decimal
	CouponCode      string
	Status          Status
	ShippingAddress ShippingAddress
	TrackingNumber  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
	Lines           []Line
}

// Payable returns the amount the customer is charged.
func (o *Order) Payable() decimal.Decimal {
	return o.Total.Sub(o.Discount)
}

// Line is an ordered product with the name and price it had at checkout.
type Line struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

// Event is an entry of the append-only status history. OldStatus is empty
// for the creation event.
type Event struct {
	ID        string
	OrderID   string
	ActorID   string
	OldStatus Status
	NewStatus Status
	Note      string
	CreatedAt time.Time
}

// Repository defines persistence operations for orders and their history.
type Repository interface {
	// Create stores the order and its lines.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate is Get holding a row lock on the order until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// UpdateStatus persists Status, TrackingNumber, ConfirmedAt and UpdatedAt.
	UpdateStatus(ctx context.Context, o *Order) error
	AppendEvent(ctx context.Context, e Event) error
	// Events returns the history of the order, oldest first.
	Events(ctx context.Context, orderID string) ([]Event, error)
}
