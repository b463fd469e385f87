// Package cancellation cancels orders, either directly or through a request
// that an administrator approves or rejects.
package cancellation

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Status is the state of a cancellation request.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
)

// Outstanding reports whether the request still awaits a decision.
func (s Status) Outstanding() bool {
	return s == StatusPending || s == StatusProcessing
}

// ParseStatus converts s into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusProcessing, StatusCompleted:
		return st, nil
	default:
		return "", errors.Errorf("unknown cancellation request status %q", s)
	}
}

// Decision is an administrator's verdict on a request.
type Decision string

const (
	Approve Decision = "APPROVE"
	Reject  Decision = "REJECT"
)

// ParseDecision converts s into a Decision.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case Approve, Reject:
		return d, nil
	default:
		return "", errors.Wrapf(ErrUnknownDecision, "%q", s)
	}
}

var (
	ErrNotFound              = errors.New("cancellation request not found")
	ErrRequestAlreadyPending = errors.New("a cancellation request for this order is already pending")
	ErrRequestNotPending     = errors.New("cancellation request was already resolved")
	ErrReasonRequired        = errors.New("cancellation reason is required")
	ErrUnknownDecision       = errors.New("decision must be APPROVE or REJECT")
)

// Request is a customer's request to cancel an order.
type Request struct {
	ID          string
	OrderID     string
	UserID      string
	Reason      string
	Status      Status
	AdminID     string
	AdminNote   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Repository persists cancellation requests.
type Repository interface {
	// Create returns ErrRequestAlreadyPending when the order already has an
	// outstanding request.
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id string) (*Request, error)
	// GetForUpdate is Get holding a row lock until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Request, error)
	HasOutstanding(ctx context.Context, orderID string) (bool, error)
	// Update persists Status, AdminID, AdminNote and ProcessedAt.
	Update(ctx context.Context, r *Request) error
	ListByOrder(ctx context.Context, orderID string) ([]Request, error)
}
