// Package notify describes the fire-and-forget events emitted after order
// state changes commit.
package notify

import (
	"context"
	"time"
)

// Kind names an event type.
type Kind string

const (
	OrderCreated          Kind = "order.created"
	OrderStatusChanged    Kind = "order.status_changed"
	OrderCancelled        Kind = "order.cancelled"
	CancellationRequested Kind = "cancellation.requested"
	CancellationResolved  Kind = "cancellation.resolved"
)

// Event is a notification about a committed change.
type Event struct {
	Kind    Kind
	OrderID string
	UserID  string
	Status  string
	Note    string
	At      time.Time
}

// Publisher accepts events for delivery. Publish must not block the caller
// for long and its failure never affects the committed change.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Discard is a Publisher that drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) {}
