package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthenticated is returned when an operation requires a known caller.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the caller is neither the owner of the
	// resource nor an administrator.
	ErrForbidden = errors.New("forbidden")
)

// Actor identifies the caller of an operation.
type Actor struct {
	ID    string
	Admin bool
}

// IsZero reports whether the actor carries no identity.
func (a Actor) IsZero() bool {
	return a.ID == ""
}

// CanAccess reports whether the actor may read or act on a resource owned by
// ownerID.
func (a Actor) CanAccess(ownerID string) bool {
	return !a.IsZero() && (a.Admin || a.ID == ownerID)
}

// RequireAdmin returns ErrUnauthenticated or ErrForbidden unless the actor is
// an administrator.
func (a Actor) RequireAdmin() error {
	if a.IsZero() {
		return ErrUnauthenticated
	}
	if !a.Admin {
		return ErrForbidden
	}
	return nil
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor stored in ctx, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok && !a.IsZero()
}
