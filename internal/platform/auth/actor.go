package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrForbidden = errors.New("forbidden")

// Actor is the authorization context for one privileged action. It is built
// once per request from the verified token and passed explicitly to every
// ledger operation, which re-validates it before doing any I/O.
type Actor struct {
	ID        string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ActorFromContext builds the actor from values placed on ctx by the auth middleware.
func ActorFromContext(ctx context.Context) Actor {
	a := Actor{
		ID:    UserIDFromContext(ctx),
		Roles: RolesFromContext(ctx),
	}
	a.IssuedAt, _ = ctx.Value(IssuedAtKey).(time.Time)
	a.ExpiresAt, _ = ctx.Value(ExpiresAtKey).(time.Time)
	return a
}

// WithActor stores a on ctx under the same keys the auth middleware uses.
func WithActor(ctx context.Context, a Actor) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, a.ID)
	ctx = context.WithValue(ctx, UserRolesKey, a.Roles)
	if !a.IssuedAt.IsZero() {
		ctx = context.WithValue(ctx, IssuedAtKey, a.IssuedAt)
	}
	if !a.ExpiresAt.IsZero() {
		ctx = context.WithValue(ctx, ExpiresAtKey, a.ExpiresAt)
	}
	return ctx
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize checks that the actor is an identified, unexpired administrator.
// A zero ExpiresAt means the capability does not expire.
func (a Actor) Authorize(now time.Time) error {
	if a.ID == "" {
		return fmt.Errorf("%w: anonymous actor", ErrForbidden)
	}
	if !a.HasRole(RoleAdmin) {
		return fmt.Errorf("%w: actor %s is not an administrator", ErrForbidden, a.ID)
	}
	if !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt) {
		return fmt.Errorf("%w: authorization for %s expired at %s", ErrForbidden, a.ID, a.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
