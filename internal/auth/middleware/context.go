package auth

import (
	"context"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// Actor is the staff member behind an admin request.
type Actor struct {
	Subject string
	Role    string
}

func (a Actor) String() string {
	if a.Subject == "" {
		return "anonymous"
	}
	return a.Subject + " (" + a.Role + ")"
}

type actorKey struct{}

// WithActor stores the actor and exposes its role to rbac.
func WithActor(ctx context.Context, a Actor) context.Context {
	ctx = context.WithValue(ctx, actorKey{}, a)
	return rbac.WithRole(ctx, a.Role)
}

func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}
