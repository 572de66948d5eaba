package shared

import (
	"context"
	"strings"
)

// Actor identifies who performed an operation. It is recorded, never
// authenticated, by this service.
type Actor struct {
	ID   string
	Name string
}

// SystemActor is used when a request carries no identity.
var SystemActor = Actor{ID: "system", Name: "System"}

// Label is the value stored in audit and transition records.
func (a Actor) Label() string {
	switch {
	case a.ID == "":
		return SystemActor.ID
	case a.Name == "":
		return a.ID
	default:
		return a.ID + " (" + a.Name + ")"
	}
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	actor.ID = strings.TrimSpace(actor.ID)
	actor.Name = strings.TrimSpace(actor.Name)
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor, falling back to SystemActor.
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorContextKey{}).(Actor); ok && actor.ID != "" {
		return actor
	}
	return SystemActor
}
