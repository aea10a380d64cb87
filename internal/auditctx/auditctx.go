// Package auditctx carries the acting user through a request's context
// so service layers can attribute their side effects.
package auditctx

import "context"

// Actor identifies who initiated the current request and from where.
type Actor struct {
	UserName  string
	IPAddress string
	UserAgent string
}

type actorKey struct{}

// WithActor returns a context carrying the actor. A nil parent is
// tolerated.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// FromContext reports the actor stored by WithActor, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
