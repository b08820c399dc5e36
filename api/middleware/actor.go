package middleware

import "context"

// Actor is the authenticated caller attached to admin requests.
type Actor struct {
	Subject string
	Role    string
}

type actorKey struct{}

// WithActor stores the caller on the context.
func WithActor(ctx context.Context, subject, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, Actor{Subject: subject, Role: role})
}

// ActorFromContext returns the caller and whether one was attached.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

func SubjectFromContext(ctx context.Context) string {
	a, _ := ActorFromContext(ctx)
	return a.Subject
}

func RoleFromContext(ctx context.Context) string {
	a, _ := ActorFromContext(ctx)
	return a.Role
}
