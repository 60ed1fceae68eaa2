package middleware

import (
	"context"

	"fleet-tracker/internal/security"
)

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, id security.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller set by RequireAuth and true, or a zero Identity and false.
func IdentityFrom(ctx context.Context) (security.Identity, bool) {
	id, ok := ctx.Value(identityKey).(security.Identity)
	return id, ok
}
