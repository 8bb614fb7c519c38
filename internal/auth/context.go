package auth

import "context"

type ctxKey string

const ContextIdentityKey ctxKey = "identity"

func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, ContextIdentityKey, identity)
}

// IdentityFromContext returns the identity set by RequireAuth or OptionalAuth.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(ContextIdentityKey).(*Identity)
	return identity, ok && identity != nil
}
