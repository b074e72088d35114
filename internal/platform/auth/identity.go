package auth

import (
	"context"
	"strings"
)

// Identity captures the authenticated principal extracted from a Firebase ID token.
// Role-specific authorisation happens in the service layer against the stored
// user profile; the identity only proves who is calling.
type Identity struct {
	UID   string
	Email string
}

type identityContextKey struct{}

// WithIdentity stores the identity on the request context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity placed by the authentication middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}
