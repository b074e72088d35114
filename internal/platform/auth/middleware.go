package auth

import (
	"context"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/mealhub/api/internal/platform/httpx"
)

const debugUIDHeader = "X-Debug-UID"

// TokenVerifier abstracts Firebase token verification for testability.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator authenticates incoming requests and stores the identity in context.
type Authenticator struct {
	verifier TokenVerifier
	// disabled skips verification and trusts the debug header; only ever
	// enabled for local development against the emulator.
	disabled bool
}

// Option customises Authenticator construction.
type Option func(*Authenticator)

// WithVerificationDisabled turns off token verification (local development only).
func WithVerificationDisabled() Option {
	return func(a *Authenticator) { a.disabled = true }
}

// NewAuthenticator constructs an Authenticator around the supplied verifier.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	authn := &Authenticator{verifier: verifier}
	for _, opt := range opts {
		if opt != nil {
			opt(authn)
		}
	}
	return authn
}

// RequireAuth rejects requests without a valid bearer token and injects the
// resulting identity into the request context.
func (a *Authenticator) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if a == nil || (a.verifier == nil && !a.disabled) {
				httpx.WriteError(ctx, w, httpx.NewError("auth_unavailable", "authentication unavailable", http.StatusServiceUnavailable))
				return
			}

			if a.disabled {
				uid := strings.TrimSpace(r.Header.Get(debugUIDHeader))
				if uid == "" {
					httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
					return
				}
				next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, &Identity{UID: uid})))
				return
			}

			rawToken, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "bearer token required", http.StatusUnauthorized))
				return
			}

			token, err := a.verifier.VerifyIDToken(ctx, rawToken)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "token verification failed", http.StatusUnauthorized))
				return
			}

			identity := &Identity{UID: token.UID}
			if email, ok := token.Claims["email"].(string); ok {
				identity.Email = strings.TrimSpace(email)
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
