package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mealhub/api/internal/platform/httpx"
)

const internalTokenHeader = "X-Internal-Token"

// RequireInternalToken guards operational routes with a shared secret. An
// empty configured token rejects every request rather than opening the
// routes up.
func RequireInternalToken(token string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := []byte(strings.TrimSpace(r.Header.Get(internalTokenHeader)))
			if len(expected) == 0 || subtle.ConstantTimeCompare(expected, presented) != 1 {
				httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "internal token required", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
