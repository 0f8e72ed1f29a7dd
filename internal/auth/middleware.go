package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tempora-app/tempora/internal/platform/httpx"
	"github.com/tempora-app/tempora/internal/shared"
)

// Middleware extracts the authenticated identity from a bearer token.
// Requests without an Authorization header pass through anonymously; the
// enforcement gate rejects them where an identity is required. A header
// that is present but invalid, expired or bound to a revoked session is
// rejected here with 401.
type Middleware struct {
	Tokens   *TokenIssuer
	Sessions *SessionStore
	Logger   *slog.Logger
}

// Authenticate is the identity-extraction middleware.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}

		claims, err := m.Tokens.Verify(raw)
		if err != nil {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}

		// Liveness: a signed, unexpired token is still dead once its
		// session has been revoked.
		if _, err := m.Sessions.Get(r.Context(), claims.SessionID); err != nil {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}

		identity, err := claims.Identity()
		if err != nil {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}

		ctx := shared.ContextWithIdentity(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects anonymous requests on routes that need an
// authenticated identity but no particular capability.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.IdentityFromContext(r.Context()) == nil {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}
