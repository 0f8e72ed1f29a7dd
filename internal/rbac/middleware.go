package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tempora-app/tempora/internal/capability"
	"github.com/tempora-app/tempora/internal/platform/httpx"
	"github.com/tempora-app/tempora/internal/shared"
)

// Mode selects how a multi-capability requirement combines.
type Mode int

const (
	// ModeAll requires every listed capability.
	ModeAll Mode = iota
	// ModeAny requires at least one listed capability.
	ModeAny
)

// IdentityResolver supplies effective capability sets for an identity.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, identity *shared.Identity) (CapabilitySet, error)
}

// LockoutChecker reports whether a user currently has an active account
// lockout. A locked account is a hard block regardless of capabilities.
type LockoutChecker interface {
	HasActiveLockout(ctx context.Context, userID int64) (bool, error)
}

// GateMetrics receives authorization decision outcomes.
type GateMetrics interface {
	AuthzDecision(outcome string)
}

// Middleware is the request-time enforcement gate. Denials are a generic
// forbidden; the missing capability is logged server-side only.
type Middleware struct {
	Resolver IdentityResolver
	Lockouts LockoutChecker
	Logger   *slog.Logger
	Metrics  GateMetrics
}

// RequireCapability gates a route on a single capability.
func (m Middleware) RequireCapability(cap string) func(http.Handler) http.Handler {
	return m.RequireCapabilities(ModeAll, cap)
}

// RequireCapabilities gates a route on a capability list combined with
// the given mode. Capability strings are compiled-in constants; unknown
// syntax is a programmer error and panics at wire-up.
func (m Middleware) RequireCapabilities(mode Mode, caps ...string) func(http.Handler) http.Handler {
	required := make([]capability.Capability, len(caps))
	for i, raw := range caps {
		required[i] = capability.MustParse(raw)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := shared.IdentityFromContext(r.Context())
			if identity == nil {
				m.decide(w, r, "unauthenticated", shared.ErrUnauthenticated, required)
				return
			}

			if m.Lockouts != nil {
				locked, err := m.Lockouts.HasActiveLockout(r.Context(), identity.UserID)
				if err != nil {
					m.fail(w, r, err)
					return
				}
				if locked {
					m.decide(w, r, "locked", shared.ErrForbidden, required)
					return
				}
			}

			set, err := m.Resolver.ResolveIdentity(r.Context(), identity)
			if err != nil {
				m.fail(w, r, err)
				return
			}

			allowed := set.HasAll(required)
			if mode == ModeAny {
				allowed = set.HasAny(required)
			}
			if !allowed {
				m.decide(w, r, "forbidden", shared.ErrForbidden, required)
				return
			}

			if m.Metrics != nil {
				m.Metrics.AuthzDecision("allow")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) decide(w http.ResponseWriter, r *http.Request, outcome string, err error, required []capability.Capability) {
	if m.Metrics != nil {
		m.Metrics.AuthzDecision(outcome)
	}
	if m.Logger != nil && outcome != "unauthenticated" {
		names := make([]string, len(required))
		for i, cap := range required {
			names[i] = cap.String()
		}
		m.Logger.Info("authz denied",
			slog.String("outcome", outcome),
			slog.String("path", r.URL.Path),
			slog.Any("required", names),
		)
	}
	httpx.RespondError(w, err)
}

func (m Middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	if m.Metrics != nil {
		m.Metrics.AuthzDecision("error")
	}
	if m.Logger != nil {
		m.Logger.Error("authz resolution", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
