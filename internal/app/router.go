package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tempora-app/tempora/internal/audit"
	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/impersonation"
	"github.com/tempora-app/tempora/internal/observability"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/shared"
	"github.com/tempora-app/tempora/internal/tenants"
	"github.com/tempora-app/tempora/internal/users"
	"github.com/tempora-app/tempora/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	Authenticator        auth.Middleware
	Gate                 rbac.Middleware
	AuthHandler          *auth.Handler
	AuditHandler         *audit.Handler
	TenantsHandler       *tenants.Handler
	UsersHandler         *users.Handler
	RBACHandler          *rbac.Handler
	ImpersonationHandler *impersonation.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with Tempora defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:        params.Logger,
		Config:        params.Config,
		Authenticator: params.Authenticator,
		Metrics:       params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Route("/users", func(r chi.Router) {
			r.Use(auth.RequireIdentity)
			r.Group(func(r chi.Router) {
				r.Use(params.Gate.RequireCapability(shared.CapUsersRead))
				params.UsersHandler.MountRoutes(r)
			})
			params.RBACHandler.MountAssignmentRoutes(r, params.Gate)
		})

		r.Route("/roles", func(r chi.Router) {
			r.Use(auth.RequireIdentity)
			params.RBACHandler.MountRoutes(r, params.Gate)
		})

		r.Route("/capabilities", func(r chi.Router) {
			r.Use(auth.RequireIdentity)
			params.RBACHandler.MountCatalogRoutes(r, params.Gate)
		})

		r.Route("/tenant", func(r chi.Router) {
			r.Use(auth.RequireIdentity)
			params.TenantsHandler.MountRoutes(r)
		})

		r.Route("/me", func(r chi.Router) {
			r.Use(auth.RequireIdentity)
			params.RBACHandler.MountSelfRoutes(r)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Use(auth.RequireIdentity)
			r.Use(params.Gate.RequireCapability(shared.CapAuditRead))
			params.AuditHandler.MountRoutes(r)
		})

		r.Route("/impersonation", func(r chi.Router) {
			r.Use(auth.RequireIdentity)
			params.ImpersonationHandler.MountRoutes(r, params.Gate)
		})

		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
