package impersonation

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tempora-app/tempora/internal/platform/httpx"
	"github.com/tempora-app/tempora/internal/rbac"
	"github.com/tempora-app/tempora/internal/shared"
)

// Handler wires HTTP endpoints for the impersonation lifecycle.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers impersonation routes. Starting requires the
// dedicated capability; stopping only requires being the admin of the
// running session, since the impersonation token itself must be able to
// end it.
func (h *Handler) MountRoutes(r chi.Router, gate rbac.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireCapability(shared.CapImpersonationStart))
		r.Post("/", h.start)
	})
	r.Delete("/current", h.stop)
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireCapability(shared.CapAuditRead))
		r.Get("/sessions", h.list)
	})
}

type startForm struct {
	TargetUserID int64 `json:"target_user_id" validate:"required,gt=0"`
}

type sessionView struct {
	ID           int64      `json:"id"`
	AdminUserID  int64      `json:"admin_user_id"`
	AdminEmail   string     `json:"admin_email"`
	TargetUserID int64      `json:"target_user_id"`
	State        string     `json:"state"`
	IP           string     `json:"ip,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

type startResponse struct {
	Token   string      `json:"token"`
	Session sessionView `json:"session"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	var form startForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed body")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "target_user_id is required")
		return
	}

	result, err := h.service.Start(r.Context(), identity, form.TargetUserID, clientIP(r), r.UserAgent())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, startResponse{Token: result.Token, Session: toView(result.Session)})
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	if err := h.service.Stop(r.Context(), identity); err != nil {
		httpx.RespondError(w, err)
		return
	}
	// The whole auth session is gone; the client must log in again.
	httpx.JSON(w, http.StatusOK, map[string]any{"ended": true, "reauthentication_required": true})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	list, pagination, err := h.service.List(r.Context(), identity.TenantID, page, perPage)
	if err != nil {
		h.logger.Error("list impersonation sessions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]sessionView, len(list))
	for i, sess := range list {
		views[i] = toView(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sessions": views, "pagination": pagination})
}

func toView(sess Session) sessionView {
	return sessionView{
		ID:           sess.ID,
		AdminUserID:  sess.AdminUserID,
		AdminEmail:   sess.AdminEmail,
		TargetUserID: sess.TargetUserID,
		State:        string(sess.State()),
		IP:           sess.IP,
		UserAgent:    sess.UserAgent,
		StartedAt:    sess.StartedAt,
		EndedAt:      sess.EndedAt,
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
