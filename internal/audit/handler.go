package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tempora-app/tempora/internal/platform/httpx"
	"github.com/tempora-app/tempora/internal/shared"
)

// Handler wires HTTP endpoints for the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes on the provided router. Capability
// requirements are applied by the caller.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
}

type entryView struct {
	ID        int64           `json:"id"`
	ActorID   int64           `json:"actor_id"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	IP        string          `json:"ip,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
	At        time.Time       `json:"at"`
}

type timelineResponse struct {
	Entries    []entryView       `json:"entries"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}

	filters, page := parseQuery(r)
	entries, pagination, err := h.service.Timeline(r.Context(), identity.TenantID, filters, page)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	views := make([]entryView, len(entries))
	for i, e := range entries {
		views[i] = entryView{
			ID:        e.ID,
			ActorID:   e.ActorID,
			Action:    e.Action,
			Entity:    e.Entity,
			EntityID:  e.EntityID,
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Meta:      e.Meta,
			At:        e.At,
		}
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{Entries: views, Pagination: pagination})
}

func parseQuery(r *http.Request) (TimelineFilters, shared.Pagination) {
	q := r.URL.Query()

	var filters TimelineFilters
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.From = t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filters.To = t
		}
	}
	if v := q.Get("actor_id"); v != "" {
		filters.ActorID, _ = strconv.ParseInt(v, 10, 64)
	}
	filters.Action = q.Get("action")
	filters.Entity = q.Get("entity")

	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return filters, shared.NewPagination(page, perPage, 0)
}
