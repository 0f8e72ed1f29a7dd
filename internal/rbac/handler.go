package rbac

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tempora-app/tempora/internal/capability"
	"github.com/tempora-app/tempora/internal/platform/httpx"
	"github.com/tempora-app/tempora/internal/shared"
)

// Handler wires HTTP endpoints for role administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	resolver  IdentityResolver
	catalog   *capability.Catalog
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver IdentityResolver, catalog *capability.Catalog) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		resolver:  resolver,
		catalog:   catalog,
		validator: validator.New(),
	}
}

// MountRoutes registers role administration routes. Read and write
// operations carry separate capability requirements.
func (h *Handler) MountRoutes(r chi.Router, gate Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireCapability(shared.CapRolesRead))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
		r.Get("/{id}/capabilities", h.listGrants)
	})
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireCapability(shared.CapRolesWrite))
		r.Post("/", h.createRole)
		r.Put("/{id}", h.updateRole)
		r.Delete("/{id}", h.deleteRole)
		r.Put("/{id}/capabilities", h.setGrants)
	})
}

// MountAssignmentRoutes registers user-role assignment under the users
// subtree.
func (h *Handler) MountAssignmentRoutes(r chi.Router, gate Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireCapability(shared.CapRolesAssign))
		r.Post("/{id}/roles", h.assignRole)
		r.Delete("/{id}/roles/{roleID}", h.removeRole)
	})
}

// MountSelfRoutes registers the authenticated identity's own capability
// listing. Any valid identity may read its own effective set.
func (h *Handler) MountSelfRoutes(r chi.Router) {
	r.Get("/capabilities", h.myCapabilities)
}

// MountCatalogRoutes registers capability catalog listing.
func (h *Handler) MountCatalogRoutes(r chi.Router, gate Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(gate.RequireCapability(shared.CapCapabilitiesRead))
		r.Get("/", h.listCapabilities)
	})
}

type roleView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsSeeded    bool   `json:"is_seeded"`
	IsGlobal    bool   `json:"is_global"`
}

type grantView struct {
	Capability string `json:"capability"`
	IsAllowed  bool   `json:"is_allowed"`
}

type roleForm struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Description string `json:"description" validate:"max=255"`
}

type grantEntry struct {
	Capability string `json:"capability" validate:"required"`
	IsAllowed  bool   `json:"is_allowed"`
}

type grantsForm struct {
	Capabilities []grantEntry `json:"capabilities" validate:"required,dive"`
}

type assignForm struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	roles, err := h.service.ListRoles(r.Context(), identity.TenantID)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]roleView, len(roles))
	for i, role := range roles {
		views[i] = toRoleView(role)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	role, err := h.service.GetRole(r.Context(), identity.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	var form roleForm
	if err := h.decodeValid(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), identity, form.Name, form.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleView(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	var form roleForm
	if err := h.decodeValid(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), identity, id, form.Name, form.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleView(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	if err := h.service.DeleteRole(r.Context(), identity, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	grants, err := h.service.ListGrants(r.Context(), identity.TenantID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]grantView, len(grants))
	for i, grant := range grants {
		views[i] = grantView{Capability: grant.Capability.String(), IsAllowed: grant.IsAllowed}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capabilities": views})
}

func (h *Handler) setGrants(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	var form grantsForm
	if err := h.decodeValid(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inputs := make([]GrantInput, len(form.Capabilities))
	for i, entry := range form.Capabilities {
		inputs[i] = GrantInput{Capability: entry.Capability, IsAllowed: entry.IsAllowed}
	}
	if err := h.service.SetGrants(r.Context(), identity, id, inputs); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	userID, ok := pathID(r, "id")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	var form assignForm
	if err := h.decodeValid(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignRole(r.Context(), identity, userID, form.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	userID, ok := pathID(r, "id")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	roleID, ok := pathID(r, "roleID")
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	if err := h.service.RemoveRole(r.Context(), identity, userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) myCapabilities(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	set, err := h.resolver.ResolveIdentity(r.Context(), identity)
	if err != nil {
		h.logger.Error("resolve own capabilities", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	records, err := h.catalog.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	expanded := set.Expand(records)
	sort.Strings(expanded)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"capabilities":  expanded,
		"is_admin":      set.IsAdmin(),
		"impersonating": identity.IsImpersonating(),
	})
}

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	records, err := h.catalog.List(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	type capView struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		IsSeeded    bool   `json:"is_seeded"`
	}
	views := make([]capView, len(records))
	for i, rec := range records {
		views[i] = capView{Name: rec.Name.String(), Description: rec.Description, IsSeeded: rec.IsSeeded}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"capabilities": views})
}

func (h *Handler) decodeValid(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	return h.validator.Struct(target)
}

func toRoleView(role Role) roleView {
	return roleView{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		IsSeeded:    role.IsSeeded,
		IsGlobal:    role.IsGlobal(),
	}
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
