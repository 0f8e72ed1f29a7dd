package rbac

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tempora-app/tempora/internal/capability"
	platformdb "github.com/tempora-app/tempora/internal/platform/db"
	"github.com/tempora-app/tempora/internal/shared"
)

// ErrReservedRole indicates an attempt to create or rename a role using
// the reserved admin name.
var ErrReservedRole = errors.New("rbac: role name reserved")

// RepositoryPort defines persistence for role administration.
type RepositoryPort interface {
	ResolverRepositoryPort
	ListRoles(ctx context.Context, tenantID int64) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, tenantID int64, name string) (Role, error)
	CreateRole(ctx context.Context, tenantID int64, name, description string) (Role, error)
	EnsureSystemRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListGrants(ctx context.Context, roleID int64) ([]Grant, error)
	ReplaceGrants(ctx context.Context, roleID int64, entries []Grant) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	UserIDsWithRole(ctx context.Context, roleID int64) ([]int64, error)
}

// Invalidator drops cached capability resolutions. Mutations call it
// synchronously so revocations take effect immediately rather than after
// TTL expiry.
type Invalidator interface {
	InvalidateUser(ctx context.Context, tenantID, userID int64) error
	InvalidateUsers(ctx context.Context, tenantID int64, userIDs []int64) error
}

// Auditor records administration actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// GrantInput is one requested grant or deny in a role mutation.
type GrantInput struct {
	Capability string
	IsAllowed  bool
}

// Service orchestrates role administration: CRUD, grant sets and
// user-role assignment, with audit and cache invalidation on every
// mutation.
type Service struct {
	repo        RepositoryPort
	catalog     *capability.Catalog
	invalidator Invalidator
	audit       Auditor
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, catalog *capability.Catalog, invalidator Invalidator, audit Auditor) *Service {
	return &Service{repo: repo, catalog: catalog, invalidator: invalidator, audit: audit}
}

// ListRoles returns the tenant's roles plus system roles.
func (s *Service) ListRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	return s.repo.ListRoles(ctx, tenantID)
}

// GetRole fetches a role visible to the tenant.
func (s *Service) GetRole(ctx context.Context, tenantID, id int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if !role.IsGlobal() && *role.TenantID != tenantID {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

// CreateRole inserts a tenant-scoped role.
func (s *Service) CreateRole(ctx context.Context, actor *shared.Identity, name, description string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Role{}, fmt.Errorf("rbac: role name required")
	}
	if IsAdminRole(name) {
		return Role{}, ErrReservedRole
	}
	if err := s.checkSystemShadow(ctx, actor.TenantID, name); err != nil {
		return Role{}, err
	}
	role, err := s.repo.CreateRole(ctx, actor.TenantID, name, strings.TrimSpace(description))
	if err != nil {
		if platformdb.IsUniqueViolation(err, "") {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, err
	}
	s.record(ctx, actor, "role.create", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// UpdateRole renames a non-seeded, tenant-owned role.
func (s *Service) UpdateRole(ctx context.Context, actor *shared.Identity, id int64, name, description string) (Role, error) {
	existing, err := s.GetRole(ctx, actor.TenantID, id)
	if err != nil {
		return Role{}, err
	}
	if existing.IsSeeded || existing.IsGlobal() {
		return Role{}, shared.ErrForbidden
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if IsAdminRole(name) {
		return Role{}, ErrReservedRole
	}
	if name != existing.Name {
		if err := s.checkSystemShadow(ctx, actor.TenantID, name); err != nil {
			return Role{}, err
		}
	}
	role, err := s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
	if err != nil {
		if platformdb.IsUniqueViolation(err, "") {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, err
	}
	s.record(ctx, actor, "role.update", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// DeleteRole removes a non-seeded, tenant-owned role. Seeded roles resist
// deletion through this path.
func (s *Service) DeleteRole(ctx context.Context, actor *shared.Identity, id int64) error {
	existing, err := s.GetRole(ctx, actor.TenantID, id)
	if err != nil {
		return err
	}
	if existing.IsSeeded || existing.IsGlobal() {
		return shared.ErrForbidden
	}
	affected, err := s.repo.UserIDsWithRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor, "role.delete", id, map[string]any{"name": existing.Name})
	return s.invalidator.InvalidateUsers(ctx, actor.TenantID, affected)
}

// ListGrants returns the grant/deny set of a role visible to the tenant.
func (s *Service) ListGrants(ctx context.Context, tenantID, roleID int64) ([]Grant, error) {
	if _, err := s.GetRole(ctx, tenantID, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListGrants(ctx, roleID)
}

// SetGrants replaces a role's grant/deny set. Every capability identifier
// is validated against the catalog here, at assignment time; unknown
// identifiers are rejected before anything is written.
func (s *Service) SetGrants(ctx context.Context, actor *shared.Identity, roleID int64, inputs []GrantInput) error {
	role, err := s.GetRole(ctx, actor.TenantID, roleID)
	if err != nil {
		return err
	}
	if role.IsGlobal() {
		// System roles are seed-managed; tenants cannot reshape them.
		return shared.ErrForbidden
	}

	entries := make([]Grant, 0, len(inputs))
	seen := make(map[int64]struct{}, len(inputs))
	for _, input := range inputs {
		rec, err := s.catalog.Lookup(ctx, input.Capability)
		if err != nil {
			return fmt.Errorf("rbac: capability %q: %w", input.Capability, err)
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("rbac: capability %q listed twice: %w", input.Capability, shared.ErrDuplicate)
		}
		seen[rec.ID] = struct{}{}
		entries = append(entries, Grant{RoleID: roleID, CapabilityID: rec.ID, Capability: rec.Name, IsAllowed: input.IsAllowed})
	}

	if err := s.repo.ReplaceGrants(ctx, roleID, entries); err != nil {
		return err
	}
	s.record(ctx, actor, "role.grants.replace", roleID, map[string]any{"count": len(entries)})

	affected, err := s.repo.UserIDsWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	return s.invalidator.InvalidateUsers(ctx, actor.TenantID, affected)
}

// AssignRole links a user to a role visible to the tenant.
func (s *Service) AssignRole(ctx context.Context, actor *shared.Identity, userID, roleID int64) error {
	if _, err := s.GetRole(ctx, actor.TenantID, roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, actor, "role.assign", roleID, map[string]any{"user_id": userID})
	return s.invalidator.InvalidateUser(ctx, actor.TenantID, userID)
}

// RemoveRole unlinks a user from a role.
func (s *Service) RemoveRole(ctx context.Context, actor *shared.Identity, userID, roleID int64) error {
	if _, err := s.GetRole(ctx, actor.TenantID, roleID); err != nil {
		return err
	}
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.record(ctx, actor, "role.remove", roleID, map[string]any{"user_id": userID})
	return s.invalidator.InvalidateUser(ctx, actor.TenantID, userID)
}

// EnsureAdminRole upserts the reserved admin system role. The server
// runs this at startup so the bypass role always exists before the
// first assignment.
func (s *Service) EnsureAdminRole(ctx context.Context) (Role, error) {
	return s.repo.EnsureSystemRole(ctx, AdminRoleName, "Full administrative access")
}

// checkSystemShadow refuses tenant role names that collide with a system
// role. The roles unique index is per tenant, so a shadowing name would
// otherwise insert cleanly and make lookups ambiguous.
func (s *Service) checkSystemShadow(ctx context.Context, tenantID int64, name string) error {
	existing, err := s.repo.GetRoleByName(ctx, tenantID, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if existing.IsGlobal() {
		return shared.ErrDuplicate
	}
	return nil
}

// UserIsAdmin reports whether the user holds the reserved admin role in
// the tenant. The impersonation manager consults this to refuse admin
// targets.
func (s *Service) UserIsAdmin(ctx context.Context, userID, tenantID int64) (bool, error) {
	roles, err := s.repo.RolesForUser(ctx, userID, tenantID)
	if err != nil {
		return false, err
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.Name
	}
	return IsAdminRole(names...), nil
}

func (s *Service) record(ctx context.Context, actor *shared.Identity, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ActorID(),
		TenantID: actor.TenantID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
