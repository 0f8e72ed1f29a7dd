package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/internal/capability"
	"github.com/tempora-app/tempora/internal/shared"
)

type memoryRoleRepo struct {
	*memoryResolverRepo
	rolesByID map[int64]Role
	userRoles map[int64][]int64
	nextID    int64
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{
		memoryResolverRepo: newMemoryResolverRepo(),
		rolesByID:          make(map[int64]Role),
		userRoles:          make(map[int64][]int64),
	}
}

func (r *memoryRoleRepo) addRole(role Role) Role {
	r.nextID++
	role.ID = r.nextID
	r.rolesByID[role.ID] = role
	return role
}

func (r *memoryRoleRepo) ListRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	var out []Role
	for _, role := range r.rolesByID {
		if role.IsGlobal() || *role.TenantID == tenantID {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRoleRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.rolesByID[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *memoryRoleRepo) GetRoleByName(ctx context.Context, tenantID int64, name string) (Role, error) {
	var system *Role
	for _, role := range r.rolesByID {
		if role.Name != name {
			continue
		}
		if !role.IsGlobal() && *role.TenantID == tenantID {
			return role, nil
		}
		if role.IsGlobal() {
			global := role
			system = &global
		}
	}
	if system != nil {
		return *system, nil
	}
	return Role{}, shared.ErrNotFound
}

func (r *memoryRoleRepo) EnsureSystemRole(ctx context.Context, name, description string) (Role, error) {
	for id, role := range r.rolesByID {
		if role.IsGlobal() && role.Name == name {
			role.Description = description
			r.rolesByID[id] = role
			return role, nil
		}
	}
	return r.addRole(Role{Name: name, Description: description, IsSeeded: true, CreatedAt: time.Now()}), nil
}

func (r *memoryRoleRepo) CreateRole(ctx context.Context, tenantID int64, name, description string) (Role, error) {
	for _, role := range r.rolesByID {
		if role.Name == name && !role.IsGlobal() && *role.TenantID == tenantID {
			return Role{}, shared.ErrDuplicate
		}
	}
	return r.addRole(Role{TenantID: &tenantID, Name: name, Description: description, CreatedAt: time.Now()}), nil
}

func (r *memoryRoleRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, ok := r.rolesByID[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	role.Name = name
	role.Description = description
	r.rolesByID[id] = role
	return role, nil
}

func (r *memoryRoleRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := r.rolesByID[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.rolesByID, id)
	delete(r.grants, id)
	return nil
}

func (r *memoryRoleRepo) ListGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	return r.grants[roleID], nil
}

func (r *memoryRoleRepo) ReplaceGrants(ctx context.Context, roleID int64, entries []Grant) error {
	r.grants[roleID] = entries
	return nil
}

func (r *memoryRoleRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	r.userRoles[userID] = append(r.userRoles[userID], roleID)
	role := r.rolesByID[roleID]
	r.roles[userID] = append(r.roles[userID], role)
	return nil
}

func (r *memoryRoleRepo) RemoveRole(ctx context.Context, userID, roleID int64) error {
	var kept []int64
	for _, id := range r.userRoles[userID] {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	r.userRoles[userID] = kept
	var keptRoles []Role
	for _, role := range r.roles[userID] {
		if role.ID != roleID {
			keptRoles = append(keptRoles, role)
		}
	}
	r.roles[userID] = keptRoles
	return nil
}

func (r *memoryRoleRepo) UserIDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	var out []int64
	for userID, roleIDs := range r.userRoles {
		for _, id := range roleIDs {
			if id == roleID {
				out = append(out, userID)
			}
		}
	}
	return out, nil
}

type recordingInvalidator struct {
	users []int64
}

func (r *recordingInvalidator) InvalidateUser(ctx context.Context, tenantID, userID int64) error {
	r.users = append(r.users, userID)
	return nil
}

func (r *recordingInvalidator) InvalidateUsers(ctx context.Context, tenantID int64, userIDs []int64) error {
	r.users = append(r.users, userIDs...)
	return nil
}

func newRBACServiceForTest(t *testing.T) (*Service, *memoryRoleRepo, *recordingInvalidator) {
	t.Helper()
	repo := newMemoryRoleRepo()
	catalogRepo := newMemoryCatalogRepoForRBAC()
	catalog := capability.NewCatalog(catalogRepo)
	require.NoError(t, catalog.Seed(context.Background(), map[string]string{
		"invoices:read": "View invoices",
		"invoices:send": "Send invoices",
		"chat:read":     "Read chat",
	}))
	invalidator := &recordingInvalidator{}
	return NewService(repo, catalog, invalidator, nil), repo, invalidator
}

// Minimal in-memory catalog store, mirroring the capability package's
// persistence contract.
type rbacCatalogRepo struct {
	records map[string]capability.Record
	nextID  int64
}

func newMemoryCatalogRepoForRBAC() *rbacCatalogRepo {
	return &rbacCatalogRepo{records: make(map[string]capability.Record)}
}

func (r *rbacCatalogRepo) List(ctx context.Context) ([]capability.Record, error) {
	var out []capability.Record
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func (r *rbacCatalogRepo) GetByName(ctx context.Context, name string) (capability.Record, error) {
	rec, ok := r.records[name]
	if !ok {
		return capability.Record{}, shared.ErrNotFound
	}
	return rec, nil
}

func (r *rbacCatalogRepo) Ensure(ctx context.Context, name, description string, seeded bool) (capability.Record, error) {
	if rec, ok := r.records[name]; ok {
		return rec, nil
	}
	r.nextID++
	rec := capability.Record{ID: r.nextID, Name: capability.MustParse(name), Description: description, IsSeeded: seeded}
	r.records[name] = rec
	return rec, nil
}

func (r *rbacCatalogRepo) ReferenceCount(ctx context.Context, id int64) (int64, error) {
	return 0, nil
}

func (r *rbacCatalogRepo) SoftDelete(ctx context.Context, id int64) (bool, error) {
	return true, nil
}

func actorFor(tenantID int64) *shared.Identity {
	return &shared.Identity{UserID: 100, TenantID: tenantID, Email: "admin@acme.test", SessionID: "s"}
}

func TestCreateRoleRejectsReservedName(t *testing.T) {
	svc, _, _ := newRBACServiceForTest(t)
	_, err := svc.CreateRole(context.Background(), actorFor(7), "  Admin ", "sneaky")
	require.ErrorIs(t, err, ErrReservedRole)
}

func TestCreateRoleRejectsSystemShadow(t *testing.T) {
	svc, repo, _ := newRBACServiceForTest(t)
	ctx := context.Background()
	repo.addRole(Role{Name: "support", IsSeeded: true})

	_, err := svc.CreateRole(ctx, actorFor(7), "support", "our own support")
	require.ErrorIs(t, err, shared.ErrDuplicate)

	tenant7 := int64(7)
	role := repo.addRole(Role{TenantID: &tenant7, Name: "desk"})
	_, err = svc.UpdateRole(ctx, actorFor(7), role.ID, "support", "")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestEnsureAdminRoleIsIdempotent(t *testing.T) {
	svc, repo, _ := newRBACServiceForTest(t)
	ctx := context.Background()

	first, err := svc.EnsureAdminRole(ctx)
	require.NoError(t, err)
	require.True(t, first.IsGlobal())
	require.True(t, first.IsSeeded)
	require.Equal(t, AdminRoleName, first.Name)

	second, err := svc.EnsureAdminRole(ctx)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	fetched, err := repo.GetRoleByName(ctx, 7, AdminRoleName)
	require.NoError(t, err)
	require.Equal(t, first.ID, fetched.ID)
}

func TestGetRoleHidesForeignTenant(t *testing.T) {
	svc, repo, _ := newRBACServiceForTest(t)
	other := int64(9)
	role := repo.addRole(Role{TenantID: &other, Name: "theirs"})

	_, err := svc.GetRole(context.Background(), 7, role.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSeededAndGlobalRolesResistMutation(t *testing.T) {
	svc, repo, _ := newRBACServiceForTest(t)
	ctx := context.Background()
	actor := actorFor(7)

	global := repo.addRole(Role{Name: "member", IsSeeded: true})
	tenant7 := int64(7)
	seeded := repo.addRole(Role{TenantID: &tenant7, Name: "starter", IsSeeded: true})

	_, err := svc.UpdateRole(ctx, actor, global.ID, "renamed", "")
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.ErrorIs(t, svc.DeleteRole(ctx, actor, seeded.ID), shared.ErrForbidden)
	require.ErrorIs(t, svc.SetGrants(ctx, actor, global.ID, nil), shared.ErrForbidden)
}

func TestSetGrantsValidatesAgainstCatalog(t *testing.T) {
	svc, repo, _ := newRBACServiceForTest(t)
	ctx := context.Background()
	actor := actorFor(7)

	role, err := svc.CreateRole(ctx, actor, "billing", "")
	require.NoError(t, err)

	err = svc.SetGrants(ctx, actor, role.ID, []GrantInput{{Capability: "ghosts:read", IsAllowed: true}})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.grants[role.ID])

	err = svc.SetGrants(ctx, actor, role.ID, []GrantInput{
		{Capability: "invoices:read", IsAllowed: true},
		{Capability: "invoices:read", IsAllowed: false},
	})
	require.ErrorIs(t, err, shared.ErrDuplicate)
	require.Empty(t, repo.grants[role.ID])

	err = svc.SetGrants(ctx, actor, role.ID, []GrantInput{
		{Capability: "invoices:read", IsAllowed: true},
		{Capability: "invoices:send", IsAllowed: false},
	})
	require.NoError(t, err)
	require.Len(t, repo.grants[role.ID], 2)
}

func TestAssignRoleInvalidatesUser(t *testing.T) {
	svc, _, invalidator := newRBACServiceForTest(t)
	ctx := context.Background()
	actor := actorFor(7)

	role, err := svc.CreateRole(ctx, actor, "billing", "")
	require.NoError(t, err)

	require.NoError(t, svc.AssignRole(ctx, actor, 55, role.ID))
	require.Equal(t, []int64{55}, invalidator.users)

	require.NoError(t, svc.RemoveRole(ctx, actor, 55, role.ID))
	require.Equal(t, []int64{55, 55}, invalidator.users)
}

func TestSetGrantsInvalidatesAffectedUsers(t *testing.T) {
	svc, _, invalidator := newRBACServiceForTest(t)
	ctx := context.Background()
	actor := actorFor(7)

	role, err := svc.CreateRole(ctx, actor, "billing", "")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRole(ctx, actor, 55, role.ID))
	require.NoError(t, svc.AssignRole(ctx, actor, 56, role.ID))
	invalidator.users = nil

	require.NoError(t, svc.SetGrants(ctx, actor, role.ID, []GrantInput{{Capability: "chat:read", IsAllowed: true}}))
	require.ElementsMatch(t, []int64{55, 56}, invalidator.users)
}

func TestUserIsAdmin(t *testing.T) {
	svc, repo, _ := newRBACServiceForTest(t)
	ctx := context.Background()

	adminRole := repo.addRole(Role{Name: AdminRoleName, IsSeeded: true})
	repo.roles[1] = []Role{adminRole}
	repo.roles[2] = []Role{{ID: 99, Name: "member"}}

	isAdmin, err := svc.UserIsAdmin(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, isAdmin)

	isAdmin, err = svc.UserIsAdmin(ctx, 2, 7)
	require.NoError(t, err)
	require.False(t, isAdmin)
}
