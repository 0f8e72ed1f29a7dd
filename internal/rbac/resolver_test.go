package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/internal/capability"
)

type memoryResolverRepo struct {
	roles  map[int64][]Role
	grants map[int64][]Grant
}

func newMemoryResolverRepo() *memoryResolverRepo {
	return &memoryResolverRepo{
		roles:  make(map[int64][]Role),
		grants: make(map[int64][]Grant),
	}
}

func (r *memoryResolverRepo) RolesForUser(ctx context.Context, userID, tenantID int64) ([]Role, error) {
	return r.roles[userID], nil
}

func (r *memoryResolverRepo) GrantsForRoles(ctx context.Context, roleIDs []int64) ([]Grant, error) {
	var out []Grant
	for _, id := range roleIDs {
		out = append(out, r.grants[id]...)
	}
	return out, nil
}

func grant(roleID int64, raw string, allowed bool) Grant {
	return Grant{RoleID: roleID, Capability: capability.MustParse(raw), IsAllowed: allowed}
}

func TestResolveNoRolesIsEmptySet(t *testing.T) {
	repo := newMemoryResolverRepo()
	set, err := NewResolver(repo).Resolve(context.Background(), 1, 1)
	require.NoError(t, err)
	require.False(t, set.IsAdmin())
	require.False(t, set.Has(capability.MustParse("timesheets:read")))
}

func TestResolveDenyWins(t *testing.T) {
	repo := newMemoryResolverRepo()
	repo.roles[1] = []Role{{ID: 10, Name: "member"}, {ID: 11, Name: "restricted"}}
	repo.grants[10] = []Grant{grant(10, "invoices:send", true)}
	repo.grants[11] = []Grant{grant(11, "invoices:send", false)}

	set, err := NewResolver(repo).Resolve(context.Background(), 1, 1)
	require.NoError(t, err)
	require.False(t, set.Has(capability.MustParse("invoices:send")))
}

func TestResolveConcreteDenyCarvesOutWildcard(t *testing.T) {
	repo := newMemoryResolverRepo()
	repo.roles[1] = []Role{{ID: 10, Name: "support"}}
	repo.grants[10] = []Grant{
		grant(10, "invoices:*", true),
		grant(10, "invoices:send", false),
	}

	set, err := NewResolver(repo).Resolve(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, set.Has(capability.MustParse("invoices:read")))
	require.True(t, set.Has(capability.MustParse("invoices:write")))
	require.False(t, set.Has(capability.MustParse("invoices:send")))
}

func TestResolveAdminShortcut(t *testing.T) {
	repo := newMemoryResolverRepo()
	repo.roles[1] = []Role{{ID: 10, Name: AdminRoleName}}

	set, err := NewResolver(repo).Resolve(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, set.IsAdmin())
	require.True(t, set.Has(capability.MustParse("anything:at-all")))
}

func TestResolveSkipsDanglingGrants(t *testing.T) {
	repo := newMemoryResolverRepo()
	repo.roles[1] = []Role{{ID: 10, Name: "member"}}
	repo.grants[10] = []Grant{
		{RoleID: 10, Capability: capability.Capability{}, IsAllowed: true},
		grant(10, "chat:read", true),
	}

	set, err := NewResolver(repo).Resolve(context.Background(), 1, 1)
	require.NoError(t, err)
	require.True(t, set.Has(capability.MustParse("chat:read")))
	require.Len(t, set.Grants(), 1)
}

func TestCapabilitySetModes(t *testing.T) {
	set := NewCapabilitySet(false, []string{"chat:read", "chat:write"}, nil)

	all := []capability.Capability{
		capability.MustParse("chat:read"),
		capability.MustParse("chat:write"),
	}
	require.True(t, set.HasAll(all))
	require.True(t, set.HasAny(all))

	mixed := []capability.Capability{
		capability.MustParse("chat:read"),
		capability.MustParse("invoices:send"),
	}
	require.False(t, set.HasAll(mixed))
	require.True(t, set.HasAny(mixed))

	none := []capability.Capability{capability.MustParse("invoices:send")}
	require.False(t, set.HasAll(none))
	require.False(t, set.HasAny(none))
}

func TestCapabilitySetGrantsNeverOverrideDenies(t *testing.T) {
	// Two separate roles granting the same capability cannot outvote a
	// single deny.
	set := NewCapabilitySet(false,
		[]string{"reports:read", "reports:read"},
		[]string{"reports:read"},
	)
	require.False(t, set.Has(capability.MustParse("reports:read")))
}

func TestCapabilitySetExpandSkipsWildcardEntries(t *testing.T) {
	set := NewCapabilitySet(false, []string{"invoices:*"}, []string{"invoices:send"})
	catalog := []capability.Record{
		{Name: capability.MustParse("invoices:*")},
		{Name: capability.MustParse("invoices:read")},
		{Name: capability.MustParse("invoices:send")},
		{Name: capability.MustParse("chat:read")},
	}
	require.Equal(t, []string{"invoices:read"}, set.Expand(catalog))
}
