package rbac

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/internal/capability"
	"github.com/tempora-app/tempora/internal/shared"
)

type countingResolverRepo struct {
	*memoryResolverRepo
	resolveCalls int
}

func (r *countingResolverRepo) RolesForUser(ctx context.Context, userID, tenantID int64) ([]Role, error) {
	r.resolveCalls++
	return r.memoryResolverRepo.RolesForUser(ctx, userID, tenantID)
}

func newCachedResolverForTest(t *testing.T, repo ResolverRepositoryPort, ttl time.Duration) (*CachedResolver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCachedResolver(NewResolver(repo), client, ttl, nil, nil), mr
}

func TestCachedResolverCachesResolutions(t *testing.T) {
	repo := &countingResolverRepo{memoryResolverRepo: newMemoryResolverRepo()}
	repo.roles[1] = []Role{{ID: 10, Name: "member"}}
	repo.grants[10] = []Grant{grant(10, "chat:read", true)}

	cached, _ := newCachedResolverForTest(t, repo, time.Minute)
	identity := &shared.Identity{UserID: 1, TenantID: 7}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		set, err := cached.ResolveIdentity(ctx, identity)
		require.NoError(t, err)
		require.True(t, set.Has(capability.MustParse("chat:read")))
	}
	require.Equal(t, 1, repo.resolveCalls)
}

func TestCachedResolverNilIdentity(t *testing.T) {
	cached, _ := newCachedResolverForTest(t, newMemoryResolverRepo(), time.Minute)
	_, err := cached.ResolveIdentity(context.Background(), nil)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestCachedResolverTTLExpiry(t *testing.T) {
	repo := &countingResolverRepo{memoryResolverRepo: newMemoryResolverRepo()}
	repo.roles[1] = []Role{{ID: 10, Name: "member"}}
	repo.grants[10] = []Grant{grant(10, "chat:read", true)}

	cached, mr := newCachedResolverForTest(t, repo, time.Minute)
	identity := &shared.Identity{UserID: 1, TenantID: 7}
	ctx := context.Background()

	_, err := cached.ResolveIdentity(ctx, identity)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cached.ResolveIdentity(ctx, identity)
	require.NoError(t, err)
	require.Equal(t, 2, repo.resolveCalls)
}

func TestCachedResolverInvalidateUser(t *testing.T) {
	repo := &countingResolverRepo{memoryResolverRepo: newMemoryResolverRepo()}
	repo.roles[1] = []Role{{ID: 10, Name: "member"}}
	repo.grants[10] = []Grant{grant(10, "invoices:send", true)}

	cached, _ := newCachedResolverForTest(t, repo, time.Minute)
	identity := &shared.Identity{UserID: 1, TenantID: 7}
	ctx := context.Background()

	set, err := cached.ResolveIdentity(ctx, identity)
	require.NoError(t, err)
	require.True(t, set.Has(capability.MustParse("invoices:send")))

	// Revoke the grant, then invalidate; the next resolve must see it.
	repo.grants[10] = []Grant{grant(10, "invoices:send", false)}
	require.NoError(t, cached.InvalidateUser(ctx, 7, 1))

	set, err = cached.ResolveIdentity(ctx, identity)
	require.NoError(t, err)
	require.False(t, set.Has(capability.MustParse("invoices:send")))
}

func TestCachedResolverScopesImpersonationSeparately(t *testing.T) {
	repo := &countingResolverRepo{memoryResolverRepo: newMemoryResolverRepo()}
	repo.roles[1] = []Role{{ID: 10, Name: "member"}}
	repo.grants[10] = []Grant{grant(10, "chat:read", true)}

	cached, mr := newCachedResolverForTest(t, repo, time.Minute)
	ctx := context.Background()

	direct := &shared.Identity{UserID: 1, TenantID: 7}
	impersonated := &shared.Identity{
		UserID:        1,
		TenantID:      7,
		Impersonation: &shared.Impersonation{SessionID: 42, AdminID: 99},
	}

	_, err := cached.ResolveIdentity(ctx, direct)
	require.NoError(t, err)
	_, err = cached.ResolveIdentity(ctx, impersonated)
	require.NoError(t, err)

	require.True(t, mr.Exists("authz:caps:7:1:direct"))
	require.True(t, mr.Exists("authz:caps:7:1:imp42"))

	// Invalidation by user removes both scopes.
	require.NoError(t, cached.InvalidateUser(ctx, 7, 1))
	require.False(t, mr.Exists("authz:caps:7:1:direct"))
	require.False(t, mr.Exists("authz:caps:7:1:imp42"))
}
