package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/internal/shared"
)

type memoryTenantRepo struct {
	tenants map[int64]Tenant
}

func (r *memoryTenantRepo) GetByID(_ context.Context, id int64) (Tenant, error) {
	t, ok := r.tenants[id]
	if !ok {
		return Tenant{}, shared.ErrNotFound
	}
	return t, nil
}

func TestCurrentReturnsActiveWorkspace(t *testing.T) {
	svc := NewService(&memoryTenantRepo{tenants: map[int64]Tenant{
		7: {ID: 7, Name: "Acme", Slug: "acme", IsActive: true},
	}})

	tenant, err := svc.Current(context.Background(), &shared.Identity{UserID: 1, TenantID: 7})
	require.NoError(t, err)
	require.Equal(t, "acme", tenant.Slug)
}

func TestCurrentRequiresIdentity(t *testing.T) {
	svc := NewService(&memoryTenantRepo{tenants: map[int64]Tenant{}})
	_, err := svc.Current(context.Background(), nil)
	require.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestCurrentHidesInactiveAndDeleted(t *testing.T) {
	deletedAt := time.Now().UTC()
	svc := NewService(&memoryTenantRepo{tenants: map[int64]Tenant{
		7: {ID: 7, Slug: "dormant", IsActive: false},
		8: {ID: 8, Slug: "gone", IsActive: true, DeletedAt: &deletedAt},
	}})

	_, err := svc.Current(context.Background(), &shared.Identity{UserID: 1, TenantID: 7})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Current(context.Background(), &shared.Identity{UserID: 1, TenantID: 8})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
