package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/internal/shared"
)

type memoryUserRepo struct {
	byID map[int64]User
}

func (r *memoryUserRepo) GetByID(ctx context.Context, id int64) (User, error) {
	u, ok := r.byID[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (r *memoryUserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range r.byID {
		if u.Email == email && !u.IsDeleted() {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (r *memoryUserRepo) ListByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]User, int, error) {
	var out []User
	for _, u := range r.byID {
		if u.TenantID == tenantID && !u.IsDeleted() {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

func TestGetScopesToTenant(t *testing.T) {
	now := time.Now()
	repo := &memoryUserRepo{byID: map[int64]User{
		1: {ID: 1, TenantID: 7, Email: "worker@acme.test", IsActive: true},
		2: {ID: 2, TenantID: 9, Email: "worker@northwind.test", IsActive: true},
		3: {ID: 3, TenantID: 7, Email: "gone@acme.test", DeletedAt: &now},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	user, err := svc.Get(ctx, 7, 1)
	require.NoError(t, err)
	require.Equal(t, "worker@acme.test", user.Email)

	// Foreign tenant and soft-deleted users both read as absent, not
	// forbidden.
	_, err = svc.Get(ctx, 7, 2)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Get(ctx, 7, 3)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListPaginates(t *testing.T) {
	repo := &memoryUserRepo{byID: map[int64]User{
		1: {ID: 1, TenantID: 7, Email: "a@acme.test"},
		2: {ID: 2, TenantID: 7, Email: "b@acme.test"},
	}}
	svc := NewService(repo)

	list, page, err := svc.List(context.Background(), 7, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 25, page.PerPage)
	require.Equal(t, 2, page.Total)
	require.Equal(t, 1, page.TotalPages)
}
