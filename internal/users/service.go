package users

import (
	"context"

	"github.com/tempora-app/tempora/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetByID(ctx context.Context, id int64) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	ListByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]User, int, error)
}

// Service handles user lookups for the authorization surface.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns users of the tenant with pagination metadata.
func (s *Service) List(ctx context.Context, tenantID int64, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	list, total, err := s.repo.ListByTenant(ctx, tenantID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// Get fetches a user within the tenant. Users of other tenants surface as
// not found rather than forbidden.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if user.TenantID != tenantID || user.IsDeleted() {
		return User{}, shared.ErrNotFound
	}
	return user, nil
}
