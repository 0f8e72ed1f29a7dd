package tenants

import (
	"context"

	"github.com/tempora-app/tempora/internal/shared"
)

// RepositoryPort defines persistence required by the service.
type RepositoryPort interface {
	GetByID(ctx context.Context, id int64) (Tenant, error)
}

// Service exposes tenant reads.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Current returns the identity's workspace. Deactivated and soft-deleted
// tenants read as missing.
func (s *Service) Current(ctx context.Context, identity *shared.Identity) (Tenant, error) {
	if identity == nil {
		return Tenant{}, shared.ErrUnauthenticated
	}
	t, err := s.repo.GetByID(ctx, identity.TenantID)
	if err != nil {
		return Tenant{}, err
	}
	if !t.IsActive || t.DeletedAt != nil {
		return Tenant{}, shared.ErrNotFound
	}
	return t, nil
}
