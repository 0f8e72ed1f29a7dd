package audit

import (
	"context"
	"time"

	"github.com/tempora-app/tempora/internal/shared"
)

const maxDateRange = 90 * 24 * time.Hour

// RepositoryPort defines persistence for timeline reads.
type RepositoryPort interface {
	Timeline(ctx context.Context, tenantID int64, filters TimelineFilters, limit, offset int) ([]Entry, int, error)
}

// Service coordinates audit timeline retrieval.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns a page of audit entries scoped to the tenant. Open
// date ranges are clamped so a single query cannot walk the whole table.
func (s *Service) Timeline(ctx context.Context, tenantID int64, filters TimelineFilters, page shared.Pagination) ([]Entry, shared.Pagination, error) {
	if filters.To.IsZero() {
		filters.To = time.Now()
	}
	if filters.From.IsZero() || filters.To.Sub(filters.From) > maxDateRange {
		filters.From = filters.To.Add(-maxDateRange)
	}

	entries, total, err := s.repo.Timeline(ctx, tenantID, filters, page.PerPage, page.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(page.Page, page.PerPage, total), nil
}
