package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tempora-app/tempora/internal/shared"
)

type recordingAuditRepo struct {
	entries     []Entry
	lastFilters TimelineFilters
	lastLimit   int
	lastOffset  int
}

func (r *recordingAuditRepo) Timeline(ctx context.Context, tenantID int64, filters TimelineFilters, limit, offset int) ([]Entry, int, error) {
	r.lastFilters = filters
	r.lastLimit = limit
	r.lastOffset = offset
	return r.entries, len(r.entries), nil
}

func TestTimelineClampsOpenDateRange(t *testing.T) {
	repo := &recordingAuditRepo{}
	svc := NewService(repo)

	_, _, err := svc.Timeline(context.Background(), 7, TimelineFilters{}, shared.NewPagination(1, 25, 0))
	require.NoError(t, err)

	require.False(t, repo.lastFilters.From.IsZero())
	require.False(t, repo.lastFilters.To.IsZero())
	require.InDelta(t, maxDateRange.Hours(), repo.lastFilters.To.Sub(repo.lastFilters.From).Hours(), 1)
}

func TestTimelineClampsOversizedRange(t *testing.T) {
	repo := &recordingAuditRepo{}
	svc := NewService(repo)

	to := time.Now()
	from := to.Add(-365 * 24 * time.Hour)
	_, _, err := svc.Timeline(context.Background(), 7, TimelineFilters{From: from, To: to}, shared.NewPagination(1, 25, 0))
	require.NoError(t, err)
	require.Equal(t, maxDateRange, repo.lastFilters.To.Sub(repo.lastFilters.From))
}

func TestTimelinePagination(t *testing.T) {
	repo := &recordingAuditRepo{entries: []Entry{{ID: 1, Action: "role.create"}}}
	svc := NewService(repo)

	entries, page, err := svc.Timeline(context.Background(), 7, TimelineFilters{}, shared.NewPagination(3, 10, 0))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 10, repo.lastLimit)
	require.Equal(t, 20, repo.lastOffset)
	require.Equal(t, 3, page.Page)
	require.Equal(t, 1, page.Total)
}
