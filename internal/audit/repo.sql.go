package audit

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the audit trail with raw SQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a new Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Timeline returns audit entries for a tenant, newest first, with the
// total row count for the same filter set.
func (r *Repository) Timeline(ctx context.Context, tenantID int64, filters TimelineFilters, limit, offset int) ([]Entry, int, error) {
	where, args := buildWhere(tenantID, filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	query := `SELECT id, tenant_id, actor_id, action, entity, entity_id, COALESCE(ip, ''), COALESCE(user_agent, ''), meta, occurred_at
		FROM audit_logs ` + where + `
		ORDER BY occurred_at DESC, id DESC
		LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.IP, &e.UserAgent, &e.Meta, &e.At); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func buildWhere(tenantID int64, filters TimelineFilters) (string, []any) {
	clauses := []string{"tenant_id = $1"}
	args := []any{tenantID}

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, clause+"$"+strconv.Itoa(len(args)))
	}

	if !filters.From.IsZero() {
		add("occurred_at >= ", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at < ", filters.To)
	}
	if filters.ActorID > 0 {
		add("actor_id = ", filters.ActorID)
	}
	if filters.Action != "" {
		add("action = ", filters.Action)
	}
	if filters.Entity != "" {
		add("entity = ", filters.Entity)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
