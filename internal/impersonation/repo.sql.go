package impersonation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	platformdb "github.com/tempora-app/tempora/internal/platform/db"
	"github.com/tempora-app/tempora/internal/shared"
)

// oneActiveConstraint is the partial unique index serializing concurrent
// session starts from the same admin:
//
//	CREATE UNIQUE INDEX impersonation_one_active
//	ON impersonation_sessions (admin_user_id) WHERE ended_at IS NULL;
const oneActiveConstraint = "impersonation_one_active"

const sessionColumns = `id, tenant_id, admin_user_id, admin_email, target_user_id, auth_session_id, ip, user_agent, started_at, ended_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new ACTIVE session. A concurrent active session for
// the same admin surfaces as ErrSessionConflict, decided by the database
// rather than a read-then-write race.
func (r *Repository) Create(ctx context.Context, sess Session) (Session, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO impersonation_sessions (tenant_id, admin_user_id, admin_email, target_user_id, auth_session_id, ip, user_agent, started_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NOW())
		RETURNING `+sessionColumns,
		sess.TenantID, sess.AdminUserID, sess.AdminEmail, sess.TargetUserID, sess.AuthSessionID, sess.IP, sess.UserAgent)
	created, err := scanSession(row)
	if err != nil {
		if platformdb.IsUniqueViolation(err, oneActiveConstraint) {
			return Session{}, shared.ErrSessionConflict
		}
		return Session{}, err
	}
	return created, nil
}

// GetByID fetches a session.
func (r *Repository) GetByID(ctx context.Context, id int64) (Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM impersonation_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// ActiveByAdmin fetches the admin's running session, if any.
func (r *Repository) ActiveByAdmin(ctx context.Context, adminUserID int64) (Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM impersonation_sessions WHERE admin_user_id = $1 AND ended_at IS NULL`, adminUserID)
	return scanSession(row)
}

// End stamps ended_at on a running session. Ending an already-ended
// session is not found: ENDED has no outgoing transitions.
func (r *Repository) End(ctx context.Context, id int64) (Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE impersonation_sessions SET ended_at = NOW()
		WHERE id = $1 AND ended_at IS NULL
		RETURNING `+sessionColumns, id)
	return scanSession(row)
}

// ListByTenant returns the tenant's sessions, newest first, plus the
// total count.
func (r *Repository) ListByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]Session, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM impersonation_sessions WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM impersonation_sessions WHERE tenant_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// EndStartedBefore force-ends every active session older than the
// cutoff, returning them so the caller can revoke their auth sessions.
func (r *Repository) EndStartedBefore(ctx context.Context, cutoff time.Time) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE impersonation_sessions SET ended_at = NOW()
		WHERE ended_at IS NULL AND started_at < $1
		RETURNING `+sessionColumns, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, sess)
	}
	return list, rows.Err()
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		sess Session
		ip   *string
		ua   *string
	)
	err := row.Scan(&sess.ID, &sess.TenantID, &sess.AdminUserID, &sess.AdminEmail, &sess.TargetUserID, &sess.AuthSessionID, &ip, &ua, &sess.StartedAt, &sess.EndedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, shared.ErrNotFound
		}
		return Session{}, err
	}
	if ip != nil {
		sess.IP = *ip
	}
	if ua != nil {
		sess.UserAgent = *ua
	}
	return sess, nil
}
