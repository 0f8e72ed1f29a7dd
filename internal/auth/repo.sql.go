package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the audit mirror of sessions plus login attempts
// and lockouts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSession mirrors a new login session for auditing.
func (r *Repository) CreateSession(ctx context.Context, sess Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, tenant_id, created_at, expires_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))`,
		sess.ID, sess.UserID, sess.TenantID, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC(), sess.IP, sess.UserAgent)
	return err
}

// MarkSessionRevoked stamps the audit mirror when a session is revoked.
// The row is kept; only the live Redis entry is deleted.
func (r *Repository) MarkSessionRevoked(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE sessions SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

// RecordLoginAttempt stores a login outcome.
func (r *Repository) RecordLoginAttempt(ctx context.Context, userID *int64, email, ip string, success bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO login_attempts (user_id, email, ip, success, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NOW())`, userID, email, ip, success)
	return err
}

// FailedAttemptsSince counts failed attempts for the user inside the
// lockout window.
func (r *Repository) FailedAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM login_attempts
		WHERE user_id = $1 AND success = FALSE AND created_at >= $2`, userID, since.UTC()).Scan(&n)
	return n, err
}

// CreateLockout opens a lockout on the account.
func (r *Repository) CreateLockout(ctx context.Context, userID int64, reason string, until time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO account_lockouts (user_id, reason, created_at, expires_at)
		VALUES ($1, $2, NOW(), $3)`, userID, reason, until.UTC())
	return err
}

// HasActiveLockout reports whether any lockout on the user is still
// running.
func (r *Repository) HasActiveLockout(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM account_lockouts
		WHERE user_id = $1 AND expires_at > NOW()`, userID).Scan(&n)
	return n > 0, err
}

// DeleteExpiredLockouts removes lockouts past their expiry. Called by the
// background sweep, never by request paths.
func (r *Repository) DeleteExpiredLockouts(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM account_lockouts WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PruneLoginAttempts removes attempts older than the cutoff.
func (r *Repository) PruneLoginAttempts(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_attempts WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
