package impersonation

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/tempora-app/tempora/internal/auth"
	"github.com/tempora-app/tempora/internal/shared"
	"github.com/tempora-app/tempora/internal/users"
)

// RepositoryPort defines persistence for impersonation sessions.
type RepositoryPort interface {
	Create(ctx context.Context, sess Session) (Session, error)
	ActiveByAdmin(ctx context.Context, adminUserID int64) (Session, error)
	End(ctx context.Context, id int64) (Session, error)
	ListByTenant(ctx context.Context, tenantID int64, limit, offset int) ([]Session, int, error)
	EndStartedBefore(ctx context.Context, cutoff time.Time) ([]Session, error)
}

// UserLookup is the slice of the user store this service depends on.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (users.User, error)
}

// AdminChecker reports whether a user holds the reserved admin role.
// Admins are never valid targets.
type AdminChecker interface {
	UserIsAdmin(ctx context.Context, userID, tenantID int64) (bool, error)
}

// SessionRevoker revokes an authenticated session and everything minted
// under it.
type SessionRevoker interface {
	RevokeSession(ctx context.Context, sessionID string) error
}

// Invalidator drops cached capability resolutions.
type Invalidator interface {
	InvalidateUser(ctx context.Context, tenantID, userID int64) error
}

// Auditor records impersonation transitions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics receives impersonation lifecycle signals.
type Metrics interface {
	ImpersonationStarted()
	ImpersonationEnded(reason string)
}

// Service is the impersonation session manager: the only writer of
// ended_at and the only minting path for impersonation tokens.
type Service struct {
	repo        RepositoryPort
	userLookup  UserLookup
	adminCheck  AdminChecker
	tokens      *auth.TokenIssuer
	revoker     SessionRevoker
	invalidator Invalidator
	audit       Auditor
	metrics     Metrics
	logger      *slog.Logger
}

// NewService constructs a Service. metrics may be nil.
func NewService(repo RepositoryPort, userLookup UserLookup, adminCheck AdminChecker, tokens *auth.TokenIssuer, revoker SessionRevoker, invalidator Invalidator, audit Auditor, metrics Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		userLookup:  userLookup,
		adminCheck:  adminCheck,
		tokens:      tokens,
		revoker:     revoker,
		invalidator: invalidator,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
	}
}

// StartResult is the outcome of a successful NONE→ACTIVE transition.
type StartResult struct {
	Session Session
	Token   string
}

// Start performs the NONE→ACTIVE transition. The minted token's subject
// is the target, so every downstream capability check resolves against
// the target's roles, never the admin's. The token is bound to the
// admin's current auth session: stopping later kills that session whole.
func (s *Service) Start(ctx context.Context, actor *shared.Identity, targetUserID int64, ip, userAgent string) (StartResult, error) {
	if actor == nil {
		return StartResult{}, shared.ErrUnauthenticated
	}
	if actor.IsImpersonating() {
		// Nested impersonation would blur the audit trail.
		s.recordDenied(ctx, actor, targetUserID, ip, userAgent, "already impersonating")
		return StartResult{}, shared.ErrSessionConflict
	}
	if targetUserID == actor.UserID {
		s.recordDenied(ctx, actor, targetUserID, ip, userAgent, "self")
		return StartResult{}, shared.ErrTargetInvalid
	}

	target, err := s.userLookup.GetByID(ctx, targetUserID)
	if err != nil {
		s.recordDenied(ctx, actor, targetUserID, ip, userAgent, "target not found")
		return StartResult{}, shared.ErrTargetInvalid
	}
	if target.TenantID != actor.TenantID {
		// Cross-tenant impersonation is never allowed. The failure
		// record deliberately omits the foreign tenant's data.
		s.recordDenied(ctx, actor, targetUserID, ip, userAgent, "cross tenant")
		return StartResult{}, shared.ErrTargetInvalid
	}
	if !target.IsActive || target.IsDeleted() {
		s.recordDenied(ctx, actor, targetUserID, ip, userAgent, "target inactive")
		return StartResult{}, shared.ErrTargetInvalid
	}

	targetIsAdmin, err := s.adminCheck.UserIsAdmin(ctx, target.ID, actor.TenantID)
	if err != nil {
		return StartResult{}, err
	}
	if targetIsAdmin {
		s.recordDenied(ctx, actor, targetUserID, ip, userAgent, "target is admin")
		return StartResult{}, shared.ErrTargetInvalid
	}

	sess, err := s.repo.Create(ctx, Session{
		TenantID:      actor.TenantID,
		AdminUserID:   actor.UserID,
		AdminEmail:    actor.Email,
		TargetUserID:  target.ID,
		AuthSessionID: actor.SessionID,
		IP:            ip,
		UserAgent:     userAgent,
	})
	if err != nil {
		return StartResult{}, err
	}

	token, err := s.tokens.Mint(target.ID, actor.TenantID, target.Email, actor.SessionID, &auth.ImpersonationClaims{
		SessionID:  sess.ID,
		AdminID:    actor.UserID,
		AdminEmail: actor.Email,
		StartedAt:  sess.StartedAt,
	})
	if err != nil {
		// Roll the transition back rather than leaving an ACTIVE
		// session nobody holds a token for.
		if _, endErr := s.repo.End(ctx, sess.ID); endErr != nil && s.logger != nil {
			s.logger.Error("end orphan impersonation", slog.Any("error", endErr))
		}
		return StartResult{}, err
	}

	s.record(ctx, actor, sess, "impersonation.start", map[string]any{"target_user_id": target.ID})
	if s.metrics != nil {
		s.metrics.ImpersonationStarted()
	}
	return StartResult{Session: sess, Token: token}, nil
}

// Stop performs the ACTIVE→ENDED transition for the actor's running
// session. The effect is deliberately not "revert to admin": the whole
// auth session is revoked, so the pre-impersonation credential dies too
// and the admin must authenticate again.
func (s *Service) Stop(ctx context.Context, actor *shared.Identity) error {
	if actor == nil {
		return shared.ErrUnauthenticated
	}
	sess, err := s.repo.ActiveByAdmin(ctx, actor.ActorID())
	if err != nil {
		return err
	}
	return s.end(ctx, actor, sess, "impersonation.stop")
}

// List returns the tenant's impersonation audit trail.
func (s *Service) List(ctx context.Context, tenantID int64, page, perPage int) ([]Session, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	list, total, err := s.repo.ListByTenant(ctx, tenantID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// ExpireOlderThan force-ends sessions running longer than maxAge and
// revokes their auth sessions. Called from the background sweep.
func (s *Service) ExpireOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	expired, err := s.repo.EndStartedBefore(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	for _, sess := range expired {
		if err := s.revoker.RevokeSession(ctx, sess.AuthSessionID); err != nil && s.logger != nil {
			s.logger.Error("revoke expired impersonation session", slog.Int64("session_id", sess.ID), slog.Any("error", err))
		}
		actor := &shared.Identity{UserID: sess.AdminUserID, TenantID: sess.TenantID, Email: sess.AdminEmail}
		s.record(ctx, actor, sess, "impersonation.expire", nil)
		if s.metrics != nil {
			s.metrics.ImpersonationEnded("expired")
		}
	}
	return len(expired), nil
}

func (s *Service) end(ctx context.Context, actor *shared.Identity, sess Session, action string) error {
	ended, err := s.repo.End(ctx, sess.ID)
	if err != nil {
		return err
	}
	if err := s.revoker.RevokeSession(ctx, ended.AuthSessionID); err != nil {
		return err
	}
	if s.invalidator != nil {
		if err := s.invalidator.InvalidateUser(ctx, ended.TenantID, ended.TargetUserID); err != nil && s.logger != nil {
			s.logger.Warn("invalidate target resolutions", slog.Any("error", err))
		}
	}
	s.record(ctx, actor, ended, action, map[string]any{"target_user_id": ended.TargetUserID})
	if s.metrics != nil {
		s.metrics.ImpersonationEnded("stopped")
	}
	return nil
}

func (s *Service) record(ctx context.Context, actor *shared.Identity, sess Session, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.ActorID(),
		TenantID:  actor.TenantID,
		Action:    action,
		Entity:    "impersonation_session",
		EntityID:  strconv.FormatInt(sess.ID, 10),
		IP:        sess.IP,
		UserAgent: sess.UserAgent,
		Meta:      meta,
	})
}

func (s *Service) recordDenied(ctx context.Context, actor *shared.Identity, targetUserID int64, ip, userAgent, reason string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.ActorID(),
		TenantID:  actor.TenantID,
		Action:    "impersonation.start.denied",
		Entity:    "user",
		EntityID:  strconv.FormatInt(targetUserID, 10),
		IP:        ip,
		UserAgent: userAgent,
		Meta:      map[string]any{"reason": reason},
	})
}
