package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/secure/precis"

	"github.com/tempora-app/tempora/internal/shared"
	"github.com/tempora-app/tempora/internal/users"
)

// UserLookup is the slice of the user store auth depends on.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (users.User, error)
	GetByID(ctx context.Context, id int64) (users.User, error)
}

// RepositoryPort defines persistence for attempts, lockouts and the
// session audit mirror.
type RepositoryPort interface {
	CreateSession(ctx context.Context, sess Session) error
	MarkSessionRevoked(ctx context.Context, id string) error
	RecordLoginAttempt(ctx context.Context, userID *int64, email, ip string, success bool) error
	FailedAttemptsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	CreateLockout(ctx context.Context, userID int64, reason string, until time.Time) error
	HasActiveLockout(ctx context.Context, userID int64) (bool, error)
}

// LockoutPolicy bounds the rate of failed logins per account.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
	Duration  time.Duration
}

// DefaultLockoutPolicy is applied when fields are left zero.
var DefaultLockoutPolicy = LockoutPolicy{Threshold: 5, Window: 15 * time.Minute, Duration: 30 * time.Minute}

func (p LockoutPolicy) withDefaults() LockoutPolicy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutPolicy.Threshold
	}
	if p.Window <= 0 {
		p.Window = DefaultLockoutPolicy.Window
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutPolicy.Duration
	}
	return p
}

// Service wraps authentication business rules.
type Service struct {
	userLookup UserLookup
	repo       RepositoryPort
	sessions   *SessionStore
	tokens     *TokenIssuer
	policy     LockoutPolicy
	logger     *slog.Logger
}

// NewService constructs a new Service.
func NewService(userLookup UserLookup, repo RepositoryPort, sessions *SessionStore, tokens *TokenIssuer, policy LockoutPolicy, logger *slog.Logger) *Service {
	return &Service{
		userLookup: userLookup,
		repo:       repo,
		sessions:   sessions,
		tokens:     tokens,
		policy:     policy.withDefaults(),
		logger:     logger,
	}
}

// NormalizeEmail canonicalizes a login identifier. Invalid identifiers
// fail closed as bad credentials.
func NormalizeEmail(raw string) (string, error) {
	normalized, err := precis.UsernameCaseMapped.String(raw)
	if err != nil {
		return "", shared.ErrInvalidCredentials
	}
	return normalized, nil
}

// Login validates credentials, applies lockout policy and mints an
// access token bound to a fresh session.
func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (string, Session, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return "", Session{}, err
	}

	user, err := s.userLookup.GetByEmail(ctx, normalized)
	if err != nil {
		// Record against no user, then fail identically to a bad
		// password so account existence is not probeable.
		_ = s.repo.RecordLoginAttempt(ctx, nil, normalized, ip, false)
		return "", Session{}, shared.ErrInvalidCredentials
	}

	locked, err := s.repo.HasActiveLockout(ctx, user.ID)
	if err != nil {
		return "", Session{}, err
	}
	if locked {
		return "", Session{}, shared.ErrAccountLocked
	}

	if !user.IsActive || user.IsDeleted() {
		_ = s.repo.RecordLoginAttempt(ctx, &user.ID, normalized, ip, false)
		return "", Session{}, shared.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if err := s.registerFailure(ctx, user.ID, normalized, ip); err != nil && s.logger != nil {
			s.logger.Warn("register login failure", slog.Any("error", err))
		}
		return "", Session{}, shared.ErrInvalidCredentials
	}

	_ = s.repo.RecordLoginAttempt(ctx, &user.ID, normalized, ip, true)

	now := time.Now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessions.TTL()),
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return "", Session{}, err
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil && s.logger != nil {
		s.logger.Warn("mirror session", slog.Any("error", err))
	}

	token, err := s.tokens.Mint(user.ID, user.TenantID, user.Email, sess.ID, nil)
	if err != nil {
		return "", Session{}, err
	}
	return token, sess, nil
}

// Logout revokes the identity's session and everything minted under it.
func (s *Service) Logout(ctx context.Context, identity *shared.Identity) error {
	if identity == nil {
		return shared.ErrUnauthenticated
	}
	return s.RevokeSession(ctx, identity.SessionID)
}

// RevokeSession deletes the live session and stamps the audit mirror.
// Revocation is immediate: the next request carrying any token bound to
// the session is unauthenticated.
func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	if err := s.repo.MarkSessionRevoked(ctx, sessionID); err != nil && s.logger != nil {
		s.logger.Warn("mark session revoked", slog.Any("error", err))
	}
	return nil
}

// HasActiveLockout implements the gate's lockout check.
func (s *Service) HasActiveLockout(ctx context.Context, userID int64) (bool, error) {
	return s.repo.HasActiveLockout(ctx, userID)
}

func (s *Service) registerFailure(ctx context.Context, userID int64, email, ip string) error {
	if err := s.repo.RecordLoginAttempt(ctx, &userID, email, ip, false); err != nil {
		return err
	}
	failures, err := s.repo.FailedAttemptsSince(ctx, userID, time.Now().Add(-s.policy.Window))
	if err != nil {
		return err
	}
	if failures < s.policy.Threshold {
		return nil
	}
	return s.repo.CreateLockout(ctx, userID, "too many failed logins", time.Now().Add(s.policy.Duration))
}
