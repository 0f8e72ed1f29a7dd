package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tempora-app/tempora/internal/shared"
)

const tokenIssuer = "tempora"

// ImpersonationClaims annotates a token whose subject is an impersonation
// target. The five fields let every downstream check and audit record
// distinguish "acting as" from "is".
type ImpersonationClaims struct {
	SessionID  int64     `json:"session_id"`
	AdminID    int64     `json:"admin_id"`
	AdminEmail string    `json:"admin_email"`
	StartedAt  time.Time `json:"started_at"`
}

// Claims is the access-token payload. Subject is the user the token acts
// as: the account holder, or the impersonation target when the
// impersonation block is present.
type Claims struct {
	jwt.RegisteredClaims
	TenantID      int64                `json:"tenant_id"`
	Email         string               `json:"email"`
	SessionID     string               `json:"sid"`
	Impersonation *ImpersonationClaims `json:"impersonation,omitempty"`
}

// TokenIssuer mints and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Mint issues a token for the given subject bound to a session.
func (t *TokenIssuer) Mint(subjectID, tenantID int64, email, sessionID string, imp *ImpersonationClaims) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatInt(subjectID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.NewString(),
		},
		TenantID:      tenantID,
		Email:         email,
		SessionID:     sessionID,
		Impersonation: imp,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a raw token. Any failure surfaces as
// ErrUnauthenticated; callers get no detail about why.
func (t *TokenIssuer) Verify(raw string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return nil, shared.ErrUnauthenticated
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return nil, shared.ErrUnauthenticated
	}
	return &claims, nil
}

// TTL exposes the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// SubjectID parses the numeric subject of verified claims.
func (c *Claims) SubjectID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("auth: bad subject: %w", errors.Join(err, shared.ErrUnauthenticated))
	}
	return id, nil
}

// Identity converts verified claims into the request identity.
func (c *Claims) Identity() (*shared.Identity, error) {
	subject, err := c.SubjectID()
	if err != nil {
		return nil, err
	}
	identity := &shared.Identity{
		UserID:    subject,
		TenantID:  c.TenantID,
		Email:     c.Email,
		SessionID: c.SessionID,
	}
	if c.Impersonation != nil {
		identity.Impersonation = &shared.Impersonation{
			SessionID:  c.Impersonation.SessionID,
			AdminID:    c.Impersonation.AdminID,
			AdminEmail: c.Impersonation.AdminEmail,
			StartedAt:  c.Impersonation.StartedAt,
		}
	}
	return identity, nil
}
