// Package auth owns credential verification, access-token issuance and
// the server-side session records that make token revocation immediate.
package auth

import "time"

// Session is the server-side record an access token is bound to. A token
// is only honored while its session is live; deleting the session revokes
// every token minted under it at once.
type Session struct {
	ID        string
	UserID    int64
	TenantID  int64
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// LoginAttempt records a login outcome for lockout accounting.
type LoginAttempt struct {
	ID        int64
	UserID    *int64
	Email     string
	IP        string
	Success   bool
	CreatedAt time.Time
}

// Lockout is an active block on an account after repeated failures.
// While a lockout is active, both login and the enforcement gate treat
// the account as hard-blocked independent of capabilities.
type Lockout struct {
	ID        int64
	UserID    int64
	Reason    string
	CreatedAt time.Time
	ExpiresAt time.Time
}
