// Package impersonation implements the bounded "admin acting as user"
// session state machine with its audit trail.
package impersonation

import "time"

// State of an impersonation session. There is no resume: once ended, a
// new session is a new entity.
type State string

const (
	// StateActive marks a running session.
	StateActive State = "active"
	// StateEnded marks a terminated session.
	StateEnded State = "ended"
)

// Session records an admin acting as a target user. AuthSessionID binds
// the impersonation to the admin's authenticated session: ending the
// impersonation revokes that whole session, so the admin must log in
// again. Rows are never deleted; they are the audit trail.
type Session struct {
	ID            int64
	TenantID      int64
	AdminUserID   int64
	AdminEmail    string
	TargetUserID  int64
	AuthSessionID string
	IP            string
	UserAgent     string
	StartedAt     time.Time
	EndedAt       *time.Time
}

// State derives the lifecycle state from EndedAt.
func (s Session) State() State {
	if s.EndedAt != nil {
		return StateEnded
	}
	return StateActive
}
