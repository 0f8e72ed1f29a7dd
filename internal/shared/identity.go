package shared

import "time"

// Impersonation annotates an identity that is acting as another user.
// It always carries the real admin so audit trails can distinguish
// "acting as" from "is".
type Impersonation struct {
	SessionID  int64
	AdminID    int64
	AdminEmail string
	StartedAt  time.Time
}

// Identity is the authenticated actor attached to a request after
// credential verification. When Impersonation is non-nil, UserID is the
// impersonation target and every capability check resolves against it.
type Identity struct {
	UserID        int64
	TenantID      int64
	Email         string
	SessionID     string
	Impersonation *Impersonation
}

// IsImpersonating reports whether the identity is an admin acting as
// another user.
func (id *Identity) IsImpersonating() bool {
	return id != nil && id.Impersonation != nil
}

// ActorID returns the user responsible for the request: the real admin
// while impersonating, otherwise the user themselves. Audit records use
// this, capability resolution never does.
func (id *Identity) ActorID() int64 {
	if id == nil {
		return 0
	}
	if id.Impersonation != nil {
		return id.Impersonation.AdminID
	}
	return id.UserID
}
