package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates a request without a valid identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates an authenticated identity failing a capability check.
	// The message stays generic so callers cannot enumerate missing capabilities.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates an active lockout on the account.
	ErrAccountLocked = errors.New("account locked")
	// ErrDuplicate indicates a uniqueness conflict on create/update.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrTargetInvalid indicates an impersonation target that is deleted,
	// inactive, cross-tenant, an admin, or the actor themselves.
	ErrTargetInvalid = errors.New("impersonation target invalid")
	// ErrSessionConflict indicates a second concurrent impersonation attempt.
	ErrSessionConflict = errors.New("impersonation session already active")
)
