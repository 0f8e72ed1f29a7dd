// Package rbac implements role/capability based authorization with
// explicit allow/deny grants, deny-wins conflict resolution and a cached
// request-time enforcement gate.
package rbac

import (
	"time"

	"github.com/tempora-app/tempora/internal/capability"
)

// AdminRoleName is the reserved system role that is treated as holding
// every capability. The shortcut lives in IsAdminRole so the resolver,
// the gate and UI-visibility collaborators can never diverge.
const AdminRoleName = "admin"

// Role represents a named bundle of capability grants and denials. A nil
// TenantID marks a system role available to every tenant.
type Role struct {
	ID          int64
	TenantID    *int64
	Name        string
	Description string
	IsSeeded    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsGlobal reports whether the role is a system role.
func (r Role) IsGlobal() bool {
	return r.TenantID == nil
}

// Grant is a (role, capability) pair carrying an explicit polarity.
// Presence with IsAllowed=false is an explicit deny that overrides a
// grant of the same capability from any other role the user holds;
// absence means the role does not address the capability at all.
type Grant struct {
	RoleID       int64
	CapabilityID int64
	Capability   capability.Capability
	IsAllowed    bool
	CreatedAt    time.Time
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}

// IsAdminRole reports whether any of the role names is the reserved admin
// role. This is the single admin-bypass policy function; no caller may
// string-match the role name itself.
func IsAdminRole(names ...string) bool {
	for _, name := range names {
		if name == AdminRoleName {
			return true
		}
	}
	return false
}
