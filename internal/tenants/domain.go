package tenants

import "time"

// Tenant is an isolated customer workspace. Roles and users never cross
// tenant boundaries; a NULL tenant reference on a role marks it as a
// system role visible to every tenant.
type Tenant struct {
	ID        int64
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
	DeletedAt *time.Time
}
