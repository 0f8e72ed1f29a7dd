package shared

// Core platform capabilities. Wildcards grant every action under the
// resource namespace; the catalog rejects anything not listed here or
// seeded alongside.
const (
	CapUsersRead  = "users:read"
	CapUsersWrite = "users:write"

	CapRolesRead   = "roles:read"
	CapRolesWrite  = "roles:write"
	CapRolesAssign = "roles:assign"

	CapCapabilitiesRead = "capabilities:read"

	CapImpersonationStart = "impersonation:start"

	CapAuditRead = "audit:read"

	CapAdminAll = "admin:*"
)

// CoreCapabilities lists every capability the platform itself seeds.
func CoreCapabilities() []string {
	return []string{
		CapUsersRead,
		CapUsersWrite,
		CapRolesRead,
		CapRolesWrite,
		CapRolesAssign,
		CapCapabilitiesRead,
		CapImpersonationStart,
		CapAuditRead,
		CapAdminAll,
	}
}
