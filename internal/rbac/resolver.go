package rbac

import (
	"context"

	"github.com/tempora-app/tempora/internal/capability"
)

// CapabilitySet is the conflict-resolved authority of a user at request
// time. It acts as a matcher rather than a flat list so wildcard grants
// need no catalog expansion on the hot path.
type CapabilitySet struct {
	admin  bool
	grants map[capability.Capability]struct{}
	denies map[capability.Capability]struct{}
}

// NewCapabilitySet builds a set from explicit grant and deny lists.
// Malformed identifiers are dropped.
func NewCapabilitySet(admin bool, grants, denies []string) CapabilitySet {
	set := CapabilitySet{
		admin:  admin,
		grants: make(map[capability.Capability]struct{}, len(grants)),
		denies: make(map[capability.Capability]struct{}, len(denies)),
	}
	for _, raw := range grants {
		if cap, err := capability.Parse(raw); err == nil {
			set.grants[cap] = struct{}{}
		}
	}
	for _, raw := range denies {
		if cap, err := capability.Parse(raw); err == nil {
			set.denies[cap] = struct{}{}
		}
	}
	return set
}

// IsAdmin reports whether the set came from the reserved admin role.
func (s CapabilitySet) IsAdmin() bool {
	return s.admin
}

// Has reports whether the set satisfies a check for the given capability.
// An explicit deny wins over any grant, including a wildcard grant of the
// same resource; the admin shortcut wins over everything.
func (s CapabilitySet) Has(want capability.Capability) bool {
	if s.admin {
		return true
	}
	for deny := range s.denies {
		if deny.Covers(want) {
			return false
		}
	}
	for grant := range s.grants {
		if grant.Covers(want) {
			return true
		}
	}
	return false
}

// HasAll reports whether every capability is satisfied.
func (s CapabilitySet) HasAll(want []capability.Capability) bool {
	for _, cap := range want {
		if !s.Has(cap) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one capability is satisfied.
func (s CapabilitySet) HasAny(want []capability.Capability) bool {
	for _, cap := range want {
		if s.Has(cap) {
			return true
		}
	}
	return len(want) == 0
}

// Grants returns the raw grant identifiers, wildcards included.
func (s CapabilitySet) Grants() []string {
	out := make([]string, 0, len(s.grants))
	for cap := range s.grants {
		out = append(out, cap.String())
	}
	return out
}

// Denies returns the raw deny identifiers.
func (s CapabilitySet) Denies() []string {
	out := make([]string, 0, len(s.denies))
	for cap := range s.denies {
		out = append(out, cap.String())
	}
	return out
}

// Expand lists the concrete capabilities of the catalog satisfied by the
// set. Wildcard catalog entries are skipped; they are grant syntax, not
// checkable actions.
func (s CapabilitySet) Expand(catalog []capability.Record) []string {
	var out []string
	for _, rec := range catalog {
		if rec.Name.IsWildcard() {
			continue
		}
		if s.Has(rec.Name) {
			out = append(out, rec.Name.String())
		}
	}
	return out
}

// ResolverRepositoryPort is the persistence surface the resolver walks.
type ResolverRepositoryPort interface {
	RolesForUser(ctx context.Context, userID, tenantID int64) ([]Role, error)
	GrantsForRoles(ctx context.Context, roleIDs []int64) ([]Grant, error)
}

// Resolver computes the effective capability set for a user identity
// within a tenant.
type Resolver struct {
	repo ResolverRepositoryPort
}

// NewResolver constructs a Resolver.
func NewResolver(repo ResolverRepositoryPort) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve loads the user's tenant-scoped and system roles and merges
// their grants under the deny-wins rule. A user with no roles resolves to
// the empty set. Grants referencing soft-deleted capabilities never reach
// the repository result and malformed rows are skipped, not errors.
func (r *Resolver) Resolve(ctx context.Context, userID, tenantID int64) (CapabilitySet, error) {
	roles, err := r.repo.RolesForUser(ctx, userID, tenantID)
	if err != nil {
		return CapabilitySet{}, err
	}
	if len(roles) == 0 {
		return NewCapabilitySet(false, nil, nil), nil
	}

	names := make([]string, len(roles))
	roleIDs := make([]int64, len(roles))
	for i, role := range roles {
		names[i] = role.Name
		roleIDs[i] = role.ID
	}
	if IsAdminRole(names...) {
		// Explicit shortcut, not wildcard expansion.
		return NewCapabilitySet(true, nil, nil), nil
	}

	grants, err := r.repo.GrantsForRoles(ctx, roleIDs)
	if err != nil {
		return CapabilitySet{}, err
	}

	set := CapabilitySet{
		grants: make(map[capability.Capability]struct{}),
		denies: make(map[capability.Capability]struct{}),
	}
	for _, grant := range grants {
		if grant.Capability.IsZero() {
			continue
		}
		if grant.IsAllowed {
			set.grants[grant.Capability] = struct{}{}
		} else {
			set.denies[grant.Capability] = struct{}{}
		}
	}
	return set, nil
}
