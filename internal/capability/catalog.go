package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/tempora-app/tempora/internal/shared"
)

var (
	// ErrSeeded indicates a deletion attempt against a seed-managed entry.
	ErrSeeded = errors.New("capability: seeded entries are not deletable")
	// ErrReferenced indicates a deletion attempt against an entry still
	// referenced by a role.
	ErrReferenced = errors.New("capability: entry referenced by a role")
)

// RepositoryPort defines catalog persistence.
type RepositoryPort interface {
	List(ctx context.Context) ([]Record, error)
	GetByName(ctx context.Context, name string) (Record, error)
	Ensure(ctx context.Context, name, description string, seeded bool) (Record, error)
	ReferenceCount(ctx context.Context, id int64) (int64, error)
	SoftDelete(ctx context.Context, id int64) (bool, error)
}

// Catalog is the only constructor of capabilities used in role grants.
// Unknown identifiers are rejected here, at assignment time, not at every
// request-time check.
type Catalog struct {
	repo RepositoryPort
}

// NewCatalog constructs a Catalog.
func NewCatalog(repo RepositoryPort) *Catalog {
	return &Catalog{repo: repo}
}

// List returns all live entries.
func (c *Catalog) List(ctx context.Context) ([]Record, error) {
	return c.repo.List(ctx)
}

// Lookup validates the identifier syntax and confirms the catalog knows
// it. Returns shared.ErrNotFound for unknown identifiers.
func (c *Catalog) Lookup(ctx context.Context, raw string) (Record, error) {
	cap, err := Parse(raw)
	if err != nil {
		return Record{}, err
	}
	return c.repo.GetByName(ctx, cap.String())
}

// CoreSeed maps the platform capabilities to their catalog descriptions.
func CoreSeed() map[string]string {
	return map[string]string{
		shared.CapUsersRead:          "List and view users in the tenant",
		shared.CapUsersWrite:         "Create and modify users in the tenant",
		shared.CapRolesRead:          "View roles and their grants",
		shared.CapRolesWrite:         "Create and modify tenant roles",
		shared.CapRolesAssign:        "Assign roles to users",
		shared.CapCapabilitiesRead:   "Browse the capability catalog",
		shared.CapImpersonationStart: "Start an impersonation session",
		shared.CapAuditRead:          "Read the tenant audit trail",
		shared.CapAdminAll:           "Full administrative access",
	}
}

// Seed ensures the given identifiers exist as seed-managed entries.
func (c *Catalog) Seed(ctx context.Context, entries map[string]string) error {
	for name, description := range entries {
		if _, err := Parse(name); err != nil {
			return err
		}
		if _, err := c.repo.Ensure(ctx, name, description, true); err != nil {
			return fmt.Errorf("capability: seed %s: %w", name, err)
		}
	}
	return nil
}

// Register adds a tenant-defined entry to the catalog.
func (c *Catalog) Register(ctx context.Context, raw, description string) (Record, error) {
	cap, err := Parse(raw)
	if err != nil {
		return Record{}, err
	}
	return c.repo.Ensure(ctx, cap.String(), description, false)
}

// Delete soft-deletes an entry. Seeded entries and entries still
// referenced by a role are refused.
func (c *Catalog) Delete(ctx context.Context, raw string) error {
	rec, err := c.Lookup(ctx, raw)
	if err != nil {
		return err
	}
	if rec.IsSeeded {
		return ErrSeeded
	}
	refs, err := c.repo.ReferenceCount(ctx, rec.ID)
	if err != nil {
		return err
	}
	if refs > 0 {
		return ErrReferenced
	}
	deleted, err := c.repo.SoftDelete(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !deleted {
		// Lost the race against a concurrent role grant.
		return ErrReferenced
	}
	return nil
}
