package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tempora-app/tempora/internal/capability"
	platformdb "github.com/tempora-app/tempora/internal/platform/db"
	"github.com/tempora-app/tempora/internal/shared"
)

const roleColumns = `id, tenant_id, name, description, is_seeded, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for roles, grants and
// user-role assignments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns the tenant's roles plus system roles, ordered by name.
func (r *Repository) ListRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 OR tenant_id IS NULL ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	return scanRole(row)
}

// GetRoleByName fetches a role by name within a tenant, falling back to
// the system role of the same name.
func (r *Repository) GetRoleByName(ctx context.Context, tenantID int64, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1 AND (tenant_id = $2 OR tenant_id IS NULL) ORDER BY tenant_id NULLS LAST LIMIT 1`, name, tenantID)
	return scanRole(row)
}

// CreateRole inserts a tenant-scoped role. System roles only come from
// the seed path.
func (r *Repository) CreateRole(ctx context.Context, tenantID int64, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (tenant_id, name, description, is_seeded, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NOW(), NOW())
		RETURNING `+roleColumns, tenantID, name, description)
	return scanRole(row)
}

// EnsureSystemRole upserts a seeded role with a NULL tenant.
func (r *Repository) EnsureSystemRole(ctx context.Context, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (tenant_id, name, description, is_seeded, created_at, updated_at)
		VALUES (NULL, $1, $2, TRUE, NOW(), NOW())
		ON CONFLICT (name) WHERE tenant_id IS NULL DO UPDATE
		SET description = EXCLUDED.description, updated_at = NOW()
		RETURNING `+roleColumns, name, description)
	return scanRole(row)
}

// UpdateRole updates name/description of a non-seeded role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1 AND is_seeded = FALSE
		RETURNING `+roleColumns, id, name, description)
	return scanRole(row)
}

// DeleteRole removes a non-seeded role together with its grants and
// assignments.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	return platformdb.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_capabilities WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND is_seeded = FALSE`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// ListGrants returns a role's grants joined with live capability names.
func (r *Repository) ListGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rc.role_id, rc.capability_id, c.name, rc.is_allowed, rc.created_at
		FROM role_capabilities rc
		JOIN capabilities c ON c.id = rc.capability_id AND c.deleted_at IS NULL
		WHERE rc.role_id = $1
		ORDER BY c.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrants(rows)
}

// ReplaceGrants swaps the full grant/deny set of a role atomically.
func (r *Repository) ReplaceGrants(ctx context.Context, roleID int64, entries []Grant) error {
	return platformdb.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_capabilities WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, entry := range entries {
			if _, err := tx.Exec(ctx, `
				INSERT INTO role_capabilities (role_id, capability_id, is_allowed, created_at)
				VALUES ($1, $2, $3, NOW())`, roleID, entry.CapabilityID, entry.IsAllowed); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRole links a user to a role; repeated assignment is a no-op.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, role_id) DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole unlinks a user from a role.
func (r *Repository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RolesForUser returns the user's roles scoped to the tenant plus any
// system roles they hold.
func (r *Repository) RolesForUser(ctx context.Context, userID, tenantID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.tenant_id, r.name, r.description, r.is_seeded, r.created_at, r.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND (r.tenant_id = $2 OR r.tenant_id IS NULL)
		ORDER BY r.id`, userID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRoles(rows)
}

// GrantsForRoles returns every grant of the given roles joined with live
// capability names. Grants pointing at soft-deleted capabilities never
// appear in the result.
func (r *Repository) GrantsForRoles(ctx context.Context, roleIDs []int64) ([]Grant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rc.role_id, rc.capability_id, c.name, rc.is_allowed, rc.created_at
		FROM role_capabilities rc
		JOIN capabilities c ON c.id = rc.capability_id AND c.deleted_at IS NULL
		WHERE rc.role_id = ANY($1)`, roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrants(rows)
}

// UserIDsWithRole lists users holding the role, for cache invalidation
// after role-level mutations.
func (r *Repository) UserIDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description, &role.IsSeeded, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func scanGrants(rows pgx.Rows) ([]Grant, error) {
	var grants []Grant
	for rows.Next() {
		var (
			grant Grant
			name  string
		)
		if err := rows.Scan(&grant.RoleID, &grant.CapabilityID, &name, &grant.IsAllowed, &grant.CreatedAt); err != nil {
			return nil, err
		}
		cap, err := capability.Parse(name)
		if err != nil {
			// Data hygiene: a malformed catalog row must not fail the
			// whole resolution.
			continue
		}
		grant.Capability = cap
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}
