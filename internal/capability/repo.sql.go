package capability

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tempora-app/tempora/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns all live catalog entries ordered by name.
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, is_seeded, created_at, deleted_at FROM capabilities WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetByName fetches a live catalog entry by its canonical identifier.
func (r *Repository) GetByName(ctx context.Context, name string) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, description, is_seeded, created_at, deleted_at FROM capabilities WHERE name = $1 AND deleted_at IS NULL`, name)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, shared.ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// Ensure upserts a catalog entry, keeping the description current. Seeded
// entries stay seeded even if re-ensured without the flag.
func (r *Repository) Ensure(ctx context.Context, name, description string, seeded bool) (Record, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO capabilities (name, description, is_seeded, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description,
		    is_seeded = capabilities.is_seeded OR EXCLUDED.is_seeded,
		    deleted_at = NULL
		RETURNING id, name, description, is_seeded, created_at, deleted_at`,
		name, description, seeded)
	return scanRecord(row)
}

// ReferenceCount counts role_capabilities rows pointing at the entry.
func (r *Repository) ReferenceCount(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM role_capabilities WHERE capability_id = $1`, id).Scan(&n)
	return n, err
}

// SoftDelete marks an entry deleted. Rows with live references are left
// untouched; the caller checks ReferenceCount first and this guard closes
// the race.
func (r *Repository) SoftDelete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE capabilities SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		  AND NOT EXISTS (SELECT 1 FROM role_capabilities rc WHERE rc.capability_id = capabilities.id)`,
		id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec  Record
		name string
	)
	if err := row.Scan(&rec.ID, &name, &rec.Description, &rec.IsSeeded, &rec.CreatedAt, &rec.DeletedAt); err != nil {
		return Record{}, err
	}
	cap, err := Parse(name)
	if err != nil {
		return Record{}, err
	}
	rec.Name = cap
	return rec, nil
}
