package capability

import "time"

// Record is a catalog entry. Seeded entries come from the platform seed
// and resist deletion; any entry resists deletion while a role references
// it.
type Record struct {
	ID          int64
	Name        Capability
	Description string
	IsSeeded    bool
	CreatedAt   time.Time
	DeletedAt   *time.Time
}
