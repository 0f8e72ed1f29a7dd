package audit

import (
	"encoding/json"
	"time"
)

// Entry is one row of the audit trail. Entries are append-only and are
// kept even after the actor or target has been soft-deleted.
type Entry struct {
	ID        int64
	TenantID  int64
	ActorID   int64
	Action    string
	Entity    string
	EntityID  string
	IP        string
	UserAgent string
	Meta      json.RawMessage
	At        time.Time
}

// TimelineFilters narrows a timeline query. Zero values mean "no filter".
type TimelineFilters struct {
	From    time.Time
	To      time.Time
	ActorID int64
	Action  string
	Entity  string
}
