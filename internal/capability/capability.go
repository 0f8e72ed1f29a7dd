// Package capability defines the permission identifier value type and the
// seed-managed catalog that is the only way to obtain one.
package capability

import (
	"errors"
	"fmt"
	"strings"
)

// Wildcard is the action matching every action under a resource.
const Wildcard = "*"

// ErrMalformed indicates an identifier that is not resource:action.
var ErrMalformed = errors.New("capability: malformed identifier")

// Capability is a validated permission identifier of the form
// resource:action, where action may be the wildcard.
type Capability struct {
	resource string
	action   string
}

// Parse validates a raw identifier. Identifiers are lowercase, with
// resource and action drawn from [a-z0-9_-]; only the action position may
// hold the wildcard.
func Parse(raw string) (Capability, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Capability{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	if !validSegment(resource) {
		return Capability{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	if action != Wildcard && !validSegment(action) {
		return Capability{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	return Capability{resource: resource, action: action}, nil
}

// MustParse parses a trusted identifier, panicking on failure. Reserved
// for compiled-in constants.
func MustParse(raw string) Capability {
	cap, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return cap
}

// String returns the canonical resource:action form.
func (c Capability) String() string {
	return c.resource + ":" + c.action
}

// Resource returns the namespace segment.
func (c Capability) Resource() string {
	return c.resource
}

// Action returns the action segment, possibly the wildcard.
func (c Capability) Action() string {
	return c.action
}

// IsWildcard reports whether the capability covers every action under its
// resource.
func (c Capability) IsWildcard() bool {
	return c.action == Wildcard
}

// IsZero reports whether the capability is the zero value.
func (c Capability) IsZero() bool {
	return c.resource == "" && c.action == ""
}

// Covers reports whether a grant of c satisfies a check for want. A
// wildcard covers every concrete action sharing its resource; a concrete
// capability only covers itself.
func (c Capability) Covers(want Capability) bool {
	if c.resource != want.resource {
		return false
	}
	if c.action == Wildcard {
		return true
	}
	return c.action == want.action
}

func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
