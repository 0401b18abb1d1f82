package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ban blocks a principal from logging in. At most one ban exists per
// principal; creating another replaces it.
type Ban struct {
	PrincipalID uuid.UUID
	Reason      string
	// Expires is nil for an indefinite ban.
	Expires *time.Time
}

// IsActive reports whether the ban is in force at the given instant.
// A ban with no expiry never lapses.
func (b Ban) IsActive(now time.Time) bool {
	if b.Expires == nil {
		return true
	}
	return now.Before(*b.Expires)
}
