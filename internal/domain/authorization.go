package domain

import (
	"time"

	"github.com/google/uuid"
)

// StartAuthorization is one generation of a trip's start code: the PIN a
// passenger shows a driver to prove the trip may begin. At most one generation
// per trip is live at any time; renewal supersedes the previous generation and
// successful verification consumes the live one. Superseded generations are
// retained for audit but never verify again.
type StartAuthorization struct {
	ID           uuid.UUID  `json:"id"`
	TripID       uuid.UUID  `json:"trip_id"`
	PIN          string     `json:"pin"`
	Generation   int        `json:"generation"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`   // set the instant verification succeeds
	SupersededAt *time.Time `json:"superseded_at,omitempty"` // set when a renewal replaces this generation
	CreatedAt    time.Time  `json:"created_at"`
}

// Live reports whether this record is the trip's current, unconsumed
// authorization. Expiry is deliberately not part of liveness: an expired but
// current record still occupies the trip's single authorization slot, and
// verification reports expiry as its own distinct outcome.
func (a StartAuthorization) Live() bool {
	return a.SupersededAt == nil && a.ConsumedAt == nil
}

// Expired reports whether the validity window has passed at the given instant.
func (a StartAuthorization) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}
