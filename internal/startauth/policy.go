// Package startauth contains the pure core of the trip start authorization
// subsystem: expiry policy, PIN generation, and the QR token codec. Nothing in
// this package touches the database or the network; persistence and
// orchestration live in repo and service.
package startauth

import "time"

// Policy centralizes validity-window math so issuance and client-facing
// near-expiry warnings can never drift apart. The window is fixed by policy,
// never caller-supplied.
type Policy struct {
	// Window is the length of a code's validity window.
	Window time.Duration

	// NearExpiry is how close to ExpiresAt a code must be before clients
	// should prompt the passenger to renew proactively.
	NearExpiry time.Duration
}

// DefaultPolicy returns the production policy: codes live for 5 minutes and
// clients are prompted to renew during the final minute.
func DefaultPolicy() Policy {
	return Policy{Window: 5 * time.Minute, NearExpiry: time.Minute}
}

// ExpiresAt returns the end of the validity window for a code issued at the
// given instant.
func (p Policy) ExpiresAt(issuedAt time.Time) time.Time {
	return issuedAt.Add(p.Window)
}

// IsNearExpiry reports whether a code expiring at expiresAt is within the
// renewal-prompt threshold at the given instant. A code past its expiry is
// also "near expiry" — the prompt to renew still applies.
func (p Policy) IsNearExpiry(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt.Add(-p.NearExpiry))
}
