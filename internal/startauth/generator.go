package startauth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// PINLength is the fixed length of every start-code PIN. The length and the
// all-digit alphabet are stable for the lifetime of the system so client UIs
// never need format negotiation.
const PINLength = 6

// pinSpace is 10^PINLength, the number of possible PINs.
var pinSpace = big.NewInt(1_000_000)

// Code is a freshly generated, not-yet-persisted start code. The generator is
// pure: persisting the code as a trip's current authorization is the repo's
// job.
type Code struct {
	PIN       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Generator produces unpredictable PINs with policy-derived validity windows.
type Generator struct {
	policy Policy
	now    func() time.Time
}

// NewGenerator constructs a Generator using the given expiry policy and the
// system clock.
func NewGenerator(policy Policy) *Generator {
	return &Generator{policy: policy, now: time.Now}
}

// NewGeneratorWithClock is like NewGenerator but with an injectable clock,
// for tests that need deterministic timestamps.
func NewGeneratorWithClock(policy Policy, now func() time.Time) *Generator {
	return &Generator{policy: policy, now: now}
}

// Generate draws a PIN from crypto/rand and stamps it with the policy's
// validity window. PINs are uniform over the full 6-digit space including
// leading zeros; uniqueness is only required within a single trip's live
// window, so cross-trip collisions are harmless.
func (g *Generator) Generate() (Code, error) {
	n, err := rand.Int(rand.Reader, pinSpace)
	if err != nil {
		return Code{}, fmt.Errorf("startauth.Generator.Generate: %w", err)
	}

	issuedAt := g.now().UTC().Truncate(time.Millisecond)
	return Code{
		PIN:       fmt.Sprintf("%0*d", PINLength, n),
		IssuedAt:  issuedAt,
		ExpiresAt: g.policy.ExpiresAt(issuedAt),
	}, nil
}
