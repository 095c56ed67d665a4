// Package service contains the business logic for the dispatch backend.
// Services validate inputs, enforce business rules, and orchestrate repo calls.
// No SQL lives here — services depend on repo interfaces, not implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/farelane/dispatch/backend/internal/domain"
	"github.com/farelane/dispatch/backend/internal/events"
	"github.com/farelane/dispatch/backend/internal/repo"
	"github.com/farelane/dispatch/backend/internal/startauth"
)

// storeTimeout bounds every persistence call. A store that cannot answer in
// this long surfaces as domain.ErrStoreUnavailable; the caller decides
// whether to retry.
const storeTimeout = 3 * time.Second

// TripGateway is the trip lifecycle collaborator as seen by start
// authorization. TripService implements it; tests inject a mock.
type TripGateway interface {
	// IsEligibleForStartCode reports whether the trip is in a state that
	// permits issuing and verifying start codes (CONFIRMED).
	IsEligibleForStartCode(ctx context.Context, tripID uuid.UUID) (bool, error)

	// OnStartAuthorized is invoked exactly once per trip, after a start code
	// verifies, to transition the trip out of CONFIRMED.
	OnStartAuthorized(ctx context.Context, tripID uuid.UUID) error
}

// AttemptLimiter bounds verification attempts per trip. limiter.Attempts is
// the Redis implementation; limiter.Disabled turns the check off.
type AttemptLimiter interface {
	Allow(ctx context.Context, tripID uuid.UUID) error
	Reset(ctx context.Context, tripID uuid.UUID) error
}

// EventPublisher emits the domain events other services consume.
// events.Publisher is the RabbitMQ implementation.
type EventPublisher interface {
	PublishStartAuthorized(ctx context.Context, ev events.StartAuthorized) error
	PublishStartCodeRenewed(ctx context.Context, ev events.StartCodeRenewed) error
}

// PresentedKind discriminates how a driver presents a start code.
type PresentedKind string

const (
	PresentedPIN PresentedKind = "pin" // the passenger read the digits aloud
	PresentedQR  PresentedKind = "qr"  // the driver scanned the QR token
)

// PresentedCode is a start code as handed to Verify: either the raw PIN
// digits or an encoded QR token.
type PresentedCode struct {
	Kind  PresentedKind
	Value string
}

// StartCode is an issued authorization together with its derived QR token,
// ready for display or sharing.
type StartCode struct {
	domain.StartAuthorization
	QRToken string
}

// StartAuthService owns the issue → renew → verify lifecycle of trip start
// codes. All mutations of a trip's authorization serialize on a per-trip
// lock; different trips proceed independently.
type StartAuthService struct {
	auths   repo.AuthorizationRepo
	trips   TripGateway
	gen     *startauth.Generator
	codec   startauth.Codec
	policy  startauth.Policy
	locks   *tripLocks
	limiter AttemptLimiter
	events  EventPublisher
	log     *slog.Logger
	now     func() time.Time
}

// NewStartAuthService constructs a StartAuthService. The limiter and
// publisher are required; pass limiter.Disabled or a no-op publisher when a
// deployment runs without Redis or RabbitMQ.
func NewStartAuthService(
	auths repo.AuthorizationRepo,
	trips TripGateway,
	policy startauth.Policy,
	lim AttemptLimiter,
	pub EventPublisher,
	log *slog.Logger,
) *StartAuthService {
	return NewStartAuthServiceWithClock(auths, trips, policy, lim, pub, log, time.Now)
}

// NewStartAuthServiceWithClock is like NewStartAuthService but with an
// injectable clock, for tests that need to move time past a code's expiry.
func NewStartAuthServiceWithClock(
	auths repo.AuthorizationRepo,
	trips TripGateway,
	policy startauth.Policy,
	lim AttemptLimiter,
	pub EventPublisher,
	log *slog.Logger,
	now func() time.Time,
) *StartAuthService {
	return &StartAuthService{
		auths:   auths,
		trips:   trips,
		gen:     startauth.NewGeneratorWithClock(policy, now),
		policy:  policy,
		locks:   newTripLocks(),
		limiter: lim,
		events:  pub,
		log:     log,
		now:     now,
	}
}

// Issue creates generation 1 of a trip's start code.
// Returns domain.ErrTripNotEligible unless the trip is CONFIRMED, and
// domain.ErrAlreadyIssued if a live code already exists (renew instead).
func (s *StartAuthService) Issue(ctx context.Context, tripID uuid.UUID) (StartCode, error) {
	release := s.locks.acquire(tripID)
	defer release()

	if err := s.requireEligible(ctx, tripID); err != nil {
		return StartCode{}, fmt.Errorf("service.StartAuthService.Issue: %w", err)
	}

	code, err := s.gen.Generate()
	if err != nil {
		return StartCode{}, fmt.Errorf("service.StartAuthService.Issue: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	auth, err := s.auths.Issue(sctx, domain.StartAuthorization{
		TripID:    tripID,
		PIN:       code.PIN,
		IssuedAt:  code.IssuedAt,
		ExpiresAt: code.ExpiresAt,
	})
	if err != nil {
		return StartCode{}, fmt.Errorf("service.StartAuthService.Issue: %w", err)
	}

	return s.withToken(auth), nil
}

// Renew supersedes the trip's current code and issues the next generation.
// The old generation becomes permanently unverifiable even if its expiry has
// not passed. Emits a trip.start_code_renewed event so the driver can be told
// out of band.
// Returns domain.ErrNoActiveAuthorization if the trip has no code yet.
func (s *StartAuthService) Renew(ctx context.Context, tripID uuid.UUID) (StartCode, error) {
	release := s.locks.acquire(tripID)
	defer release()

	if err := s.requireEligible(ctx, tripID); err != nil {
		return StartCode{}, fmt.Errorf("service.StartAuthService.Renew: %w", err)
	}

	code, err := s.gen.Generate()
	if err != nil {
		return StartCode{}, fmt.Errorf("service.StartAuthService.Renew: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	auth, err := s.auths.Renew(sctx, domain.StartAuthorization{
		TripID:    tripID,
		PIN:       code.PIN,
		IssuedAt:  code.IssuedAt,
		ExpiresAt: code.ExpiresAt,
	})
	if err != nil {
		return StartCode{}, fmt.Errorf("service.StartAuthService.Renew: %w", err)
	}

	if err := s.events.PublishStartCodeRenewed(ctx, events.StartCodeRenewed{
		TripID:     tripID,
		Generation: auth.Generation,
		ExpiresAt:  auth.ExpiresAt,
	}); err != nil {
		// Event delivery must not fail the renewal itself.
		s.log.WarnContext(ctx, "publish start_code_renewed failed", "trip_id", tripID, "error", err)
	}

	return s.withToken(auth), nil
}

// Current returns the trip's live start code plus whether it is close enough
// to expiry that the client should prompt for renewal.
// Returns domain.ErrNoActiveAuthorization if none exists.
func (s *StartAuthService) Current(ctx context.Context, tripID uuid.UUID) (StartCode, bool, error) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	auth, err := s.auths.Current(sctx, tripID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return StartCode{}, false, fmt.Errorf("service.StartAuthService.Current: %w", domain.ErrNoActiveAuthorization)
		}
		return StartCode{}, false, fmt.Errorf("service.StartAuthService.Current: %w", err)
	}

	return s.withToken(auth), s.policy.IsNearExpiry(auth.ExpiresAt, s.now()), nil
}

// History returns every generation ever issued for the trip, newest first.
// Always returns a non-nil slice so callers can safely range over it.
func (s *StartAuthService) History(ctx context.Context, tripID uuid.UUID) ([]domain.StartAuthorization, error) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	auths, err := s.auths.History(sctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("service.StartAuthService.History: %w", err)
	}
	if auths == nil {
		return []domain.StartAuthorization{}, nil
	}
	return auths, nil
}

// Verify checks a presented PIN or QR token against the trip's current
// authorization. On success the code is consumed — it can never verify
// again — and the trip collaborator is told to start the trip.
//
// Every rejection is a distinct sentinel error so passenger- and
// driver-facing UIs can react differently:
//
//	domain.ErrMalformedToken         the QR token did not decode
//	domain.ErrTooManyAttempts        the attempt limiter tripped
//	domain.ErrNoActiveAuthorization  no live code, or renewed mid-check
//	domain.ErrAlreadyConsumed        the code already started a trip
//	domain.ErrExpired                the validity window passed
//	domain.ErrMismatch               wrong PIN, or token for another trip
func (s *StartAuthService) Verify(ctx context.Context, tripID uuid.UUID, presented PresentedCode) (domain.StartAuthorization, error) {
	pin, err := s.resolvePIN(tripID, presented)
	if err != nil {
		return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", err)
	}

	// The limiter counts every attempt, including ones that go on to fail
	// for other reasons. A limiter backend failure fails open: locking every
	// driver out because Redis is down is worse than pausing brute-force
	// protection.
	if err := s.limiter.Allow(ctx, tripID); err != nil {
		if errors.Is(err, domain.ErrTooManyAttempts) {
			return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", err)
		}
		s.log.WarnContext(ctx, "attempt limiter unavailable", "trip_id", tripID, "error", err)
	}

	release := s.locks.acquire(tripID)
	defer release()

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	auth, err := s.auths.Current(sctx, tripID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", domain.ErrNoActiveAuthorization)
		}
		return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", err)
	}

	switch {
	case auth.ConsumedAt != nil:
		return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", domain.ErrAlreadyConsumed)
	case auth.Expired(s.now()):
		return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", domain.ErrExpired)
	case pin != auth.PIN:
		return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", domain.ErrMismatch)
	}

	// The trip may have left CONFIRMED (cancelled, started elsewhere) while
	// its code was still live. A correct code on an ineligible trip must not
	// start it.
	eligible, err := s.trips.IsEligibleForStartCode(ctx, tripID)
	if err != nil {
		return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", err)
	}
	if !eligible {
		return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", domain.ErrNoActiveAuthorization)
	}

	if err := s.auths.MarkConsumed(sctx, tripID, auth.Generation); err != nil {
		if errors.Is(err, domain.ErrStaleGeneration) {
			// A renewal raced this verification; the code we matched is no
			// longer authoritative.
			return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", domain.ErrNoActiveAuthorization)
		}
		return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", err)
	}

	if err := s.trips.OnStartAuthorized(ctx, tripID); err != nil {
		// The code is consumed either way; surfacing the transition failure
		// lets the caller see the trip did not start.
		return domain.StartAuthorization{}, fmt.Errorf("service.StartAuthService.Verify: %w", err)
	}

	if err := s.limiter.Reset(ctx, tripID); err != nil {
		s.log.WarnContext(ctx, "attempt limiter reset failed", "trip_id", tripID, "error", err)
	}

	now := s.now().UTC()
	if err := s.events.PublishStartAuthorized(ctx, events.StartAuthorized{
		TripID:       tripID,
		Generation:   auth.Generation,
		AuthorizedAt: now,
	}); err != nil {
		s.log.WarnContext(ctx, "publish start_authorized failed", "trip_id", tripID, "error", err)
	}

	auth.ConsumedAt = &now
	return auth, nil
}

// resolvePIN reduces a presented code to the PIN to compare. QR tokens are
// decoded strictly and must carry the trip being verified.
func (s *StartAuthService) resolvePIN(tripID uuid.UUID, presented PresentedCode) (string, error) {
	switch presented.Kind {
	case PresentedPIN:
		return presented.Value, nil
	case PresentedQR:
		payload, err := s.codec.Decode(presented.Value)
		if err != nil {
			return "", err
		}
		if payload.TripID != tripID {
			return "", domain.ErrMismatch
		}
		return payload.PIN, nil
	default:
		return "", fmt.Errorf("%w: unknown presentation kind %q", domain.ErrValidation, presented.Kind)
	}
}

// requireEligible gates issuance and renewal on trip state.
func (s *StartAuthService) requireEligible(ctx context.Context, tripID uuid.UUID) error {
	eligible, err := s.trips.IsEligibleForStartCode(ctx, tripID)
	if err != nil {
		return err
	}
	if !eligible {
		return domain.ErrTripNotEligible
	}
	return nil
}

// withToken attaches the derived QR token to a persisted authorization.
func (s *StartAuthService) withToken(auth domain.StartAuthorization) StartCode {
	return StartCode{
		StartAuthorization: auth,
		QRToken:            s.codec.Encode(auth.TripID, auth.PIN, auth.IssuedAt),
	}
}
