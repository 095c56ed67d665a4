package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/farelane/dispatch/backend/internal/domain"
	"github.com/farelane/dispatch/backend/internal/repo"
)

// TripService is the trip lifecycle collaborator as implemented against the
// local trips table. It exposes the two operations start authorization
// consumes (eligibility, the start transition) plus the lookup handlers use
// for ownership checks.
type TripService struct {
	trips repo.TripRepo
}

// NewTripService constructs a TripService backed by the provided TripRepo.
func NewTripService(trips repo.TripRepo) *TripService {
	return &TripService{trips: trips}
}

// compile-time check: TripService must satisfy the gateway start
// authorization depends on.
var _ TripGateway = (*TripService)(nil)

// GetByID returns a single trip by ID.
func (s *TripService) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	trip, err := s.trips.GetByID(ctx, id)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("service.TripService.GetByID: %w", err)
	}
	return trip, nil
}

// IsEligibleForStartCode reports whether start codes may be issued and
// verified for the trip: true only while it is CONFIRMED.
// A missing trip is an error, not mere ineligibility, so callers can give a
// 404 rather than a confusing conflict.
func (s *TripService) IsEligibleForStartCode(ctx context.Context, tripID uuid.UUID) (bool, error) {
	trip, err := s.trips.GetByID(ctx, tripID)
	if err != nil {
		return false, fmt.Errorf("service.TripService.IsEligibleForStartCode: %w", err)
	}
	return trip.Status == domain.TripStatusConfirmed, nil
}

// OnStartAuthorized transitions the trip CONFIRMED → IN_PROGRESS. The
// conditional update means only one start can ever succeed for a trip.
func (s *TripService) OnStartAuthorized(ctx context.Context, tripID uuid.UUID) error {
	err := s.trips.TransitionStatus(ctx, tripID, domain.TripStatusConfirmed, domain.TripStatusInProgress)
	if err != nil {
		if errors.Is(err, domain.ErrTripNotEligible) {
			// The trip left CONFIRMED between verification and this write.
			return fmt.Errorf("service.TripService.OnStartAuthorized: %w", domain.ErrNoActiveAuthorization)
		}
		return fmt.Errorf("service.TripService.OnStartAuthorized: %w", err)
	}
	return nil
}
