package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farelane/dispatch/backend/internal/domain"
	"github.com/farelane/dispatch/backend/internal/repo"
	"github.com/farelane/dispatch/backend/internal/service"
)

// mockTripRepo is a hand-written test double for repo.TripRepo.
type mockTripRepo struct {
	create     func(ctx context.Context, trip domain.Trip) (domain.Trip, error)
	getByID    func(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	transition func(ctx context.Context, id uuid.UUID, from, to domain.TripStatus) error
}

func (m *mockTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	return m.create(ctx, trip)
}
func (m *mockTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return m.getByID(ctx, id)
}
func (m *mockTripRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.TripStatus) error {
	return m.transition(ctx, id, from, to)
}

// compile-time check: mockTripRepo must satisfy repo.TripRepo.
var _ repo.TripRepo = (*mockTripRepo)(nil)

func TestTripService_IsEligibleForStartCode(t *testing.T) {
	tests := []struct {
		status domain.TripStatus
		want   bool
	}{
		{domain.TripStatusRequested, false},
		{domain.TripStatusConfirmed, true},
		{domain.TripStatusInProgress, false},
		{domain.TripStatusCompleted, false},
		{domain.TripStatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			svc := service.NewTripService(&mockTripRepo{
				getByID: func(_ context.Context, id uuid.UUID) (domain.Trip, error) {
					return domain.Trip{ID: id, Status: tt.status}, nil
				},
			})

			got, err := svc.IsEligibleForStartCode(context.Background(), uuid.New())

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTripService_IsEligibleForStartCode_TripMissing(t *testing.T) {
	svc := service.NewTripService(&mockTripRepo{
		getByID: func(context.Context, uuid.UUID) (domain.Trip, error) {
			return domain.Trip{}, domain.ErrNotFound
		},
	})

	_, err := svc.IsEligibleForStartCode(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripService_OnStartAuthorized(t *testing.T) {
	var gotFrom, gotTo domain.TripStatus
	svc := service.NewTripService(&mockTripRepo{
		transition: func(_ context.Context, _ uuid.UUID, from, to domain.TripStatus) error {
			gotFrom, gotTo = from, to
			return nil
		},
	})

	err := svc.OnStartAuthorized(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusConfirmed, gotFrom)
	assert.Equal(t, domain.TripStatusInProgress, gotTo)
}

func TestTripService_OnStartAuthorized_TripLeftConfirmed(t *testing.T) {
	svc := service.NewTripService(&mockTripRepo{
		transition: func(context.Context, uuid.UUID, domain.TripStatus, domain.TripStatus) error {
			return domain.ErrTripNotEligible
		},
	})

	err := svc.OnStartAuthorized(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNoActiveAuthorization)
}
