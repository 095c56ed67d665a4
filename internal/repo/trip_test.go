package repo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farelane/dispatch/backend/internal/domain"
	"github.com/farelane/dispatch/backend/internal/repo"
	"github.com/farelane/dispatch/backend/testutil"
)

// newTestTripRepo opens a transaction against the test database and returns a
// TripRepo backed by that transaction, rolled back when the test finishes.
func newTestTripRepo(t *testing.T) repo.TripRepo {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		_ = tx.Rollback(context.Background())
	})

	return repo.NewTripRepo(tx)
}

// tripFixture returns a CONFIRMED trip with a driver assigned, the state in
// which start codes are issued and verified.
// Callers can override individual fields after calling this function.
func tripFixture() domain.Trip {
	driver := uuid.New()
	return domain.Trip{
		PassengerID: uuid.New(),
		DriverID:    &driver,
		Status:      domain.TripStatusConfirmed,
		PickupAddr:  "12 Harbor St",
		DropoffAddr: "48 Summit Ave",
	}
}

func TestTripRepo_Create(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	input := tripFixture()
	got, err := r.Create(ctx, input)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID, "ID should be DB-generated UUID")
	assert.Equal(t, input.PassengerID, got.PassengerID)
	require.NotNil(t, got.DriverID)
	assert.Equal(t, *input.DriverID, *got.DriverID)
	assert.Equal(t, domain.TripStatusConfirmed, got.Status)
	assert.False(t, got.CreatedAt.IsZero(), "CreatedAt should be set by DB")
	assert.False(t, got.UpdatedAt.IsZero(), "UpdatedAt should be set by DB")
}

func TestTripRepo_Create_NilDriver(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	input := tripFixture()
	input.DriverID = nil // not yet matched
	input.Status = domain.TripStatusRequested

	got, err := r.Create(ctx, input)

	require.NoError(t, err)
	assert.Nil(t, got.DriverID)
}

func TestTripRepo_GetByID(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, tripFixture())
	require.NoError(t, err)

	got, err := r.GetByID(ctx, created.ID)

	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.PassengerID, got.PassengerID)
}

func TestTripRepo_GetByID_NotFound(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	_, err := r.GetByID(ctx, uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTripRepo_TransitionStatus(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	created, err := r.Create(ctx, tripFixture())
	require.NoError(t, err)

	err = r.TransitionStatus(ctx, created.ID, domain.TripStatusConfirmed, domain.TripStatusInProgress)

	require.NoError(t, err)

	got, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TripStatusInProgress, got.Status)
}

func TestTripRepo_TransitionStatus_WrongCurrentStatus(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	input := tripFixture()
	input.Status = domain.TripStatusCancelled
	created, err := r.Create(ctx, input)
	require.NoError(t, err)

	err = r.TransitionStatus(ctx, created.ID, domain.TripStatusConfirmed, domain.TripStatusInProgress)

	assert.ErrorIs(t, err, domain.ErrTripNotEligible)
}

func TestTripRepo_TransitionStatus_NotFound(t *testing.T) {
	r := newTestTripRepo(t)
	ctx := context.Background()

	err := r.TransitionStatus(ctx, uuid.New(), domain.TripStatusConfirmed, domain.TripStatusInProgress)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
