package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farelane/dispatch/backend/internal/domain"
	"github.com/farelane/dispatch/backend/internal/repo"
	"github.com/farelane/dispatch/backend/testutil"
)

// newTestRepos opens a transaction against the test database and returns both
// repos backed by that transaction, plus a trip row for authorizations to hang
// off (start_authorizations has a foreign key to trips). The transaction is
// rolled back when the test finishes, giving free per-test isolation.
//
// Requires TEST_DATABASE_URL to be set and all migrations to be applied
// (handled by TestMain in this package).
func newTestRepos(t *testing.T) (repo.AuthorizationRepo, domain.Trip) {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		// Rollback discards all changes made during the test — no cleanup SQL needed.
		_ = tx.Rollback(context.Background())
	})

	trips := repo.NewTripRepo(tx)
	trip, err := trips.Create(context.Background(), tripFixture())
	require.NoError(t, err, "create parent trip")

	return repo.NewAuthorizationRepo(tx), trip
}

// authFixture returns a generation-1 authorization candidate for the trip.
// Callers can override individual fields after calling this function.
func authFixture(tripID uuid.UUID) domain.StartAuthorization {
	issued := time.Now().UTC().Truncate(time.Millisecond)
	return domain.StartAuthorization{
		TripID:    tripID,
		PIN:       "042617",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(5 * time.Minute),
	}
}

func TestAuthorizationRepo_Issue(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	input := authFixture(trip.ID)
	got, err := r.Issue(ctx, input)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID, "ID should be DB-generated")
	assert.Equal(t, trip.ID, got.TripID)
	assert.Equal(t, input.PIN, got.PIN)
	assert.Equal(t, 1, got.Generation)
	assert.True(t, got.IssuedAt.Equal(input.IssuedAt), "IssuedAt mismatch")
	assert.True(t, got.ExpiresAt.Equal(input.ExpiresAt), "ExpiresAt mismatch")
	assert.Nil(t, got.ConsumedAt)
	assert.Nil(t, got.SupersededAt)
	assert.False(t, got.CreatedAt.IsZero(), "CreatedAt should be set by DB")
}

func TestAuthorizationRepo_Issue_SecondLiveRecordRejected(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	_, err := r.Issue(ctx, authFixture(trip.ID))
	require.NoError(t, err)

	_, err = r.Issue(ctx, authFixture(trip.ID))

	assert.ErrorIs(t, err, domain.ErrAlreadyIssued)
}

func TestAuthorizationRepo_Current(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	issued, err := r.Issue(ctx, authFixture(trip.ID))
	require.NoError(t, err)

	got, err := r.Current(ctx, trip.ID)

	require.NoError(t, err)
	assert.Equal(t, issued.ID, got.ID)
	assert.Equal(t, issued.PIN, got.PIN)
	assert.Equal(t, 1, got.Generation)
}

func TestAuthorizationRepo_Current_NotFound(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	_, err := r.Current(ctx, trip.ID)

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuthorizationRepo_Renew_IncrementsGeneration(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	_, err := r.Issue(ctx, authFixture(trip.ID))
	require.NoError(t, err)

	next := authFixture(trip.ID)
	next.PIN = "738291"
	renewed, err := r.Renew(ctx, next)

	require.NoError(t, err)
	assert.Equal(t, 2, renewed.Generation)
	assert.Equal(t, "738291", renewed.PIN)
	assert.Nil(t, renewed.SupersededAt)

	// The renewed record is now current; the old generation is superseded but
	// retained in history for audit.
	current, err := r.Current(ctx, trip.ID)
	require.NoError(t, err)
	assert.Equal(t, renewed.ID, current.ID)

	history, err := r.History(ctx, trip.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Generation, "history is newest first")
	assert.Equal(t, 1, history[1].Generation)
	assert.NotNil(t, history[1].SupersededAt, "old generation must be marked superseded")
}

func TestAuthorizationRepo_Renew_NoCurrentRecord(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	_, err := r.Renew(ctx, authFixture(trip.ID))

	assert.ErrorIs(t, err, domain.ErrNoActiveAuthorization)
}

func TestAuthorizationRepo_Renew_Repeatedly(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	_, err := r.Issue(ctx, authFixture(trip.ID))
	require.NoError(t, err)

	for want := 2; want <= 5; want++ {
		renewed, err := r.Renew(ctx, authFixture(trip.ID))
		require.NoError(t, err)
		assert.Equal(t, want, renewed.Generation, "generation must strictly increment")
	}
}

func TestAuthorizationRepo_MarkConsumed(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	issued, err := r.Issue(ctx, authFixture(trip.ID))
	require.NoError(t, err)

	err = r.MarkConsumed(ctx, trip.ID, issued.Generation)

	require.NoError(t, err)

	got, err := r.Current(ctx, trip.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ConsumedAt)
	assert.False(t, got.Live())
}

func TestAuthorizationRepo_MarkConsumed_Twice(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	issued, err := r.Issue(ctx, authFixture(trip.ID))
	require.NoError(t, err)

	require.NoError(t, r.MarkConsumed(ctx, trip.ID, issued.Generation))

	// A consumed record is terminal: a second consumption attempt must not
	// silently succeed.
	err = r.MarkConsumed(ctx, trip.ID, issued.Generation)

	assert.ErrorIs(t, err, domain.ErrStaleGeneration)
}

func TestAuthorizationRepo_MarkConsumed_SupersededGeneration(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	issued, err := r.Issue(ctx, authFixture(trip.ID))
	require.NoError(t, err)

	_, err = r.Renew(ctx, authFixture(trip.ID))
	require.NoError(t, err)

	// Consuming against the old generation models a verification that read
	// the record just before a renewal landed.
	err = r.MarkConsumed(ctx, trip.ID, issued.Generation)

	assert.ErrorIs(t, err, domain.ErrStaleGeneration)
}

func TestAuthorizationRepo_History_Empty(t *testing.T) {
	r, trip := newTestRepos(t)
	ctx := context.Background()

	history, err := r.History(ctx, trip.ID)

	require.NoError(t, err)
	assert.Empty(t, history)
}
