package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/farelane/dispatch/backend/internal/domain"
)

// TripRepo defines the persistence operations this backend needs from the
// trips table. Full trip lifecycle management belongs to the dispatch
// collaborator; start authorization only reads trip state and performs the
// single CONFIRMED → IN_PROGRESS transition.
type TripRepo interface {
	// Create inserts a new trip and returns the persisted record. Used by the
	// dispatch collaborator and by integration tests that need a parent row.
	Create(ctx context.Context, trip domain.Trip) (domain.Trip, error)

	// GetByID retrieves a single trip by its UUID primary key.
	// Returns domain.ErrNotFound if no trip with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)

	// TransitionStatus moves a trip from one status to another, but only if it
	// is currently in the expected status. Returns domain.ErrTripNotEligible
	// when the trip exists in a different status, domain.ErrNotFound when it
	// does not exist at all.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.TripStatus) error
}

// pgTripRepo is the Postgres implementation of TripRepo.
type pgTripRepo struct {
	db db
}

// NewTripRepo constructs a TripRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewTripRepo(db db) TripRepo {
	return &pgTripRepo{db: db}
}

const tripColumns = `id, passenger_id, driver_id, status, pickup_address, dropoff_address, created_at, updated_at`

// Create inserts a new trip row and returns the full persisted record.
func (r *pgTripRepo) Create(ctx context.Context, trip domain.Trip) (domain.Trip, error) {
	const q = `
		INSERT INTO trips (passenger_id, driver_id, status, pickup_address, dropoff_address)
		VALUES (@passenger_id, @driver_id, @status, @pickup_address, @dropoff_address)
		RETURNING ` + tripColumns

	args := pgx.NamedArgs{
		"passenger_id":    trip.PassengerID,
		"driver_id":       trip.DriverID, // nil becomes NULL
		"status":          trip.Status,
		"pickup_address":  trip.PickupAddr,
		"dropoff_address": trip.DropoffAddr,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanTrip(row)
	if err != nil {
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.Create: %w", storeErr(err))
	}
	return result, nil
}

// GetByID retrieves a trip by primary key.
func (r *pgTripRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	const q = `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	result, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", err)
		}
		return domain.Trip{}, fmt.Errorf("repo.TripRepo.GetByID: %w", storeErr(err))
	}
	return result, nil
}

// TransitionStatus performs a conditional status update. The expected status
// in the WHERE clause makes the transition safe against concurrent writers:
// only one CONFIRMED → IN_PROGRESS transition can ever succeed.
func (r *pgTripRepo) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.TripStatus) error {
	const q = `
		UPDATE trips
		SET status = @to, updated_at = now()
		WHERE id = @id AND status = @from`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"id": id, "from": from, "to": to})
	if err != nil {
		return fmt.Errorf("repo.TripRepo.TransitionStatus: %w", storeErr(err))
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "wrong status" from "no such trip" for callers that care.
		if _, err := r.GetByID(ctx, id); err != nil {
			return fmt.Errorf("repo.TripRepo.TransitionStatus: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("repo.TripRepo.TransitionStatus: %w", domain.ErrTripNotEligible)
	}
	return nil
}

// scanTrip maps a single database row into a domain.Trip.
// It handles the UUID and nullable driver_id conversions.
func scanTrip(s scanner) (domain.Trip, error) {
	var (
		t        domain.Trip
		id       pgtype.UUID
		pID      pgtype.UUID
		driverID pgtype.UUID
	)

	err := s.Scan(&id, &pID, &driverID, &t.Status, &t.PickupAddr, &t.DropoffAddr, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trip{}, domain.ErrNotFound
		}
		return domain.Trip{}, err
	}

	t.ID = uuid.UUID(id.Bytes)
	t.PassengerID = uuid.UUID(pID.Bytes)
	if driverID.Valid {
		d := uuid.UUID(driverID.Bytes)
		t.DriverID = &d
	}

	return t, nil
}
