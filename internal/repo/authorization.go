// Package repo contains all database access logic for the dispatch backend.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here — only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/farelane/dispatch/backend/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AuthorizationRepo defines the persistence operations for StartAuthorizations.
// The service layer depends on this interface, not the concrete Postgres
// implementation, which allows the service to be unit-tested with a mock.
//
// The schema enforces the at-most-one-current invariant with a partial unique
// index on (trip_id) WHERE superseded_at IS NULL, so the invariant holds even
// against writers that bypass the service-level per-trip lock.
type AuthorizationRepo interface {
	// Issue inserts generation 1 for a trip and returns the persisted record.
	// Returns domain.ErrAlreadyIssued if the trip already has a live record.
	Issue(ctx context.Context, auth domain.StartAuthorization) (domain.StartAuthorization, error)

	// Renew atomically supersedes the trip's current record and inserts the
	// next generation carrying the given pin and validity window, in a single
	// statement. A verification racing this call either completes against the
	// old generation first or observes it superseded — never both.
	// The Generation field of next is ignored; the database assigns it.
	// Returns domain.ErrNoActiveAuthorization if the trip has no current record.
	Renew(ctx context.Context, next domain.StartAuthorization) (domain.StartAuthorization, error)

	// Current retrieves the trip's current (non-superseded) record.
	// Returns domain.ErrNotFound if none exists.
	Current(ctx context.Context, tripID uuid.UUID) (domain.StartAuthorization, error)

	// MarkConsumed stamps consumed_at on the current record, but only if its
	// generation still matches. Returns domain.ErrStaleGeneration when the
	// record was renewed or already consumed between the caller's read and
	// this write.
	MarkConsumed(ctx context.Context, tripID uuid.UUID, generation int) error

	// History returns every generation ever issued for a trip, newest first,
	// for audit purposes.
	History(ctx context.Context, tripID uuid.UUID) ([]domain.StartAuthorization, error)
}

// pgAuthorizationRepo is the Postgres implementation of AuthorizationRepo.
type pgAuthorizationRepo struct {
	db db
}

// NewAuthorizationRepo constructs an AuthorizationRepo backed by the provided
// db connection. In production pass *pgxpool.Pool; in tests pass a pgx.Tx for
// rollback isolation.
func NewAuthorizationRepo(db db) AuthorizationRepo {
	return &pgAuthorizationRepo{db: db}
}

const authColumns = `id, trip_id, pin, generation, issued_at, expires_at, consumed_at, superseded_at, created_at`

// Issue inserts the first generation for a trip.
func (r *pgAuthorizationRepo) Issue(ctx context.Context, auth domain.StartAuthorization) (domain.StartAuthorization, error) {
	const q = `
		INSERT INTO start_authorizations (trip_id, pin, generation, issued_at, expires_at)
		VALUES (@trip_id, @pin, 1, @issued_at, @expires_at)
		RETURNING ` + authColumns

	args := pgx.NamedArgs{
		"trip_id":    auth.TripID,
		"pin":        auth.PIN,
		"issued_at":  auth.IssuedAt,
		"expires_at": auth.ExpiresAt,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanAuthorization(row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.StartAuthorization{}, fmt.Errorf("repo.AuthorizationRepo.Issue: %w", domain.ErrAlreadyIssued)
		}
		return domain.StartAuthorization{}, fmt.Errorf("repo.AuthorizationRepo.Issue: %w", storeErr(err))
	}
	return result, nil
}

// Renew supersedes the current generation and inserts its successor in one
// statement. The CTE makes the supersede-then-insert pair atomic: the partial
// unique index is never violated because the old row leaves the index in the
// same statement that adds the new one.
func (r *pgAuthorizationRepo) Renew(ctx context.Context, next domain.StartAuthorization) (domain.StartAuthorization, error) {
	const q = `
		WITH superseded AS (
			UPDATE start_authorizations
			SET superseded_at = now()
			WHERE trip_id = @trip_id AND superseded_at IS NULL
			RETURNING generation
		)
		INSERT INTO start_authorizations (trip_id, pin, generation, issued_at, expires_at)
		SELECT @trip_id, @pin, s.generation + 1, @issued_at, @expires_at
		FROM superseded s
		RETURNING ` + authColumns

	args := pgx.NamedArgs{
		"trip_id":    next.TripID,
		"pin":        next.PIN,
		"issued_at":  next.IssuedAt,
		"expires_at": next.ExpiresAt,
	}

	row := r.db.QueryRow(ctx, q, args)
	result, err := scanAuthorization(row)
	if err != nil {
		// No row superseded means no row inserted: nothing to renew.
		if errors.Is(err, domain.ErrNotFound) {
			return domain.StartAuthorization{}, fmt.Errorf("repo.AuthorizationRepo.Renew: %w", domain.ErrNoActiveAuthorization)
		}
		return domain.StartAuthorization{}, fmt.Errorf("repo.AuthorizationRepo.Renew: %w", storeErr(err))
	}
	return result, nil
}

// Current retrieves the trip's non-superseded record.
func (r *pgAuthorizationRepo) Current(ctx context.Context, tripID uuid.UUID) (domain.StartAuthorization, error) {
	const q = `
		SELECT ` + authColumns + `
		FROM start_authorizations
		WHERE trip_id = @trip_id AND superseded_at IS NULL`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	result, err := scanAuthorization(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.StartAuthorization{}, fmt.Errorf("repo.AuthorizationRepo.Current: %w", err)
		}
		return domain.StartAuthorization{}, fmt.Errorf("repo.AuthorizationRepo.Current: %w", storeErr(err))
	}
	return result, nil
}

// MarkConsumed is the optimistic-concurrency write that ends a verification.
// The generation in the WHERE clause is the token: zero rows affected means a
// renewal (or a competing consumption) won the race.
func (r *pgAuthorizationRepo) MarkConsumed(ctx context.Context, tripID uuid.UUID, generation int) error {
	const q = `
		UPDATE start_authorizations
		SET consumed_at = now()
		WHERE trip_id = @trip_id
		  AND generation = @generation
		  AND superseded_at IS NULL
		  AND consumed_at IS NULL`

	tag, err := r.db.Exec(ctx, q, pgx.NamedArgs{"trip_id": tripID, "generation": generation})
	if err != nil {
		return fmt.Errorf("repo.AuthorizationRepo.MarkConsumed: %w", storeErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo.AuthorizationRepo.MarkConsumed: %w", domain.ErrStaleGeneration)
	}
	return nil
}

// History returns all generations for a trip, newest first.
func (r *pgAuthorizationRepo) History(ctx context.Context, tripID uuid.UUID) ([]domain.StartAuthorization, error) {
	const q = `
		SELECT ` + authColumns + `
		FROM start_authorizations
		WHERE trip_id = @trip_id
		ORDER BY generation DESC`

	rows, err := r.db.Query(ctx, q, pgx.NamedArgs{"trip_id": tripID})
	if err != nil {
		return nil, fmt.Errorf("repo.AuthorizationRepo.History: %w", storeErr(err))
	}
	defer rows.Close()

	var auths []domain.StartAuthorization
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.AuthorizationRepo.History: scan: %w", err)
		}
		auths = append(auths, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.AuthorizationRepo.History: rows: %w", storeErr(err))
	}

	return auths, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scanAuthorization
// to be reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanAuthorization maps a single database row into a domain.StartAuthorization.
// It handles the UUID and nullable timestamp conversions.
func scanAuthorization(s scanner) (domain.StartAuthorization, error) {
	var (
		a          domain.StartAuthorization
		id         pgtype.UUID
		tripID     pgtype.UUID
		consumed   pgtype.Timestamptz
		superseded pgtype.Timestamptz
	)

	err := s.Scan(&id, &tripID, &a.PIN, &a.Generation, &a.IssuedAt, &a.ExpiresAt, &consumed, &superseded, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StartAuthorization{}, domain.ErrNotFound
		}
		return domain.StartAuthorization{}, err
	}

	a.ID = uuid.UUID(id.Bytes)
	a.TripID = uuid.UUID(tripID.Bytes)
	if consumed.Valid {
		c := consumed.Time
		a.ConsumedAt = &c
	}
	if superseded.Valid {
		sp := superseded.Time
		a.SupersededAt = &sp
	}

	return a, nil
}
