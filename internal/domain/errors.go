package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. malformed request body, unknown presentation kind).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrTripNotEligible is returned when a start code is requested or renewed for
// a trip that is not in the CONFIRMED state.
// Handlers should map this to HTTP 409.
var ErrTripNotEligible = errors.New("trip not eligible for start code")

// ErrAlreadyIssued is returned when a start code is requested for a trip that
// already has a live authorization. Clients should renew instead.
// Handlers should map this to HTTP 409.
var ErrAlreadyIssued = errors.New("start code already issued")

// ErrNoActiveAuthorization is returned when renewal or verification is
// attempted for a trip with no live authorization, or when the presented
// generation was superseded by a renewal mid-verification.
// Handlers should map this to HTTP 404.
var ErrNoActiveAuthorization = errors.New("no active authorization")

// ErrAlreadyConsumed is returned when a start code that has already
// authorized a trip start is presented again.
// Handlers should map this to HTTP 409.
var ErrAlreadyConsumed = errors.New("authorization already consumed")

// ErrExpired is returned when a start code is presented after its validity
// window has passed. Clients should prompt the passenger to renew.
// Handlers should map this to HTTP 410 Gone.
var ErrExpired = errors.New("authorization expired")

// ErrMismatch is returned when the presented PIN does not match the trip's
// current authorization, or a QR token carries a different trip identifier.
// Handlers should map this to HTTP 409.
var ErrMismatch = errors.New("code mismatch")

// ErrMalformedToken is returned when a presented QR token cannot be decoded
// into a valid trip-start payload.
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrMalformedToken = errors.New("malformed token")

// ErrStaleGeneration is returned by the repo when marking an authorization
// consumed after a renewal has replaced that generation. The verification
// service translates it to ErrNoActiveAuthorization before it reaches a
// handler; it is exported so the service and tests can match on it.
var ErrStaleGeneration = errors.New("stale generation")

// ErrTooManyAttempts is returned when verification attempts for a trip exceed
// the attempt limit within the limiter window.
// Handlers should map this to HTTP 429.
var ErrTooManyAttempts = errors.New("too many verification attempts")

// ErrStoreUnavailable is returned when the persistence layer times out or is
// unreachable. The failure is transient; callers may retry.
// Handlers should map this to HTTP 503.
var ErrStoreUnavailable = errors.New("store unavailable")
