// Package events defines the domain events this backend emits and the
// RabbitMQ publisher that delivers them. Consumers (trip lifecycle,
// notification delivery) live in other services; this backend only emits.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Queue names. Durable queues, persistent JSON messages.
const (
	QueueStartAuthorized  = "trip.start_authorized"
	QueueStartCodeRenewed = "trip.start_code_renewed"
)

// StartAuthorized is emitted exactly once per trip, when a start code
// verifies successfully and the trip transitions to IN_PROGRESS.
type StartAuthorized struct {
	TripID       uuid.UUID `json:"trip_id"`
	Generation   int       `json:"generation"`
	AuthorizedAt time.Time `json:"authorized_at"`
}

// StartCodeRenewed is emitted on every renewal so the notification
// collaborator can tell the driver the previously shared code is void.
type StartCodeRenewed struct {
	TripID     uuid.UUID `json:"trip_id"`
	Generation int       `json:"generation"`
	ExpiresAt  time.Time `json:"expires_at"`
}
