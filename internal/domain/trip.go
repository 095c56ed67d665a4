// Package domain contains the core data types for the dispatch backend.
// This package depends only on uuid and is imported by every other internal
// package (repo, service, handler).
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus is the lifecycle state of a trip. Start codes can only be issued
// and verified while the trip is CONFIRMED.
type TripStatus string

const (
	TripStatusRequested  TripStatus = "REQUESTED"
	TripStatusConfirmed  TripStatus = "CONFIRMED"
	TripStatusInProgress TripStatus = "IN_PROGRESS"
	TripStatusCompleted  TripStatus = "COMPLETED"
	TripStatusCancelled  TripStatus = "CANCELLED"
)

// Trip represents a single dispatched trip. Trip lifecycle management is owned
// by a collaborator service; this backend reads trip state to gate start-code
// issuance and performs exactly one transition, CONFIRMED → IN_PROGRESS, when
// a start code verifies.
type Trip struct {
	ID          uuid.UUID  `json:"id"`
	PassengerID uuid.UUID  `json:"passenger_id"`
	DriverID    *uuid.UUID `json:"driver_id,omitempty"` // nil until a driver is assigned
	Status      TripStatus `json:"status"`
	PickupAddr  string     `json:"pickup_address,omitempty"`
	DropoffAddr string     `json:"dropoff_address,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
