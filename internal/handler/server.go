// Package handler implements the HTTP handlers for the dispatch API.
// All handlers are methods on Server, which exposes its routes via Routes().
// Methods are split into domain-specific files (health.go, startcode.go) but
// all share the same Server struct so they can access its dependencies.
package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/farelane/dispatch/backend/internal/domain"
	"github.com/farelane/dispatch/backend/internal/service"
)

// StartAuthServicer defines the business operations the start-code handlers
// depend on. Defining the interface here (in the consumer package) follows
// the Go convention: "accept interfaces, return concrete types". It lets
// handler tests inject a mock without touching the database or service layer.
type StartAuthServicer interface {
	Issue(ctx context.Context, tripID uuid.UUID) (service.StartCode, error)
	Renew(ctx context.Context, tripID uuid.UUID) (service.StartCode, error)
	Current(ctx context.Context, tripID uuid.UUID) (service.StartCode, bool, error)
	History(ctx context.Context, tripID uuid.UUID) ([]domain.StartAuthorization, error)
	Verify(ctx context.Context, tripID uuid.UUID, presented service.PresentedCode) (domain.StartAuthorization, error)
}

// TripServicer defines the trip lookup the handlers use for ownership checks.
type TripServicer interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Trip, error)
}

// Server holds the handler dependencies. Construct it once in main.go and
// mount Routes() on the router.
type Server struct {
	startCodes StartAuthServicer
	trips      TripServicer
}

// NewServer constructs the Server with all its dependencies.
func NewServer(startCodes StartAuthServicer, trips TripServicer) *Server {
	return &Server{startCodes: startCodes, trips: trips}
}

// Routes returns the router for everything under /api/v1. Authentication is
// applied by the caller; these handlers assume middleware.IdentityFromContext
// resolves.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/trips/{tripID}/start-code", func(r chi.Router) {
		r.Post("/", s.IssueStartCode)
		r.Get("/", s.GetStartCode)
		r.Post("/renew", s.RenewStartCode)
		r.Post("/verify", s.VerifyStartCode)
		r.Get("/history", s.StartCodeHistory)
	})
	return r
}
