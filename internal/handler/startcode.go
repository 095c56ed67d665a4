package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/farelane/dispatch/backend/internal/domain"
	"github.com/farelane/dispatch/backend/internal/middleware"
	"github.com/farelane/dispatch/backend/internal/service"
)

// startCodeResponse is the body returned by issue, renew, and current.
// The PIN is for the passenger to read aloud; the QR token is the same
// authorization in scannable form.
type startCodeResponse struct {
	TripID     uuid.UUID `json:"trip_id"`
	PIN        string    `json:"pin"`
	QRToken    string    `json:"qr_token"`
	Generation int       `json:"generation"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	NearExpiry *bool     `json:"near_expiry,omitempty"` // only on GET
}

// verifyRequest is the body for POST .../verify. Kind selects which field
// carries the code: "pin" reads Value, "qr" reads Token.
type verifyRequest struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
	Token string `json:"token,omitempty"`
}

// verifyResponse confirms a successful verification.
type verifyResponse struct {
	Authorized bool      `json:"authorized"`
	TripID     uuid.UUID `json:"trip_id"`
}

// historyEntry is one audit row. PINs of past generations are visible here;
// the route is restricted to dispatch staff.
type historyEntry struct {
	Generation   int        `json:"generation"`
	PIN          string     `json:"pin"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
}

// IssueStartCode handles POST /trips/{tripID}/start-code.
// Passenger-only; the caller must be the trip's passenger.
func (s *Server) IssueStartCode(w http.ResponseWriter, r *http.Request) {
	tripID, ok := s.authorizePassenger(w, r)
	if !ok {
		return
	}

	code, err := s.startCodes.Issue(r.Context(), tripID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, codeToResponse(code, nil))
}

// RenewStartCode handles POST /trips/{tripID}/start-code/renew.
// Passenger-only; the caller must be the trip's passenger.
func (s *Server) RenewStartCode(w http.ResponseWriter, r *http.Request) {
	tripID, ok := s.authorizePassenger(w, r)
	if !ok {
		return
	}

	code, err := s.startCodes.Renew(r.Context(), tripID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, codeToResponse(code, nil))
}

// GetStartCode handles GET /trips/{tripID}/start-code.
// Passenger-only; includes near_expiry so the client can prompt for renewal.
func (s *Server) GetStartCode(w http.ResponseWriter, r *http.Request) {
	tripID, ok := s.authorizePassenger(w, r)
	if !ok {
		return
	}

	code, nearExpiry, err := s.startCodes.Current(r.Context(), tripID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, codeToResponse(code, &nearExpiry))
}

// VerifyStartCode handles POST /trips/{tripID}/start-code/verify.
// Driver-only; the caller must be the driver assigned to the trip.
func (s *Server) VerifyStartCode(w http.ResponseWriter, r *http.Request) {
	tripID, ok := s.authorizeDriver(w, r)
	if !ok {
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "request body is required")
		return
	}

	presented, err := req.toPresented()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	auth, err := s.startCodes.Verify(r.Context(), tripID, presented)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Authorized: true, TripID: auth.TripID})
}

// StartCodeHistory handles GET /trips/{tripID}/start-code/history.
// Dispatcher/admin-only audit view of every generation.
func (s *Server) StartCodeHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}
	if identity.Role != middleware.RoleDispatcher && identity.Role != middleware.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden", "dispatch staff only")
		return
	}

	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid trip id")
		return
	}

	history, err := s.startCodes.History(r.Context(), tripID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	entries := make([]historyEntry, len(history))
	for i, a := range history {
		entries[i] = historyEntry{
			Generation:   a.Generation,
			PIN:          a.PIN,
			IssuedAt:     a.IssuedAt,
			ExpiresAt:    a.ExpiresAt,
			ConsumedAt:   a.ConsumedAt,
			SupersededAt: a.SupersededAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trip_id": tripID, "generations": entries})
}

// ---- authorization helpers -------------------------------------------------

// authorizePassenger parses the trip ID and checks the caller is the trip's
// passenger. On failure it writes the response and returns ok=false.
func (s *Server) authorizePassenger(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return s.authorize(w, r, func(identity middleware.Identity, trip domain.Trip) bool {
		return identity.Role == middleware.RolePassenger && trip.PassengerID == identity.UserID
	})
}

// authorizeDriver parses the trip ID and checks the caller is the trip's
// assigned driver.
func (s *Server) authorizeDriver(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	return s.authorize(w, r, func(identity middleware.Identity, trip domain.Trip) bool {
		return identity.Role == middleware.RoleDriver && trip.DriverID != nil && *trip.DriverID == identity.UserID
	})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, allowed func(middleware.Identity, domain.Trip) bool) (uuid.UUID, bool) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return uuid.Nil, false
	}

	tripID, err := uuid.Parse(chi.URLParam(r, "tripID"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "invalid trip id")
		return uuid.Nil, false
	}

	trip, err := s.trips.GetByID(r.Context(), tripID)
	if err != nil {
		writeServiceError(w, err)
		return uuid.Nil, false
	}

	if !allowed(identity, trip) {
		writeError(w, http.StatusForbidden, "forbidden", "not your trip")
		return uuid.Nil, false
	}

	return tripID, true
}

// ---- mapping helpers -------------------------------------------------------

func codeToResponse(code service.StartCode, nearExpiry *bool) startCodeResponse {
	return startCodeResponse{
		TripID:     code.TripID,
		PIN:        code.PIN,
		QRToken:    code.QRToken,
		Generation: code.Generation,
		IssuedAt:   code.IssuedAt,
		ExpiresAt:  code.ExpiresAt,
		NearExpiry: nearExpiry,
	}
}

func (req verifyRequest) toPresented() (service.PresentedCode, error) {
	switch req.Kind {
	case "pin":
		if req.Value == "" {
			return service.PresentedCode{}, errors.New("value is required for kind \"pin\"")
		}
		return service.PresentedCode{Kind: service.PresentedPIN, Value: req.Value}, nil
	case "qr":
		if req.Token == "" {
			return service.PresentedCode{}, errors.New("token is required for kind \"qr\"")
		}
		return service.PresentedCode{Kind: service.PresentedQR, Value: req.Token}, nil
	default:
		return service.PresentedCode{}, errors.New("kind must be \"pin\" or \"qr\"")
	}
}
