package startauth

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/farelane/dispatch/backend/internal/domain"
)

// PayloadKind is the discriminator embedded in every trip-start QR token. It
// exists so the token can never be confused with any other QR artifact the
// surrounding application introduces later.
const PayloadKind = "TRIP_START"

// Payload is the decoded content of a trip-start QR token.
type Payload struct {
	TripID   uuid.UUID
	PIN      string
	Kind     string
	IssuedAt time.Time // millisecond precision (epoch millis on the wire)
}

// qrWire is the wire form of a QR token: a JSON object with exactly these
// four keys, base64url-encoded into the token string. Pointer fields let
// Decode distinguish a missing key from a zero value.
type qrWire struct {
	TripID    *string `json:"tripId"`
	PIN       *string `json:"pin"`
	Type      *string `json:"type"`
	Timestamp *int64  `json:"timestamp"` // epoch milliseconds at issuance
}

// Codec serializes trip-start payloads to and from their transportable token
// form. It is a pure format boundary: Decode never checks expiry or matches
// against stored authorizations — that is the verification service's job.
type Codec struct{}

// Encode renders the token for a trip's start code. The token is the base64url
// encoding (unpadded) of the JSON wire payload, safe to embed in a QR code or
// a URL.
func (Codec) Encode(tripID uuid.UUID, pin string, issuedAt time.Time) string {
	trip := tripID.String()
	kind := PayloadKind
	ts := issuedAt.UnixMilli()
	body, _ := json.Marshal(qrWire{TripID: &trip, PIN: &pin, Type: &kind, Timestamp: &ts})
	return base64.RawURLEncoding.EncodeToString(body)
}

// Decode parses a presented token back into a Payload. Decoding is strict:
// a token that is not base64, not a JSON object, missing any of the four
// keys, carrying unknown keys, or carrying a type other than "TRIP_START"
// fails with domain.ErrMalformedToken. Decode never panics on hostile input.
func (Codec) Decode(token string) (Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: not valid base64", domain.ErrMalformedToken)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var w qrWire
	if err := dec.Decode(&w); err != nil {
		return Payload{}, fmt.Errorf("%w: not a valid payload object", domain.ErrMalformedToken)
	}
	// A second JSON value after the object is also malformed.
	if dec.More() {
		return Payload{}, fmt.Errorf("%w: trailing data", domain.ErrMalformedToken)
	}

	if w.TripID == nil || w.PIN == nil || w.Type == nil || w.Timestamp == nil {
		return Payload{}, fmt.Errorf("%w: missing required field", domain.ErrMalformedToken)
	}
	if *w.Type != PayloadKind {
		return Payload{}, fmt.Errorf("%w: unexpected type %q", domain.ErrMalformedToken, *w.Type)
	}
	if *w.PIN == "" {
		return Payload{}, fmt.Errorf("%w: empty pin", domain.ErrMalformedToken)
	}
	tripID, err := uuid.Parse(*w.TripID)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: invalid trip id", domain.ErrMalformedToken)
	}

	return Payload{
		TripID:   tripID,
		PIN:      *w.PIN,
		Kind:     *w.Type,
		IssuedAt: time.UnixMilli(*w.Timestamp).UTC(),
	}, nil
}
