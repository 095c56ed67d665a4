package startauth_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farelane/dispatch/backend/internal/domain"
	"github.com/farelane/dispatch/backend/internal/startauth"
)

// b64 wraps a raw JSON payload the way Encode does, so malformed-payload tests
// exercise the JSON layer rather than failing at base64.
func b64(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func TestCodec_RoundTrip(t *testing.T) {
	var codec startauth.Codec
	tripID := uuid.New()
	issued := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	token := codec.Encode(tripID, "042617", issued)
	got, err := codec.Decode(token)

	require.NoError(t, err)
	assert.Equal(t, tripID, got.TripID)
	assert.Equal(t, "042617", got.PIN)
	assert.Equal(t, startauth.PayloadKind, got.Kind)
	assert.True(t, got.IssuedAt.Equal(issued), "IssuedAt mismatch: got %v want %v", got.IssuedAt, issued)
}

func TestCodec_RoundTrip_MillisecondPrecision(t *testing.T) {
	var codec startauth.Codec
	tripID := uuid.New()
	// Sub-millisecond precision is not carried on the wire; issuance
	// timestamps are truncated to millis by the generator.
	issued := time.Date(2026, 8, 27, 10, 0, 0, 123_000_000, time.UTC)

	got, err := codec.Decode(codec.Encode(tripID, "123456", issued))

	require.NoError(t, err)
	assert.Equal(t, issued.UnixMilli(), got.IssuedAt.UnixMilli())
}

func TestCodec_Decode_Malformed(t *testing.T) {
	var codec startauth.Codec
	tripID := uuid.NewString()

	tests := []struct {
		name  string
		token string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"not json", b64("not json at all")},
		{"json scalar", b64(`"just a string"`)},
		{"empty object", b64(`{}`)},
		{"missing type", b64(`{"tripId":"` + tripID + `","pin":"123456","timestamp":1756287600000}`)},
		{"missing pin", b64(`{"tripId":"` + tripID + `","type":"TRIP_START","timestamp":1756287600000}`)},
		{"missing tripId", b64(`{"pin":"123456","type":"TRIP_START","timestamp":1756287600000}`)},
		{"missing timestamp", b64(`{"tripId":"` + tripID + `","pin":"123456","type":"TRIP_START"}`)},
		{"wrong type", b64(`{"tripId":"` + tripID + `","pin":"123456","type":"LOYALTY_CARD","timestamp":1756287600000}`)},
		{"empty pin", b64(`{"tripId":"` + tripID + `","pin":"","type":"TRIP_START","timestamp":1756287600000}`)},
		{"bad trip id", b64(`{"tripId":"not-a-uuid","pin":"123456","type":"TRIP_START","timestamp":1756287600000}`)},
		{"unknown key", b64(`{"tripId":"` + tripID + `","pin":"123456","type":"TRIP_START","timestamp":1756287600000,"extra":1}`)},
		{"trailing data", b64(`{"tripId":"` + tripID + `","pin":"123456","type":"TRIP_START","timestamp":1756287600000}{}`)},
		{"empty token", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			assert.ErrorIs(t, err, domain.ErrMalformedToken)
		})
	}
}
