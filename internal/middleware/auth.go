// Package middleware provides HTTP middleware for the dispatch API server.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the coarse access level carried in a caller's token. Issue and
// renew are passenger operations, verify is a driver operation, and the
// audit history is for dispatch staff.
type Role string

const (
	RolePassenger  Role = "passenger"
	RoleDriver     Role = "driver"
	RoleDispatcher Role = "dispatcher"
	RoleAdmin      Role = "admin"
)

// Identity is the authenticated caller as resolved from a bearer token.
// Token issuance belongs to the identity service; this backend only consumes.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

// ctxKey is unexported so only this package can place the identity in a
// request context.
type ctxKey struct{}

// IdentityFromContext returns the authenticated caller, if any. The second
// return is false for requests that did not pass through NewAuthenticator.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// ContextWithIdentity returns ctx carrying the given identity, exactly as
// NewAuthenticator would set it. Handler tests use this to simulate an
// authenticated caller without minting tokens.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

// NewAuthenticator returns a middleware that validates a Bearer access token
// signed with HMAC and the given secret, and injects the caller's Identity
// into the request context. Requests without a valid token get 401 with the
// API's standard error body.
func NewAuthenticator(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				unauthorized(w, "missing bearer token")
				return
			}

			tok, err := jwt.Parse(strings.TrimPrefix(auth, "Bearer "), func(t *jwt.Token) (any, error) {
				// Accept only HMAC; an attacker must not be able to downgrade
				// to "none" or swap in an asymmetric key.
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !tok.Valid {
				unauthorized(w, "invalid token")
				return
			}

			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				unauthorized(w, "invalid claims")
				return
			}

			sub, _ := claims["sub"].(string)
			userID, err := uuid.Parse(sub)
			if err != nil {
				unauthorized(w, "invalid subject")
				return
			}
			role, _ := claims["role"].(string)
			if role == "" {
				unauthorized(w, "missing role")
				return
			}

			identity := Identity{UserID: userID, Role: Role(role)}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, identity)))
		})
	}
}

// unauthorized writes a 401 in the same error-body shape the handlers use.
func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": "unauthorized", "message": message},
	})
}
