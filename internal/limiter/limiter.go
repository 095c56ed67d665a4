// Package limiter counts verification attempts per trip so a short numeric
// PIN cannot be brute-forced within its validity window. The counter is a
// Redis fixed window: attempts increment a per-trip key with a TTL, and a
// successful verification resets it.
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/farelane/dispatch/backend/internal/domain"
)

// attemptKey namespaces the per-trip counters in Redis.
const attemptKey = "startauth:attempts:"

// Attempts is a Redis-backed fixed-window attempt counter.
type Attempts struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

// NewAttempts constructs an attempt limiter allowing limit verification
// attempts per trip per window.
func NewAttempts(rdb *redis.Client, limit int, window time.Duration) *Attempts {
	return &Attempts{rdb: rdb, limit: int64(limit), window: window}
}

// Allow records one attempt for the trip and returns
// domain.ErrTooManyAttempts once the count for the current window exceeds
// the limit. Redis failures are returned as-is; the caller decides whether
// to fail open.
func (l *Attempts) Allow(ctx context.Context, tripID uuid.UUID) error {
	key := attemptKey + tripID.String()

	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, key)
	// Refreshing the TTL on every attempt keeps a persistent guesser locked
	// out instead of giving them a fresh window.
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("limiter.Attempts.Allow: %w", err)
	}

	if count.Val() > l.limit {
		return fmt.Errorf("limiter.Attempts.Allow: %w", domain.ErrTooManyAttempts)
	}
	return nil
}

// Reset clears the trip's attempt counter. Called after a successful
// verification.
func (l *Attempts) Reset(ctx context.Context, tripID uuid.UUID) error {
	if err := l.rdb.Del(ctx, attemptKey+tripID.String()).Err(); err != nil {
		return fmt.Errorf("limiter.Attempts.Reset: %w", err)
	}
	return nil
}

// Disabled is a no-op limiter for deployments without Redis.
type Disabled struct{}

func (Disabled) Allow(context.Context, uuid.UUID) error { return nil }
func (Disabled) Reset(context.Context, uuid.UUID) error { return nil }
