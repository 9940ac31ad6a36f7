// Package ratelimit throttles unauthenticated account endpoints with fixed
// request windows, kept in process or in Redis.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidLimit is returned for a non-positive limit or window.
var ErrInvalidLimit = errors.New("rate limit and window must be positive")

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left until the window resets, never negative.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.After(now) {
		return d.ResetAt.Sub(now)
	}
	return 0
}

// Limiter counts one request against key and reports whether it fits in
// limit requests per window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

func validate(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

func decide(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
