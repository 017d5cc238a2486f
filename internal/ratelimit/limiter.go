// Package ratelimit counts requests per key in fixed time windows.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Count      int
	RetryAfter time.Duration // zero when allowed
}

// Limiter admits or rejects one request for key. A limit <= 0 disables the check.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

func decide(count, limit int, retryAfter time.Duration) Decision {
	d := Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(0, limit-count),
		Count:     count,
	}
	if !d.Allowed {
		d.RetryAfter = retryAfter
	}
	return d
}

func unlimited(limit int) Decision {
	return Decision{Allowed: true, Limit: limit, Remaining: limit}
}
