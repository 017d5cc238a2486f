package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Tomlord1122/todo-app/internal/repository"
)

// StoreLimiter counts hits in the rate_limits table. It is used when no
// Redis is configured. Keys are suffixed with the window number so each
// window starts from zero; old rows are removed by the janitor.
type StoreLimiter struct {
	repo  repository.RateLimitRepository
	clock func() time.Time
}

func NewStoreLimiter(repo repository.RateLimitRepository, clock func() time.Time) *StoreLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &StoreLimiter{repo: repo, clock: clock}
}

func (l *StoreLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	if window < time.Millisecond {
		window = time.Minute
	}

	now := l.clock().UTC()
	bucket := now.UnixMilli() / window.Milliseconds()
	count, err := l.repo.Hit(ctx, key+":"+strconv.FormatInt(bucket, 10), now)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit store hit: %w", err)
	}

	windowEnd := time.UnixMilli((bucket + 1) * window.Milliseconds())
	return decide(count, limit, windowEnd.Sub(now)), nil
}
