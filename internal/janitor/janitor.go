// Package janitor periodically removes rows that can never be used again:
// expired sessions and verification tokens, and finished rate-limit windows.
package janitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tomlord1122/todo-app/internal/repository"
)

// Recorder receives the number of rows removed per table.
type Recorder interface {
	JanitorDeleted(table string, n int64)
}

type Janitor struct {
	Sessions      repository.SessionRepository
	Verifications repository.VerificationRepository
	RateLimits    repository.RateLimitRepository
	// RateLimitRetention is how long a rate-limit row is kept after its last hit.
	RateLimitRetention time.Duration
	Interval           time.Duration
	Recorder           Recorder
	Log                zerolog.Logger
	Clock              func() time.Time
}

func (j *Janitor) now() time.Time {
	if j.Clock != nil {
		return j.Clock().UTC()
	}
	return time.Now().UTC()
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := j.Sweep(ctx); err != nil && ctx.Err() == nil {
			j.Log.Warn().Err(err).Msg("janitor sweep failed")
		}
		select {
		case <-ctx.Done():
			j.Log.Info().Msg("janitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Sweep deletes everything that has expired as of now. It attempts every
// table even if an earlier one fails.
func (j *Janitor) Sweep(ctx context.Context) error {
	now := j.now()
	var errs []error

	if j.Sessions != nil {
		n, err := j.Sessions.DeleteExpired(ctx, now)
		errs = append(errs, err)
		j.record("sessions", n)
	}
	if j.Verifications != nil {
		n, err := j.Verifications.DeleteExpired(ctx, now)
		errs = append(errs, err)
		j.record("verifications", n)
	}
	if j.RateLimits != nil {
		n, err := j.RateLimits.DeleteBefore(ctx, now.Add(-j.RateLimitRetention))
		errs = append(errs, err)
		j.record("rate_limits", n)
	}
	return errors.Join(errs...)
}

func (j *Janitor) record(table string, n int64) {
	if n > 0 {
		j.Log.Debug().Str("table", table).Int64("deleted", n).Msg("janitor removed expired rows")
	}
	if j.Recorder != nil {
		j.Recorder.JanitorDeleted(table, n)
	}
}
