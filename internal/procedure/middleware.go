package procedure

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tomlord1122/todo-app/internal/domain"
	"github.com/Tomlord1122/todo-app/internal/ratelimit"
)

// Next continues the chain.
type Next func(ctx context.Context, call *Call) (any, error)

// Middleware is one step around a procedure. It either calls next or
// returns early with an error.
type Middleware func(ctx context.Context, call *Call, next Next) (any, error)

// Chain composes steps so that the first one runs outermost.
func Chain(steps ...Middleware) func(Next) Next {
	return func(final Next) Next {
		next := final
		for i := len(steps) - 1; i >= 0; i-- {
			step, inner := steps[i], next
			next = func(ctx context.Context, call *Call) (any, error) {
				return step(ctx, call, inner)
			}
		}
		return next
	}
}

// SessionResolver looks up the live session for a token.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*domain.Session, error)
}

// Logging observes every call. Output shape failures are relabeled as
// OUTPUT_VALIDATION_FAILED; all other errors pass through unchanged.
func Logging(log zerolog.Logger) Middleware {
	return func(ctx context.Context, call *Call, next Next) (any, error) {
		start := time.Now()
		out, err := next(ctx, call)

		l := log.With().
			Str("procedure", call.Procedure).
			Str("request_id", call.RequestID).
			Dur("duration", time.Since(start)).
			Logger()
		if call.Identity != nil {
			l = l.With().Str("user_id", call.Identity.UserID).Logger()
		}

		if err == nil {
			l.Debug().Msg("procedure ok")
			return out, nil
		}

		var outErr *OutputError
		if errors.As(err, &outErr) {
			l.Error().Err(err).Interface("fields", outErr.Fields).Msg("procedure output validation failed")
			return nil, domain.ErrOutputValidation(outErr)
		}

		switch domain.KindOf(err) {
		case domain.KindInternal, domain.KindOutputValidationFailed:
			l.Error().Err(err).Msg("procedure failed")
		default:
			l.Info().Err(err).Str("code", string(domain.KindOf(err))).Msg("procedure rejected")
		}
		return nil, err
	}
}

// Authenticate requires a live session. Without one the call fails with
// UNAUTHORIZED and nothing downstream runs.
func Authenticate(sessions SessionResolver, cookieName string) Middleware {
	return func(ctx context.Context, call *Call, next Next) (any, error) {
		session, err := sessions.ResolveSession(ctx, call.SessionToken(cookieName))
		if err != nil {
			return nil, err
		}

		call.Identity = &Identity{UserID: session.UserID, User: session.User, Session: session}
		out, err := next(WithIdentity(ctx, call.Identity), call)
		call.ResponseHeader.Set("Cache-Control", CacheControlPrivate)
		return out, err
	}
}

// RateLimit admits at most limit calls per window for each caller, keyed by
// user id when authenticated and by client IP otherwise. A limiter failure
// lets the call through.
func RateLimit(limiter ratelimit.Limiter, rule string, limit int, window time.Duration, log zerolog.Logger) Middleware {
	return func(ctx context.Context, call *Call, next Next) (any, error) {
		key := rule + ":ip:" + call.ClientIP()
		if call.Identity != nil {
			key = rule + ":user:" + call.Identity.UserID
		}

		d, err := limiter.Allow(ctx, key, limit, window)
		if err != nil {
			log.Warn().Err(err).Str("rule", rule).Msg("rate limiter unavailable, allowing request")
			return next(ctx, call)
		}

		call.ResponseHeader.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		call.ResponseHeader.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			call.ResponseHeader.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			return nil, domain.ErrRateLimited(rule)
		}
		return next(ctx, call)
	}
}
