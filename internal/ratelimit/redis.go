package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR the key and set its expiry on the first hit, atomically.
// Returns {count, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {c, ttl}
`)

// RedisLimiter keeps window counters in Redis so that every replica of the
// server shares them.
type RedisLimiter struct {
	rdb    redis.Scripter
	prefix string
}

func NewRedisLimiter(rdb redis.Scripter) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: "ratelimit:"}
}

// NewRedisClient parses a redis:// URL and checks that the server answers.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return unlimited(limit), nil
	}
	if window < time.Millisecond {
		window = time.Minute
	}

	res, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit redis eval: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("ratelimit redis eval: unexpected result length %d", len(res))
	}

	retryAfter := time.Duration(res[1]) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = window
	}
	return decide(int(res[0]), limit, retryAfter), nil
}
