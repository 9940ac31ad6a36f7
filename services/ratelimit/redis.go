package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces limiter counters.
const KeyPrefix = "roompe:ratelimit:"

// fixedWindow increments the counter and starts its expiry on first use.
// Returns {count, pttl}.
var fixedWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisLimiter shares windows across API instances.
type RedisLimiter struct {
	client redis.Scripter
	now    func() time.Time
}

// NewRedisLimiter uses client for counters. The caller keeps ownership of
// the client.
func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, win time.Duration) (Decision, error) {
	if err := validate(limit, win); err != nil {
		return Decision{}, err
	}

	res, err := fixedWindow.Run(ctx, l.client, []string{KeyPrefix + key}, win.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count request: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("unexpected rate limit reply of length %d", len(res))
	}

	resetAt := l.now().Add(time.Duration(res[1]) * time.Millisecond)
	return decide(int(res[0]), limit, resetAt), nil
}
