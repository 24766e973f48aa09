package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tabremote/relay-server/internal/util"
)

const connectKeyPrefix = "relay:connect:"

// connectAttemptsScript keeps one sorted set of upgrade attempts per client
// IP, scored in milliseconds. Returns {allowed, remaining, resetAtMillis}
// where the reset is when the oldest attempt leaves the window.
var connectAttemptsScript = redis.NewScript(`
local attempts = KEYS[1]
local nowMs = tonumber(ARGV[1])
local windowMs = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local attemptID = ARGV[4]

redis.call('ZREMRANGEBYSCORE', attempts, 0, nowMs - windowMs)

local seen = redis.call('ZCARD', attempts)
local resetAt = nowMs + windowMs
local oldest = redis.call('ZRANGE', attempts, 0, 0, 'WITHSCORES')
if oldest[2] then
    resetAt = tonumber(oldest[2]) + windowMs
end

if seen >= limit then
    return {0, 0, resetAt}
end

redis.call('ZADD', attempts, nowMs, attemptID)
redis.call('PEXPIRE', attempts, windowMs)
return {1, limit - seen - 1, resetAt}
`)

// RedisRateLimiter shares connect attempt counts across relay instances.
// When Redis is unreachable the connection is admitted.
type RedisRateLimiter struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.Scripter) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

func (rl *RedisRateLimiter) Check(ctx context.Context, ip string, limit int) (allowed bool, remaining int, resetAt int64) {
	now := rl.now()

	allowed, remaining, resetAtMs, err := rl.record(ctx, ip, limit, now)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("connect limit store unavailable, admitting connection")
		return true, limit - 1, now.Add(windowDuration).Unix()
	}

	return allowed, remaining, millisToUnixCeil(resetAtMs)
}

func (rl *RedisRateLimiter) record(ctx context.Context, ip string, limit int, now time.Time) (bool, int, int64, error) {
	result, err := connectAttemptsScript.Run(ctx, rl.client,
		[]string{connectKey(ip)},
		now.UnixMilli(), windowDuration.Milliseconds(), limit, util.NewAttemptID(now),
	).Int64Slice()
	if err != nil {
		return false, 0, 0, err
	}
	if len(result) != 3 {
		return false, 0, 0, fmt.Errorf("connect limit script returned %d values", len(result))
	}
	return result[0] == 1, int(result[1]), result[2], nil
}

func connectKey(ip string) string {
	return connectKeyPrefix + ip
}

func millisToUnixCeil(ms int64) int64 {
	return (ms + 999) / 1000
}
