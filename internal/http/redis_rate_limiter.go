package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisRateKeyPrefix = "blenvi:ratelimit:"

// fixedWindow increments the counter and starts its window on first use.
// It returns the count and the remaining window in milliseconds.
var fixedWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

type redisRateLimiter struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	timeout time.Duration
}

// NewRedisRateLimiter returns a limiter whose windows are shared by every
// API replica pointing at the same Redis database.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return newRedisRateLimiter(client, logger), nil
}

func newRedisRateLimiter(client redis.UniversalClient, logger *slog.Logger) *redisRateLimiter {
	return &redisRateLimiter{client: client, logger: logger, timeout: 250 * time.Millisecond}
}

func (rl *redisRateLimiter) Allow(ctx context.Context, key rateKey, policy ratePolicy) (rateDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	window := policy.window
	if window <= 0 {
		window = time.Minute
	}
	res, err := fixedWindow.Run(ctx, rl.client, []string{redisRateKey(key)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return rateDecision{}, fmt.Errorf("redis rate window %s: %w", key, err)
	}
	if len(res) != 2 {
		return rateDecision{}, fmt.Errorf("redis rate window %s: unexpected reply %v", key, res)
	}
	count := int(res[0])
	return rateDecision{
		allowed:   count <= policy.limit,
		count:     count,
		windowEnd: time.Now().Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}

func (rl *redisRateLimiter) Close() {
	if err := rl.client.Close(); err != nil && rl.logger != nil {
		rl.logger.Warn("close redis rate limiter", "error", err)
	}
}

// redisRateKey lays keys out as prefix:scope:subject:route so one scope can
// be inspected with a single SCAN pattern.
func redisRateKey(key rateKey) string {
	return redisRateKeyPrefix + string(key.scope) + ":" + key.subject + ":" + key.route
}
