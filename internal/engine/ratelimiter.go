package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/hookrelay/internal/worker"
)

// RateLimiter caps how often each handler may run, using a Redis sorted set
// per handler as a sliding window. Runs over the cap are skipped, not queued.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *slog.Logger
	script      *redis.Script
	limit       int
	window      time.Duration
}

// Drops entries older than the window, then adds the run if the count is
// still under the limit. Returns 1 when allowed.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

if redis.call('ZCARD', key) < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window + 1000)
    return 1
end
return 0
`)

// NewRateLimiter allows at most limit runs per handler within window. A
// limit of zero or less disables limiting.
func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		limit:       limit,
		window:      window,
	}
}

func rlKey(handler string) string {
	return fmt.Sprintf("rl:handler:%s", handler)
}

// Allow reports whether the handler may run now. invocationID keeps window
// members unique. Redis errors allow the run.
func (rl *RateLimiter) Allow(ctx context.Context, handler, invocationID string) bool {
	if rl.limit <= 0 {
		return true
	}

	now := time.Now().UnixMilli()
	result, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(handler)},
		now, rl.window.Milliseconds(), rl.limit, invocationID,
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", "error", err, "handler", handler)
		return true
	}

	if result == 0 {
		rl.logger.Debug("rate limited", "handler", handler, "limit", rl.limit, "window", rl.window)
		return false
	}
	return true
}

// Guard wraps a task so it is skipped when its handler is over the limit.
func (rl *RateLimiter) Guard(task worker.Task) worker.Task {
	run := task.Run
	task.Run = func(ctx context.Context) error {
		if !rl.Allow(ctx, task.Handler, task.InvocationID) {
			return fmt.Errorf("rate limited: %w", worker.ErrSkipped)
		}
		return run(ctx)
	}
	return task
}
